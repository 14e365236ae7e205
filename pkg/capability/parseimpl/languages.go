package parseimpl

import (
	"path"
	"strings"

	golang "github.com/alexaandru/go-sitter-forest/go"
	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/python"
	"github.com/alexaandru/go-sitter-forest/rust"
	"github.com/alexaandru/go-sitter-forest/typescript"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Confidence levels for import target resolution. A relative path that
// names a file directly is near-certain; a module-name-to-path guess is
// heuristic.
const (
	confidenceDirect    = 0.9
	confidenceHeuristic = 0.5
)

// NewGoParser builds a parser for Go source.
func NewGoParser() *Parser {
	return newParser(grammar{
		name:     "go",
		language: sitter.NewLanguage(golang.GetLanguage()),
		defKinds: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_spec":            "type",
		},
		identTypes: map[string]bool{
			"identifier":       true,
			"field_identifier": true,
			"type_identifier":  true,
		},
		callTypes:    map[string]bool{"call_expression": true},
		commentTypes: map[string]bool{"comment": true},
		importTypes:  map[string]bool{"import_spec": true},
		importSpec:   unquoteImport,
		// Go imports name module paths, not repository files; the Graph
		// extractor's own file lookup decides whether the path maps
		// into this tree.
		resolveTarget: nil,
	})
}

// NewPythonParser builds a parser for Python source.
func NewPythonParser() *Parser {
	return newParser(grammar{
		name:     "python",
		language: sitter.NewLanguage(python.GetLanguage()),
		defKinds: map[string]string{
			"function_definition": "function",
			"class_definition":    "class",
		},
		identTypes:   map[string]bool{"identifier": true},
		callTypes:    map[string]bool{"call": true},
		commentTypes: map[string]bool{"comment": true},
		importTypes: map[string]bool{
			"import_statement":      true,
			"import_from_statement": true,
		},
		importSpec:    pythonImportSpec,
		resolveTarget: pythonResolveTarget,
	})
}

// NewJavaScriptParser builds a parser for JavaScript source.
func NewJavaScriptParser() *Parser {
	return newParser(grammar{
		name:     "javascript",
		language: sitter.NewLanguage(javascript.GetLanguage()),
		defKinds: map[string]string{
			"function_declaration": "function",
			"method_definition":    "method",
			"class_declaration":    "class",
		},
		identTypes: map[string]bool{
			"identifier":          true,
			"property_identifier": true,
		},
		callTypes:     map[string]bool{"call_expression": true},
		commentTypes:  map[string]bool{"comment": true},
		importTypes:   map[string]bool{"import_statement": true},
		importSpec:    ecmaImportSpec,
		resolveTarget: ecmaResolveTarget([]string{".js", ".jsx", ".mjs"}),
	})
}

// NewTypeScriptParser builds a parser for TypeScript source.
func NewTypeScriptParser() *Parser {
	return newParser(grammar{
		name:     "typescript",
		language: sitter.NewLanguage(typescript.GetLanguage()),
		defKinds: map[string]string{
			"function_declaration":   "function",
			"method_definition":      "method",
			"class_declaration":      "class",
			"interface_declaration":  "interface",
			"type_alias_declaration": "type",
		},
		identTypes: map[string]bool{
			"identifier":          true,
			"property_identifier": true,
			"type_identifier":     true,
		},
		callTypes:     map[string]bool{"call_expression": true},
		commentTypes:  map[string]bool{"comment": true},
		importTypes:   map[string]bool{"import_statement": true},
		importSpec:    ecmaImportSpec,
		resolveTarget: ecmaResolveTarget([]string{".ts", ".tsx"}),
	})
}

// NewRustParser builds a parser for Rust source.
func NewRustParser() *Parser {
	return newParser(grammar{
		name:     "rust",
		language: sitter.NewLanguage(rust.GetLanguage()),
		defKinds: map[string]string{
			"function_item": "function",
			"struct_item":   "struct",
			"enum_item":     "enum",
			"trait_item":    "trait",
			"impl_item":     "impl",
		},
		identTypes: map[string]bool{
			"identifier":      true,
			"type_identifier": true,
		},
		callTypes:     map[string]bool{"call_expression": true},
		commentTypes:  map[string]bool{"line_comment": true, "block_comment": true},
		importTypes:   map[string]bool{"use_declaration": true},
		importSpec:    rustImportSpec,
		resolveTarget: nil,
	})
}

// unquoteImport strips surrounding quotes and any alias prefix from an
// import spec's source text.
func unquoteImport(text string) string {
	text = strings.TrimSpace(text)

	// "alias \"path\"" form: keep the quoted part.
	if idx := strings.IndexAny(text, "\"'"); idx >= 0 {
		text = text[idx:]
	}

	return strings.Trim(text, "\"'`")
}

// ecmaImportSpec pulls the module source out of an ES import statement:
// `import {x} from './mod'` -> `./mod`.
func ecmaImportSpec(text string) string {
	if idx := strings.LastIndex(text, "from"); idx >= 0 {
		text = text[idx+len("from"):]
	} else if idx := strings.Index(text, "import"); idx >= 0 {
		text = text[idx+len("import"):]
	}

	return unquoteImport(strings.TrimSuffix(strings.TrimSpace(text), ";"))
}

// pythonImportSpec extracts the first imported module name:
// `from a.b import c` -> `a.b`; `import a.b as x` -> `a.b`.
func pythonImportSpec(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}

	if fields[0] == "from" || fields[0] == "import" {
		return fields[1]
	}

	return ""
}

// rustImportSpec extracts the use path: `use crate::foo::Bar;` -> `crate::foo::Bar`.
func rustImportSpec(text string) string {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ";"))
	text = strings.TrimPrefix(text, "pub ")
	text = strings.TrimPrefix(text, "use ")

	// Grouped imports (`use a::{b, c}`) resolve to their common prefix.
	if idx := strings.Index(text, "::{"); idx >= 0 {
		text = text[:idx]
	}

	return strings.TrimSpace(text)
}

// ecmaResolveTarget resolves relative ES imports to a sibling file with
// one of the given extensions.
func ecmaResolveTarget(extensions []string) func(fromPath, importedName string) (string, float64) {
	return func(fromPath, importedName string) (string, float64) {
		if !strings.HasPrefix(importedName, ".") {
			return "", 0
		}

		resolved := path.Join(path.Dir(fromPath), importedName)
		if path.Ext(resolved) != "" {
			return resolved, confidenceDirect
		}

		// Extension-less specifier: the first candidate extension is
		// the canonical guess. The store lookup downstream discards
		// candidates that name no File node.
		return resolved + extensions[0], confidenceHeuristic
	}
}

// pythonResolveTarget maps a dotted module name onto a repository
// path candidate: `a.b.c` -> `a/b/c.py`.
func pythonResolveTarget(fromPath, importedName string) (string, float64) {
	name := strings.TrimLeft(importedName, ".")
	if name == "" {
		return "", 0
	}

	candidate := strings.ReplaceAll(name, ".", "/") + ".py"

	// Relative imports (leading dots) anchor at the importing file's
	// package directory.
	if strings.HasPrefix(importedName, ".") {
		return path.Join(path.Dir(fromPath), candidate), confidenceDirect
	}

	return candidate, confidenceHeuristic
}
