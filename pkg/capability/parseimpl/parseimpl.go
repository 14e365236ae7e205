// Package parseimpl implements the capability.SourceParser contract on
// tree-sitter grammars. Each supported language pairs a grammar with a
// small descriptor naming the node types that carry definitions,
// references, imports, and comments; one shared walker turns a parsed
// tree into the language-agnostic ParseResult schema. Parsers are
// deterministic: the same (path, content) pair always yields the same
// result.
package parseimpl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	forest "github.com/alexaandru/go-sitter-forest"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/minio/highwayhash"

	"github.com/homer-mine/homer/pkg/capability"
)

// docCommentHashKey is a fixed HighwayHash key; doc comment hashes
// detect change across runs, so the key must not vary per process.
var docCommentHashKey = []byte("homer-doc-comment-content-hash0s")

var (
	errNoRootNode = errors.New("parse produced no root node")
	errPoolType   = errors.New("parser pool returned unexpected type")
)

// grammar describes how one language's tree-sitter node types map onto
// the ParseResult schema.
type grammar struct {
	name     string
	language *sitter.Language

	// defKinds maps a definition node type to the Definition.Kind it
	// produces ("function", "method", "type", "class", ...).
	defKinds map[string]string

	// identTypes are the node types that can name a definition.
	identTypes map[string]bool

	// callTypes are the node types representing a call site.
	callTypes map[string]bool

	// commentTypes are comment node types eligible as doc comments.
	commentTypes map[string]bool

	// importTypes are the node types representing one import statement.
	importTypes map[string]bool

	// importSpec extracts the imported name from an import node's
	// source text (quotes stripped, aliases dropped).
	importSpec func(text string) string

	// resolveTarget maps (fromPath, importedName) to a repository file
	// path candidate, or "" when the import points outside the tree.
	resolveTarget func(fromPath, importedName string) (target string, confidence float64)
}

// Parser implements capability.SourceParser for one grammar.
type Parser struct {
	g    grammar
	pool sync.Pool
}

func newParser(g grammar) *Parser {
	p := &Parser{g: g}
	p.pool.New = func() any {
		tsParser := sitter.NewParser()
		tsParser.SetLanguage(g.language)

		return tsParser
	}

	return p
}

// Language reports the grammar name, used by the Graph extractor to
// pick a parser per file extension.
func (p *Parser) Language() string { return p.g.name }

// Parse parses fileBytes and extracts definitions, references, imports,
// and doc comments.
func (p *Parser) Parse(ctx context.Context, path string, fileBytes []byte) (capability.ParseResult, error) {
	tsParser, ok := p.pool.Get().(*sitter.Parser)
	if !ok {
		return capability.ParseResult{}, errPoolType
	}
	defer p.pool.Put(tsParser)

	tree, err := tsParser.ParseString(ctx, nil, fileBytes)
	if err != nil {
		return capability.ParseResult{}, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return capability.ParseResult{}, errNoRootNode
	}

	w := walker{
		g:       &p.g,
		path:    path,
		content: fileBytes,
		result: capability.ParseResult{
			DocComments: map[string]capability.DocComment{},
		},
	}
	w.walk(root, "")

	return w.result, nil
}

// walker accumulates a ParseResult while descending the syntax tree.
type walker struct {
	g       *grammar
	path    string
	content []byte
	result  capability.ParseResult

	// lastComment tracks the most recent comment run so a definition
	// starting on the next line can claim it as its doc comment.
	lastComment        string
	lastCommentEndLine int
}

func (w *walker) walk(n sitter.Node, enclosing string) {
	nodeType := n.Type()

	switch {
	case w.g.commentTypes[nodeType]:
		w.recordComment(n)

		return
	case w.g.importTypes[nodeType]:
		w.recordImport(n)
	case w.g.callTypes[nodeType]:
		w.recordReference(n, enclosing)
	}

	if kind, isDef := w.g.defKinds[nodeType]; isDef {
		enclosing = w.recordDefinition(n, kind, enclosing)
	}

	for i := uint32(0); i < n.NamedChildCount(); i++ {
		w.walk(n.NamedChild(i), enclosing)
	}
}

func (w *walker) text(n sitter.Node) string {
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(w.content) || start > end {
		return ""
	}

	return string(w.content[start:end])
}

func (w *walker) span(n sitter.Node) capability.Span {
	start, end := n.StartPoint(), n.EndPoint()

	return capability.Span{
		StartLine: int(start.Row) + 1,
		EndLine:   int(end.Row) + 1,
		StartCol:  int(start.Column),
		EndCol:    int(end.Column),
	}
}

// defName finds the identifier naming a definition node: the first
// direct named child whose type is in the grammar's identifier set.
func (w *walker) defName(n sitter.Node) string {
	for i := uint32(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if w.g.identTypes[child.Type()] {
			return w.text(child)
		}
	}

	return ""
}

func (w *walker) recordDefinition(n sitter.Node, kind, enclosing string) string {
	name := w.defName(n)
	if name == "" {
		return enclosing
	}

	qualified := name
	if enclosing != "" {
		qualified = enclosing + "." + name
	}

	def := capability.Definition{
		Name:          name,
		QualifiedName: qualified,
		Kind:          kind,
		Span:          w.span(n),
	}
	w.result.Definitions = append(w.result.Definitions, def)

	w.claimDocComment(n, name)

	return qualified
}

// claimDocComment attaches the pending comment run to the definition
// when the comment ends on the line directly above the definition.
func (w *walker) claimDocComment(n sitter.Node, defName string) {
	if w.lastComment == "" {
		return
	}

	defStartLine := int(n.StartPoint().Row) + 1
	if w.lastCommentEndLine != defStartLine-1 {
		return
	}

	text := w.lastComment
	w.lastComment = ""

	w.result.DocComments[defName] = capability.DocComment{
		Text:  text,
		Hash:  commentHash(text),
		Style: commentStyle(text),
	}
}

func (w *walker) recordComment(n sitter.Node) {
	text := w.text(n)
	endLine := int(n.EndPoint().Row) + 1

	// Consecutive line comments coalesce into one doc comment run.
	if w.lastComment != "" && w.lastCommentEndLine == int(n.StartPoint().Row) {
		w.lastComment += "\n" + text
	} else {
		w.lastComment = text
	}

	w.lastCommentEndLine = endLine
}

func (w *walker) recordImport(n sitter.Node) {
	name := w.g.importSpec(w.text(n))
	if name == "" {
		return
	}

	imp := capability.Import{FromPath: w.path, ImportedName: name}

	if w.g.resolveTarget != nil {
		imp.TargetPath, imp.Confidence = w.g.resolveTarget(w.path, name)
	}

	w.result.Imports = append(w.result.Imports, imp)
}

// recordReference extracts the callee name from a call node: the
// trailing identifier of the callee expression, so both `foo()` and
// `pkg.foo()` resolve to `foo`.
func (w *walker) recordReference(n sitter.Node, enclosing string) {
	if enclosing == "" {
		return
	}

	callee := n.NamedChild(0)
	if callee.IsNull() {
		return
	}

	name := trailingIdentifier(w.text(callee))
	if name == "" {
		return
	}

	w.result.References = append(w.result.References, capability.Reference{
		Name:          name,
		ContainingDef: enclosing,
		Span:          w.span(n),
	})
}

// trailingIdentifier reduces a callee expression to its last identifier
// segment: "pkg.Func" -> "Func", "obj.method" -> "method".
func trailingIdentifier(expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ""
	}

	if idx := strings.LastIndexAny(expr, ".:"); idx >= 0 {
		expr = expr[idx+1:]
	}

	if expr == "" || !isIdentifier(expr) {
		return ""
	}

	return expr
}

func isIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func commentHash(text string) string {
	h, err := highwayhash.New64(docCommentHashKey)
	if err != nil {
		return ""
	}

	if _, writeErr := h.Write([]byte(text)); writeErr != nil {
		return ""
	}

	return fmt.Sprintf("%016x", h.Sum64())
}

func commentStyle(text string) string {
	switch {
	case strings.HasPrefix(text, "///"), strings.HasPrefix(text, "//!"):
		return "doc-line"
	case strings.HasPrefix(text, "/*"):
		return "block"
	case strings.HasPrefix(text, "//"):
		return "line"
	case strings.HasPrefix(text, "#"):
		return "hash"
	default:
		return "other"
	}
}

// genericDefKinds covers the definition node types most tree-sitter
// grammars converge on, used by NewForestParser for languages without
// a hand-tuned descriptor in languages.go.
var genericDefKinds = map[string]string{
	"function_declaration":  "function",
	"function_definition":   "function",
	"function_item":         "function",
	"method_declaration":    "method",
	"method_definition":     "method",
	"class_declaration":     "class",
	"class_definition":      "class",
	"struct_item":           "struct",
	"type_declaration":      "type",
	"interface_declaration": "interface",
}

// NewForestParser builds a best-effort parser for any language the full
// forest registry knows, beyond the first-class set in languages.go.
// It extracts definitions, call references, and comments using the node
// types most grammars share; imports are not extracted. Returns nil
// when the registry has no grammar of that name.
func NewForestParser(name string) *Parser {
	lang := forest.GetLanguage(name)
	if lang == nil {
		return nil
	}

	return newParser(grammar{
		name:     name,
		language: lang,
		defKinds: genericDefKinds,
		identTypes: map[string]bool{
			"identifier":      true,
			"type_identifier": true,
			"name":            true,
		},
		callTypes: map[string]bool{
			"call_expression": true,
			"call":            true,
		},
		commentTypes: map[string]bool{
			"comment":       true,
			"line_comment":  true,
			"block_comment": true,
		},
		importTypes: map[string]bool{},
		importSpec:  func(string) string { return "" },
	})
}
