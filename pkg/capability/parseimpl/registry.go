package parseimpl

import "github.com/homer-mine/homer/pkg/capability"

// DefaultParsers returns the built-in parser set keyed by the file
// extensions the Graph extractor dispatches on. Parsers are shared
// across files; each is internally pooled and safe for concurrent use.
func DefaultParsers() map[string]capability.SourceParser {
	goParser := NewGoParser()
	pyParser := NewPythonParser()
	jsParser := NewJavaScriptParser()
	tsParser := NewTypeScriptParser()
	rustParser := NewRustParser()
	javaParser := NewJavaParser()

	return map[string]capability.SourceParser{
		".go":   goParser,
		".py":   pyParser,
		".js":   jsParser,
		".jsx":  jsParser,
		".mjs":  jsParser,
		".ts":   tsParser,
		".tsx":  tsParser,
		".rs":   rustParser,
		".java": javaParser,
	}
}
