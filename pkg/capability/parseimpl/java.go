package parseimpl

import (
	"context"
	"fmt"
	"strings"
	"sync"

	smacker "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/homer-mine/homer/pkg/capability"
)

// JavaParser implements capability.SourceParser for Java on the
// smacker tree-sitter binding, which bundles grammars the forest set
// in languages.go doesn't pull in as first-class modules.
type JavaParser struct {
	pool sync.Pool
}

// NewJavaParser builds a Java parser.
func NewJavaParser() *JavaParser {
	p := &JavaParser{}
	p.pool.New = func() any {
		tsParser := smacker.NewParser()
		tsParser.SetLanguage(java.GetLanguage())

		return tsParser
	}

	return p
}

// Language reports "java".
func (p *JavaParser) Language() string { return "java" }

// javaDefKinds maps Java declaration node types to definition kinds.
var javaDefKinds = map[string]string{
	"class_declaration":       "class",
	"interface_declaration":   "interface",
	"enum_declaration":        "enum",
	"method_declaration":      "method",
	"constructor_declaration": "method",
}

// Parse parses Java source into the language-agnostic schema.
func (p *JavaParser) Parse(ctx context.Context, path string, fileBytes []byte) (capability.ParseResult, error) {
	tsParser, ok := p.pool.Get().(*smacker.Parser)
	if !ok {
		return capability.ParseResult{}, errPoolType
	}
	defer p.pool.Put(tsParser)

	tree, err := tsParser.ParseCtx(ctx, nil, fileBytes)
	if err != nil {
		return capability.ParseResult{}, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	w := javaWalker{
		path:    path,
		content: fileBytes,
		result: capability.ParseResult{
			DocComments: map[string]capability.DocComment{},
		},
	}
	w.walk(tree.RootNode(), "")

	return w.result, nil
}

type javaWalker struct {
	path    string
	content []byte
	result  capability.ParseResult

	lastComment        string
	lastCommentEndLine int
}

func (w *javaWalker) walk(n *smacker.Node, enclosing string) {
	if n == nil {
		return
	}

	switch nodeType := n.Type(); {
	case nodeType == "line_comment" || nodeType == "block_comment":
		w.recordComment(n)

		return
	case nodeType == "import_declaration":
		w.recordImport(n)
	case nodeType == "method_invocation":
		w.recordReference(n, enclosing)
	default:
		if kind, isDef := javaDefKinds[nodeType]; isDef {
			enclosing = w.recordDefinition(n, kind, enclosing)
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), enclosing)
	}
}

func (w *javaWalker) span(n *smacker.Node) capability.Span {
	start, end := n.StartPoint(), n.EndPoint()

	return capability.Span{
		StartLine: int(start.Row) + 1,
		EndLine:   int(end.Row) + 1,
		StartCol:  int(start.Column),
		EndCol:    int(end.Column),
	}
}

func (w *javaWalker) recordDefinition(n *smacker.Node, kind, enclosing string) string {
	var name string

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "identifier" {
			name = child.Content(w.content)

			break
		}
	}

	if name == "" {
		return enclosing
	}

	qualified := name
	if enclosing != "" {
		qualified = enclosing + "." + name
	}

	w.result.Definitions = append(w.result.Definitions, capability.Definition{
		Name:          name,
		QualifiedName: qualified,
		Kind:          kind,
		Span:          w.span(n),
	})

	if w.lastComment != "" && w.lastCommentEndLine == int(n.StartPoint().Row) {
		text := w.lastComment
		w.lastComment = ""
		w.result.DocComments[name] = capability.DocComment{
			Text:  text,
			Hash:  commentHash(text),
			Style: commentStyle(text),
		}
	}

	return qualified
}

func (w *javaWalker) recordComment(n *smacker.Node) {
	text := n.Content(w.content)

	if w.lastComment != "" && w.lastCommentEndLine == int(n.StartPoint().Row) {
		w.lastComment += "\n" + text
	} else {
		w.lastComment = text
	}

	w.lastCommentEndLine = int(n.EndPoint().Row) + 1
}

func (w *javaWalker) recordImport(n *smacker.Node) {
	text := strings.TrimSpace(n.Content(w.content))
	text = strings.TrimPrefix(text, "import ")
	text = strings.TrimPrefix(text, "static ")
	text = strings.TrimSuffix(strings.TrimSpace(text), ";")

	if text == "" {
		return
	}

	// Java imports name classes on the classpath, not repository
	// files; targets are left unresolved.
	w.result.Imports = append(w.result.Imports, capability.Import{
		FromPath:     w.path,
		ImportedName: text,
	})
}

func (w *javaWalker) recordReference(n *smacker.Node, enclosing string) {
	if enclosing == "" {
		return
	}

	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}

	w.result.References = append(w.result.References, capability.Reference{
		Name:          name.Content(w.content),
		ContainingDef: enclosing,
		Span:          w.span(n),
	})
}
