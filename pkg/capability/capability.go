// Package capability declares the external-world contracts that
// extractors depend on: reading git history, parsing source files into
// definitions/references/imports, summarizing content with an LLM, and
// talking to a code-forge API. Concrete backends live in the gitimpl,
// parseimpl, llmimpl, and forgeimpl subpackages; extractors depend only
// on these interfaces so they can be swapped or faked in tests.
package capability

import (
	"context"
	"time"
)

// Span is a byte or line range into a source file, opaque beyond
// ordering — renderers and analyzers treat it as a location tag.
type Span struct {
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
}

// Definition is a named construct a SourceParser found in a file.
type Definition struct {
	Name          string
	QualifiedName string
	Kind          string
	Span          Span
}

// Reference is a use of a name inside some containing definition.
type Reference struct {
	Name          string
	ContainingDef string
	Span          Span
}

// Import is a resolved or unresolved import statement. TargetPath is
// empty when the parser could not resolve the import to a file in this
// repository; Confidence reflects how sure the resolution is.
type Import struct {
	FromPath     string
	ImportedName string
	TargetPath   string
	Confidence   float64
}

// DocComment is a doc comment attached to a definition, stored as node
// metadata rather than as its own node.
type DocComment struct {
	Text  string
	Hash  string
	Style string
}

// ParseResult is everything a SourceParser extracts from one file.
type ParseResult struct {
	Definitions []Definition
	References  []Reference
	Imports     []Import
	DocComments map[string]DocComment
}

// SourceParser turns file bytes into definitions, references, imports,
// and doc comments. Implementations must be deterministic: the same
// (fileBytes, path) pair always yields the same ParseResult.
type SourceParser interface {
	// Language reports the language this parser handles, used by the
	// Graph extractor to pick a parser per file extension.
	Language() string
	Parse(ctx context.Context, path string, fileBytes []byte) (ParseResult, error)
}

// Person identifies a commit author or committer.
type Person struct {
	Name  string
	Email string
}

// FileDiff is one file's change within a commit.
type FileDiff struct {
	OldPath           string
	NewPath           string
	Status            string
	LinesAdded        int
	LinesDeleted      int
	RenameSimilarity  float64
	HasRenameMetadata bool
}

// Commit is a single commit as read off the repository's history.
type Commit struct {
	SHA        string
	ParentSHAs []string
	Author     Person
	Committer  Person
	Timestamp  time.Time
	Message    string
	FileDiffs  []FileDiff
}

// Tag names an annotated or lightweight tag pointing at a commit.
type Tag struct {
	Name string
	SHA  string
}

// GitReader walks repository history. Implementations must expose HEAD,
// the tag set, and a topological walk from a given ancestor so the Git
// extractor can resume from a checkpoint.
type GitReader interface {
	Head(ctx context.Context) (string, error)
	Tags(ctx context.Context) ([]Tag, error)
	// WalkSince yields commits topologically, oldest first, starting
	// just after sinceSHA (empty sinceSHA walks the full history).
	WalkSince(ctx context.Context, sinceSHA string) ([]Commit, error)
}

// SummaryRequest is the input to a Summarizer call. The cache key is
// (ModelID, PromptTemplateVersion, input hash); the request has no
// separate input-hash field, so callers embed the subject's content
// hash in Content.
type SummaryRequest struct {
	PromptTemplateVersion string
	ModelID               string
	Content               string
}

// Summarizer produces structured JSON from content via an LLM. It must
// be referentially transparent at temperature 0 with respect to the
// caller-supplied cache key.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (map[string]any, error)
}

// ForgeIssue is a forge-hosted issue or pull request, addressed by
// provider-native number.
type ForgeIssue struct {
	Number    int
	Title     string
	Body      string
	Author    string
	State     string
	CreatedAt time.Time
	ClosedAt  time.Time
	IsPR      bool
	Reviewers []string
	Merged    bool
}

// Forge reads pull requests and issues from a hosted code-forge API.
type Forge interface {
	Provider() string
	// ListSince returns issues/PRs updated after cursor (a provider
	// cursor, e.g. an ISO timestamp or opaque page token).
	ListSince(ctx context.Context, cursor string) ([]ForgeIssue, string, error)
}
