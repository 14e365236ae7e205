package extract

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/highwayhash"
	"golang.org/x/sync/errgroup"

	"github.com/homer-mine/homer/pkg/capability"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/homergraph"
)

// definitionHashKey is a fixed 32-byte HighwayHash key. Definition
// content hashes exist to detect change, not to resist forgery, so a
// fixed key (rather than a per-run random one) is what makes hashes
// comparable across extraction runs.
var definitionHashKey = []byte("homer-graph-definition-hash-key0")

// definitionContentHash hashes a definition's source span (plus its doc
// comment text, if any) so NodeChange.WasStale fires when either the
// body or the documentation of a Function/Type changes.
func definitionContentHash(content []byte, span capability.Span, docText string) (uint64, error) {
	h, err := highwayhash.New64(definitionHashKey)
	if err != nil {
		return 0, fmt.Errorf("init definition hash: %w", err)
	}

	if _, err := h.Write(spanText(content, span)); err != nil {
		return 0, fmt.Errorf("hash definition span: %w", err)
	}

	if docText != "" {
		if _, err := h.Write([]byte(docText)); err != nil {
			return 0, fmt.Errorf("hash definition doc comment: %w", err)
		}
	}

	return h.Sum64(), nil
}

// spanText extracts the lines [StartLine, EndLine] (1-indexed, inclusive)
// of content. Spans outside the file's current line range (stale spans
// from a parser version mismatch) hash to an empty slice rather than
// panicking.
func spanText(content []byte, span capability.Span) []byte {
	lines := bytes.Split(content, []byte("\n"))

	start := span.StartLine - 1
	if start < 0 {
		start = 0
	}

	end := span.EndLine
	if end > len(lines) {
		end = len(lines)
	}

	if start >= end {
		return nil
	}

	return bytes.Join(lines[start:end], []byte("\n"))
}

// FileReader reads the current content of a file at the given path,
// the dependency the Graph extractor uses instead of talking to the
// filesystem directly so it can be faked in tests.
type FileReader func(path string) ([]byte, error)

// GraphExtractor dispatches changed files to a per-language SourceParser
// and turns the result into Function/Type nodes plus BelongsTo, Calls,
// and Imports edges; no Inherits edges are created. Doc comments are
// stored as node metadata. The reader
// scopes each pass to the files touched by commits since graph_last_sha.
type GraphExtractor struct {
	Reader   capability.GitReader
	Parsers  map[string]capability.SourceParser
	ReadFile FileReader
	Workers  int
}

// NewGraphExtractor builds a GraphExtractor from a history reader and a
// set of parsers keyed by the file extension they handle (e.g. ".go").
func NewGraphExtractor(reader capability.GitReader, parsers map[string]capability.SourceParser, readFile FileReader, workers int) *GraphExtractor {
	if workers < 1 {
		workers = 1
	}

	return &GraphExtractor{Reader: reader, Parsers: parsers, ReadFile: readFile, Workers: workers}
}

func (e *GraphExtractor) Name() string { return "graph" }

func (e *GraphExtractor) HasWork(ctx context.Context, store *homergraph.Store) (bool, error) {
	gitSHA, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}

	graphSHA, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointGraphLastSHA)
	if err != nil {
		return false, err
	}

	return !ok || graphSHA != gitSHA, nil
}

// parseJob pairs a file node with the parse result or error it produced.
type parseJob struct {
	fileID  int64
	path    string
	content []byte
	result  capability.ParseResult
	err     error
}

func (e *GraphExtractor) Extract(ctx context.Context, store *homergraph.Store, _ *config.Config) (ExtractStats, error) {
	stats := ExtractStats{}

	files, err := e.changedFiles(ctx, store)
	if err != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), "files", "list changed files: %w", err)
	}

	jobs := e.parseInParallel(ctx, files)

	var topologyChanged bool

	for _, job := range jobs {
		if job.err != nil {
			stats.RecordError(job.path, errkind.Input, job.err)

			continue
		}

		changedTopology, writeErr := e.writeParseResult(ctx, store, &stats, job)
		if writeErr != nil {
			stats.RecordError(job.path, errkind.KindOf(writeErr), writeErr)

			continue
		}

		topologyChanged = topologyChanged || changedTopology
		stats.ItemsProcessed++
	}

	if topologyChanged {
		if _, invErr := store.InvalidateCentrality(ctx); invErr != nil {
			return stats, errkind.Wrap(errkind.Invariant, e.Name(), "invalidate", "invalidate centrality: %w", invErr)
		}
	}

	gitSHA, _, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	if err != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "read git checkpoint: %w", err)
	}

	if setErr := store.SetCheckpoint(ctx, homergraph.CheckpointGraphLastSHA, gitSHA); setErr != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "advance checkpoint: %w", setErr)
	}

	return stats, nil
}

type changedFile struct {
	nodeID int64
	path   string
}

// changedFiles returns the File nodes to re-parse this pass: on the
// first run (no graph_last_sha yet) every file with a registered
// parser; on an incremental run only the files touched by commits
// since the checkpoint, read off the same history walk the Git
// extractor uses.
func (e *GraphExtractor) changedFiles(ctx context.Context, store *homergraph.Store) ([]changedFile, error) {
	touched, scoped, err := e.touchedSinceCheckpoint(ctx, store)
	if err != nil {
		return nil, err
	}

	sub, err := store.LoadSubgraph(ctx, homergraph.SubgraphFilter{})
	if err != nil {
		return nil, fmt.Errorf("load file nodes: %w", err)
	}

	out := make([]changedFile, 0, len(sub.Nodes))

	for _, n := range sub.Nodes {
		if n.Kind != homergraph.NodeFile {
			continue
		}

		if _, hasParser := e.Parsers[path.Ext(n.Name)]; !hasParser {
			continue
		}

		if scoped && !touched[n.Name] {
			continue
		}

		out = append(out, changedFile{nodeID: n.ID, path: n.Name})
	}

	return out, nil
}

// touchedSinceCheckpoint collects the paths changed by commits since
// graph_last_sha. scoped reports whether the set applies: without a
// reader or an advanced checkpoint there is no baseline to diff from,
// and the caller falls back to a full parse.
func (e *GraphExtractor) touchedSinceCheckpoint(
	ctx context.Context, store *homergraph.Store,
) (map[string]bool, bool, error) {
	if e.Reader == nil {
		return nil, false, nil
	}

	graphSHA, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointGraphLastSHA)
	if err != nil {
		return nil, false, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "read graph checkpoint: %w", err)
	}

	if !ok || graphSHA == "" {
		return nil, false, nil
	}

	commits, err := e.Reader.WalkSince(ctx, graphSHA)
	if err != nil {
		return nil, false, errkind.Wrap(errkind.Transient, e.Name(), "walk", "walk history since %s: %w", graphSHA, err)
	}

	touched := map[string]bool{}

	for _, commit := range commits {
		for _, diff := range commit.FileDiffs {
			if diff.NewPath != "" {
				touched[diff.NewPath] = true
			}

			// A rename's old path may still have stale definitions
			// attached; reparsing it (while it still exists as a File
			// node) keeps its BelongsTo set current.
			if diff.OldPath != "" && diff.OldPath != diff.NewPath {
				touched[diff.OldPath] = true
			}
		}
	}

	return touched, true, nil
}

// parseInParallel fans out parse jobs across Workers goroutines, the
// CPU-bound fanout the concurrency model reserves for per-file parsing.
// Workers only parse; the caller persists results on the coordinator
// goroutine, keeping the store single-writer.
func (e *GraphExtractor) parseInParallel(ctx context.Context, files []changedFile) []parseJob {
	jobs := make([]parseJob, len(files))

	group := new(errgroup.Group)
	group.SetLimit(e.Workers)

	for i, f := range files {
		group.Go(func() error {
			jobs[i] = e.parseOne(ctx, f)

			return nil
		})
	}

	_ = group.Wait()

	return jobs
}

func (e *GraphExtractor) parseOne(ctx context.Context, cf changedFile) parseJob {
	content, err := e.ReadFile(cf.path)
	if err != nil {
		return parseJob{fileID: cf.nodeID, path: cf.path, err: fmt.Errorf("read %s: %w", cf.path, err)}
	}

	parser := e.Parsers[path.Ext(cf.path)]

	result, err := parser.Parse(ctx, cf.path, content)
	if err != nil {
		return parseJob{fileID: cf.nodeID, path: cf.path, err: fmt.Errorf("parse %s: %w", cf.path, err)}
	}

	return parseJob{fileID: cf.nodeID, path: cf.path, content: content, result: result}
}

// writeParseResult persists one file's parse result and reports whether
// any Calls/Imports (topology) edge was upserted, the signal the caller
// uses to decide whether a global centrality invalidation is warranted.
func (e *GraphExtractor) writeParseResult(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, job parseJob,
) (bool, error) {
	defByQualified := map[string]int64{}

	var topologyChanged bool

	for _, def := range job.result.Definitions {
		meta := map[string]any{"kind": def.Kind, "span": def.Span}

		var docText string

		if doc, ok := job.result.DocComments[def.Name]; ok {
			docText = doc.Text
			meta["doc_comment"] = doc.Text
			meta["doc_comment_hash"] = doc.Hash
			meta["doc_comment_style"] = doc.Style
		}

		kind := homergraph.NodeFunction
		if def.Kind == "type" || def.Kind == "class" || def.Kind == "struct" || def.Kind == "interface" {
			kind = homergraph.NodeType
		}

		hash, hashErr := definitionContentHash(job.content, def.Span, docText)
		if hashErr != nil {
			return topologyChanged, fmt.Errorf("hash definition %s: %w", def.QualifiedName, hashErr)
		}

		defID, change, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
			Kind: kind, Name: def.QualifiedName, ContentHash: &hash, Metadata: meta,
		})
		if err != nil {
			return topologyChanged, fmt.Errorf("upsert definition %s: %w", def.QualifiedName, err)
		}

		stats.RecordChange(change)
		defByQualified[def.QualifiedName] = defID

		if change.WasStale {
			if _, clearErr := store.ClearSemanticForNode(ctx, defID); clearErr != nil {
				return topologyChanged, fmt.Errorf("clear semantic analyses for %s: %w", def.QualifiedName, clearErr)
			}
		}

		if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeBelongsTo,
			Members: []homergraph.Member{
				{NodeID: defID, Role: "member", Position: 0},
				{NodeID: job.fileID, Role: "file", Position: 1},
			},
			Confidence: 1.0,
		}); edgeErr != nil {
			return topologyChanged, fmt.Errorf("upsert belongs_to edge for %s: %w", def.QualifiedName, edgeErr)
		}

		stats.EdgesUpserted++
	}

	for _, ref := range job.result.References {
		callerID, hasCaller := defByQualified[ref.ContainingDef]
		if !hasCaller {
			continue
		}

		calleeID, err := e.resolveReference(ctx, store, ref.Name)
		if err != nil {
			continue
		}

		if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeCalls,
			Members: []homergraph.Member{
				{NodeID: callerID, Role: "from", Position: 0},
				{NodeID: calleeID, Role: "to", Position: 1},
			},
			Confidence: 1.0,
		}); edgeErr != nil {
			return topologyChanged, fmt.Errorf("upsert calls edge %s->%s: %w", ref.ContainingDef, ref.Name, edgeErr)
		}

		stats.EdgesUpserted++
		topologyChanged = topologyChanged || homergraph.IsTopologyKind(homergraph.EdgeCalls)
	}

	for _, imp := range job.result.Imports {
		if imp.TargetPath == "" {
			continue
		}

		target, err := store.GetNode(ctx, homergraph.NodeFile, imp.TargetPath)
		if err != nil {
			continue
		}

		if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeImports,
			Members: []homergraph.Member{
				{NodeID: job.fileID, Role: "from", Position: 0},
				{NodeID: target.ID, Role: "to", Position: 1},
			},
			Confidence: imp.Confidence,
		}); edgeErr != nil {
			return topologyChanged, fmt.Errorf("upsert imports edge %s->%s: %w", job.path, imp.TargetPath, edgeErr)
		}

		stats.EdgesUpserted++
		topologyChanged = topologyChanged || homergraph.IsTopologyKind(homergraph.EdgeImports)
	}

	return topologyChanged, nil
}

// resolveReference looks up a reference target by qualified or bare
// name against Function/Type nodes already in the store.
func (e *GraphExtractor) resolveReference(ctx context.Context, store *homergraph.Store, name string) (int64, error) {
	if n, err := store.GetNode(ctx, homergraph.NodeFunction, name); err == nil {
		return n.ID, nil
	}

	n, err := store.GetNode(ctx, homergraph.NodeType, name)
	if err != nil {
		return 0, err
	}

	return n.ID, nil
}
