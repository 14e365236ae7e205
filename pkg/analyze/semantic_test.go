package analyze_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homer-mine/homer/pkg/analyze"
	"github.com/homer-mine/homer/pkg/capability"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/homergraph"
)

// fakeSummarizer returns a canned payload and counts invocations.
type fakeSummarizer struct {
	calls atomic.Int64
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ capability.SummaryRequest) (map[string]any, error) {
	f.calls.Add(1)

	return map[string]any{
		"summary":          "does a thing",
		"design_rationale": "kept simple",
		"invariants":       "input is never nil",
	}, nil
}

func semanticTestConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{IOConcurrency: 2},
	}
}

func seedDefinition(t *testing.T, ctx context.Context, store *homergraph.Store, name string, hash uint64) int64 {
	t.Helper()

	id, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodeFunction, Name: name, ContentHash: &hash,
		Metadata: map[string]any{"doc_comment": "// " + name},
	})
	require.NoError(t, err)

	return id
}

func TestSemanticAnalyzerSkipsWithoutSummarizer(t *testing.T) {
	t.Parallel()

	store, err := homergraph.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	a := analyze.NewSemanticAnalyzer(nil, "model", "v1")

	rerun, err := a.NeedsRerun(context.Background(), store)
	require.NoError(t, err)
	assert.False(t, rerun)

	stats, err := a.Run(context.Background(), store, semanticTestConfig())
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
}

func TestSemanticAnalyzerWritesTrio(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := homergraph.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	id := seedDefinition(t, ctx, store, "pkg.Greet", 42)

	summarizer := &fakeSummarizer{}
	a := analyze.NewSemanticAnalyzer(summarizer, "model", "v1")

	stats, err := a.Run(ctx, store, semanticTestConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NodesWritten)
	assert.Equal(t, int64(1), summarizer.calls.Load())

	for _, kind := range []homergraph.AnalysisKind{
		homergraph.AnalysisSemanticSummary,
		homergraph.AnalysisDesignRationale,
		homergraph.AnalysisInvariantDescription,
	} {
		result, getErr := store.GetAnalysis(ctx, id, kind)
		require.NoError(t, getErr)
		require.NotNil(t, result, string(kind))
		assert.Equal(t, "000000000000002a", result.InputHash)
	}
}

func TestSemanticAnalyzerSkipsCurrentResults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := homergraph.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	seedDefinition(t, ctx, store, "pkg.Greet", 42)

	summarizer := &fakeSummarizer{}
	a := analyze.NewSemanticAnalyzer(summarizer, "model", "v1")

	_, err = a.Run(ctx, store, semanticTestConfig())
	require.NoError(t, err)

	// Second run: results carry the current input hash, nothing stale.
	stats, err := a.Run(ctx, store, semanticTestConfig())
	require.NoError(t, err)
	assert.Zero(t, stats.NodesWritten)
	assert.Equal(t, int64(1), summarizer.calls.Load())
}

func TestSemanticAnalyzerRecomputesOnHashChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := homergraph.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	seedDefinition(t, ctx, store, "pkg.Greet", 42)

	summarizer := &fakeSummarizer{}
	a := analyze.NewSemanticAnalyzer(summarizer, "model", "v1")

	_, err = a.Run(ctx, store, semanticTestConfig())
	require.NoError(t, err)

	seedDefinition(t, ctx, store, "pkg.Greet", 43)

	stats, err := a.Run(ctx, store, semanticTestConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NodesWritten)
	assert.Equal(t, int64(2), summarizer.calls.Load())
}
