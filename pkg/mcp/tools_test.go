package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homer-mine/homer/pkg/homergraph"
)

func newTestServer(t *testing.T) (*Server, *homergraph.Store) {
	t.Helper()

	store, err := homergraph.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewServer(ServerDeps{Store: store}), store
}

func seedFileWithAnalyses(t *testing.T, ctx context.Context, store *homergraph.Store, path string, salience float64, busFactor, changes int) int64 {
	t.Helper()

	id, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: path})
	require.NoError(t, err)

	require.NoError(t, store.WriteAnalysis(ctx, id, homergraph.AnalysisCompositeSalience,
		map[string]any{"score": salience, "classification": "ActiveHotspot"}, "h"))
	require.NoError(t, store.WriteAnalysis(ctx, id, homergraph.AnalysisContributorConcentration,
		map[string]any{"bus_factor": busFactor}, "h"))
	require.NoError(t, store.WriteAnalysis(ctx, id, homergraph.AnalysisChangeFrequency,
		map[string]any{"total": changes}, "h"))

	return id
}

func TestListToolNames(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	names := srv.ListToolNames()
	assert.Len(t, names, toolCount)
	assert.Contains(t, names, ToolNameSearch)
	assert.Contains(t, names, ToolNameRisk)
	assert.Contains(t, names, ToolNameSnapshots)
}

func TestHandleSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, store := newTestServer(t)

	_, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "pkg/serve/main.go"})
	require.NoError(t, err)
	_, _, err = store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFunction, Name: "serve"})
	require.NoError(t, err)

	result, out, err := srv.handleSearch(ctx, nil, SearchInput{Query: "serve"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.NotEmpty(t, out.Matches)

	result, _, err = srv.handleSearch(ctx, nil, SearchInput{Query: "serve", Kind: "Function"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestHandleSearchValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, _ := newTestServer(t)

	result, _, err := srv.handleSearch(ctx, nil, SearchInput{Query: ""})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, _, err = srv.handleSearch(ctx, nil, SearchInput{Query: "x", Kind: "Nonsense"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSalienceRanksDescending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, store := newTestServer(t)

	seedFileWithAnalyses(t, ctx, store, "low.go", 0.2, 5, 2)
	seedFileWithAnalyses(t, ctx, store, "high.go", 0.9, 1, 30)

	_, out, err := srv.handleSalience(ctx, nil, SalienceInput{})
	require.NoError(t, err)
	require.Len(t, out.Files, 2)
	assert.Equal(t, "high.go", out.Files[0].FilePath)
	assert.Equal(t, "ActiveHotspot", out.Files[0].Classification)
}

func TestHandleRiskUsesSharedMetric(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, store := newTestServer(t)

	// 0.4*0.9 + 0.30 + 0.30 = 0.96.
	seedFileWithAnalyses(t, ctx, store, "hot.go", 0.9, 1, 30)

	_, out, err := srv.handleRisk(ctx, nil, RiskInput{})
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	assert.InDelta(t, 0.96, out.Files[0].RiskScore, 1e-9)
	assert.Equal(t, "critical", out.Files[0].RiskLevel)
}

func TestHandleCoChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, store := newTestServer(t)

	var ids []int64

	for _, name := range []string{"a.go", "b.go", "c.go"} {
		id, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: name})
		require.NoError(t, err)

		ids = append(ids, id)
	}

	members := make([]homergraph.Member, len(ids))
	for i, id := range ids {
		members[i] = homergraph.Member{NodeID: id, Role: "member", Position: i}
	}

	_, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeCoChanges, Members: members, Confidence: 0.8,
	})
	require.NoError(t, err)

	_, out, err := srv.handleCoChanges(ctx, nil, CoChangesInput{})
	require.NoError(t, err)
	require.Len(t, out.Clusters, 1)
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, out.Clusters[0].Files)
	assert.InDelta(t, 0.8, out.Clusters[0].Confidence, 1e-9)

	// Path filter excludes clusters not containing the path.
	_, out, err = srv.handleCoChanges(ctx, nil, CoChangesInput{Path: "zzz.go"})
	require.NoError(t, err)
	assert.Empty(t, out.Clusters)
}

func TestHandleSnapshotsListAndDiff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, store := newTestServer(t)

	_, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "a.go"})
	require.NoError(t, err)

	_, err = store.CreateSnapshot(ctx, "v1")
	require.NoError(t, err)

	_, _, err = store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "b.go"})
	require.NoError(t, err)

	_, err = store.CreateSnapshot(ctx, "v2")
	require.NoError(t, err)

	_, out, err := srv.handleSnapshots(ctx, nil, SnapshotsInput{})
	require.NoError(t, err)
	assert.Len(t, out.Snapshots, 2)

	_, out, err = srv.handleSnapshots(ctx, nil, SnapshotsInput{From: "v1", To: "v2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"File:b.go"}, out.AddedNodes)
	assert.Empty(t, out.RemovedNodes)

	result, _, err := srv.handleSnapshots(ctx, nil, SnapshotsInput{From: "v1"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAliases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, store := newTestServer(t)

	oldID, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "src/a.rs"})
	require.NoError(t, err)

	newID, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "src/b.rs"})
	require.NoError(t, err)

	_, err = store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeAliases,
		Members: []homergraph.Member{
			{NodeID: oldID, Role: "old", Position: 0},
			{NodeID: newID, Role: "new", Position: 1},
		},
		Confidence: 0.9,
	})
	require.NoError(t, err)

	_, out, err := srv.handleAliases(ctx, nil, AliasesInput{Path: "src/a.rs"})
	require.NoError(t, err)
	assert.Equal(t, "src/b.rs", out.Canonical)

	result, _, err := srv.handleAliases(ctx, nil, AliasesInput{Path: "missing.rs"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
