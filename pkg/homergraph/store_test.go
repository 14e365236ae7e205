package homergraph_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homer-mine/homer/pkg/homergraph"
)

func openTestStore(t *testing.T) *homergraph.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	store, err := homergraph.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestUpsertNode_IdentityIsUnique(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	id1, change1, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodeFile, Name: "a.go",
	})
	require.NoError(t, err)
	assert.True(t, change1.IsNew)

	id2, change2, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodeFile, Name: "a.go",
	})
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "re-upserting the same (kind, name) identity returns the same node")
	assert.False(t, change2.IsNew)
	assert.False(t, change2.WasStale, "unchanged content hash should only touch last_extracted")
}

func TestUpsertNode_ContentHashChangeMarksStale(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	h1 := uint64(111)
	h2 := uint64(222)

	_, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodeFile, Name: "a.go", ContentHash: &h1,
	})
	require.NoError(t, err)

	_, change, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodeFile, Name: "a.go", ContentHash: &h2,
	})
	require.NoError(t, err)

	assert.True(t, change.WasStale)

	node, err := store.GetNode(ctx, homergraph.NodeFile, "a.go")
	require.NoError(t, err)
	require.NotNil(t, node.ContentHash)
	assert.Equal(t, h2, *node.ContentHash)
}

func TestUpsertHyperedge_IdentityKeyExcludesPosition(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	aID, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "a.go"})
	require.NoError(t, err)

	bID, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFunction, Name: "pkg.F"})
	require.NoError(t, err)

	id1, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeBelongsTo,
		Members: []homergraph.Member{
			{NodeID: bID, Role: "from", Position: 0},
			{NodeID: aID, Role: "to", Position: 1},
		},
		Confidence: 1.0,
	})
	require.NoError(t, err)

	// Re-upsert with members reordered (different position) — identity
	// must be unaffected since position is excluded from the key.
	id2, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeBelongsTo,
		Members: []homergraph.Member{
			{NodeID: aID, Role: "to", Position: 5},
			{NodeID: bID, Role: "from", Position: 9},
		},
		Confidence: 0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "identical (kind, role, node) set must collapse to one edge")

	count, err := store.CountHyperedgesByKind(ctx, homergraph.EdgeBelongsTo)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertHyperedge_DistinctMembersAreDistinctEdges(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	aID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "a.go"})
	bID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "b.go"})
	cID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "c.go"})

	_, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind:    homergraph.EdgeCoChanges,
		Members: []homergraph.Member{{NodeID: aID, Role: "member"}, {NodeID: bID, Role: "member"}},
	})
	require.NoError(t, err)

	_, err = store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind:    homergraph.EdgeCoChanges,
		Members: []homergraph.Member{{NodeID: aID, Role: "member"}, {NodeID: cID, Role: "member"}},
	})
	require.NoError(t, err)

	count, err := store.CountHyperedgesByKind(ctx, homergraph.EdgeCoChanges)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCheckpoint_GetSetRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	_, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetCheckpoint(ctx, homergraph.CheckpointGitLastSHA, "abc123"))

	value, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", value)

	require.NoError(t, store.SetCheckpoint(ctx, homergraph.CheckpointGitLastSHA, "def456"))

	value, _, err = store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	require.NoError(t, err)
	assert.Equal(t, "def456", value)
}

func TestCreateSnapshot_IsIdempotentByLabel(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	_, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "a.go"})
	require.NoError(t, err)

	snap, err := store.CreateSnapshot(ctx, "auto-1")
	require.NoError(t, err)
	assert.Equal(t, "auto-1", snap.Label)

	_, err = store.CreateSnapshot(ctx, "auto-1")
	require.ErrorIs(t, err, homergraph.ErrSnapshotExists)

	snapshots, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
}

func TestDiffSnapshots_ReportsAddedNodesAndEdges(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	aID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "a.go"})

	_, err := store.CreateSnapshot(ctx, "auto-1")
	require.NoError(t, err)

	bID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "b.go"})

	_, err = store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind:    homergraph.EdgeCoChanges,
		Members: []homergraph.Member{{NodeID: aID, Role: "member"}, {NodeID: bID, Role: "member"}},
	})
	require.NoError(t, err)

	_, err = store.CreateSnapshot(ctx, "auto-2")
	require.NoError(t, err)

	diff, err := store.DiffSnapshots(ctx, "auto-1", "auto-2")
	require.NoError(t, err)

	assert.Contains(t, diff.AddedNodes, "File:b.go")
	assert.Len(t, diff.AddedEdges, 1)
	assert.Empty(t, diff.RemovedNodes)
}

func TestSearch_MatchesNodeName(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	_, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "internal/widget.go"})
	require.NoError(t, err)

	results, err := store.Search(ctx, "widget", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "internal/widget.go", results[0].Name)
}

func TestAliasChain_ResolvesToNewestMember(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	aID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "src/a.rs"})
	bID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "src/b.rs"})

	_, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeAliases,
		Members: []homergraph.Member{
			{NodeID: aID, Role: "old"},
			{NodeID: bID, Role: "new"},
		},
		Confidence: 0.8,
	})
	require.NoError(t, err)

	canonical, err := store.ResolveCanonical(ctx, aID)
	require.NoError(t, err)
	assert.Equal(t, bID, canonical)

	chain, err := store.AliasChain(ctx, aID)
	require.NoError(t, err)
	assert.Equal(t, []int64{aID, bID}, chain)
}

func TestLoadSubgraph_ProjectsDirectedEdges(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	fID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFunction, Name: "pkg.F"})
	gID, _, _ := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFunction, Name: "pkg.G"})

	_, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind:       homergraph.EdgeCalls,
		Members:    []homergraph.Member{{NodeID: fID, Role: "from"}, {NodeID: gID, Role: "to"}},
		Confidence: 1.0,
	})
	require.NoError(t, err)

	sg, err := store.LoadSubgraph(ctx, homergraph.SubgraphFilter{Kinds: []homergraph.HyperedgeKind{homergraph.EdgeCalls}})
	require.NoError(t, err)

	require.Len(t, sg.Edges, 1)
	assert.Equal(t, fID, sg.Edges[0].FromID)
	assert.Equal(t, gID, sg.Edges[0].ToID)
}
