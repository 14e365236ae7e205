package analyze_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homer-mine/homer/pkg/analyze"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/homergraph"
)

func seedImportEdge(t *testing.T, ctx context.Context, store *homergraph.Store, from, to int64) {
	t.Helper()

	_, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeImports,
		Members: []homergraph.Member{
			{NodeID: from, Role: "from", Position: 0},
			{NodeID: to, Role: "to", Position: 1},
		},
		Confidence: 1.0,
	})
	require.NoError(t, err)
}

func TestCommunityAnalyzer_Run_GroupsDenselyConnectedDirectoryIntoAlignedCommunity(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	upsertFile := func(path string) int64 {
		id, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: path})
		require.NoError(t, err)

		return id
	}

	a1 := upsertFile("pkg/analyze/behavioral.go")
	a2 := upsertFile("pkg/analyze/centrality.go")
	a3 := upsertFile("pkg/analyze/community.go")

	b1 := upsertFile("pkg/render/agents.go")
	b2 := upsertFile("pkg/render/riskmap.go")

	// pkg/analyze forms a tight triangle.
	seedImportEdge(t, ctx, store, a1, a2)
	seedImportEdge(t, ctx, store, a2, a3)
	seedImportEdge(t, ctx, store, a3, a1)

	// pkg/render forms its own pair, loosely bridged to analyze.
	seedImportEdge(t, ctx, store, b1, b2)
	seedImportEdge(t, ctx, store, b1, a1)

	a := analyze.NewCommunityAnalyzer()

	stats, err := a.Run(ctx, store, &config.Config{})
	require.NoError(t, err)
	assert.Empty(t, stats.Errors)

	assignment, err := store.GetAnalysis(ctx, a1, homergraph.AnalysisCommunityAssignment)
	require.NoError(t, err)
	assert.NotNil(t, assignment.Payload["community_id"])
	assert.NotNil(t, assignment.Payload["directory_aligned"])
}

func TestCommunityAnalyzer_Run_SkipsNodesWithNoImportEdge(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	orphanID, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: "orphan.go"})
	require.NoError(t, err)

	a := analyze.NewCommunityAnalyzer()

	_, err = a.Run(ctx, store, &config.Config{})
	require.NoError(t, err)

	_, err = store.GetAnalysis(ctx, orphanID, homergraph.AnalysisCommunityAssignment)
	assert.Error(t, err)
}
