package analyze_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homer-mine/homer/pkg/analyze"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/homergraph"
)

func seedCommit(t *testing.T, ctx context.Context, store *homergraph.Store, sha, author string, ts time.Time, files map[string]int) int64 {
	t.Helper()

	commitID, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodeCommit, Name: sha,
		Metadata: map[string]any{"timestamp": ts.Format(time.RFC3339)},
	})
	require.NoError(t, err)

	authorID, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeContributor, Name: author})
	require.NoError(t, err)

	_, err = store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeAuthored,
		Members: []homergraph.Member{
			{NodeID: authorID, Role: "author", Position: 0},
			{NodeID: commitID, Role: "commit", Position: 1},
		},
		Confidence: 1.0,
	})
	require.NoError(t, err)

	for path, linesAdded := range files {
		fileID, _, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: path})
		require.NoError(t, err)

		_, err = store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeModifies,
			Members: []homergraph.Member{
				{NodeID: commitID, Role: "commit", Position: 0},
				{NodeID: fileID, Role: "file", Position: 1},
			},
			Confidence: 1.0,
			Metadata:   map[string]any{"lines_added": float64(linesAdded), "lines_deleted": float64(0)},
		})
		require.NoError(t, err)
	}

	return commitID
}

func TestBehavioralAnalyzer_Run_WritesPerFileMetrics(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedCommit(t, ctx, store, "c1", "ada@example.com", base, map[string]int{"main.go": 10})
	seedCommit(t, ctx, store, "c2", "grace@example.com", base.AddDate(0, 1, 0), map[string]int{"main.go": 5})

	a := analyze.NewBehavioralAnalyzer()

	stats, err := a.Run(ctx, store, &config.Config{Behavioral: config.BehavioralConfig{
		ChangeFrequencyWindowsDays: []int{30, 90, 365},
		SeedConfidence:             0.5,
		MinConfidence:              0.3,
		MinMarginalGain:            0.05,
		MaxGroupSize:               8,
	}})
	require.NoError(t, err)
	assert.Empty(t, stats.Errors)

	fileNode, err := store.GetNode(ctx, homergraph.NodeFile, "main.go")
	require.NoError(t, err)

	freq, err := store.GetAnalysis(ctx, fileNode.ID, homergraph.AnalysisChangeFrequency)
	require.NoError(t, err)
	assert.InDelta(t, 2, freq.Payload["total"], 0)

	churn, err := store.GetAnalysis(ctx, fileNode.ID, homergraph.AnalysisChurnVelocity)
	require.NoError(t, err)
	assert.InDelta(t, 15, churn.Payload["net_loc_growth"], 0)

	conc, err := store.GetAnalysis(ctx, fileNode.ID, homergraph.AnalysisContributorConcentration)
	require.NoError(t, err)
	assert.InDelta(t, 2, conc.Payload["unique_authors"], 0)
}

func TestBehavioralAnalyzer_Run_EmitsCoChangeClusterForFilesThatAlwaysChangeTogether(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	group := map[string]int{"a.go": 1, "b.go": 1, "c.go": 1}

	for i := 0; i < 5; i++ {
		seedCommit(t, ctx, store, "c"+string(rune('1'+i)), "ada@example.com", base.AddDate(0, i, 0), group)
	}

	a := analyze.NewBehavioralAnalyzer()

	cfg := &config.Config{Behavioral: config.BehavioralConfig{
		ChangeFrequencyWindowsDays: []int{30, 90, 365},
		SeedConfidence:             0.5,
		MinConfidence:              0.3,
		MinMarginalGain:            0.05,
		MaxGroupSize:               8,
	}}

	stats, err := a.Run(ctx, store, cfg)
	require.NoError(t, err)
	assert.Empty(t, stats.Errors)

	count, err := store.CountHyperedgesByKind(ctx, homergraph.EdgeCoChanges)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "identical-touch files should collapse into one cluster edge, not three pairs")

	aFile, err := store.GetNode(ctx, homergraph.NodeFile, "a.go")
	require.NoError(t, err)

	cluster, err := store.GetAnalysis(ctx, aFile.ID, homergraph.AnalysisCoChangeCluster)
	require.NoError(t, err)
	assert.InDelta(t, 3, cluster.Payload["cluster_size"], 0)
}
