package graph_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/homer-mine/homer/pkg/graph"
)

func ringGraph(n int) *graph.Graph {
	nodes := make([]int64, n)
	edges := make([]graph.Edge, 0, n)

	for i := 0; i < n; i++ {
		nodes[i] = int64(i)
		edges = append(edges, graph.Edge{From: int64(i), To: int64((i + 1) % n), Weight: 1})
	}

	return graph.New(nodes, edges)
}

func TestPageRank_SumsToOneOnStronglyConnectedGraph(t *testing.T) {
	t.Parallel()

	g := ringGraph(5)

	scores := graph.PageRank(g, graph.PageRankParams{Damping: 0.85, Convergence: 1e-9, IterationCap: 200})

	var total float64
	for _, s := range scores {
		total += s
	}

	assert.InDelta(t, 1.0, total, 1e-6)
}

func TestRank_AssignsTotalOrderWithTieBreakByID(t *testing.T) {
	t.Parallel()

	scores := map[int64]float64{1: 0.5, 2: 0.5, 3: 0.9}
	ranked := graph.Rank(scores, []int64{1, 2, 3})

	require := assert.New(t)
	require.Len(ranked, 3)
	require.Equal(int64(3), ranked[0].NodeID)
	require.Equal(1, ranked[0].Rank)
	// Tie between 1 and 2 broken by ascending node id.
	require.Equal(int64(1), ranked[1].NodeID)
	require.Equal(int64(2), ranked[2].NodeID)
}

func TestRank_EveryNodeReceivesARank(t *testing.T) {
	t.Parallel()

	scores := map[int64]float64{}
	ranked := graph.Rank(scores, []int64{10, 20, 30})

	assert.Len(t, ranked, 3)

	for _, r := range ranked {
		assert.Positive(t, r.Rank)
	}
}

func TestMinMaxNormalize_ScalesIntoUnitInterval(t *testing.T) {
	t.Parallel()

	values := map[int64]float64{1: 0, 2: 5, 3: 10}
	normalized := graph.MinMaxNormalize(values)

	assert.InDelta(t, 0.0, normalized[1], 1e-9)
	assert.InDelta(t, 0.5, normalized[2], 1e-9)
	assert.InDelta(t, 1.0, normalized[3], 1e-9)
}

func TestMinMaxNormalize_ConstantValuesYieldZero(t *testing.T) {
	t.Parallel()

	values := map[int64]float64{1: 3, 2: 3}
	normalized := graph.MinMaxNormalize(values)

	assert.InDelta(t, 0.0, normalized[1], 1e-9)
	assert.InDelta(t, 0.0, normalized[2], 1e-9)
}

func TestBetweenness_ExactBelowThreshold(t *testing.T) {
	t.Parallel()

	// A -> B -> C: B sits on the only shortest path between A and C.
	g := graph.New([]int64{1, 2, 3}, []graph.Edge{
		{From: 1, To: 2, Weight: 1},
		{From: 2, To: 3, Weight: 1},
	})

	result := graph.Betweenness(g, 50000, rand.New(rand.NewSource(1)))

	assert.Equal(t, graph.TierExact, result.Tier)
	assert.Positive(t, result.Score[2])
}

func TestBetweenness_SamplesAboveThreshold(t *testing.T) {
	t.Parallel()

	g := ringGraph(10)

	result := graph.Betweenness(g, 3, rand.New(rand.NewSource(1)))

	assert.Equal(t, graph.TierSampled, result.Tier)
}

func TestLouvain_GroupsDenselyConnectedNodes(t *testing.T) {
	t.Parallel()

	// Two triangles {1,2,3} and {4,5,6} joined by a single bridge edge.
	g := graph.New([]int64{1, 2, 3, 4, 5, 6}, []graph.Edge{
		{From: 1, To: 2, Weight: 1}, {From: 2, To: 3, Weight: 1}, {From: 3, To: 1, Weight: 1},
		{From: 4, To: 5, Weight: 1}, {From: 5, To: 6, Weight: 1}, {From: 6, To: 4, Weight: 1},
		{From: 3, To: 4, Weight: 1},
	})

	communities := graph.Louvain(g)

	assert.Equal(t, communities[1], communities[2])
	assert.Equal(t, communities[2], communities[3])
	assert.Equal(t, communities[4], communities[5])
	assert.Equal(t, communities[5], communities[6])
}

func TestLouvain_CollapsesAcrossLevels(t *testing.T) {
	t.Parallel()

	// Four triangles chained by single bridge edges. The first
	// local-move level merges each triangle; separating the triangle
	// pairs on either side of the middle bridge requires at least one
	// collapse round over the super-nodes.
	nodes := make([]int64, 12)
	edges := make([]graph.Edge, 0, 15)

	for t3 := int64(0); t3 < 4; t3++ {
		base := t3 * 3
		nodes[base], nodes[base+1], nodes[base+2] = base+1, base+2, base+3
		edges = append(edges,
			graph.Edge{From: base + 1, To: base + 2, Weight: 1},
			graph.Edge{From: base + 2, To: base + 3, Weight: 1},
			graph.Edge{From: base + 3, To: base + 1, Weight: 1},
		)
	}

	edges = append(edges,
		graph.Edge{From: 3, To: 4, Weight: 1},
		graph.Edge{From: 6, To: 7, Weight: 1},
		graph.Edge{From: 9, To: 10, Weight: 1},
	)

	communities := graph.Louvain(graph.New(nodes, edges))

	// Every original node keeps an assignment after collapsing.
	assert.Len(t, communities, 12)

	// Triangle members never split.
	for t3 := int64(0); t3 < 4; t3++ {
		base := t3 * 3
		assert.Equal(t, communities[base+1], communities[base+2])
		assert.Equal(t, communities[base+2], communities[base+3])
	}

	// The two ends of the chain stay apart.
	assert.NotEqual(t, communities[1], communities[12])
}

func TestMedian_OddAndEvenCounts(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, graph.Median([]float64{3, 1, 2}), 1e-9)
	assert.InDelta(t, 2.5, graph.Median([]float64{1, 2, 3, 4}), 1e-9)
	assert.InDelta(t, 0.0, graph.Median(nil), 1e-9)
}
