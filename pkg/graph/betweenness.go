package graph

import (
	"math"
	"math/rand"
)

// GraphTier tags whether a betweenness result is exact or sampled,
// surfaced so downstream consumers know the precision they're reading.
type GraphTier string

// Recognized graph tiers.
const (
	TierExact   GraphTier = "exact"
	TierSampled GraphTier = "sampled"
)

// BetweennessResult pairs a node's betweenness score with the precision
// tier of the computation that produced it.
type BetweennessResult struct {
	Score map[int64]float64
	Tier  GraphTier
}

// Betweenness runs Brandes' algorithm exactly when the node count is at
// or below approxThreshold; above that it falls back to k-source
// sampling with k ~= sqrt(V), extrapolating partial shortest-path
// counts into a whole-graph estimate. rng must be non-nil for
// reproducible sampling in tests; callers typically pass a
// seeded *rand.Rand derived from the run's deterministic seed.
func Betweenness(g *Graph, approxThreshold int, rng *rand.Rand) BetweennessResult {
	nodes := g.Nodes()

	if len(nodes) <= approxThreshold {
		return BetweennessResult{Score: brandes(g, nodes), Tier: TierExact}
	}

	k := int(math.Sqrt(float64(len(nodes))))
	if k < 1 {
		k = 1
	}

	sources := sampleSources(nodes, k, rng)
	partial := brandes(g, sources)

	scale := float64(len(nodes)) / float64(len(sources))
	for id := range partial {
		partial[id] *= scale
	}

	return BetweennessResult{Score: partial, Tier: TierSampled}
}

func sampleSources(nodes []int64, k int, rng *rand.Rand) []int64 {
	if k >= len(nodes) {
		return nodes
	}

	shuffled := append([]int64(nil), nodes...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	return shuffled[:k]
}

// brandes computes betweenness centrality contributions from the given
// source set using Brandes' single-source accumulation per source.
func brandes(g *Graph, sources []int64) map[int64]float64 {
	scores := make(map[int64]float64, len(g.Nodes()))
	for _, id := range g.Nodes() {
		scores[id] = 0
	}

	for _, s := range sources {
		accumulateFromSource(g, s, scores)
	}

	return scores
}

func accumulateFromSource(g *Graph, s int64, scores map[int64]float64) {
	stack := []int64{}
	predecessors := map[int64][]int64{}
	sigma := map[int64]float64{s: 1}
	dist := map[int64]int{s: 0}
	queue := []int64{s}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)

		for _, e := range g.Out(v) {
			w := e.To

			if _, seen := dist[w]; !seen {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}

			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				predecessors[w] = append(predecessors[w], v)
			}
		}
	}

	delta := map[int64]float64{}

	for i := len(stack) - 1; i >= 0; i-- {
		w := stack[i]
		for _, v := range predecessors[w] {
			delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
		}

		if w != s {
			scores[w] += delta[w]
		}
	}
}
