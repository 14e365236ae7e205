package graph

// PageRankParams bundles the power-iteration tuning used by both
// PageRank and HITS.
type PageRankParams struct {
	Damping      float64
	Convergence  float64
	IterationCap int
}

// PageRank runs power iteration with the given damping, convergence
// threshold (on L1 delta between iterations), and a hard iteration cap.
// Dangling nodes (no outgoing edges) redistribute their mass uniformly.
func PageRank(g *Graph, params PageRankParams) map[int64]float64 {
	nodes := g.Nodes()
	n := float64(len(nodes))

	if n == 0 {
		return map[int64]float64{}
	}

	scores := make(map[int64]float64, len(nodes))
	for _, id := range nodes {
		scores[id] = 1.0 / n
	}

	outDegree := make(map[int64]int, len(nodes))
	for _, id := range nodes {
		outDegree[id] = len(g.Out(id))
	}

	for iter := 0; iter < params.IterationCap; iter++ {
		next := make(map[int64]float64, len(nodes))

		var danglingMass float64

		for _, id := range nodes {
			if outDegree[id] == 0 {
				danglingMass += scores[id]
			}
		}

		base := (1 - params.Damping) / n
		danglingShare := params.Damping * danglingMass / n

		for _, id := range nodes {
			next[id] = base + danglingShare
		}

		for _, id := range nodes {
			if outDegree[id] == 0 {
				continue
			}

			share := params.Damping * scores[id] / float64(outDegree[id])
			for _, e := range g.Out(id) {
				next[e.To] += share
			}
		}

		delta := l1Delta(scores, next)
		scores = next

		if delta < params.Convergence {
			break
		}
	}

	return scores
}

func l1Delta(a, b map[int64]float64) float64 {
	var total float64

	for id, av := range a {
		diff := b[id] - av
		if diff < 0 {
			diff = -diff
		}

		total += diff
	}

	return total
}
