package graph

import "math"

// HITSScore is the per-node hub/authority pair from mutual power iteration.
type HITSScore struct {
	Hub       float64
	Authority float64
}

// HITS runs mutual hub/authority power iteration with the same
// convergence parameters as PageRank (damping is unused by HITS but the
// struct is shared for configuration simplicity at the call site).
func HITS(g *Graph, params PageRankParams) map[int64]HITSScore {
	nodes := g.Nodes()

	hub := make(map[int64]float64, len(nodes))
	auth := make(map[int64]float64, len(nodes))

	for _, id := range nodes {
		hub[id] = 1.0
		auth[id] = 1.0
	}

	for iter := 0; iter < params.IterationCap; iter++ {
		newAuth := make(map[int64]float64, len(nodes))

		for _, id := range nodes {
			var sum float64
			for _, e := range g.In(id) {
				sum += hub[e.From]
			}

			newAuth[id] = sum
		}

		normalize(newAuth)

		newHub := make(map[int64]float64, len(nodes))

		for _, id := range nodes {
			var sum float64
			for _, e := range g.Out(id) {
				sum += newAuth[e.To]
			}

			newHub[id] = sum
		}

		normalize(newHub)

		authDelta := l1Delta(auth, newAuth)
		hubDelta := l1Delta(hub, newHub)

		auth = newAuth
		hub = newHub

		if authDelta+hubDelta < params.Convergence {
			break
		}
	}

	out := make(map[int64]HITSScore, len(nodes))
	for _, id := range nodes {
		out[id] = HITSScore{Hub: hub[id], Authority: auth[id]}
	}

	return out
}

func normalize(scores map[int64]float64) {
	var sumSquares float64

	for _, v := range scores {
		sumSquares += v * v
	}

	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return
	}

	for id, v := range scores {
		scores[id] = v / norm
	}
}
