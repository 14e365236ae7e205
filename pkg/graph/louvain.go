package graph

import "sort"

// Community assigns each node id to a community id, the output of
// Louvain modularity optimization on the undirected projection of a Graph.
type Community map[int64]int64

// Louvain runs modularity optimization on the undirected view of g:
// every node starts in its own community; each pass greedily moves
// nodes to the neighbor community maximizing modularity gain; when no
// move improves modularity, communities collapse into super-nodes
// (intra-community weight becoming a self-loop) and the local-move
// passes repeat on the collapsed graph, until a level produces no
// move. The returned assignment maps every original node to its final
// community.
func Louvain(g *Graph) Community {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return Community{}
	}

	weight := buildUndirectedWeights(g)

	// Total edge weight is invariant under collapse, so one computation
	// serves every level.
	totalWeight := sumWeights(weight)

	assignment := make(Community, len(nodes))
	for _, id := range nodes {
		assignment[id] = id
	}

	if totalWeight == 0 {
		return assignment
	}

	levelNodes := nodes

	for {
		community := make(map[int64]int64, len(levelNodes))
		for _, id := range levelNodes {
			community[id] = id
		}

		moved := false

		for localMovePass(levelNodes, weight, community, totalWeight) {
			moved = true
		}

		if !moved {
			break
		}

		// Re-point every original node through its super-node's new
		// community before the super-nodes themselves collapse.
		for orig, c := range assignment {
			assignment[orig] = community[c]
		}

		weight, levelNodes = collapseCommunities(levelNodes, weight, community)
	}

	return assignment
}

// collapseCommunities builds the next level's graph: one node per
// community, parallel inter-community edges summed, intra-community
// weight kept as a self-loop.
func collapseCommunities(
	nodes []int64, weight map[int64][]weightedEdge, community map[int64]int64,
) (map[int64][]weightedEdge, []int64) {
	// Each undirected edge appears in both endpoints' adjacency lists,
	// so every aggregated pair is accumulated twice and halved below.
	agg := map[[2]int64]float64{}

	for _, id := range nodes {
		for _, e := range weight[id] {
			agg[orderedPair(community[id], community[e.to])] += e.weight

			// A self-loop sits in only one adjacency list; double it so
			// the halving below treats it like every other edge.
			if e.to == id {
				agg[orderedPair(community[id], community[id])] += e.weight
			}
		}
	}

	next := map[int64][]weightedEdge{}
	seen := map[int64]bool{}

	for pair, w := range agg {
		w /= 2
		seen[pair[0]] = true
		seen[pair[1]] = true

		if pair[0] == pair[1] {
			next[pair[0]] = append(next[pair[0]], weightedEdge{to: pair[0], weight: w})

			continue
		}

		next[pair[0]] = append(next[pair[0]], weightedEdge{to: pair[1], weight: w})
		next[pair[1]] = append(next[pair[1]], weightedEdge{to: pair[0], weight: w})
	}

	nextNodes := make([]int64, 0, len(seen))
	for id := range seen {
		nextNodes = append(nextNodes, id)
	}

	sort.Slice(nextNodes, func(i, j int) bool { return nextNodes[i] < nextNodes[j] })

	return next, nextNodes
}

type weightedEdge struct {
	to     int64
	weight float64
}

func buildUndirectedWeights(g *Graph) map[int64][]weightedEdge {
	weight := make(map[int64][]weightedEdge, len(g.Nodes()))

	seen := map[[2]int64]float64{}

	for _, id := range g.Nodes() {
		for _, e := range g.Out(id) {
			key := orderedPair(e.From, e.To)
			w := e.Weight

			if w == 0 {
				w = 1
			}

			seen[key] += w
		}
	}

	for pair, w := range seen {
		weight[pair[0]] = append(weight[pair[0]], weightedEdge{to: pair[1], weight: w})
		weight[pair[1]] = append(weight[pair[1]], weightedEdge{to: pair[0], weight: w})
	}

	return weight
}

func orderedPair(a, b int64) [2]int64 {
	if a < b {
		return [2]int64{a, b}
	}

	return [2]int64{b, a}
}

func sumWeights(weight map[int64][]weightedEdge) float64 {
	var total float64

	for _, edges := range weight {
		for _, e := range edges {
			total += e.weight
		}
	}

	return total / 2
}

func localMovePass(
	nodes []int64, weight map[int64][]weightedEdge, community map[int64]int64, totalWeight float64,
) bool {
	improved := false

	degree := make(map[int64]float64, len(nodes))
	for _, id := range nodes {
		for _, e := range weight[id] {
			degree[id] += e.weight

			// A collapsed community's self-loop contributes both ends.
			if e.to == id {
				degree[id] += e.weight
			}
		}
	}

	communityDegree := make(map[int64]float64, len(nodes))
	for _, id := range nodes {
		communityDegree[community[id]] += degree[id]
	}

	for _, id := range nodes {
		currentCommunity := community[id]

		neighborWeights := map[int64]float64{}

		for _, e := range weight[id] {
			if e.to == id {
				continue
			}

			neighborWeights[community[e.to]] += e.weight
		}

		communityDegree[currentCommunity] -= degree[id]

		bestCommunity, bestGain := currentCommunity, 0.0

		for candidate, edgeWeight := range neighborWeights {
			gain := modularityGain(edgeWeight, communityDegree[candidate], degree[id], totalWeight)
			if gain > bestGain {
				bestGain = gain
				bestCommunity = candidate
			}
		}

		community[id] = bestCommunity
		communityDegree[bestCommunity] += degree[id]

		if bestCommunity != currentCommunity {
			improved = true
		}
	}

	return improved
}

func modularityGain(edgeWeightToCommunity, communityDegree, nodeDegree, totalWeight float64) float64 {
	if totalWeight == 0 {
		return 0
	}

	return edgeWeightToCommunity - (communityDegree*nodeDegree)/(2*totalWeight)
}
