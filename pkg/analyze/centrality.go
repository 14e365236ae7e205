package analyze

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/graph"
	"github.com/homer-mine/homer/pkg/homergraph"
)

// centralitySeed fixes the source for Betweenness's sampling above the
// approx threshold so repeated runs over an unchanged graph agree.
const centralitySeed = 1

// Salience quadrant labels, classified by splitting composite salience
// and raw change frequency at their respective medians.
const (
	QuadrantActiveHotspot      = "ActiveHotspot"
	QuadrantFoundationalStable = "FoundationalStable"
	QuadrantPeripheralActive   = "PeripheralActive"
	QuadrantQuietLeaf          = "QuietLeaf"
)

// CentralityAnalyzer runs PageRank, Brandes betweenness, and HITS over
// the call/import topology, then folds the result together with the
// Behavioral Analyzer's per-file history into a composite salience
// score and a four-quadrant classification.
type CentralityAnalyzer struct{}

// NewCentralityAnalyzer builds a CentralityAnalyzer.
func NewCentralityAnalyzer() *CentralityAnalyzer { return &CentralityAnalyzer{} }

func (a *CentralityAnalyzer) Name() string { return "centrality" }

func (a *CentralityAnalyzer) Produces() []homergraph.AnalysisKind {
	return []homergraph.AnalysisKind{
		homergraph.AnalysisPageRank,
		homergraph.AnalysisBetweennessCentrality,
		homergraph.AnalysisHITSScore,
		homergraph.AnalysisCompositeSalience,
	}
}

// Requires declares a dependency on the Behavioral Analyzer's outputs:
// composite salience folds in change frequency and bus factor, so the
// scheduler must run behavioral analysis first.
func (a *CentralityAnalyzer) Requires() []homergraph.AnalysisKind {
	return []homergraph.AnalysisKind{
		homergraph.AnalysisChangeFrequency,
		homergraph.AnalysisContributorConcentration,
	}
}

func (a *CentralityAnalyzer) NeedsRerun(context.Context, *homergraph.Store) (bool, error) {
	return true, nil
}

func (a *CentralityAnalyzer) Run(ctx context.Context, store *homergraph.Store, cfg *config.Config) (Stats, error) {
	stats := Stats{}

	sg, err := store.LoadSubgraph(ctx, homergraph.SubgraphFilter{
		Kinds: []homergraph.HyperedgeKind{homergraph.EdgeCalls, homergraph.EdgeImports},
	})
	if err != nil {
		return stats, fmt.Errorf("load call/import subgraph: %w", err)
	}

	nodeIDs := topologyNodeIDs(sg)
	if len(nodeIDs) == 0 {
		return stats, nil
	}

	edges := make([]graph.Edge, 0, len(sg.Edges))
	for _, e := range sg.Edges {
		edges = append(edges, graph.Edge{From: e.FromID, To: e.ToID, Weight: e.Confidence})
	}

	g := graph.New(nodeIDs, edges)

	params := graph.PageRankParams{
		Damping:      cfg.Centrality.Damping,
		Convergence:  cfg.Centrality.Convergence,
		IterationCap: cfg.Centrality.IterationCap,
	}

	pageRank := graph.PageRank(g, params)
	betweenness := graph.Betweenness(g, cfg.Centrality.ApproxThreshold, rand.New(rand.NewSource(centralitySeed)))
	hits := graph.HITS(g, params)

	authority := make(map[int64]float64, len(hits))
	hub := make(map[int64]float64, len(hits))

	for id, score := range hits {
		authority[id] = score.Authority
		hub[id] = score.Hub
	}

	pageRankRank := rankByNodeID(pageRank, nodeIDs)
	betweennessRank := rankByNodeID(betweenness.Score, nodeIDs)

	for _, id := range nodeIDs {
		if writeErr := store.WriteAnalysis(ctx, id, homergraph.AnalysisPageRank,
			map[string]any{"score": pageRank[id], "rank": pageRankRank[id]}, ""); writeErr != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("write pagerank for node %d: %w", id, writeErr))

			continue
		}

		stats.NodesWritten++

		if writeErr := store.WriteAnalysis(ctx, id, homergraph.AnalysisBetweennessCentrality,
			map[string]any{
				"score":      betweenness.Score[id],
				"rank":       betweennessRank[id],
				"graph_tier": string(betweenness.Tier),
			}, ""); writeErr != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("write betweenness for node %d: %w", id, writeErr))

			continue
		}

		stats.NodesWritten++

		if writeErr := store.WriteAnalysis(ctx, id, homergraph.AnalysisHITSScore,
			map[string]any{"hub": hub[id], "authority": authority[id]}, ""); writeErr != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("write hits for node %d: %w", id, writeErr))

			continue
		}

		stats.NodesWritten++
	}

	written, salienceErr := a.writeCompositeSalience(ctx, store, cfg, nodeIDs, pageRank, betweenness.Score, authority)
	stats.NodesWritten += written

	if salienceErr != nil {
		stats.Errors = append(stats.Errors, salienceErr)
	}

	return stats, nil
}

// rankByNodeID assigns dense 1-based ranks by score descending, ties
// broken by node id ascending. Zero-score nodes still receive a rank.
func rankByNodeID(scores map[int64]float64, nodeIDs []int64) map[int64]int {
	ranked := graph.Rank(scores, nodeIDs)

	out := make(map[int64]int, len(ranked))
	for _, r := range ranked {
		out[r.NodeID] = r.Rank
	}

	return out
}

// topologyNodeIDs collects the node ids that actually participate in
// the call/import topology — nodes with no structural edge at all
// (an orphan File never imported or a data-only Type) get no
// centrality score, which is the expected behavior since PageRank,
// betweenness, and HITS are undefined over an isolated vertex.
func topologyNodeIDs(sg *homergraph.Subgraph) []int64 {
	seen := map[int64]bool{}

	for _, e := range sg.Edges {
		seen[e.FromID] = true
		seen[e.ToID] = true
	}

	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// writeCompositeSalience folds structural centrality together with the
// Behavioral Analyzer's change frequency and bus factor, restricted to
// nodes that actually carry those behavioral results (in practice,
// File nodes — Function/Type nodes have no Modifies history of their
// own). The quadrant classification splits on the median of the
// resulting salience scores and the median of raw change frequency.
func (a *CentralityAnalyzer) writeCompositeSalience(
	ctx context.Context, store *homergraph.Store, cfg *config.Config,
	nodeIDs []int64, pageRank, betweenness, authority map[int64]float64,
) (int, error) {
	changeFreq := map[int64]float64{}
	busFactor := map[int64]float64{}

	for _, id := range nodeIDs {
		freqResult, err := store.GetAnalysis(ctx, id, homergraph.AnalysisChangeFrequency)
		if err != nil {
			continue
		}

		concResult, err := store.GetAnalysis(ctx, id, homergraph.AnalysisContributorConcentration)
		if err != nil {
			continue
		}

		changeFreq[id] = asFloat(freqResult.Payload["total"])
		busFactor[id] = asFloat(concResult.Payload["bus_factor"])
	}

	if len(changeFreq) == 0 {
		return 0, nil
	}

	normPR := graph.MinMaxNormalize(subset(pageRank, changeFreq))
	normBT := graph.MinMaxNormalize(subset(betweenness, changeFreq))
	normAuth := graph.MinMaxNormalize(subset(authority, changeFreq))
	normChurn := graph.MinMaxNormalize(changeFreq)
	normBus := graph.MinMaxNormalize(busFactor)

	w := cfg.Centrality.SalienceWeights

	salience := make(map[int64]float64, len(changeFreq))
	for id := range changeFreq {
		salience[id] = w.PageRank*normPR[id] +
			w.Betweenness*normBT[id] +
			w.Authority*normAuth[id] +
			w.Churn*normChurn[id] +
			w.BusFactor*(1-normBus[id])
	}

	salienceValues := make([]float64, 0, len(salience))
	changeFreqValues := make([]float64, 0, len(changeFreq))

	for id := range salience {
		salienceValues = append(salienceValues, salience[id])
		changeFreqValues = append(changeFreqValues, changeFreq[id])
	}

	salienceMedian := graph.Median(salienceValues)
	changeFreqMedian := graph.Median(changeFreqValues)

	rankByID := rankByNodeID(salience, sortedKeys(salience))

	written := 0

	for id, score := range salience {
		quadrant := classifyQuadrant(score >= salienceMedian, changeFreq[id] >= changeFreqMedian)

		payload := map[string]any{
			"score":            score,
			"rank":             rankByID[id],
			"quadrant":         quadrant,
			"pagerank_norm":    normPR[id],
			"betweenness_norm": normBT[id],
			"authority_norm":   normAuth[id],
			"churn_norm":       normChurn[id],
			"bus_factor_norm":  normBus[id],
		}

		if err := store.WriteAnalysis(ctx, id, homergraph.AnalysisCompositeSalience, payload, ""); err != nil {
			return written, fmt.Errorf("write composite salience for node %d: %w", id, err)
		}

		written++
	}

	return written, nil
}

// classifyQuadrant implements the fixed 2x2 split of salience.
func classifyQuadrant(highCentrality, highChurn bool) string {
	switch {
	case highCentrality && highChurn:
		return QuadrantActiveHotspot
	case highCentrality && !highChurn:
		return QuadrantFoundationalStable
	case !highCentrality && highChurn:
		return QuadrantPeripheralActive
	default:
		return QuadrantQuietLeaf
	}
}

func subset(values, keys map[int64]float64) map[int64]float64 {
	out := make(map[int64]float64, len(keys))
	for id := range keys {
		out[id] = values[id]
	}

	return out
}

func sortedKeys(m map[int64]float64) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func asFloat(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}

	return f
}
