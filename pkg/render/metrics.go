package render

import (
	"context"
	"sort"

	"github.com/homer-mine/homer/pkg/homergraph"
)

// asFloat coerces an analysis payload value decoded from JSON (always
// float64, int, or nil) to float64, defaulting to 0 for anything else.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// fileSalience pairs a File node with its composite salience score.
type fileSalience struct {
	Node  homergraph.Node
	Score float64
}

// topSalientFiles loads every File node carrying a CompositeSalience
// result and returns the top n by score descending, ties broken by
// node id ascending to match the analyzer's own deterministic ranking.
func topSalientFiles(ctx context.Context, store *homergraph.Store, n int) ([]fileSalience, error) {
	files, err := store.ListNodesByKind(ctx, homergraph.NodeFile)
	if err != nil {
		return nil, err
	}

	scored := make([]fileSalience, 0, len(files))

	for _, f := range files {
		result, analysisErr := store.GetAnalysis(ctx, f.ID, homergraph.AnalysisCompositeSalience)
		if analysisErr != nil {
			continue
		}

		scored = append(scored, fileSalience{Node: f, Score: asFloat(result.Payload["score"])})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}

		return scored[i].Node.ID < scored[j].Node.ID
	})

	if n >= 0 && len(scored) > n {
		scored = scored[:n]
	}

	return scored, nil
}
