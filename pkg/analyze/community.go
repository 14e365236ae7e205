package analyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/graph"
	"github.com/homer-mine/homer/pkg/homergraph"
)

// directoryPrefixDepth is the minimum shared directory depth (File node
// names are slash-separated repo-relative paths) a community must
// exhibit to be called directory-aligned.
const directoryPrefixDepth = 2

// CommunityAnalyzer runs Louvain modularity optimization over the
// undirected projection of the import graph and tags each resulting
// community with whether it coincides with a package/directory
// boundary, the signal a risk map uses to distinguish an organic
// module from a cross-cutting one.
type CommunityAnalyzer struct{}

// NewCommunityAnalyzer builds a CommunityAnalyzer.
func NewCommunityAnalyzer() *CommunityAnalyzer { return &CommunityAnalyzer{} }

func (a *CommunityAnalyzer) Name() string { return "community" }

func (a *CommunityAnalyzer) Produces() []homergraph.AnalysisKind {
	return []homergraph.AnalysisKind{homergraph.AnalysisCommunityAssignment}
}

func (a *CommunityAnalyzer) Requires() []homergraph.AnalysisKind { return nil }

func (a *CommunityAnalyzer) NeedsRerun(context.Context, *homergraph.Store) (bool, error) {
	return true, nil
}

func (a *CommunityAnalyzer) Run(ctx context.Context, store *homergraph.Store, _ *config.Config) (Stats, error) {
	stats := Stats{}

	sg, err := store.LoadSubgraph(ctx, homergraph.SubgraphFilter{
		Kinds: []homergraph.HyperedgeKind{homergraph.EdgeImports},
	})
	if err != nil {
		return stats, fmt.Errorf("load import subgraph: %w", err)
	}

	nodeIDs := topologyNodeIDs(sg)
	if len(nodeIDs) == 0 {
		return stats, nil
	}

	nameByID := make(map[int64]string, len(sg.Nodes))
	for _, n := range sg.Nodes {
		nameByID[n.ID] = n.Name
	}

	edges := make([]graph.Edge, 0, len(sg.Edges))
	for _, e := range sg.Edges {
		edges = append(edges, graph.Edge{From: e.FromID, To: e.ToID, Weight: e.Confidence})
	}

	g := graph.New(nodeIDs, edges)
	communities := graph.Louvain(g)

	members := map[int64][]int64{}
	for id, communityID := range communities {
		members[communityID] = append(members[communityID], id)
	}

	aligned := map[int64]bool{}
	for communityID, ids := range members {
		aligned[communityID] = isDirectoryAligned(ids, nameByID)
	}

	for _, id := range nodeIDs {
		communityID := communities[id]

		payload := map[string]any{
			"community_id":      communityID,
			"directory_aligned": aligned[communityID],
			"size":              len(members[communityID]),
		}

		if writeErr := store.WriteAnalysis(ctx, id, homergraph.AnalysisCommunityAssignment, payload, ""); writeErr != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("write community assignment for node %d: %w", id, writeErr))

			continue
		}

		stats.NodesWritten++
	}

	return stats, nil
}

// isDirectoryAligned reports whether a strict majority of members share
// a directory prefix at least directoryPrefixDepth components deep.
func isDirectoryAligned(ids []int64, nameByID map[int64]string) bool {
	counts := map[string]int{}

	for _, id := range ids {
		prefix := directoryPrefix(nameByID[id], directoryPrefixDepth)
		if prefix == "" {
			continue
		}

		counts[prefix]++
	}

	for _, count := range counts {
		if count*2 > len(ids) {
			return true
		}
	}

	return false
}

// directoryPrefix returns the first depth slash-separated directory
// components of a repo-relative path, or "" if the path doesn't have
// at least that many directory components above its final segment.
func directoryPrefix(name string, depth int) string {
	parts := strings.Split(name, "/")
	if len(parts) <= depth {
		return ""
	}

	return strings.Join(parts[:depth], "/")
}
