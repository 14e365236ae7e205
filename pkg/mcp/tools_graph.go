package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/homer-mine/homer/pkg/homergraph"
)

// CoChangesInput is the input schema for the homer_cochanges tool.
type CoChangesInput struct {
	Path  string `json:"path,omitempty"  jsonschema:"optional file path; only clusters containing it are returned"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum clusters returned (default 20)"`
}

// CoChangeCluster is one co-change cluster or pair.
type CoChangeCluster struct {
	Files      []string `json:"files"`
	Confidence float64  `json:"confidence"`
}

// CoChangesOutput is the output schema for the homer_cochanges tool.
type CoChangesOutput struct {
	Clusters []CoChangeCluster `json:"clusters"`
}

func (s *Server) handleCoChanges(ctx context.Context, _ *mcpsdk.CallToolRequest, input CoChangesInput) (*mcpsdk.CallToolResult, CoChangesOutput, error) {
	out := CoChangesOutput{Clusters: []CoChangeCluster{}}

	edges, err := s.store.ListHyperedgesByKind(ctx, homergraph.EdgeCoChanges)
	if err != nil {
		return nil, out, fmt.Errorf("list co-change edges: %w", err)
	}

	clusters := make([]CoChangeCluster, 0, len(edges))

	for _, edge := range edges {
		files := make([]string, 0, len(edge.Members))

		var containsPath bool

		for _, m := range edge.Members {
			node, nodeErr := s.store.GetNodeByID(ctx, m.NodeID)
			if nodeErr != nil {
				continue
			}

			files = append(files, node.Name)

			if node.Name == input.Path {
				containsPath = true
			}
		}

		if input.Path != "" && !containsPath {
			continue
		}

		sort.Strings(files)
		clusters = append(clusters, CoChangeCluster{Files: files, Confidence: edge.Confidence})
	}

	// Largest, most confident clusters first.
	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].Files) != len(clusters[j].Files) {
			return len(clusters[i].Files) > len(clusters[j].Files)
		}

		if clusters[i].Confidence != clusters[j].Confidence {
			return clusters[i].Confidence > clusters[j].Confidence
		}

		return fmt.Sprint(clusters[i].Files) < fmt.Sprint(clusters[j].Files)
	})

	limit := clampLimit(input.Limit)
	if len(clusters) > limit {
		clusters = clusters[:limit]
	}

	out.Clusters = clusters

	return textResult("%d co-change clusters", len(out.Clusters)), out, nil
}

// SnapshotsInput is the input schema for the homer_snapshots tool.
// With From/To empty it lists snapshots; with both set it diffs them.
type SnapshotsInput struct {
	From string `json:"from,omitempty" jsonschema:"snapshot label to diff from"`
	To   string `json:"to,omitempty"   jsonschema:"snapshot label to diff to"`
}

// SnapshotInfo is one snapshot's listing entry.
type SnapshotInfo struct {
	Label     string `json:"label"`
	CreatedAt string `json:"created_at"`
}

// SnapshotsOutput is the output schema for the homer_snapshots tool.
type SnapshotsOutput struct {
	Snapshots    []SnapshotInfo `json:"snapshots,omitempty"`
	AddedNodes   []string       `json:"added_nodes,omitempty"`
	RemovedNodes []string       `json:"removed_nodes,omitempty"`
	AddedEdges   []string       `json:"added_edges,omitempty"`
	RemovedEdges []string       `json:"removed_edges,omitempty"`
}

func (s *Server) handleSnapshots(ctx context.Context, _ *mcpsdk.CallToolRequest, input SnapshotsInput) (*mcpsdk.CallToolResult, SnapshotsOutput, error) {
	out := SnapshotsOutput{}

	if input.From == "" && input.To == "" {
		snapshots, err := s.store.ListSnapshots(ctx)
		if err != nil {
			return nil, out, fmt.Errorf("list snapshots: %w", err)
		}

		out.Snapshots = make([]SnapshotInfo, 0, len(snapshots))
		for _, snap := range snapshots {
			out.Snapshots = append(out.Snapshots, SnapshotInfo{
				Label:     snap.Label,
				CreatedAt: snap.CreatedAt.UTC().Format(time.RFC3339),
			})
		}

		return textResult("%d snapshots", len(out.Snapshots)), out, nil
	}

	if input.From == "" || input.To == "" {
		return errorResult(ErrSnapshotArgs), out, nil
	}

	diff, err := s.store.DiffSnapshots(ctx, input.From, input.To)
	if err != nil {
		return errorResult(fmt.Errorf("diff snapshots: %w", err)), out, nil
	}

	out.AddedNodes = diff.AddedNodes
	out.RemovedNodes = diff.RemovedNodes
	out.AddedEdges = diff.AddedEdges
	out.RemovedEdges = diff.RemovedEdges

	return textResult("%s -> %s: +%d/-%d nodes, +%d/-%d edges",
		input.From, input.To,
		len(out.AddedNodes), len(out.RemovedNodes),
		len(out.AddedEdges), len(out.RemovedEdges)), out, nil
}

// AliasesInput is the input schema for the homer_aliases tool.
type AliasesInput struct {
	Path string `json:"path" jsonschema:"file path to resolve through its rename chain"`
}

// AliasesOutput is the output schema for the homer_aliases tool.
type AliasesOutput struct {
	Canonical string   `json:"canonical"`
	Chain     []string `json:"chain"`
}

func (s *Server) handleAliases(ctx context.Context, _ *mcpsdk.CallToolRequest, input AliasesInput) (*mcpsdk.CallToolResult, AliasesOutput, error) {
	out := AliasesOutput{}

	if input.Path == "" {
		return errorResult(ErrEmptyQuery), out, nil
	}

	node, err := s.store.GetNode(ctx, homergraph.NodeFile, input.Path)
	if err != nil {
		return errorResult(fmt.Errorf("%w: %s", ErrNodeNotFound, input.Path)), out, nil
	}

	canonicalID, err := s.store.ResolveCanonical(ctx, node.ID)
	if err != nil {
		return nil, out, fmt.Errorf("resolve canonical: %w", err)
	}

	canonical, err := s.store.GetNodeByID(ctx, canonicalID)
	if err != nil {
		return nil, out, fmt.Errorf("load canonical node: %w", err)
	}

	out.Canonical = canonical.Name

	chainIDs, err := s.store.AliasChain(ctx, node.ID)
	if err != nil {
		return nil, out, fmt.Errorf("alias chain: %w", err)
	}

	for _, id := range chainIDs {
		chainNode, chainErr := s.store.GetNodeByID(ctx, id)
		if chainErr != nil {
			continue
		}

		out.Chain = append(out.Chain, chainNode.Name)
	}

	return textResult("%s resolves to %s", input.Path, out.Canonical), out, nil
}

// sortFileAnalyses orders by salience descending, path ascending.
func sortFileAnalyses(entries []fileAnalyses) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].salience != entries[j].salience {
			return entries[i].salience > entries[j].salience
		}

		return entries[i].path < entries[j].path
	})
}

// sortRiskEntries orders by risk score descending, path ascending.
func sortRiskEntries(entries []RiskEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RiskScore != entries[j].RiskScore {
			return entries[i].RiskScore > entries[j].RiskScore
		}

		return entries[i].FilePath < entries[j].FilePath
	})
}
