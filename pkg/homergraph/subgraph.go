package homergraph

import (
	"context"
	"fmt"
	"strings"
)

// SubgraphFilter selects the slice of the store materialized into an
// in-memory directed graph. Zero-value selects the full graph.
type SubgraphFilter struct {
	Kinds           []HyperedgeKind // restrict to these edge kinds; empty = all
	PathPrefix      string          // restrict nodes whose name has this prefix; empty = all
	SeedNodeIDs     []int64         // N-hop neighborhood seeds; empty = no seed restriction
	Hops            int             // neighborhood radius from SeedNodeIDs; 0 = unrestricted when no seeds given
	MinSalience     *float64        // nodes must have CompositeSalience.score >= this
	IntersectWithID []int64         // keep only nodes present in this explicit id set, if non-nil
}

// SubgraphNode is one node in the materialized in-memory graph.
type SubgraphNode struct {
	ID   int64
	Kind NodeKind
	Name string
}

// SubgraphEdge is one directed arc in the materialized in-memory graph,
// projected from a hyperedge's "from" and "to" roled members.
type SubgraphEdge struct {
	FromID     int64
	ToID       int64
	Kind       HyperedgeKind
	Confidence float64
}

// Subgraph is an in-memory directed graph view suitable for petgraph-style
// algorithms (PageRank, Brandes betweenness, HITS, Louvain). It is a
// transient projection: nothing here is shared across analyzer runs.
type Subgraph struct {
	Nodes []SubgraphNode
	Edges []SubgraphEdge
}

// LoadSubgraph materializes an in-memory directed graph from the store
// according to filter. Edges are projected from hyperedges with exactly
// a "from" and "to" roled member (binary-projected relations such as
// Calls/Imports/Inherits); N-ary edges with other roles are not
// projected into directed arcs here and are read via GetHyperedge instead.
func (s *Store) LoadSubgraph(ctx context.Context, filter SubgraphFilter) (*Subgraph, error) {
	nodes, err := s.loadFilteredNodes(ctx, filter)
	if err != nil {
		return nil, err
	}

	edges, err := s.loadProjectedEdges(ctx, filter)
	if err != nil {
		return nil, err
	}

	sg := &Subgraph{Nodes: nodes, Edges: edges}

	if len(filter.SeedNodeIDs) > 0 {
		sg = restrictToNeighborhood(sg, filter.SeedNodeIDs, filter.Hops)
	}

	if filter.IntersectWithID != nil {
		sg = restrictToIDSet(sg, filter.IntersectWithID)
	}

	return sg, nil
}

func (s *Store) loadFilteredNodes(ctx context.Context, filter SubgraphFilter) ([]SubgraphNode, error) {
	query := `SELECT id, kind, name FROM nodes WHERE 1=1`

	args := []any{}

	if filter.PathPrefix != "" {
		query += ` AND name LIKE ?`
		args = append(args, filter.PathPrefix+"%")
	}

	if filter.MinSalience != nil {
		query += ` AND id IN (
			SELECT node_id FROM analysis_results WHERE kind = ?
			AND CAST(json_extract(payload, '$.score') AS REAL) >= ?
		)`
		args = append(args, string(AnalysisCompositeSalience), *filter.MinSalience)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load subgraph nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SubgraphNode

	for rows.Next() {
		var (
			n       SubgraphNode
			kindStr string
		)

		if scanErr := rows.Scan(&n.ID, &kindStr, &n.Name); scanErr != nil {
			return nil, fmt.Errorf("scan subgraph node: %w", scanErr)
		}

		n.Kind = NodeKind(kindStr)
		out = append(out, n)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate subgraph nodes: %w", rowsErr)
	}

	return out, nil
}

func (s *Store) loadProjectedEdges(ctx context.Context, filter SubgraphFilter) ([]SubgraphEdge, error) {
	query := `
		SELECT h.id, h.kind, h.confidence,
		       fm.node_id AS from_id, tm.node_id AS to_id
		FROM hyperedges h
		JOIN hyperedge_members fm ON fm.hyperedge_id = h.id AND fm.role = 'from'
		JOIN hyperedge_members tm ON tm.hyperedge_id = h.id AND tm.role = 'to'
		WHERE 1=1`

	args := []any{}

	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}

		query += fmt.Sprintf(" AND h.kind IN (%s)", strings.Join(placeholders, ","))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load subgraph edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SubgraphEdge

	for rows.Next() {
		var (
			e       SubgraphEdge
			kindStr string
			edgeID  int64
		)

		if scanErr := rows.Scan(&edgeID, &kindStr, &e.Confidence, &e.FromID, &e.ToID); scanErr != nil {
			return nil, fmt.Errorf("scan subgraph edge: %w", scanErr)
		}

		e.Kind = HyperedgeKind(kindStr)
		out = append(out, e)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate subgraph edges: %w", rowsErr)
	}

	return out, nil
}

func restrictToNeighborhood(sg *Subgraph, seeds []int64, hops int) *Subgraph {
	adjacency := map[int64][]int64{}
	for _, e := range sg.Edges {
		adjacency[e.FromID] = append(adjacency[e.FromID], e.ToID)
		adjacency[e.ToID] = append(adjacency[e.ToID], e.FromID)
	}

	reached := map[int64]bool{}
	frontier := map[int64]bool{}

	for _, id := range seeds {
		reached[id] = true
		frontier[id] = true
	}

	for h := 0; h < hops; h++ {
		next := map[int64]bool{}

		for id := range frontier {
			for _, neighbor := range adjacency[id] {
				if !reached[neighbor] {
					reached[neighbor] = true
					next[neighbor] = true
				}
			}
		}

		frontier = next

		if len(frontier) == 0 {
			break
		}
	}

	return restrictToIDSet(sg, setToSlice(reached))
}

func restrictToIDSet(sg *Subgraph, ids []int64) *Subgraph {
	keep := make(map[int64]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	out := &Subgraph{}

	for _, n := range sg.Nodes {
		if keep[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}

	for _, e := range sg.Edges {
		if keep[e.FromID] && keep[e.ToID] {
			out.Edges = append(out.Edges, e)
		}
	}

	return out
}

func setToSlice(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}

	return out
}
