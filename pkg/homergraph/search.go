package homergraph

import (
	"context"
	"fmt"
)

// SearchResult is one full-text match over node names.
type SearchResult struct {
	NodeID int64
	Kind   NodeKind
	Name   string
}

// Search performs a full-text match over node names, optionally scoped
// to a single NodeKind.
func (s *Store) Search(ctx context.Context, query string, scope NodeKind) ([]SearchResult, error) {
	sqlQuery := `
		SELECT n.id, n.kind, n.name
		FROM nodes_fts f
		JOIN nodes n ON n.id = f.rowid
		WHERE f.nodes_fts MATCH ?`

	args := []any{query}

	if scope != "" {
		sqlQuery += ` AND n.kind = ?`
		args = append(args, string(scope))
	}

	sqlQuery += ` ORDER BY rank`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search nodes for %q: %w", query, err)
	}
	defer func() { _ = rows.Close() }()

	var out []SearchResult

	for rows.Next() {
		var (
			r       SearchResult
			kindStr string
		)

		if scanErr := rows.Scan(&r.NodeID, &kindStr, &r.Name); scanErr != nil {
			return nil, fmt.Errorf("scan search result: %w", scanErr)
		}

		r.Kind = NodeKind(kindStr)
		out = append(out, r)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate search results: %w", rowsErr)
	}

	return out, nil
}

// aliasNeighbor returns the node an Aliases edge from nodeID points to,
// interpreting the edge's two members by role: "old" -> "new".
func (s *Store) aliasNeighbor(ctx context.Context, nodeID int64) (int64, bool, error) {
	var newID int64

	err := s.db.QueryRowContext(ctx,
		`SELECT tm.node_id
		 FROM hyperedges h
		 JOIN hyperedge_members fm ON fm.hyperedge_id = h.id AND fm.role = 'old' AND fm.node_id = ?
		 JOIN hyperedge_members tm ON tm.hyperedge_id = h.id AND tm.role = 'new'
		 WHERE h.kind = ?
		 LIMIT 1`,
		nodeID, string(EdgeAliases),
	).Scan(&newID)

	switch {
	case err == nil:
		return newID, true, nil
	case err.Error() == "sql: no rows in result set":
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("lookup alias neighbor for node %d: %w", nodeID, err)
	}
}

// maxAliasChainLength bounds alias-chain traversal against a malformed
// cycle in edge data; a well-formed chain never reaches this length.
const maxAliasChainLength = 10000

// ResolveCanonical follows Aliases edges from id to the newest reachable
// member and returns its node id. If id has no outgoing Aliases edge,
// it is already canonical.
func (s *Store) ResolveCanonical(ctx context.Context, id int64) (int64, error) {
	chain, err := s.AliasChain(ctx, id)
	if err != nil {
		return 0, err
	}

	return chain[len(chain)-1], nil
}

// AliasChain returns the ordered chain of node ids from id to its newest
// reachable alias, terminating when a node has no outgoing Aliases edge.
func (s *Store) AliasChain(ctx context.Context, id int64) ([]int64, error) {
	chain := []int64{id}
	visited := map[int64]bool{id: true}
	current := id

	for i := 0; i < maxAliasChainLength; i++ {
		next, ok, err := s.aliasNeighbor(ctx, current)
		if err != nil {
			return nil, err
		}

		if !ok || visited[next] {
			return chain, nil
		}

		chain = append(chain, next)
		visited[next] = true
		current = next
	}

	return chain, nil
}
