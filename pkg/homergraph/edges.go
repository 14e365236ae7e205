package homergraph

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyHyperedge is returned when a hyperedge upsert has no members.
var ErrEmptyHyperedge = errors.New("homergraph: hyperedge must have at least one member")

// HyperedgeUpsert is the input shape for a single hyperedge upsert.
type HyperedgeUpsert struct {
	Kind       HyperedgeKind
	Members    []Member
	Confidence float64
	Metadata   map[string]any
}

// IdentityKey computes the deterministic identity key of a hyperedge:
// kind followed by the sorted set of (role, node_id) pairs. Position is
// deliberately excluded, which is what makes repeated extraction of the
// same logical relation idempotent regardless of member ordering.
func IdentityKey(kind HyperedgeKind, members []Member) string {
	pairs := make([]string, len(members))
	for i, m := range members {
		pairs[i] = m.Role + ":" + strconv.FormatInt(m.NodeID, 10)
	}

	sort.Strings(pairs)

	joined := string(kind) + "|" + strings.Join(pairs, ",")
	sum := sha256.Sum256([]byte(joined))

	return hex.EncodeToString(sum[:])
}

// UpsertHyperedge inserts or replaces a hyperedge on its identity key.
// Members are rewritten atomically; the edge's internal id is stable
// across re-upserts of the same identity key.
func (s *Store) UpsertHyperedge(ctx context.Context, in HyperedgeUpsert) (int64, error) {
	if len(in.Members) == 0 {
		return 0, ErrEmptyHyperedge
	}

	key := IdentityKey(in.Kind, in.Members)

	metaJSON, err := json.Marshal(in.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal hyperedge metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert hyperedge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64

	lookupErr := tx.QueryRowContext(ctx, `SELECT id FROM hyperedges WHERE identity_key = ?`, key).Scan(&id)

	switch {
	case errors.Is(lookupErr, sql.ErrNoRows):
		res, insertErr := tx.ExecContext(ctx,
			`INSERT INTO hyperedges (kind, identity_key, confidence, metadata) VALUES (?, ?, ?, ?)`,
			string(in.Kind), key, in.Confidence, string(metaJSON),
		)
		if insertErr != nil {
			return 0, fmt.Errorf("insert hyperedge %s: %w", in.Kind, insertErr)
		}

		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("last insert id for hyperedge %s: %w", in.Kind, err)
		}
	case lookupErr != nil:
		return 0, fmt.Errorf("lookup hyperedge %s: %w", in.Kind, lookupErr)
	default:
		_, updateErr := tx.ExecContext(ctx,
			`UPDATE hyperedges SET confidence = ?, metadata = ? WHERE id = ?`,
			in.Confidence, string(metaJSON), id,
		)
		if updateErr != nil {
			return 0, fmt.Errorf("update hyperedge %s: %w", in.Kind, updateErr)
		}

		if _, delErr := tx.ExecContext(ctx, `DELETE FROM hyperedge_members WHERE hyperedge_id = ?`, id); delErr != nil {
			return 0, fmt.Errorf("clear members for hyperedge %s: %w", in.Kind, delErr)
		}
	}

	for _, m := range in.Members {
		if _, memErr := tx.ExecContext(ctx,
			`INSERT INTO hyperedge_members (hyperedge_id, node_id, role, position) VALUES (?, ?, ?, ?)`,
			id, m.NodeID, m.Role, m.Position,
		); memErr != nil {
			return 0, fmt.Errorf("insert member for hyperedge %s: %w", in.Kind, memErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return 0, fmt.Errorf("commit upsert hyperedge tx: %w", commitErr)
	}

	return id, nil
}

// GetHyperedge loads a hyperedge (with members) by internal id.
func (s *Store) GetHyperedge(ctx context.Context, id int64) (*Hyperedge, error) {
	var (
		e        Hyperedge
		kindStr  string
		metaJSON string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, identity_key, confidence, metadata FROM hyperedges WHERE id = ?`, id,
	).Scan(&e.ID, &kindStr, &e.IdentityKey, &e.Confidence, &metaJSON)
	if err != nil {
		return nil, fmt.Errorf("lookup hyperedge %d: %w", id, err)
	}

	e.Kind = HyperedgeKind(kindStr)
	e.Metadata = map[string]any{}

	if metaJSON != "" {
		if unmarshalErr := json.Unmarshal([]byte(metaJSON), &e.Metadata); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal hyperedge metadata: %w", unmarshalErr)
		}
	}

	rows, queryErr := s.db.QueryContext(ctx,
		`SELECT node_id, role, position FROM hyperedge_members WHERE hyperedge_id = ? ORDER BY position`, id,
	)
	if queryErr != nil {
		return nil, fmt.Errorf("load members for hyperedge %d: %w", id, queryErr)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var m Member
		if scanErr := rows.Scan(&m.NodeID, &m.Role, &m.Position); scanErr != nil {
			return nil, fmt.Errorf("scan member for hyperedge %d: %w", id, scanErr)
		}

		e.Members = append(e.Members, m)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate members for hyperedge %d: %w", id, rowsErr)
	}

	return &e, nil
}

// ListHyperedgesByKind loads every hyperedge of kind with its members,
// the bulk-read analyzers use for relations too irregular to project
// through LoadSubgraph's from/to binary view (Modifies, Authored, and
// other role-shaped hyperedges).
func (s *Store) ListHyperedgesByKind(ctx context.Context, kind HyperedgeKind) ([]Hyperedge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity_key, confidence, metadata FROM hyperedges WHERE kind = ?`, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list hyperedges of kind %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	type partial struct {
		id       int64
		identity string
		conf     float64
		meta     string
	}

	var partials []partial

	for rows.Next() {
		var p partial
		if scanErr := rows.Scan(&p.id, &p.identity, &p.conf, &p.meta); scanErr != nil {
			return nil, fmt.Errorf("scan hyperedge of kind %s: %w", kind, scanErr)
		}

		partials = append(partials, p)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate hyperedges of kind %s: %w", kind, rowsErr)
	}

	out := make([]Hyperedge, 0, len(partials))

	for _, p := range partials {
		e := Hyperedge{ID: p.id, Kind: kind, IdentityKey: p.identity, Confidence: p.conf, Metadata: map[string]any{}}

		if p.meta != "" {
			if unmarshalErr := json.Unmarshal([]byte(p.meta), &e.Metadata); unmarshalErr != nil {
				return nil, fmt.Errorf("unmarshal hyperedge metadata %d: %w", p.id, unmarshalErr)
			}
		}

		memberRows, memErr := s.db.QueryContext(ctx,
			`SELECT node_id, role, position FROM hyperedge_members WHERE hyperedge_id = ? ORDER BY position`, p.id,
		)
		if memErr != nil {
			return nil, fmt.Errorf("load members for hyperedge %d: %w", p.id, memErr)
		}

		for memberRows.Next() {
			var m Member
			if scanErr := memberRows.Scan(&m.NodeID, &m.Role, &m.Position); scanErr != nil {
				_ = memberRows.Close()

				return nil, fmt.Errorf("scan member for hyperedge %d: %w", p.id, scanErr)
			}

			e.Members = append(e.Members, m)
		}

		memberRowsErr := memberRows.Err()
		_ = memberRows.Close()

		if memberRowsErr != nil {
			return nil, fmt.Errorf("iterate members for hyperedge %d: %w", p.id, memberRowsErr)
		}

		out = append(out, e)
	}

	return out, nil
}

// CountHyperedgesByKind returns the number of distinct hyperedges of kind.
func (s *Store) CountHyperedgesByKind(ctx context.Context, kind HyperedgeKind) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hyperedges WHERE kind = ?`, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count hyperedges of kind %s: %w", kind, err)
	}

	return count, nil
}
