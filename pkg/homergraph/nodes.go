package homergraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/homer-mine/homer/pkg/safeconv"
)

// ErrNodeNotFound is returned when a node lookup by identity fails.
var ErrNodeNotFound = errors.New("homergraph: node not found")

// NodeUpsert is the input shape for a single node upsert.
type NodeUpsert struct {
	Kind        NodeKind
	Name        string
	ContentHash *uint64
	Metadata    map[string]any
}

// NodeChange describes a node whose content hash changed on upsert,
// the event the invalidation engine consumes to decide what to clear.
type NodeChange struct {
	NodeID   int64
	Kind     NodeKind
	Name     string
	IsNew    bool
	WasStale bool
}

// UpsertNode inserts or updates a single node. Returns the internal id
// and whether the write was a content-changing update (vs. a touch-only
// re-extraction of unchanged content).
func (s *Store) UpsertNode(ctx context.Context, in NodeUpsert) (int64, NodeChange, error) {
	results, err := s.UpsertNodes(ctx, []NodeUpsert{in})
	if err != nil {
		return 0, NodeChange{}, err
	}

	return results[0].NodeID, results[0], nil
}

// UpsertNodes performs a batch of node upserts in one transaction. For
// each input: if no node exists for (kind, name), it is created; if one
// exists and content_hash matches, only last_extracted is touched; if
// the hash differs, fields are updated and a change event is returned.
func (s *Store) UpsertNodes(ctx context.Context, ins []NodeUpsert) ([]NodeChange, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert nodes tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	changes := make([]NodeChange, 0, len(ins))

	for _, in := range ins {
		change, upsertErr := upsertOneNode(ctx, tx, in, now)
		if upsertErr != nil {
			return nil, upsertErr
		}

		changes = append(changes, change)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, fmt.Errorf("commit upsert nodes tx: %w", commitErr)
	}

	return changes, nil
}

func upsertOneNode(ctx context.Context, tx *sql.Tx, in NodeUpsert, now time.Time) (NodeChange, error) {
	metaJSON, err := json.Marshal(in.Metadata)
	if err != nil {
		return NodeChange{}, fmt.Errorf("marshal node metadata: %w", err)
	}

	var (
		existingID   int64
		existingHash sql.NullInt64
	)

	selectErr := tx.QueryRowContext(ctx,
		`SELECT id, content_hash FROM nodes WHERE kind = ? AND name = ?`,
		string(in.Kind), in.Name,
	).Scan(&existingID, &existingHash)

	switch {
	case errors.Is(selectErr, sql.ErrNoRows):
		return insertNode(ctx, tx, in, metaJSON, now)
	case selectErr != nil:
		return NodeChange{}, fmt.Errorf("lookup node %s/%s: %w", in.Kind, in.Name, selectErr)
	default:
		return updateNode(ctx, tx, in, metaJSON, now, existingID, existingHash)
	}
}

func insertNode(ctx context.Context, tx *sql.Tx, in NodeUpsert, metaJSON []byte, now time.Time) (NodeChange, error) {
	var encodedHash sql.NullInt64
	if in.ContentHash != nil {
		encodedHash = sql.NullInt64{Int64: safeconv.EncodeHash(*in.ContentHash), Valid: true}
	}

	res, insertErr := tx.ExecContext(ctx,
		`INSERT INTO nodes (kind, name, content_hash, metadata, last_extracted) VALUES (?, ?, ?, ?, ?)`,
		string(in.Kind), in.Name, encodedHash, string(metaJSON), now,
	)
	if insertErr != nil {
		return NodeChange{}, fmt.Errorf("insert node %s/%s: %w", in.Kind, in.Name, insertErr)
	}

	id, idErr := res.LastInsertId()
	if idErr != nil {
		return NodeChange{}, fmt.Errorf("last insert id for node %s/%s: %w", in.Kind, in.Name, idErr)
	}

	return NodeChange{NodeID: id, Kind: in.Kind, Name: in.Name, IsNew: true}, nil
}

func updateNode(
	ctx context.Context, tx *sql.Tx, in NodeUpsert, metaJSON []byte, now time.Time,
	existingID int64, existingHash sql.NullInt64,
) (NodeChange, error) {
	hashChanged := hashesDiffer(existingHash, in.ContentHash)

	if !hashChanged {
		_, touchErr := tx.ExecContext(ctx,
			`UPDATE nodes SET last_extracted = ? WHERE id = ?`, now, existingID,
		)
		if touchErr != nil {
			return NodeChange{}, fmt.Errorf("touch node %s/%s: %w", in.Kind, in.Name, touchErr)
		}

		return NodeChange{NodeID: existingID, Kind: in.Kind, Name: in.Name}, nil
	}

	var encodedHash sql.NullInt64
	if in.ContentHash != nil {
		encodedHash = sql.NullInt64{Int64: safeconv.EncodeHash(*in.ContentHash), Valid: true}
	}

	_, updateErr := tx.ExecContext(ctx,
		`UPDATE nodes SET content_hash = ?, metadata = ?, last_extracted = ? WHERE id = ?`,
		encodedHash, string(metaJSON), now, existingID,
	)
	if updateErr != nil {
		return NodeChange{}, fmt.Errorf("update node %s/%s: %w", in.Kind, in.Name, updateErr)
	}

	return NodeChange{NodeID: existingID, Kind: in.Kind, Name: in.Name, WasStale: true}, nil
}

func hashesDiffer(existing sql.NullInt64, newHash *uint64) bool {
	if newHash == nil {
		return existing.Valid
	}

	if !existing.Valid {
		return true
	}

	return safeconv.DecodeHash(existing.Int64) != *newHash
}

// GetNode looks up a node by its (kind, name) identity.
func (s *Store) GetNode(ctx context.Context, kind NodeKind, name string) (*Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, name, content_hash, metadata, last_extracted FROM nodes WHERE kind = ? AND name = ?`,
		string(kind), name,
	)

	return scanNode(row)
}

// GetNodeByID looks up a node by internal id.
func (s *Store) GetNodeByID(ctx context.Context, id int64) (*Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, name, content_hash, metadata, last_extracted FROM nodes WHERE id = ?`, id,
	)

	return scanNode(row)
}

// CountNodesByKind returns the number of nodes of a given kind, the
// cheap cardinality check the snapshotter uses to decide whether enough
// new commits have landed to warrant an auto-* snapshot.
func (s *Store) CountNodesByKind(ctx context.Context, kind NodeKind) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE kind = ?`, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count nodes of kind %s: %w", kind, err)
	}

	return count, nil
}

// ListNodesByKind loads every node of a given kind, ordered by id. Used
// where a full scan over a small node population (Releases) beats a
// bespoke filtered query.
func (s *Store) ListNodesByKind(ctx context.Context, kind NodeKind) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, content_hash, metadata, last_extracted FROM nodes WHERE kind = ? ORDER BY id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list nodes of kind %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Node

	for rows.Next() {
		var (
			n           Node
			hash        sql.NullInt64
			metaJSON    string
			kindStr     string
			lastExtract time.Time
		)

		if scanErr := rows.Scan(&n.ID, &kindStr, &n.Name, &hash, &metaJSON, &lastExtract); scanErr != nil {
			return nil, fmt.Errorf("scan node of kind %s: %w", kind, scanErr)
		}

		n.Kind = NodeKind(kindStr)
		n.LastExtracted = lastExtract

		if hash.Valid {
			decoded := safeconv.DecodeHash(hash.Int64)
			n.ContentHash = &decoded
		}

		n.Metadata = map[string]any{}
		if metaJSON != "" {
			if unmarshalErr := json.Unmarshal([]byte(metaJSON), &n.Metadata); unmarshalErr != nil {
				return nil, fmt.Errorf("unmarshal node metadata for %s: %w", n.Name, unmarshalErr)
			}
		}

		out = append(out, n)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate nodes of kind %s: %w", kind, rowsErr)
	}

	return out, nil
}

func scanNode(row *sql.Row) (*Node, error) {
	var (
		n           Node
		hash        sql.NullInt64
		metaJSON    string
		kindStr     string
		lastExtract time.Time
	)

	err := row.Scan(&n.ID, &kindStr, &n.Name, &hash, &metaJSON, &lastExtract)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNodeNotFound
	case err != nil:
		return nil, fmt.Errorf("scan node: %w", err)
	}

	n.Kind = NodeKind(kindStr)
	n.LastExtracted = lastExtract

	if hash.Valid {
		decoded := safeconv.DecodeHash(hash.Int64)
		n.ContentHash = &decoded
	}

	n.Metadata = map[string]any{}
	if metaJSON != "" {
		if unmarshalErr := json.Unmarshal([]byte(metaJSON), &n.Metadata); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal node metadata: %w", unmarshalErr)
		}
	}

	return &n, nil
}
