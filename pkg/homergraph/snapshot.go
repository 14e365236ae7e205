package homergraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSnapshotExists is returned by CreateSnapshot when the label already exists.
var ErrSnapshotExists = errors.New("homergraph: snapshot label already exists")

// ErrSnapshotNotFound is returned when a labeled snapshot cannot be found.
var ErrSnapshotNotFound = errors.New("homergraph: snapshot not found")

// CreateSnapshot copies the current node and edge identity sets under a
// new immutable label. Fails if the label already exists, making
// snapshot creation idempotent under the same label.
func (s *Store) CreateSnapshot(ctx context.Context, label string) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int

	checkErr := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE label = ?`, label).Scan(&existing)
	if checkErr != nil {
		return nil, fmt.Errorf("check snapshot label %s: %w", label, checkErr)
	}

	if existing > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotExists, label)
	}

	now := time.Now().UTC()

	res, insertErr := tx.ExecContext(ctx,
		`INSERT INTO snapshots (label, created_at) VALUES (?, ?)`, label, now,
	)
	if insertErr != nil {
		return nil, fmt.Errorf("insert snapshot %s: %w", label, insertErr)
	}

	id, idErr := res.LastInsertId()
	if idErr != nil {
		return nil, fmt.Errorf("last insert id for snapshot %s: %w", label, idErr)
	}

	if _, copyNodesErr := tx.ExecContext(ctx,
		`INSERT INTO snapshot_nodes (snapshot_id, kind, name) SELECT ?, kind, name FROM nodes`, id,
	); copyNodesErr != nil {
		return nil, fmt.Errorf("copy nodes into snapshot %s: %w", label, copyNodesErr)
	}

	if _, copyEdgesErr := tx.ExecContext(ctx,
		`INSERT INTO snapshot_edges (snapshot_id, identity_key) SELECT ?, identity_key FROM hyperedges`, id,
	); copyEdgesErr != nil {
		return nil, fmt.Errorf("copy edges into snapshot %s: %w", label, copyEdgesErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, fmt.Errorf("commit snapshot %s: %w", label, commitErr)
	}

	return &Snapshot{ID: id, Label: label, CreatedAt: now}, nil
}

// ListSnapshots enumerates all snapshots, oldest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, created_at FROM snapshots ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot

	for rows.Next() {
		var snap Snapshot
		if scanErr := rows.Scan(&snap.ID, &snap.Label, &snap.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan snapshot: %w", scanErr)
		}

		out = append(out, snap)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", rowsErr)
	}

	return out, nil
}

// DiffSnapshots returns the nodes/edges added and removed between two
// labeled snapshots, identified by (kind,name) and identity_key respectively.
func (s *Store) DiffSnapshots(ctx context.Context, fromLabel, toLabel string) (*SnapshotDiff, error) {
	fromID, err := s.snapshotIDByLabel(ctx, fromLabel)
	if err != nil {
		return nil, err
	}

	toID, err := s.snapshotIDByLabel(ctx, toLabel)
	if err != nil {
		return nil, err
	}

	diff := &SnapshotDiff{}

	diff.AddedNodes, err = s.diffNodeSet(ctx, toID, fromID)
	if err != nil {
		return nil, err
	}

	diff.RemovedNodes, err = s.diffNodeSet(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}

	diff.AddedEdges, err = s.diffEdgeSet(ctx, toID, fromID)
	if err != nil {
		return nil, err
	}

	diff.RemovedEdges, err = s.diffEdgeSet(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}

	return diff, nil
}

// SnapshotContents returns the node identities and edge identity keys
// recorded under a label, for export.
func (s *Store) SnapshotContents(ctx context.Context, label string) (nodes, edges []string, err error) {
	id, err := s.snapshotIDByLabel(ctx, label)
	if err != nil {
		return nil, nil, err
	}

	nodeRows, err := s.db.QueryContext(ctx,
		`SELECT kind || ':' || name FROM snapshot_nodes WHERE snapshot_id = ? ORDER BY kind, name`, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot nodes: %w", err)
	}
	defer func() { _ = nodeRows.Close() }()

	nodes, err = scanStrings(nodeRows)
	if err != nil {
		return nil, nil, err
	}

	edgeRows, err := s.db.QueryContext(ctx,
		`SELECT identity_key FROM snapshot_edges WHERE snapshot_id = ? ORDER BY identity_key`, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot edges: %w", err)
	}
	defer func() { _ = edgeRows.Close() }()

	edges, err = scanStrings(edgeRows)
	if err != nil {
		return nil, nil, err
	}

	return nodes, edges, nil
}

func (s *Store) snapshotIDByLabel(ctx context.Context, label string) (int64, error) {
	var id int64

	err := s.db.QueryRowContext(ctx, `SELECT id FROM snapshots WHERE label = ?`, label).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("%w: %s", ErrSnapshotNotFound, label)
	case err != nil:
		return 0, fmt.Errorf("lookup snapshot %s: %w", label, err)
	default:
		return id, nil
	}
}

func (s *Store) diffNodeSet(ctx context.Context, presentIn, absentFrom int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind || ':' || name FROM snapshot_nodes WHERE snapshot_id = ?
		 EXCEPT
		 SELECT kind || ':' || name FROM snapshot_nodes WHERE snapshot_id = ?`,
		presentIn, absentFrom,
	)
	if err != nil {
		return nil, fmt.Errorf("diff node sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanStrings(rows)
}

func (s *Store) diffEdgeSet(ctx context.Context, presentIn, absentFrom int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_key FROM snapshot_edges WHERE snapshot_id = ?
		 EXCEPT
		 SELECT identity_key FROM snapshot_edges WHERE snapshot_id = ?`,
		presentIn, absentFrom,
	)
	if err != nil {
		return nil, fmt.Errorf("diff edge sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}
