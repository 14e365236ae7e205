package homergraph

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	kind           TEXT NOT NULL,
	name           TEXT NOT NULL,
	content_hash   INTEGER,
	metadata       TEXT NOT NULL DEFAULT '{}',
	last_extracted DATETIME NOT NULL,
	UNIQUE(kind, name)
);

CREATE TABLE IF NOT EXISTS hyperedges (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	kind         TEXT NOT NULL,
	identity_key TEXT NOT NULL,
	confidence   REAL NOT NULL DEFAULT 1.0,
	metadata     TEXT NOT NULL DEFAULT '{}',
	UNIQUE(identity_key)
);

CREATE TABLE IF NOT EXISTS hyperedge_members (
	hyperedge_id INTEGER NOT NULL REFERENCES hyperedges(id) ON DELETE CASCADE,
	node_id      INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	role         TEXT NOT NULL,
	position     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hyperedge_members_edge ON hyperedge_members(hyperedge_id);
CREATE INDEX IF NOT EXISTS idx_hyperedge_members_node ON hyperedge_members(node_id);

CREATE TABLE IF NOT EXISTS analysis_results (
	node_id     INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL DEFAULT '{}',
	input_hash  TEXT NOT NULL DEFAULT '',
	computed_at DATETIME NOT NULL,
	PRIMARY KEY (node_id, kind)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	label      TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_nodes (
	snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	name        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_edges (
	snapshot_id  INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	identity_key TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshot_nodes_snapshot ON snapshot_nodes(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_snapshot_edges_snapshot ON snapshot_edges(snapshot_id);

CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(name, kind UNINDEXED, content='nodes', content_rowid='id');

CREATE TRIGGER IF NOT EXISTS nodes_ai AFTER INSERT ON nodes BEGIN
	INSERT INTO nodes_fts(rowid, name, kind) VALUES (new.id, new.name, new.kind);
END;
CREATE TRIGGER IF NOT EXISTS nodes_ad AFTER DELETE ON nodes BEGIN
	INSERT INTO nodes_fts(nodes_fts, rowid, name, kind) VALUES('delete', old.id, old.name, old.kind);
END;
CREATE TRIGGER IF NOT EXISTS nodes_au AFTER UPDATE ON nodes BEGIN
	INSERT INTO nodes_fts(nodes_fts, rowid, name, kind) VALUES('delete', old.id, old.name, old.kind);
	INSERT INTO nodes_fts(rowid, name, kind) VALUES (new.id, new.name, new.kind);
END;
`

// Store is the hypergraph store: an embedded SQLite file holding nodes,
// hyperedges, analysis results, checkpoints, and snapshots for one
// repository. A single process owns the store during a run; the
// underlying engine's write-ahead log permits concurrent readers
// alongside the one writer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the hypergraph store at path,
// applying schema migrations and enabling WAL journal mode.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, execErr := db.Exec(schema); execErr != nil {
		_ = db.Close()

		return nil, fmt.Errorf("apply schema: %w", execErr)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	return nil
}

// DB exposes the underlying handle for components (e.g. the subgraph
// loader) that need direct read access beyond this package's API.
func (s *Store) DB() *sql.DB { return s.db }
