package homergraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetCheckpoint reads a string checkpoint value. ok is false if the key
// has never been set.
func (s *Store) GetCheckpoint(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM checkpoints WHERE key = ?`, key).Scan(&value)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("read checkpoint %s: %w", key, err)
	default:
		return value, true, nil
	}
}

// SetCheckpoint transactionally sets a string checkpoint value.
func (s *Store) SetCheckpoint(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", key, err)
	}

	return nil
}
