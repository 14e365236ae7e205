package homergraph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// WriteAnalysis replaces the existing result for (node, kind) or inserts
// a new one. At most one result exists per (node, kind) pair.
func (s *Store) WriteAnalysis(ctx context.Context, nodeID int64, kind AnalysisKind, payload map[string]any, inputHash string) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal analysis payload: %w", err)
	}

	_, execErr := s.db.ExecContext(ctx,
		`INSERT INTO analysis_results (node_id, kind, payload, input_hash, computed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(node_id, kind) DO UPDATE SET payload = excluded.payload,
		   input_hash = excluded.input_hash, computed_at = excluded.computed_at`,
		nodeID, string(kind), string(payloadJSON), inputHash, time.Now().UTC(),
	)
	if execErr != nil {
		return fmt.Errorf("write analysis result %s for node %d: %w", kind, nodeID, execErr)
	}

	return nil
}

// GetAnalysis loads the result for (node, kind), if any.
func (s *Store) GetAnalysis(ctx context.Context, nodeID int64, kind AnalysisKind) (*AnalysisResult, error) {
	var (
		payloadJSON string
		res         AnalysisResult
	)

	res.NodeID = nodeID
	res.Kind = kind

	err := s.db.QueryRowContext(ctx,
		`SELECT payload, input_hash, computed_at FROM analysis_results WHERE node_id = ? AND kind = ?`,
		nodeID, string(kind),
	).Scan(&payloadJSON, &res.InputHash, &res.ComputedAt)
	if err != nil {
		return nil, fmt.Errorf("lookup analysis result %s for node %d: %w", kind, nodeID, err)
	}

	res.Payload = map[string]any{}
	if payloadJSON != "" {
		if unmarshalErr := json.Unmarshal([]byte(payloadJSON), &res.Payload); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal analysis payload: %w", unmarshalErr)
		}
	}

	return &res, nil
}

// ClearByKind removes all results of a given analysis kind. Used for
// global centrality invalidation and the --force-analysis CLI flag.
func (s *Store) ClearByKind(ctx context.Context, kind AnalysisKind) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_results WHERE kind = ?`, string(kind))
	if err != nil {
		return 0, fmt.Errorf("clear analysis results of kind %s: %w", kind, err)
	}

	affected, affectedErr := res.RowsAffected()
	if affectedErr != nil {
		return 0, fmt.Errorf("rows affected clearing kind %s: %w", kind, affectedErr)
	}

	return affected, nil
}

// ClearForNode removes the result for a single (node, kind) pair. Used
// for conservative semantic invalidation when a node's own content
// hash changes.
func (s *Store) ClearForNode(ctx context.Context, nodeID int64, kind AnalysisKind) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM analysis_results WHERE node_id = ? AND kind = ?`, nodeID, string(kind),
	); err != nil {
		return fmt.Errorf("clear analysis result %s for node %d: %w", kind, nodeID, err)
	}

	return nil
}

// ClearSemantic removes all results for the LLM-derived trio
// (SemanticSummary, DesignRationale, InvariantDescription).
func (s *Store) ClearSemantic(ctx context.Context) (int64, error) {
	var total int64

	for kind := range semanticKinds {
		n, err := s.ClearByKind(ctx, AnalysisKind(kind))
		if err != nil {
			return total, err
		}

		total += n
	}

	return total, nil
}

// ClearSemanticForNode removes the LLM-derived trio for a single node,
// the per-node counterpart to ClearSemantic used when one node's content
// hash changes rather than a global --force-semantic run.
func (s *Store) ClearSemanticForNode(ctx context.Context, nodeID int64) (int64, error) {
	var total int64

	for kind := range semanticKinds {
		if err := s.ClearForNode(ctx, nodeID, AnalysisKind(kind)); err != nil {
			return total, err
		}

		total++
	}

	return total, nil
}

// ClearAllAnalyses implements --force-analysis: every analysis kind is cleared.
func (s *Store) ClearAllAnalyses(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_results`)
	if err != nil {
		return 0, fmt.Errorf("clear all analysis results: %w", err)
	}

	affected, affectedErr := res.RowsAffected()
	if affectedErr != nil {
		return 0, fmt.Errorf("rows affected clearing all analyses: %w", affectedErr)
	}

	return affected, nil
}

// InvalidateCentrality clears every global centrality-family result,
// the policy triggered by any Calls/Imports topology change.
func (s *Store) InvalidateCentrality(ctx context.Context) (int64, error) {
	var total int64

	for kind := range centralityKinds {
		n, err := s.ClearByKind(ctx, AnalysisKind(kind))
		if err != nil {
			return total, err
		}

		total += n
	}

	return total, nil
}
