package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/homergraph"
)

// promptRecord is one agentic coding session prompt as persisted by an
// external session logger (e.g. an IDE agent or CLI assistant), read as
// a flat JSON file per prompt under PromptSourceDir.
type promptRecord struct {
	ID              string   `json:"id"`
	SessionID       string   `json:"session_id"`
	Text            string   `json:"text"`
	ReferencedFiles []string `json:"referenced_files"`
	ModifiedFiles   []string `json:"modified_files"`
	RuleIDs         []string `json:"rule_ids"`
}

// PromptExtractor mines agentic coding session logs into Prompt,
// AgentSession, and AgentRule nodes plus PromptReferences,
// PromptModifiedFiles, and RelatedPrompts edges. Its checkpoint key is
// the source directory's own cursor, independent of git_last_sha: a
// prompt log can grow between commits.
type PromptExtractor struct {
	SourceDir string
}

// NewPromptExtractor builds a PromptExtractor reading JSON prompt
// records from sourceDir.
func NewPromptExtractor(sourceDir string) *PromptExtractor {
	return &PromptExtractor{SourceDir: sourceDir}
}

func (e *PromptExtractor) Name() string { return "prompt" }

func (e *PromptExtractor) checkpointKey() string { return homergraph.PromptCursorKey(e.SourceDir) }

func (e *PromptExtractor) HasWork(ctx context.Context, store *homergraph.Store) (bool, error) {
	if e.SourceDir == "" {
		return false, nil
	}

	if _, err := os.Stat(e.SourceDir); err != nil {
		return false, nil
	}

	cursor, ok, err := store.GetCheckpoint(ctx, e.checkpointKey())
	if err != nil {
		return false, err
	}

	latest, err := e.latestRecordName()
	if err != nil {
		return false, fmt.Errorf("scan prompt source: %w", err)
	}

	return !ok || cursor != latest, nil
}

func (e *PromptExtractor) latestRecordName() (string, error) {
	entries, err := os.ReadDir(e.SourceDir)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	if len(names) == 0 {
		return "", nil
	}

	return names[len(names)-1], nil
}

func (e *PromptExtractor) Extract(ctx context.Context, store *homergraph.Store, _ *config.Config) (ExtractStats, error) {
	stats := ExtractStats{}

	fsys := os.DirFS(e.SourceDir)

	promptIDsBySession := map[string][]int64{}

	walkErr := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.RecordError(p, errkind.Input, walkErr)

			return nil
		}

		if d.IsDir() || !strings.HasSuffix(p, ".json") {
			return nil
		}

		if extractErr := e.extractRecord(ctx, store, &stats, fsys, p, promptIDsBySession); extractErr != nil {
			stats.RecordError(p, errkind.Input, extractErr)
		}

		return nil
	})
	if walkErr != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), e.SourceDir, "walk prompt source: %w", walkErr)
	}

	if relateErr := e.linkRelatedPrompts(ctx, store, &stats, promptIDsBySession); relateErr != nil {
		stats.RecordError("related_prompts", errkind.Input, relateErr)
	}

	latest, err := e.latestRecordName()
	if err != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), e.SourceDir, "rescan source: %w", err)
	}

	if latest != "" {
		if setErr := store.SetCheckpoint(ctx, e.checkpointKey(), latest); setErr != nil {
			return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "advance checkpoint: %w", setErr)
		}
	}

	return stats, nil
}

func (e *PromptExtractor) extractRecord(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats,
	fsys fs.FS, p string, promptIDsBySession map[string][]int64,
) error {
	raw, err := fs.ReadFile(fsys, p)
	if err != nil {
		return fmt.Errorf("read prompt record %s: %w", p, err)
	}

	var rec promptRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode prompt record %s: %w", p, err)
	}

	if rec.ID == "" {
		return fmt.Errorf("prompt record %s missing id", p)
	}

	promptID, change, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodePrompt, Name: rec.ID,
		Metadata: map[string]any{"text": rec.Text, "session_id": rec.SessionID},
	})
	if err != nil {
		return fmt.Errorf("upsert prompt %s: %w", rec.ID, err)
	}

	stats.RecordChange(change)
	stats.ItemsProcessed++

	if rec.SessionID != "" {
		if sessionErr := e.linkSession(ctx, store, stats, promptID, rec.SessionID); sessionErr != nil {
			return sessionErr
		}

		promptIDsBySession[rec.SessionID] = append(promptIDsBySession[rec.SessionID], promptID)
	}

	for _, rule := range rec.RuleIDs {
		if ruleErr := e.linkRule(ctx, store, stats, promptID, rule); ruleErr != nil {
			return ruleErr
		}
	}

	for _, ref := range rec.ReferencedFiles {
		if edgeErr := e.linkFile(ctx, store, stats, promptID, ref, homergraph.EdgePromptReferences); edgeErr != nil {
			return edgeErr
		}
	}

	for _, mod := range rec.ModifiedFiles {
		if edgeErr := e.linkFile(ctx, store, stats, promptID, mod, homergraph.EdgePromptModifiedFiles); edgeErr != nil {
			return edgeErr
		}
	}

	return nil
}

func (e *PromptExtractor) linkSession(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, promptID int64, sessionID string,
) error {
	sessID, change, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeAgentSession, Name: sessionID})
	if err != nil {
		return fmt.Errorf("upsert agent session %s: %w", sessionID, err)
	}

	stats.RecordChange(change)

	if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeBelongsTo,
		Members: []homergraph.Member{
			{NodeID: promptID, Role: "member", Position: 0},
			{NodeID: sessID, Role: "session", Position: 1},
		},
		Confidence: 1.0,
	}); edgeErr != nil {
		return fmt.Errorf("upsert session edge for %s: %w", sessionID, edgeErr)
	}

	stats.EdgesUpserted++

	return nil
}

func (e *PromptExtractor) linkRule(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, promptID int64, ruleID string,
) error {
	ruleNodeID, change, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeAgentRule, Name: ruleID})
	if err != nil {
		return fmt.Errorf("upsert agent rule %s: %w", ruleID, err)
	}

	stats.RecordChange(change)

	if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgePromptReferences,
		Members: []homergraph.Member{
			{NodeID: promptID, Role: "from", Position: 0},
			{NodeID: ruleNodeID, Role: "to", Position: 1},
		},
		Confidence: 1.0,
	}); edgeErr != nil {
		return fmt.Errorf("upsert rule reference edge for %s: %w", ruleID, edgeErr)
	}

	stats.EdgesUpserted++

	return nil
}

func (e *PromptExtractor) linkFile(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats,
	promptID int64, path string, kind homergraph.HyperedgeKind,
) error {
	file, err := store.GetNode(ctx, homergraph.NodeFile, filepath.ToSlash(path))
	if err != nil {
		return nil //nolint:nilerr // a prompt referencing a file Homer hasn't extracted yet is not an error
	}

	if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: kind,
		Members: []homergraph.Member{
			{NodeID: promptID, Role: "from", Position: 0},
			{NodeID: file.ID, Role: "to", Position: 1},
		},
		Confidence: 1.0,
	}); edgeErr != nil {
		return fmt.Errorf("upsert %s edge for %s: %w", kind, path, edgeErr)
	}

	stats.EdgesUpserted++

	return nil
}

// linkRelatedPrompts connects every pair of prompts within the same
// agent session with a RelatedPrompts edge, a coarse proxy for
// conversational proximity until a semantic similarity pass exists.
func (e *PromptExtractor) linkRelatedPrompts(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, bySession map[string][]int64,
) error {
	for _, ids := range bySession {
		if len(ids) < 2 {
			continue
		}

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if _, err := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
					Kind: homergraph.EdgeRelatedPrompts,
					Members: []homergraph.Member{
						{NodeID: ids[i], Role: "member", Position: 0},
						{NodeID: ids[j], Role: "member", Position: 1},
					},
					Confidence: 1.0,
				}); err != nil {
					return fmt.Errorf("upsert related prompts edge: %w", err)
				}

				stats.EdgesUpserted++
			}
		}
	}

	return nil
}
