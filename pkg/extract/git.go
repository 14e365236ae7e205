package extract

import (
	"context"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/homer-mine/homer/pkg/capability"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/identity"
)

// renameSimilarityThreshold is the minimum diffmatchpatch similarity
// score at which a delete+add pair is treated as a rename rather than
// two independent file changes, surfaced as an Aliases edge.
const renameSimilarityThreshold = 0.5

// GitExtractor reads commits since the git_last_sha checkpoint and
// creates Commit, Contributor, and Release nodes plus Modifies,
// Authored, Includes, and Aliases hyperedges.
type GitExtractor struct {
	Reader capability.GitReader
}

// NewGitExtractor builds a GitExtractor over the given reader.
func NewGitExtractor(reader capability.GitReader) *GitExtractor {
	return &GitExtractor{Reader: reader}
}

func (e *GitExtractor) Name() string { return "git" }

func (e *GitExtractor) HasWork(ctx context.Context, store *homergraph.Store) (bool, error) {
	head, err := e.Reader.Head(ctx)
	if err != nil {
		return false, fmt.Errorf("read HEAD: %w", err)
	}

	last, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	if err != nil {
		return false, err
	}

	return !ok || last != head, nil
}

func (e *GitExtractor) Extract(ctx context.Context, store *homergraph.Store, _ *config.Config) (ExtractStats, error) {
	stats := ExtractStats{}

	last, _, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	if err != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "read checkpoint: %w", err)
	}

	commits, err := e.Reader.WalkSince(ctx, last)
	if err != nil {
		return stats, errkind.Wrap(errkind.Transient, e.Name(), "walk", "walk history since %s: %w", last, err)
	}

	var head string

	for _, c := range commits {
		if extractErr := e.extractCommit(ctx, store, &stats, c); extractErr != nil {
			stats.RecordError(c.SHA, errkind.KindOf(extractErr), extractErr)

			continue
		}

		head = c.SHA
	}

	if extractErr := e.extractReleases(ctx, store, &stats); extractErr != nil {
		stats.RecordError("releases", errkind.KindOf(extractErr), extractErr)
	}

	if aliasCount, aliasErr := identity.ResolveAliases(ctx, store); aliasErr != nil {
		stats.RecordError("contributor-aliases", errkind.KindOf(aliasErr), aliasErr)
	} else {
		stats.EdgesUpserted += aliasCount
	}

	if head != "" {
		if setErr := store.SetCheckpoint(ctx, homergraph.CheckpointGitLastSHA, head); setErr != nil {
			return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "advance checkpoint: %w", setErr)
		}
	}

	return stats, nil
}

func (e *GitExtractor) extractCommit(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, c capability.Commit,
) error {
	commitID, commitChange, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodeCommit,
		Name: c.SHA,
		Metadata: map[string]any{
			"message":   c.Message,
			"timestamp": c.Timestamp,
			"parents":   c.ParentSHAs,
		},
	})
	if err != nil {
		return fmt.Errorf("upsert commit %s: %w", c.SHA, err)
	}

	stats.RecordChange(commitChange)

	authorID, authorChange, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind:     homergraph.NodeContributor,
		Name:     c.Author.Email,
		Metadata: map[string]any{"name": c.Author.Name},
	})
	if err != nil {
		return fmt.Errorf("upsert contributor %s: %w", c.Author.Email, err)
	}

	stats.RecordChange(authorChange)

	if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeAuthored,
		Members: []homergraph.Member{
			{NodeID: authorID, Role: "author", Position: 0},
			{NodeID: commitID, Role: "commit", Position: 1},
		},
		Confidence: 1.0,
	}); edgeErr != nil {
		return fmt.Errorf("upsert authored edge for %s: %w", c.SHA, edgeErr)
	}

	stats.EdgesUpserted++

	fileIDs := make([]int64, 0, len(c.FileDiffs))

	for _, diff := range c.FileDiffs {
		fileID, fileErr := e.upsertTouchedFile(ctx, store, stats, diff)
		if fileErr != nil {
			return fileErr
		}

		fileIDs = append(fileIDs, fileID)

		if _, modErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeModifies,
			Members: []homergraph.Member{
				{NodeID: commitID, Role: "commit", Position: 0},
				{NodeID: fileID, Role: "file", Position: 1},
			},
			Confidence: 1.0,
			Metadata: map[string]any{
				"lines_added":   diff.LinesAdded,
				"lines_deleted": diff.LinesDeleted,
				"status":        diff.Status,
			},
		}); modErr != nil {
			return fmt.Errorf("upsert modifies edge for %s: %w", diff.NewPath, modErr)
		}

		stats.EdgesUpserted++

		if aliasErr := e.detectRename(ctx, store, stats, diff); aliasErr != nil {
			return aliasErr
		}
	}

	if len(fileIDs) > 0 {
		members := make([]homergraph.Member, 0, len(fileIDs)+1)
		members = append(members, homergraph.Member{NodeID: commitID, Role: "commit", Position: 0})

		for i, id := range fileIDs {
			members = append(members, homergraph.Member{NodeID: id, Role: "file", Position: i + 1})
		}

		if _, incErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeIncludes, Members: members, Confidence: 1.0,
		}); incErr != nil {
			return fmt.Errorf("upsert includes edge for %s: %w", c.SHA, incErr)
		}

		stats.EdgesUpserted++
	}

	stats.ItemsProcessed++

	return nil
}

func (e *GitExtractor) upsertTouchedFile(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, diff capability.FileDiff,
) (int64, error) {
	id, change, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind: homergraph.NodeFile,
		Name: diff.NewPath,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert file %s: %w", diff.NewPath, err)
	}

	stats.RecordChange(change)

	return id, nil
}

// detectRename scores old/new path similarity with diffmatchpatch when
// the reader didn't already report a rename-similarity score, emitting
// an Aliases edge at or above renameSimilarityThreshold.
func (e *GitExtractor) detectRename(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, diff capability.FileDiff,
) error {
	if diff.OldPath == "" || diff.OldPath == diff.NewPath {
		return nil
	}

	similarity := diff.RenameSimilarity
	if !diff.HasRenameMetadata {
		similarity = pathSimilarity(diff.OldPath, diff.NewPath)
	}

	if similarity < renameSimilarityThreshold {
		return nil
	}

	oldID, oldChange, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: diff.OldPath})
	if err != nil {
		return fmt.Errorf("upsert old alias path %s: %w", diff.OldPath, err)
	}

	stats.RecordChange(oldChange)

	newID, err := store.GetNode(ctx, homergraph.NodeFile, diff.NewPath)
	if err != nil {
		return fmt.Errorf("lookup renamed file %s: %w", diff.NewPath, err)
	}

	if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeAliases,
		Members: []homergraph.Member{
			{NodeID: oldID, Role: "old", Position: 0},
			{NodeID: newID.ID, Role: "new", Position: 1},
		},
		Confidence: similarity,
	}); edgeErr != nil {
		return fmt.Errorf("upsert aliases edge %s->%s: %w", diff.OldPath, diff.NewPath, edgeErr)
	}

	stats.EdgesUpserted++

	return nil
}

// pathSimilarity scores two paths by diff-match-patch Levenshtein
// distance over the full paths, normalized into [0,1].
func pathSimilarity(oldPath, newPath string) float64 {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldPath, newPath, false)
	distance := dmp.DiffLevenshtein(diffs)

	maxLen := len(oldPath)
	if len(newPath) > maxLen {
		maxLen = len(newPath)
	}

	if maxLen == 0 {
		return 1.0
	}

	return 1.0 - float64(distance)/float64(maxLen)
}

func (e *GitExtractor) extractReleases(ctx context.Context, store *homergraph.Store, stats *ExtractStats) error {
	tags, err := e.Reader.Tags(ctx)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}

	for _, tag := range tags {
		relID, relChange, relErr := store.UpsertNode(ctx, homergraph.NodeUpsert{
			Kind: homergraph.NodeRelease, Name: tag.Name,
		})
		if relErr != nil {
			return fmt.Errorf("upsert release %s: %w", tag.Name, relErr)
		}

		stats.RecordChange(relChange)

		commit, lookupErr := store.GetNode(ctx, homergraph.NodeCommit, tag.SHA)
		if lookupErr != nil {
			continue
		}

		if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeBelongsTo,
			Members: []homergraph.Member{
				{NodeID: commit.ID, Role: "member", Position: 0},
				{NodeID: relID, Role: "release", Position: 1},
			},
			Confidence: 1.0,
		}); edgeErr != nil {
			return fmt.Errorf("upsert release edge %s: %w", tag.Name, edgeErr)
		}

		stats.EdgesUpserted++
	}

	return nil
}
