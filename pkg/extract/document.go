package extract

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/homergraph"
)

var documentExtensions = map[string]bool{".md": true, ".mdx": true, ".rst": true, ".txt": true}

// DocumentExtractor scans prose documentation files and creates
// Document nodes, keeping their content hash so unrelated edits don't
// churn them and so Documents/RelatedPrompts edges can reference them.
type DocumentExtractor struct {
	RootPath string
}

// NewDocumentExtractor builds a DocumentExtractor rooted at rootPath.
func NewDocumentExtractor(rootPath string) *DocumentExtractor {
	return &DocumentExtractor{RootPath: rootPath}
}

func (e *DocumentExtractor) Name() string { return "document" }

func (e *DocumentExtractor) HasWork(ctx context.Context, store *homergraph.Store) (bool, error) {
	gitSHA, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}

	docSHA, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointDocumentLastSHA)
	if err != nil {
		return false, err
	}

	return !ok || docSHA != gitSHA, nil
}

func (e *DocumentExtractor) Extract(ctx context.Context, store *homergraph.Store, _ *config.Config) (ExtractStats, error) {
	stats := ExtractStats{}

	fsys := os.DirFS(e.RootPath)

	walkErr := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.RecordError(p, errkind.Input, walkErr)

			return nil
		}

		if d.IsDir() || !documentExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}

		if extractErr := e.extractDocument(ctx, store, &stats, fsys, p); extractErr != nil {
			stats.RecordError(p, errkind.Input, extractErr)
		}

		return nil
	})
	if walkErr != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), e.RootPath, "walk documents: %w", walkErr)
	}

	gitSHA, _, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	if err != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "read git checkpoint: %w", err)
	}

	if setErr := store.SetCheckpoint(ctx, homergraph.CheckpointDocumentLastSHA, gitSHA); setErr != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "advance checkpoint: %w", setErr)
	}

	return stats, nil
}

func (e *DocumentExtractor) extractDocument(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, fsys fs.FS, p string,
) error {
	raw, err := fs.ReadFile(fsys, p)
	if err != nil {
		return fmt.Errorf("read document %s: %w", p, err)
	}

	sum := sha256.Sum256(raw)
	hash := contentHashUint64(sum)

	_, change, err := store.UpsertNode(ctx, homergraph.NodeUpsert{
		Kind:        homergraph.NodeDocument,
		Name:        p,
		ContentHash: &hash,
		Metadata:    map[string]any{"bytes": len(raw)},
	})
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", p, err)
	}

	stats.RecordChange(change)
	stats.ItemsProcessed++

	return nil
}

// contentHashUint64 derives a 64-bit content hash from the leading
// bytes of a sha256 digest, stored via safeconv's exact bit-reinterpret
// round trip rather than a numeric cast.
func contentHashUint64(sum [sha256.Size]byte) uint64 {
	var h uint64
	for i := range 8 {
		h = h<<8 | uint64(sum[i])
	}

	return h
}
