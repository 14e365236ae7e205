// Package render implements the Renderer Framework: independent
// renderers that each own an output path relative to the repository
// root and an idempotent Render operation, composed by a Write path
// that merges generated content with any human-authored preserve
// regions already on disk.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/homer-mine/homer/pkg/homergraph"
)

// Renderer produces one artifact from the store's current state.
// Render must be deterministic for unchanged store state: rendering
// twice with no intervening writes yields byte-identical output.
type Renderer interface {
	// Path is the renderer's output location, relative to the
	// repository root.
	Path() string
	// Render reads whatever it needs from store and returns the
	// artifact's full generated content.
	Render(ctx context.Context, store *homergraph.Store) (string, error)
}

// Result reports what a single renderer produced.
type Result struct {
	Renderer string
	Path     string
	Content  string
	Written  bool
}

// Write runs r against store and, unless dryRun, writes the merged
// content to repoRoot/r.Path(), creating parent directories as
// needed. When the target file already exists, any
// <!-- homer:preserve --> regions in it are carried into the merged
// output per MergePreserve. The returned Result always carries the
// content that would be (or was) written.
func Write(ctx context.Context, store *homergraph.Store, repoRoot string, r Renderer, dryRun bool) (Result, error) {
	generated, err := r.Render(ctx, store)
	if err != nil {
		return Result{}, fmt.Errorf("render %s: %w", r.Path(), err)
	}

	full := filepath.Join(repoRoot, r.Path())

	existing, readErr := os.ReadFile(full)
	if readErr != nil && !os.IsNotExist(readErr) {
		return Result{}, fmt.Errorf("read existing %s: %w", full, readErr)
	}

	merged := string(MergePreserve(existing, []byte(generated)))

	result := Result{Renderer: fmt.Sprintf("%T", r), Path: r.Path(), Content: merged}

	if dryRun {
		return result, nil
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(full), 0o755); mkdirErr != nil {
		return result, fmt.Errorf("create parent directories for %s: %w", full, mkdirErr)
	}

	if writeErr := os.WriteFile(full, []byte(merged), 0o644); writeErr != nil {
		return result, fmt.Errorf("write %s: %w", full, writeErr)
	}

	result.Written = true

	return result, nil
}

// WriteAll runs Write for each renderer in order, stopping at the
// first error (renderers run sequentially within the render stage per
// the single-coordinator scheduling model; per-renderer CPU-bound
// fanout happens inside an individual renderer, not across renderers).
func WriteAll(ctx context.Context, store *homergraph.Store, repoRoot string, renderers []Renderer, dryRun bool) ([]Result, error) {
	results := make([]Result, 0, len(renderers))

	for _, r := range renderers {
		result, err := Write(ctx, store, repoRoot, r, dryRun)
		if err != nil {
			return results, err
		}

		results = append(results, result)
	}

	return results, nil
}
