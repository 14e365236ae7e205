package extract

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/homergraph"
)

// manifestParsers maps a manifest filename to the function that extracts
// its declared external dependency names.
var manifestParsers = map[string]func([]byte) ([]string, error){
	"go.mod":         parseGoMod,
	"Cargo.toml":     parseCargoToml,
	"pyproject.toml": parsePyprojectToml,
}

// StructureExtractor walks the working tree under include/exclude globs
// and creates File/Module nodes, BelongsTo edges, and ExternalDep nodes
// with DependsOn edges from recognized manifests. Gated by
// structure_last_sha == git_last_sha: structure only needs to rerun when
// the tree itself may have changed.
type StructureExtractor struct {
	ReadDir  func(root string) (fs.FS, error)
	RootPath string
}

// NewStructureExtractor builds a StructureExtractor rooted at rootPath,
// walking the OS filesystem.
func NewStructureExtractor(rootPath string) *StructureExtractor {
	return &StructureExtractor{
		RootPath: rootPath,
		ReadDir:  func(root string) (fs.FS, error) { return os.DirFS(root), nil },
	}
}

func (e *StructureExtractor) Name() string { return "structure" }

func (e *StructureExtractor) HasWork(ctx context.Context, store *homergraph.Store) (bool, error) {
	gitSHA, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	if err != nil {
		return false, err
	}

	if !ok {
		return true, nil
	}

	structureSHA, ok, err := store.GetCheckpoint(ctx, homergraph.CheckpointStructureLastSHA)
	if err != nil {
		return false, err
	}

	return !ok || structureSHA != gitSHA, nil
}

func (e *StructureExtractor) Extract(ctx context.Context, store *homergraph.Store, cfg *config.Config) (ExtractStats, error) {
	stats := ExtractStats{}

	fsys, err := e.ReadDir(e.RootPath)
	if err != nil {
		return stats, errkind.Wrap(errkind.Capability, e.Name(), e.RootPath, "open working tree: %w", err)
	}

	moduleDirs := map[string]bool{}

	walkErr := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.RecordError(p, errkind.Input, walkErr)

			return nil
		}

		if d.IsDir() {
			return nil
		}

		if !e.matchesIncludeExclude(p, cfg.Repository.IncludeGlobs, cfg.Repository.ExcludeGlobs) {
			return nil
		}

		fileID, change, fileErr := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeFile, Name: p})
		if fileErr != nil {
			stats.RecordError(p, errkind.Input, fileErr)

			return nil
		}

		stats.RecordChange(change)
		stats.ItemsProcessed++

		dir := path.Dir(p)
		if dir != "." {
			moduleDirs[dir] = true

			if edgeErr := e.linkFileToModule(ctx, store, &stats, fileID, dir); edgeErr != nil {
				stats.RecordError(p, errkind.Input, edgeErr)
			}
		}

		if parser, recognized := manifestParsers[path.Base(p)]; recognized {
			if manifestErr := e.extractManifest(ctx, store, &stats, fsys, p, parser); manifestErr != nil {
				stats.RecordError(p, errkind.Input, manifestErr)
			}
		}

		return nil
	})
	if walkErr != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), e.RootPath, "walk tree: %w", walkErr)
	}

	gitSHA, _, err := store.GetCheckpoint(ctx, homergraph.CheckpointGitLastSHA)
	if err != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "read git checkpoint: %w", err)
	}

	if setErr := store.SetCheckpoint(ctx, homergraph.CheckpointStructureLastSHA, gitSHA); setErr != nil {
		return stats, errkind.Wrap(errkind.Invariant, e.Name(), "checkpoint", "advance checkpoint: %w", setErr)
	}

	return stats, nil
}

func (e *StructureExtractor) matchesIncludeExclude(p string, includes, excludes []string) bool {
	for _, pattern := range excludes {
		if globMatch(pattern, p) {
			return false
		}
	}

	if len(includes) == 0 {
		return true
	}

	for _, pattern := range includes {
		if globMatch(pattern, p) {
			return true
		}
	}

	return false
}

// globMatch matches p against pattern either as a filepath.Match glob
// over the whole path or, for a leading "**/" prefix, against every
// path suffix — enough recursive-glob support for include/exclude
// manifests without pulling in a dedicated doublestar matcher.
func globMatch(pattern, p string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		for _, candidate := range pathSuffixes(p) {
			if ok, _ := filepath.Match(suffix, candidate); ok {
				return true
			}
		}

		return false
	}

	ok, _ := filepath.Match(pattern, p)

	return ok
}

func pathSuffixes(p string) []string {
	parts := strings.Split(p, "/")
	suffixes := make([]string, 0, len(parts))

	for i := range parts {
		suffixes = append(suffixes, strings.Join(parts[i:], "/"))
	}

	return suffixes
}

func (e *StructureExtractor) linkFileToModule(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats, fileID int64, dir string,
) error {
	modID, change, err := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeModule, Name: dir})
	if err != nil {
		return fmt.Errorf("upsert module %s: %w", dir, err)
	}

	stats.RecordChange(change)

	if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
		Kind: homergraph.EdgeBelongsTo,
		Members: []homergraph.Member{
			{NodeID: fileID, Role: "member", Position: 0},
			{NodeID: modID, Role: "module", Position: 1},
		},
		Confidence: 1.0,
	}); edgeErr != nil {
		return fmt.Errorf("upsert belongs_to edge for %s: %w", dir, edgeErr)
	}

	stats.EdgesUpserted++

	return nil
}

func (e *StructureExtractor) extractManifest(
	ctx context.Context, store *homergraph.Store, stats *ExtractStats,
	fsys fs.FS, manifestPath string, parse func([]byte) ([]string, error),
) error {
	raw, err := fs.ReadFile(fsys, manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}

	deps, err := parse(raw)
	if err != nil {
		return fmt.Errorf("parse manifest %s: %w", manifestPath, err)
	}

	manifestFile, err := store.GetNode(ctx, homergraph.NodeFile, manifestPath)
	if err != nil {
		return fmt.Errorf("lookup manifest node %s: %w", manifestPath, err)
	}

	for _, dep := range deps {
		depID, change, depErr := store.UpsertNode(ctx, homergraph.NodeUpsert{Kind: homergraph.NodeExternalDep, Name: dep})
		if depErr != nil {
			return fmt.Errorf("upsert dependency %s: %w", dep, depErr)
		}

		stats.RecordChange(change)

		if _, edgeErr := store.UpsertHyperedge(ctx, homergraph.HyperedgeUpsert{
			Kind: homergraph.EdgeDependsOn,
			Members: []homergraph.Member{
				{NodeID: manifestFile.ID, Role: "dependent", Position: 0},
				{NodeID: depID, Role: "dependency", Position: 1},
			},
			Confidence: 1.0,
		}); edgeErr != nil {
			return fmt.Errorf("upsert depends_on edge for %s: %w", dep, edgeErr)
		}

		stats.EdgesUpserted++
	}

	return nil
}

func parseGoMod(raw []byte) ([]string, error) {
	deps := []string{}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "require ") && !isIndentedRequireLine(line) {
			continue
		}

		fields := strings.Fields(strings.TrimPrefix(line, "require "))
		if len(fields) >= 1 && fields[0] != "(" {
			deps = append(deps, fields[0])
		}
	}

	return deps, nil
}

func isIndentedRequireLine(line string) bool {
	fields := strings.Fields(line)

	if len(fields) > 0 && (fields[0] == "go" || fields[0] == "toolchain") {
		return false
	}

	return len(fields) >= 2 && strings.Count(fields[1], ".") > 0 && !strings.Contains(line, "module ")
}

func parseCargoToml(raw []byte) ([]string, error) {
	var doc struct {
		Dependencies map[string]any `toml:"dependencies"`
	}

	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode Cargo.toml: %w", err)
	}

	deps := make([]string, 0, len(doc.Dependencies))
	for name := range doc.Dependencies {
		deps = append(deps, name)
	}

	return deps, nil
}

func parsePyprojectToml(raw []byte) ([]string, error) {
	var doc struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
	}

	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode pyproject.toml: %w", err)
	}

	deps := make([]string, 0, len(doc.Project.Dependencies))

	for _, spec := range doc.Project.Dependencies {
		name := strings.FieldsFunc(spec, func(r rune) bool {
			return r == '=' || r == '<' || r == '>' || r == '~' || r == '!' || r == ' '
		})
		if len(name) > 0 {
			deps = append(deps, name[0])
		}
	}

	return deps, nil
}
