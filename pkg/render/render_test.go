package render_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/render"
)

type stubRenderer struct {
	path    string
	content string
}

func (s *stubRenderer) Path() string { return s.path }
func (s *stubRenderer) Render(context.Context, *homergraph.Store) (string, error) {
	return s.content, nil
}

func TestWrite_CreatesParentDirectoriesAndWritesFile(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	repoRoot := t.TempDir()
	r := &stubRenderer{path: "nested/dir/OUT.md", content: "hello\n"}

	result, err := render.Write(context.Background(), store, repoRoot, r, false)
	require.NoError(t, err)
	assert.True(t, result.Written)

	data, readErr := os.ReadFile(filepath.Join(repoRoot, r.Path()))
	require.NoError(t, readErr)
	assert.Equal(t, "hello\n", string(data))
}

func TestWrite_DryRunDoesNotTouchDisk(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	repoRoot := t.TempDir()
	r := &stubRenderer{path: "OUT.md", content: "hello\n"}

	result, err := render.Write(context.Background(), store, repoRoot, r, true)
	require.NoError(t, err)
	assert.False(t, result.Written)
	assert.Equal(t, "hello\n", result.Content)

	_, statErr := os.Stat(filepath.Join(repoRoot, r.Path()))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWrite_MergesPreserveRegionFromExistingFile(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	repoRoot := t.TempDir()
	target := filepath.Join(repoRoot, "OUT.md")

	require.NoError(t, os.WriteFile(target,
		[]byte("old\n<!-- homer:preserve -->\nhuman text\n<!-- /homer:preserve -->\n"), 0o644))

	r := &stubRenderer{path: "OUT.md", content: "new\n<!-- homer:preserve -->\n<!-- /homer:preserve -->\n"}

	result, err := render.Write(context.Background(), store, repoRoot, r, false)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "human text")
	assert.Contains(t, result.Content, "new\n")
}

func TestWriteAll_RunsEveryRenderer(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	repoRoot := t.TempDir()

	results, err := render.WriteAll(context.Background(), store, repoRoot, []render.Renderer{
		&stubRenderer{path: "a.md", content: "a\n"},
		&stubRenderer{path: "b.md", content: "b\n"},
	}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.md", results[0].Path)
	assert.Equal(t, "b.md", results[1].Path)
}
