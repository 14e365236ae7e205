package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommandSubcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"run", "render", "snapshot", "search", "mcp"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestLoadConfigFlagPrecedence(t *testing.T) {
	t.Parallel()

	flags := &rootFlags{repoPath: "/tmp/repo", dbPath: "/tmp/custom.db"}

	cfg, err := loadConfig(flags)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/repo", cfg.Repository.Path)
	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
}

func TestLoadConfigDefaultStorePath(t *testing.T) {
	t.Parallel()

	flags := &rootFlags{repoPath: "/tmp/repo"}

	cfg, err := loadConfig(flags)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/repo", cfg.Repository.Path)
	assert.Equal(t, filepath.Join("/tmp/repo", ".homer/homer.db"), cfg.Store.Path)
}
