package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homer-mine/homer/pkg/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8765, cfg.MCP.Port)
	assert.Equal(t, "127.0.0.1", cfg.MCP.Host)
	assert.Equal(t, 5, cfg.Pipeline.IOConcurrency)
	assert.Equal(t, 0.3, cfg.Behavioral.MinConfidence)
	assert.Equal(t, 0.85, cfg.Centrality.Damping)
	assert.Equal(t, 50000, cfg.Centrality.ApproxThreshold)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	configContent := `
[pipeline]
io_concurrency = 12
force_analysis = true

[behavioral]
min_confidence = 0.5
max_group_size = 4

[mcp]
port = 9000
host = "0.0.0.0"

[store]
path = "/tmp/test-store.db"
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-config-*.toml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	require.NoError(t, tmpFile.Close())

	cfg, loadErr := config.LoadConfig(tmpFile.Name())
	require.NoError(t, loadErr)

	assert.Equal(t, 9000, cfg.MCP.Port)
	assert.Equal(t, "0.0.0.0", cfg.MCP.Host)
	assert.Equal(t, 12, cfg.Pipeline.IOConcurrency)
	assert.True(t, cfg.Pipeline.ForceAnalysis)
	assert.Equal(t, 0.5, cfg.Behavioral.MinConfidence)
	assert.Equal(t, 4, cfg.Behavioral.MaxGroupSize)
	assert.Equal(t, "/tmp/test-store.db", cfg.Store.Path)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("HOMER_MCP_PORT", "9090")
	t.Setenv("HOMER_PIPELINE_IO_CONCURRENCY", "6")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.MCP.Port)
	assert.Equal(t, 6, cfg.Pipeline.IOConcurrency)
}

func TestResolveStorePath_DefaultsUnderRepository(t *testing.T) {
	t.Parallel()

	configContent := `
[repository]
path = "/repos/example"
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-store-path-*.toml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	require.NoError(t, tmpFile.Close())

	cfg, loadErr := config.LoadConfig(tmpFile.Name())
	require.NoError(t, loadErr)

	assert.Equal(t, "/repos/example/.homer/homer.db", cfg.Store.Path)
}

func TestResolveStorePath_EnvOverridesDefault(t *testing.T) {
	t.Setenv(config.DBPathEnvVar, "/var/homer/custom.db")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/var/homer/custom.db", cfg.Store.Path)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 8765, cfg.MCP.Port)
	assert.Equal(t, 100, cfg.Centrality.IterationCap)
	assert.Equal(t, 8, cfg.Behavioral.MaxGroupSize)
}

func TestValidateConfig_RejectsBadSalienceWeights(t *testing.T) {
	t.Parallel()

	configContent := `
[centrality.salience_weights]
pagerank = 0.9
betweenness = 0.9
authority = 0.0
churn = 0.0
bus_factor = 0.0
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-bad-weights-*.toml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	require.NoError(t, tmpFile.Close())

	_, loadErr := config.LoadConfig(tmpFile.Name())
	require.ErrorIs(t, loadErr, config.ErrSalienceWeightsInvalid)
}

func TestValidateConfig_RejectsZeroIOConcurrency(t *testing.T) {
	t.Parallel()

	configContent := `
[pipeline]
io_concurrency = 0
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-bad-concurrency-*.toml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	require.NoError(t, tmpFile.Close())

	_, loadErr := config.LoadConfig(tmpFile.Name())
	require.ErrorIs(t, loadErr, config.ErrInvalidIOConcurrency)
}
