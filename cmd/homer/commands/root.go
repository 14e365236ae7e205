// Package commands implements CLI command handlers for homer.
package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/observability"
	"github.com/homer-mine/homer/pkg/version"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	dbPath     string
	repoPath   string
	verbose    bool
	jsonLogs   bool
}

// NewRootCommand builds the homer root command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "homer",
		Short:         "Homer mines a git repository into an agent-consumable knowledge graph",
		Long:          "Homer ingests a git working tree and produces a content-addressed\nhypergraph of code entities, commits, and documents, enriched with\nbehavioral and graph-theoretic metrics, rendered into structured\nartifacts such as AGENTS.md.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to homer.toml (default: search ./, ./config, /etc/homer)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db-path", "", "store path (overrides config and HOMER_DB_PATH)")
	root.PersistentFlags().StringVarP(&flags.repoPath, "repo", "r", ".", "repository path to mine")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug-level logging")
	root.PersistentFlags().BoolVar(&flags.jsonLogs, "json-logs", false, "JSON-formatted log output")

	root.AddCommand(
		newRunCommand(flags),
		newRenderCommand(flags),
		newSnapshotCommand(flags),
		newSearchCommand(flags),
		newMCPCommand(flags),
	)

	return root
}

// loadConfig resolves the effective configuration for a command
// invocation, applying flag precedence: --db-path beats HOMER_DB_PATH
// beats the config file's store.path beats the computed default.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.repoPath != "" {
		cfg.Repository.Path = flags.repoPath

		// LoadConfig computed the default store path before the --repo
		// flag was known; recompute it unless something more specific
		// (flag, env, explicit config value) pinned it.
		if flags.dbPath == "" && os.Getenv(config.DBPathEnvVar) == "" &&
			cfg.Store.Path == "./"+config.DefaultStoreRelativePath {
			cfg.Store.Path = filepath.Join(flags.repoPath, config.DefaultStoreRelativePath)
		}
	}

	if flags.dbPath != "" {
		cfg.Store.Path = flags.dbPath
	}

	return cfg, nil
}

// initObservability stands up tracing, metrics, and logging per the
// persistent flags. The returned shutdown function flushes exporters.
func initObservability(flags *rootFlags, mode observability.AppMode) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	obsCfg.LogJSON = flags.jsonLogs

	if flags.verbose {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.DebugTrace = true
	}

	return observability.Init(obsCfg)
}
