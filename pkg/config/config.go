// Package config provides configuration loading and validation for the Homer pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPort            = errors.New("invalid mcp server port")
	ErrInvalidIOConcurrency   = errors.New("io concurrency must be positive")
	ErrInvalidMinConfidence   = errors.New("co-change min confidence must be in (0, 1]")
	ErrInvalidMarginalGain    = errors.New("co-change min marginal gain must be in [0, 1)")
	ErrInvalidMaxGroupSize    = errors.New("co-change max group size must be positive")
	ErrInvalidDamping         = errors.New("pagerank damping must be in (0, 1)")
	ErrInvalidIterationCap    = errors.New("centrality iteration cap must be positive")
	ErrInvalidApproxThreshold = errors.New("betweenness approx threshold must be positive")
	ErrSalienceWeightsInvalid = errors.New("composite salience weights must be non-negative and sum to 1")
)

// envPrefix is the prefix viper uses for automatic environment overrides,
// e.g. HOMER_PIPELINE_IO_CONCURRENCY.
const envPrefix = "HOMER"

// DBPathEnvVar overrides the store path independent of the config file.
// It takes precedence over the computed default but not an explicit
// --db-path CLI flag.
const DBPathEnvVar = "HOMER_DB_PATH"

// Default configuration values.
const (
	defaultMCPPort         = 8765
	defaultMCPHost         = "127.0.0.1"
	defaultIOConcurrency   = 5
	defaultSnapshotCommits = 50
	defaultSeedConfidence  = 0.5
	defaultMinConfidence   = 0.3
	defaultMinMarginal     = 0.05
	defaultMaxGroupSize    = 8
	defaultDamping         = 0.85
	defaultConvergence     = 1e-6
	defaultIterationCap    = 100
	defaultApproxThreshold = 50000
	defaultWeightPageRank  = 0.30
	defaultWeightBetween   = 0.15
	defaultWeightAuthority = 0.15
	defaultWeightChurn     = 0.25
	defaultWeightBus       = 0.15
	weightSumTolerance     = 1e-9
)

// Config holds all configuration for a Homer pipeline run.
type Config struct {
	Repository RepositoryConfig `mapstructure:"repository"`
	Store      StoreConfig      `mapstructure:"store"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Behavioral BehavioralConfig `mapstructure:"behavioral"`
	Centrality CentralityConfig `mapstructure:"centrality"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Forge      ForgeConfig      `mapstructure:"forge"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	MCP        MCPConfig        `mapstructure:"mcp"`
}

// RepositoryConfig scopes the working tree being mined.
type RepositoryConfig struct {
	Path         string   `mapstructure:"path"`
	IncludeGlobs []string `mapstructure:"include_globs"`
	ExcludeGlobs []string `mapstructure:"exclude_globs"`
	FirstParent  bool     `mapstructure:"first_parent"`
}

// StoreConfig configures the embedded hypergraph store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig configures orchestration concurrency and forced-work flags.
type PipelineConfig struct {
	Workers       int  `mapstructure:"workers"`
	IOConcurrency int  `mapstructure:"io_concurrency"`
	ForceAnalysis bool `mapstructure:"force_analysis"`
	ForceSemantic bool `mapstructure:"force_semantic"`
}

// BehavioralConfig tunes the co-change clustering algorithm.
type BehavioralConfig struct {
	SeedConfidence             float64 `mapstructure:"seed_confidence"`
	MinConfidence              float64 `mapstructure:"min_confidence"`
	MinMarginalGain            float64 `mapstructure:"min_marginal_gain"`
	MaxGroupSize               int     `mapstructure:"max_group_size"`
	ChangeFrequencyWindowsDays []int   `mapstructure:"change_frequency_windows_days"`
}

// SalienceWeights is the fixed convex combination used by composite
// salience. Surfaced as named, independently-overridable constants so a
// regression test can pin each weight's contribution individually.
type SalienceWeights struct {
	PageRank    float64 `mapstructure:"pagerank"`
	Betweenness float64 `mapstructure:"betweenness"`
	Authority   float64 `mapstructure:"authority"`
	Churn       float64 `mapstructure:"churn"`
	BusFactor   float64 `mapstructure:"bus_factor"`
}

// CentralityConfig tunes PageRank/Brandes/HITS and composite salience.
type CentralityConfig struct {
	Damping         float64         `mapstructure:"damping"`
	Convergence     float64         `mapstructure:"convergence"`
	IterationCap    int             `mapstructure:"iteration_cap"`
	ApproxThreshold int             `mapstructure:"approx_threshold"`
	SalienceWeights SalienceWeights `mapstructure:"salience_weights"`
}

// SnapshotConfig tunes snapshotter cadence.
type SnapshotConfig struct {
	EveryCommits int `mapstructure:"every_commits"`
}

// ForgeConfig configures the optional forge (GitHub/GitLab) extractor.
type ForgeConfig struct {
	Provider string `mapstructure:"provider"`
	Owner    string `mapstructure:"owner"`
	Repo     string `mapstructure:"repo"`
	Token    string `mapstructure:"token"`
	BaseURL  string `mapstructure:"base_url"`
	Timeout  string `mapstructure:"timeout"`
}

// LLMConfig configures the optional Summarizer capability.
type LLMConfig struct {
	Provider              string `mapstructure:"provider"`
	Model                 string `mapstructure:"model"`
	APIKey                string `mapstructure:"api_key"`
	PromptTemplateVersion string `mapstructure:"prompt_template_version"`
	Timeout               string `mapstructure:"timeout"`
	CacheDir              string `mapstructure:"cache_dir"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig configures the MCP server peripheral.
type MCPConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Transport string `mapstructure:"transport"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
}

// LoadConfig loads configuration from a TOML file and environment
// variables. An empty configPath searches ./homer.toml, ./config/homer.toml,
// and /etc/homer/homer.toml, falling back to defaults if none is found.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("homer")
		viperCfg.SetConfigType("toml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/homer")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var cfg Config

	if unmarshalErr := viperCfg.Unmarshal(&cfg); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	resolveStorePath(&cfg)

	if validateErr := validateConfig(&cfg); validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &cfg, nil
}

// resolveStorePath applies the store path override precedence:
// HOMER_DB_PATH wins, then an explicit store.path in the config file,
// then the computed default "<repo>/.homer/homer.db". Callers that
// accept a --db-path CLI flag should overwrite cfg.Store.Path after
// LoadConfig returns, since a flag takes precedence over all of the
// above.
func resolveStorePath(cfg *Config) {
	if envPath := os.Getenv(DBPathEnvVar); envPath != "" {
		cfg.Store.Path = envPath

		return
	}

	if cfg.Store.Path != "" {
		return
	}

	repoPath := cfg.Repository.Path
	if repoPath == "" {
		repoPath = "."
	}

	cfg.Store.Path = repoPath + "/.homer/homer.db"
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("repository.include_globs", []string{"**/*"})
	viperCfg.SetDefault("repository.exclude_globs", []string{"**/.git/**", "**/node_modules/**", "**/vendor/**"})
	viperCfg.SetDefault("repository.first_parent", false)

	viperCfg.SetDefault("pipeline.workers", 0)
	viperCfg.SetDefault("pipeline.io_concurrency", defaultIOConcurrency)
	viperCfg.SetDefault("pipeline.force_analysis", false)
	viperCfg.SetDefault("pipeline.force_semantic", false)

	viperCfg.SetDefault("behavioral.seed_confidence", defaultSeedConfidence)
	viperCfg.SetDefault("behavioral.min_confidence", defaultMinConfidence)
	viperCfg.SetDefault("behavioral.min_marginal_gain", defaultMinMarginal)
	viperCfg.SetDefault("behavioral.max_group_size", defaultMaxGroupSize)
	viperCfg.SetDefault("behavioral.change_frequency_windows_days", []int{30, 90, 365})

	viperCfg.SetDefault("centrality.damping", defaultDamping)
	viperCfg.SetDefault("centrality.convergence", defaultConvergence)
	viperCfg.SetDefault("centrality.iteration_cap", defaultIterationCap)
	viperCfg.SetDefault("centrality.approx_threshold", defaultApproxThreshold)
	viperCfg.SetDefault("centrality.salience_weights.pagerank", defaultWeightPageRank)
	viperCfg.SetDefault("centrality.salience_weights.betweenness", defaultWeightBetween)
	viperCfg.SetDefault("centrality.salience_weights.authority", defaultWeightAuthority)
	viperCfg.SetDefault("centrality.salience_weights.churn", defaultWeightChurn)
	viperCfg.SetDefault("centrality.salience_weights.bus_factor", defaultWeightBus)

	viperCfg.SetDefault("snapshot.every_commits", defaultSnapshotCommits)

	viperCfg.SetDefault("forge.provider", "github")
	viperCfg.SetDefault("forge.timeout", "30s")

	viperCfg.SetDefault("llm.provider", "openai")
	viperCfg.SetDefault("llm.prompt_template_version", "v1")
	viperCfg.SetDefault("llm.timeout", "60s")
	viperCfg.SetDefault("llm.cache_dir", ".homer/llm-cache")

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "json")
	viperCfg.SetDefault("logging.output", "stderr")

	viperCfg.SetDefault("mcp.enabled", false)
	viperCfg.SetDefault("mcp.transport", "stdio")
	viperCfg.SetDefault("mcp.host", defaultMCPHost)
	viperCfg.SetDefault("mcp.port", defaultMCPPort)
}

// validateConfig validates the configuration.
func validateConfig(cfg *Config) error {
	if cfg.MCP.Port <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.MCP.Port)
	}

	if cfg.Pipeline.IOConcurrency <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIOConcurrency, cfg.Pipeline.IOConcurrency)
	}

	if cfg.Behavioral.MinConfidence <= 0 || cfg.Behavioral.MinConfidence > 1 {
		return fmt.Errorf("%w: %f", ErrInvalidMinConfidence, cfg.Behavioral.MinConfidence)
	}

	if cfg.Behavioral.MinMarginalGain < 0 || cfg.Behavioral.MinMarginalGain >= 1 {
		return fmt.Errorf("%w: %f", ErrInvalidMarginalGain, cfg.Behavioral.MinMarginalGain)
	}

	if cfg.Behavioral.MaxGroupSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxGroupSize, cfg.Behavioral.MaxGroupSize)
	}

	if cfg.Centrality.Damping <= 0 || cfg.Centrality.Damping >= 1 {
		return fmt.Errorf("%w: %f", ErrInvalidDamping, cfg.Centrality.Damping)
	}

	if cfg.Centrality.IterationCap <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterationCap, cfg.Centrality.IterationCap)
	}

	if cfg.Centrality.ApproxThreshold <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidApproxThreshold, cfg.Centrality.ApproxThreshold)
	}

	return validateSalienceWeights(cfg.Centrality.SalienceWeights)
}

func validateSalienceWeights(w SalienceWeights) error {
	if w.PageRank < 0 || w.Betweenness < 0 || w.Authority < 0 || w.Churn < 0 || w.BusFactor < 0 {
		return ErrSalienceWeightsInvalid
	}

	sum := w.PageRank + w.Betweenness + w.Authority + w.Churn + w.BusFactor

	diff := sum - 1.0
	if diff < 0 {
		diff = -diff
	}

	if diff > weightSumTolerance {
		return fmt.Errorf("%w: got %f", ErrSalienceWeightsInvalid, sum)
	}

	return nil
}
