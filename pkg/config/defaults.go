// Package config provides TOML-based project configuration for Homer.
package config

// Pipeline default values, mirrored here as standalone constants so
// other packages (e.g. cmd/homer flag bindings) can reference them
// without constructing a full viper-backed Config.
const (
	DefaultPipelineWorkers       = 0
	DefaultPipelineIOConcurrency = defaultIOConcurrency
)

// Behavioral analyzer (co-change clustering) defaults.
const (
	DefaultBehavioralSeedConfidence = defaultSeedConfidence
	DefaultBehavioralMinConfidence  = defaultMinConfidence
	DefaultBehavioralMinMarginal    = defaultMinMarginal
	DefaultBehavioralMaxGroupSize   = defaultMaxGroupSize
)

// DefaultChangeFrequencyWindowsDays are the trailing windows (in days)
// over which ChangeFrequency buckets commit counts.
var DefaultChangeFrequencyWindowsDays = []int{30, 90, 365}

// Centrality analyzer defaults.
const (
	DefaultCentralityDamping         = defaultDamping
	DefaultCentralityConvergence     = defaultConvergence
	DefaultCentralityIterationCap    = defaultIterationCap
	DefaultCentralityApproxThreshold = defaultApproxThreshold
)

// Composite salience weights. The five dimensions are PageRank,
// betweenness, HITS authority, change frequency, and inverted bus factor;
// they form a convex combination (they sum to 1).
const (
	DefaultWeightPageRank    = defaultWeightPageRank
	DefaultWeightBetweenness = defaultWeightBetween
	DefaultWeightAuthority   = defaultWeightAuthority
	DefaultWeightChurn       = defaultWeightChurn
	DefaultWeightBusFactor   = defaultWeightBus
)

// Snapshot defaults.
const (
	DefaultSnapshotEveryCommits = defaultSnapshotCommits
)

// Risk map thresholds and penalties for the risk_score formula.
const (
	RiskSalienceWeight = 0.4

	RiskBusFactorPenaltyAt1 = 0.30
	RiskBusFactorPenaltyAt2 = 0.15

	RiskChurnPenaltyAbove20 = 0.30
	RiskChurnPenaltyAbove10 = 0.20
	RiskChurnPenaltyAbove5  = 0.10
)

// Risk classification thresholds over the clamped [0, 1] risk_score.
const (
	RiskThresholdCritical = 0.75
	RiskThresholdHigh     = 0.5
	RiskThresholdMedium   = 0.25
)

// Store defaults.
const (
	DefaultStoreRelativePath = ".homer/homer.db"
)

// MCP server defaults.
const (
	DefaultMCPTransport = "stdio"
)
