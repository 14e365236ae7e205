package metrics

import "github.com/homer-mine/homer/pkg/config"

// RiskInput is the per-file signal triple the risk metric combines.
type RiskInput struct {
	Salience        float64
	BusFactor       int
	ChangeFrequency int
}

// RiskOutput is a clamped [0,1] risk score with its classification.
type RiskOutput struct {
	Score float64   `json:"risk_score"`
	Level RiskLevel `json:"risk_level"`
}

// FileRisk scores a file's maintenance risk from composite salience,
// bus factor, and change frequency:
//
//	risk_score = clamp(0.4*salience + bus_factor_penalty + churn_penalty, 0, 1)
//
// with penalties for bus factor <= 1 / <= 2 and for change counts
// above 20 / 10 / 5. The score is monotonic in salience and monotonic
// decreasing in bus factor.
type FileRisk struct {
	MetricMeta
}

// NewFileRisk builds the file risk metric.
func NewFileRisk() *FileRisk {
	return &FileRisk{MetricMeta: MetricMeta{
		MetricName:        "file_risk",
		MetricDisplayName: "File Risk",
		MetricDescription: "Composite maintenance risk per file, combining salience, bus factor, and change frequency into a clamped [0,1] score.",
		MetricType:        "risk",
	}}
}

// Compute applies the risk formula and classifies the result.
func (m *FileRisk) Compute(input RiskInput) RiskOutput {
	score := config.RiskSalienceWeight * input.Salience

	switch {
	case input.BusFactor <= 1:
		score += config.RiskBusFactorPenaltyAt1
	case input.BusFactor <= 2:
		score += config.RiskBusFactorPenaltyAt2
	}

	switch {
	case input.ChangeFrequency > 20:
		score += config.RiskChurnPenaltyAbove20
	case input.ChangeFrequency > 10:
		score += config.RiskChurnPenaltyAbove10
	case input.ChangeFrequency > 5:
		score += config.RiskChurnPenaltyAbove5
	}

	score = clamp01(score)

	return RiskOutput{Score: score, Level: classify(score)}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// classify maps a clamped score onto the renderer's level vocabulary.
// Levels are lowercase on the wire per the risk map JSON contract.
func classify(score float64) RiskLevel {
	switch {
	case score >= config.RiskThresholdCritical:
		return RiskCritical
	case score >= config.RiskThresholdHigh:
		return RiskHigh
	case score >= config.RiskThresholdMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}
