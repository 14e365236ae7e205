package render

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/metrics"
)

// riskMapSchema is the risk map JSON contract, enforced at
// render time so a malformed payload never reaches disk.
const riskMapSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["file_path", "salience", "bus_factor", "change_frequency", "risk_level", "risk_score"],
		"properties": {
			"file_path": {"type": "string"},
			"salience": {"type": "number", "minimum": 0, "maximum": 1},
			"bus_factor": {"type": "integer", "minimum": 0},
			"change_frequency": {"type": "integer", "minimum": 0},
			"risk_level": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
			"risk_score": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}
}`

// RiskEntry is one element of the rendered risk map array.
type RiskEntry struct {
	FilePath        string  `json:"file_path"`
	Salience        float64 `json:"salience"`
	BusFactor       int     `json:"bus_factor"`
	ChangeFrequency int     `json:"change_frequency"`
	RiskLevel       string  `json:"risk_level"`
	RiskScore       float64 `json:"risk_score"`
}

// RiskMapRenderer emits the risk map: one entry per File node
// carrying CompositeSalience, ContributorConcentration, and
// ChangeFrequency results, ranked by risk score descending.
type RiskMapRenderer struct{}

// NewRiskMapRenderer builds a RiskMapRenderer.
func NewRiskMapRenderer() *RiskMapRenderer { return &RiskMapRenderer{} }

// Path implements Renderer.
func (r *RiskMapRenderer) Path() string { return ".homer/risk-map.json" }

// Render implements Renderer.
func (r *RiskMapRenderer) Render(ctx context.Context, store *homergraph.Store) (string, error) {
	files, err := store.ListNodesByKind(ctx, homergraph.NodeFile)
	if err != nil {
		return "", fmt.Errorf("list files: %w", err)
	}

	entries := make([]RiskEntry, 0, len(files))

	for _, f := range files {
		entry, ok := riskEntryForFile(ctx, store, f)
		if !ok {
			continue
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RiskScore != entries[j].RiskScore {
			return entries[i].RiskScore > entries[j].RiskScore
		}

		return entries[i].FilePath < entries[j].FilePath
	})

	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal risk map: %w", err)
	}

	if validateErr := validateRiskMapSchema(payload); validateErr != nil {
		return "", fmt.Errorf("risk map failed schema validation: %w", validateErr)
	}

	return string(payload) + "\n", nil
}

// riskEntryForFile computes one file's risk entry, skipping files
// that haven't been through the full analyze stage yet (no
// composite salience, bus factor, or change frequency recorded).
func riskEntryForFile(ctx context.Context, store *homergraph.Store, f homergraph.Node) (RiskEntry, bool) {
	salienceResult, err := store.GetAnalysis(ctx, f.ID, homergraph.AnalysisCompositeSalience)
	if err != nil {
		return RiskEntry{}, false
	}

	concResult, err := store.GetAnalysis(ctx, f.ID, homergraph.AnalysisContributorConcentration)
	if err != nil {
		return RiskEntry{}, false
	}

	freqResult, err := store.GetAnalysis(ctx, f.ID, homergraph.AnalysisChangeFrequency)
	if err != nil {
		return RiskEntry{}, false
	}

	salience := asFloat(salienceResult.Payload["score"])
	busFactor := int(asFloat(concResult.Payload["bus_factor"]))
	changeFreq := int(asFloat(freqResult.Payload["total"]))

	risk := riskMetric.Compute(metrics.RiskInput{
		Salience:        salience,
		BusFactor:       busFactor,
		ChangeFrequency: changeFreq,
	})

	return RiskEntry{
		FilePath:        f.Name,
		Salience:        salience,
		BusFactor:       busFactor,
		ChangeFrequency: changeFreq,
		RiskLevel:       string(risk.Level),
		RiskScore:       risk.Score,
	}, true
}

// riskMetric is the shared file-risk computation; the MCP risk tool
// scores with the same instance so both surfaces agree.
var riskMetric = metrics.NewFileRisk()

func validateRiskMapSchema(payload []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(riskMapSchema)
	docLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("run schema validation: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}

		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}

	return nil
}
