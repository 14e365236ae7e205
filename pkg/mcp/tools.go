package mcp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/metrics"
)

// Tool name constants.
const (
	ToolNameSearch    = "homer_search"
	ToolNameSalience  = "homer_salience"
	ToolNameCoChanges = "homer_cochanges"
	ToolNameRisk      = "homer_risk"
	ToolNameSnapshots = "homer_snapshots"
	ToolNameAliases   = "homer_aliases"
)

// Result size limits.
const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyQuery indicates the query parameter is empty.
	ErrEmptyQuery = errors.New("query parameter is required and must not be empty")
	// ErrUnknownNodeKind indicates the kind parameter is not a known node kind.
	ErrUnknownNodeKind = errors.New("unknown node kind")
	// ErrNodeNotFound indicates the named node does not exist in the store.
	ErrNodeNotFound = errors.New("node not found")
	// ErrSnapshotArgs indicates the diff form is missing from/to labels.
	ErrSnapshotArgs = errors.New("diff requires both from and to snapshot labels")
)

// Tool description constants.
const (
	searchToolDescription = "Full-text search over node names in the Homer " +
		"hypergraph. Optionally scoped to a single node kind " +
		"(File, Function, Type, Commit, Contributor, ...)."

	salienceToolDescription = "Rank files by composite salience (topology + " +
		"change history) with their hotspot classification."

	coChangesToolDescription = "List co-change clusters: sets of files that " +
		"historically change together, with confidence scores."

	riskToolDescription = "Rank files by maintenance risk combining salience, " +
		"bus factor, and change frequency."

	snapshotsToolDescription = "List graph snapshots, or diff two snapshots " +
		"by label to see added/removed nodes and edges."

	aliasesToolDescription = "Resolve a file path through its rename chain " +
		"to the newest known path."
)

// clampLimit applies the default and maximum list limits.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// textResult wraps a short human-readable summary for the MCP content
// channel; the structured payload rides in the typed output.
func textResult(format string, args ...any) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}

// SearchInput is the input schema for the homer_search tool.
type SearchInput struct {
	Query string `json:"query"          jsonschema:"search text matched against node names"`
	Kind  string `json:"kind,omitempty" jsonschema:"optional node kind scope (e.g. File, Function, Commit)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results (default 20)"`
}

// SearchMatch is one search hit.
type SearchMatch struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// SearchOutput is the output schema for the homer_search tool.
type SearchOutput struct {
	Matches []SearchMatch `json:"matches"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcpsdk.CallToolRequest, input SearchInput) (*mcpsdk.CallToolResult, SearchOutput, error) {
	out := SearchOutput{Matches: []SearchMatch{}}

	if input.Query == "" {
		return errorResult(ErrEmptyQuery), out, nil
	}

	scope := homergraph.NodeKind(input.Kind)
	if input.Kind != "" && !homergraph.IsNodeKind(input.Kind) {
		return errorResult(fmt.Errorf("%w: %s", ErrUnknownNodeKind, input.Kind)), out, nil
	}

	results, err := s.store.Search(ctx, input.Query, scope)
	if err != nil {
		return nil, out, fmt.Errorf("search: %w", err)
	}

	limit := clampLimit(input.Limit)
	for _, r := range results {
		if len(out.Matches) >= limit {
			break
		}

		out.Matches = append(out.Matches, SearchMatch{Kind: string(r.Kind), Name: r.Name})
	}

	return textResult("%d matches for %q", len(out.Matches), input.Query), out, nil
}

// SalienceInput is the input schema for the homer_salience tool.
type SalienceInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum files returned (default 20)"`
}

// SalienceEntry is one file's salience ranking.
type SalienceEntry struct {
	FilePath       string  `json:"file_path"`
	Salience       float64 `json:"salience"`
	Classification string  `json:"classification"`
}

// SalienceOutput is the output schema for the homer_salience tool.
type SalienceOutput struct {
	Files []SalienceEntry `json:"files"`
}

func (s *Server) handleSalience(ctx context.Context, _ *mcpsdk.CallToolRequest, input SalienceInput) (*mcpsdk.CallToolResult, SalienceOutput, error) {
	out := SalienceOutput{Files: []SalienceEntry{}}

	entries, err := s.loadFileAnalyses(ctx)
	if err != nil {
		return nil, out, err
	}

	limit := clampLimit(input.Limit)

	for _, e := range entries {
		if len(out.Files) >= limit {
			break
		}

		out.Files = append(out.Files, SalienceEntry{
			FilePath:       e.path,
			Salience:       e.salience,
			Classification: e.classification,
		})
	}

	return textResult("%d files ranked by salience", len(out.Files)), out, nil
}

// RiskInput is the input schema for the homer_risk tool.
type RiskInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum files returned (default 20)"`
}

// RiskEntry is one file's risk ranking.
type RiskEntry struct {
	FilePath        string  `json:"file_path"`
	Salience        float64 `json:"salience"`
	BusFactor       int     `json:"bus_factor"`
	ChangeFrequency int     `json:"change_frequency"`
	RiskLevel       string  `json:"risk_level"`
	RiskScore       float64 `json:"risk_score"`
}

// RiskOutput is the output schema for the homer_risk tool.
type RiskOutput struct {
	Files []RiskEntry `json:"files"`
}

// riskMetric scores files with the same metric instance the risk map
// renderer uses, so both surfaces agree.
var riskMetric = metrics.NewFileRisk()

func (s *Server) handleRisk(ctx context.Context, _ *mcpsdk.CallToolRequest, input RiskInput) (*mcpsdk.CallToolResult, RiskOutput, error) {
	out := RiskOutput{Files: []RiskEntry{}}

	entries, err := s.loadFileAnalyses(ctx)
	if err != nil {
		return nil, out, err
	}

	scored := make([]RiskEntry, 0, len(entries))

	for _, e := range entries {
		risk := riskMetric.Compute(metrics.RiskInput{
			Salience:        e.salience,
			BusFactor:       e.busFactor,
			ChangeFrequency: e.changeFrequency,
		})

		scored = append(scored, RiskEntry{
			FilePath:        e.path,
			Salience:        e.salience,
			BusFactor:       e.busFactor,
			ChangeFrequency: e.changeFrequency,
			RiskLevel:       string(risk.Level),
			RiskScore:       risk.Score,
		})
	}

	sortRiskEntries(scored)

	limit := clampLimit(input.Limit)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	out.Files = scored

	return textResult("%d files ranked by risk", len(out.Files)), out, nil
}

// fileAnalyses is the per-file analysis triple shared by the salience
// and risk tools, sorted by salience descending.
type fileAnalyses struct {
	path            string
	salience        float64
	classification  string
	busFactor       int
	changeFrequency int
}

func (s *Server) loadFileAnalyses(ctx context.Context) ([]fileAnalyses, error) {
	files, err := s.store.ListNodesByKind(ctx, homergraph.NodeFile)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	out := make([]fileAnalyses, 0, len(files))

	for _, f := range files {
		salienceResult, salErr := s.store.GetAnalysis(ctx, f.ID, homergraph.AnalysisCompositeSalience)
		if salErr != nil {
			if errors.Is(salErr, sql.ErrNoRows) {
				continue
			}

			return nil, fmt.Errorf("read salience for %s: %w", f.Name, salErr)
		}

		entry := fileAnalyses{
			path:     f.Name,
			salience: payloadFloat(salienceResult.Payload, "score"),
		}
		entry.classification, _ = salienceResult.Payload["classification"].(string)

		if conc, concErr := s.store.GetAnalysis(ctx, f.ID, homergraph.AnalysisContributorConcentration); concErr == nil {
			entry.busFactor = int(payloadFloat(conc.Payload, "bus_factor"))
		}

		if freq, freqErr := s.store.GetAnalysis(ctx, f.ID, homergraph.AnalysisChangeFrequency); freqErr == nil {
			entry.changeFrequency = int(payloadFloat(freq.Payload, "total"))
		}

		out = append(out, entry)
	}

	sortFileAnalyses(out)

	return out, nil
}

func payloadFloat(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
