package render

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/homer-mine/homer/pkg/homergraph"
)

// agentsHotspotCount bounds how many of the highest-salience files are
// surfaced in AGENTS.md; the full ranking lives in the risk map.
const agentsHotspotCount = 10

// agentsFrontmatter is the YAML header every AGENTS.md render carries,
// giving an agent a machine-readable summary before the prose body.
type agentsFrontmatter struct {
	Generator        string `yaml:"generator"`
	FileCount        int    `yaml:"file_count"`
	ContributorCount int    `yaml:"contributor_count"`
	CommitCount      int    `yaml:"commit_count"`
}

// AgentsRenderer renders the repository's AGENTS.md: a frontmatter
// summary plus sections for salience hotspots and bus-factor risk,
// generated from the current analysis results.
type AgentsRenderer struct{}

// NewAgentsRenderer builds an AgentsRenderer.
func NewAgentsRenderer() *AgentsRenderer { return &AgentsRenderer{} }

// Path implements Renderer.
func (r *AgentsRenderer) Path() string { return "AGENTS.md" }

// Render implements Renderer.
func (r *AgentsRenderer) Render(ctx context.Context, store *homergraph.Store) (string, error) {
	fileCount, err := store.CountNodesByKind(ctx, homergraph.NodeFile)
	if err != nil {
		return "", fmt.Errorf("count files: %w", err)
	}

	contributorCount, err := store.CountNodesByKind(ctx, homergraph.NodeContributor)
	if err != nil {
		return "", fmt.Errorf("count contributors: %w", err)
	}

	commitCount, err := store.CountNodesByKind(ctx, homergraph.NodeCommit)
	if err != nil {
		return "", fmt.Errorf("count commits: %w", err)
	}

	hotspots, err := topSalientFiles(ctx, store, agentsHotspotCount)
	if err != nil {
		return "", fmt.Errorf("load salience hotspots: %w", err)
	}

	fm, err := yaml.Marshal(agentsFrontmatter{
		Generator:        "homer",
		FileCount:        fileCount,
		ContributorCount: contributorCount,
		CommitCount:      commitCount,
	})
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}

	var body strings.Builder

	body.WriteString("---\n")
	body.Write(fm)
	body.WriteString("---\n\n")
	body.WriteString("# AGENTS.md\n\n")
	body.WriteString("This file is generated by Homer from the repository's mined hypergraph. ")
	body.WriteString("It surfaces the entities an agent should read first, not an exhaustive index.\n\n")

	writeHotspotSection(ctx, &body, store, hotspots)
	writeRiskSection(ctx, &body, store, hotspots)

	body.WriteString("## Maintainer Notes\n\n")
	body.WriteString(preserveStart + "\n" + preserveEnd + "\n")

	return body.String(), nil
}

func writeHotspotSection(ctx context.Context, body *strings.Builder, store *homergraph.Store, hotspots []fileSalience) {
	body.WriteString("## Salience Hotspots\n\n")

	if len(hotspots) == 0 {
		body.WriteString("No composite salience results are available yet; run the analyze stage first.\n\n")

		return
	}

	for _, h := range hotspots {
		quadrant := "Unclassified"

		if result, err := store.GetAnalysis(ctx, h.Node.ID, homergraph.AnalysisCompositeSalience); err == nil {
			if q, ok := result.Payload["quadrant"].(string); ok {
				quadrant = q
			}
		}

		fmt.Fprintf(body, "- `%s` — salience %.2f (%s)\n", h.Node.Name, h.Score, quadrant)
	}

	body.WriteString("\n")
}

func writeRiskSection(ctx context.Context, body *strings.Builder, store *homergraph.Store, hotspots []fileSalience) {
	body.WriteString("## Bus Factor Risk\n\n")

	var flagged []string

	for _, h := range hotspots {
		result, err := store.GetAnalysis(ctx, h.Node.ID, homergraph.AnalysisContributorConcentration)
		if err != nil {
			continue
		}

		busFactor := asFloat(result.Payload["bus_factor"])
		if busFactor <= lowBusFactorThreshold {
			flagged = append(flagged, fmt.Sprintf("- `%s` — bus factor %.0f", h.Node.Name, busFactor))
		}
	}

	if len(flagged) == 0 {
		body.WriteString("No high-salience file currently has a bus factor at or below the risk threshold.\n\n")

		return
	}

	body.WriteString(strings.Join(flagged, "\n") + "\n\n")
}

// lowBusFactorThreshold mirrors the risk map's own bus-factor-at-1
// penalty band; a file this concentrated among high-salience code is
// worth flagging in prose even before the JSON risk map is read.
const lowBusFactorThreshold = 1
