package render

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// StageSummary is the subset of an extractor/analyzer/renderer run the
// terminal summary needs to print; pkg/pipeline builds one per stage
// from its own ExtractStats/Stats/Result values so this package never
// has to import pkg/pipeline.
type StageSummary struct {
	Name           string
	ItemsProcessed int
	NodesCreated   int
	NodesUpdated   int
	ErrorCount     int
	Duration       time.Duration
	Skipped        bool
}

// ErrorEntry mirrors one errkind.Error for display, again decoupled
// from the errkind type so this package stays a leaf.
type ErrorEntry struct {
	Component string
	Subject   string
	Kind      string
}

// FormatStageTable renders one row per pipeline stage: items
// processed, nodes created/updated, error count, and duration.
func FormatStageTable(stages []StageSummary) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Stage", "Items", "Created", "Updated", "Errors", "Duration"})

	for _, s := range stages {
		name := s.Name
		if s.Skipped {
			name += " (skipped)"
		}

		errCell := fmt.Sprintf("%d", s.ErrorCount)
		if s.ErrorCount > 0 {
			errCell = color.RedString(errCell)
		} else {
			errCell = color.GreenString(errCell)
		}

		tbl.AppendRow(table.Row{
			name,
			humanize.Comma(int64(s.ItemsProcessed)),
			humanize.Comma(int64(s.NodesCreated)),
			humanize.Comma(int64(s.NodesUpdated)),
			errCell,
			s.Duration.Round(time.Millisecond),
		})
	}

	return tbl.Render()
}

// FormatErrorList renders the non-fatal errors a PipelineResult
// accumulated, one per line, colored by kind severity.
func FormatErrorList(errs []ErrorEntry) string {
	if len(errs) == 0 {
		return color.GreenString("no errors")
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Component", "Subject", "Kind"})

	for _, e := range errs {
		kind := e.Kind
		if kind == "invariant" {
			kind = color.New(color.FgRed, color.Bold).Sprint(kind)
		} else {
			kind = color.YellowString(kind)
		}

		tbl.AppendRow(table.Row{e.Component, e.Subject, kind})
	}

	return tbl.Render()
}

// FormatRiskMapTable renders the top n risk map entries (by the
// caller's own ordering, typically risk score descending) as a
// terminal table with color-coded risk levels.
func FormatRiskMapTable(entries []RiskEntry, n int) string {
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"File", "Salience", "Bus Factor", "Changes", "Risk"})

	for _, e := range entries {
		tbl.AppendRow(table.Row{
			e.FilePath,
			fmt.Sprintf("%.2f", e.Salience),
			e.BusFactor,
			e.ChangeFrequency,
			colorizeRiskLevel(e.RiskLevel),
		})
	}

	return tbl.Render()
}

func colorizeRiskLevel(level string) string {
	switch level {
	case "critical":
		return color.New(color.FgRed, color.Bold).Sprint(level)
	case "high":
		return color.RedString(level)
	case "medium":
		return color.YellowString(level)
	default:
		return color.GreenString(level)
	}
}
