package pipeline

import "github.com/homer-mine/homer/pkg/render"

// StageSummaries flattens every extract and analyze stage's stats into
// the plain structs pkg/render's terminal formatter expects, keeping
// pkg/render free of any import on this package.
func (r *PipelineResult) StageSummaries() []render.StageSummary {
	out := make([]render.StageSummary, 0, len(r.ExtractStats)+len(r.AnalyzeStats))

	for _, s := range r.ExtractStats {
		out = append(out, render.StageSummary{
			Name:           s.Name,
			ItemsProcessed: s.ItemsProcessed,
			NodesCreated:   s.NodesCreated,
			NodesUpdated:   s.NodesUpdated,
			ErrorCount:     len(s.Errors),
			Duration:       s.Duration,
			Skipped:        s.Skipped,
		})
	}

	for _, s := range r.AnalyzeStats {
		out = append(out, render.StageSummary{
			Name:         s.Name,
			NodesCreated: s.NodesWritten,
			ErrorCount:   len(s.Errors),
			Duration:     s.Duration,
			Skipped:      s.Skipped,
		})
	}

	return out
}

// ErrorEntries flattens PipelineResult.Errors into pkg/render's plain
// ErrorEntry type for the terminal error table.
func (r *PipelineResult) ErrorEntries() []render.ErrorEntry {
	out := make([]render.ErrorEntry, 0, len(r.Errors))

	for _, e := range r.Errors {
		out = append(out, render.ErrorEntry{Component: e.Component, Subject: e.Subject, Kind: e.Kind.String()})
	}

	return out
}
