// Package pipeline implements the Pipeline Orchestrator: the single
// coordinator that drives extract -> snapshot -> analyze -> render in
// sequence against one hypergraph store and aggregates every
// non-fatal error encountered along the way into a PipelineResult.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/homer-mine/homer/pkg/analyze"
	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/extract"
	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/observability"
	"github.com/homer-mine/homer/pkg/render"
	"github.com/homer-mine/homer/pkg/snapshot"
)

const tracerName = "homer/pipeline"

// Diagnostic is a non-fatal anomaly surfaced by a stage that isn't
// itself an item-level error (e.g. an analyzer dependency cycle).
type Diagnostic struct {
	Stage   string
	Message string
}

// ErrorEntry is one non-fatal error out of a stage, carrying enough
// context (component, subject, kind) for the process summary and the
// terminal renderer's error table.
type ErrorEntry struct {
	Component string
	Subject   string
	Kind      errkind.Kind
	Err       error
}

// PipelineResult aggregates every stage's outcome across one run of
// Orchestrator.Run: per-extractor stats, snapshots created, per-
// analyzer stats, renderer results, every non-fatal error, and
// scheduling diagnostics. The process prints a summary from this and
// returns exit code 10 if Errors is non-empty, 0 otherwise; a
// fatal (Invariant) error aborts Run entirely and is returned as an
// error instead of folded in here.
type PipelineResult struct {
	ExtractStats  []extract.ExtractStats
	Snapshots     []homergraph.Snapshot
	AnalyzeStats  []analyze.Stats
	RenderResults []render.Result
	Errors        []ErrorEntry
	Diagnostics   []Diagnostic
	Duration      time.Duration
}

// HasErrors reports whether any stage recorded a non-fatal error,
// the signal that decides between exit code 0 and exit code 10.
func (r *PipelineResult) HasErrors() bool { return len(r.Errors) > 0 }

// ExitCode maps the run outcome to a process exit code: 0 on a clean
// run, 10 when the run completed but accumulated non-fatal errors.
// A fatal (Invariant) error is never represented here — Run returns
// it as a Go error instead, and callers should map that to a non-zero,
// non-10 exit code of their own choosing.
func (r *PipelineResult) ExitCode() int {
	if r.HasErrors() {
		return 10
	}

	return 0
}

// Orchestrator drives the four pipeline stages against one store.
// It owns no state of its own: every run starts from the store's
// persisted checkpoints, which is what makes repeated runs incremental.
type Orchestrator struct {
	Extract   *extract.Orchestrator
	Snapshot  *snapshot.Snapshotter
	Analyze   *analyze.Scheduler
	Renderers []render.Renderer

	// Metrics optionally records per-stage counters; nil disables.
	Metrics *observability.PipelineMetrics
}

// New builds an Orchestrator from its four stage components.
func New(extractOrch *extract.Orchestrator, snapshotter *snapshot.Snapshotter, scheduler *analyze.Scheduler, renderers []render.Renderer) *Orchestrator {
	return &Orchestrator{Extract: extractOrch, Snapshot: snapshotter, Analyze: scheduler, Renderers: renderers}
}

// Run executes extract, snapshot, analyze, and render in sequence
// against store, honoring cfg.Pipeline.ForceAnalysis/ForceSemantic
// before the analyze stage runs. A stage completes, including
// draining its own internal fanout, before the next begins: no
// cross-stage interleaving. An Invariant-kind error from any stage
// aborts the run and is returned as an error; everything else is
// folded into the returned PipelineResult.
func (o *Orchestrator) Run(ctx context.Context, store *homergraph.Store, cfg *config.Config, repoRoot string, dryRunRender bool) (PipelineResult, error) {
	tracer := otel.Tracer(tracerName)

	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	start := time.Now()

	result := PipelineResult{}

	extractStats, extractErr := o.Extract.Run(ctx, store, cfg)
	result.ExtractStats = extractStats
	foldExtractErrors(&result, extractStats)
	o.recordExtractMetrics(ctx, extractStats)

	if extractErr != nil {
		result.Duration = time.Since(start)

		return result, fmt.Errorf("extract stage: %w", extractErr)
	}

	snapResult, snapErr := o.Snapshot.Run(ctx, store, cfg)
	result.Snapshots = snapResult.Created

	if snapErr != nil {
		result.Errors = append(result.Errors, ErrorEntry{
			Component: "snapshot", Kind: errkind.KindOf(snapErr), Err: snapErr,
		})

		if errkind.IsFatal(snapErr) {
			result.Duration = time.Since(start)

			return result, fmt.Errorf("snapshot stage: %w", snapErr)
		}
	}

	if applyErr := applyForceFlags(ctx, store, cfg); applyErr != nil {
		result.Duration = time.Since(start)

		return result, fmt.Errorf("apply force flags: %w", applyErr)
	}

	analyzeResult, analyzeErr := o.Analyze.Run(ctx, store, cfg)
	result.AnalyzeStats = analyzeResult.Stats
	foldAnalyzeErrors(&result, analyzeResult)
	o.recordAnalyzeMetrics(ctx, analyzeResult)

	if analyzeErr != nil {
		result.Duration = time.Since(start)

		return result, fmt.Errorf("analyze stage: %w", analyzeErr)
	}

	renderResults, renderErr := render.WriteAll(ctx, store, repoRoot, o.Renderers, dryRunRender)
	result.RenderResults = renderResults

	if renderErr != nil {
		result.Errors = append(result.Errors, ErrorEntry{
			Component: "render", Kind: errkind.Invariant, Err: renderErr,
		})
		result.Duration = time.Since(start)

		return result, fmt.Errorf("render stage: %w", renderErr)
	}

	result.Duration = time.Since(start)

	return result, nil
}

// applyForceFlags treats --force-analysis and --force-semantic as a
// union when both are set. ForceAnalysis alone already clears every analysis kind
// (including the semantic trio), so ForceSemantic only adds work when
// it's set without ForceAnalysis.
func applyForceFlags(ctx context.Context, store *homergraph.Store, cfg *config.Config) error {
	if cfg.Pipeline.ForceAnalysis {
		if _, err := store.ClearAllAnalyses(ctx); err != nil {
			return fmt.Errorf("clear all analyses: %w", err)
		}

		return nil
	}

	if cfg.Pipeline.ForceSemantic {
		if _, err := store.ClearSemantic(ctx); err != nil {
			return fmt.Errorf("clear semantic analyses: %w", err)
		}
	}

	return nil
}

func (o *Orchestrator) recordExtractMetrics(ctx context.Context, stats []extract.ExtractStats) {
	for _, s := range stats {
		o.Metrics.RecordStage(ctx, observability.StageStats{
			Stage:        "extract." + s.Name,
			Duration:     s.Duration,
			NodesWritten: int64(s.NodesCreated + s.NodesUpdated),
			EdgesWritten: int64(s.EdgesUpserted),
			Diagnostics:  int64(len(s.Errors)),
		})
	}
}

func (o *Orchestrator) recordAnalyzeMetrics(ctx context.Context, analyzeResult analyze.Result) {
	for _, s := range analyzeResult.Stats {
		o.Metrics.RecordStage(ctx, observability.StageStats{
			Stage:        "analyze." + s.Name,
			Duration:     s.Duration,
			NodesWritten: int64(s.NodesWritten),
			Diagnostics:  int64(len(s.Errors)),
		})
	}
}

func foldExtractErrors(result *PipelineResult, stats []extract.ExtractStats) {
	for _, s := range stats {
		for _, itemErr := range s.Errors {
			result.Errors = append(result.Errors, ErrorEntry{
				Component: s.Name, Subject: itemErr.Subject, Kind: itemErr.Kind, Err: itemErr.Err,
			})
		}
	}
}

func foldAnalyzeErrors(result *PipelineResult, analyzeResult analyze.Result) {
	for _, d := range analyzeResult.Diagnostics {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{Stage: "analyze", Message: d.Message})
	}

	for _, s := range analyzeResult.Stats {
		for _, err := range s.Errors {
			result.Errors = append(result.Errors, ErrorEntry{
				Component: s.Name, Kind: errkind.KindOf(err), Err: err,
			})
		}
	}
}
