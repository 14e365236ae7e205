// Package analyze implements the analyzer scheduler and the behavioral,
// centrality, and community analyzers that run over the hypergraph
// store's subgraph projections.
package analyze

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/toposort"
)

const tracerName = "homer/analyze"

// Stats summarizes one analyzer's run.
type Stats struct {
	Name         string
	NodesWritten int
	Errors       []error
	Skipped      bool
	Duration     time.Duration
}

// Analyzer is the contract every analysis family implements: declared
// produces/requires sets drive the scheduler's topological order, and
// NeedsRerun lets an analyzer skip work when its inputs haven't changed.
type Analyzer interface {
	Name() string
	Produces() []homergraph.AnalysisKind
	Requires() []homergraph.AnalysisKind
	NeedsRerun(ctx context.Context, store *homergraph.Store) (bool, error)
	Run(ctx context.Context, store *homergraph.Store, cfg *config.Config) (Stats, error)
}

// Diagnostic is a non-fatal scheduling anomaly, surfaced to the pipeline
// result rather than aborting the run.
type Diagnostic struct {
	Message string
}

// Scheduler runs a registered set of analyzers in dependency order.
type Scheduler struct {
	Analyzers []Analyzer
	Tracer    trace.Tracer
}

// NewScheduler builds a Scheduler over the given analyzers, registered
// in the order they should run when no dependency forces otherwise —
// also the order used to break a declared-dependency cycle.
func NewScheduler(analyzers ...Analyzer) *Scheduler {
	return &Scheduler{Analyzers: analyzers, Tracer: otel.Tracer(tracerName)}
}

// Order computes the run order via Kahn's algorithm over the DAG whose
// edges run from each producer to each analyzer that requires one of
// its produced kinds. On a declared-dependency cycle, the analyzers
// Kahn's algorithm could not place are appended in registration order
// and a diagnostic is returned; the run still proceeds.
func (s *Scheduler) Order() ([]Analyzer, []Diagnostic) {
	byName := make(map[string]Analyzer, len(s.Analyzers))
	producerOf := make(map[homergraph.AnalysisKind]string)

	g := toposort.NewGraph()

	for _, a := range s.Analyzers {
		byName[a.Name()] = a
		g.AddNode(a.Name())

		for _, kind := range a.Produces() {
			producerOf[kind] = a.Name()
		}
	}

	for _, a := range s.Analyzers {
		for _, kind := range a.Requires() {
			producer, ok := producerOf[kind]
			if !ok || producer == a.Name() {
				continue
			}

			g.AddEdge(producer, a.Name())
		}
	}

	order, ok := g.Toposort()

	var diags []Diagnostic

	if !ok {
		diags = append(diags, Diagnostic{
			Message: "analyzer dependency graph has a cycle; remaining analyzers appended in registration order",
		})
	}

	placed := make(map[string]bool, len(order))

	out := make([]Analyzer, 0, len(s.Analyzers))

	for _, name := range order {
		if a, found := byName[name]; found {
			out = append(out, a)
			placed[name] = true
		}
	}

	for _, a := range s.Analyzers {
		if !placed[a.Name()] {
			out = append(out, a)
		}
	}

	return out, diags
}

// Result aggregates the outcome of a full scheduler run.
type Result struct {
	Stats       []Stats
	Diagnostics []Diagnostic
}

// Run executes every analyzer in dependency order. An analyzer error is
// recorded against its stats; downstream analyzers still run since they
// may find partial inputs useful.
func (s *Scheduler) Run(ctx context.Context, store *homergraph.Store, cfg *config.Config) (Result, error) {
	order, diags := s.Order()

	result := Result{Diagnostics: diags}

	for _, a := range order {
		stats, err := s.runOne(ctx, a, store, cfg)
		result.Stats = append(result.Stats, stats)

		if err != nil && errkind.IsFatal(err) {
			return result, fmt.Errorf("analyzer %s: %w", a.Name(), err)
		}
	}

	return result, nil
}

func (s *Scheduler) runOne(ctx context.Context, a Analyzer, store *homergraph.Store, cfg *config.Config) (Stats, error) {
	tracer := s.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	ctx, span := tracer.Start(ctx, "analyze."+a.Name())
	defer span.End()

	start := time.Now()

	needsRerun, err := a.NeedsRerun(ctx, store)
	if err != nil {
		span.RecordError(err)

		return Stats{Name: a.Name(), Errors: []error{err}, Duration: time.Since(start)}, err
	}

	if !needsRerun {
		span.SetAttributes(attribute.Bool("homer.analyze.skipped", true))

		return Stats{Name: a.Name(), Skipped: true, Duration: time.Since(start)}, nil
	}

	stats, runErr := a.Run(ctx, store, cfg)
	stats.Duration = time.Since(start)
	stats.Name = a.Name()

	if runErr != nil {
		span.RecordError(runErr)
		stats.Errors = append(stats.Errors, runErr)
	}

	span.SetAttributes(
		attribute.Int("homer.analyze.nodes_written", stats.NodesWritten),
		attribute.Int("homer.analyze.errors", len(stats.Errors)),
	)

	return stats, runErr
}
