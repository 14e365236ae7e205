// Package extract implements the extractor framework: Git, Structure,
// Graph, Document, Forge, and Prompt extractors that read from the
// working tree, git history, and external capabilities and write nodes
// and hyperedges into the hypergraph store. The orchestrator runs them
// sequentially in a fixed order because each may consume nodes the
// previous produced.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/homer-mine/homer/pkg/config"
	"github.com/homer-mine/homer/pkg/errkind"
	"github.com/homer-mine/homer/pkg/homergraph"
)

const tracerName = "homer/extract"

// ItemError is one non-fatal failure recorded against a single file,
// commit, or issue during extraction.
type ItemError struct {
	Subject string
	Kind    errkind.Kind
	Err     error
}

// ExtractStats carries per-extractor counts and a non-fatal error list.
// A single item failure does not abort the extractor or the pipeline.
type ExtractStats struct {
	Name           string
	NodesCreated   int
	NodesUpdated   int
	NodesTouched   int
	EdgesUpserted  int
	ItemsProcessed int
	Errors         []ItemError
	Duration       time.Duration
	Skipped        bool
}

// RecordChange folds a homergraph.NodeChange into the running stats.
func (s *ExtractStats) RecordChange(c homergraph.NodeChange) {
	switch {
	case c.IsNew:
		s.NodesCreated++
	case c.WasStale:
		s.NodesUpdated++
	default:
		s.NodesTouched++
	}
}

// RecordError appends a non-fatal item failure.
func (s *ExtractStats) RecordError(subject string, kind errkind.Kind, err error) {
	s.Errors = append(s.Errors, ItemError{Subject: subject, Kind: kind, Err: err})
}

// Extractor is the common contract every extraction stage implements.
type Extractor interface {
	Name() string
	// HasWork reports whether this extractor's checkpoint is behind its
	// upstream source. Returning false skips Extract entirely.
	HasWork(ctx context.Context, store *homergraph.Store) (bool, error)
	Extract(ctx context.Context, store *homergraph.Store, cfg *config.Config) (ExtractStats, error)
}

// Orchestrator runs Extractors sequentially in registration order.
type Orchestrator struct {
	Extractors []Extractor
	Tracer     trace.Tracer
}

// NewOrchestrator builds the orchestrator with the fixed pipeline order:
// Git, Structure, Graph, Document, Forge(s), Prompt.
func NewOrchestrator(extractors ...Extractor) *Orchestrator {
	return &Orchestrator{Extractors: extractors}
}

func (o *Orchestrator) tracer() trace.Tracer {
	if o.Tracer != nil {
		return o.Tracer
	}

	return otel.Tracer(tracerName)
}

// Run executes every extractor in order, skipping any with no pending
// work. An Invariant-kind error from an extractor aborts the run
// immediately; any other error is folded into that extractor's stats
// and the next extractor still runs.
func (o *Orchestrator) Run(ctx context.Context, store *homergraph.Store, cfg *config.Config) ([]ExtractStats, error) {
	results := make([]ExtractStats, 0, len(o.Extractors))

	for _, ex := range o.Extractors {
		if ctx.Err() != nil {
			return results, fmt.Errorf("extract: %w", ctx.Err())
		}

		stats, err := o.runOne(ctx, ex, store, cfg)
		results = append(results, stats)

		if err != nil && errkind.IsFatal(err) {
			return results, fmt.Errorf("extractor %s: %w", ex.Name(), err)
		}
	}

	return results, nil
}

func (o *Orchestrator) runOne(
	ctx context.Context, ex Extractor, store *homergraph.Store, cfg *config.Config,
) (ExtractStats, error) {
	ctx, span := o.tracer().Start(ctx, "homer.extract."+ex.Name(),
		trace.WithAttributes(attribute.String("extractor.name", ex.Name())))
	defer span.End()

	hasWork, err := ex.HasWork(ctx, store)
	if err != nil {
		span.RecordError(err)

		return ExtractStats{Name: ex.Name()}, errkind.Wrap(errkind.Invariant, ex.Name(), "has_work", "check for pending work: %w", err)
	}

	if !hasWork {
		span.SetAttributes(attribute.Bool("extractor.skipped", true))

		return ExtractStats{Name: ex.Name(), Skipped: true}, nil
	}

	start := time.Now()
	stats, extractErr := ex.Extract(ctx, store, cfg)
	stats.Name = ex.Name()
	stats.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("extractor.nodes_created", stats.NodesCreated),
		attribute.Int("extractor.nodes_updated", stats.NodesUpdated),
		attribute.Int("extractor.edges_upserted", stats.EdgesUpserted),
		attribute.Int("extractor.errors", len(stats.Errors)),
	)

	if extractErr != nil {
		span.RecordError(extractErr)

		var kindErr *errkind.Error
		if errors.As(extractErr, &kindErr) && kindErr.Kind == errkind.Invariant {
			return stats, extractErr
		}

		stats.RecordError(ex.Name(), errkind.KindOf(extractErr), extractErr)

		return stats, nil
	}

	return stats, nil
}
