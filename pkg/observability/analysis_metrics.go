package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricNodesTotal       = "homer.pipeline.nodes.total"
	metricEdgesTotal       = "homer.pipeline.edges.total"
	metricStageDuration    = "homer.pipeline.stage.duration.seconds"
	metricDiagnosticsTotal = "homer.pipeline.diagnostics.total"

	attrStage = "stage"
	attrKind  = "kind"
)

// PipelineMetrics holds OTel instruments for pipeline-run metrics:
// node/edge counts produced per stage, per-stage duration, and the
// non-fatal diagnostics recorded into a PipelineResult.
type PipelineMetrics struct {
	nodesTotal       metric.Int64Counter
	edgesTotal       metric.Int64Counter
	stageDuration    metric.Float64Histogram
	diagnosticsTotal metric.Int64Counter
}

// StageStats holds the counters produced by a single pipeline stage
// (an extractor, an analyzer, or a renderer), decoupled from the
// pipeline package's own result types.
type StageStats struct {
	Stage          string
	Duration       time.Duration
	NodesWritten   int64
	EdgesWritten   int64
	Diagnostics    int64
	DiagnosticKind string
}

// NewPipelineMetrics creates pipeline metric instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	nodes, err := mt.Int64Counter(metricNodesTotal,
		metric.WithDescription("Total hypergraph nodes written"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricNodesTotal, err)
	}

	edges, err := mt.Int64Counter(metricEdgesTotal,
		metric.WithDescription("Total hyperedges written"),
		metric.WithUnit("{edge}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricEdgesTotal, err)
	}

	stageDur, err := mt.Float64Histogram(metricStageDuration,
		metric.WithDescription("Per-stage (extract/snapshot/analyze/render) duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStageDuration, err)
	}

	diagnostics, err := mt.Int64Counter(metricDiagnosticsTotal,
		metric.WithDescription("Non-fatal diagnostics recorded by kind (transient/input/invariant/capability)"),
		metric.WithUnit("{diagnostic}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDiagnosticsTotal, err)
	}

	return &PipelineMetrics{
		nodesTotal:       nodes,
		edgesTotal:       edges,
		stageDuration:    stageDur,
		diagnosticsTotal: diagnostics,
	}, nil
}

// RecordStage records the statistics for one completed pipeline stage.
// Safe to call on a nil receiver (no-op).
func (pm *PipelineMetrics) RecordStage(ctx context.Context, stats StageStats) {
	if pm == nil {
		return
	}

	stageAttrs := metric.WithAttributes(attribute.String(attrStage, stats.Stage))

	pm.nodesTotal.Add(ctx, stats.NodesWritten, stageAttrs)
	pm.edgesTotal.Add(ctx, stats.EdgesWritten, stageAttrs)
	pm.stageDuration.Record(ctx, stats.Duration.Seconds(), stageAttrs)

	if stats.Diagnostics > 0 {
		pm.diagnosticsTotal.Add(ctx, stats.Diagnostics, metric.WithAttributes(
			attribute.String(attrStage, stats.Stage),
			attribute.String(attrKind, stats.DiagnosticKind),
		))
	}
}
