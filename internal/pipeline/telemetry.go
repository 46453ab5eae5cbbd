package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName scopes the pipeline tracer and meter.
const InstrumentationName = "github.com/fyrsmithlabs/archie/internal/pipeline"

// Metrics holds the pipeline instruments.
type Metrics struct {
	runsTotal       metric.Int64Counter
	stageDuration   metric.Float64Histogram
	publishAttempts metric.Int64Histogram
	matchFallbacks  metric.Int64Counter
	initialized     bool
}

// NewMetrics creates the pipeline instruments. A nil meter uses the global
// meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.runsTotal, err = meter.Int64Counter(
		"archie.pipeline.runs",
		metric.WithDescription("Pipeline runs by terminal outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.stageDuration, err = meter.Float64Histogram(
		"archie.pipeline.stage.duration",
		metric.WithDescription("Duration of each pipeline stage in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	m.publishAttempts, err = meter.Int64Histogram(
		"archie.publish.attempts",
		metric.WithDescription("Branch names tried before a change request was opened"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.matchFallbacks, err = meter.Int64Counter(
		"archie.matching.fallbacks",
		metric.WithDescription("Match decisions that failed and fell back to CREATE"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

func (m *Metrics) recordRun(ctx context.Context, outcome Status, kind Kind) {
	if m == nil || !m.initialized {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("outcome", string(outcome))}
	if kind != "" {
		attrs = append(attrs, attribute.String("error_kind", string(kind)))
	}
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) recordStage(ctx context.Context, stage Stage, d time.Duration, failed bool) {
	if m == nil || !m.initialized {
		return
	}
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.Bool("failed", failed),
	))
}

func (m *Metrics) recordPublishAttempts(ctx context.Context, attempts int) {
	if m == nil || !m.initialized {
		return
	}
	m.publishAttempts.Record(ctx, int64(attempts))
}

func (m *Metrics) recordMatchFallback(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.matchFallbacks.Add(ctx, 1)
}
