package telemetry

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory.
type TestTelemetry struct {
	*Telemetry

	SpanRecorder *tracetest.SpanRecorder
	MetricReader *sdkmetric.ManualReader
	logs         *logRecorder
}

// NewTestTelemetry creates telemetry backed by in-memory recorders.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	logs := &logRecorder{}

	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			tracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(spans)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			loggerProvider: sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(logs))),
		},
		SpanRecorder: spans,
		MetricReader: reader,
		logs:         logs,
	}
}

// Spans returns all ended spans.
func (t *TestTelemetry) Spans() []trace.ReadOnlySpan {
	return t.SpanRecorder.Ended()
}

// SpanByName returns the first ended span called name, or nil.
func (t *TestTelemetry) SpanByName(name string) trace.ReadOnlySpan {
	for _, span := range t.Spans() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// AssertSpanExists fails tb unless a span called name ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.SpanByName(name) == nil {
		names := make([]string, 0, len(t.Spans()))
		for _, s := range t.Spans() {
			names = append(names, s.Name())
		}
		tb.Errorf("expected span %q not found, got: %v", name, names)
	}
}

// AssertSpanAttribute fails tb unless span carries key with value want.
// Integer attributes compare as int64.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, span, key string, want any) {
	tb.Helper()
	s := t.SpanByName(span)
	if s == nil {
		tb.Fatalf("span %q not found", span)
	}
	for _, attr := range s.Attributes() {
		if string(attr.Key) != key {
			continue
		}
		if got := attr.Value.AsInterface(); got != want {
			tb.Errorf("span %q attribute %q: got %v, want %v", span, key, got, want)
		}
		return
	}
	tb.Errorf("span %q missing attribute %q", span, key)
}

// Int64Sum returns the total of the named counter over data points whose
// attributes include every pair in attrs.
func (t *TestTelemetry) Int64Sum(ctx context.Context, name string, attrs ...attribute.KeyValue) int64 {
	var total int64
	t.eachMetric(ctx, name, func(m metricdata.Metrics) {
		sum, ok := m.Data.(metricdata.Sum[int64])
		if !ok {
			return
		}
		for _, dp := range sum.DataPoints {
			if hasAttributes(dp.Attributes, attrs) {
				total += dp.Value
			}
		}
	})
	return total
}

// HistogramCount returns how many values the named histogram recorded on
// data points matching attrs. Both int64 and float64 histograms count.
func (t *TestTelemetry) HistogramCount(ctx context.Context, name string, attrs ...attribute.KeyValue) uint64 {
	var count uint64
	t.eachMetric(ctx, name, func(m metricdata.Metrics) {
		switch h := m.Data.(type) {
		case metricdata.Histogram[int64]:
			for _, dp := range h.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					count += dp.Count
				}
			}
		case metricdata.Histogram[float64]:
			for _, dp := range h.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					count += dp.Count
				}
			}
		}
	})
	return count
}

func (t *TestTelemetry) eachMetric(ctx context.Context, name string, fn func(metricdata.Metrics)) {
	var rm metricdata.ResourceMetrics
	if err := t.MetricReader.Collect(ctx, &rm); err != nil {
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				fn(m)
			}
		}
	}
}

func hasAttributes(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		v, ok := set.Value(kv.Key)
		if !ok || v.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}

// LogRecords returns every record emitted through LoggerProvider.
func (t *TestTelemetry) LogRecords() []sdklog.Record {
	t.logs.mu.Lock()
	defer t.logs.mu.Unlock()
	return append([]sdklog.Record(nil), t.logs.records...)
}

// logRecorder is an sdklog.Exporter keeping records in memory.
type logRecorder struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (r *logRecorder) Export(_ context.Context, records []sdklog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.records = append(r.records, rec.Clone())
	}
	return nil
}

func (r *logRecorder) Shutdown(context.Context) error   { return nil }
func (r *logRecorder) ForceFlush(context.Context) error { return nil }
