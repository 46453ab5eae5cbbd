package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/archie/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

func TestNew_DisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())

	degraded, _ := tel.Degraded()
	assert.False(t, degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), &Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips validation", func(c *Config) { c.Endpoint = "" }, ""},
		{"valid local grpc", func(c *Config) { c.Enabled = true }, ""},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, "endpoint is required"},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, "protocol"},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, "insecure"},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "https://otel.example.com"
			c.Insecure = false
		}, ""},
		{"sampling out of range", func(c *Config) { c.Enabled = true; c.SamplingRate = 1.5 }, "sampling rate"},
		{"zero shutdown", func(c *Config) { c.Enabled = true; c.Shutdown = 0 }, "shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	for endpoint, want := range map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4318":        true,
		"[::1]:4317":            true,
		"http://localhost:4318": true,
		"collector:4317":        false,
		"10.1.2.3:4317":         false,
	} {
		cfg := &Config{Endpoint: endpoint}
		assert.Equal(t, want, cfg.isLocalEndpoint(), endpoint)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:      true,
		Endpoint:     "localhost:4318",
		Protocol:     "http/protobuf",
		Insecure:     true,
		SamplingRate: 0.25,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "archie", cfg.ServiceName)
	assert.Equal(t, 0.25, cfg.SamplingRate)
	assert.Equal(t, 5*time.Second, cfg.Shutdown.Duration())
	assert.NoError(t, cfg.Validate())
}

func TestConfig_LogsEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit", Config{Protocol: ProtocolGRPC, Endpoint: "localhost:4317", LogsEndpoint: "localhost:4318"}, "localhost:4318"},
		{"http falls back to endpoint", Config{Protocol: ProtocolHTTP, Endpoint: "localhost:4318"}, "localhost:4318"},
		{"grpc without logs endpoint", Config{Protocol: ProtocolGRPC, Endpoint: "localhost:4317"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.logsEndpoint())
		})
	}
}

func TestTestTelemetry_LogRecords(t *testing.T) {
	tel := NewTestTelemetry()
	logger := tel.LoggerProvider().Logger("test")

	var rec log.Record
	rec.SetBody(log.StringValue("Run finished"))
	rec.SetSeverity(log.SeverityInfo)
	logger.Emit(context.Background(), rec)

	records := tel.LogRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "Run finished", records[0].Body().AsString())
	assert.Equal(t, log.SeverityInfo, records[0].Severity())
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("test").Start(context.Background(), "pipeline.publish")
	span.SetAttributes(attribute.String("branch", "kb/x"), attribute.Int("attempts", 2))
	span.End()

	tt.AssertSpanExists(t, "pipeline.publish")
	tt.AssertSpanAttribute(t, "pipeline.publish", "branch", "kb/x")
	tt.AssertSpanAttribute(t, "pipeline.publish", "attempts", int64(2))
	assert.Nil(t, tt.SpanByName("missing"))
}

func TestTestTelemetry_Int64Sum(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	counter, err := tt.Meter("test").Int64Counter("archie.pipeline.runs")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttrs("published"))
	counter.Add(ctx, 1, metricAttrs("failed"))

	assert.Equal(t, int64(3), tt.Int64Sum(ctx, "archie.pipeline.runs"))
	assert.Equal(t, int64(2), tt.Int64Sum(ctx, "archie.pipeline.runs", attribute.String("outcome", "published")))
	assert.Equal(t, int64(0), tt.Int64Sum(ctx, "archie.unknown"))
}

func TestTestTelemetry_HistogramCount(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	attempts, err := tt.Meter("test").Int64Histogram("archie.publish.attempts")
	require.NoError(t, err)
	attempts.Record(ctx, 1)
	attempts.Record(ctx, 3)

	duration, err := tt.Meter("test").Float64Histogram("archie.pipeline.stage.duration")
	require.NoError(t, err)
	duration.Record(ctx, 0.2, metric.WithAttributes(attribute.String("stage", "extract")))

	assert.Equal(t, uint64(2), tt.HistogramCount(ctx, "archie.publish.attempts"))
	assert.Equal(t, uint64(1), tt.HistogramCount(ctx, "archie.pipeline.stage.duration", attribute.String("stage", "extract")))
	assert.Equal(t, uint64(0), tt.HistogramCount(ctx, "archie.pipeline.stage.duration", attribute.String("stage", "publish")))
}

func metricAttrs(outcome string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("outcome", outcome))
}
