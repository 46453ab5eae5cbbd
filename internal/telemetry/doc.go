// Package telemetry provides OpenTelemetry instrumentation for archie.
//
// Tracing and metrics are exported over OTLP (gRPC or HTTP) when enabled.
// When disabled, Tracer and Meter fall back to the global no-op providers,
// so pipeline code instruments unconditionally.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer("archie/pipeline").Start(ctx, "pipeline.extract")
//	defer span.End()
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
