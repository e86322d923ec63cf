// Package tracing sets up OpenTelemetry tracing for the policy card auditor.
//
// The engine, recorder and report generator create spans through the global
// tracer provider (otel.Tracer). New installs an SDK provider that samples
// by trace id ratio and exports finished spans to stdout or, with exporter
// "otlp", to an OTLP gRPC collector. When tracing is disabled the global
// no-op provider stays in place.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
// HTTPMiddleware extracts W3C trace context from API requests and starts a
// server span per request.
package tracing
