// Package telemetry wires the observability stack of the policy card
// auditor from configuration.
//
// # Components
//
//   - logging: slog logger with credential redaction
//   - metrics: Prometheus collector that observes the engine, recorder and report generator
//   - tracing: OpenTelemetry provider with stdout or OTLP gRPC export
//   - health: liveness and readiness endpoints
//
// # Usage
//
//	tel, err := telemetry.New(&cfg.Telemetry, os.Stderr)
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	slog.SetDefault(tel.Logger())
//	eng := engine.NewEngine(tel.Logger(), engine.WithObserver(tel.Metrics()))
package telemetry
