package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/health"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/logging"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/metrics"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/tracing"
)

// Telemetry bundles the logger, metrics collector, tracer and health checker.
type Telemetry struct {
	config  *config.TelemetryConfig
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	health  *health.Checker
}

// New builds the telemetry stack. Logs go to logOut; spans from the stdout
// exporter go to os.Stdout.
func New(cfg *config.TelemetryConfig, logOut io.Writer, tracingOpts ...tracing.Option) (*Telemetry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telemetry config is nil")
	}

	logger, err := logging.New(logging.FromConfig(cfg.Logging, logOut))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	tracer, err := tracing.New(&cfg.Tracing, tracingOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating tracer: %w", err)
	}

	return &Telemetry{
		config:  cfg,
		logger:  logger,
		metrics: metrics.NewCollector(&cfg.Metrics, nil),
		tracer:  tracer,
		health:  health.New(cfg.Health.CheckTimeout),
	}, nil
}

// Logger returns the root logger.
func (t *Telemetry) Logger() *slog.Logger { return t.logger }

// Metrics returns the Prometheus collector.
func (t *Telemetry) Metrics() *metrics.Collector { return t.metrics }

// Tracer returns the tracer.
func (t *Telemetry) Tracer() *tracing.Tracer { return t.tracer }

// Health returns the health checker.
func (t *Telemetry) Health() *health.Checker { return t.health }

// Config returns the telemetry configuration.
func (t *Telemetry) Config() *config.TelemetryConfig { return t.config }

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.tracer.Shutdown(ctx)
}
