package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// TracerName is the instrumentation scope used for evaluation spans.
const TracerName = "policycard/engine"

// Observer receives the outcome of every evaluation (metrics).
type Observer interface {
	ObserveEvaluation(policy string, result *Result, duration time.Duration)
}

// Engine wraps Evaluate with logging, tracing and metrics.
// It holds no policy state and is safe for concurrent use.
type Engine struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer sets the tracer used for evaluation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithObserver registers an observer notified after each evaluation.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// NewEngine creates an evaluation engine.
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		logger: logger.With("component", "policy.engine"),
		tracer: otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate evaluates metadata against doc. See the package-level Evaluate.
func (e *Engine) Evaluate(ctx context.Context, doc *card.Document, metadata map[string]any, capability string) *Result {
	policy := ""
	if doc != nil {
		policy = doc.Name
	}

	_, span := e.tracer.Start(ctx, "policycard.evaluate",
		trace.WithAttributes(
			attribute.String("policy.name", policy),
			attribute.String("capability.name", capability),
		),
	)
	defer span.End()

	start := time.Now()
	result := Evaluate(doc, metadata, capability)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Bool("policy.compliant", result.Compliant),
		attribute.Int("policy.violations", len(result.Violations)),
		attribute.Int("policy.warnings", len(result.Warnings)),
	)

	e.logger.Debug("capability evaluated",
		"policy", policy,
		"capability", capability,
		"compliant", result.Compliant,
		"violations", len(result.Violations),
		"warnings", len(result.Warnings),
		"duration_us", duration.Microseconds(),
	)

	if e.observer != nil {
		e.observer.ObserveEvaluation(policy, result, duration)
	}

	return result
}

// Escalate evaluates doc's triggers against vars and logs triggers that
// could not be parsed.
func (e *Engine) Escalate(ctx context.Context, doc *card.Document, vars map[string]any) []FiredTrigger {
	if doc == nil || len(doc.Triggers) == 0 {
		return nil
	}

	for _, t := range doc.Triggers {
		if !t.Evaluable() {
			e.logger.Warn("escalation trigger unevaluable",
				"policy", doc.Name,
				"condition", t.Condition,
				"error", t.ParseErr,
			)
		}
	}

	fired := Escalate(doc.Triggers, vars)
	if len(fired) > 0 {
		span := trace.SpanFromContext(ctx)
		for _, f := range fired {
			span.AddEvent("escalation", trace.WithAttributes(
				attribute.String("escalation.condition", f.Condition),
				attribute.String("escalation.action", f.Action),
			))
		}
	}
	return fired
}
