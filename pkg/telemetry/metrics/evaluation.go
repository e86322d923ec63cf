package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
)

// EvaluationMetrics tracks policy card evaluations.
//
// Metrics:
//   - policycard_evaluations_total: evaluations by policy and outcome
//   - policycard_evaluation_duration_seconds: evaluation duration
//   - policycard_rule_violations_total: violations by rule id
//   - policycard_rule_warnings_total: warnings by rule id
type EvaluationMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	violationsTotal    *prometheus.CounterVec
	warningsTotal      *prometheus.CounterVec
}

// NewEvaluationMetrics creates and registers evaluation metrics with the provided registry.
func NewEvaluationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	em := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluations_total",
				Help:      "Total number of capability evaluations",
			},
			[]string{"policy", "outcome"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of capability evaluation in seconds",
				// Evaluations are pure and should be fast (< 10ms)
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"policy"},
		),

		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rule_violations_total",
				Help:      "Total number of rule violations",
			},
			[]string{"rule_id"},
		),

		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rule_warnings_total",
				Help:      "Total number of rule warnings",
			},
			[]string{"rule_id"},
		),
	}

	registry.MustRegister(
		em.evaluationsTotal,
		em.evaluationDuration,
		em.violationsTotal,
		em.warningsTotal,
	)

	return em
}

// RecordEvaluation records one evaluation.
func (em *EvaluationMetrics) RecordEvaluation(policy string, compliant bool, duration time.Duration) {
	outcome := "compliant"
	if !compliant {
		outcome = "violation"
	}
	em.evaluationsTotal.WithLabelValues(policy, outcome).Inc()
	em.evaluationDuration.WithLabelValues(policy).Observe(duration.Seconds())
}

// RecordViolation records a violated rule.
func (em *EvaluationMetrics) RecordViolation(ruleID string) {
	em.violationsTotal.WithLabelValues(ruleID).Inc()
}

// RecordWarning records a rule that produced a warning.
func (em *EvaluationMetrics) RecordWarning(ruleID string) {
	em.warningsTotal.WithLabelValues(ruleID).Inc()
}
