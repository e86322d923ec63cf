package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
)

// EvidenceMetrics tracks the evidence log and archive.
//
// Metrics:
//   - policycard_evidence_recorded_total: entries appended by outcome
//   - policycard_escalations_total: fired triggers by action
//   - policycard_archive_writes_total: archive writes by status
//   - policycard_archive_write_duration_seconds: archive write duration
//   - policycard_archive_dropped_total: entries not archived because the queue was full or closed
type EvidenceMetrics struct {
	recordedTotal      *prometheus.CounterVec
	escalationsTotal   *prometheus.CounterVec
	archiveWritesTotal *prometheus.CounterVec
	archiveDuration    prometheus.Histogram
	archiveDropped     prometheus.Counter
}

// NewEvidenceMetrics creates and registers evidence metrics with the provided registry.
func NewEvidenceMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvidenceMetrics {
	em := &EvidenceMetrics{
		recordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evidence_recorded_total",
				Help:      "Total number of evidence entries recorded",
			},
			[]string{"outcome"},
		),

		escalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "escalations_total",
				Help:      "Total number of fired escalation triggers",
			},
			[]string{"action"},
		),

		archiveWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "archive_writes_total",
				Help:      "Total number of evidence archive writes",
			},
			[]string{"status"},
		),

		archiveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "archive_write_duration_seconds",
				Help:      "Duration of evidence archive writes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~0.8s
			},
		),

		archiveDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "archive_dropped_total",
				Help:      "Total number of evidence entries not archived",
			},
		),
	}

	registry.MustRegister(
		em.recordedTotal,
		em.escalationsTotal,
		em.archiveWritesTotal,
		em.archiveDuration,
		em.archiveDropped,
	)

	return em
}

// RecordEntry records an appended entry.
func (em *EvidenceMetrics) RecordEntry(compliant bool) {
	outcome := "compliant"
	if !compliant {
		outcome = "rejected"
	}
	em.recordedTotal.WithLabelValues(outcome).Inc()
}

// RecordEscalation records a fired trigger.
func (em *EvidenceMetrics) RecordEscalation(action string) {
	em.escalationsTotal.WithLabelValues(action).Inc()
}

// RecordArchiveWrite records an archive write and its outcome.
func (em *EvidenceMetrics) RecordArchiveWrite(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	em.archiveWritesTotal.WithLabelValues(status).Inc()
	em.archiveDuration.Observe(duration.Seconds())
}

// RecordArchiveDropped records an entry that was not archived.
func (em *EvidenceMetrics) RecordArchiveDropped() {
	em.archiveDropped.Inc()
}
