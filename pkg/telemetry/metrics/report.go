package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

var kpiStatuses = []evidence.KPIStatus{
	evidence.KPIStatusPass,
	evidence.KPIStatusWarn,
	evidence.KPIStatusFail,
	evidence.KPIStatusCritical,
}

// ReportMetrics tracks audit report generation.
//
// Metrics:
//   - policycard_reports_generated_total: reports by policy
//   - policycard_report_duration_seconds: report generation duration
//   - policycard_kpi_value: last computed value per KPI metric
//   - policycard_kpi_status: 1 for the current status of each KPI, 0 otherwise
//   - policycard_detector_fired_total: detector firings by name
type ReportMetrics struct {
	reportsTotal   *prometheus.CounterVec
	reportDuration prometheus.Histogram
	kpiValue       *prometheus.GaugeVec
	kpiStatus      *prometheus.GaugeVec
	detectorsFired *prometheus.CounterVec
}

// NewReportMetrics creates and registers report metrics with the provided registry.
func NewReportMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ReportMetrics {
	rm := &ReportMetrics{
		reportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "reports_generated_total",
				Help:      "Total number of audit reports generated",
			},
			[]string{"policy"},
		),

		reportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "report_duration_seconds",
				Help:      "Duration of audit report generation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
			},
		),

		kpiValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "kpi_value",
				Help:      "Last computed value of a KPI metric",
			},
			[]string{"metric"},
		),

		kpiStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "kpi_status",
				Help:      "Current health band of a KPI metric (1 = active band)",
			},
			[]string{"metric", "status"},
		),

		detectorsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "detector_fired_total",
				Help:      "Total number of reports in which a detector fired",
			},
			[]string{"detector"},
		),
	}

	registry.MustRegister(
		rm.reportsTotal,
		rm.reportDuration,
		rm.kpiValue,
		rm.kpiStatus,
		rm.detectorsFired,
	)

	return rm
}

// RecordReport records a generated report.
func (rm *ReportMetrics) RecordReport(policy string, duration time.Duration) {
	rm.reportsTotal.WithLabelValues(policy).Inc()
	rm.reportDuration.Observe(duration.Seconds())
}

// UpdateKPI sets the value and status gauges of a KPI metric.
func (rm *ReportMetrics) UpdateKPI(metric string, value float64, status evidence.KPIStatus) {
	rm.kpiValue.WithLabelValues(metric).Set(value)
	for _, s := range kpiStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		rm.kpiStatus.WithLabelValues(metric, string(s)).Set(v)
	}
}

// RecordDetectorFired records a fired detector.
func (rm *ReportMetrics) RecordDetectorFired(detector string) {
	rm.detectorsFired.WithLabelValues(detector).Inc()
}
