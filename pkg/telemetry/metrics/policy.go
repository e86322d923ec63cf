package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
)

// PolicyMetrics tracks the loaded policy card.
//
// Metrics:
//   - policycard_policy_reloads_total: reload attempts by status
//   - policycard_policy_info: 1 for the active policy name and version
type PolicyMetrics struct {
	reloadsTotal *prometheus.CounterVec
	info         *prometheus.GaugeVec

	mu     sync.Mutex
	active []string
}

// NewPolicyMetrics creates and registers policy metrics with the provided registry.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_reloads_total",
				Help:      "Total number of policy reload attempts",
			},
			[]string{"status"},
		),

		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "policy_info",
				Help:      "Active policy card (value is always 1)",
			},
			[]string{"policy", "version"},
		),
	}

	registry.MustRegister(
		pm.reloadsTotal,
		pm.info,
	)

	return pm
}

// RecordReload records a reload attempt.
func (pm *PolicyMetrics) RecordReload(success bool) {
	status := "success"
	if !success {
		status = "rejected"
	}
	pm.reloadsTotal.WithLabelValues(status).Inc()
}

// SetActive replaces the active policy series.
func (pm *PolicyMetrics) SetActive(name, version string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.active != nil {
		pm.info.DeleteLabelValues(pm.active...)
	}
	pm.active = []string{name, version}
	pm.info.WithLabelValues(name, version).Set(1)
}
