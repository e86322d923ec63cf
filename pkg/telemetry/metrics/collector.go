package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/engine"
)

// maxLabelSets bounds the number of distinct rule and detector labels.
const maxLabelSets = 1000

// Collector is the main orchestrator for all Prometheus metrics.
// It manages metric registration and implements the observer interfaces of
// the engine, recorder and report generator.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	evaluationMetrics *EvaluationMetrics
	evidenceMetrics   *EvidenceMetrics
	reportMetrics     *ReportMetrics
	requestMetrics    *RequestMetrics
	policyMetrics     *PolicyMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		evaluationMetrics:  NewEvaluationMetrics(cfg, registry),
		evidenceMetrics:    NewEvidenceMetrics(cfg, registry),
		reportMetrics:      NewReportMetrics(cfg, registry),
		requestMetrics:     NewRequestMetrics(cfg, registry),
		policyMetrics:      NewPolicyMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(maxLabelSets),
	}
}

// ObserveEvaluation records one engine evaluation.
func (c *Collector) ObserveEvaluation(policy string, result *engine.Result, duration time.Duration) {
	if !c.config.Enabled || result == nil {
		return
	}

	c.evaluationMetrics.RecordEvaluation(policy, result.Compliant, duration)
	for _, v := range result.Violations {
		c.evaluationMetrics.RecordViolation(c.label("rule", v.RuleID))
	}
	for _, w := range result.Warnings {
		c.evaluationMetrics.RecordWarning(c.label("rule", w.RuleID))
	}
}

// ObserveRecorded records an evidence entry appended to the in-memory log.
func (c *Collector) ObserveRecorded(e *evidence.Evidence) {
	if !c.config.Enabled || e == nil {
		return
	}

	c.evidenceMetrics.RecordEntry(e.Result.Compliant)
	for _, f := range e.Escalations {
		c.evidenceMetrics.RecordEscalation(c.label("action", f.Action))
	}
}

// ObserveArchived records one archive write.
func (c *Collector) ObserveArchived(duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.evidenceMetrics.RecordArchiveWrite(duration, err)
}

// ObserveArchiveDropped records an entry that could not be queued for the
// archive.
func (c *Collector) ObserveArchiveDropped() {
	if !c.config.Enabled {
		return
	}
	c.evidenceMetrics.RecordArchiveDropped()
}

// ObserveReport records a generated report.
func (c *Collector) ObserveReport(r *evidence.Report, duration time.Duration) {
	if !c.config.Enabled || r == nil {
		return
	}

	c.reportMetrics.RecordReport(r.PolicyName, duration)
	for _, k := range r.KPIs {
		c.reportMetrics.UpdateKPI(c.label("kpi", k.Metric), k.Value, k.Status)
	}
	for _, d := range r.Detectors {
		if d.Fired {
			c.reportMetrics.RecordDetectorFired(c.label("detector", d.Name))
		}
	}
}

// ObserveHTTPRequest records one API request.
func (c *Collector) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(method, route, status, duration)
}

// ObservePolicyReload records a policy reload attempt.
func (c *Collector) ObservePolicyReload(success bool) {
	if !c.config.Enabled {
		return
	}
	c.policyMetrics.RecordReload(success)
}

// SetActivePolicy records the loaded policy version.
func (c *Collector) SetActivePolicy(name, version string) {
	if !c.config.Enabled {
		return
	}
	c.policyMetrics.SetActive(name, version)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) label(kind, value string) string {
	if !c.cardinalityLimiter.Allow(kind + ":" + value) {
		return "other"
	}
	return value
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
