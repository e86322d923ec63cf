package report

import (
	"fmt"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// Metric names understood by the generator.
const (
	MetricComplianceRate = "compliance_rate"
	MetricRejectionRate  = "rejection_rate"
	MetricWarningRate    = "warning_rate"
	MetricEscalationRate = "escalation_rate"
)

// direction tells which way a metric improves.
type direction int

const (
	higherIsBetter direction = iota
	lowerIsBetter
)

type metric struct {
	dir   direction
	value func(evidence.Summary) float64
}

var metrics = map[string]metric{
	MetricComplianceRate: {higherIsBetter, func(s evidence.Summary) float64 { return ratio(s.Compliant, s.Total) }},
	MetricRejectionRate:  {lowerIsBetter, func(s evidence.Summary) float64 { return ratio(s.Rejected, s.Total) }},
	MetricWarningRate:    {lowerIsBetter, func(s evidence.Summary) float64 { return ratio(s.Warned, s.Total) }},
	MetricEscalationRate: {lowerIsBetter, func(s evidence.Summary) float64 { return ratio(s.Escalated, s.Total) }},
}

// Metrics returns the known metric names.
func Metrics() []string {
	return []string{MetricComplianceRate, MetricRejectionRate, MetricWarningRate, MetricEscalationRate}
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// ClassifyKPI computes the threshold's metric over s and assigns a band.
//
// For higher-is-better metrics: pass when value >= target, warn when
// critical <= value < target, critical when value < critical. Lower-is-better
// metrics mirror the comparisons. Without a critical threshold a miss is
// fail. Unknown metrics are reported as fail with a note.
func ClassifyKPI(t card.KPIThreshold, s evidence.Summary) evidence.KPIResult {
	res := evidence.KPIResult{
		Metric: t.Metric,
		Target: t.Target,
	}
	if t.Critical != nil {
		c := *t.Critical
		res.Critical = &c
	}

	m, ok := metrics[t.Metric]
	if !ok {
		res.Status = evidence.KPIStatusFail
		res.Note = fmt.Sprintf("unknown metric %q", t.Metric)
		return res
	}

	res.Value = m.value(s)
	res.Status = classify(res.Value, t.Target, t.Critical, m.dir)
	return res
}

func classify(value, target float64, critical *float64, dir direction) evidence.KPIStatus {
	// better(a, b) reports whether a is at least as good as b.
	better := func(a, b float64) bool { return a >= b }
	if dir == lowerIsBetter {
		better = func(a, b float64) bool { return a <= b }
	}

	switch {
	case better(value, target):
		return evidence.KPIStatusPass
	case critical == nil:
		return evidence.KPIStatusFail
	case better(value, *critical):
		return evidence.KPIStatusWarn
	default:
		return evidence.KPIStatusCritical
	}
}
