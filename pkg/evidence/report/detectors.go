package report

import (
	"fmt"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// EvaluateDetector computes the detector's metric over s. The detector fires
// when the value is strictly worse than the threshold in the metric's
// direction. Detectors naming an unknown metric, or evaluated over an empty
// log, never fire.
func EvaluateDetector(d card.Detector, s evidence.Summary) evidence.DetectorResult {
	res := evidence.DetectorResult{
		Name:      d.Name,
		Threshold: d.Threshold,
		Action:    d.Action,
	}

	m, ok := metrics[d.Name]
	if !ok {
		res.Note = fmt.Sprintf("unknown metric %q", d.Name)
		return res
	}

	res.Value = m.value(s)
	if s.Total == 0 {
		res.Note = "no evidence recorded"
		return res
	}

	switch m.dir {
	case higherIsBetter:
		res.Fired = res.Value < d.Threshold
	case lowerIsBetter:
		res.Fired = res.Value > d.Threshold
	}
	return res
}
