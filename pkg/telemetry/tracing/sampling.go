package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler returns a parent-based sampler for the ratio. A ratio of 1
// samples everything and 0 samples nothing.
//
// The sampling decision is made once at trace creation and propagated to
// all child spans, so either the whole evaluation-and-record trace is kept or
// none of it.
func createSampler(ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("sample ratio must be between 0 and 1, got %v", ratio)
	}

	var root sdktrace.Sampler
	switch ratio {
	case 1:
		root = sdktrace.AlwaysSample()
	case 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root), nil
}
