package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

type recordingObserver struct {
	mu      sync.Mutex
	results []*Result
}

func (o *recordingObserver) ObserveEvaluation(policy string, result *Result, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngine_EvaluateRecordsSpanAndObserver(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	observer := &recordingObserver{}
	eng := NewEngine(newTestLogger(),
		WithTracer(provider.Tracer(TracerName)),
		WithObserver(observer),
	)

	doc := geoPolicy(t)
	result := eng.Evaluate(context.Background(), doc, map[string]any{"locations": []any{"US"}}, "search")
	if result.Compliant {
		t.Fatal("expected non-compliant result")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "policycard.evaluate" {
		t.Errorf("span name = %q", spans[0].Name())
	}

	found := false
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "policy.compliant" && !attr.Value.AsBool() {
			found = true
		}
	}
	if !found {
		t.Error("span missing policy.compliant=false attribute")
	}

	if len(observer.results) != 1 || observer.results[0] != result {
		t.Errorf("observer saw %d results", len(observer.results))
	}
}

func TestEngine_Concurrent(t *testing.T) {
	eng := NewEngine(newTestLogger())
	doc := geoPolicy(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc := "EU"
			if i%2 == 0 {
				loc = "US"
			}
			metadata := map[string]any{"locations": []any{loc}, "certifications": []any{"SOC2"}}
			result := eng.Evaluate(context.Background(), doc, metadata, "tool")
			if result.Compliant != (loc == "EU") {
				t.Errorf("location %s: Compliant = %v", loc, result.Compliant)
			}
		}(i)
	}
	wg.Wait()
}

func TestEngine_Escalate(t *testing.T) {
	doc := &card.Document{
		Name: "p",
		Triggers: []card.Trigger{
			trigger(t, "risk_score > 0.8"),
			{Condition: "risk_score ~ 1", Action: "x", ParseErr: context.Canceled},
		},
	}
	eng := NewEngine(newTestLogger())

	fired := eng.Escalate(context.Background(), doc, map[string]any{"risk_score": 0.95})
	if len(fired) != 1 || fired[0].Condition != "risk_score > 0.8" {
		t.Errorf("fired = %+v", fired)
	}

	if fired := eng.Escalate(context.Background(), nil, nil); fired != nil {
		t.Errorf("Escalate(nil doc) = %v", fired)
	}
}
