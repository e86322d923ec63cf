package card

import (
	"errors"
	"strings"
	"testing"
)

const geoCard = `
policy_card_version: "1.0"
name: eu-only-deployment
scope:
  risk_level: high
  geography: [EU]
  intended_use: [credit-scoring]
rules:
  - id: geo-restriction
    effect: deny
    condition:
      field: deployment.region
      operator: not_any_of
      values: [EU, EEA]
    reason: Deployment outside the EU is not permitted
  - id: human-review
    effect: warn
    condition:
      field: oversight.human_review
      operator: not_equals
      value: true
    reason: Human review is recommended
escalation:
  triggers:
    - condition: "risk_score > 0.8"
      action: notify_dpo
    - condition: "risk_score >> 1"
      action: never
monitoring:
  detectors:
    - name: rejection_rate
      threshold: 0.2
      action: alert
kpis_thresholds:
  thresholds:
    - metric: compliance_rate
      target: 1.0
      critical_threshold: 0.95
    - metric: warning_rate
      target: 0.1
assurance_mapping:
  eu_ai_act: [Art.9, Art.13]
  iso_42001: []
`

func TestLoadBytes_FullDocument(t *testing.T) {
	doc, err := LoadBytes([]byte(geoCard), "geo.yaml")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}

	if doc.Version != "1.0" {
		t.Errorf("Version = %q, want %q", doc.Version, "1.0")
	}
	if doc.Name != "eu-only-deployment" {
		t.Errorf("Name = %q", doc.Name)
	}
	if doc.Source != "geo.yaml" {
		t.Errorf("Source = %q", doc.Source)
	}
	if doc.Scope.RiskLevel != "high" || len(doc.Scope.Geography) != 1 || doc.Scope.Geography[0] != "EU" {
		t.Errorf("Scope = %+v", doc.Scope)
	}

	if len(doc.Rules) != 2 {
		t.Fatalf("len(Rules) = %d, want 2", len(doc.Rules))
	}
	r := doc.Rules[0]
	if r.ID != "geo-restriction" || r.Effect != EffectDeny {
		t.Errorf("Rules[0] = %+v", r)
	}
	if r.Condition.Operator != OperatorNotAnyOf {
		t.Errorf("Rules[0].Condition.Operator = %q", r.Condition.Operator)
	}
	list, ok := r.Condition.Operand.([]any)
	if !ok || len(list) != 2 || list[0] != "EU" {
		t.Errorf("Rules[0].Condition.Operand = %#v", r.Condition.Operand)
	}
	if doc.Rules[1].Condition.Operand != true {
		t.Errorf("Rules[1].Condition.Operand = %#v, want true", doc.Rules[1].Condition.Operand)
	}

	if len(doc.Triggers) != 2 {
		t.Fatalf("len(Triggers) = %d, want 2", len(doc.Triggers))
	}
	if !doc.Triggers[0].Evaluable() {
		t.Errorf("Triggers[0] should parse: %v", doc.Triggers[0].ParseErr)
	}
	if doc.Triggers[1].Evaluable() || doc.Triggers[1].ParseErr == nil {
		t.Error("Triggers[1] should carry a parse error and not fail the load")
	}

	if len(doc.Detectors) != 1 || doc.Detectors[0].Threshold != 0.2 {
		t.Errorf("Detectors = %+v", doc.Detectors)
	}

	if len(doc.KPIs) != 2 {
		t.Fatalf("len(KPIs) = %d, want 2", len(doc.KPIs))
	}
	if doc.KPIs[0].Critical == nil || *doc.KPIs[0].Critical != 0.95 {
		t.Errorf("KPIs[0].Critical = %v", doc.KPIs[0].Critical)
	}
	if doc.KPIs[1].Critical != nil {
		t.Errorf("KPIs[1].Critical = %v, want nil", *doc.KPIs[1].Critical)
	}

	if got := doc.Assurance["eu_ai_act"]; len(got) != 2 {
		t.Errorf("Assurance[eu_ai_act] = %v", got)
	}
	if got, ok := doc.Assurance["iso_42001"]; !ok || len(got) != 0 {
		t.Errorf("Assurance[iso_42001] = %v, %v", got, ok)
	}
}

func TestLoad_ZeroRules(t *testing.T) {
	doc, err := Load(map[string]any{
		"policy_card_version": "1.0",
		"name":                "empty",
		"scope":               map[string]any{},
		"rules":               []any{},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Rules == nil || len(doc.Rules) != 0 {
		t.Errorf("Rules = %#v, want empty non-nil slice", doc.Rules)
	}
}

func TestLoad_NumericVersion(t *testing.T) {
	doc, err := LoadBytes([]byte("policy_card_version: 1.0\nname: p\nscope: {}\nrules: []\n"), "")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if doc.Version != "1.0" {
		t.Errorf("Version = %q, want %q", doc.Version, "1.0")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		wantType ErrorType
		wantPath string
	}{
		{
			name:     "missing name",
			raw:      map[string]any{"policy_card_version": "1.0", "scope": map[string]any{}, "rules": []any{}},
			wantType: ErrorTypeStructural,
			wantPath: "name",
		},
		{
			name:     "missing rules",
			raw:      map[string]any{"policy_card_version": "1.0", "name": "p", "scope": map[string]any{}},
			wantType: ErrorTypeStructural,
			wantPath: "rules",
		},
		{
			name: "unknown operator",
			raw: withRules(map[string]any{
				"id": "r1", "effect": "deny", "reason": "x",
				"condition": map[string]any{"field": "a", "operator": "equal", "value": "b"},
			}),
			wantType: ErrorTypeOperator,
			wantPath: "rules[0].condition.operator",
		},
		{
			name: "bad effect",
			raw: withRules(map[string]any{
				"id": "r1", "effect": "block", "reason": "x",
				"condition": map[string]any{"field": "a", "operator": "exists"},
			}),
			wantType: ErrorTypeStructural,
			wantPath: "rules[0].effect",
		},
		{
			name: "any_of with scalar",
			raw: withRules(map[string]any{
				"id": "r1", "effect": "deny", "reason": "x",
				"condition": map[string]any{"field": "a", "operator": "any_of", "value": "b"},
			}),
			wantType: ErrorTypeOperand,
			wantPath: "rules[0].condition.value",
		},
		{
			name: "greater_than with string",
			raw: withRules(map[string]any{
				"id": "r1", "effect": "deny", "reason": "x",
				"condition": map[string]any{"field": "a", "operator": "greater_than", "value": "10"},
			}),
			wantType: ErrorTypeOperand,
			wantPath: "rules[0].condition.value",
		},
		{
			name: "equals with list",
			raw: withRules(map[string]any{
				"id": "r1", "effect": "deny", "reason": "x",
				"condition": map[string]any{"field": "a", "operator": "equals", "values": []any{"b"}},
			}),
			wantType: ErrorTypeOperand,
			wantPath: "rules[0].condition.values",
		},
		{
			name: "value and values",
			raw: withRules(map[string]any{
				"id": "r1", "effect": "deny", "reason": "x",
				"condition": map[string]any{"field": "a", "operator": "equals", "value": "b", "values": []any{"c"}},
			}),
			wantType: ErrorTypeOperand,
			wantPath: "rules[0].condition",
		},
		{
			name: "duplicate rule id",
			raw: withRules(
				map[string]any{
					"id": "r1", "effect": "deny", "reason": "x",
					"condition": map[string]any{"field": "a", "operator": "exists"},
				},
				map[string]any{
					"id": "r1", "effect": "warn", "reason": "y",
					"condition": map[string]any{"field": "b", "operator": "exists"},
				},
			),
			wantType: ErrorTypeDuplicate,
			wantPath: "rules[1].id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Load(tt.raw)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if doc != nil {
				t.Error("Load() returned a document alongside an error")
			}

			var errs *ErrorList
			if !errors.As(err, &errs) {
				t.Fatalf("error type = %T, want *ErrorList", err)
			}
			found := false
			for _, e := range errs.ByType(tt.wantType) {
				if e.Path == tt.wantPath {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s error at %q in:\n%v", tt.wantType, tt.wantPath, err)
			}
		})
	}
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	_, err := Load(map[string]any{
		"rules": []any{
			map[string]any{"effect": "deny"},
		},
	})
	var errs *ErrorList
	if !errors.As(err, &errs) {
		t.Fatalf("error type = %T, want *ErrorList", err)
	}
	// version, name, scope, rules[0].id, rules[0].condition, rules[0].reason
	if errs.Count() < 6 {
		t.Errorf("Count() = %d, want at least 6:\n%v", errs.Count(), err)
	}
}

func TestLoad_OperatorSuggestion(t *testing.T) {
	_, err := Load(withRules(map[string]any{
		"id": "r1", "effect": "deny", "reason": "x",
		"condition": map[string]any{"field": "a", "operator": "any_off", "values": []any{"b"}},
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "did you mean 'any_of'?") {
		t.Errorf("error %q does not suggest any_of", err)
	}
}

func TestLoadBytes_SyntaxError(t *testing.T) {
	_, err := LoadBytes([]byte("name: [unterminated"), "broken.yaml")
	var errs *ErrorList
	if !errors.As(err, &errs) {
		t.Fatalf("error type = %T, want *ErrorList", err)
	}
	if !errs.HasErrorType(ErrorTypeSyntax) {
		t.Errorf("expected syntax error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "broken.yaml: ") {
		t.Errorf("error should be prefixed with source: %q", err)
	}
}

func TestLoadBytes_NotAMapping(t *testing.T) {
	_, err := LoadBytes([]byte("- a\n- b\n"), "")
	if err == nil {
		t.Fatal("expected error for list document")
	}
}

func TestNormalize_AnyKeys(t *testing.T) {
	in := map[any]any{
		"deployment": map[any]any{"region": "EU"},
		1:            []any{map[any]any{"k": "v"}},
	}
	out, ok := Normalize(in).(map[string]any)
	if !ok {
		t.Fatalf("Normalize() = %T", Normalize(in))
	}
	if _, ok := out["deployment"].(map[string]any); !ok {
		t.Errorf("nested map not normalized: %T", out["deployment"])
	}
	list, ok := out["1"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("out[1] = %#v", out["1"])
	}
	if _, ok := list[0].(map[string]any); !ok {
		t.Errorf("map inside list not normalized: %T", list[0])
	}
}

func withRules(rules ...any) map[string]any {
	return map[string]any{
		"policy_card_version": "1.0",
		"name":                "test",
		"scope":               map[string]any{},
		"rules":               rules,
	}
}
