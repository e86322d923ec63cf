package engine

import (
	"encoding/json"
	"testing"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		op      card.Operator
		value   any
		present bool
		operand any
		want    bool
	}{
		// equals / not_equals
		{"equals string", card.OperatorEquals, "high", true, "high", true},
		{"equals string mismatch", card.OperatorEquals, "low", true, "high", false},
		{"equals int vs float", card.OperatorEquals, 30, true, float64(30), true},
		{"equals json number", card.OperatorEquals, json.Number("30"), true, float64(30), true},
		{"equals bool", card.OperatorEquals, true, true, true, true},
		{"equals string vs number", card.OperatorEquals, "30", true, float64(30), false},
		{"equals list never", card.OperatorEquals, []any{"EU"}, true, "EU", false},
		{"equals absent", card.OperatorEquals, nil, false, "high", false},
		{"equals null value", card.OperatorEquals, nil, true, "high", false},
		{"not_equals absent", card.OperatorNotEquals, nil, false, "high", true},
		{"not_equals mismatch", card.OperatorNotEquals, "low", true, "high", true},
		{"not_equals match", card.OperatorNotEquals, "high", true, "high", false},

		// any_of / not_any_of
		{"any_of scalar hit", card.OperatorAnyOf, "EU", true, []any{"EU", "EEA"}, true},
		{"any_of scalar miss", card.OperatorAnyOf, "US", true, []any{"EU", "EEA"}, false},
		{"any_of list hit", card.OperatorAnyOf, []any{"US", "EU"}, true, []any{"EU"}, true},
		{"any_of typed list", card.OperatorAnyOf, []string{"US", "EEA"}, true, []any{"EEA"}, true},
		{"any_of empty list", card.OperatorAnyOf, []any{}, true, []any{"EU"}, false},
		{"any_of absent", card.OperatorAnyOf, nil, false, []any{"EU"}, false},
		{"not_any_of absent", card.OperatorNotAnyOf, nil, false, []any{"EU"}, true},
		{"not_any_of list disjoint", card.OperatorNotAnyOf, []any{"US"}, true, []any{"EU", "EEA"}, true},
		{"not_any_of list overlap", card.OperatorNotAnyOf, []any{"US", "EU"}, true, []any{"EU"}, false},

		// contains / not_contains
		{"contains list", card.OperatorContains, []any{"ISO27001", "SOC2"}, true, "SOC2", true},
		{"contains list miss", card.OperatorContains, []any{"ISO27001"}, true, "SOC2", false},
		{"contains numeric list", card.OperatorContains, []int{1, 2, 3}, true, float64(2), true},
		{"contains substring", card.OperatorContains, "data-broker-service", true, "broker", true},
		{"contains map", card.OperatorContains, map[string]any{"a": 1}, true, "a", false},
		{"contains absent", card.OperatorContains, nil, false, "SOC2", false},
		{"not_contains absent", card.OperatorNotContains, nil, false, "SOC2", true},
		{"not_contains list hit", card.OperatorNotContains, []any{"SOC2"}, true, "SOC2", false},

		// exists / not_exists
		{"exists present", card.OperatorExists, "x", true, nil, true},
		{"exists present null", card.OperatorExists, nil, true, nil, true},
		{"exists absent", card.OperatorExists, nil, false, nil, false},
		{"not_exists absent", card.OperatorNotExists, nil, false, nil, true},
		{"not_exists present", card.OperatorNotExists, 0, true, nil, false},

		// numeric
		{"greater_than", card.OperatorGreaterThan, 90, true, float64(30), true},
		{"greater_than equal", card.OperatorGreaterThan, 30, true, float64(30), false},
		{"greater_than_or_equal equal", card.OperatorGreaterThanOrEqual, 30, true, float64(30), true},
		{"less_than", card.OperatorLessThan, 0.5, true, float64(1), true},
		{"less_than_or_equal equal", card.OperatorLessThanOrEqual, uint8(7), true, float64(7), true},
		{"numeric string value", card.OperatorGreaterThan, "90", true, float64(30), false},
		{"numeric bool value", card.OperatorLessThan, true, true, float64(30), false},
		{"numeric absent", card.OperatorGreaterThan, nil, false, float64(30), false},
		{"numeric absent lte", card.OperatorLessThanOrEqual, nil, false, float64(30), false},

		{"unknown operator", card.Operator("matches"), "x", true, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Apply(tt.op, tt.value, tt.present, tt.operand); got != tt.want {
				t.Errorf("Apply(%s, %#v, %v, %#v) = %v, want %v",
					tt.op, tt.value, tt.present, tt.operand, got, tt.want)
			}
		})
	}
}

// Every operator returns without panicking for absent fields and odd operands.
func TestApply_Total(t *testing.T) {
	operands := []any{nil, "x", float64(1), true, []any{"x"}, map[string]any{"k": "v"}, []int{1}}
	values := []any{nil, "x", 1, []any{}, map[string]any{}, struct{}{}, []byte("x")}

	for _, name := range card.Operators() {
		op := card.Operator(name)
		for _, operand := range operands {
			Apply(op, nil, false, operand)
			for _, value := range values {
				Apply(op, value, true, operand)
			}
		}
	}
}

func TestApply_NegationsAreComplements(t *testing.T) {
	pairs := [][2]card.Operator{
		{card.OperatorEquals, card.OperatorNotEquals},
		{card.OperatorAnyOf, card.OperatorNotAnyOf},
		{card.OperatorContains, card.OperatorNotContains},
		{card.OperatorExists, card.OperatorNotExists},
	}
	inputs := []struct {
		value   any
		present bool
		operand any
	}{
		{nil, false, "EU"},
		{"EU", true, "EU"},
		{[]any{"EU"}, true, []any{"EU"}},
		{42, true, []any{"EU"}},
	}

	for _, p := range pairs {
		for _, in := range inputs {
			pos := Apply(p[0], in.value, in.present, in.operand)
			neg := Apply(p[1], in.value, in.present, in.operand)
			if pos == neg {
				t.Errorf("%s and %s agree (%v) for %#v", p[0], p[1], pos, in)
			}
		}
	}
}
