package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// EvaluateTrigger evaluates a parsed escalation trigger against vars.
// It returns false when the trigger did not parse, the identifier is absent,
// or its value is not numeric.
func EvaluateTrigger(t card.Trigger, vars map[string]any) bool {
	if t.Expr == nil {
		return false
	}

	value, ok := lookupVar(vars, t.Expr.Identifier)
	if !ok {
		return false
	}
	n, ok := numericVar(value)
	if !ok {
		return false
	}

	lit := t.Expr.Literal
	switch t.Expr.Op {
	case card.CompareGreater:
		return n > lit
	case card.CompareLess:
		return n < lit
	case card.CompareGreaterEqual:
		return n >= lit
	case card.CompareLessEqual:
		return n <= lit
	case card.CompareEqual:
		return n == lit
	case card.CompareNotEqual:
		return n != lit
	default:
		return false
	}
}

// Escalate returns the triggers that fire for vars, in document order.
func Escalate(triggers []card.Trigger, vars map[string]any) []FiredTrigger {
	var fired []FiredTrigger
	for _, t := range triggers {
		if EvaluateTrigger(t, vars) {
			fired = append(fired, newFiredTrigger(t))
		}
	}
	return fired
}

// lookupVar prefers a flat key match and falls back to a dotted path.
func lookupVar(vars map[string]any, ident string) (any, bool) {
	if v, ok := vars[ident]; ok {
		return v, true
	}
	if strings.Contains(ident, ".") {
		return Resolve(vars, ident)
	}
	return nil, false
}

// numericVar accepts Go numbers and strings that parse as numbers.
func numericVar(v any) (float64, bool) {
	if f, ok := card.ToFloat(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
