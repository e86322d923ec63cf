package engine

import (
	"reflect"
	"strings"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
)

// Apply evaluates op against a resolved field value. present is false when
// the field was absent. Apply is total: unknown operators, absent fields and
// type mismatches all yield a boolean.
func Apply(op card.Operator, value any, present bool, operand any) bool {
	switch op {
	case card.OperatorEquals:
		return present && scalarEqual(value, operand)

	case card.OperatorNotEquals:
		return !Apply(card.OperatorEquals, value, present, operand)

	case card.OperatorAnyOf:
		return present && intersects(value, operand)

	case card.OperatorNotAnyOf:
		return !Apply(card.OperatorAnyOf, value, present, operand)

	case card.OperatorContains:
		return present && contains(value, operand)

	case card.OperatorNotContains:
		return !Apply(card.OperatorContains, value, present, operand)

	case card.OperatorExists:
		return present

	case card.OperatorNotExists:
		return !present

	case card.OperatorGreaterThan:
		return compareNumeric(value, present, operand, func(a, b float64) bool { return a > b })

	case card.OperatorLessThan:
		return compareNumeric(value, present, operand, func(a, b float64) bool { return a < b })

	case card.OperatorGreaterThanOrEqual:
		return compareNumeric(value, present, operand, func(a, b float64) bool { return a >= b })

	case card.OperatorLessThanOrEqual:
		return compareNumeric(value, present, operand, func(a, b float64) bool { return a <= b })

	default:
		return false
	}
}

// scalarEqual compares two scalars. Numbers compare by value regardless of
// their Go type; lists and maps never compare equal.
func scalarEqual(a, b any) bool {
	if af, ok := card.ToFloat(a); ok {
		bf, ok := card.ToFloat(b)
		return ok && af == bf
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// intersects reports whether value, a scalar or a list, shares an element
// with the operand list.
func intersects(value, operand any) bool {
	candidates, ok := asList(operand)
	if !ok {
		candidates = []any{operand}
	}

	values, ok := asList(value)
	if !ok {
		values = []any{value}
	}

	for _, v := range values {
		for _, c := range candidates {
			if scalarEqual(v, c) {
				return true
			}
		}
	}
	return false
}

// contains reports whether a list-valued field holds operand. A string field
// matches when operand is a substring.
func contains(value, operand any) bool {
	if s, ok := value.(string); ok {
		sub, ok := operand.(string)
		return ok && strings.Contains(s, sub)
	}

	items, ok := asList(value)
	if !ok {
		return false
	}
	for _, item := range items {
		if scalarEqual(item, operand) {
			return true
		}
	}
	return false
}

func compareNumeric(value any, present bool, operand any, cmp func(a, b float64) bool) bool {
	if !present {
		return false
	}
	a, ok := card.ToFloat(value)
	if !ok {
		return false
	}
	b, ok := card.ToFloat(operand)
	if !ok {
		return false
	}
	return cmp(a, b)
}

// asList converts any slice or array to []any.
func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
