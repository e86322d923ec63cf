package card

import (
	"encoding/json"
	"fmt"
	"math"
)

// Normalize converts a decoded YAML/JSON tree into one built from
// map[string]any and []any only. Non-string map keys are rendered with fmt.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	default:
		return v
	}
}

// ToFloat converts any Go numeric value to float64. Strings and booleans are
// never coerced.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// normalizeScalar returns strings and booleans unchanged and numbers as
// float64. Anything else is rejected.
func normalizeScalar(v any) (any, bool) {
	switch val := v.(type) {
	case string, bool:
		return val, true
	}
	if f, ok := ToFloat(v); ok {
		return f, true
	}
	return nil, false
}
