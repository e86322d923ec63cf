package engine

import (
	"reflect"
	"strings"
)

// Resolve extracts a value from a nested record given a dotted field path.
// The second return is false when the path does not resolve: a missing key,
// or a non-map value reached before the path is exhausted. It never fails.
//
// Typed maps such as map[string]string are descended like map[string]any.
func Resolve(record map[string]any, path string) (any, bool) {
	if record == nil || path == "" {
		return nil, false
	}

	var current any = record
	for _, part := range strings.Split(path, ".") {
		v, ok := child(current, part)
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

// child looks key up in node when node is a map with string or interface
// keys.
func child(node any, key string) (any, bool) {
	switch m := node.(type) {
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case map[any]any:
		v, ok := m[key]
		return v, ok
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(node)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	var k reflect.Value
	switch kt := rv.Type().Key(); kt.Kind() {
	case reflect.String:
		k = reflect.ValueOf(key).Convert(kt)
	case reflect.Interface:
		if !reflect.TypeOf(key).Implements(kt) {
			return nil, false
		}
		k = reflect.ValueOf(key)
	default:
		return nil, false
	}
	v := rv.MapIndex(k)
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}
