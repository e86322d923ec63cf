package engine

import (
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	record := map[string]any{
		"pec": map[string]any{
			"processing_locations": []any{"EU"},
			"retention_days":       30,
			"dpo":                  nil,
			"legacy":               map[any]any{"flag": true},
		},
		"name": "search",
	}

	tests := []struct {
		path        string
		want        any
		wantPresent bool
	}{
		{"name", "search", true},
		{"pec.processing_locations", []any{"EU"}, true},
		{"pec.retention_days", 30, true},
		{"pec.dpo", nil, true},
		{"pec.legacy.flag", true, true},
		{"pec.missing", nil, false},
		{"missing.deeper", nil, false},
		{"name.length", nil, false},
		{"pec.processing_locations.0", nil, false},
		{"", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, present := Resolve(record, tt.path)
			if present != tt.wantPresent {
				t.Fatalf("Resolve(%q) present = %v, want %v", tt.path, present, tt.wantPresent)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%q) = %#v, want %#v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolve_NilRecord(t *testing.T) {
	if _, ok := Resolve(nil, "a.b"); ok {
		t.Error("Resolve(nil) reported present")
	}
}

type labelKey string

func TestResolve_TypedMaps(t *testing.T) {
	record := map[string]any{
		"pec":    map[string]string{"region": "EU"},
		"limits": map[string]map[string]int{"retention": {"days": 30}},
		"labels": map[labelKey]bool{"pii": true},
		"codes":  map[int]string{1: "x"},
	}

	tests := []struct {
		path        string
		want        any
		wantPresent bool
	}{
		{"pec.region", "EU", true},
		{"pec.country", nil, false},
		{"limits.retention.days", 30, true},
		{"labels.pii", true, true},
		{"codes.1", nil, false},
		{"pec.region.more", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, present := Resolve(record, tt.path)
			if present != tt.wantPresent {
				t.Fatalf("Resolve(%q) present = %v, want %v", tt.path, present, tt.wantPresent)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%q) = %#v, want %#v", tt.path, got, tt.want)
			}
		})
	}
}
