package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestFingerprint(t *testing.T) {
	a := map[string]any{
		"name":      "search",
		"locations": []any{"EU", "US"},
		"pec":       map[string]any{"retention_days": 30, "certified": true},
	}
	// Same content, different construction order and map flavour.
	b := map[string]any{
		"pec":       map[any]any{"certified": true, "retention_days": 30},
		"locations": []any{"EU", "US"},
		"name":      "search",
	}

	fa := Fingerprint(a)
	if !strings.HasPrefix(fa, "sha256:") || len(fa) != len("sha256:")+64 {
		t.Fatalf("Fingerprint() = %q, want sha256:<64 hex>", fa)
	}
	if fb := Fingerprint(b); fa != fb {
		t.Errorf("equivalent records fingerprint differently: %s vs %s", fa, fb)
	}

	expected := "sha256:" + computeSHA256(`{"locations":["EU","US"],"name":"search","pec":{"certified":true,"retention_days":30}}`)
	if fa != expected {
		t.Errorf("Fingerprint() = %s, want %s", fa, expected)
	}

	c := map[string]any{"name": "search", "locations": []any{"US", "EU"}}
	if Fingerprint(c) == fa {
		t.Error("different records share a fingerprint")
	}
}

func TestFingerprint_Unserializable(t *testing.T) {
	m := map[string]any{"ch": make(chan int)}
	if got := Fingerprint(m); !strings.HasPrefix(got, "sha256:") {
		t.Errorf("Fingerprint() = %q", got)
	}
}

func computeSHA256(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}
