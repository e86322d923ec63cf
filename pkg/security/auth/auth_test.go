package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func testValidator() *APIKeyValidator {
	return NewAPIKeyValidator([]*APIKey{
		{ID: "ci", Key: "ci-secret", Scopes: []string{ScopeEvaluate}},
		{ID: "auditor", Key: "read-secret", Scopes: []string{ScopeRead}},
		{ID: "ops", Key: "admin-secret", Scopes: []string{ScopeAdmin}},
		{ID: "old", Key: "old-secret", Scopes: []string{ScopeAdmin}, Disabled: true},
		{ID: "empty", Key: ""},
	})
}

func TestNewAPIKeyValidator_SkipsEmptyKeys(t *testing.T) {
	if got := testValidator().Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		scope   string
		wantID  string
		wantErr error
	}{
		{"bearer", map[string]string{"Authorization": "Bearer ci-secret"}, ScopeEvaluate, "ci", nil},
		{"x-api-key", map[string]string{"X-API-Key": "read-secret"}, ScopeRead, "auditor", nil},
		{"admin implies every scope", map[string]string{"X-API-Key": "admin-secret"}, ScopeEvaluate, "ops", nil},
		{"bearer wins over header", map[string]string{"Authorization": "Bearer ci-secret", "X-API-Key": "admin-secret"}, ScopeEvaluate, "ci", nil},
		{"missing", nil, ScopeRead, "", ErrMissingKey},
		{"basic scheme ignored", map[string]string{"Authorization": "Basic ci-secret"}, ScopeRead, "", ErrMissingKey},
		{"unknown", map[string]string{"X-API-Key": "nope"}, ScopeRead, "", ErrInvalidKey},
		{"disabled", map[string]string{"X-API-Key": "old-secret"}, ScopeRead, "", ErrKeyDisabled},
		{"wrong scope", map[string]string{"X-API-Key": "ci-secret"}, ScopeAdmin, "ci", ErrForbidden},
	}

	v := testValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/report", nil)
			for k, val := range tt.headers {
				r.Header.Set(k, val)
			}

			p, err := v.Authenticate(r, tt.scope)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
			gotID := ""
			if p != nil {
				gotID = p.KeyID
			}
			if gotID != tt.wantID {
				t.Errorf("principal = %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

func TestAPIKeyValidator_AddReplaces(t *testing.T) {
	v := testValidator()
	v.Add(&APIKey{ID: "ci-rotated", Key: "ci-secret", Scopes: []string{ScopeRead}})

	p, err := v.Validate("ci-secret")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.KeyID != "ci-rotated" || p.Allows(ScopeEvaluate) {
		t.Errorf("principal = %+v, want replaced read-only key", p)
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFrom(context.Background()); ok {
		t.Error("empty context reported a principal")
	}
	ctx := WithPrincipal(context.Background(), &Principal{KeyID: "ops"})
	p, ok := PrincipalFrom(ctx)
	if !ok || p.KeyID != "ops" {
		t.Errorf("PrincipalFrom() = %+v, %v", p, ok)
	}

	var nilPrincipal *Principal
	if nilPrincipal.Allows(ScopeRead) {
		t.Error("nil principal allowed a scope")
	}
}
