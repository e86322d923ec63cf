package auth

import (
	"errors"
	"slices"
)

// Scopes granted to API keys.
const (
	// ScopeEvaluate allows POST /v1/evaluate.
	ScopeEvaluate = "evaluate"

	// ScopeRead allows reading reports, the active policy and evidence.
	ScopeRead = "read"

	// ScopeAdmin allows everything, including policy reload.
	ScopeAdmin = "admin"
)

var (
	ErrMissingKey  = errors.New("missing API key")
	ErrInvalidKey  = errors.New("invalid API key")
	ErrKeyDisabled = errors.New("API key disabled")
	ErrForbidden   = errors.New("API key lacks required scope")
)

// APIKey is a configured key. Key is the secret; it is hashed on load and
// never retained.
type APIKey struct {
	ID       string
	Key      string
	Scopes   []string
	Disabled bool
}

// Principal is the identity of an authenticated request.
type Principal struct {
	KeyID  string
	Scopes []string
}

// Allows reports whether the principal may use scope.
func (p *Principal) Allows(scope string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Scopes, ScopeAdmin) || slices.Contains(p.Scopes, scope)
}
