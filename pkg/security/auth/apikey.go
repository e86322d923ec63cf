package auth

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Request headers a key is read from.
const (
	AuthorizationHeader = "Authorization"
	APIKeyHeader        = "X-API-Key"
	bearerPrefix        = "Bearer "
)

type entry struct {
	principal Principal
	disabled  bool
}

// APIKeyValidator validates API keys against a configured set.
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys map[[sha256.Size]byte]entry
}

// NewAPIKeyValidator creates a validator for keys. Keys with an empty
// secret are ignored.
func NewAPIKeyValidator(keys []*APIKey) *APIKeyValidator {
	v := &APIKeyValidator{keys: make(map[[sha256.Size]byte]entry, len(keys))}
	for _, k := range keys {
		v.Add(k)
	}
	return v
}

// Add registers k, replacing any key with the same secret.
func (v *APIKeyValidator) Add(k *APIKey) {
	if k == nil || k.Key == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[sha256.Sum256([]byte(k.Key))] = entry{
		principal: Principal{KeyID: k.ID, Scopes: append([]string(nil), k.Scopes...)},
		disabled:  k.Disabled,
	}
}

// Len returns the number of registered keys.
func (v *APIKeyValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

// Validate returns the principal for key.
func (v *APIKeyValidator) Validate(key string) (*Principal, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	v.mu.RLock()
	e, ok := v.keys[sha256.Sum256([]byte(key))]
	v.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidKey
	}
	if e.disabled {
		return nil, fmt.Errorf("%w: %s", ErrKeyDisabled, e.principal.KeyID)
	}
	p := e.principal
	return &p, nil
}

// Authenticate validates the request's key and checks it holds scope.
// The principal is returned with ErrForbidden so callers can log who was
// refused.
func (v *APIKeyValidator) Authenticate(r *http.Request, scope string) (*Principal, error) {
	p, err := v.Validate(ExtractKey(r))
	if err != nil {
		return nil, err
	}
	if !p.Allows(scope) {
		return p, fmt.Errorf("%w %q", ErrForbidden, scope)
	}
	return p, nil
}

// ExtractKey returns the key from "Authorization: Bearer <key>" or
// X-API-Key, or "" when neither is set.
func ExtractKey(r *http.Request) string {
	if h := r.Header.Get(AuthorizationHeader); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}
