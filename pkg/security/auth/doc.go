/*
Package auth provides API key authentication for the policy card API.

Keys are held only as SHA-256 digests. Each key carries scopes; a request
is authorised for a route when its key holds the route's scope or the
admin scope.

	validator := auth.NewAPIKeyValidator([]*auth.APIKey{
		{ID: "ci", Key: os.Getenv("POLICYCARD_CI_KEY"), Scopes: []string{auth.ScopeEvaluate}},
		{ID: "ops", Key: os.Getenv("POLICYCARD_OPS_KEY"), Scopes: []string{auth.ScopeAdmin}},
	})

	principal, err := validator.Authenticate(r, auth.ScopeRead)
	switch {
	case errors.Is(err, auth.ErrForbidden):
		// 403
	case err != nil:
		// 401
	}
	ctx := auth.WithPrincipal(r.Context(), principal)

Keys are read from the Authorization header with the Bearer scheme or from
X-API-Key. Query parameters are not accepted so keys do not end up in
access logs.
*/
package auth
