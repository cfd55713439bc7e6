// Package auth provides bearer-token authentication for the support-gateway API.
//
// # Tokens
//
// API clients authenticate with HS256 JWTs signed with the configured
// auth.jwt_secret. The "sub" claim names the caller and is attached to the
// request context; the optional "scope" claim is a space-separated list.
//
//	verifier := auth.NewJWTVerifier([]byte(secret))
//	token, err := verifier.Generate("support-portal", 24*time.Hour)
//
// The support-gateway token command mints tokens the same way.
//
// # HTTP Middleware
//
//	mux.Handle("/api/", auth.HTTPAuthMiddleware(verifier)(apiHandler))
//
// Requests without a valid bearer token get 401 with a JSON error body.
// Handlers read the caller with FromContext.
//
// # Scopes
//
// RequireScope guards a single route. A token that lists scopes must include
// the route's scope (ScopeChat for sending, ScopeHistory for reading or
// clearing conversations) or the request gets 403. A token without a scope
// claim may call every route.
//
// When no secret is configured the gateway does not install the middleware.
package auth
