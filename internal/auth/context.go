// ABOUTME: Authentication context for tracking the caller through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
	"slices"
)

// AuthContext holds the authenticated caller extracted from a request.
type AuthContext struct {
	Subject string
	Scopes  []string
}

// Scopes checked by the API.
const (
	ScopeChat    = "chat"
	ScopeHistory = "history"
)

// HasScope reports whether the caller's token carries scope.
func (a *AuthContext) HasScope(scope string) bool {
	return slices.Contains(a.Scopes, scope)
}

// Allows reports whether the caller may use an endpoint guarded by scope.
// A token without a scope claim is unrestricted.
func (a *AuthContext) Allows(scope string) bool {
	return len(a.Scopes) == 0 || a.HasScope(scope)
}

type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// SubjectFromContext returns the caller's subject, or "anonymous" when the
// request was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	if a := FromContext(ctx); a != nil {
		return a.Subject
	}
	return "anonymous"
}
