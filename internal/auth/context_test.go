// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests scope checks and context propagation helpers

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthContext_HasScope(t *testing.T) {
	a := &AuthContext{Subject: "ops", Scopes: []string{"chat", "history"}}

	assert.True(t, a.HasScope("chat"))
	assert.True(t, a.HasScope("history"))
	assert.False(t, a.HasScope("admin"))
	assert.False(t, (&AuthContext{}).HasScope("chat"))
}

func TestAuthContext_Allows(t *testing.T) {
	chatOnly := &AuthContext{Subject: "widget", Scopes: []string{ScopeChat}}
	assert.True(t, chatOnly.Allows(ScopeChat))
	assert.False(t, chatOnly.Allows(ScopeHistory))

	unscoped := &AuthContext{Subject: "ops"}
	assert.True(t, unscoped.Allows(ScopeChat))
	assert.True(t, unscoped.Allows(ScopeHistory))
}

func TestWithAuth_RoundTrip(t *testing.T) {
	ctx := WithAuth(context.Background(), &AuthContext{Subject: "ops"})

	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "ops", got.Subject)
	assert.Equal(t, "ops", SubjectFromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Equal(t, "anonymous", SubjectFromContext(context.Background()))
}
