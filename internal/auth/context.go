// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating the caller's principal via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated identity extracted from a request.
// Club roles are not carried here; they are resolved per club by the
// membership layer.
type AuthContext struct {
	PrincipalID string
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// PrincipalID returns the caller's principal ID, or "" when the context is
// unauthenticated.
func PrincipalID(ctx context.Context) string {
	if a := FromContext(ctx); a != nil {
		return a.PrincipalID
	}
	return ""
}
