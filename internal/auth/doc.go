// Package auth authenticates API callers.
//
// # JWT Tokens
//
// Every fan club endpoint requires an HS256-signed JWT in the
// Authorization header:
//
//	Authorization: Bearer <token>
//
// The "sub" claim is the caller's principal ID. Tokens are verified with the
// configured auth.jwt_secret, which must be at least MinSecretLength bytes.
//
// # Request Context
//
// HTTPAuthMiddleware attaches an AuthContext to the request context. Handlers
// read it back with FromContext or PrincipalID:
//
//	principalID := auth.PrincipalID(r.Context())
//
// Club roles (owner, admin, member) are not part of the token. They are
// resolved per club by the membership package on every request.
package auth
