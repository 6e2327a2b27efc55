package server

import (
	"context"

	"assetd/internal/store"
)

type authContextKey struct{}

type authPrincipal struct {
	AuthType string
	User     *store.AuthUser
	// InstanceAdmin is set for the static admin token.
	InstanceAdmin bool
}

// UserID is empty for the admin token principal.
func (p authPrincipal) UserID() string {
	if p.User == nil {
		return ""
	}
	return p.User.ID
}

func (p authPrincipal) IsAdmin() bool {
	return p.InstanceAdmin || (p.User != nil && p.User.IsAdmin())
}

func contextWithAuthPrincipal(ctx context.Context, principal authPrincipal) context.Context {
	return context.WithValue(ctx, authContextKey{}, principal)
}

func authPrincipalFromContext(ctx context.Context) (authPrincipal, bool) {
	if ctx == nil {
		return authPrincipal{}, false
	}
	principal, ok := ctx.Value(authContextKey{}).(authPrincipal)
	return principal, ok
}
