package usecase

import (
	"context"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
)

type AuthType string

const (
	AuthTypeSession AuthType = "session"
	AuthTypeAPIKey  AuthType = "api_key"
)

// AuthContext is the resolved identity of one request. It is built once by
// the credential resolver and not modified afterwards.
type AuthContext struct {
	Tenant   domain.Tenant
	User     domain.User
	AuthType AuthType
	APIKey   *domain.APIKey
	Session  *domain.Session
	Store    ports.TenantStore
}

// HasRole reports whether the user holds one of roles.
func (a *AuthContext) HasRole(roles ...domain.Role) bool {
	for _, r := range roles {
		if a.User.Role == r {
			return true
		}
	}
	return false
}

// HasScope reports whether the credential grants s. Sessions carry the full
// rights of their user; API keys are limited to their scopes.
func (a *AuthContext) HasScope(s domain.Scope) bool {
	if a.AuthType != AuthTypeAPIKey || a.APIKey == nil {
		return true
	}
	return a.APIKey.HasScope(s)
}

// IsAdmin reports whether the user is a tenant administrator.
func (a *AuthContext) IsAdmin() bool {
	return a.User.Role == domain.RoleAdmin
}

type authContextKey struct{}

func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return auth, ok && auth != nil
}

type adminContextKey struct{}

// AdminContext identifies a request authenticated with a super-admin key.
type AdminContext struct {
	AdminID string
	Key     domain.AdminAPIKey
}

func WithAdmin(ctx context.Context, admin *AdminContext) context.Context {
	return context.WithValue(ctx, adminContextKey{}, admin)
}

func AdminFromContext(ctx context.Context) (*AdminContext, bool) {
	admin, ok := ctx.Value(adminContextKey{}).(*AdminContext)
	return admin, ok && admin != nil
}
