package ports

import (
	"context"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
)

type TenantRegistry interface {
	CreateTenant(ctx context.Context, tenant domain.Tenant) error
	GetTenant(ctx context.Context, id string) (domain.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, error)
	ListTenants(ctx context.Context, filter domain.TenantFilter) ([]domain.Tenant, int64, error)
	UpdateTenant(ctx context.Context, tenant domain.Tenant) error
	DeleteTenant(ctx context.Context, id string) (bool, error)

	RegisterAPIKeyPrefix(ctx context.Context, prefix, tenantID string) error
	RemoveAPIKeyPrefix(ctx context.Context, prefix string) error
	FindTenantIDByAPIKeyPrefix(ctx context.Context, prefix string) (string, error)
}

type AdminRepository interface {
	UpsertSuperAdmin(ctx context.Context, admin domain.SuperAdmin) (domain.SuperAdmin, error)
	GetSuperAdmin(ctx context.Context, id string) (domain.SuperAdmin, error)
	ActiveAdminKey(ctx context.Context, adminID string) (domain.AdminAPIKey, error)
	// ReplaceAdminKey revokes every non-revoked key of key.AdminID and inserts
	// key in the same transaction.
	ReplaceAdminKey(ctx context.Context, key domain.AdminAPIKey) error
	FindAdminKeysByPrefix(ctx context.Context, prefix string) ([]domain.AdminAPIKey, error)
}
