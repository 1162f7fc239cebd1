package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RegistryRepository is the global store: tenants, the API key prefix index,
// super administrators and their keys.
type RegistryRepository struct {
	db *gormsqlite.DB
}

func NewRegistryRepository(db *gormsqlite.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

func (r *RegistryRepository) CreateTenant(ctx context.Context, tenant domain.Tenant) error {
	model := toTenantModel(tenant)
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var count int64
		if err := tx.Model(&tenantModel{}).Where("slug = ?", model.Slug).Count(&count).Error; err != nil {
			return fmt.Errorf("check slug: %w", err)
		}
		if count > 0 {
			return domain.ErrConflict
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || isUniqueViolation(err) {
			return fmt.Errorf("tenant slug %q: %w", tenant.Slug, domain.ErrConflict)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (r *RegistryRepository) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	return r.findTenant(ctx, "id = ?", id)
}

func (r *RegistryRepository) GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	return r.findTenant(ctx, "slug = ?", slug)
}

func (r *RegistryRepository) findTenant(ctx context.Context, query string, arg any) (domain.Tenant, error) {
	var model tenantModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where(query, arg).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Tenant{}, domain.ErrNotFound
		}
		return domain.Tenant{}, fmt.Errorf("find tenant: %w", err)
	}
	return model.toDomain(), nil
}

func (r *RegistryRepository) ListTenants(ctx context.Context, filter domain.TenantFilter) ([]domain.Tenant, int64, error) {
	var (
		models []tenantModel
		total  int64
	)
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&tenantModel{})
		if filter.Status != nil {
			query = query.Where("status = ?", string(*filter.Status))
		}
		if filter.Plan != nil {
			query = query.Where("plan = ?", string(*filter.Plan))
		}
		if err := query.Count(&total).Error; err != nil {
			return err
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
		return query.Order("created_at ASC").Order("id ASC").Find(&models).Error
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}

	tenants := make([]domain.Tenant, 0, len(models))
	for _, m := range models {
		tenants = append(tenants, m.toDomain())
	}
	return tenants, total, nil
}

func (r *RegistryRepository) UpdateTenant(ctx context.Context, tenant domain.Tenant) error {
	model := toTenantModel(tenant)
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&tenantModel{}).Where("id = ?", model.ID).Updates(map[string]any{
			"name":        model.Name,
			"status":      model.Status,
			"plan":        model.Plan,
			"quotas_json": model.QuotasJSON,
			"updated_at":  model.UpdatedAt,
		})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteTenant removes the tenant row and every prefix-index row pointing at
// it. The tenant's own store file is left on disk.
func (r *RegistryRepository) DeleteTenant(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Where("tenant_id = ?", id).Delete(&apiKeyPrefixModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&tenantModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete tenant: %w", err)
	}
	return affected > 0, nil
}

// RegisterAPIKeyPrefix binds prefix to tenantID. Re-binding to the same
// tenant is a no-op; a prefix owned by another tenant is a conflict.
func (r *RegistryRepository) RegisterAPIKeyPrefix(ctx context.Context, prefix, tenantID string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var existing apiKeyPrefixModel
		err := tx.Where("key_prefix = ?", prefix).First(&existing).Error
		switch {
		case err == nil:
			if existing.TenantID != tenantID {
				return domain.ErrConflict
			}
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}
		return tx.Create(&apiKeyPrefixModel{
			KeyPrefix: prefix,
			TenantID:  tenantID,
			CreatedAt: toMillis(time.Now()),
		}).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		return fmt.Errorf("register api key prefix: %w", err)
	}
	return nil
}

func (r *RegistryRepository) RemoveAPIKeyPrefix(ctx context.Context, prefix string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("key_prefix = ?", prefix).Delete(&apiKeyPrefixModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("remove api key prefix: %w", err)
	}
	return nil
}

func (r *RegistryRepository) FindTenantIDByAPIKeyPrefix(ctx context.Context, prefix string) (string, error) {
	var model apiKeyPrefixModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("key_prefix = ?", prefix).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("find api key prefix: %w", err)
	}
	return model.TenantID, nil
}

// UpsertSuperAdmin returns the existing administrator with admin.Email, or
// creates it.
func (r *RegistryRepository) UpsertSuperAdmin(ctx context.Context, admin domain.SuperAdmin) (domain.SuperAdmin, error) {
	var model superAdminModel
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Where("email = ?", admin.Email).First(&model).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if admin.ID == "" {
			admin.ID = uuid.NewString()
		}
		if admin.CreatedAt.IsZero() {
			admin.CreatedAt = time.Now().UTC()
		}
		model = superAdminModel{
			ID:        admin.ID,
			Email:     admin.Email,
			Name:      admin.Name,
			CreatedAt: toMillis(admin.CreatedAt),
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.SuperAdmin{}, fmt.Errorf("upsert super admin: %w", err)
	}
	return model.toDomain(), nil
}

func (r *RegistryRepository) GetSuperAdmin(ctx context.Context, id string) (domain.SuperAdmin, error) {
	var model superAdminModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SuperAdmin{}, domain.ErrNotFound
		}
		return domain.SuperAdmin{}, fmt.Errorf("get super admin: %w", err)
	}
	return model.toDomain(), nil
}

func (r *RegistryRepository) ActiveAdminKey(ctx context.Context, adminID string) (domain.AdminAPIKey, error) {
	var model adminAPIKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("admin_id = ? AND revoked_at IS NULL", adminID).
			Order("created_at DESC").
			First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AdminAPIKey{}, domain.ErrNotFound
		}
		return domain.AdminAPIKey{}, fmt.Errorf("find active admin key: %w", err)
	}
	return model.toDomain(), nil
}

func (r *RegistryRepository) ReplaceAdminKey(ctx context.Context, key domain.AdminAPIKey) error {
	model := adminAPIKeyModel{
		ID:        key.ID,
		AdminID:   key.AdminID,
		KeyPrefix: key.KeyPrefix,
		KeyHash:   key.KeyHash,
		Scopes:    encodeScopes(key.Scopes),
		ExpiresAt: toMillisPtr(key.ExpiresAt),
		CreatedAt: toMillis(key.CreatedAt),
	}
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Model(&adminAPIKeyModel{}).
			Where("admin_id = ? AND revoked_at IS NULL", key.AdminID).
			Update("revoked_at", toMillis(key.CreatedAt)).Error; err != nil {
			return fmt.Errorf("revoke previous keys: %w", err)
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("replace admin key: %w", err)
	}
	return nil
}

func (r *RegistryRepository) FindAdminKeysByPrefix(ctx context.Context, prefix string) ([]domain.AdminAPIKey, error) {
	var models []adminAPIKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("key_prefix = ?", prefix).Order("created_at DESC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("find admin keys: %w", err)
	}
	keys := make([]domain.AdminAPIKey, 0, len(models))
	for _, m := range models {
		keys = append(keys, m.toDomain())
	}
	return keys, nil
}
