package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateTenantInput struct {
	Name   string
	Slug   string
	Plan   domain.Plan
	Quotas *domain.Quotas
}

// TenantService owns the tenant registry and resolves tenants for the
// credential resolver.
type TenantService struct {
	registry ports.TenantRegistry
	stores   ports.TenantStores
	logger   *zap.Logger
	now      func() time.Time
}

func NewTenantService(registry ports.TenantRegistry, stores ports.TenantStores, cfg AuthConfig, logger *zap.Logger) *TenantService {
	cfg = cfg.withDefaults()
	return &TenantService{
		registry: registry,
		stores:   stores,
		logger:   nopIfNil(logger).With(zap.String("component", "tenants")),
		now:      cfg.Now,
	}
}

// CreateTenant registers a tenant and creates its store. If the store cannot
// be created the registry row is removed again.
func (s *TenantService) CreateTenant(ctx context.Context, in CreateTenantInput) (domain.Tenant, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Name == "" {
		return domain.Tenant{}, fmt.Errorf("tenant name is required: %w", domain.ErrInvalidInput)
	}
	if err := domain.ValidateSlug(in.Slug); err != nil {
		return domain.Tenant{}, fmt.Errorf("tenant slug %q: %w", in.Slug, err)
	}
	if in.Plan == "" {
		in.Plan = domain.PlanFree
	}
	if !in.Plan.Valid() {
		return domain.Tenant{}, fmt.Errorf("plan %q: %w", in.Plan, domain.ErrInvalidInput)
	}
	quotas := domain.DefaultQuotas(in.Plan)
	if in.Quotas != nil {
		quotas = *in.Quotas
	}

	now := s.now()
	tenant := domain.Tenant{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Slug:      in.Slug,
		Status:    domain.TenantActive,
		Plan:      in.Plan,
		Quotas:    quotas,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.registry.CreateTenant(ctx, tenant); err != nil {
		return domain.Tenant{}, err
	}
	if _, err := s.stores.Open(ctx, tenant.ID); err != nil {
		if _, delErr := s.registry.DeleteTenant(ctx, tenant.ID); delErr != nil {
			s.logger.Error("rollback tenant registration failed", zap.String("tenant_id", tenant.ID), zap.Error(delErr))
		}
		return domain.Tenant{}, fmt.Errorf("create tenant store: %w", err)
	}

	s.logger.Info("tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("slug", tenant.Slug),
		zap.String("plan", string(tenant.Plan)),
	)
	return tenant, nil
}

func (s *TenantService) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	return s.registry.GetTenant(ctx, id)
}

func (s *TenantService) GetTenantBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	return s.registry.GetTenantBySlug(ctx, slug)
}

func (s *TenantService) ListTenants(ctx context.Context, filter domain.TenantFilter) ([]domain.Tenant, int64, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("status %q: %w", *filter.Status, domain.ErrInvalidInput)
	}
	if filter.Plan != nil && !filter.Plan.Valid() {
		return nil, 0, fmt.Errorf("plan %q: %w", *filter.Plan, domain.ErrInvalidInput)
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.registry.ListTenants(ctx, filter)
}

// ActiveTenants lists every active tenant, unpaged.
func (s *TenantService) ActiveTenants(ctx context.Context) ([]domain.Tenant, error) {
	status := domain.TenantActive
	tenants, _, err := s.registry.ListTenants(ctx, domain.TenantFilter{Status: &status})
	return tenants, err
}

// UpdateTenant applies patch and returns the updated tenant, or nil when no
// tenant has id.
func (s *TenantService) UpdateTenant(ctx context.Context, id string, patch domain.TenantPatch) (*domain.Tenant, error) {
	tenant, err := s.registry.GetTenant(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("tenant name is required: %w", domain.ErrInvalidInput)
		}
		tenant.Name = name
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, fmt.Errorf("status %q: %w", *patch.Status, domain.ErrInvalidInput)
		}
		tenant.Status = *patch.Status
	}
	if patch.Plan != nil {
		if !patch.Plan.Valid() {
			return nil, fmt.Errorf("plan %q: %w", *patch.Plan, domain.ErrInvalidInput)
		}
		if patch.Quotas == nil && *patch.Plan != tenant.Plan {
			tenant.Quotas = domain.DefaultQuotas(*patch.Plan)
		}
		tenant.Plan = *patch.Plan
	}
	if patch.Quotas != nil {
		tenant.Quotas = *patch.Quotas
	}
	tenant.UpdatedAt = s.now()

	if err := s.registry.UpdateTenant(ctx, tenant); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *TenantService) SuspendTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	status := domain.TenantSuspended
	return s.UpdateTenant(ctx, id, domain.TenantPatch{Status: &status})
}

func (s *TenantService) ActivateTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	status := domain.TenantActive
	return s.UpdateTenant(ctx, id, domain.TenantPatch{Status: &status})
}

// DeleteTenant removes the registry row and prefix-index rows and closes the
// cached store. The store file stays on disk.
func (s *TenantService) DeleteTenant(ctx context.Context, id string) (bool, error) {
	deleted, err := s.registry.DeleteTenant(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	if err := s.stores.Evict(id); err != nil {
		s.logger.Warn("close evicted tenant store", zap.String("tenant_id", id), zap.Error(err))
	}
	s.logger.Info("tenant deleted", zap.String("tenant_id", id))
	return true, nil
}

// ResolveBySlug returns the tenant with slug only when it exists and is
// active.
func (s *TenantService) ResolveBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	tenant, err := s.registry.GetTenantBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !tenant.Active() {
		return nil, nil
	}
	return &tenant, nil
}

// ResolveByAPIKeyPrefix returns the tenant bound to prefix regardless of its
// status, or nil when the prefix is unknown.
func (s *TenantService) ResolveByAPIKeyPrefix(ctx context.Context, prefix string) (*domain.Tenant, error) {
	tenantID, err := s.registry.FindTenantIDByAPIKeyPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	tenant, err := s.registry.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *TenantService) OpenStore(ctx context.Context, tenantID string) (ports.TenantStore, error) {
	return s.stores.Open(ctx, tenantID)
}
