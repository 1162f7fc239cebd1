package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/google/uuid"
)

// OwnershipService is the append-only ledger of which user created which
// engine resource.
type OwnershipService struct {
	cfg AuthConfig
}

func NewOwnershipService(cfg AuthConfig) *OwnershipService {
	return &OwnershipService{cfg: cfg.withDefaults()}
}

// RecordOwnership records userID as owner unless the resource already has
// one.
func (s *OwnershipService) RecordOwnership(ctx context.Context, store ports.TenantStore, userID string, resourceType domain.ResourceType, resourceID string) error {
	if !resourceType.Valid() {
		return fmt.Errorf("resource type %q: %w", resourceType, domain.ErrInvalidInput)
	}
	if resourceID == "" {
		return fmt.Errorf("resource id is required: %w", domain.ErrInvalidInput)
	}
	return store.RecordOwnership(ctx, domain.ResourceOwnership{
		ID:           uuid.NewString(),
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CreatedAt:    s.cfg.Now(),
	})
}

// Owner returns the owning user id, or "" when the resource is not in the
// ledger.
func (s *OwnershipService) Owner(ctx context.Context, store ports.TenantStore, resourceType domain.ResourceType, resourceID string) (string, error) {
	rec, err := store.GetOwnership(ctx, resourceType, resourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return rec.UserID, nil
}

func (s *OwnershipService) IsOwner(ctx context.Context, store ports.TenantStore, userID string, resourceType domain.ResourceType, resourceID string) (bool, error) {
	owner, err := s.Owner(ctx, store, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	return owner != "" && owner == userID, nil
}

func (s *OwnershipService) ListOwnedIDs(ctx context.Context, store ports.TenantStore, userID string, resourceType domain.ResourceType) ([]string, error) {
	return store.ListOwnedIDs(ctx, userID, resourceType)
}
