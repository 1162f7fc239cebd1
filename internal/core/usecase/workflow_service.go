package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"go.uber.org/zap"
)

// WorkflowService fronts the execution engine. Every id the engine returns is
// recorded in the caller's ownership ledger, and reads are gated on it.
type WorkflowService struct {
	engines   ports.EngineClients
	ownership *OwnershipService
	logger    *zap.Logger
}

func NewWorkflowService(engines ports.EngineClients, ownership *OwnershipService, logger *zap.Logger) *WorkflowService {
	return &WorkflowService{
		engines:   engines,
		ownership: ownership,
		logger:    nopIfNil(logger).With(zap.String("component", "workflows")),
	}
}

func requireWriter(auth *AuthContext) error {
	if !auth.HasRole(domain.RoleAdmin, domain.RoleMember) {
		return fmt.Errorf("role %q cannot run workflows: %w", auth.User.Role, domain.ErrForbidden)
	}
	return nil
}

// authorize answers ErrNotFound for ids this tenant never recorded and
// ErrForbidden for ids owned by another user. Admins may read every id
// recorded in their tenant.
func (s *WorkflowService) authorize(ctx context.Context, auth *AuthContext, resourceType domain.ResourceType, id string) error {
	owner, err := s.ownership.Owner(ctx, auth.Store, resourceType, id)
	if err != nil {
		return err
	}
	if owner == "" {
		return fmt.Errorf("%s %q: %w", resourceType, id, domain.ErrNotFound)
	}
	if owner != auth.User.ID && !auth.IsAdmin() {
		return fmt.Errorf("%s %q: %w", resourceType, id, domain.ErrForbidden)
	}
	return nil
}

func (s *WorkflowService) Create(ctx context.Context, auth *AuthContext, goal string) (ports.CreateResult, error) {
	if err := requireWriter(auth); err != nil {
		return ports.CreateResult{}, err
	}
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return ports.CreateResult{}, fmt.Errorf("goal is required: %w", domain.ErrInvalidInput)
	}
	engine, err := s.engines.ForTenant(auth.Tenant.ID)
	if err != nil {
		return ports.CreateResult{}, err
	}
	result, err := engine.Create(ctx, goal)
	if err != nil {
		return ports.CreateResult{}, err
	}
	if result.DAGID != "" {
		if err := s.ownership.RecordOwnership(ctx, auth.Store, auth.User.ID, domain.ResourceDAG, result.DAGID); err != nil {
			return ports.CreateResult{}, err
		}
	}
	return result, nil
}

func (s *WorkflowService) Execute(ctx context.Context, auth *AuthContext, dagID string, opts ports.ExecuteOptions) (ports.ExecutionResult, error) {
	if err := requireWriter(auth); err != nil {
		return ports.ExecutionResult{}, err
	}
	if err := s.authorize(ctx, auth, domain.ResourceDAG, dagID); err != nil {
		return ports.ExecutionResult{}, err
	}
	engine, err := s.engines.ForTenant(auth.Tenant.ID)
	if err != nil {
		return ports.ExecutionResult{}, err
	}
	result, err := engine.Execute(ctx, dagID, opts)
	if err != nil {
		return ports.ExecutionResult{}, err
	}
	if result.ExecutionID != "" {
		if err := s.ownership.RecordOwnership(ctx, auth.Store, auth.User.ID, domain.ResourceExecution, result.ExecutionID); err != nil {
			return ports.ExecutionResult{}, err
		}
	}
	s.logger.Info("workflow executed",
		zap.String("tenant_id", auth.Tenant.ID),
		zap.String("dag_id", dagID),
		zap.String("execution_id", result.ExecutionID),
	)
	return result, nil
}

func (s *WorkflowService) Resume(ctx context.Context, auth *AuthContext, executionID string) (ports.ExecutionResult, error) {
	if err := requireWriter(auth); err != nil {
		return ports.ExecutionResult{}, err
	}
	if err := s.authorize(ctx, auth, domain.ResourceExecution, executionID); err != nil {
		return ports.ExecutionResult{}, err
	}
	engine, err := s.engines.ForTenant(auth.Tenant.ID)
	if err != nil {
		return ports.ExecutionResult{}, err
	}
	return engine.Resume(ctx, executionID)
}

func (s *WorkflowService) Get(ctx context.Context, auth *AuthContext, resourceType domain.ResourceType, id string) (ports.EngineResource, error) {
	if err := s.authorize(ctx, auth, resourceType, id); err != nil {
		return ports.EngineResource{}, err
	}
	engine, err := s.engines.ForTenant(auth.Tenant.ID)
	if err != nil {
		return ports.EngineResource{}, err
	}
	return engine.Get(ctx, id)
}

// List returns engine resources of resourceType. Non-admins only see the ids
// they own; admins see everything recorded in their tenant.
func (s *WorkflowService) List(ctx context.Context, auth *AuthContext, resourceType domain.ResourceType, filter ports.ListFilter) ([]ports.EngineResource, error) {
	if !resourceType.Valid() {
		return nil, fmt.Errorf("resource type %q: %w", resourceType, domain.ErrInvalidInput)
	}
	filter.Kind = string(resourceType)
	engine, err := s.engines.ForTenant(auth.Tenant.ID)
	if err != nil {
		return nil, err
	}
	items, err := engine.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	visible := make([]ports.EngineResource, 0, len(items))
	if auth.IsAdmin() {
		for _, item := range items {
			owner, err := s.ownership.Owner(ctx, auth.Store, resourceType, item.ID)
			if err != nil {
				return nil, err
			}
			if owner != "" {
				visible = append(visible, item)
			}
		}
		return visible, nil
	}

	owned, err := s.ownership.ListOwnedIDs(ctx, auth.Store, auth.User.ID, resourceType)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(owned))
	for _, id := range owned {
		set[id] = struct{}{}
	}
	for _, item := range items {
		if _, ok := set[item.ID]; ok {
			visible = append(visible, item)
		}
	}
	return visible, nil
}

// ForgetTenant drops the cached engine client of a deleted tenant.
func (s *WorkflowService) ForgetTenant(tenantID string) {
	if f, ok := s.engines.(interface{ Forget(string) }); ok {
		f.Forget(tenantID)
	}
}
