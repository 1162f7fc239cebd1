package ports

import (
	"context"
	"encoding/json"
)

type CreateResult struct {
	DAGID         string          `json:"dagId,omitempty"`
	Clarification json.RawMessage `json:"clarification,omitempty"`
}

type ExecuteOptions struct {
	Inputs json.RawMessage `json:"inputs,omitempty"`
	Async  bool            `json:"async,omitempty"`
}

type ExecutionResult struct {
	ExecutionID string `json:"executionId"`
	Status      string `json:"status"`
}

// EngineResource is an engine object kept opaque apart from its id.
type EngineResource struct {
	ID   string
	Body json.RawMessage
}

type ListFilter struct {
	Kind   string
	Status string
	Limit  int
}

// ExecutionEngine is the external DAG engine. Get returns domain.ErrNotFound
// when the id is unknown to the engine.
type ExecutionEngine interface {
	Create(ctx context.Context, goal string) (CreateResult, error)
	Execute(ctx context.Context, dagID string, opts ExecuteOptions) (ExecutionResult, error)
	Get(ctx context.Context, id string) (EngineResource, error)
	List(ctx context.Context, filter ListFilter) ([]EngineResource, error)
	Resume(ctx context.Context, executionID string) (ExecutionResult, error)
}

// EngineClients hands out one engine client per tenant.
type EngineClients interface {
	ForTenant(tenantID string) (ExecutionEngine, error)
}
