package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/google/uuid"
)

// Memory is an in-process execution engine for local runs and tests. DAGs
// complete immediately; async executions start as "running".
type Memory struct {
	mu        sync.Mutex
	resources map[string]memResource
}

type memResource struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Goal      string          `json:"goal,omitempty"`
	DAGID     string          `json:"dagId,omitempty"`
	Inputs    json.RawMessage `json:"inputs,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

var _ ports.ExecutionEngine = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{resources: make(map[string]memResource)}
}

func (m *Memory) Create(_ context.Context, goal string) (ports.CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "dag_" + uuid.NewString()
	m.resources[id] = memResource{ID: id, Kind: string(domain.ResourceDAG), Status: "ready", Goal: goal, CreatedAt: time.Now().UTC()}
	return ports.CreateResult{DAGID: id}, nil
}

func (m *Memory) Execute(_ context.Context, dagID string, opts ports.ExecuteOptions) (ports.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[dagID]; !ok {
		return ports.ExecutionResult{}, fmt.Errorf("dag %q: %w", dagID, domain.ErrNotFound)
	}
	status := "completed"
	if opts.Async {
		status = "running"
	}
	id := "exec_" + uuid.NewString()
	m.resources[id] = memResource{ID: id, Kind: string(domain.ResourceExecution), Status: status, DAGID: dagID, Inputs: opts.Inputs, CreatedAt: time.Now().UTC()}
	return ports.ExecutionResult{ExecutionID: id, Status: status}, nil
}

func (m *Memory) Get(_ context.Context, id string) (ports.EngineResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[id]
	if !ok {
		return ports.EngineResource{}, fmt.Errorf("resource %q: %w", id, domain.ErrNotFound)
	}
	return toEngineResource(res)
}

func (m *Memory) List(_ context.Context, filter ports.ListFilter) ([]ports.EngineResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]memResource, 0, len(m.resources))
	for _, res := range m.resources {
		if filter.Kind != "" && res.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		matched = append(matched, res)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]ports.EngineResource, 0, len(matched))
	for _, res := range matched {
		item, err := toEngineResource(res)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *Memory) Resume(_ context.Context, executionID string) (ports.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[executionID]
	if !ok || res.Kind != string(domain.ResourceExecution) {
		return ports.ExecutionResult{}, fmt.Errorf("execution %q: %w", executionID, domain.ErrNotFound)
	}
	res.Status = "completed"
	m.resources[executionID] = res
	return ports.ExecutionResult{ExecutionID: executionID, Status: res.Status}, nil
}

func toEngineResource(res memResource) (ports.EngineResource, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return ports.EngineResource{}, fmt.Errorf("encode resource: %w", err)
	}
	return ports.EngineResource{ID: res.ID, Body: body}, nil
}
