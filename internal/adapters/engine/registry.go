package engine

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"go.uber.org/zap"
)

// Registry hands out one engine client per tenant and keeps it until Close.
// With an empty base URL every tenant gets an in-memory engine instead.
type Registry struct {
	baseURL string
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]ports.ExecutionEngine
	closed  bool
}

var _ ports.EngineClients = (*Registry)(nil)

func NewRegistry(baseURL string, timeout time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if baseURL == "" {
		logger.Warn("engine.base_url is empty, using in-memory execution engine")
	}
	return &Registry{
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "engine")),
		clients: make(map[string]ports.ExecutionEngine),
	}
}

func (r *Registry) ForTenant(tenantID string) (ports.ExecutionEngine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("engine registry closed")
	}
	if client, ok := r.clients[tenantID]; ok {
		return client, nil
	}

	var client ports.ExecutionEngine
	if r.baseURL == "" {
		client = NewMemory()
	} else {
		client = NewClient(r.baseURL, tenantID, &http.Client{Timeout: r.timeout})
	}
	r.clients[tenantID] = client
	r.logger.Debug("engine client created", zap.String("tenant_id", tenantID))
	return client, nil
}

// Forget drops the client of tenantID.
func (r *Registry) Forget(tenantID string) {
	r.mu.Lock()
	client, ok := r.clients[tenantID]
	delete(r.clients, tenantID)
	r.mu.Unlock()
	if c, isHTTP := client.(*Client); ok && isHTTP {
		c.closeIdle()
	}
}

func (r *Registry) Close() error {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]ports.ExecutionEngine)
	r.closed = true
	r.mu.Unlock()

	for _, client := range clients {
		if c, ok := client.(*Client); ok {
			c.closeIdle()
		}
	}
	return nil
}
