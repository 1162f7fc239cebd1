package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
)

const defaultTimeout = 30 * time.Second

// Client talks to the execution engine over HTTP on behalf of one tenant.
// Every request carries the tenant id in X-Tenant-ID.
type Client struct {
	baseURL  string
	tenantID string
	http     *http.Client
}

var _ ports.ExecutionEngine = (*Client)(nil)

func NewClient(baseURL, tenantID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tenantID: tenantID,
		http:     httpClient,
	}
}

func (c *Client) Create(ctx context.Context, goal string) (ports.CreateResult, error) {
	var out ports.CreateResult
	err := c.do(ctx, http.MethodPost, "/v1/dags", map[string]string{"goal": goal}, &out)
	return out, err
}

func (c *Client) Execute(ctx context.Context, dagID string, opts ports.ExecuteOptions) (ports.ExecutionResult, error) {
	var out ports.ExecutionResult
	err := c.do(ctx, http.MethodPost, "/v1/dags/"+url.PathEscape(dagID)+"/execute", opts, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (ports.EngineResource, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/resources/"+url.PathEscape(id), nil, &raw); err != nil {
		return ports.EngineResource{}, err
	}
	return ports.EngineResource{ID: id, Body: raw}, nil
}

func (c *Client) List(ctx context.Context, filter ports.ListFilter) ([]ports.EngineResource, error) {
	q := url.Values{}
	if filter.Kind != "" {
		q.Set("kind", filter.Kind)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/v1/resources"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	items := make([]ports.EngineResource, 0, len(out.Items))
	for _, raw := range out.Items {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("decode engine resource: %w", err)
		}
		items = append(items, ports.EngineResource{ID: head.ID, Body: raw})
	}
	return items, nil
}

func (c *Client) Resume(ctx context.Context, executionID string) (ports.ExecutionResult, error) {
	var out ports.ExecutionResult
	err := c.do(ctx, http.MethodPost, "/v1/executions/"+url.PathEscape(executionID)+"/resume", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal engine request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create engine request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call engine: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("engine %s %s: %w", method, path, domain.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("engine %s %s returned status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}

func (c *Client) closeIdle() {
	c.http.CloseIdleConnections()
}
