package httpapi

import (
	"net/http"
	"testing"

	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowOwnershipOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "acme")
	alice := s.signUp(t, "acme", "alice@example.com")
	bob := s.signUp(t, "acme", "bob@example.com")

	rec := s.do(t, call{method: http.MethodPost, path: "/v1/workflows", token: alice, body: map[string]string{"goal": "weekly report"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ports.CreateResult](t, rec)
	require.NotEmpty(t, created.DAGID)

	rec = s.do(t, call{method: http.MethodGet, path: "/v1/workflows/" + created.DAGID, token: alice})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: "/v1/workflows/" + created.DAGID, token: bob})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, call{method: http.MethodGet, path: "/v1/workflows/dag_unknown", token: bob})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/v1/workflows/" + created.DAGID + "/execute", token: alice, body: map[string]any{"async": true}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	exec := decode[ports.ExecutionResult](t, rec)
	assert.Equal(t, "running", exec.Status)

	rec = s.do(t, call{method: http.MethodPost, path: "/v1/executions/" + exec.ExecutionID + "/resume", token: bob})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, call{method: http.MethodPost, path: "/v1/executions/" + exec.ExecutionID + "/resume", token: alice})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decode[ports.ExecutionResult](t, rec).Status)

	rec = s.do(t, call{method: http.MethodGet, path: "/v1/workflows", token: bob})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: "/v1/executions", token: alice})
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, exec.ExecutionID, list.Items[0]["id"])
}

func TestWorkflowCreateValidatesBody(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "acme")
	alice := s.signUp(t, "acme", "alice@example.com")

	rec := s.do(t, call{method: http.MethodPost, path: "/v1/workflows", token: alice})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, call{method: http.MethodPost, path: "/v1/workflows", token: alice, body: map[string]any{"goal": 7}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
