package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
	"github.com/go-chi/chi/v5"
)

type createWorkflowRequest struct {
	Goal string `json:"goal"`
}

type executeWorkflowRequest struct {
	Inputs json.RawMessage `json:"inputs"`
	Async  bool            `json:"async"`
}

func (h *Handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if !decodeBody(w, r, "createWorkflow", &req) {
		return
	}
	auth, _ := usecase.AuthFromContext(r.Context())
	result, err := h.svc.Workflows.Create(r.Context(), auth, req.Goal)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.DAGID == "" {
		// the engine asked for clarification instead of planning
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (h *Handler) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	var req executeWorkflowRequest
	if !decodeBody(w, r, "executeWorkflow", &req) {
		return
	}
	auth, _ := usecase.AuthFromContext(r.Context())
	result, err := h.svc.Workflows.Execute(r.Context(), auth, chi.URLParam(r, "id"), ports.ExecuteOptions{
		Inputs: req.Inputs,
		Async:  req.Async,
	})
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if req.Async {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (h *Handler) resumeExecution(w http.ResponseWriter, r *http.Request) {
	auth, _ := usecase.AuthFromContext(r.Context())
	result, err := h.svc.Workflows.Resume(r.Context(), auth, chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getResource(resourceType domain.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, _ := usecase.AuthFromContext(r.Context())
		res, err := h.svc.Workflows.Get(r.Context(), auth, resourceType, chi.URLParam(r, "id"))
		if err != nil {
			h.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Body)
	}
}

func (h *Handler) listResources(resourceType domain.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r, 50)
		if !ok {
			return
		}
		auth, _ := usecase.AuthFromContext(r.Context())
		items, err := h.svc.Workflows.List(r.Context(), auth, resourceType, ports.ListFilter{
			Status: r.URL.Query().Get("status"),
			Limit:  limit,
		})
		if err != nil {
			h.handleDomainError(w, r, err)
			return
		}
		bodies := make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			bodies = append(bodies, item.Body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": bodies})
	}
}
