package httpapi

import (
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
	"github.com/go-chi/chi/v5"
)

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type inviteRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	auth, _ := usecase.AuthFromContext(r.Context())
	keys, err := h.svc.Keys.ListUserKeys(r.Context(), auth.Store, auth.User.ID)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	items := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		items = append(items, toAPIKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// createAPIKey returns the full key once; only its hash is kept.
func (h *Handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if !decodeBody(w, r, "createAPIKey", &req) {
		return
	}
	auth, _ := usecase.AuthFromContext(r.Context())
	scopes := make([]domain.Scope, 0, len(req.Scopes))
	for _, s := range req.Scopes {
		scopes = append(scopes, domain.Scope(s))
	}
	in := usecase.IssueKeyInput{
		UserID:    auth.User.ID,
		Name:      req.Name,
		Scopes:    scopes,
		ExpiresAt: req.ExpiresAt,
	}
	if auth.APIKey != nil {
		in.Ceiling = append([]domain.Scope{}, auth.APIKey.Scopes...)
	}
	issued, err := h.svc.Keys.IssueUserKey(r.Context(), auth.Tenant, auth.Store, in)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":    issued.Key,
		"apiKey": toAPIKeyResponse(issued.APIKey),
	})
}

func (h *Handler) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	auth, _ := usecase.AuthFromContext(r.Context())
	deleted, err := h.svc.Keys.RevokeUserKey(r.Context(), auth.Store, chi.URLParam(r, "id"), auth.User.ID)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "api key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	auth, _ := usecase.AuthFromContext(r.Context())
	users, err := h.svc.Accounts.ListUsers(r.Context(), auth.Store)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) inviteUser(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeBody(w, r, "invite", &req) {
		return
	}
	auth, _ := usecase.AuthFromContext(r.Context())
	user, token, err := h.svc.Accounts.InviteUser(r.Context(), auth.Tenant, auth.Store, usecase.InviteInput{
		Email: req.Email,
		Name:  req.Name,
		Role:  domain.Role(req.Role),
	})
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":        toUserResponse(user),
		"inviteToken": token,
	})
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if !decodeBody(w, r, "changeRole", &req) {
		return
	}
	auth, _ := usecase.AuthFromContext(r.Context())
	user, err := h.svc.Accounts.ChangeRole(r.Context(), auth.Store, chi.URLParam(r, "id"), domain.Role(req.Role))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	auth, _ := usecase.AuthFromContext(r.Context())
	deleted, err := h.svc.Accounts.DeleteUser(r.Context(), auth.Store, auth.User.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) authLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 100)
	if !ok {
		return
	}
	auth, _ := usecase.AuthFromContext(r.Context())
	logs, err := h.svc.Accounts.AuthLogs(r.Context(), auth.Store, r.URL.Query().Get("email"), limit)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	items := make([]authLogResponse, 0, len(logs))
	for _, l := range logs {
		items = append(items, toAuthLogResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
