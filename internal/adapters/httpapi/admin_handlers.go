package httpapi

import (
	"net/http"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type createTenantRequest struct {
	Name       string         `json:"name"`
	Slug       string         `json:"slug"`
	Plan       string         `json:"plan"`
	Quotas     *domain.Quotas `json:"quotas"`
	AdminEmail string         `json:"adminEmail"`
	AdminName  string         `json:"adminName"`
}

type updateTenantRequest struct {
	Name   *string        `json:"name"`
	Status *string        `json:"status"`
	Plan   *string        `json:"plan"`
	Quotas *domain.Quotas `json:"quotas"`
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 50)
	if !ok {
		return
	}
	offset, ok := parseOffset(w, r)
	if !ok {
		return
	}
	filter := domain.TenantFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.TenantStatus(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("plan"); raw != "" {
		plan := domain.Plan(raw)
		filter.Plan = &plan
	}

	tenants, total, err := h.svc.Tenants.ListTenants(r.Context(), filter)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	items := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, toTenantResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

// createTenant registers a tenant and, when adminEmail is set, invites its
// first administrator.
func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if !decodeBody(w, r, "createTenant", &req) {
		return
	}
	tenant, err := h.svc.Tenants.CreateTenant(r.Context(), usecase.CreateTenantInput{
		Name:   req.Name,
		Slug:   req.Slug,
		Plan:   domain.Plan(req.Plan),
		Quotas: req.Quotas,
	})
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	resp := map[string]any{"tenant": toTenantResponse(tenant)}
	if req.AdminEmail != "" {
		user, token, err := h.svc.Accounts.InviteTenantAdmin(r.Context(), tenant, req.AdminEmail, req.AdminName)
		if err != nil {
			h.handleDomainError(w, r, err)
			return
		}
		resp["admin"] = toUserResponse(user)
		resp["inviteToken"] = token
	}
	h.logAdmin(r, "tenant created", zap.String("tenant_id", tenant.ID))
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.svc.Tenants.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *Handler) updateTenant(w http.ResponseWriter, r *http.Request) {
	var req updateTenantRequest
	if !decodeBody(w, r, "updateTenant", &req) {
		return
	}
	patch := domain.TenantPatch{Name: req.Name, Quotas: req.Quotas}
	if req.Status != nil {
		status := domain.TenantStatus(*req.Status)
		patch.Status = &status
	}
	if req.Plan != nil {
		plan := domain.Plan(*req.Plan)
		patch.Plan = &plan
	}
	id := chi.URLParam(r, "id")
	h.writeTenantUpdate(w, r, "tenant updated", func() (*domain.Tenant, error) {
		return h.svc.Tenants.UpdateTenant(r.Context(), id, patch)
	})
}

func (h *Handler) suspendTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.writeTenantUpdate(w, r, "tenant suspended", func() (*domain.Tenant, error) {
		return h.svc.Tenants.SuspendTenant(r.Context(), id)
	})
}

func (h *Handler) activateTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.writeTenantUpdate(w, r, "tenant activated", func() (*domain.Tenant, error) {
		return h.svc.Tenants.ActivateTenant(r.Context(), id)
	})
}

func (h *Handler) writeTenantUpdate(w http.ResponseWriter, r *http.Request, msg string, update func() (*domain.Tenant, error)) {
	tenant, err := update()
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	h.logAdmin(r, msg, zap.String("tenant_id", tenant.ID), zap.String("status", string(tenant.Status)))
	writeJSON(w, http.StatusOK, toTenantResponse(*tenant))
}

func (h *Handler) deleteTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.svc.Tenants.DeleteTenant(r.Context(), id)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	h.svc.Workflows.ForgetTenant(id)
	h.logAdmin(r, "tenant deleted", zap.String("tenant_id", id))
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) logAdmin(r *http.Request, msg string, fields ...zap.Field) {
	if admin, ok := usecase.AdminFromContext(r.Context()); ok {
		fields = append(fields, zap.String("admin_id", admin.AdminID))
	}
	h.logger.Info(msg, fields...)
}
