package httpapi

import (
	"net/http"

	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type acceptInviteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, "register", &req) {
		return
	}
	user, err := h.svc.Accounts.Register(r.Context(), chi.URLParam(r, "slug"), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    toUserResponse(user),
		"message": "Check your email to verify the address",
	})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, "token", &req) {
		return
	}
	user, err := h.svc.Accounts.VerifyEmail(r.Context(), chi.URLParam(r, "slug"), req.Token)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, "login", &req) {
		return
	}
	res, err := h.svc.Accounts.Login(r.Context(), chi.URLParam(r, "slug"), usecase.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(res.User),
		Session: toSessionResponse(res.Session),
	})
}

func (h *Handler) acceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if !decodeBody(w, r, "acceptInvite", &req) {
		return
	}
	res, err := h.svc.Accounts.AcceptInvite(r.Context(), chi.URLParam(r, "slug"), req.Token, req.Password, req.Name)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(res.User),
		Session: toSessionResponse(res.Session),
	})
}

// requestPasswordReset answers 202 whether or not the address exists.
func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeBody(w, r, "resetRequest", &req) {
		return
	}
	if err := h.svc.Accounts.RequestPasswordReset(r.Context(), chi.URLParam(r, "slug"), req.Email); err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the address is registered a reset link has been sent",
	})
}

func (h *Handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decodeBody(w, r, "resetConfirm", &req) {
		return
	}
	if err := h.svc.Accounts.ConfirmPasswordReset(r.Context(), chi.URLParam(r, "slug"), req.Token, req.Password); err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	auth, _ := usecase.AuthFromContext(r.Context())
	if auth.AuthType != usecase.AuthTypeSession || auth.Session == nil {
		writeError(w, http.StatusBadRequest, "logout requires a session token")
		return
	}
	deleted, err := h.svc.Sessions.DeleteSessionByToken(r.Context(), auth.Session.Token)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loggedOut": deleted})
}

type meResponse struct {
	User     userResponse `json:"user"`
	Tenant   meTenant     `json:"tenant"`
	AuthType string       `json:"authType"`
	Scopes   []string     `json:"scopes,omitempty"`
}

type meTenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Plan string `json:"plan"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	auth, _ := usecase.AuthFromContext(r.Context())
	resp := meResponse{
		User: toUserResponse(auth.User),
		Tenant: meTenant{
			ID:   auth.Tenant.ID,
			Name: auth.Tenant.Name,
			Slug: auth.Tenant.Slug,
			Plan: string(auth.Tenant.Plan),
		},
		AuthType: string(auth.AuthType),
	}
	if auth.APIKey != nil {
		resp.Scopes = toAPIKeyResponse(*auth.APIKey).Scopes
	}
	writeJSON(w, http.StatusOK, resp)
}
