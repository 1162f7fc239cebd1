package httpapi

import (
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
)

type tenantResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Slug      string        `json:"slug"`
	Status    string        `json:"status"`
	Plan      string        `json:"plan"`
	Quotas    domain.Quotas `json:"quotas"`
	CreatedAt string        `json:"createdAt"`
	UpdatedAt string        `json:"updatedAt"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
	Invited       bool   `json:"invited,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

type apiKeyResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	KeyPrefix  string   `json:"keyPrefix"`
	Scopes     []string `json:"scopes"`
	ExpiresAt  *string  `json:"expiresAt"`
	LastUsedAt *string  `json:"lastUsedAt"`
	CreatedAt  string   `json:"createdAt"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type authLogResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Event     string `json:"event"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toTenantResponse(t domain.Tenant) tenantResponse {
	return tenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		Status:    string(t.Status),
		Plan:      string(t.Plan),
		Quotas:    t.Quotas,
		CreatedAt: formatTime(t.CreatedAt),
		UpdatedAt: formatTime(t.UpdatedAt),
	}
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerified,
		Invited:       u.InviteToken != "",
		CreatedAt:     formatTime(u.CreatedAt),
		UpdatedAt:     formatTime(u.UpdatedAt),
	}
}

func toAPIKeyResponse(k domain.APIKey) apiKeyResponse {
	scopes := make([]string, 0, len(k.Scopes))
	for _, s := range k.Scopes {
		scopes = append(scopes, string(s))
	}
	return apiKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Scopes:     scopes,
		ExpiresAt:  formatTimePtr(k.ExpiresAt),
		LastUsedAt: formatTimePtr(k.LastUsedAt),
		CreatedAt:  formatTime(k.CreatedAt),
	}
}

func toSessionResponse(g usecase.SessionGrant) sessionResponse {
	return sessionResponse{Token: g.Token, ExpiresAt: formatTime(g.ExpiresAt)}
}

func toAuthLogResponse(l domain.AuthLog) authLogResponse {
	return authLogResponse{
		ID:        l.ID,
		Email:     l.Email,
		Event:     string(l.Event),
		IPAddress: l.IPAddress,
		UserAgent: l.UserAgent,
		CreatedAt: formatTime(l.CreatedAt),
	}
}
