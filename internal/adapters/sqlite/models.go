package sqlite

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
)

// Timestamps are stored as unix milliseconds so that expiry comparisons run
// as integer comparisons inside SQLite.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func encodeScopes(scopes []domain.Scope) string {
	if scopes == nil {
		scopes = []domain.Scope{}
	}
	data, _ := json.Marshal(scopes)
	return string(data)
}

func decodeScopes(raw string) []domain.Scope {
	var scopes []domain.Scope
	if err := json.Unmarshal([]byte(raw), &scopes); err != nil {
		return nil
	}
	return scopes
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type tenantModel struct {
	ID         string `gorm:"column:id;primaryKey"`
	Name       string `gorm:"column:name;not null"`
	Slug       string `gorm:"column:slug;not null"`
	Status     string `gorm:"column:status;not null"`
	Plan       string `gorm:"column:plan;not null"`
	QuotasJSON string `gorm:"column:quotas_json;not null"`
	CreatedAt  int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt  int64  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (tenantModel) TableName() string {
	return "tenants"
}

func toTenantModel(t domain.Tenant) tenantModel {
	quotas, _ := json.Marshal(t.Quotas)
	return tenantModel{
		ID:         t.ID,
		Name:       t.Name,
		Slug:       t.Slug,
		Status:     string(t.Status),
		Plan:       string(t.Plan),
		QuotasJSON: string(quotas),
		CreatedAt:  toMillis(t.CreatedAt),
		UpdatedAt:  toMillis(t.UpdatedAt),
	}
}

func (m tenantModel) toDomain() domain.Tenant {
	plan := domain.Plan(m.Plan)
	quotas := domain.DefaultQuotas(plan)
	_ = json.Unmarshal([]byte(m.QuotasJSON), &quotas)
	return domain.Tenant{
		ID:        m.ID,
		Name:      m.Name,
		Slug:      m.Slug,
		Status:    domain.TenantStatus(m.Status),
		Plan:      plan,
		Quotas:    quotas,
		CreatedAt: fromMillis(m.CreatedAt),
		UpdatedAt: fromMillis(m.UpdatedAt),
	}
}

type apiKeyPrefixModel struct {
	KeyPrefix string `gorm:"column:key_prefix;primaryKey"`
	TenantID  string `gorm:"column:tenant_id;not null"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (apiKeyPrefixModel) TableName() string {
	return "api_key_prefixes"
}

type superAdminModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	Email     string `gorm:"column:email;not null"`
	Name      string `gorm:"column:name;not null"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (superAdminModel) TableName() string {
	return "super_admins"
}

func (m superAdminModel) toDomain() domain.SuperAdmin {
	return domain.SuperAdmin{ID: m.ID, Email: m.Email, Name: m.Name, CreatedAt: fromMillis(m.CreatedAt)}
}

type adminAPIKeyModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	AdminID   string `gorm:"column:admin_id;not null"`
	KeyPrefix string `gorm:"column:key_prefix;not null"`
	KeyHash   string `gorm:"column:key_hash;not null"`
	Scopes    string `gorm:"column:scopes;not null"`
	ExpiresAt *int64 `gorm:"column:expires_at"`
	RevokedAt *int64 `gorm:"column:revoked_at"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (adminAPIKeyModel) TableName() string {
	return "admin_api_keys"
}

func (m adminAPIKeyModel) toDomain() domain.AdminAPIKey {
	return domain.AdminAPIKey{
		ID:        m.ID,
		AdminID:   m.AdminID,
		KeyPrefix: m.KeyPrefix,
		KeyHash:   m.KeyHash,
		Scopes:    decodeScopes(m.Scopes),
		ExpiresAt: fromMillisPtr(m.ExpiresAt),
		RevokedAt: fromMillisPtr(m.RevokedAt),
		CreatedAt: fromMillis(m.CreatedAt),
	}
}

type userModel struct {
	ID                         string  `gorm:"column:id;primaryKey"`
	TenantID                   string  `gorm:"column:tenant_id;not null"`
	Email                      string  `gorm:"column:email;not null"`
	Name                       string  `gorm:"column:name;not null"`
	Role                       string  `gorm:"column:role;not null"`
	PasswordHash               *string `gorm:"column:password_hash"`
	EmailVerified              bool    `gorm:"column:email_verified;not null"`
	EmailVerificationToken     *string `gorm:"column:email_verification_token"`
	EmailVerificationExpiresAt *int64  `gorm:"column:email_verification_expires_at"`
	PasswordResetToken         *string `gorm:"column:password_reset_token"`
	PasswordResetExpiresAt     *int64  `gorm:"column:password_reset_expires_at"`
	InviteToken                *string `gorm:"column:invite_token"`
	InviteExpiresAt            *int64  `gorm:"column:invite_expires_at"`
	CreatedAt                  int64   `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt                  int64   `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (userModel) TableName() string {
	return "users"
}

func toUserModel(u domain.User) userModel {
	return userModel{
		ID:                         u.ID,
		TenantID:                   u.TenantID,
		Email:                      u.Email,
		Name:                       u.Name,
		Role:                       string(u.Role),
		PasswordHash:               nullString(u.PasswordHash),
		EmailVerified:              u.EmailVerified,
		EmailVerificationToken:     nullString(u.EmailVerificationToken),
		EmailVerificationExpiresAt: toMillisPtr(u.EmailVerificationExpires),
		PasswordResetToken:         nullString(u.PasswordResetToken),
		PasswordResetExpiresAt:     toMillisPtr(u.PasswordResetExpires),
		InviteToken:                nullString(u.InviteToken),
		InviteExpiresAt:            toMillisPtr(u.InviteExpires),
		CreatedAt:                  toMillis(u.CreatedAt),
		UpdatedAt:                  toMillis(u.UpdatedAt),
	}
}

func (m userModel) toDomain() domain.User {
	return domain.User{
		ID:                       m.ID,
		TenantID:                 m.TenantID,
		Email:                    m.Email,
		Name:                     m.Name,
		Role:                     domain.Role(m.Role),
		PasswordHash:             derefString(m.PasswordHash),
		EmailVerified:            m.EmailVerified,
		EmailVerificationToken:   derefString(m.EmailVerificationToken),
		EmailVerificationExpires: fromMillisPtr(m.EmailVerificationExpiresAt),
		PasswordResetToken:       derefString(m.PasswordResetToken),
		PasswordResetExpires:     fromMillisPtr(m.PasswordResetExpiresAt),
		InviteToken:              derefString(m.InviteToken),
		InviteExpires:            fromMillisPtr(m.InviteExpiresAt),
		CreatedAt:                fromMillis(m.CreatedAt),
		UpdatedAt:                fromMillis(m.UpdatedAt),
	}
}

type sessionModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	UserID    string `gorm:"column:user_id;not null"`
	Token     string `gorm:"column:token;not null"`
	ExpiresAt int64  `gorm:"column:expires_at;not null"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt int64  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (sessionModel) TableName() string {
	return "sessions"
}

func (m sessionModel) toDomain() domain.Session {
	return domain.Session{
		ID:        m.ID,
		UserID:    m.UserID,
		Token:     m.Token,
		ExpiresAt: fromMillis(m.ExpiresAt),
		CreatedAt: fromMillis(m.CreatedAt),
		UpdatedAt: fromMillis(m.UpdatedAt),
	}
}

type apiKeyModel struct {
	ID         string `gorm:"column:id;primaryKey"`
	UserID     string `gorm:"column:user_id;not null"`
	Name       string `gorm:"column:name;not null"`
	KeyPrefix  string `gorm:"column:key_prefix;not null"`
	KeyHash    string `gorm:"column:key_hash;not null"`
	Scopes     string `gorm:"column:scopes;not null"`
	ExpiresAt  *int64 `gorm:"column:expires_at"`
	LastUsedAt *int64 `gorm:"column:last_used_at"`
	CreatedAt  int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

func (m apiKeyModel) toDomain() domain.APIKey {
	return domain.APIKey{
		ID:         m.ID,
		UserID:     m.UserID,
		Name:       m.Name,
		KeyPrefix:  m.KeyPrefix,
		KeyHash:    m.KeyHash,
		Scopes:     decodeScopes(m.Scopes),
		ExpiresAt:  fromMillisPtr(m.ExpiresAt),
		LastUsedAt: fromMillisPtr(m.LastUsedAt),
		CreatedAt:  fromMillis(m.CreatedAt),
	}
}

type authLogModel struct {
	ID        int64   `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID  string  `gorm:"column:tenant_id;not null"`
	Email     string  `gorm:"column:email;not null"`
	Event     string  `gorm:"column:event;not null"`
	IPAddress *string `gorm:"column:ip_address"`
	UserAgent *string `gorm:"column:user_agent"`
	CreatedAt int64   `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (authLogModel) TableName() string {
	return "auth_logs"
}

type ownershipModel struct {
	ID           string `gorm:"column:id;primaryKey"`
	UserID       string `gorm:"column:user_id;not null"`
	ResourceType string `gorm:"column:resource_type;not null"`
	ResourceID   string `gorm:"column:resource_id;not null"`
	CreatedAt    int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (ownershipModel) TableName() string {
	return "resource_ownership"
}

func (m ownershipModel) toDomain() domain.ResourceOwnership {
	return domain.ResourceOwnership{
		ID:           m.ID,
		UserID:       m.UserID,
		ResourceType: domain.ResourceType(m.ResourceType),
		ResourceID:   m.ResourceID,
		CreatedAt:    fromMillis(m.CreatedAt),
	}
}
