package domain

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

type User struct {
	ID                       string
	TenantID                 string
	Email                    string
	Name                     string
	Role                     Role
	PasswordHash             string
	EmailVerified            bool
	EmailVerificationToken   string
	EmailVerificationExpires *time.Time
	PasswordResetToken       string
	PasswordResetExpires     *time.Time
	InviteToken              string
	InviteExpires            *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// UserTokenKind names the single-use token columns a user row carries.
type UserTokenKind string

const (
	TokenEmailVerification UserTokenKind = "email_verification"
	TokenPasswordReset     UserTokenKind = "password_reset"
	TokenInvite            UserTokenKind = "invite"
)

type AuthEvent string

const (
	LoginSuccess AuthEvent = "login_success"
	LoginFailed  AuthEvent = "login_failed"
)

type AuthLog struct {
	ID        int64
	TenantID  string
	Email     string
	Event     AuthEvent
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

type SuperAdmin struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}
