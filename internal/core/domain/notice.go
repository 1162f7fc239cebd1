package domain

import "time"

// NoticeKind names an outbound account message. Delivery itself is outside
// this service; notifiers hand the notice to whatever sends mail.
type NoticeKind string

const (
	NoticeEmailVerification NoticeKind = "email_verification"
	NoticeInvite            NoticeKind = "invite"
	NoticePasswordReset     NoticeKind = "password_reset"
)

type AccountNotice struct {
	Kind       NoticeKind `json:"kind"`
	TenantID   string     `json:"tenant_id"`
	TenantSlug string     `json:"tenant_slug"`
	Email      string     `json:"email"`
	Token      string     `json:"token"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxDead       OutboxStatus = "dead"
)

// OutboxNotice is a queued notice waiting for delivery.
type OutboxNotice struct {
	ID            int64
	Notice        AccountNotice
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
	// Malformed is set when the stored payload could not be decoded.
	Malformed bool
}
