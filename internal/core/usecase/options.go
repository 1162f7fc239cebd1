package usecase

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSessionTTL         = 7 * 24 * time.Hour
	DefaultMaxSessionsPerUser = 2
	DefaultVerificationTTL    = 24 * time.Hour
	DefaultResetTTL           = time.Hour
	DefaultInviteTTL          = 7 * 24 * time.Hour
	DefaultKeyEnv             = "live"
)

// AuthConfig holds the session and token windows shared by the services.
// Zero fields take the defaults above.
type AuthConfig struct {
	SessionTTL         time.Duration
	MaxSessionsPerUser int
	VerificationTTL    time.Duration
	ResetTTL           time.Duration
	InviteTTL          time.Duration
	KeyEnv             string

	Now func() time.Time
}

func (c AuthConfig) withDefaults() AuthConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.MaxSessionsPerUser <= 0 {
		c.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if c.VerificationTTL <= 0 {
		c.VerificationTTL = DefaultVerificationTTL
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = DefaultResetTTL
	}
	if c.InviteTTL <= 0 {
		c.InviteTTL = DefaultInviteTTL
	}
	if c.KeyEnv == "" {
		c.KeyEnv = DefaultKeyEnv
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
