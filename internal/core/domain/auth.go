package domain

import (
	"strings"
	"time"
)

type Scope string

const (
	ScopeRead    Scope = "read"
	ScopeWrite   Scope = "write"
	ScopeAdmin   Scope = "admin"
	ScopeExecute Scope = "execute"
)

// DefaultKeyScopes are granted to a user key issued without explicit scopes.
var DefaultKeyScopes = []Scope{ScopeRead, ScopeWrite}

// AdminKeyScopes is the full global scope set carried by administrator keys.
var AdminKeyScopes = []Scope{ScopeAdmin, ScopeRead, ScopeWrite, ScopeExecute}

func ValidUserKeyScope(s Scope) bool {
	return s == ScopeRead || s == ScopeWrite || s == ScopeAdmin
}

type APIKey struct {
	ID         string
	UserID     string
	Name       string
	KeyPrefix  string
	KeyHash    string
	Scopes     []Scope
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// HasScope reports whether the key grants s. The admin scope grants all.
func (k APIKey) HasScope(s Scope) bool {
	return ScopesAllow(k.Scopes, s)
}

// ScopesAllow reports whether granted covers s.
func ScopesAllow(granted []Scope, s Scope) bool {
	for _, have := range granted {
		if have == s || have == ScopeAdmin {
			return true
		}
	}
	return false
}

type AdminAPIKey struct {
	ID        string
	AdminID   string
	KeyPrefix string
	KeyHash   string
	Scopes    []Scope
	ExpiresAt *time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

func (k AdminAPIKey) Usable(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

func (k AdminAPIKey) HasScope(s Scope) bool {
	return ScopesAllow(k.Scopes, s)
}

const (
	SessionTokenPrefix = "desi_session_"
	APIKeyLiteral      = "desi_"
	AdminKeyLiteral    = "desi_admin_"

	apiKeySecretChars = 8
	legacyPrefixLen   = 16
	adminSecretChars  = 4
)

// KeyEnvironments are the env segments recognised between the key literal and
// the secret. Anything else is treated as a legacy key.
var KeyEnvironments = []string{"live", "test"}

type TokenKind int

const (
	TokenUnknown TokenKind = iota
	TokenSession
	TokenAPIKey
)

// ClassifyToken routes a bearer token by its literal prefix. The session
// literal is checked first because it shares the key literal.
func ClassifyToken(token string) TokenKind {
	switch {
	case strings.HasPrefix(token, SessionTokenPrefix):
		return TokenSession
	case strings.HasPrefix(token, APIKeyLiteral):
		return TokenAPIKey
	default:
		return TokenUnknown
	}
}

// APIKeyPrefix derives the non-secret index prefix of a tenant API key:
// "desi_<env>_" plus the first 8 characters of the secret. Keys without a
// recognised env segment fall back to their first 16 characters.
func APIKeyPrefix(key string) string {
	if rest, ok := strings.CutPrefix(key, APIKeyLiteral); ok {
		if env, _, found := strings.Cut(rest, "_"); found && knownEnv(env) {
			end := len(APIKeyLiteral) + len(env) + 1 + apiKeySecretChars
			return clip(key, end)
		}
	}
	return clip(key, legacyPrefixLen)
}

func AdminKeyPrefix(key string) string {
	return clip(key, len(AdminKeyLiteral)+adminSecretChars)
}

func knownEnv(env string) bool {
	for _, e := range KeyEnvironments {
		if e == env {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
