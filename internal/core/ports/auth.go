package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	FindUserByToken(ctx context.Context, kind domain.UserTokenKind, token string) (domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) error
	DeleteUser(ctx context.Context, id string) (bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

type SessionRepository interface {
	// CreateSession evicts the user's oldest live sessions so that at most
	// maxSessions remain after insertion, then inserts session. Eviction and
	// insertion happen in one write transaction.
	CreateSession(ctx context.Context, session domain.Session, maxSessions int, now time.Time) error
	FindLiveSessionByToken(ctx context.Context, token string, now time.Time) (domain.Session, error)
	ListLiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)
	ExtendSession(ctx context.Context, id string, expiresAt, now time.Time) error
	DeleteSessionByToken(ctx context.Context, token string) (bool, error)
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
}

type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key domain.APIKey) error
	ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error)
	FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]domain.APIKey, error)
	CountAPIKeysByPrefix(ctx context.Context, prefix string) (int64, error)
	DeleteAPIKey(ctx context.Context, id, userID string) (domain.APIKey, bool, error)
	DeleteUserAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error
}

type AuthLogRepository interface {
	AppendAuthLog(ctx context.Context, entry domain.AuthLog) error
	ListAuthLogs(ctx context.Context, email string, limit int) ([]domain.AuthLog, error)
}

type OwnershipRepository interface {
	RecordOwnership(ctx context.Context, rec domain.ResourceOwnership) error
	GetOwnership(ctx context.Context, resourceType domain.ResourceType, resourceID string) (domain.ResourceOwnership, error)
	ListOwnedIDs(ctx context.Context, userID string, resourceType domain.ResourceType) ([]string, error)
}

// TenantStore is one tenant's isolated data store.
type TenantStore interface {
	TenantID() string
	SchemaVersion(ctx context.Context) (int64, error)

	UserRepository
	SessionRepository
	APIKeyRepository
	AuthLogRepository
	OwnershipRepository
}

// TenantStores opens tenant stores by id. Open is idempotent and safe for
// concurrent use.
type TenantStores interface {
	Open(ctx context.Context, tenantID string) (TenantStore, error)
	Evict(tenantID string) error
}
