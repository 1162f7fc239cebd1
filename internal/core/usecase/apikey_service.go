package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	apiKeySecretBytes = 24
	maxPrefixAttempts = 5
)

var errPrefixExhausted = errors.New("could not allocate a unique api key prefix")

// IssuedAPIKey carries the full key exactly once, at issue time.
type IssuedAPIKey struct {
	Key    string
	APIKey domain.APIKey
}

type IssueKeyInput struct {
	UserID    string
	Name      string
	Scopes    []domain.Scope
	ExpiresAt *time.Time
	// Ceiling bounds the scopes a new key may carry. It is set when the key
	// is requested with another API key; nil means the caller holds a session.
	Ceiling []domain.Scope
}

type APIKeyService struct {
	registry ports.TenantRegistry
	cfg      AuthConfig
	logger   *zap.Logger
}

func NewAPIKeyService(registry ports.TenantRegistry, cfg AuthConfig, logger *zap.Logger) *APIKeyService {
	return &APIKeyService{
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   nopIfNil(logger).With(zap.String("component", "api-keys")),
	}
}

// IssueUserKey creates a key for in.UserID in tenant. The prefix is bound to
// the tenant in the registry before the key row is written; if the write
// fails the binding is removed again.
func (s *APIKeyService) IssueUserKey(ctx context.Context, tenant domain.Tenant, store ports.TenantStore, in IssueKeyInput) (IssuedAPIKey, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return IssuedAPIKey{}, fmt.Errorf("key name is required: %w", domain.ErrInvalidInput)
	}
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = domain.DefaultKeyScopes
		if in.Ceiling != nil && !domain.ScopesAllow(in.Ceiling, domain.ScopeAdmin) {
			scopes = append([]domain.Scope(nil), in.Ceiling...)
		}
		if len(scopes) == 0 {
			return IssuedAPIKey{}, fmt.Errorf("calling key carries no scopes: %w", domain.ErrForbidden)
		}
	}
	for _, scope := range scopes {
		if !domain.ValidUserKeyScope(scope) {
			return IssuedAPIKey{}, fmt.Errorf("scope %q: %w", scope, domain.ErrInvalidInput)
		}
		if in.Ceiling != nil && !domain.ScopesAllow(in.Ceiling, scope) {
			return IssuedAPIKey{}, fmt.Errorf("scope %q exceeds the calling key: %w", scope, domain.ErrForbidden)
		}
	}
	now := s.cfg.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return IssuedAPIKey{}, fmt.Errorf("expiry must be in the future: %w", domain.ErrInvalidInput)
	}

	for attempt := 0; attempt < maxPrefixAttempts; attempt++ {
		secret, err := RandomToken(apiKeySecretBytes)
		if err != nil {
			return IssuedAPIKey{}, err
		}
		fullKey := domain.APIKeyLiteral + s.cfg.KeyEnv + "_" + secret
		prefix := domain.APIKeyPrefix(fullKey)

		hash, err := HashSecret(fullKey)
		if err != nil {
			return IssuedAPIKey{}, err
		}

		if err := s.registry.RegisterAPIKeyPrefix(ctx, prefix, tenant.ID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				s.logger.Debug("api key prefix taken by another tenant, retrying", zap.Int("attempt", attempt+1))
				continue
			}
			return IssuedAPIKey{}, err
		}

		key := domain.APIKey{
			ID:        uuid.NewString(),
			UserID:    in.UserID,
			Name:      in.Name,
			KeyPrefix: prefix,
			KeyHash:   hash,
			Scopes:    scopes,
			ExpiresAt: in.ExpiresAt,
			CreatedAt: now,
		}
		if err := store.CreateAPIKey(ctx, key); err != nil {
			s.releasePrefix(ctx, store, prefix)
			return IssuedAPIKey{}, err
		}

		s.logger.Info("api key issued",
			zap.String("tenant_id", tenant.ID),
			zap.String("user_id", in.UserID),
			zap.String("key_id", key.ID),
			zap.String("prefix", prefix),
		)
		return IssuedAPIKey{Key: fullKey, APIKey: key}, nil
	}
	return IssuedAPIKey{}, errPrefixExhausted
}

func (s *APIKeyService) ListUserKeys(ctx context.Context, store ports.TenantStore, userID string) ([]domain.APIKey, error) {
	return store.ListAPIKeys(ctx, userID)
}

// RevokeUserKey deletes key id when it belongs to userID. It reports false
// when no such key exists.
func (s *APIKeyService) RevokeUserKey(ctx context.Context, store ports.TenantStore, id, userID string) (bool, error) {
	key, ok, err := store.DeleteAPIKey(ctx, id, userID)
	if err != nil || !ok {
		return ok, err
	}
	s.releasePrefix(ctx, store, key.KeyPrefix)
	s.logger.Info("api key revoked",
		zap.String("tenant_id", store.TenantID()),
		zap.String("user_id", userID),
		zap.String("key_id", id),
	)
	return true, nil
}

// RevokeAllUserKeys deletes every key of userID and frees their prefixes.
func (s *APIKeyService) RevokeAllUserKeys(ctx context.Context, store ports.TenantStore, userID string) (int, error) {
	keys, err := store.DeleteUserAPIKeys(ctx, userID)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key.KeyPrefix]; ok {
			continue
		}
		seen[key.KeyPrefix] = struct{}{}
		s.releasePrefix(ctx, store, key.KeyPrefix)
	}
	return len(keys), nil
}

// releasePrefix drops the registry binding of prefix once no key in store
// uses it.
func (s *APIKeyService) releasePrefix(ctx context.Context, store ports.TenantStore, prefix string) {
	remaining, err := store.CountAPIKeysByPrefix(ctx, prefix)
	if err != nil {
		s.logger.Error("count keys sharing prefix", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	if remaining > 0 {
		return
	}
	if err := s.registry.RemoveAPIKeyPrefix(ctx, prefix); err != nil {
		s.logger.Error("remove api key prefix", zap.String("prefix", prefix), zap.Error(err))
	}
}

// VerifyAPIKey returns the stored key matching fullKey, or nil when no key
// matches or the match has expired.
func (s *APIKeyService) VerifyAPIKey(ctx context.Context, store ports.TenantStore, fullKey string) (*domain.APIKey, error) {
	candidates, err := store.FindAPIKeysByPrefix(ctx, domain.APIKeyPrefix(fullKey))
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()
	for _, candidate := range candidates {
		if !VerifySecret(fullKey, candidate.KeyHash) {
			continue
		}
		if candidate.Expired(now) {
			return nil, nil
		}
		key := candidate
		return &key, nil
	}
	return nil, nil
}

// TouchAPIKey records that key id was just used.
func (s *APIKeyService) TouchAPIKey(ctx context.Context, store ports.TenantStore, id string) {
	if err := store.TouchAPIKey(ctx, id, s.cfg.Now()); err != nil {
		s.logger.Warn("touch api key", zap.String("key_id", id), zap.Error(err))
	}
}
