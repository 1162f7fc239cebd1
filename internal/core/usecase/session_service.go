package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sessionTokenBytes = 32

type SessionGrant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionMatch is a live session found by the cross-tenant scan, together
// with the tenant and store it lives in.
type SessionMatch struct {
	Tenant  domain.Tenant
	Store   ports.TenantStore
	Session domain.Session
}

type SessionService struct {
	tenants *TenantService
	cfg     AuthConfig
	logger  *zap.Logger
}

func NewSessionService(tenants *TenantService, cfg AuthConfig, logger *zap.Logger) *SessionService {
	return &SessionService{
		tenants: tenants,
		cfg:     cfg.withDefaults(),
		logger:  nopIfNil(logger).With(zap.String("component", "sessions")),
	}
}

// CreateSession issues a session for userID. The user's oldest live sessions
// are evicted so that at most MaxSessionsPerUser remain.
func (s *SessionService) CreateSession(ctx context.Context, store ports.TenantStore, userID string) (SessionGrant, error) {
	token, err := RandomToken(sessionTokenBytes)
	if err != nil {
		return SessionGrant{}, err
	}
	now := s.cfg.Now()
	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     domain.SessionTokenPrefix + token,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateSession(ctx, session, s.cfg.MaxSessionsPerUser, now); err != nil {
		return SessionGrant{}, err
	}
	return SessionGrant{Token: session.Token, ExpiresAt: session.ExpiresAt}, nil
}

// ExtendSession slides the expiry of sessionID to now plus the session window.
func (s *SessionService) ExtendSession(ctx context.Context, store ports.TenantStore, sessionID string) (time.Time, error) {
	now := s.cfg.Now()
	expiresAt := now.Add(s.cfg.SessionTTL)
	if err := store.ExtendSession(ctx, sessionID, expiresAt, now); err != nil {
		return time.Time{}, err
	}
	return expiresAt, nil
}

// FindSession scans the stores of active tenants for a live session with
// token and stops at the first match. It returns nil when none holds it.
// A store that cannot be opened is skipped.
func (s *SessionService) FindSession(ctx context.Context, token string) (*SessionMatch, error) {
	tenants, err := s.tenants.ActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	now := s.cfg.Now()
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		store, err := s.tenants.OpenStore(ctx, tenant.ID)
		if err != nil {
			s.logger.Warn("skip tenant store in session scan", zap.String("tenant_id", tenant.ID), zap.Error(err))
			continue
		}
		session, err := store.FindLiveSessionByToken(ctx, token, now)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &SessionMatch{Tenant: tenant, Store: store, Session: session}, nil
	}
	return nil, nil
}

// DeleteSessionByToken logs out the session holding token, wherever it lives.
func (s *SessionService) DeleteSessionByToken(ctx context.Context, token string) (bool, error) {
	match, err := s.FindSession(ctx, token)
	if err != nil || match == nil {
		return false, err
	}
	return match.Store.DeleteSessionByToken(ctx, token)
}

func (s *SessionService) RevokeUserSessions(ctx context.Context, store ports.TenantStore, userID string) (int64, error) {
	n, err := store.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("user sessions revoked",
			zap.String("tenant_id", store.TenantID()),
			zap.String("user_id", userID),
			zap.Int64("count", n),
		)
	}
	return n, nil
}
