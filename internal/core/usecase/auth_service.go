package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"go.uber.org/zap"
)

// FailureReason is the internal cause of an authentication failure. It is
// logged and counted but never sent to the client.
type FailureReason string

const (
	ReasonMissingHeader      FailureReason = "missing_header"
	ReasonMalformedHeader    FailureReason = "malformed_header"
	ReasonUnrecognizedFormat FailureReason = "unrecognized_token_format"
	ReasonInvalidCredential  FailureReason = "invalid_or_expired_credential"
	ReasonTenantInactive     FailureReason = "tenant_inactive"
	ReasonUserNotFound       FailureReason = "user_not_found"
	ReasonOrphanedSession    FailureReason = "orphaned_session"
)

type AuthError struct {
	Reason FailureReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unauthorized (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("unauthorized (%s)", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == domain.ErrUnauthorized }

type nopAuthMetrics struct{}

func (nopAuthMetrics) AuthSucceeded(string) {}
func (nopAuthMetrics) AuthFailed(string)    {}

// AuthService resolves a bearer credential to a tenant, a tenant store and a
// user.
type AuthService struct {
	tenants  *TenantService
	sessions *SessionService
	keys     *APIKeyService
	admins   *AdminKeyService
	metrics  ports.AuthMetrics
	logger   *zap.Logger
}

func NewAuthService(tenants *TenantService, sessions *SessionService, keys *APIKeyService, admins *AdminKeyService, metrics ports.AuthMetrics, logger *zap.Logger) *AuthService {
	if metrics == nil {
		metrics = nopAuthMetrics{}
	}
	return &AuthService{
		tenants:  tenants,
		sessions: sessions,
		keys:     keys,
		admins:   admins,
		metrics:  metrics,
		logger:   nopIfNil(logger).With(zap.String("component", "auth")),
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, *AuthError) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", &AuthError{Reason: ReasonMissingHeader}
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", &AuthError{Reason: ReasonMalformedHeader}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", &AuthError{Reason: ReasonMalformedHeader}
	}
	return token, nil
}

// Authenticate resolves the Authorization header value. Every failure is an
// *AuthError matching domain.ErrUnauthorized; store errors fail closed.
func (s *AuthService) Authenticate(ctx context.Context, header string) (*AuthContext, error) {
	auth, err := s.authenticate(ctx, header)
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			authErr = &AuthError{Reason: ReasonInvalidCredential, Err: err}
		}
		s.fail(authErr)
		return nil, authErr
	}
	s.metrics.AuthSucceeded(string(auth.AuthType))
	return auth, nil
}

func (s *AuthService) fail(err *AuthError) {
	s.metrics.AuthFailed(string(err.Reason))
	fields := []zap.Field{zap.String("reason", string(err.Reason))}
	if err.Err != nil {
		s.logger.Warn("authentication failed", append(fields, zap.Error(err.Err))...)
		return
	}
	s.logger.Debug("authentication failed", fields...)
}

func (s *AuthService) authenticate(ctx context.Context, header string) (*AuthContext, error) {
	token, authErr := BearerToken(header)
	if authErr != nil {
		return nil, authErr
	}
	switch domain.ClassifyToken(token) {
	case domain.TokenSession:
		return s.authenticateSession(ctx, token)
	case domain.TokenAPIKey:
		return s.authenticateAPIKey(ctx, token)
	default:
		return nil, &AuthError{Reason: ReasonUnrecognizedFormat}
	}
}

func (s *AuthService) authenticateSession(ctx context.Context, token string) (*AuthContext, error) {
	match, err := s.sessions.FindSession(ctx, token)
	if err != nil {
		return nil, &AuthError{Reason: ReasonInvalidCredential, Err: err}
	}
	if match == nil {
		return nil, &AuthError{Reason: ReasonInvalidCredential}
	}

	user, err := match.Store.GetUser(ctx, match.Session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &AuthError{Reason: ReasonOrphanedSession}
		}
		return nil, &AuthError{Reason: ReasonInvalidCredential, Err: err}
	}

	session := match.Session
	if expiresAt, err := s.sessions.ExtendSession(ctx, match.Store, session.ID); err != nil {
		s.logger.Warn("extend session", zap.String("tenant_id", match.Tenant.ID), zap.Error(err))
	} else {
		session.ExpiresAt = expiresAt
	}

	return &AuthContext{
		Tenant:   match.Tenant,
		User:     user,
		AuthType: AuthTypeSession,
		Session:  &session,
		Store:    match.Store,
	}, nil
}

func (s *AuthService) authenticateAPIKey(ctx context.Context, token string) (*AuthContext, error) {
	prefix := domain.APIKeyPrefix(token)
	tenant, err := s.tenants.ResolveByAPIKeyPrefix(ctx, prefix)
	if err != nil {
		return nil, &AuthError{Reason: ReasonInvalidCredential, Err: err}
	}
	if tenant == nil {
		return nil, &AuthError{Reason: ReasonInvalidCredential}
	}
	if !tenant.Active() {
		return nil, &AuthError{Reason: ReasonTenantInactive}
	}

	store, err := s.tenants.OpenStore(ctx, tenant.ID)
	if err != nil {
		return nil, &AuthError{Reason: ReasonInvalidCredential, Err: err}
	}
	key, err := s.keys.VerifyAPIKey(ctx, store, token)
	if err != nil {
		return nil, &AuthError{Reason: ReasonInvalidCredential, Err: err}
	}
	if key == nil {
		return nil, &AuthError{Reason: ReasonInvalidCredential}
	}

	user, err := store.GetUser(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &AuthError{Reason: ReasonUserNotFound}
		}
		return nil, &AuthError{Reason: ReasonInvalidCredential, Err: err}
	}
	s.keys.TouchAPIKey(ctx, store, key.ID)

	return &AuthContext{
		Tenant:   *tenant,
		User:     user,
		AuthType: AuthTypeAPIKey,
		APIKey:   key,
		Store:    store,
	}, nil
}

// AuthenticateAdmin resolves a super-admin key.
func (s *AuthService) AuthenticateAdmin(ctx context.Context, key string) (*AdminContext, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		s.fail(&AuthError{Reason: ReasonMissingHeader})
		return nil, &AuthError{Reason: ReasonMissingHeader}
	}
	adminKey, err := s.admins.VerifyAdminKey(ctx, key)
	if err != nil {
		authErr := &AuthError{Reason: ReasonInvalidCredential, Err: err}
		s.fail(authErr)
		return nil, authErr
	}
	if adminKey == nil {
		authErr := &AuthError{Reason: ReasonInvalidCredential}
		s.fail(authErr)
		return nil, authErr
	}
	s.metrics.AuthSucceeded("admin_key")
	return &AdminContext{AdminID: adminKey.AdminID, Key: *adminKey}, nil
}
