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
	accountTokenBytes = 32
	minPasswordLen    = 8
	maxPasswordLen    = 72
)

var errInvalidToken = fmt.Errorf("invalid or expired token: %w", domain.ErrInvalidInput)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

type LoginResult struct {
	User    domain.User
	Session SessionGrant
}

type InviteInput struct {
	Email string
	Name  string
	Role  domain.Role
}

// AccountService runs the per-tenant account flows: registration, email
// verification, login, invites, password reset and user administration.
type AccountService struct {
	tenants  *TenantService
	sessions *SessionService
	keys     *APIKeyService
	notifier ports.Notifier
	cfg      AuthConfig
	logger   *zap.Logger
}

func NewAccountService(tenants *TenantService, sessions *SessionService, keys *APIKeyService, notifier ports.Notifier, cfg AuthConfig, logger *zap.Logger) *AccountService {
	return &AccountService{
		tenants:  tenants,
		sessions: sessions,
		keys:     keys,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   nopIfNil(logger).With(zap.String("component", "accounts")),
	}
}

func (s *AccountService) tenantStore(ctx context.Context, slug string) (domain.Tenant, ports.TenantStore, error) {
	tenant, err := s.tenants.ResolveBySlug(ctx, slug)
	if err != nil {
		return domain.Tenant{}, nil, err
	}
	if tenant == nil {
		return domain.Tenant{}, nil, fmt.Errorf("tenant %q: %w", slug, domain.ErrNotFound)
	}
	store, err := s.tenants.OpenStore(ctx, tenant.ID)
	if err != nil {
		return domain.Tenant{}, nil, err
	}
	return *tenant, store, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return fmt.Errorf("password must be %d to %d bytes: %w", minPasswordLen, maxPasswordLen, domain.ErrInvalidInput)
	}
	return nil
}

func (s *AccountService) checkUserQuota(ctx context.Context, tenant domain.Tenant, store ports.TenantStore) error {
	if tenant.Quotas.MaxUsers <= 0 {
		return nil
	}
	count, err := store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count >= int64(tenant.Quotas.MaxUsers) {
		return fmt.Errorf("tenant allows %d users: %w", tenant.Quotas.MaxUsers, domain.ErrQuotaExceeded)
	}
	return nil
}

// Register creates an unverified member in the tenant with slug and sends a
// verification notice.
func (s *AccountService) Register(ctx context.Context, slug string, in RegisterInput) (domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if err := domain.ValidateEmail(email); err != nil {
		return domain.User{}, fmt.Errorf("email %q: %w", in.Email, err)
	}
	if err := validatePassword(in.Password); err != nil {
		return domain.User{}, err
	}

	tenant, store, err := s.tenantStore(ctx, slug)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.checkUserQuota(ctx, tenant, store); err != nil {
		return domain.User{}, err
	}

	hash, err := HashSecret(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	token, err := RandomToken(accountTokenBytes)
	if err != nil {
		return domain.User{}, err
	}
	now := s.cfg.Now()
	expires := now.Add(s.cfg.VerificationTTL)
	user := domain.User{
		ID:                       uuid.NewString(),
		TenantID:                 tenant.ID,
		Email:                    email,
		Name:                     strings.TrimSpace(in.Name),
		Role:                     domain.RoleMember,
		PasswordHash:             hash,
		EmailVerificationToken:   token,
		EmailVerificationExpires: &expires,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}

	s.notify(ctx, domain.AccountNotice{
		Kind:       domain.NoticeEmailVerification,
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		Email:      email,
		Token:      token,
		ExpiresAt:  expires,
	})
	s.logger.Info("user registered", zap.String("tenant_id", tenant.ID), zap.String("user_id", user.ID))
	return user, nil
}

func (s *AccountService) VerifyEmail(ctx context.Context, slug, token string) (domain.User, error) {
	_, store, err := s.tenantStore(ctx, slug)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.findByToken(ctx, store, domain.TokenEmailVerification, token)
	if err != nil {
		return domain.User{}, err
	}
	if !tokenLive(user.EmailVerificationExpires, s.cfg.Now()) {
		return domain.User{}, errInvalidToken
	}

	user.EmailVerified = true
	user.EmailVerificationToken = ""
	user.EmailVerificationExpires = nil
	user.UpdatedAt = s.cfg.Now()
	if err := store.UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Login checks the password of email in the tenant with slug and opens a
// session. Every attempt on an existing tenant is written to the auth log.
func (s *AccountService) Login(ctx context.Context, slug string, in LoginInput) (LoginResult, error) {
	tenant, store, err := s.tenantStore(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return LoginResult{}, domain.ErrInvalidCredential
		}
		return LoginResult{}, err
	}

	email := domain.NormalizeEmail(in.Email)
	user, err := store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return LoginResult{}, err
	}
	// unknown and passwordless users still pay for one comparison so the
	// answer takes as long as a wrong password
	hash := user.PasswordHash
	if err != nil || hash == "" {
		hash = placeholderHash()
	}
	matched := VerifySecret(in.Password, hash)
	if err != nil || user.PasswordHash == "" || !matched {
		s.appendAuthLog(ctx, store, tenant, email, domain.LoginFailed, in)
		return LoginResult{}, domain.ErrInvalidCredential
	}
	if !user.EmailVerified {
		s.appendAuthLog(ctx, store, tenant, email, domain.LoginFailed, in)
		return LoginResult{}, domain.ErrEmailNotVerified
	}

	grant, err := s.sessions.CreateSession(ctx, store, user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	s.appendAuthLog(ctx, store, tenant, email, domain.LoginSuccess, in)
	return LoginResult{User: user, Session: grant}, nil
}

func (s *AccountService) appendAuthLog(ctx context.Context, store ports.TenantStore, tenant domain.Tenant, email string, event domain.AuthEvent, in LoginInput) {
	err := store.AppendAuthLog(ctx, domain.AuthLog{
		TenantID:  tenant.ID,
		Email:     email,
		Event:     event,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		CreatedAt: s.cfg.Now(),
	})
	if err != nil {
		s.logger.Error("append auth log", zap.String("tenant_id", tenant.ID), zap.Error(err))
	}
}

// InviteUser creates a passwordless user holding an invite token. The token
// is returned and also handed to the notifier.
func (s *AccountService) InviteUser(ctx context.Context, tenant domain.Tenant, store ports.TenantStore, in InviteInput) (domain.User, string, error) {
	email := domain.NormalizeEmail(in.Email)
	if err := domain.ValidateEmail(email); err != nil {
		return domain.User{}, "", fmt.Errorf("email %q: %w", in.Email, err)
	}
	if in.Role == "" {
		in.Role = domain.RoleMember
	}
	if !in.Role.Valid() {
		return domain.User{}, "", fmt.Errorf("role %q: %w", in.Role, domain.ErrInvalidInput)
	}
	if err := s.checkUserQuota(ctx, tenant, store); err != nil {
		return domain.User{}, "", err
	}

	token, err := RandomToken(accountTokenBytes)
	if err != nil {
		return domain.User{}, "", err
	}
	now := s.cfg.Now()
	expires := now.Add(s.cfg.InviteTTL)
	user := domain.User{
		ID:            uuid.NewString(),
		TenantID:      tenant.ID,
		Email:         email,
		Name:          strings.TrimSpace(in.Name),
		Role:          in.Role,
		InviteToken:   token,
		InviteExpires: &expires,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return domain.User{}, "", err
	}

	s.notify(ctx, domain.AccountNotice{
		Kind:       domain.NoticeInvite,
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		Email:      email,
		Token:      token,
		ExpiresAt:  expires,
	})
	s.logger.Info("user invited",
		zap.String("tenant_id", tenant.ID),
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	return user, token, nil
}

// InviteTenantAdmin seeds the first administrator of a freshly created
// tenant.
func (s *AccountService) InviteTenantAdmin(ctx context.Context, tenant domain.Tenant, email, name string) (domain.User, string, error) {
	store, err := s.tenants.OpenStore(ctx, tenant.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return s.InviteUser(ctx, tenant, store, InviteInput{Email: email, Name: name, Role: domain.RoleAdmin})
}

// AcceptInvite sets the invited user's password, marks the email verified
// and opens a session.
func (s *AccountService) AcceptInvite(ctx context.Context, slug, token, password, name string) (LoginResult, error) {
	if err := validatePassword(password); err != nil {
		return LoginResult{}, err
	}
	_, store, err := s.tenantStore(ctx, slug)
	if err != nil {
		return LoginResult{}, err
	}
	user, err := s.findByToken(ctx, store, domain.TokenInvite, token)
	if err != nil {
		return LoginResult{}, err
	}
	if !tokenLive(user.InviteExpires, s.cfg.Now()) {
		return LoginResult{}, errInvalidToken
	}

	hash, err := HashSecret(password)
	if err != nil {
		return LoginResult{}, err
	}
	user.PasswordHash = hash
	user.EmailVerified = true
	user.InviteToken = ""
	user.InviteExpires = nil
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	user.UpdatedAt = s.cfg.Now()
	if err := store.UpdateUser(ctx, user); err != nil {
		return LoginResult{}, err
	}

	grant, err := s.sessions.CreateSession(ctx, store, user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: user, Session: grant}, nil
}

// RequestPasswordReset issues a reset token for email. An unknown email is
// not an error, so the endpoint does not reveal which addresses exist.
func (s *AccountService) RequestPasswordReset(ctx context.Context, slug, email string) error {
	tenant, store, err := s.tenantStore(ctx, slug)
	if err != nil {
		return err
	}
	user, err := store.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	token, err := RandomToken(accountTokenBytes)
	if err != nil {
		return err
	}
	now := s.cfg.Now()
	expires := now.Add(s.cfg.ResetTTL)
	user.PasswordResetToken = token
	user.PasswordResetExpires = &expires
	user.UpdatedAt = now
	if err := store.UpdateUser(ctx, user); err != nil {
		return err
	}

	s.notify(ctx, domain.AccountNotice{
		Kind:       domain.NoticePasswordReset,
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		Email:      user.Email,
		Token:      token,
		ExpiresAt:  expires,
	})
	return nil
}

// ConfirmPasswordReset replaces the password and revokes every session of
// the user.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, slug, token, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	_, store, err := s.tenantStore(ctx, slug)
	if err != nil {
		return err
	}
	user, err := s.findByToken(ctx, store, domain.TokenPasswordReset, token)
	if err != nil {
		return err
	}
	if !tokenLive(user.PasswordResetExpires, s.cfg.Now()) {
		return errInvalidToken
	}

	hash, err := HashSecret(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.PasswordResetToken = ""
	user.PasswordResetExpires = nil
	user.UpdatedAt = s.cfg.Now()
	if err := store.UpdateUser(ctx, user); err != nil {
		return err
	}
	_, err = s.sessions.RevokeUserSessions(ctx, store, user.ID)
	return err
}

func (s *AccountService) ListUsers(ctx context.Context, store ports.TenantStore) ([]domain.User, error) {
	return store.ListUsers(ctx)
}

func (s *AccountService) ChangeRole(ctx context.Context, store ports.TenantStore, userID string, role domain.Role) (domain.User, error) {
	if !role.Valid() {
		return domain.User{}, fmt.Errorf("role %q: %w", role, domain.ErrInvalidInput)
	}
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user.Role = role
	user.UpdatedAt = s.cfg.Now()
	if err := store.UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// DeleteUser removes userID together with its sessions and API keys. Users
// cannot delete themselves.
func (s *AccountService) DeleteUser(ctx context.Context, store ports.TenantStore, actorID, userID string) (bool, error) {
	if actorID == userID {
		return false, domain.ErrSelfDelete
	}
	if _, err := store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.keys.RevokeAllUserKeys(ctx, store, userID); err != nil {
		return false, err
	}
	if _, err := s.sessions.RevokeUserSessions(ctx, store, userID); err != nil {
		return false, err
	}
	return store.DeleteUser(ctx, userID)
}

func (s *AccountService) AuthLogs(ctx context.Context, store ports.TenantStore, email string, limit int) ([]domain.AuthLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return store.ListAuthLogs(ctx, domain.NormalizeEmail(email), limit)
}

func (s *AccountService) findByToken(ctx context.Context, store ports.TenantStore, kind domain.UserTokenKind, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, errInvalidToken
	}
	user, err := store.FindUserByToken(ctx, kind, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, errInvalidToken
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *AccountService) notify(ctx context.Context, notice domain.AccountNotice) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notice); err != nil {
		s.logger.Error("queue account notice",
			zap.String("kind", string(notice.Kind)),
			zap.String("tenant_id", notice.TenantID),
			zap.Error(err),
		)
	}
}

func tokenLive(expires *time.Time, now time.Time) bool {
	return expires != nil && expires.After(now)
}
