package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const adminKeySecretBytes = 16

// AdminKeyIssue is the result of IssueAdminKey. FullKey is empty when an
// existing key was kept.
type AdminKeyIssue struct {
	FullKey string
	Key     domain.AdminAPIKey
	Created bool
}

type AdminKeyService struct {
	repo    ports.AdminRepository
	keyFile string
	cfg     AuthConfig
	logger  *zap.Logger
}

// NewAdminKeyService returns the super-admin key service. When keyFile is
// set, every newly issued key is also written there with mode 0600.
func NewAdminKeyService(repo ports.AdminRepository, keyFile string, cfg AuthConfig, logger *zap.Logger) *AdminKeyService {
	return &AdminKeyService{
		repo:    repo,
		keyFile: keyFile,
		cfg:     cfg.withDefaults(),
		logger:  nopIfNil(logger).With(zap.String("component", "admin-keys")),
	}
}

func (s *AdminKeyService) EnsureSuperAdmin(ctx context.Context, email, name string) (domain.SuperAdmin, error) {
	email = domain.NormalizeEmail(email)
	if err := domain.ValidateEmail(email); err != nil {
		return domain.SuperAdmin{}, fmt.Errorf("admin email %q: %w", email, err)
	}
	if strings.TrimSpace(name) == "" {
		name = email
	}
	return s.repo.UpsertSuperAdmin(ctx, domain.SuperAdmin{
		Email:     email,
		Name:      name,
		CreatedAt: s.cfg.Now(),
	})
}

// IssueAdminKey returns the admin's usable key when one exists and force is
// false. Otherwise it revokes the old keys and issues a new one.
func (s *AdminKeyService) IssueAdminKey(ctx context.Context, adminID string, force bool) (AdminKeyIssue, error) {
	if _, err := s.repo.GetSuperAdmin(ctx, adminID); err != nil {
		return AdminKeyIssue{}, err
	}

	now := s.cfg.Now()
	if !force {
		existing, err := s.repo.ActiveAdminKey(ctx, adminID)
		switch {
		case err == nil && existing.Usable(now):
			return AdminKeyIssue{Key: existing}, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return AdminKeyIssue{}, err
		}
	}

	secret, err := randomHex(adminKeySecretBytes)
	if err != nil {
		return AdminKeyIssue{}, err
	}
	fullKey := domain.AdminKeyLiteral + secret
	hash, err := HashSecret(fullKey)
	if err != nil {
		return AdminKeyIssue{}, err
	}
	key := domain.AdminAPIKey{
		ID:        uuid.NewString(),
		AdminID:   adminID,
		KeyPrefix: domain.AdminKeyPrefix(fullKey),
		KeyHash:   hash,
		Scopes:    domain.AdminKeyScopes,
		CreatedAt: now,
	}
	if err := s.repo.ReplaceAdminKey(ctx, key); err != nil {
		return AdminKeyIssue{}, err
	}
	if err := s.writeKeyFile(fullKey); err != nil {
		return AdminKeyIssue{}, err
	}

	s.logger.Info("admin key issued",
		zap.String("admin_id", adminID),
		zap.String("key_id", key.ID),
		zap.Bool("forced", force),
	)
	return AdminKeyIssue{FullKey: fullKey, Key: key, Created: true}, nil
}

func (s *AdminKeyService) writeKeyFile(fullKey string) error {
	if s.keyFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.keyFile), 0o700); err != nil {
		return fmt.Errorf("create admin key directory: %w", err)
	}
	if err := os.WriteFile(s.keyFile, []byte(fullKey+"\n"), 0o600); err != nil {
		return fmt.Errorf("write admin key file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.keyFile, 0o600); err != nil {
		return fmt.Errorf("restrict admin key file: %w", err)
	}
	return nil
}

// VerifyAdminKey returns the usable admin key matching fullKey, or nil.
func (s *AdminKeyService) VerifyAdminKey(ctx context.Context, fullKey string) (*domain.AdminAPIKey, error) {
	if !strings.HasPrefix(fullKey, domain.AdminKeyLiteral) {
		return nil, nil
	}
	candidates, err := s.repo.FindAdminKeysByPrefix(ctx, domain.AdminKeyPrefix(fullKey))
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()
	for _, candidate := range candidates {
		if !VerifySecret(fullKey, candidate.KeyHash) {
			continue
		}
		if !candidate.Usable(now) {
			return nil, nil
		}
		key := candidate
		return &key, nil
	}
	return nil, nil
}
