package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/migrations"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantStore is one tenant's SQLite file: users, sessions, API keys, the auth
// log and the ownership ledger.
type TenantStore struct {
	tenantID string
	db       *gormsqlite.DB
}

func NewTenantStore(tenantID string, db *gormsqlite.DB) *TenantStore {
	return &TenantStore{tenantID: tenantID, db: db}
}

func (s *TenantStore) TenantID() string {
	return s.tenantID
}

func (s *TenantStore) Close() error {
	return s.db.Close()
}

func (s *TenantStore) SchemaVersion(ctx context.Context) (int64, error) {
	sqlDB, err := s.db.WriteSQLDB()
	if err != nil {
		return 0, fmt.Errorf("resolve writer sql db: %w", err)
	}
	return migrations.TenantVersion(ctx, sqlDB)
}

var userTokenColumns = map[domain.UserTokenKind]string{
	domain.TokenEmailVerification: "email_verification_token",
	domain.TokenPasswordReset:     "password_reset_token",
	domain.TokenInvite:            "invite_token",
}

func (s *TenantStore) CreateUser(ctx context.Context, user domain.User) error {
	model := toUserModel(user)
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var count int64
		if err := tx.Model(&userModel{}).Where("email = ?", model.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrConflict
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || isUniqueViolation(err) {
			return fmt.Errorf("user email %q: %w", user.Email, domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *TenantStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *TenantStore) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *TenantStore) FindUserByToken(ctx context.Context, kind domain.UserTokenKind, token string) (domain.User, error) {
	column, ok := userTokenColumns[kind]
	if !ok || token == "" {
		return domain.User{}, domain.ErrNotFound
	}
	return s.findUser(ctx, column+" = ?", token)
}

func (s *TenantStore) findUser(ctx context.Context, query string, arg any) (domain.User, error) {
	var model userModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where(query, arg).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return model.toDomain(), nil
}

func (s *TenantStore) UpdateUser(ctx context.Context, user domain.User) error {
	m := toUserModel(user)
	var affected int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&userModel{}).Where("id = ?", m.ID).Updates(map[string]any{
			"email":                         m.Email,
			"name":                          m.Name,
			"role":                          m.Role,
			"password_hash":                 m.PasswordHash,
			"email_verified":                m.EmailVerified,
			"email_verification_token":      m.EmailVerificationToken,
			"email_verification_expires_at": m.EmailVerificationExpiresAt,
			"password_reset_token":          m.PasswordResetToken,
			"password_reset_expires_at":     m.PasswordResetExpiresAt,
			"invite_token":                  m.InviteToken,
			"invite_expires_at":             m.InviteExpiresAt,
			"updated_at":                    m.UpdatedAt,
		})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user email %q: %w", user.Email, domain.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *TenantStore) DeleteUser(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("id = ?", id).Delete(&userModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return affected > 0, nil
}

func (s *TenantStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var models []userModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order("created_at ASC").Order("email ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, m.toDomain())
	}
	return users, nil
}

func (s *TenantStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&userModel{}).Count(&count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *TenantStore) CreateSession(ctx context.Context, session domain.Session, maxSessions int, now time.Time) error {
	nowMs := toMillis(now)
	model := sessionModel{
		ID:        session.ID,
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: toMillis(session.ExpiresAt),
		CreatedAt: toMillis(session.CreatedAt),
		UpdatedAt: toMillis(session.UpdatedAt),
	}

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var live []sessionModel
		if err := tx.Where("user_id = ? AND expires_at > ?", session.UserID, nowMs).
			Order("created_at ASC").Order("rowid ASC").
			Find(&live).Error; err != nil {
			return fmt.Errorf("load live sessions: %w", err)
		}

		if maxSessions > 0 {
			if excess := len(live) - (maxSessions - 1); excess > 0 {
				ids := make([]string, 0, excess)
				for _, m := range live[:excess] {
					ids = append(ids, m.ID)
				}
				if err := tx.Where("id IN ?", ids).Delete(&sessionModel{}).Error; err != nil {
					return fmt.Errorf("evict sessions: %w", err)
				}
			}
		}

		if err := tx.Where("user_id = ? AND expires_at <= ?", session.UserID, nowMs).Delete(&sessionModel{}).Error; err != nil {
			return fmt.Errorf("purge expired sessions: %w", err)
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *TenantStore) FindLiveSessionByToken(ctx context.Context, token string, now time.Time) (domain.Session, error) {
	var model sessionModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token = ? AND expires_at > ?", token, toMillis(now)).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("find session: %w", err)
	}
	return model.toDomain(), nil
}

func (s *TenantStore) ListLiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	var models []sessionModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("user_id = ? AND expires_at > ?", userID, toMillis(now)).
			Order("created_at ASC").Order("rowid ASC").
			Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]domain.Session, 0, len(models))
	for _, m := range models {
		sessions = append(sessions, m.toDomain())
	}
	return sessions, nil
}

func (s *TenantStore) ExtendSession(ctx context.Context, id string, expiresAt, now time.Time) error {
	var affected int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&sessionModel{}).Where("id = ?", id).Updates(map[string]any{
			"expires_at": toMillis(expiresAt),
			"updated_at": toMillis(now),
		})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *TenantStore) DeleteSessionByToken(ctx context.Context, token string) (bool, error) {
	var affected int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("token = ?", token).Delete(&sessionModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return affected > 0, nil
}

func (s *TenantStore) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	var affected int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("user_id = ?", userID).Delete(&sessionModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return affected, nil
}

func (s *TenantStore) CreateAPIKey(ctx context.Context, key domain.APIKey) error {
	model := apiKeyModel{
		ID:        key.ID,
		UserID:    key.UserID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		KeyHash:   key.KeyHash,
		Scopes:    encodeScopes(key.Scopes),
		ExpiresAt: toMillisPtr(key.ExpiresAt),
		CreatedAt: toMillis(key.CreatedAt),
	}
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *TenantStore) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return s.findAPIKeys(ctx, "user_id = ?", userID)
}

func (s *TenantStore) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]domain.APIKey, error) {
	return s.findAPIKeys(ctx, "key_prefix = ?", prefix)
}

func (s *TenantStore) findAPIKeys(ctx context.Context, query string, arg any) ([]domain.APIKey, error) {
	var models []apiKeyModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where(query, arg).Order("created_at DESC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("find api keys: %w", err)
	}
	keys := make([]domain.APIKey, 0, len(models))
	for _, m := range models {
		keys = append(keys, m.toDomain())
	}
	return keys, nil
}

func (s *TenantStore) CountAPIKeysByPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&apiKeyModel{}).Where("key_prefix = ?", prefix).Count(&count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return count, nil
}

// DeleteAPIKey removes key id only when it belongs to userID.
func (s *TenantStore) DeleteAPIKey(ctx context.Context, id, userID string) (domain.APIKey, bool, error) {
	var model apiKeyModel
	found := false
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Where("id = ? AND user_id = ?", id, userID).First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return tx.Where("id = ?", id).Delete(&apiKeyModel{}).Error
	})
	if err != nil {
		return domain.APIKey{}, false, fmt.Errorf("delete api key: %w", err)
	}
	if !found {
		return domain.APIKey{}, false, nil
	}
	return model.toDomain(), true, nil
}

func (s *TenantStore) DeleteUserAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	var models []apiKeyModel
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Where("user_id = ?", userID).Find(&models).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&apiKeyModel{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("delete user api keys: %w", err)
	}
	keys := make([]domain.APIKey, 0, len(models))
	for _, m := range models {
		keys = append(keys, m.toDomain())
	}
	return keys, nil
}

func (s *TenantStore) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&apiKeyModel{}).Where("id = ?", id).Update("last_used_at", toMillis(usedAt)).Error
	})
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func (s *TenantStore) AppendAuthLog(ctx context.Context, entry domain.AuthLog) error {
	model := authLogModel{
		TenantID:  entry.TenantID,
		Email:     entry.Email,
		Event:     string(entry.Event),
		IPAddress: nullString(entry.IPAddress),
		UserAgent: nullString(entry.UserAgent),
		CreatedAt: toMillis(entry.CreatedAt),
	}
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("append auth log: %w", err)
	}
	return nil
}

func (s *TenantStore) ListAuthLogs(ctx context.Context, email string, limit int) ([]domain.AuthLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []authLogModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&authLogModel{})
		if email != "" {
			query = query.Where("email = ?", email)
		}
		return query.Order("id DESC").Limit(limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list auth logs: %w", err)
	}
	logs := make([]domain.AuthLog, 0, len(models))
	for _, m := range models {
		logs = append(logs, domain.AuthLog{
			ID:        m.ID,
			TenantID:  m.TenantID,
			Email:     m.Email,
			Event:     domain.AuthEvent(m.Event),
			IPAddress: derefString(m.IPAddress),
			UserAgent: derefString(m.UserAgent),
			CreatedAt: fromMillis(m.CreatedAt),
		})
	}
	return logs, nil
}

// RecordOwnership inserts rec unless the resource already has an owner; the
// first writer wins.
func (s *TenantStore) RecordOwnership(ctx context.Context, rec domain.ResourceOwnership) error {
	model := ownershipModel{
		ID:           rec.ID,
		UserID:       rec.UserID,
		ResourceType: string(rec.ResourceType),
		ResourceID:   rec.ResourceID,
		CreatedAt:    toMillis(rec.CreatedAt),
	}
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_type"}, {Name: "resource_id"}},
			DoNothing: true,
		}).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("record ownership: %w", err)
	}
	return nil
}

func (s *TenantStore) GetOwnership(ctx context.Context, resourceType domain.ResourceType, resourceID string) (domain.ResourceOwnership, error) {
	var model ownershipModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("resource_type = ? AND resource_id = ?", string(resourceType), resourceID).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ResourceOwnership{}, domain.ErrNotFound
		}
		return domain.ResourceOwnership{}, fmt.Errorf("get ownership: %w", err)
	}
	return model.toDomain(), nil
}

func (s *TenantStore) ListOwnedIDs(ctx context.Context, userID string, resourceType domain.ResourceType) ([]string, error) {
	var ids []string
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&ownershipModel{}).
			Where("user_id = ? AND resource_type = ?", userID, string(resourceType)).
			Order("created_at ASC").
			Pluck("resource_id", &ids).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list owned ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
