package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
)

type noticeOutboxModel struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Kind          string `gorm:"column:kind;not null"`
	TenantID      string `gorm:"column:tenant_id;not null"`
	PayloadJSON   string `gorm:"column:payload_json;not null"`
	Status        string `gorm:"column:status;not null"`
	Attempts      int    `gorm:"column:attempts;not null"`
	NextAttemptAt int64  `gorm:"column:next_attempt_at;not null"`
	LastError     string `gorm:"column:last_error;not null"`
	CreatedAt     int64  `gorm:"column:created_at;not null;autoCreateTime:false"`
	DispatchedAt  *int64 `gorm:"column:dispatched_at"`
}

func (noticeOutboxModel) TableName() string {
	return "notice_outbox"
}

// OutboxRepository keeps account notices in the registry database until
// they are delivered.
type OutboxRepository struct {
	db  *gormsqlite.DB
	now func() time.Time
}

func NewOutboxRepository(db *gormsqlite.DB) *OutboxRepository {
	return &OutboxRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, notice domain.AccountNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	now := toMillis(r.now())
	model := noticeOutboxModel{
		Kind:          string(notice.Kind),
		TenantID:      notice.TenantID,
		PayloadJSON:   string(payload),
		Status:        string(domain.OutboxPending),
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("enqueue notice: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FetchPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxNotice, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []noticeOutboxModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("status = ? AND next_attempt_at <= ?", string(domain.OutboxPending), toMillis(now)).
			Order("id ASC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending notices: %w", err)
	}

	result := make([]domain.OutboxNotice, 0, len(rows))
	for _, row := range rows {
		entry := domain.OutboxNotice{
			ID:            row.ID,
			Status:        domain.OutboxStatus(row.Status),
			Attempts:      row.Attempts,
			NextAttemptAt: fromMillis(row.NextAttemptAt),
			LastError:     row.LastError,
			CreatedAt:     fromMillis(row.CreatedAt),
			DispatchedAt:  fromMillisPtr(row.DispatchedAt),
		}
		if err := json.Unmarshal([]byte(row.PayloadJSON), &entry.Notice); err != nil {
			entry.Notice = domain.AccountNotice{Kind: domain.NoticeKind(row.Kind), TenantID: row.TenantID}
			entry.LastError = fmt.Sprintf("decode payload: %v", err)
			entry.Malformed = true
		}
		result = append(result, entry)
	}
	return result, nil
}

// MarkDispatched also clears the payload; the token is not kept once the
// relay has it.
func (r *OutboxRepository) MarkDispatched(ctx context.Context, id int64) error {
	now := toMillis(r.now())
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&noticeOutboxModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":        string(domain.OutboxDispatched),
				"dispatched_at": now,
				"last_error":    "",
				"payload_json":  "{}",
			}).Error
	})
	if err != nil {
		return fmt.Errorf("mark notice dispatched: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, errMsg string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&noticeOutboxModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"attempts":        attempts,
				"next_attempt_at": toMillis(nextAttemptAt),
				"last_error":      errMsg,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("mark notice failed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&noticeOutboxModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":     string(domain.OutboxDead),
				"attempts":   attempts,
				"last_error": errMsg,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("mark notice dead: %w", err)
	}
	return nil
}
