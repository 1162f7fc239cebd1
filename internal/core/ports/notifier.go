package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
)

// Notifier hands account notices (verification, invite, reset) to delivery.
type Notifier interface {
	Notify(ctx context.Context, notice domain.AccountNotice) error
}

// NoticeOutbox persists notices until a dispatcher has delivered them.
type NoticeOutbox interface {
	Enqueue(ctx context.Context, notice domain.AccountNotice) error
	FetchPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxNotice, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}

// AuthMetrics records credential resolution outcomes.
type AuthMetrics interface {
	AuthSucceeded(authType string)
	AuthFailed(reason string)
}

// NoticeMetrics records notice delivery outcomes.
type NoticeMetrics interface {
	NoticeOutcome(outcome string)
}
