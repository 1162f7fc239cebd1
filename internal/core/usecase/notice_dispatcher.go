package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"go.uber.org/zap"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 50
	defaultMaxAttempts      = 5
	maxNoticeBackoff        = 5 * time.Minute

	noticeDelivered = "delivered"
	noticeFailed    = "failed"
	noticeDead      = "dead"
)

// NoticeDispatcher queues account notices in an outbox and delivers them in
// the background. It satisfies ports.Notifier, so account flows only pay for
// the insert and a slow mail relay never blocks a request.
type NoticeDispatcher struct {
	outbox      ports.NoticeOutbox
	target      ports.Notifier
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
	metrics     ports.NoticeMetrics
	logger      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	deliveredTotal atomic.Int64
	failedTotal    atomic.Int64
	deadTotal      atomic.Int64
}

type NoticeDispatcherOptions struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Now         func() time.Time
	Metrics     ports.NoticeMetrics
}

type NoticeDispatcherMetrics struct {
	DeliveredTotal int64
	FailedTotal    int64
	DeadTotal      int64
}

func NewNoticeDispatcher(outbox ports.NoticeOutbox, target ports.Notifier, opts NoticeDispatcherOptions, logger *zap.Logger) *NoticeDispatcher {
	if opts.Interval <= 0 {
		opts.Interval = defaultDispatchInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultDispatchBatch
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeDispatcher{
		outbox:      outbox,
		target:      target,
		interval:    opts.Interval,
		batchSize:   opts.BatchSize,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
		metrics:     opts.Metrics,
		logger:      logger.With(zap.String("component", "notice_dispatcher")),
	}
}

// Notify queues notice for delivery.
func (d *NoticeDispatcher) Notify(ctx context.Context, notice domain.AccountNotice) error {
	return d.outbox.Enqueue(ctx, notice)
}

// Start runs the delivery loop until Close or until parent is cancelled.
// Calling Start twice is a no-op.
func (d *NoticeDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx)
}

func (d *NoticeDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *NoticeDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.DispatchBatch(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("notice dispatch batch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchBatch delivers the notices that are due now. A delivery failure is
// recorded on the notice; only outbox errors are returned.
func (d *NoticeDispatcher) DispatchBatch(ctx context.Context) error {
	pending, err := d.outbox.FetchPending(ctx, d.now(), d.batchSize)
	if err != nil {
		return err
	}

	for _, entry := range pending {
		if entry.Malformed {
			if err := d.markDead(ctx, entry, entry.Attempts+1, entry.LastError); err != nil {
				return err
			}
			continue
		}

		if err := d.target.Notify(ctx, entry.Notice); err != nil {
			if markErr := d.markFailure(ctx, entry, err.Error()); markErr != nil {
				return markErr
			}
			d.failedTotal.Add(1)
			d.observe(noticeFailed)
			continue
		}

		if err := d.outbox.MarkDispatched(ctx, entry.ID); err != nil {
			return err
		}
		d.deliveredTotal.Add(1)
		d.observe(noticeDelivered)
	}
	return nil
}

func (d *NoticeDispatcher) markFailure(ctx context.Context, entry domain.OutboxNotice, errMsg string) error {
	attempts := entry.Attempts + 1
	if attempts >= d.maxAttempts {
		return d.markDead(ctx, entry, attempts, errMsg)
	}
	next := d.now().Add(noticeBackoff(attempts))
	d.logger.Warn("notice delivery failed",
		zap.Int64("notice_id", entry.ID),
		zap.String("kind", string(entry.Notice.Kind)),
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.String("error", errMsg),
	)
	return d.outbox.MarkFailed(ctx, entry.ID, attempts, next, errMsg)
}

func (d *NoticeDispatcher) markDead(ctx context.Context, entry domain.OutboxNotice, attempts int, errMsg string) error {
	if err := d.outbox.MarkDead(ctx, entry.ID, attempts, errMsg); err != nil {
		return err
	}
	d.deadTotal.Add(1)
	d.observe(noticeDead)
	d.logger.Error("notice dead-lettered",
		zap.Int64("notice_id", entry.ID),
		zap.String("kind", string(entry.Notice.Kind)),
		zap.String("tenant_id", entry.Notice.TenantID),
		zap.Int("attempts", attempts),
		zap.String("error", errMsg),
	)
	return nil
}

func (d *NoticeDispatcher) observe(outcome string) {
	if d.metrics != nil {
		d.metrics.NoticeOutcome(outcome)
	}
}

func (d *NoticeDispatcher) Metrics() NoticeDispatcherMetrics {
	return NoticeDispatcherMetrics{
		DeliveredTotal: d.deliveredTotal.Load(),
		FailedTotal:    d.failedTotal.Load(),
		DeadTotal:      d.deadTotal.Load(),
	}
}

// noticeBackoff grows quadratically: 1s, 4s, 9s, ... capped at five minutes.
func noticeBackoff(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	d := time.Duration(attempt*attempt) * time.Second
	if d > maxNoticeBackoff {
		return maxNoticeBackoff
	}
	return d
}
