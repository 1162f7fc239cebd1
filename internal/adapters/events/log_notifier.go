package events

import (
	"context"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"go.uber.org/zap"
)

// LogNotifier writes account notices to the log instead of delivering them.
// The token is included, so it is meant for local runs only.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.With(zap.String("component", "notifier"))}
}

func (n *LogNotifier) Notify(_ context.Context, notice domain.AccountNotice) error {
	n.logger.Info("account notice",
		zap.String("kind", string(notice.Kind)),
		zap.String("tenant", notice.TenantSlug),
		zap.String("email", notice.Email),
		zap.String("token", notice.Token),
		zap.Time("expires_at", notice.ExpiresAt),
	)
	return nil
}
