package app

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/atvirokodosprendimai/desiauth/internal/adapters/engine"
	"github.com/atvirokodosprendimai/desiauth/internal/adapters/events"
	"github.com/atvirokodosprendimai/desiauth/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/desiauth/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/desiauth/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/desiauth/internal/config"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/atvirokodosprendimai/desiauth/internal/core/usecase"
	"github.com/atvirokodosprendimai/desiauth/internal/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type resourceCloser struct {
	closers []io.Closer
}

// Close closes in reverse order of acquisition and reports every failure.
func (r resourceCloser) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if r.closers[i] == nil {
			continue
		}
		err = multierr.Append(err, r.closers[i].Close())
	}
	return err
}

// App is the wired service: storage, use cases and the HTTP handler.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Tenants   *usecase.TenantService
	Sessions  *usecase.SessionService
	Keys      *usecase.APIKeyService
	Admins    *usecase.AdminKeyService
	Accounts  *usecase.AccountService
	Auth      *usecase.AuthService
	Workflows *usecase.WorkflowService
	Notices   *usecase.NoticeDispatcher

	closer resourceCloser
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	usecase.HashCost = cfg.Auth.BcryptCost

	regDB, err := sqliteadapter.OpenRegistry(ctx, cfg.Storage.DataDir, gormsqlite.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	stores := sqliteadapter.NewStores(cfg.Storage.DataDir, logger)
	engines := engine.NewRegistry(cfg.Engine.BaseURL, cfg.Engine.Timeout.Std(), logger)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		closer:  resourceCloser{closers: []io.Closer{regDB, stores, engines}},
	}

	authCfg := usecase.AuthConfig{
		SessionTTL:         cfg.Auth.SessionTTL.Std(),
		MaxSessionsPerUser: cfg.Auth.MaxSessionsPerUser,
		VerificationTTL:    cfg.Auth.VerificationTTL.Std(),
		ResetTTL:           cfg.Auth.ResetTTL.Std(),
		InviteTTL:          cfg.Auth.InviteTTL.Std(),
		KeyEnv:             cfg.Auth.KeyEnv,
	}
	registry := sqliteadapter.NewRegistryRepository(regDB)
	a.Notices = usecase.NewNoticeDispatcher(
		sqliteadapter.NewOutboxRepository(regDB),
		newNotifier(cfg.Notify, logger),
		usecase.NoticeDispatcherOptions{
			Interval:    cfg.Notify.DispatchInterval.Std(),
			BatchSize:   cfg.Notify.BatchSize,
			MaxAttempts: cfg.Notify.MaxAttempts,
			Metrics:     a.Metrics,
		},
		logger,
	)
	// stopped before the registry it writes to is closed
	a.closer.closers = append(a.closer.closers, a.Notices)

	a.Tenants = usecase.NewTenantService(registry, stores, authCfg, logger)
	a.Sessions = usecase.NewSessionService(a.Tenants, authCfg, logger)
	a.Keys = usecase.NewAPIKeyService(registry, authCfg, logger)
	a.Admins = usecase.NewAdminKeyService(registry, cfg.AdminKeyPath(), authCfg, logger)
	a.Accounts = usecase.NewAccountService(a.Tenants, a.Sessions, a.Keys, a.Notices, authCfg, logger)
	a.Auth = usecase.NewAuthService(a.Tenants, a.Sessions, a.Keys, a.Admins, a.Metrics, logger)
	a.Workflows = usecase.NewWorkflowService(engines, usecase.NewOwnershipService(authCfg), logger)

	return a, nil
}

func newNotifier(cfg config.NotifyConfig, logger *zap.Logger) ports.Notifier {
	if cfg.WebhookURL == "" {
		return events.NewLogNotifier(logger)
	}
	return events.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.Timeout.Std())
}

// Start launches background work. One-shot commands skip it; their notices
// stay queued until the next serve.
func (a *App) Start(ctx context.Context) {
	a.Notices.Start(ctx)
}

// BootstrapAdmin makes sure the configured super admin exists and holds a
// usable key. The full key is only returned when a new one was written.
func (a *App) BootstrapAdmin(ctx context.Context, email string, force bool) (usecase.AdminKeyIssue, error) {
	admin, err := a.Admins.EnsureSuperAdmin(ctx, email, "")
	if err != nil {
		return usecase.AdminKeyIssue{}, fmt.Errorf("ensure super admin: %w", err)
	}
	issue, err := a.Admins.IssueAdminKey(ctx, admin.ID, force)
	if err != nil {
		return usecase.AdminKeyIssue{}, fmt.Errorf("issue admin key: %w", err)
	}
	if issue.Created {
		a.Logger.Info("admin key written",
			zap.String("admin_id", admin.ID),
			zap.String("key_prefix", issue.Key.KeyPrefix),
			zap.String("key_file", a.Config.AdminKeyPath()),
		)
	}
	return issue, nil
}

func (a *App) Handler() http.Handler {
	opts := []httpapi.Option{httpapi.WithLogger(a.Logger)}
	if a.Config.Metrics.Enabled {
		opts = append(opts, httpapi.WithMetrics(a.Config.Metrics.Path, a.Metrics.Handler(), a.Metrics))
	}
	if rl := a.Config.RateLimit; rl.Enabled {
		opts = append(opts, httpapi.WithRateLimit(rl.RequestsPerSecond, rl.Burst))
	}
	if a.Config.RateLimit.TrustProxy {
		opts = append(opts, httpapi.WithTrustedProxy())
	}
	return httpapi.NewHandler(httpapi.Services{
		Tenants:   a.Tenants,
		Accounts:  a.Accounts,
		Sessions:  a.Sessions,
		Keys:      a.Keys,
		Auth:      a.Auth,
		Workflows: a.Workflows,
	}, opts...).Router()
}

func (a *App) Server() *http.Server {
	return &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout.Std(),
	}
}

func (a *App) Close() error {
	return a.closer.Close()
}
