package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/adapters/engine"
	sqliteadapter "github.com/atvirokodosprendimai/desiauth/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.AccountNotice
}

func (n *recordingNotifier) Notify(_ context.Context, notice domain.AccountNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) last(t *testing.T, kind domain.NoticeKind) domain.AccountNotice {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.notices) - 1; i >= 0; i-- {
		if n.notices[i].Kind == kind {
			return n.notices[i]
		}
	}
	t.Fatalf("no %s notice recorded", kind)
	return domain.AccountNotice{}
}

type recordingMetrics struct {
	mu        sync.Mutex
	failures  map[string]int
	successes map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{failures: map[string]int{}, successes: map[string]int{}}
}

func (m *recordingMetrics) AuthSucceeded(authType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes[authType]++
}

func (m *recordingMetrics) AuthFailed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[reason]++
}

type fixture struct {
	ctx      context.Context
	clock    *testClock
	cfg      AuthConfig
	registry *sqliteadapter.RegistryRepository
	stores   *sqliteadapter.Stores
	notifier *recordingNotifier
	metrics  *recordingMetrics
	keyFile  string

	tenants   *TenantService
	sessions  *SessionService
	keys      *APIKeyService
	admins    *AdminKeyService
	accounts  *AccountService
	auth      *AuthService
	ownership *OwnershipService
	workflows *WorkflowService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	regDB, err := sqliteadapter.OpenRegistry(ctx, dir)
	require.NoError(t, err)
	stores := sqliteadapter.NewStores(dir, nil)
	engines := engine.NewRegistry("", 0, nil)
	t.Cleanup(func() {
		_ = engines.Close()
		_ = stores.Close()
		_ = regDB.Close()
	})

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := AuthConfig{Now: clock.Now}
	f := &fixture{
		ctx:      ctx,
		clock:    clock,
		cfg:      cfg,
		registry: sqliteadapter.NewRegistryRepository(regDB),
		stores:   stores,
		notifier: &recordingNotifier{},
		metrics:  newRecordingMetrics(),
		keyFile:  dir + "/admin.key",
	}
	f.wire(f.registry)
	f.workflows = NewWorkflowService(engines, f.ownership, nil)
	return f
}

// wire builds the services on top of registry, which tests may wrap.
func (f *fixture) wire(registry interface {
	ports.TenantRegistry
	ports.AdminRepository
}) {
	f.tenants = NewTenantService(registry, f.stores, f.cfg, nil)
	f.sessions = NewSessionService(f.tenants, f.cfg, nil)
	f.keys = NewAPIKeyService(registry, f.cfg, nil)
	f.admins = NewAdminKeyService(registry, f.keyFile, f.cfg, nil)
	f.accounts = NewAccountService(f.tenants, f.sessions, f.keys, f.notifier, f.cfg, nil)
	f.auth = NewAuthService(f.tenants, f.sessions, f.keys, f.admins, f.metrics, nil)
	f.ownership = NewOwnershipService(f.cfg)
}

func (f *fixture) createTenant(t *testing.T, slug string) (domain.Tenant, ports.TenantStore) {
	t.Helper()
	tenant, err := f.tenants.CreateTenant(f.ctx, CreateTenantInput{Name: "Tenant " + slug, Slug: slug, Plan: domain.PlanPro})
	require.NoError(t, err)
	store, err := f.tenants.OpenStore(f.ctx, tenant.ID)
	require.NoError(t, err)
	return tenant, store
}

// activeUser registers, verifies and returns a member of tenant.
func (f *fixture) activeUser(t *testing.T, tenant domain.Tenant, email string) domain.User {
	t.Helper()
	_, err := f.accounts.Register(f.ctx, tenant.Slug, RegisterInput{Email: email, Password: "password-123", Name: "User"})
	require.NoError(t, err)
	notice := f.notifier.last(t, domain.NoticeEmailVerification)
	user, err := f.accounts.VerifyEmail(f.ctx, tenant.Slug, notice.Token)
	require.NoError(t, err)
	return user
}

func (f *fixture) login(t *testing.T, tenant domain.Tenant, email string) LoginResult {
	t.Helper()
	res, err := f.accounts.Login(f.ctx, tenant.Slug, LoginInput{Email: email, Password: "password-123"})
	require.NoError(t, err)
	return res
}

func requireReason(t *testing.T, err error, reason FailureReason) {
	t.Helper()
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, reason, authErr.Reason)
}
