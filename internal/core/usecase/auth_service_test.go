package usecase

import (
	"testing"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateRejectsBadHeaders(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		header string
		reason FailureReason
	}{
		{name: "empty", header: "", reason: ReasonMissingHeader},
		{name: "blank", header: "   ", reason: ReasonMissingHeader},
		{name: "basic scheme", header: "Basic abc", reason: ReasonMalformedHeader},
		{name: "bearer without token", header: "Bearer ", reason: ReasonMalformedHeader},
		{name: "foreign token", header: "Bearer sk_live_abc", reason: ReasonUnrecognizedFormat},
		{name: "unknown session", header: "Bearer desi_session_nope", reason: ReasonInvalidCredential},
		{name: "unknown key", header: "Bearer desi_live_abcdefghijkl", reason: ReasonInvalidCredential},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Authenticate(f.ctx, tc.header)
			requireReason(t, err, tc.reason)
		})
	}
	assert.Equal(t, 2, f.metrics.failures[string(ReasonMissingHeader)])
}

func TestAuthenticateSessionSlidesExpiry(t *testing.T) {
	f := newFixture(t)
	tenant, _ := f.createTenant(t, "acme")
	user := f.activeUser(t, tenant, "ada@example.com")
	login := f.login(t, tenant, "ada@example.com")

	f.clock.Advance(6 * 24 * time.Hour)
	auth, err := f.auth.Authenticate(f.ctx, "Bearer "+login.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, AuthTypeSession, auth.AuthType)
	assert.Equal(t, user.ID, auth.User.ID)
	assert.Equal(t, tenant.ID, auth.Tenant.ID)
	require.NotNil(t, auth.Session)
	assert.True(t, auth.Session.ExpiresAt.Equal(f.clock.Now().Add(DefaultSessionTTL)))

	// The original window has passed, but the extension keeps it alive.
	f.clock.Advance(2 * 24 * time.Hour)
	_, err = f.auth.Authenticate(f.ctx, "Bearer "+login.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, f.metrics.successes[string(AuthTypeSession)])
}

func TestAuthenticateSessionExpiresAtBoundary(t *testing.T) {
	f := newFixture(t)
	tenant, _ := f.createTenant(t, "acme")
	f.activeUser(t, tenant, "ada@example.com")
	login := f.login(t, tenant, "ada@example.com")

	f.clock.Advance(DefaultSessionTTL)
	_, err := f.auth.Authenticate(f.ctx, "Bearer "+login.Session.Token)
	requireReason(t, err, ReasonInvalidCredential)
}

func TestAuthenticateOrphanedSession(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	user := f.activeUser(t, tenant, "ada@example.com")
	login := f.login(t, tenant, "ada@example.com")

	deleted, err := store.DeleteUser(f.ctx, user.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = f.auth.Authenticate(f.ctx, "Bearer "+login.Session.Token)
	requireReason(t, err, ReasonOrphanedSession)
}

func TestAuthenticateSessionOfSuspendedTenant(t *testing.T) {
	f := newFixture(t)
	tenant, _ := f.createTenant(t, "acme")
	f.activeUser(t, tenant, "ada@example.com")
	login := f.login(t, tenant, "ada@example.com")

	_, err := f.tenants.SuspendTenant(f.ctx, tenant.ID)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(f.ctx, "Bearer "+login.Session.Token)
	requireReason(t, err, ReasonInvalidCredential)
}

func TestAuthenticateAPIKey(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	user := f.activeUser(t, tenant, "ada@example.com")

	issued, err := f.keys.IssueUserKey(f.ctx, tenant, store, IssueKeyInput{UserID: user.ID, Name: "ci"})
	require.NoError(t, err)

	auth, err := f.auth.Authenticate(f.ctx, "Bearer "+issued.Key)
	require.NoError(t, err)
	assert.Equal(t, AuthTypeAPIKey, auth.AuthType)
	assert.Equal(t, user.ID, auth.User.ID)
	require.NotNil(t, auth.APIKey)
	assert.Equal(t, issued.APIKey.ID, auth.APIKey.ID)

	keys, err := store.ListAPIKeys(f.ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	mutated := []byte(issued.Key)
	last := len(mutated) - 1
	if mutated[last] == 'A' {
		mutated[last] = 'B'
	} else {
		mutated[last] = 'A'
	}
	_, err = f.auth.Authenticate(f.ctx, "Bearer "+string(mutated))
	requireReason(t, err, ReasonInvalidCredential)
}

func TestAuthenticateAPIKeyOfSuspendedTenant(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	user := f.activeUser(t, tenant, "ada@example.com")
	issued, err := f.keys.IssueUserKey(f.ctx, tenant, store, IssueKeyInput{UserID: user.ID, Name: "ci"})
	require.NoError(t, err)

	_, err = f.tenants.SuspendTenant(f.ctx, tenant.ID)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(f.ctx, "Bearer "+issued.Key)
	requireReason(t, err, ReasonTenantInactive)
}

func TestAuthenticateAPIKeyOfDeletedUser(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	user := f.activeUser(t, tenant, "ada@example.com")
	issued, err := f.keys.IssueUserKey(f.ctx, tenant, store, IssueKeyInput{UserID: user.ID, Name: "ci"})
	require.NoError(t, err)

	_, err = store.DeleteUser(f.ctx, user.ID)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(f.ctx, "Bearer "+issued.Key)
	requireReason(t, err, ReasonUserNotFound)
}

func TestAuthenticateExpiredAPIKey(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	user := f.activeUser(t, tenant, "ada@example.com")
	expires := f.clock.Now().Add(time.Hour)
	issued, err := f.keys.IssueUserKey(f.ctx, tenant, store, IssueKeyInput{UserID: user.ID, Name: "ci", ExpiresAt: &expires})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.auth.Authenticate(f.ctx, "Bearer "+issued.Key)
	requireReason(t, err, ReasonInvalidCredential)
}

func TestAuthenticateAdmin(t *testing.T) {
	f := newFixture(t)
	admin, err := f.admins.EnsureSuperAdmin(f.ctx, "root@example.com", "Root")
	require.NoError(t, err)
	issue, err := f.admins.IssueAdminKey(f.ctx, admin.ID, false)
	require.NoError(t, err)

	got, err := f.auth.AuthenticateAdmin(f.ctx, issue.FullKey)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.AdminID)

	_, err = f.auth.AuthenticateAdmin(f.ctx, "")
	requireReason(t, err, ReasonMissingHeader)
	_, err = f.auth.AuthenticateAdmin(f.ctx, "desi_admin_0000000000000000")
	requireReason(t, err, ReasonInvalidCredential)

	// A tenant credential never authenticates as a super admin.
	_, err = f.auth.AuthenticateAdmin(f.ctx, "desi_session_abc")
	requireReason(t, err, ReasonInvalidCredential)
}

func TestAuthErrorMatchesUnauthorized(t *testing.T) {
	err := error(&AuthError{Reason: ReasonTenantInactive})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.NotErrorIs(t, err, domain.ErrForbidden)
	assert.Contains(t, err.Error(), "tenant_inactive")
}

func TestAuthContextHasScope(t *testing.T) {
	session := &AuthContext{AuthType: AuthTypeSession, Session: &domain.Session{}}
	assert.True(t, session.HasScope(domain.ScopeAdmin))

	key := &AuthContext{AuthType: AuthTypeAPIKey, APIKey: &domain.APIKey{Scopes: []domain.Scope{domain.ScopeRead}}}
	assert.True(t, key.HasScope(domain.ScopeRead))
	assert.False(t, key.HasScope(domain.ScopeWrite))
}
