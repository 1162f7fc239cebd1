package usecase

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterVerifyLoginAuthenticate(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")

	user, err := f.accounts.Register(f.ctx, "acme", RegisterInput{Email: " Ada@Example.com ", Password: "password-123", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, domain.RoleMember, user.Role)
	assert.False(t, user.EmailVerified)

	_, err = f.accounts.Login(f.ctx, "acme", LoginInput{Email: "ada@example.com", Password: "password-123"})
	require.ErrorIs(t, err, domain.ErrEmailNotVerified)

	notice := f.notifier.last(t, domain.NoticeEmailVerification)
	assert.Equal(t, tenant.Slug, notice.TenantSlug)
	_, err = f.accounts.VerifyEmail(f.ctx, "acme", notice.Token)
	require.NoError(t, err)
	_, err = f.accounts.VerifyEmail(f.ctx, "acme", notice.Token)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.accounts.Login(f.ctx, "acme", LoginInput{Email: "ada@example.com", Password: "wrong-password"})
	require.ErrorIs(t, err, domain.ErrInvalidCredential)

	res, err := f.accounts.Login(f.ctx, "acme", LoginInput{Email: "ada@example.com", Password: "password-123", IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	auth, err := f.auth.Authenticate(f.ctx, "Bearer "+res.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, auth.User.ID)

	logs, err := f.accounts.AuthLogs(f.ctx, store, "ada@example.com", 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, domain.LoginSuccess, logs[0].Event)
	assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
}

// countComparisons counts bcrypt comparisons until the test ends.
func countComparisons(t *testing.T) *atomic.Int32 {
	t.Helper()
	var n atomic.Int32
	orig := compareHash
	compareHash = func(hash, secret []byte) error {
		n.Add(1)
		return orig(hash, secret)
	}
	t.Cleanup(func() { compareHash = orig })
	return &n
}

func TestLoginComparesOnceForEveryFailure(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	f.activeUser(t, tenant, "ada@example.com")
	_, _, err := f.accounts.InviteUser(f.ctx, tenant, store, InviteInput{Email: "invited@example.com"})
	require.NoError(t, err)

	cases := map[string]LoginInput{
		"wrong password": {Email: "ada@example.com", Password: "wrong-password"},
		"unknown email":  {Email: "nobody@example.com", Password: "password-123"},
		"no password":    {Email: "invited@example.com", Password: "password-123"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			n := countComparisons(t)
			_, err := f.accounts.Login(f.ctx, "acme", in)
			require.ErrorIs(t, err, domain.ErrInvalidCredential)
			assert.Equal(t, int32(1), n.Load())
		})
	}
}

func TestRegisterRejectsDuplicatesAndUnknownTenant(t *testing.T) {
	f := newFixture(t)
	f.createTenant(t, "acme")

	_, err := f.accounts.Register(f.ctx, "acme", RegisterInput{Email: "a@example.com", Password: "password-123"})
	require.NoError(t, err)
	_, err = f.accounts.Register(f.ctx, "acme", RegisterInput{Email: "A@example.com", Password: "password-123"})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.accounts.Register(f.ctx, "nope", RegisterInput{Email: "a@example.com", Password: "password-123"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.accounts.Register(f.ctx, "acme", RegisterInput{Email: "b@example.com", Password: "short"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegisterEnforcesUserQuota(t *testing.T) {
	f := newFixture(t)
	quotas := domain.Quotas{MaxUsers: 1}
	_, err := f.tenants.CreateTenant(f.ctx, CreateTenantInput{Name: "Tiny", Slug: "tiny", Quotas: &quotas})
	require.NoError(t, err)

	_, err = f.accounts.Register(f.ctx, "tiny", RegisterInput{Email: "a@example.com", Password: "password-123"})
	require.NoError(t, err)
	_, err = f.accounts.Register(f.ctx, "tiny", RegisterInput{Email: "b@example.com", Password: "password-123"})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestInviteAndAccept(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")

	invited, token, err := f.accounts.InviteUser(f.ctx, tenant, store, InviteInput{Email: "boss@example.com", Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, token, f.notifier.last(t, domain.NoticeInvite).Token)

	_, err = f.accounts.Login(f.ctx, "acme", LoginInput{Email: "boss@example.com", Password: "password-123"})
	require.ErrorIs(t, err, domain.ErrInvalidCredential)

	res, err := f.accounts.AcceptInvite(f.ctx, "acme", token, "password-123", "The Boss")
	require.NoError(t, err)
	assert.Equal(t, invited.ID, res.User.ID)
	assert.True(t, res.User.EmailVerified)
	assert.Equal(t, "The Boss", res.User.Name)

	auth, err := f.auth.Authenticate(f.ctx, "Bearer "+res.Session.Token)
	require.NoError(t, err)
	assert.True(t, auth.IsAdmin())

	_, err = f.accounts.AcceptInvite(f.ctx, "acme", token, "password-123", "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInviteExpires(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	_, token, err := f.accounts.InviteUser(f.ctx, tenant, store, InviteInput{Email: "late@example.com"})
	require.NoError(t, err)

	f.clock.Advance(DefaultInviteTTL)
	_, err = f.accounts.AcceptInvite(f.ctx, "acme", token, "password-123", "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPasswordResetRevokesSessions(t *testing.T) {
	f := newFixture(t)
	tenant, _ := f.createTenant(t, "acme")
	f.activeUser(t, tenant, "ada@example.com")
	login := f.login(t, tenant, "ada@example.com")

	require.NoError(t, f.accounts.RequestPasswordReset(f.ctx, "acme", "nobody@example.com"))
	require.NoError(t, f.accounts.RequestPasswordReset(f.ctx, "acme", "ada@example.com"))
	notice := f.notifier.last(t, domain.NoticePasswordReset)

	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.accounts.ConfirmPasswordReset(f.ctx, "acme", notice.Token, "new-password-456"))

	_, err := f.auth.Authenticate(f.ctx, "Bearer "+login.Session.Token)
	requireReason(t, err, ReasonInvalidCredential)

	_, err = f.accounts.Login(f.ctx, "acme", LoginInput{Email: "ada@example.com", Password: "password-123"})
	require.ErrorIs(t, err, domain.ErrInvalidCredential)
	_, err = f.accounts.Login(f.ctx, "acme", LoginInput{Email: "ada@example.com", Password: "new-password-456"})
	require.NoError(t, err)

	require.ErrorIs(t, f.accounts.ConfirmPasswordReset(f.ctx, "acme", notice.Token, "another-password"), domain.ErrInvalidInput)
}

func TestDeleteUserRemovesCredentials(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	admin := f.activeUser(t, tenant, "admin@example.com")
	victim := f.activeUser(t, tenant, "victim@example.com")
	login := f.login(t, tenant, "victim@example.com")
	issued, err := f.keys.IssueUserKey(f.ctx, tenant, store, IssueKeyInput{UserID: victim.ID, Name: "ci"})
	require.NoError(t, err)

	_, err = f.accounts.DeleteUser(f.ctx, store, admin.ID, admin.ID)
	require.ErrorIs(t, err, domain.ErrSelfDelete)

	ok, err := f.accounts.DeleteUser(f.ctx, store, admin.ID, victim.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.auth.Authenticate(f.ctx, "Bearer "+login.Session.Token)
	requireReason(t, err, ReasonInvalidCredential)
	_, err = f.auth.Authenticate(f.ctx, "Bearer "+issued.Key)
	requireReason(t, err, ReasonInvalidCredential)

	ok, err = f.accounts.DeleteUser(f.ctx, store, admin.ID, victim.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t)
	tenant, store := f.createTenant(t, "acme")
	user := f.activeUser(t, tenant, "ada@example.com")

	updated, err := f.accounts.ChangeRole(f.ctx, store, user.ID, domain.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, updated.Role)

	_, err = f.accounts.ChangeRole(f.ctx, store, user.ID, "owner")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.accounts.ChangeRole(f.ctx, store, "missing", domain.RoleAdmin)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
