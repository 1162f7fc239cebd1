package usecase

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminKeyPattern = regexp.MustCompile(`^desi_admin_[0-9a-f]{32}$`)

func TestIssueAdminKeyLifecycle(t *testing.T) {
	f := newFixture(t)
	admin, err := f.admins.EnsureSuperAdmin(f.ctx, "Root@Example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", admin.Email)

	first, err := f.admins.IssueAdminKey(f.ctx, admin.ID, false)
	require.NoError(t, err)
	require.True(t, first.Created)
	assert.Regexp(t, adminKeyPattern, first.FullKey)
	assert.Equal(t, first.FullKey[:len("desi_admin_")+4], first.Key.KeyPrefix)
	assert.ElementsMatch(t, domain.AdminKeyScopes, first.Key.Scopes)

	info, err := os.Stat(f.keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	content, err := os.ReadFile(f.keyFile)
	require.NoError(t, err)
	assert.Equal(t, first.FullKey, strings.TrimSpace(string(content)))

	kept, err := f.admins.IssueAdminKey(f.ctx, admin.ID, false)
	require.NoError(t, err)
	assert.False(t, kept.Created)
	assert.Empty(t, kept.FullKey)
	assert.Equal(t, first.Key.ID, kept.Key.ID)

	rotated, err := f.admins.IssueAdminKey(f.ctx, admin.ID, true)
	require.NoError(t, err)
	require.True(t, rotated.Created)
	assert.NotEqual(t, first.FullKey, rotated.FullKey)

	old, err := f.admins.VerifyAdminKey(f.ctx, first.FullKey)
	require.NoError(t, err)
	assert.Nil(t, old)

	current, err := f.admins.VerifyAdminKey(f.ctx, rotated.FullKey)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.True(t, current.HasScope(domain.ScopeExecute))
}

func TestIssueAdminKeyUnknownAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.admins.IssueAdminKey(f.ctx, "missing", true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
