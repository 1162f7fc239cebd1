package engine

import (
	"context"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"github.com/atvirokodosprendimai/desiauth/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReusesClientPerTenant(t *testing.T) {
	reg := NewRegistry("http://engine.invalid", time.Second, nil)
	a1, err := reg.ForTenant("a")
	require.NoError(t, err)
	a2, err := reg.ForTenant("a")
	require.NoError(t, err)
	b, err := reg.ForTenant("b")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.IsType(t, &Client{}, a1)

	reg.Forget("a")
	a3, err := reg.ForTenant("a")
	require.NoError(t, err)
	assert.NotSame(t, a1, a3)

	require.NoError(t, reg.Close())
	_, err = reg.ForTenant("a")
	require.Error(t, err)
}

func TestMemoryEngineLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry("", 0, nil)
	eng, err := reg.ForTenant("a")
	require.NoError(t, err)

	created, err := eng.Create(ctx, "goal")
	require.NoError(t, err)
	require.NotEmpty(t, created.DAGID)

	exec, err := eng.Execute(ctx, created.DAGID, ports.ExecuteOptions{Async: true})
	require.NoError(t, err)
	assert.Equal(t, "running", exec.Status)

	resumed, err := eng.Resume(ctx, exec.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", resumed.Status)

	execs, err := eng.List(ctx, ports.ListFilter{Kind: string(domain.ResourceExecution)})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, exec.ExecutionID, execs[0].ID)

	_, err = eng.Get(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = eng.Execute(ctx, "nope", ports.ExecuteOptions{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
