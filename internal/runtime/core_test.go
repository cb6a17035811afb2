package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/diagnostics"
	"github.com/firmcore/runtime/internal/platform"
)

func newCore(t *testing.T) *Core {
	t.Helper()
	p := platform.NewDefault(nil)
	c, err := New(config.DefaultBudget(), p)
	require.NoError(t, err)
	return c
}

func TestCore_NewStartsInReadyState(t *testing.T) {
	c := newCore(t)
	assert.Equal(t, StateReady, c.State())
}

func TestCore_StartTransitionsToRunning(t *testing.T) {
	c := newCore(t)
	c.healthEvery = time.Hour
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateRunning, c.State())
}

func TestCore_StartTwiceFails(t *testing.T) {
	c := newCore(t)
	c.healthEvery = time.Hour
	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()))
}

func TestCore_ShutdownTransitionsToStopped(t *testing.T) {
	c := newCore(t)
	c.healthEvery = time.Hour
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, c.State())
}

func TestCore_ShutdownBeforeStartFails(t *testing.T) {
	c := newCore(t)
	assert.Error(t, c.Shutdown(context.Background()))
}

func TestCore_SnapshotReflectsBrokerActivity(t *testing.T) {
	c := newCore(t)
	c.healthEvery = time.Hour
	require.NoError(t, c.Start(context.Background()))
	defer c.Shutdown(context.Background())

	h, err := c.platform.Create("probe", 0, func() {})
	require.NoError(t, err)
	require.NoError(t, c.Broker.RegisterTask(0, h))

	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, diagnostics.StatusHealthy, snap.Overall)
	assert.Equal(t, 1, c.Broker.MailboxCount())
}
