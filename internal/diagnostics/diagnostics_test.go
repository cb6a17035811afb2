package diagnostics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmcore/runtime/internal/broker"
	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/platform"
	"github.com/firmcore/runtime/internal/watchdog"
)

func TestProfiler_RecordExecutionTimeTracksMinMaxAvg(t *testing.T) {
	p := NewProfiler()
	require.NoError(t, p.RegisterTask(1))
	p.Enable(true)

	p.RecordExecutionTime(1, 100)
	p.RecordExecutionTime(1, 300)

	m, ok := p.TaskMetricsFor(1)
	require.True(t, ok)
	assert.Equal(t, uint64(100), m.MinExecutionUS)
	assert.Equal(t, uint64(300), m.MaxExecutionUS)
	assert.Equal(t, uint64(200), m.AvgExecutionUS)
	assert.Equal(t, uint32(2), m.ExecutionCount)
}

func TestProfiler_DisabledSkipsRecording(t *testing.T) {
	p := NewProfiler()
	require.NoError(t, p.RegisterTask(1))

	p.RecordExecutionTime(1, 500)

	m, ok := p.TaskMetricsFor(1)
	require.True(t, ok)
	assert.Equal(t, uint32(0), m.ExecutionCount)
}

func TestProfiler_SampleReturnsPositiveGoroutineCount(t *testing.T) {
	p := NewProfiler()
	sample := p.Sample()
	assert.Greater(t, sample.Goroutines, 0)
}

func TestProfiler_ResetStatisticsClearsCounters(t *testing.T) {
	p := NewProfiler()
	require.NoError(t, p.RegisterTask(1))
	p.Enable(true)
	p.RecordExecutionTime(1, 100)
	p.RecordError(1)

	p.ResetStatistics()

	m, ok := p.TaskMetricsFor(1)
	require.True(t, ok)
	assert.Equal(t, TaskMetrics{}, m)
}

func newHealthMonitor(t *testing.T) (*HealthMonitor, *broker.Broker, *watchdog.Watchdog) {
	t.Helper()
	b := config.DefaultBudget()
	p := platform.NewDefault(nil)
	br := broker.New(b, p, p)
	wd := watchdog.New(p, p, b.MaxTasks)
	prof := NewProfiler()
	hm := NewHealthMonitor(prof, br, wd)
	hm.Enable(true)
	return hm, br, wd
}

func TestHealthMonitor_CheckAllReportsHealthyWithNoIssues(t *testing.T) {
	hm, _, _ := newHealthMonitor(t)
	snap, err := hm.CheckAll()
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, snap.Overall)
}

func TestHealthMonitor_CheckAllFlagsUnresponsiveWatchedTask(t *testing.T) {
	hm, _, wd := newHealthMonitor(t)
	require.NoError(t, wd.RegisterTask(0, 0, watchdog.ActionNone))
	hm.WatchTask(0)

	_, err := hm.CheckAll()
	assert.Error(t, err)
}

func TestHealthMonitor_RegisterMetricsIsIdempotent(t *testing.T) {
	hm, _, _ := newHealthMonitor(t)
	reg := prometheus.NewRegistry()
	require.NoError(t, hm.RegisterMetrics(reg))
	require.NoError(t, hm.RegisterMetrics(reg))
}

func TestHealthMonitor_DisabledReturnsLastSnapshot(t *testing.T) {
	hm, _, _ := newHealthMonitor(t)
	first, err := hm.CheckAll()
	require.NoError(t, err)

	hm.Enable(false)
	second, err := hm.CheckAll()
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}
