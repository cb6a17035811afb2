package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmcore/runtime/internal/platform"
	"github.com/firmcore/runtime/internal/watchdog"
)

func newManager(t *testing.T) (*Manager, *platform.Default) {
	t.Helper()
	p := platform.NewDefault(nil)
	wd := watchdog.New(p, p, 8)
	m := New(p, wd, 8)
	require.NoError(t, m.Initialize(context.Background()))
	return m, p
}

func TestManager_RunSelectsHighestPriorityReadyTask(t *testing.T) {
	m, _ := newManager(t)
	var order []string

	_, err := m.CreateTask(Config{Name: "low", Priority: PriorityLow, Function: func(interface{}) {
		order = append(order, "low")
	}})
	require.NoError(t, err)
	_, err = m.CreateTask(Config{Name: "critical", Priority: PriorityCritical, Function: func(interface{}) {
		order = append(order, "critical")
	}})
	require.NoError(t, err)

	m.Run()
	require.Len(t, order, 1)
	assert.Equal(t, "critical", order[0])

	m.Run()
	require.Len(t, order, 2)
	assert.Equal(t, "low", order[1])
}

func TestManager_PeriodicTaskReschedulesAndCooperativeCompletes(t *testing.T) {
	m, _ := newManager(t)

	periodicID, err := m.CreateTask(Config{Name: "periodic", Priority: PriorityNormal, PeriodMS: 100000, Function: func(interface{}) {}})
	require.NoError(t, err)
	oneShotID, err := m.CreateTask(Config{Name: "oneshot", Priority: PriorityLow, Function: func(interface{}) {}})
	require.NoError(t, err)

	m.Run() // runs the normal-priority periodic task (higher than low)
	info, err := m.GetTaskInfo(periodicID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, info.State)
	assert.Equal(t, uint32(1), info.RunCount)

	// Periodic task's next run is far in the future, so the one-shot
	// task becomes the only ready candidate.
	m.Run()
	info, err = m.GetTaskInfo(oneShotID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, info.State)
}

func TestManager_DeadlineMissIncrementsStatistics(t *testing.T) {
	m, _ := newManager(t)
	id, err := m.CreateTask(Config{
		Name:       "slow",
		Priority:   PriorityNormal,
		DeadlineMS: 0, // set below via SetTaskDeadline to force a miss on a near-zero deadline
		Function: func(interface{}) {
			time.Sleep(2 * time.Millisecond)
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.SetTaskDeadline(id, 1))

	m.Run()

	info, err := m.GetTaskInfo(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.Stats.MissedDeadlines)
}

func TestManager_SuspendedTaskNeverSelected(t *testing.T) {
	m, _ := newManager(t)
	var ran int32
	id, err := m.CreateTask(Config{Name: "t", Priority: PriorityHigh, Function: func(interface{}) {
		atomic.AddInt32(&ran, 1)
	}})
	require.NoError(t, err)
	require.NoError(t, m.SuspendTask(id))

	m.Run()
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))

	require.NoError(t, m.StartTask(id))
	m.Run()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestManager_GetTaskByName(t *testing.T) {
	m, _ := newManager(t)
	id, err := m.CreateTask(Config{Name: "named", Priority: PriorityNormal, Function: func(interface{}) {}})
	require.NoError(t, err)

	found, err := m.GetTaskByName("named")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	_, err = m.GetTaskByName("missing")
	assert.Error(t, err)
}

func TestManager_NativeTaskRunsAfterStartAllTasks(t *testing.T) {
	m, _ := newManager(t)
	done := make(chan struct{})
	_, err := m.CreateNativeTask(Config{
		Name:         "native",
		CreateNative: true,
		Function: func(interface{}) {
			close(done)
		},
	})
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("native task ran before StartAllTasks")
	case <-time.After(20 * time.Millisecond):
	}

	m.StartAllTasks()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("native task never ran")
	}
}

func TestManager_CreateTaskRejectsOverCapacity(t *testing.T) {
	p := platform.NewDefault(nil)
	wd := watchdog.New(p, p, 1)
	m := New(p, wd, 1)
	require.NoError(t, m.Initialize(context.Background()))

	_, err := m.CreateTask(Config{Name: "a", Function: func(interface{}) {}})
	require.NoError(t, err)
	_, err = m.CreateTask(Config{Name: "b", Function: func(interface{}) {}})
	assert.Error(t, err)
}

func TestManager_ResetTaskStatistics(t *testing.T) {
	m, _ := newManager(t)
	id, err := m.CreateTask(Config{Name: "t", Priority: PriorityNormal, Function: func(interface{}) {}})
	require.NoError(t, err)
	m.Run()

	info, err := m.GetTaskInfo(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.RunCount)

	require.NoError(t, m.ResetTaskStatistics(id))
	info, err = m.GetTaskInfo(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), info.RunCount)
	assert.Equal(t, Statistics{}, info.Stats)
}
