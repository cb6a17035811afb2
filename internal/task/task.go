// Package task implements the cooperative scheduler and native-task
// trampoline, ported from the original emCore task/taskmaster.hpp's
// taskmaster and task/rtos_scheduler.hpp's rtos_scheduler.
package task

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/platform"
	"github.com/firmcore/runtime/internal/watchdog"
)

// Priority mirrors emCore::priority.
type Priority uint8

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// State mirrors task_state.
type State uint8

const (
	StateIdle State = iota
	StateReady
	StateRunning
	StateSuspended
	StateCompleted
)

// InvalidTaskID mirrors invalid_task_id.
const InvalidTaskID uint16 = 0xFFFF

// Func is a task body, mirroring task_config::task_function_ptr.
type Func func(params interface{})

// Statistics mirrors task_statistics.
type Statistics struct {
	MinExecutionUS   uint64
	MaxExecutionUS   uint64
	AvgExecutionUS   uint64
	MissedDeadlines  uint32
	TotalExecutionUS uint64
}

// Config mirrors task_config: the declarative inputs to CreateTask/
// CreateNativeTask.
type Config struct {
	Name         string
	Function     Func
	Parameters   interface{}
	Priority     Priority
	PeriodMS     uint64
	DeadlineMS   uint64
	StackSize    uint32
	CreateNative bool
	Enabled      bool
}

// TCB mirrors task_control_block.
type TCB struct {
	ID             uint16
	Name           string
	Function       Func
	Parameters     interface{}
	Priority       Priority
	State          State
	CreatedTimeUS  uint64
	LastRunTimeUS  uint64
	NextRunTimeUS  uint64
	PeriodMS       uint64
	ExecutionUS    uint64
	DeadlineMS     uint64
	RunCount       uint32
	Stats          Statistics
	NativeHandle   platform.TaskHandle
	StackSize      uint32
	IsNative       bool
	cancel         context.CancelFunc
}

// Manager is the cooperative/native task scheduler, ported from
// taskmaster. Native tasks run as goroutines launched through an
// errgroup.Group so a fatal native-task error propagates to Wait
// instead of being silently dropped (the teacher's
// UnifiedSupervisor.wg sync.WaitGroup upgraded to errgroup for that
// reason), bounded by a semaphore.Weighted capping concurrent native
// executions at maxTasks.
type Manager struct {
	mu sync.Mutex

	platform platform.Platform
	watchdog *watchdog.Watchdog
	log      *platform.Logger

	tasks       []*TCB
	nextTaskID  uint16
	initialized bool
	tasksReady  bool

	schedulerStartUS     uint64
	totalContextSwitches uint32
	totalIdleUS          uint64
	maxTasks             uint32

	group *errgroup.Group
	gctx  context.Context
	sem   *semaphore.Weighted
}

// New constructs a Manager bound to p for time/native-task primitives
// and wd for trampoline watchdog feeds.
func New(p platform.Platform, wd *watchdog.Watchdog, maxTasks uint32) *Manager {
	return &Manager{
		platform: p,
		watchdog: wd,
		log:      p.Logger().With("task_manager"),
		maxTasks: maxTasks,
		sem:      semaphore.NewWeighted(int64(maxTasks)),
	}
}

// Initialize resets scheduler state, rejecting a second call while
// already initialized.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return corerr.New("task.Manager.Initialize", corerr.AlreadyExists)
	}
	m.tasks = nil
	m.nextTaskID = 0
	m.schedulerStartUS = m.platform.NowMicros()
	m.totalContextSwitches = 0
	m.totalIdleUS = 0
	m.initialized = true

	group, gctx := errgroup.WithContext(ctx)
	m.group = group
	m.gctx = gctx
	return nil
}

func (m *Manager) findTaskLocked(taskID uint16) *TCB {
	idx := int(taskID)
	if idx < 0 || idx >= len(m.tasks) {
		return nil
	}
	t := m.tasks[idx]
	if t == nil || t.ID != taskID {
		return nil
	}
	return t
}

// CreateTask registers a cooperative task run from Manager.Run,
// mirroring taskmaster::create_task.
func (m *Manager) CreateTask(cfg Config) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return InvalidTaskID, corerr.New("task.Manager.CreateTask", corerr.NotInitialized)
	}
	if uint32(len(m.tasks)) >= m.maxTasks {
		return InvalidTaskID, corerr.New("task.Manager.CreateTask", corerr.OutOfMemory)
	}

	id := m.nextTaskID
	m.nextTaskID++
	now := m.platform.NowMicros()
	tcb := &TCB{
		ID:            id,
		Name:          cfg.Name,
		Function:      cfg.Function,
		Parameters:    cfg.Parameters,
		Priority:      cfg.Priority,
		State:         StateReady,
		CreatedTimeUS: now,
		NextRunTimeUS: now,
		PeriodMS:      cfg.PeriodMS,
		DeadlineMS:    cfg.DeadlineMS,
	}
	m.tasks = append(m.tasks, tcb)
	return id, nil
}

// CreateNativeTask registers a task executed on its own goroutine
// through the native-task trampoline, mirroring
// taskmaster::create_native_task.
func (m *Manager) CreateNativeTask(cfg Config) (uint16, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return InvalidTaskID, corerr.New("task.Manager.CreateNativeTask", corerr.NotInitialized)
	}
	if uint32(len(m.tasks)) >= m.maxTasks {
		m.mu.Unlock()
		return InvalidTaskID, corerr.New("task.Manager.CreateNativeTask", corerr.OutOfMemory)
	}

	id := m.nextTaskID
	m.nextTaskID++
	now := m.platform.NowMicros()
	tcb := &TCB{
		ID:            id,
		Name:          cfg.Name,
		Function:      cfg.Function,
		Parameters:    cfg.Parameters,
		Priority:      cfg.Priority,
		State:         StateReady,
		CreatedTimeUS: now,
		PeriodMS:      cfg.PeriodMS,
		DeadlineMS:    cfg.DeadlineMS,
		StackSize:     cfg.StackSize,
		IsNative:      true,
	}
	m.tasks = append(m.tasks, tcb)
	group := m.group
	m.mu.Unlock()

	if group == nil {
		return InvalidTaskID, corerr.New("task.Manager.CreateNativeTask", corerr.NotInitialized)
	}

	group.Go(func() error {
		if err := m.sem.Acquire(m.gctx, 1); err != nil {
			return nil
		}
		defer m.sem.Release(1)
		m.nativeTaskTrampoline(tcb)
		return nil
	})

	return id, nil
}

// CreateAllTasks builds every enabled entry of configs, creating
// native or cooperative tasks per Config.CreateNative, mirroring
// taskmaster::create_all_tasks.
func (m *Manager) CreateAllTasks(configs []Config) error {
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		var err error
		if cfg.CreateNative {
			_, err = m.CreateNativeTask(cfg)
		} else {
			_, err = m.CreateTask(cfg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StartTask transitions a suspended task back to ready.
func (m *Manager) StartTask(taskID uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findTaskLocked(taskID)
	if t == nil {
		return corerr.New("task.Manager.StartTask", corerr.NotFound)
	}
	if t.State != StateSuspended {
		return corerr.New("task.Manager.StartTask", corerr.InvalidParameter)
	}
	t.State = StateReady
	return nil
}

// SuspendTask marks a task suspended.
func (m *Manager) SuspendTask(taskID uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findTaskLocked(taskID)
	if t == nil {
		return corerr.New("task.Manager.SuspendTask", corerr.NotFound)
	}
	t.State = StateSuspended
	return nil
}

// ResumeTask is StartTask's alias, mirroring resume_task.
func (m *Manager) ResumeTask(taskID uint16) error { return m.StartTask(taskID) }

// SetTaskPriority updates taskID's scheduling priority.
func (m *Manager) SetTaskPriority(taskID uint16, p Priority) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findTaskLocked(taskID)
	if t == nil {
		return corerr.New("task.Manager.SetTaskPriority", corerr.NotFound)
	}
	t.Priority = p
	return nil
}

// SetTaskPeriod updates taskID's period.
func (m *Manager) SetTaskPeriod(taskID uint16, periodMS uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findTaskLocked(taskID)
	if t == nil {
		return corerr.New("task.Manager.SetTaskPeriod", corerr.NotFound)
	}
	t.PeriodMS = periodMS
	return nil
}

// SetTaskDeadline updates taskID's soft execution deadline.
func (m *Manager) SetTaskDeadline(taskID uint16, deadlineMS uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findTaskLocked(taskID)
	if t == nil {
		return corerr.New("task.Manager.SetTaskDeadline", corerr.NotFound)
	}
	t.DeadlineMS = deadlineMS
	return nil
}

// ResetTaskStatistics zeroes taskID's run statistics.
func (m *Manager) ResetTaskStatistics(taskID uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findTaskLocked(taskID)
	if t == nil {
		return corerr.New("task.Manager.ResetTaskStatistics", corerr.NotFound)
	}
	t.Stats = Statistics{}
	t.RunCount = 0
	return nil
}

// GetTaskInfo returns a copy of taskID's control block.
func (m *Manager) GetTaskInfo(taskID uint16) (TCB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findTaskLocked(taskID)
	if t == nil {
		return TCB{}, corerr.New("task.Manager.GetTaskInfo", corerr.NotFound)
	}
	return *t, nil
}

// GetTaskByName finds the first task whose name matches.
func (m *Manager) GetTaskByName(name string) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Name == name {
			return t.ID, nil
		}
	}
	return InvalidTaskID, corerr.New("task.Manager.GetTaskByName", corerr.NotFound)
}

// TaskCount reports the number of registered tasks (native + cooperative).
func (m *Manager) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// StartAllTasks signals native-task trampolines blocked in
// WaitUntilReady to proceed, mirroring start_all_tasks/tasks_ready_.
func (m *Manager) StartAllTasks() {
	m.mu.Lock()
	m.tasksReady = true
	m.mu.Unlock()
}

// WaitUntilReady blocks (via repeated short sleeps, mirroring the
// original's polling wait_until_ready) until StartAllTasks has been
// called.
func (m *Manager) WaitUntilReady() {
	for {
		m.mu.Lock()
		ready := m.tasksReady
		m.mu.Unlock()
		if ready {
			return
		}
		m.platform.SleepMs(10)
	}
}

// Run executes one cooperative scheduling pass: selects the
// highest-priority ready task whose period has elapsed, runs it, and
// updates its statistics — exactly taskmaster::run's algorithm.
func (m *Manager) Run() {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}
	now := m.platform.NowMicros()

	var toRun *TCB
	for _, t := range m.tasks {
		if t.IsNative || t.State != StateReady {
			continue
		}
		if t.PeriodMS > 0 && now < t.NextRunTimeUS {
			continue
		}
		if toRun == nil || t.Priority > toRun.Priority {
			toRun = t
		}
	}
	m.mu.Unlock()

	if toRun == nil || toRun.Function == nil {
		m.platform.SleepMs(1)
		return
	}

	m.mu.Lock()
	toRun.State = StateRunning
	toRun.LastRunTimeUS = now
	m.mu.Unlock()

	start := m.platform.NowMicros()
	toRun.Function(toRun.Parameters)
	end := m.platform.NowMicros()

	m.mu.Lock()
	exec := end - start
	toRun.ExecutionUS = exec
	toRun.RunCount++
	m.totalContextSwitches++

	if toRun.Stats.MinExecutionUS == 0 || exec < toRun.Stats.MinExecutionUS {
		toRun.Stats.MinExecutionUS = exec
	}
	if exec > toRun.Stats.MaxExecutionUS {
		toRun.Stats.MaxExecutionUS = exec
	}
	toRun.Stats.TotalExecutionUS += exec
	toRun.Stats.AvgExecutionUS = toRun.Stats.TotalExecutionUS / uint64(toRun.RunCount)

	if toRun.DeadlineMS > 0 && exec > toRun.DeadlineMS*1000 {
		toRun.Stats.MissedDeadlines++
	}

	if toRun.PeriodMS > 0 {
		toRun.NextRunTimeUS = now + toRun.PeriodMS*1000
		toRun.State = StateReady
	} else {
		toRun.State = StateCompleted
	}
	m.mu.Unlock()
}

// Wait blocks until every native task launched via CreateNativeTask
// has returned (they only do on ctx cancellation or a fatal error),
// returning the first non-nil error encountered.
func (m *Manager) Wait() error {
	m.mu.Lock()
	group := m.group
	m.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// nativeTaskTrampoline mirrors taskmaster::native_task_trampoline:
// wait for StartAllTasks, then loop (if periodic) feeding the
// watchdog, timing execution, and adaptively yielding each iteration;
// exits on context cancellation.
func (m *Manager) nativeTaskTrampoline(tcb *TCB) {
	m.WaitUntilReady()
	if tcb.Function == nil {
		return
	}
	params := tcb.Parameters
	if params == nil {
		params = tcb
	}

	if tcb.PeriodMS > 0 {
		for {
			select {
			case <-m.gctx.Done():
				return
			default:
			}
			start := m.platform.NowMicros()
			tcb.Function(params)
			end := m.platform.NowMicros()
			tcb.ExecutionUS = end - start
			if m.watchdog != nil {
				m.watchdog.Feed(tcb.ID)
			}
			m.platform.Yield()
			m.platform.SleepMs(uint32(tcb.PeriodMS))
		}
	}

	start := m.platform.NowMicros()
	tcb.Function(params)
	tcb.ExecutionUS = m.platform.NowMicros() - start
	if m.watchdog != nil {
		m.watchdog.Feed(tcb.ID)
	}
}
