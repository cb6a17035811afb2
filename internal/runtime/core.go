// Package runtime is the composition root wiring the arena, broker,
// task manager, watchdog, event bus, and diagnostics into a single
// bootable Core, ported from the teacher's kernel.Kernel boot/inject/
// shutdown state machine (kernel/lifecycle.go).
package runtime

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/firmcore/runtime/internal/arena"
	"github.com/firmcore/runtime/internal/broker"
	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/diagnostics"
	"github.com/firmcore/runtime/internal/eventbus"
	"github.com/firmcore/runtime/internal/platform"
	"github.com/firmcore/runtime/internal/task"
	"github.com/firmcore/runtime/internal/watchdog"
)

// State mirrors the teacher's KernelState enum, generalized to this
// port's subsystem set.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateRunning
	StateStopping
	StateStopped
	StatePanic
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StatePanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Core is the single object a program built on this module
// constructs: it owns every subsystem and drives the boot/run/
// shutdown lifecycle, mirroring kernel.Kernel.
type Core struct {
	state atomic.Int32

	budget   config.Budget
	platform platform.Platform
	log      *platform.Logger

	Arena     *arena.Arena
	Broker    *broker.Broker
	Tasks     *task.Manager
	Watchdog  *watchdog.Watchdog
	Events    *eventbus.Bus
	Profiler  *diagnostics.Profiler
	Health    *diagnostics.HealthMonitor

	cancel      context.CancelFunc
	healthEvery time.Duration
	stopped     chan struct{}
	shutdown    *shutdownRegistry
}

// New derives the arena layout from budget and constructs every
// subsystem in dependency order, mirroring NewKernel's construction
// sequence but performed eagerly rather than deferred to Boot, since
// this port has no SAB-injection handshake to wait on.
func New(budget config.Budget, p platform.Platform) (*Core, error) {
	layout, err := arena.DeriveLayout(budget)
	if err != nil {
		return nil, corerr.Wrap("runtime.New", corerr.OutOfMemory, err)
	}
	a := arena.New(layout)

	br := broker.New(budget, p, p)
	wd := watchdog.New(p, p, budget.MaxTasks)
	tm := task.New(p, wd, budget.MaxTasks)
	bus := eventbus.New(int(budget.MaxEvents), int(budget.MaxEvents))
	prof := diagnostics.NewProfiler()
	health := diagnostics.NewHealthMonitor(prof, br, wd)

	log := p.Logger().With("runtime_core")
	c := &Core{
		budget:      budget,
		platform:    p,
		log:         log,
		Arena:       a,
		Broker:      br,
		Tasks:       tm,
		Watchdog:    wd,
		Events:      bus,
		Profiler:    prof,
		Health:      health,
		healthEvery: 5 * time.Second,
		stopped:     make(chan struct{}),
		shutdown:    newShutdownRegistry(log.With("shutdown")),
	}
	c.state.Store(int32(StateUninitialized))
	c.shutdown.Register(func() error { c.Profiler.Enable(false); return nil })
	c.shutdown.Register(func() error { c.Health.Enable(false); return nil })
	taskCtx, taskCancel := context.WithCancel(context.Background())
	c.shutdown.Register(c.Tasks.Wait)
	c.shutdown.Register(func() error { taskCancel(); return nil })

	if err := c.Tasks.Initialize(taskCtx); err != nil {
		taskCancel()
		return nil, err
	}
	c.state.Store(int32(StateReady))
	return c, nil
}

// State returns the Core's current lifecycle state.
func (c *Core) State() State {
	return State(c.state.Load())
}

func (c *Core) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Start transitions Ready to Running: it releases any native tasks
// blocked in task.Manager.WaitUntilReady, enables the profiler and
// health monitor, and starts the periodic health-check loop. The task
// manager keeps the cancelable context New initialized it with, which
// Shutdown cancels.
func (c *Core) Start(ctx context.Context) error {
	defer c.recoverPanic()
	if !c.transition(StateReady, StateRunning) {
		return corerr.New("runtime.Core.Start", corerr.InvalidParameter)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.Profiler.Enable(true)
	c.Health.Enable(true)
	c.Tasks.StartAllTasks()

	go c.healthLoop(runCtx)

	c.log.Info("core running")
	return nil
}

func (c *Core) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.healthEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Health.CheckAll(); err != nil {
				c.log.Warn("health check reported unresponsive tasks", platform.Err(err))
			}
		}
	}
}

// Shutdown transitions Running to Stopping to Stopped: cancels the
// context native tasks observe, waits (bounded by ctx's deadline) for
// them to exit, and recovers any panic exactly as recoverPanic does —
// logged, never re-raised.
func (c *Core) Shutdown(ctx context.Context) error {
	defer c.recoverPanic()
	if !c.transition(StateRunning, StateStopping) {
		return corerr.New("runtime.Core.Shutdown", corerr.InvalidParameter)
	}

	if c.cancel != nil {
		c.cancel()
	}

	waitErr := c.shutdown.Shutdown(ctx)

	c.state.Store(int32(StateStopped))
	close(c.stopped)
	c.log.Info("core stopped")
	return waitErr
}

// Snapshot reports the current diagnostics.Snapshot without waiting
// for the periodic health loop.
func (c *Core) Snapshot() (diagnostics.Snapshot, error) {
	return c.Health.CheckAll()
}

func (c *Core) recoverPanic() {
	if r := recover(); r != nil {
		c.state.Store(int32(StatePanic))
		c.log.Error("core panic",
			platform.Any("reason", r),
			platform.String("stack", string(debug.Stack())))
	}
}
