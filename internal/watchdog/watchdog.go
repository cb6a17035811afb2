// Package watchdog monitors per-task liveness via feed timestamps and
// triggers pluggable recovery actions on timeout, ported from the
// original emCore task/watchdog.hpp's task_watchdog.
package watchdog

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/platform"
)

// Action mirrors watchdog_action.
type Action uint8

const (
	ActionNone Action = iota
	ActionLogWarning
	ActionResetTask
	ActionSystemReset
)

// RecoveryFunc is invoked for ActionResetTask entries that registered
// one, mirroring recovery_fn.
type RecoveryFunc func(taskID uint16)

type entry struct {
	taskID       uint16
	lastFeedUS   uint64
	timeoutMS    uint64
	action       Action
	recovery     RecoveryFunc
	timeoutCount uint32
	enabled      bool
}

// Watchdog monitors task health and triggers recovery actions, ported
// from task_watchdog. The original is single-threaded; this port's
// native tasks feed it from their own goroutines concurrently with
// Core.healthLoop's CheckAll, so mu guards every field below.
type Watchdog struct {
	clock    platform.Clock
	platform platform.Platform
	log      *platform.Logger

	mu       sync.Mutex
	entries  []*entry
	maxTasks uint32

	systemEnabled   bool
	systemTimeoutMS uint64
	lastSystemFeed  uint64
}

// New constructs a Watchdog bound to clock for timestamps and p for
// recovery side effects (logging, delay, reset).
func New(clock platform.Clock, p platform.Platform, maxTasks uint32) *Watchdog {
	log := p.Logger()
	return &Watchdog{clock: clock, platform: p, log: log, maxTasks: maxTasks}
}

func (w *Watchdog) find(taskID uint16) *entry {
	for _, e := range w.entries {
		if e.taskID == taskID && e.enabled {
			return e
		}
	}
	return nil
}

// RegisterTask adds taskID to the watchdog with timeoutMS and action,
// rejecting registration once maxTasks entries exist.
func (w *Watchdog) RegisterTask(taskID uint16, timeoutMS uint64, action Action) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if uint32(len(w.entries)) >= w.maxTasks {
		return corerr.New("watchdog.Watchdog.RegisterTask", corerr.OutOfMemory)
	}
	w.entries = append(w.entries, &entry{
		taskID:     taskID,
		timeoutMS:  timeoutMS,
		action:     action,
		lastFeedUS: w.clock.NowMicros(),
		enabled:    true,
	})
	return nil
}

// Feed marks taskID alive at the current time.
func (w *Watchdog) Feed(taskID uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e := w.find(taskID); e != nil {
		e.lastFeedUS = w.clock.NowMicros()
	}
}

// SetTimeout updates taskID's timeout.
func (w *Watchdog) SetTimeout(taskID uint16, timeoutMS uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := w.find(taskID)
	if e == nil {
		return corerr.New("watchdog.Watchdog.SetTimeout", corerr.NotFound)
	}
	e.timeoutMS = timeoutMS
	return nil
}

// SetAction updates taskID's recovery action.
func (w *Watchdog) SetAction(taskID uint16, action Action) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := w.find(taskID)
	if e == nil {
		return corerr.New("watchdog.Watchdog.SetAction", corerr.NotFound)
	}
	e.action = action
	return nil
}

// RegisterRecoveryAction attaches callback to run on taskID's
// ActionResetTask timeout.
func (w *Watchdog) RegisterRecoveryAction(taskID uint16, callback RecoveryFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := w.find(taskID)
	if e == nil {
		return corerr.New("watchdog.Watchdog.RegisterRecoveryAction", corerr.NotFound)
	}
	e.recovery = callback
	return nil
}

// IsAlive reports whether taskID was fed within its configured
// timeout.
func (w *Watchdog) IsAlive(taskID uint16) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := w.find(taskID)
	if e == nil {
		return false
	}
	elapsedUS := w.clock.NowMicros() - e.lastFeedUS
	return (elapsedUS / 1000) < e.timeoutMS
}

// EnableTask toggles taskID's monitoring, resetting its feed timestamp
// when re-enabled.
func (w *Watchdog) EnableTask(taskID uint16, enable bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range w.entries {
		if e.taskID == taskID {
			e.enabled = enable
			if enable {
				e.lastFeedUS = w.clock.NowMicros()
			}
			return
		}
	}
}

// EnableSystemWatchdog arms a system-wide deadline independent of any
// task entry.
func (w *Watchdog) EnableSystemWatchdog(timeoutMS uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.systemEnabled = true
	w.systemTimeoutMS = timeoutMS
	w.lastSystemFeed = w.clock.NowMicros()
	w.log.Info("system watchdog enabled", platform.Uint64("timeout_ms", timeoutMS))
}

// FeedSystem marks the system watchdog alive.
func (w *Watchdog) FeedSystem() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSystemFeed = w.clock.NowMicros()
}

// GetTimeoutCount reports how many times taskID has timed out.
func (w *Watchdog) GetTimeoutCount(taskID uint16) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e := w.find(taskID); e != nil {
		return e.timeoutCount
	}
	return 0
}

// ResetStatistics zeroes every entry's timeout counter.
func (w *Watchdog) ResetStatistics() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range w.entries {
		e.timeoutCount = 0
	}
}

func (w *Watchdog) triggerTimeout(e *entry) error {
	e.timeoutCount++
	w.log.Warn("watchdog timeout",
		platform.Int("task_id", int(e.taskID)),
		platform.Int("timeout_count", int(e.timeoutCount)),
	)

	switch e.action {
	case ActionNone:
		return nil
	case ActionLogWarning:
		return nil
	case ActionResetTask:
		if e.recovery != nil {
			e.recovery(e.taskID)
		}
		return corerr.New("watchdog.Watchdog.CheckAll", corerr.Timeout)
	case ActionSystemReset:
		w.log.Error("system reset triggered by watchdog", platform.Int("task_id", int(e.taskID)))
		w.platform.SleepMs(100)
		w.platform.Reset()
		return corerr.New("watchdog.Watchdog.CheckAll", corerr.Timeout)
	default:
		return nil
	}
}

// CheckAll scans every enabled entry (and the system watchdog, if
// armed) for a missed deadline, triggering recovery for each and
// aggregating every timeout into one multierr rather than stopping at
// the first.
func (w *Watchdog) CheckAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.NowMicros()
	var errs error

	for _, e := range w.entries {
		if !e.enabled {
			continue
		}
		elapsedMS := (now - e.lastFeedUS) / 1000
		if elapsedMS >= e.timeoutMS {
			errs = multierr.Append(errs, w.triggerTimeout(e))
			e.lastFeedUS = now
		}
	}

	if w.systemEnabled {
		elapsedMS := (now - w.lastSystemFeed) / 1000
		if elapsedMS >= w.systemTimeoutMS {
			w.log.Error("system watchdog timeout")
			w.platform.SleepMs(100)
			w.platform.Reset()
			errs = multierr.Append(errs, corerr.New("watchdog.Watchdog.CheckAll", corerr.Timeout))
		}
	}

	return errs
}
