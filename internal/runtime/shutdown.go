package runtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/firmcore/runtime/internal/platform"
)

// shutdownHook is one teardown step registered with a shutdownRegistry.
type shutdownHook func() error

// shutdownRegistry runs registered hooks in LIFO order under a
// deadline, ported from the teacher's kernel/utils.GracefulShutdown:
// the same register/run-in-reverse/timeout shape, but every hook's
// error is aggregated via multierr.Append instead of only surfacing
// through an error channel, matching watchdog.CheckAll and
// diagnostics.HealthMonitor.CheckAll's "report everything" policy
// elsewhere in this port.
type shutdownRegistry struct {
	mu    sync.Mutex
	hooks []shutdownHook
	log   *platform.Logger
}

func newShutdownRegistry(log *platform.Logger) *shutdownRegistry {
	return &shutdownRegistry{log: log}
}

// Register adds fn to run during Shutdown, LIFO relative to
// registration order (last registered, first run), so a subsystem
// can depend on one registered before it still being alive during its
// own teardown.
func (r *shutdownRegistry) Register(fn shutdownHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Shutdown runs every hook LIFO, bounded by ctx's deadline, and
// returns the combined error of every hook that failed (or a timeout
// error if ctx expires before every hook completes).
func (r *shutdownRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	hooks := append([]shutdownHook(nil), r.hooks...)
	r.mu.Unlock()

	r.log.Info("running shutdown hooks", platform.Int("count", len(hooks)))

	done := make(chan error, 1)
	go func() {
		var errs error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		done <- errs
	}()

	select {
	case err := <-done:
		r.log.Info("shutdown hooks complete")
		return err
	case <-ctx.Done():
		r.log.Warn("shutdown hooks timed out", platform.Duration("elapsed", elapsedSince(ctx)))
		return ctx.Err()
	}
}

type durationer struct{ d time.Duration }

func (d durationer) String() string { return d.d.String() }

func elapsedSince(ctx context.Context) durationer {
	if dl, ok := ctx.Deadline(); ok {
		return durationer{d: time.Until(dl)}
	}
	return durationer{}
}
