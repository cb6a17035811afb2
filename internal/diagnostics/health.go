package diagnostics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/firmcore/runtime/internal/broker"
	"github.com/firmcore/runtime/internal/corerr"
	"github.com/firmcore/runtime/internal/watchdog"
)

// Status mirrors task_health_status, generalized here to describe
// overall system health rather than a single task.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Snapshot aggregates the broker's counters, the watchdog's timeout
// state, and a ProfilerSample into one point-in-time read, ported
// from system_health_status and supplemented per this port's scope.
type Snapshot struct {
	Overall Status

	MessagesSent     uint32
	MessagesReceived uint32
	MessagesDropped  uint32

	WatchdogTimeouts uint32

	Profiler ProfilerSample

	UptimeMS  uint64
	UpdatedAt time.Time
}

// HealthMonitor aggregates the profiler, broker, and watchdog into a
// single Snapshot, ported from health_monitor and named after the
// teacher's health.HealthMonitor referenced from UnifiedSupervisor.
type HealthMonitor struct {
	mu sync.Mutex

	profiler *Profiler
	br       *broker.Broker
	wd       *watchdog.Watchdog

	watchedTaskIDs []uint16
	startedAt      time.Time
	enabled        bool

	lastSnapshot Snapshot

	metricsOnce       sync.Once
	mailboxDepth      prometheus.Gauge
	messagesDropped   prometheus.Counter
	watchdogTimeouts  prometheus.Counter
	taskExecHistogram *prometheus.HistogramVec
}

// NewHealthMonitor constructs a HealthMonitor over an already-running
// Profiler, Broker, and Watchdog.
func NewHealthMonitor(p *Profiler, br *broker.Broker, wd *watchdog.Watchdog) *HealthMonitor {
	return &HealthMonitor{
		profiler:  p,
		br:        br,
		wd:        wd,
		startedAt: time.Now(),
		mailboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "firmcore",
			Subsystem: "broker",
			Name:      "mailbox_count",
			Help:      "Number of registered task mailboxes.",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firmcore",
			Subsystem: "broker",
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped by full mailboxes: rejected sends plus drop-oldest evictions.",
		}),
		watchdogTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firmcore",
			Subsystem: "watchdog",
			Name:      "timeouts_total",
			Help:      "Total watchdog timeout events across all monitored tasks.",
		}),
		taskExecHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firmcore",
			Subsystem: "task",
			Name:      "execution_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task_id"}),
	}
}

// RegisterMetrics registers every Prometheus collector with reg. Safe
// to call once per HealthMonitor instance.
func (h *HealthMonitor) RegisterMetrics(reg *prometheus.Registry) error {
	var err error
	h.metricsOnce.Do(func() {
		err = multierr.Combine(
			reg.Register(h.mailboxDepth),
			reg.Register(h.messagesDropped),
			reg.Register(h.watchdogTimeouts),
			reg.Register(h.taskExecHistogram),
		)
	})
	return err
}

// ObserveTaskExecution feeds a per-task execution sample into the
// Prometheus histogram, called from the task manager's run loop.
func (h *HealthMonitor) ObserveTaskExecution(taskID uint16, d time.Duration) {
	h.taskExecHistogram.WithLabelValues(strconv.Itoa(int(taskID))).Observe(d.Seconds())
}

// Enable toggles health monitoring, mirroring enable_monitoring.
func (h *HealthMonitor) Enable(enable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = enable
}

// WatchTask adds taskID to the set aggregated into CheckAll's
// watchdog-timeout rollup.
func (h *HealthMonitor) WatchTask(taskID uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchedTaskIDs = append(h.watchedTaskIDs, taskID)
}

// CheckAll recomputes the aggregate Snapshot, mirroring
// update_health_status, and aggregates every watched task's watchdog
// timeout-count read into one error via multierr rather than
// returning on the first, the same pattern watchdog.CheckAll uses.
func (h *HealthMonitor) CheckAll() (Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled {
		return h.lastSnapshot, nil
	}

	var errs error
	var totalTimeouts uint32
	for _, id := range h.watchedTaskIDs {
		if !h.wd.IsAlive(id) {
			errs = multierr.Append(errs, corerr.New("diagnostics.HealthMonitor.CheckAll", corerr.Timeout))
		}
		totalTimeouts += h.wd.GetTimeoutCount(id)
	}

	sample := h.profiler.Sample()

	snap := Snapshot{
		MessagesSent:     h.br.TotalSent(),
		MessagesReceived: h.br.TotalReceived(),
		MessagesDropped:  h.br.TotalDropped(),
		WatchdogTimeouts: totalTimeouts,
		Profiler:         sample,
		UptimeMS:         uint64(time.Since(h.startedAt).Milliseconds()),
		UpdatedAt:        time.Now(),
	}
	snap.Overall = classify(snap)
	prev := h.lastSnapshot
	h.lastSnapshot = snap

	h.mailboxDepth.Set(float64(h.br.MailboxCount()))
	if snap.MessagesDropped > prev.MessagesDropped {
		h.messagesDropped.Add(float64(snap.MessagesDropped - prev.MessagesDropped))
	}
	if totalTimeouts > prev.WatchdogTimeouts {
		h.watchdogTimeouts.Add(float64(totalTimeouts - prev.WatchdogTimeouts))
	}

	return snap, errs
}

func classify(s Snapshot) Status {
	switch {
	case s.WatchdogTimeouts > 10:
		return StatusCritical
	case s.WatchdogTimeouts > 0 || s.MessagesDropped > 0:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// IsHealthy mirrors is_system_healthy.
func (h *HealthMonitor) IsHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSnapshot.Overall == StatusHealthy || h.lastSnapshot.Overall == StatusWarning
}

// LastSnapshot returns the Snapshot computed by the most recent
// CheckAll call.
func (h *HealthMonitor) LastSnapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSnapshot
}
