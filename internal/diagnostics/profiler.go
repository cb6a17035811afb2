// Package diagnostics implements the profiler and health monitor,
// ported from the original emCore diagnostics/profiler.hpp's
// performance_profiler and diagnostics/health_monitor.hpp's
// health_monitor, combined with the teacher's kernel/runtime.Profiler
// capability-sampling shape.
package diagnostics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/firmcore/runtime/internal/corerr"
)

// TaskMetrics mirrors task_performance_metrics: per-task execution
// and latency statistics.
type TaskMetrics struct {
	MinExecutionUS   uint64
	MaxExecutionUS   uint64
	AvgExecutionUS   uint64
	TotalExecutionUS uint64

	MinLatencyUS uint64
	MaxLatencyUS uint64
	AvgLatencyUS uint64

	ExecutionCount uint32
	MessageCount   uint32
	ErrorCount     uint32
}

func (m *TaskMetrics) updateExecutionTime(us uint64) {
	m.ExecutionCount++
	m.TotalExecutionUS += us
	if m.MinExecutionUS == 0 || us < m.MinExecutionUS {
		m.MinExecutionUS = us
	}
	if us > m.MaxExecutionUS {
		m.MaxExecutionUS = us
	}
	m.AvgExecutionUS = m.TotalExecutionUS / uint64(m.ExecutionCount)
}

func (m *TaskMetrics) updateLatency(us uint64) {
	m.MessageCount++
	if m.MinLatencyUS == 0 || us < m.MinLatencyUS {
		m.MinLatencyUS = us
	}
	if us > m.MaxLatencyUS {
		m.MaxLatencyUS = us
	}
	if m.AvgLatencyUS == 0 {
		m.AvgLatencyUS = us
	} else {
		m.AvgLatencyUS = (m.AvgLatencyUS*7 + us) / 8
	}
}

// ProfilerSample is a point-in-time read of the Go process's own
// resource usage, the native-build stand-in for the teacher's
// RuntimeCapabilities{ComputeScore, NetworkLatency, AtomicsOverhead,
// IsHeadless} — those fields measure WASM/WebRTC specifics that have
// no analogue in a server/firmware-simulation process, so this port
// measures wall-clock GC pause time and goroutine count instead.
type ProfilerSample struct {
	ComputeScore float64
	GCPauseAvg   time.Duration
	Goroutines   int
	HeapInUseB   uint64
	SampledAt    time.Time
}

// Profiler aggregates per-task execution/latency metrics and samples
// overall process health, ported from performance_profiler.
type Profiler struct {
	mu sync.Mutex

	enabled bool
	tasks   map[uint16]*TaskMetrics

	totalMessagesSent     uint32
	totalMessagesReceived uint32
	totalMessagesDropped  uint32
	totalErrors           uint32
}

// NewProfiler constructs a disabled Profiler; call Enable to start
// recording.
func NewProfiler() *Profiler {
	return &Profiler{tasks: make(map[uint16]*TaskMetrics)}
}

// Enable toggles profiling, mirroring enable_profiling.
func (p *Profiler) Enable(enable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enable
}

// RegisterTask adds taskID to the profiled set, mirroring
// performance_profiler::register_task.
func (p *Profiler) RegisterTask(taskID uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.tasks[taskID]; exists {
		return corerr.New("diagnostics.Profiler.RegisterTask", corerr.AlreadyExists)
	}
	p.tasks[taskID] = &TaskMetrics{}
	return nil
}

// RecordExecutionTime mirrors record_execution_time: a no-op while
// profiling is disabled.
func (p *Profiler) RecordExecutionTime(taskID uint16, us uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	if m, ok := p.tasks[taskID]; ok {
		m.updateExecutionTime(us)
	}
}

// RecordMessageLatency mirrors record_message_latency.
func (p *Profiler) RecordMessageLatency(taskID uint16, us uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	if m, ok := p.tasks[taskID]; ok {
		m.updateLatency(us)
	}
	p.totalMessagesReceived++
}

// RecordError mirrors record_error.
func (p *Profiler) RecordError(taskID uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	if m, ok := p.tasks[taskID]; ok {
		m.ErrorCount++
	}
	p.totalErrors++
}

// RecordMessageCounts feeds the broker's sent/dropped counters in,
// supplementing the teacher's sent/received/dropped system_metrics
// fields that this port's broker owns independently.
func (p *Profiler) RecordMessageCounts(sent, dropped uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalMessagesSent = sent
	p.totalMessagesDropped = dropped
}

// TaskMetricsFor returns a copy of taskID's metrics.
func (p *Profiler) TaskMetricsFor(taskID uint16) (TaskMetrics, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.tasks[taskID]
	if !ok {
		return TaskMetrics{}, false
	}
	return *m, true
}

// Sample takes a point-in-time ProfilerSample of the hosting process,
// the native-build analogue of RuntimeCapabilities.
func (p *Profiler) Sample() ProfilerSample {
	var gc debug.GCStats
	debug.ReadGCStats(&gc)

	var pause time.Duration
	if len(gc.Pause) > 0 {
		var sum time.Duration
		n := len(gc.Pause)
		if n > 32 {
			n = 32
		}
		for i := 0; i < n; i++ {
			sum += gc.Pause[i]
		}
		pause = sum / time.Duration(n)
	}

	var mstats runtime.MemStats
	runtime.ReadMemStats(&mstats)

	return ProfilerSample{
		ComputeScore: 1.0,
		GCPauseAvg:   pause,
		Goroutines:   runtime.NumGoroutine(),
		HeapInUseB:   mstats.HeapInuse,
		SampledAt:    time.Now(),
	}
}

// ResetStatistics clears every per-task and system counter, mirroring
// reset_statistics.
func (p *Profiler) ResetStatistics() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.tasks {
		p.tasks[id] = &TaskMetrics{}
	}
	p.totalMessagesSent = 0
	p.totalMessagesReceived = 0
	p.totalMessagesDropped = 0
	p.totalErrors = 0
}
