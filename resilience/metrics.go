package resilience

import (
	"sync"
	"time"

	"github.com/nexuskernel/orchestrator/core"
)

// Metrics is C3's per-agent rolling-window collector: a fixed-capacity ring
// buffer of execution durations (spec §9 design note — "replace array
// shift with a fixed-capacity ring buffer to keep O(1) updates"), plus
// totals and a breaker-state mirror for reporting.
type Metrics struct {
	mu sync.Mutex

	window       []time.Duration
	windowSize   int
	windowCount  int
	windowCursor int

	total      int64
	successful int64
	failed     int64
	lastDur    time.Duration

	breakerState core.BreakerState
}

// NewMetrics constructs a Metrics collector with the given rolling window
// capacity (spec §3's default 100).
func NewMetrics(windowSize int) *Metrics {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Metrics{
		window:       make([]time.Duration, windowSize),
		windowSize:   windowSize,
		breakerState: core.BreakerClosed,
	}
}

// RecordSuccess records a successful execution's duration.
func (m *Metrics) RecordSuccess(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.successful++
	m.record(d)
}

// RecordFailure records a failed execution's duration.
func (m *Metrics) RecordFailure(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.failed++
	m.record(d)
}

// record must be called with m.mu held.
func (m *Metrics) record(d time.Duration) {
	m.window[m.windowCursor] = d
	m.windowCursor = (m.windowCursor + 1) % m.windowSize
	if m.windowCount < m.windowSize {
		m.windowCount++
	}
	m.lastDur = d
}

// SetBreakerState mirrors the breaker's current state for reporting
// alongside the counters (spec §3's "current breaker state mirrored for
// reporting").
func (m *Metrics) SetBreakerState(s core.BreakerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerState = s
}

// Snapshot is a point-in-time read of a Metrics collector.
type Snapshot struct {
	Total                int64
	Successful           int64
	Failed               int64
	ErrorRate            float64
	AverageExecutionTime time.Duration
	LastExecutionTime    time.Duration
	BreakerState         core.BreakerState
}

// Snapshot returns the current derived metrics: totals, error rate, and
// the average over the rolling window (spec §3's "derived
// averageExecutionTime, errorRate = failed/total").
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errRate float64
	if m.total > 0 {
		errRate = float64(m.failed) / float64(m.total)
	}

	var avg time.Duration
	if m.windowCount > 0 {
		var sum time.Duration
		for i := 0; i < m.windowCount; i++ {
			sum += m.window[i]
		}
		avg = sum / time.Duration(m.windowCount)
	}

	return Snapshot{
		Total:                m.total,
		Successful:           m.successful,
		Failed:               m.failed,
		ErrorRate:            errRate,
		AverageExecutionTime: avg,
		LastExecutionTime:    m.lastDur,
		BreakerState:         m.breakerState,
	}
}

// AsMap adapts a Snapshot into the map[string]interface{} shape used for
// event payloads and status reports.
func (s Snapshot) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"totalExecutions":      s.Total,
		"successfulExecutions": s.Successful,
		"failedExecutions":     s.Failed,
		"errorRate":            s.ErrorRate,
		"averageExecutionTime": s.AverageExecutionTime,
		"lastExecutionTime":    s.LastExecutionTime,
		"circuitBreakerState":  string(s.BreakerState),
	}
}

// Reset zeroes everything, per spec §4.3.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = make([]time.Duration, m.windowSize)
	m.windowCount = 0
	m.windowCursor = 0
	m.total = 0
	m.successful = 0
	m.failed = 0
	m.lastDur = 0
}
