// Package resilience holds the fault-tolerance primitives the orchestration
// kernel composes over every agent and provider call: the circuit breaker
// (C2) and a retry combinator over core.RetryPolicy. Grounded on itsneelabh-gomind's resilience
// package — same package shape, atomic-state-plus-mutex-for-transitions
// idiom, structured logging on every state change — narrowed from the
// teacher's sliding-window error-rate breaker to the simple failure-count
// breaker spec §3/§4.2 specifies.
package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexuskernel/orchestrator/core"
)

// Breaker is the concrete, per-agent circuit breaker satisfying
// core.CircuitBreaker. It implements the classic 3-state machine: closed,
// open, half-open, with the invariants in spec §3:
//   - closed → open when failureCount reaches FailureThreshold on a failure.
//   - open → half-open on the first Admit() call arriving at least
//     RecoveryTimeout after the last failure.
//   - half-open admits at most HalfOpenMaxRequests concurrently; any
//     failure reopens, a success closes and zeroes failureCount.
type Breaker struct {
	name      string
	config    core.BreakerConfig
	logger    core.Logger
	telemetry core.Telemetry

	mu              sync.Mutex
	state           core.BreakerState
	failureCount    int
	lastFailureTime time.Time

	halfOpenAdmitted atomic.Int32

	onStateChange func(name string, from, to core.BreakerState)
}

// New constructs a Breaker from BreakerParams, matching the teacher's
// DefaultBreakerParams constructor shape. A nil logger/telemetry falls
// back to a no-op.
func New(params core.BreakerParams, onStateChange func(name string, from, to core.BreakerState)) *Breaker {
	logger := params.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	telemetry := params.Telemetry
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	cfg := params.Config
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = core.DefaultBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = core.DefaultBreakerConfig().RecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = core.DefaultBreakerConfig().HalfOpenMaxRequests
	}
	return &Breaker{
		name:          params.Name,
		config:        cfg,
		logger:        logger,
		telemetry:     telemetry,
		state:         core.BreakerClosed,
		onStateChange: onStateChange,
	}
}

// Admit reports whether an invocation may proceed, advancing open→half-open
// on the first arrival past RecoveryTimeout (spec §3's CircuitBreakerState
// invariant). Half-open admission is capped by an atomic counter
// decremented in RecordSuccess/RecordFailure, so at no point do more than
// HalfOpenMaxRequests concurrent invocations pass Admit (spec §8's
// half-open admission bound).
func (b *Breaker) Admit() bool {
	b.mu.Lock()
	switch b.state {
	case core.BreakerClosed:
		b.mu.Unlock()
		return true
	case core.BreakerOpen:
		if time.Since(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.transition(core.BreakerHalfOpen)
			b.mu.Unlock()
			return b.admitHalfOpen()
		}
		b.mu.Unlock()
		return false
	case core.BreakerHalfOpen:
		b.mu.Unlock()
		return b.admitHalfOpen()
	default:
		b.mu.Unlock()
		return true
	}
}

func (b *Breaker) admitHalfOpen() bool {
	for {
		cur := b.halfOpenAdmitted.Load()
		if int(cur) >= b.config.HalfOpenMaxRequests {
			return false
		}
		if b.halfOpenAdmitted.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// RecordSuccess advances the state machine on a successful invocation: in
// half-open it closes the breaker and zeroes the failure count; in closed
// it has no state effect beyond zeroing transient counters.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == core.BreakerHalfOpen {
		b.halfOpenAdmitted.Add(-1)
		b.transition(core.BreakerClosed)
		b.failureCount = 0
		return
	}
	if b.state == core.BreakerClosed {
		b.failureCount = 0
	}
}

// RecordFailure advances the state machine on a failed invocation: in
// half-open any failure reopens; in closed, failureCount increments and
// trips to open once it reaches FailureThreshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureTime = time.Now()

	if b.state == core.BreakerHalfOpen {
		b.halfOpenAdmitted.Add(-1)
		b.transition(core.BreakerOpen)
		return
	}

	b.failureCount++
	if b.state == core.BreakerClosed && b.failureCount >= b.config.FailureThreshold {
		b.transition(core.BreakerOpen)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to core.BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.logger.Info("circuit breaker state transition", map[string]interface{}{
		"breaker": b.name,
		"from":    string(from),
		"to":      string(to),
	})
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// State reports the current breaker state without mutating it.
func (b *Breaker) State() core.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns a point-in-time snapshot for reporting (C3's breaker
// mirror, C10's health aggregation).
func (b *Breaker) Metrics() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"state":            string(b.state),
		"failureCount":     b.failureCount,
		"lastFailureTime":  b.lastFailureTime,
		"halfOpenAdmitted": int(b.halfOpenAdmitted.Load()),
	}
}

// Reset manually returns the breaker to closed with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(core.BreakerClosed)
	b.failureCount = 0
	b.halfOpenAdmitted.Store(0)
}

// Execute is the convenience wrapper spec §4.2 names: Admit, run fn,
// RecordSuccess/RecordFailure. Callers that need the full envelope
// semantics (categorized retry, metrics, events) use agent.Envelope
// instead; Execute is for simpler call sites. The model router does not
// use it: it calls Admit and RecordSuccess/RecordFailure itself.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Admit() {
		return core.ErrCircuitBreakerOpen
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

var _ core.CircuitBreaker = (*Breaker)(nil)
