// Package core provides the fundamental abstractions of the orchestration
// kernel: the error taxonomy, the tagged result type, structured logging,
// and the contracts concrete subsystems (resilience, model, agent,
// scheduler) build against.
package core

import (
	"context"
)

// BreakerState is C2's closed vocabulary of circuit-breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreaker is the contract C2 exposes to C4 (the envelope). Admit
// gates a new invocation; RecordSuccess/RecordFailure advance the state
// machine per the invariants in spec §3.
type CircuitBreaker interface {
	// Admit reports whether an invocation may proceed. It returns false
	// when the breaker is open, or half-open with no admission slots left.
	Admit() (proceed bool)

	RecordSuccess()
	RecordFailure()

	State() BreakerState
	Metrics() map[string]interface{}
	Reset()

	// Execute is a convenience wrapper: Admit, run fn, RecordSuccess/RecordFailure.
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// BreakerParams bundles a CircuitBreaker implementation's dependencies.
type BreakerParams struct {
	Name      string
	Config    BreakerConfig
	Logger    Logger
	Telemetry Telemetry
}

// DefaultBreakerParams returns params using spec §4.2's default thresholds.
func DefaultBreakerParams(name string) BreakerParams {
	return BreakerParams{
		Name:   name,
		Config: DefaultBreakerConfig(),
		Logger: &NoOpLogger{},
	}
}
