// Package resilience holds the fault-tolerance primitives the orchestration
// kernel composes over every agent and provider call: the circuit breaker
// (C2) and a retry combinator over core.RetryPolicy. The envelope (C4) and
// the model router (C5) run their own attempt loops and call the breaker
// directly rather than going through Retry. Grounded on itsneelabh-gomind's resilience
// package — same package shape, same exponential-backoff idiom — adapted
// to operate on core.RetryPolicy so the kernel has one retry vocabulary
// instead of two.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuskernel/orchestrator/core"
)

// Retry runs fn up to policy.MaxRetries+1 times (attempt 0 through
// MaxRetries), sleeping policy.BackoffFor(attempt) between attempts per
// spec §4.4 step 6 / §8's backoff-monotonicity law. shouldRetry classifies
// the error returned by fn and decides whether another attempt is
// warranted; Retry stops immediately when shouldRetry returns false.
//
// Retry returns the last error (wrapped with core.ErrMaxRetriesExceeded
// once attempts are exhausted), or nil on the first success, or
// ctx.Err() if the context is cancelled while waiting.
func Retry(ctx context.Context, policy core.RetryPolicy, shouldRetry func(err error) bool, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.BackoffFor(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w: %w", policy.MaxRetries, core.ErrMaxRetriesExceeded, lastErr)
}

// RetryWithBreaker combines Retry with a CircuitBreaker: each attempt is
// gated by Admit and reports its outcome back to the breaker, matching the
// envelope's "breaker.admit() ... record success/failure" contract (spec
// §4.4 step 6a/6c/6d) for callers that want the combinator pre-wired
// rather than hand-rolling the admit/record calls.
func RetryWithBreaker(ctx context.Context, policy core.RetryPolicy, breaker core.CircuitBreaker, shouldRetry func(err error) bool, fn func(ctx context.Context, attempt int) error) error {
	return Retry(ctx, policy, shouldRetry, func(ctx context.Context, attempt int) error {
		if !breaker.Admit() {
			return core.ErrCircuitBreakerOpen
		}
		if err := fn(ctx, attempt); err != nil {
			breaker.RecordFailure()
			return err
		}
		breaker.RecordSuccess()
		return nil
	})
}
