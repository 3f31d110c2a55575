package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/eventbus"
	"github.com/nexuskernel/orchestrator/resilience"
)

// Envelope is C4: the single point of execution for every agent call. It
// implements the ordered contract of spec §4.4 — mint executionId,
// sanitize-and-publish, resolve effective timeout/retry, then an attempt
// loop gated by the breaker with categorized retry and backoff.
//
// Grounded on itsneelabh-gomind's resilience package shape (breaker +
// retry composed around one call) but assembled fresh: the teacher has no
// single "envelope" that also mints execution identity and emits
// lifecycle events — that composition is this spec's C4, built here from
// the already-adapted resilience.Breaker/resilience.Metrics and
// eventbus.Bus pieces.
type Envelope struct {
	agent   Agent
	breaker core.CircuitBreaker
	metrics *resilience.Metrics
	bus     *eventbus.Bus
	logger  core.Logger

	defaultTimeout time.Duration
	defaultRetry   core.RetryPolicy
}

// New constructs an Envelope wrapping agent. breaker and metrics are
// supplied by the registry (C6), which owns one of each per agent name
// (spec §3: "C2 owns a breaker per agent... C3 owns per-agent metrics").
func New(a Agent, breaker core.CircuitBreaker, metrics *resilience.Metrics, bus *eventbus.Bus, logger core.Logger, defaultTimeout time.Duration, defaultRetry core.RetryPolicy) *Envelope {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Envelope{
		agent:          a,
		breaker:        breaker,
		metrics:        metrics,
		bus:            bus,
		logger:         logger,
		defaultTimeout: defaultTimeout,
		defaultRetry:   defaultRetry,
	}
}

// Invoke runs the ordered envelope contract of spec §4.4 for one call.
func (e *Envelope) Invoke(ctx context.Context, input Input) core.AgentResult {
	startTime := time.Now()
	execID := newExecutionID(e.agent.Name())

	timeout := e.defaultTimeout
	if input.Timeout != nil {
		timeout = *input.Timeout
	}
	if timeout <= 0 {
		return e.validationError(execID, startTime, "timeout must be positive")
	}

	policy := e.defaultRetry
	if input.RetryPolicy != nil {
		policy = *input.RetryPolicy
	}

	e.publish(eventbus.ExecutionStarted, e.agent.Name(), map[string]interface{}{
		"executionId":    execID,
		"sanitizedInput": input.Sanitize(),
	})

	var lastResult core.AgentResult
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if !e.breaker.Admit() {
			result := core.Err("circuit_breaker_open", "circuit breaker is open", core.CategoryCircuitBreaker, false,
				time.Since(startTime), map[string]interface{}{
					"executionId":  execID,
					"attempt":      attempt + 1,
					"breakerState": string(e.breakerState()),
				})
			e.publish(eventbus.ExecutionError, e.agent.Name(), map[string]interface{}{
				"executionId":  execID,
				"attempt":      attempt + 1,
				"category":     string(core.CategoryCircuitBreaker),
				"isRetryable":  false,
				"isLastAttempt": true,
			})
			return result
		}

		execCtx := ExecutionContext{
			ExecutionID:   execID,
			StartTime:     startTime,
			TraceID:       input.TraceID,
			CorrelationID: input.CorrelationID,
			Metadata:      input.Metadata,
			Attempt:       attempt + 1,
		}

		result := e.runOnce(ctx, timeout, input, execCtx)
		lastResult = result

		if result.IsOk() {
			e.breaker.RecordSuccess()
			elapsed := time.Since(startTime)
			e.metrics.RecordSuccess(elapsed)
			e.metrics.SetBreakerState(e.breakerState())

			result.Metadata["executionId"] = execID
			result.Metadata["attempt"] = attempt + 1
			result.Metadata["circuitBreakerState"] = string(e.breakerState())
			result.ExecutionTime = elapsed

			e.publish(eventbus.ExecutionCompleted, e.agent.Name(), map[string]interface{}{
				"executionId": execID,
				"attempt":     attempt + 1,
				"result":      "success",
				"executionTime": elapsed,
			})
			return result
		}

		// Failure path.
		isLastAttempt := attempt == policy.MaxRetries
		countsTowardBreaker := core.CountsTowardBreaker(result.Category)
		if countsTowardBreaker {
			e.breaker.RecordFailure()
			e.metrics.RecordFailure(time.Since(startTime))
		}
		e.metrics.SetBreakerState(e.breakerState())

		retryable := result.Retryable
		isRetryable := retryable && !isLastAttempt

		result.Metadata["executionId"] = execID
		result.Metadata["attempt"] = attempt + 1
		result.Metadata["circuitBreakerState"] = string(e.breakerState())

		e.publish(eventbus.ExecutionError, e.agent.Name(), map[string]interface{}{
			"executionId":   execID,
			"attempt":       attempt + 1,
			"category":      string(result.Category),
			"isRetryable":   isRetryable,
			"isLastAttempt": isLastAttempt,
		})

		if result.Category == core.CategoryValidation {
			return result
		}
		if !isRetryable {
			return result
		}

		delay := policy.BackoffFor(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return e.contextError(execID, startTime, ctx.Err())
		case <-timer.C:
		}
	}

	if lastResult.IsOk() || lastResult.Code != "" {
		return lastResult
	}
	return core.Err("execution_failed", "envelope attempt loop exhausted without a result", core.CategoryExecution, false, time.Since(startTime), map[string]interface{}{"executionId": execID})
}

// runOnce races one agent call against the effective timeout, classifying
// a timeout expiry and any panic as the categories spec §4.1/§4.4 name.
func (e *Envelope) runOnce(ctx context.Context, timeout time.Duration, input Input, execCtx ExecutionContext) (result core.AgentResult) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan core.AgentResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- core.Err("agent_panic", fmt.Sprintf("agent panicked: %v", r), core.CategoryExecution, false, 0, nil)
			}
		}()
		done <- e.agent.ExecuteCore(callCtx, input, execCtx)
	}()

	select {
	case <-callCtx.Done():
		if callCtx.Err() == context.DeadlineExceeded {
			return core.Err("execution_timeout", "agent execution exceeded timeout", core.CategoryTimeoutResult, true, timeout, nil)
		}
		return core.Err("execution_cancelled", "context cancelled", core.CategoryTimeoutResult, false, 0, nil)
	case r := <-done:
		if r.Metadata == nil {
			r.Metadata = map[string]interface{}{}
		}
		return r
	}
}

func (e *Envelope) breakerState() core.BreakerState {
	if e.breaker == nil {
		return core.BreakerClosed
	}
	return e.breaker.State()
}

func (e *Envelope) validationError(execID string, startTime time.Time, msg string) core.AgentResult {
	return core.Err("invalid_timeout", msg, core.CategoryValidation, false, time.Since(startTime), map[string]interface{}{"executionId": execID})
}

func (e *Envelope) contextError(execID string, startTime time.Time, err error) core.AgentResult {
	return core.Err("context_cancelled", err.Error(), core.CategoryTimeoutResult, false, time.Since(startTime), map[string]interface{}{"executionId": execID})
}

func (e *Envelope) publish(kind eventbus.EventTag, subject string, payload map[string]interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Kind: kind, Subject: subject, Payload: payload})
}
