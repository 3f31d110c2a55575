// Package agent provides the capability contract every concrete agent
// satisfies (spec §6's "Agent contract") and the execution envelope (C4)
// that wraps every invocation of it with timeout, retry, circuit-breaker
// gating, metrics, and lifecycle events.
//
// Grounded on itsneelabh-gomind's core/agent.go: the teacher wires an
// Agent as a struct embedding *Component with lifecycle methods
// (Initialize/Start/Stop) suited to a long-running discoverable service.
// Spec §9's design notes call for replacing that class-based shape with a
// narrow capability contract — two read-only fields plus one method — so
// the envelope can wrap any value satisfying it without a shared base
// class or virtual dispatch. That contract is what this file defines.
package agent

import (
	"context"
	"time"

	"github.com/nexuskernel/orchestrator/core"
)

// Agent is the two-field-one-method capability contract spec §6 names.
// Agents must not catch their own timeouts — they must let ctx
// cancellation propagate — and must return a core.CategoryValidation
// AgentResult for malformed input rather than panicking.
type Agent interface {
	Name() string
	Version() string
	ExecuteCore(ctx context.Context, input Input, execCtx ExecutionContext) core.AgentResult
}

// Input is the dynamic key/value bag an invocation carries (spec §3's
// AgentInput), plus the pinned well-known fields spec §9 calls for typing
// explicitly rather than leaving them loose in the bag: Timeout,
// RetryPolicy, and the reserved metadata keys traceId/correlationId.
type Input struct {
	// Data is the open bag of caller-supplied fields.
	Data map[string]interface{}

	// Timeout overrides the envelope default for this invocation only. Nil
	// means "use the envelope default"; spec §4.4's boundary rule is that
	// an explicit zero or negative duration is a validation error at
	// envelope entry, not a synonym for "unset" — so this is a pointer
	// rather than a bare time.Duration, which couldn't tell "absent" from
	// "explicitly zero" apart.
	Timeout *time.Duration

	// RetryPolicy overrides the envelope default retry policy. Nil means
	// "use the envelope default".
	RetryPolicy *core.RetryPolicy

	// Metadata carries caller context; TraceID/CorrelationID below are its
	// reserved keys, pinned here as typed fields per spec §9.
	Metadata      map[string]interface{}
	TraceID       string
	CorrelationID string
}

// Get reads a key from Data, the common case for agent bodies.
func (in Input) Get(key string) (interface{}, bool) {
	if in.Data == nil {
		return nil, false
	}
	v, ok := in.Data[key]
	return v, ok
}

// GetString reads a string key from Data, returning "" if absent or of the
// wrong type.
func (in Input) GetString(key string) string {
	v, ok := in.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// sensitiveFields is the closed vocabulary spec §4.4 step 2 names: fields
// redacted from any emitted log/event payload. The original Input the
// agent receives is never mutated — only a copy built for emission.
var sensitiveFields = map[string]bool{
	"password": true,
	"token":    true,
	"apiKey":   true,
	"apikey":   true,
	"secret":   true,
}

const redactedPlaceholder = "[REDACTED]"

// Sanitize returns a shallow copy of in.Data with sensitive keys redacted,
// for use in executionStarted event payloads. It never mutates in.Data.
func (in Input) Sanitize() map[string]interface{} {
	out := make(map[string]interface{}, len(in.Data))
	for k, v := range in.Data {
		if sensitiveFields[k] {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = v
	}
	return out
}

// ExecutionContext is the per-invocation identity spec §3 names:
// executionId, startTime, and the trace/correlation identifiers and
// metadata snapshot carried through to the agent body and every emitted
// event. It is destroyed (goes out of scope) when the envelope returns.
type ExecutionContext struct {
	ExecutionID   string
	StartTime     time.Time
	TraceID       string
	CorrelationID string
	Metadata      map[string]interface{}
	Attempt       int
}
