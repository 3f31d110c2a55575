package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/nexuskernel/orchestrator/agent"
	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fnAgent struct {
	name string
	run  func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult
}

func (a *fnAgent) Name() string    { return a.name }
func (a *fnAgent) Version() string { return "1.0.0" }
func (a *fnAgent) ExecuteCore(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
	return a.run(ctx, input, execCtx)
}

func newTestRegistry() *Registry {
	return New(nil, nil, 30*time.Second, core.DefaultRetryPolicy(), core.DefaultBreakerConfig(), 100)
}

func TestRegistry_RegisterAndDelegate(t *testing.T) {
	r := newTestRegistry()
	echo := &fnAgent{name: "echo", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		msg, _ := input.Get("msg")
		return core.Ok(map[string]interface{}{"echo": msg}, 0, nil)
	}}
	require.NoError(t, r.RegisterAgent(echo))

	result := r.Delegate(context.Background(), "echo", agent.Input{Data: map[string]interface{}{"msg": "hi"}})
	require.True(t, result.IsOk())
	data := result.Data.(map[string]interface{})
	assert.Equal(t, "hi", data["echo"])
}

func TestRegistry_DuplicateRegistrationRejected(t *testing.T) {
	r := newTestRegistry()
	a := &fnAgent{name: "dup", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Ok(nil, 0, nil)
	}}
	require.NoError(t, r.RegisterAgent(a))
	err := r.RegisterAgent(a)
	require.Error(t, err)
	assert.True(t, core.IsStateError(err))
}

func TestRegistry_DelegateMissingAgentIsValidationError(t *testing.T) {
	r := newTestRegistry()
	result := r.Delegate(context.Background(), "ghost", agent.Input{})
	assert.False(t, result.IsOk())
	assert.Equal(t, "agent_not_found", result.Code)
	assert.Equal(t, core.CategoryValidation, result.Category)
	assert.False(t, result.Retryable)
}

func TestRegistry_UnregisterRemovesAgentBreakerAndMetrics(t *testing.T) {
	r := newTestRegistry()
	a := &fnAgent{name: "gone", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Ok(nil, 0, nil)
	}}
	require.NoError(t, r.RegisterAgent(a))
	require.NoError(t, r.UnregisterAgent("gone"))

	status := r.GetAgentStatus("gone")
	assert.False(t, status.Exists)

	result := r.Delegate(context.Background(), "gone", agent.Input{})
	assert.False(t, result.IsOk())
	assert.Equal(t, "agent_not_found", result.Code)
}

func TestRegistry_UnregisterMissingAgentErrors(t *testing.T) {
	r := newTestRegistry()
	err := r.UnregisterAgent("never-existed")
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestRegistry_GetAgentStatusHealthClassification(t *testing.T) {
	r := newTestRegistry()
	a := &fnAgent{name: "flaky", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Err("net_err", "network connection refused", core.CategorySystem, false, 0, nil)
	}}
	require.NoError(t, r.RegisterAgent(a))

	status := r.GetAgentStatus("flaky")
	require.True(t, status.Exists)
	assert.Equal(t, AgentHealthy, status.Health, "zero executions so far should read as healthy")

	r.Delegate(context.Background(), "flaky", agent.Input{})
	status = r.GetAgentStatus("flaky")
	assert.Equal(t, AgentUnhealthy, status.Health)
}

func TestRegistry_NamesAndBreakerStates(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.RegisterAgent(&fnAgent{name: "a", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Ok(nil, 0, nil)
	}}))
	require.NoError(t, r.RegisterAgent(&fnAgent{name: "b", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Ok(nil, 0, nil)
	}}))

	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())

	states := r.BreakerStates()
	assert.Equal(t, core.BreakerClosed, states["a"])
	assert.Equal(t, core.BreakerClosed, states["b"])
}

func TestRegistry_BreakerTransitionPublishesEvent(t *testing.T) {
	bus := eventbus.New(nil)
	collector := newCollector()
	bus.Subscribe(collector)

	cfg := core.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenMaxRequests: 1}
	r := New(bus, nil, 30*time.Second, core.RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond, BackoffMultiplier: 2, MaxDelay: time.Second}, cfg, 100)

	a := &fnAgent{name: "trips", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Err("net_err", "network connection refused", core.CategorySystem, false, 0, nil)
	}}
	require.NoError(t, r.RegisterAgent(a))
	r.Delegate(context.Background(), "trips", agent.Input{})

	events := collector.drain(t, 3) // executionStarted, executionError, breakerOpened
	var sawBreakerOpened bool
	for _, e := range events {
		if e.Kind == eventbus.BreakerOpened {
			sawBreakerOpened = true
		}
	}
	assert.True(t, sawBreakerOpened)
}

type eventCollector struct {
	events chan eventbus.Event
}

func newCollector() *eventCollector {
	return &eventCollector{events: make(chan eventbus.Event, 100)}
}

func (c *eventCollector) HandleEvent(e eventbus.Event) { c.events <- e }

func (c *eventCollector) drain(t *testing.T, n int) []eventbus.Event {
	t.Helper()
	var got []eventbus.Event
	deadline := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case e := <-c.events:
			got = append(got, e)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(got))
		}
	}
	return got
}
