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

func newTestEngine(t *testing.T, bus *eventbus.Bus) (*Engine, *Registry) {
	t.Helper()
	registry := New(bus, nil, 30*time.Second, core.DefaultRetryPolicy(), core.DefaultBreakerConfig(), 100)
	return NewEngine(registry, bus, nil, 100), registry
}

func TestEngine_LinearWorkflowMergesStepOutputs(t *testing.T) {
	engine, registry := newTestEngine(t, nil)

	require.NoError(t, registry.RegisterAgent(&fnAgent{name: "researcher", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Ok(map[string]interface{}{"findings": "x"}, 0, nil)
	}}))
	require.NoError(t, registry.RegisterAgent(&fnAgent{name: "writer", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		prior, _ := input.Get("research")
		return core.Ok(map[string]interface{}{"doc": prior}, 0, nil)
	}}))

	def := WorkflowDefinition{
		ID:   "wf-1",
		Name: "research-then-write",
		Steps: []WorkflowStep{
			{ID: "research", AgentName: "researcher", TaskType: core.TaskTypeResearch, Prompt: "find stuff"},
			{ID: "write", AgentName: "writer", TaskType: core.TaskTypeDocumentation, Prompt: "write it up"},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(def))

	result := engine.Execute(context.Background(), "wf-1", map[string]interface{}{"topic": "go"})
	require.True(t, result.IsOk())

	output := result.Data.(map[string]interface{})
	assert.Equal(t, "go", output["topic"])
	assert.Equal(t, map[string]interface{}{"findings": "x"}, output["research"])

	writeOutput := output["write"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"findings": "x"}, writeOutput["doc"])

	assert.Equal(t, 2, result.Metadata["totalSteps"])
}

func TestEngine_StepFailureAbortsWorkflow(t *testing.T) {
	engine, registry := newTestEngine(t, nil)

	require.NoError(t, registry.RegisterAgent(&fnAgent{name: "ok-step", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Ok(map[string]interface{}{"a": 1}, 0, nil)
	}}))
	require.NoError(t, registry.RegisterAgent(&fnAgent{name: "bad-step", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Err("boom", "validation: malformed", core.CategoryValidation, false, 0, nil)
	}}))
	require.NoError(t, registry.RegisterAgent(&fnAgent{name: "never-reached", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		t.Fatal("this step must never run")
		return core.AgentResult{}
	}}))

	def := WorkflowDefinition{
		ID: "wf-fail",
		Steps: []WorkflowStep{
			{ID: "s1", AgentName: "ok-step"},
			{ID: "s2", AgentName: "bad-step"},
			{ID: "s3", AgentName: "never-reached"},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(def))

	result := engine.Execute(context.Background(), "wf-fail", map[string]interface{}{})
	assert.False(t, result.IsOk())
	assert.Equal(t, "step_execution_failed", result.Code)
	assert.Equal(t, "s2", result.Metadata["failedStep"])

	history := engine.History()
	require.Len(t, history, 1)
	assert.Equal(t, WorkflowFailed, history[0].Status)
}

func TestEngine_MissingAgentAtStepDispatchFailsWorkflow(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	def := WorkflowDefinition{
		ID:    "wf-missing-agent",
		Steps: []WorkflowStep{{ID: "s1", AgentName: "nonexistent"}},
	}
	require.NoError(t, engine.RegisterWorkflow(def))

	result := engine.Execute(context.Background(), "wf-missing-agent", map[string]interface{}{})
	assert.False(t, result.IsOk())
	assert.Equal(t, "step_execution_failed", result.Code)
}

func TestEngine_DuplicateWorkflowIDRejected(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	def := WorkflowDefinition{ID: "dup"}
	require.NoError(t, engine.RegisterWorkflow(def))
	err := engine.RegisterWorkflow(def)
	require.Error(t, err)
	assert.True(t, core.IsStateError(err))
}

func TestEngine_UnknownWorkflowIDIsValidationError(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	result := engine.Execute(context.Background(), "ghost", map[string]interface{}{})
	assert.False(t, result.IsOk())
	assert.Equal(t, core.CategoryValidation, result.Category)
}

func TestEngine_PublishesLifecycleEvents(t *testing.T) {
	bus := eventbus.New(nil)
	collector := newCollector()
	bus.Subscribe(collector)
	engine, registry := newTestEngine(t, bus)

	require.NoError(t, registry.RegisterAgent(&fnAgent{name: "a", run: func(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
		return core.Ok(nil, 0, nil)
	}}))
	require.NoError(t, engine.RegisterWorkflow(WorkflowDefinition{ID: "wf", Steps: []WorkflowStep{{ID: "s1", AgentName: "a"}}}))

	engine.Execute(context.Background(), "wf", map[string]interface{}{})

	var sawStarted, sawCompleted bool
	for _, e := range drainAll(collector, 4) {
		switch e.Kind {
		case eventbus.WorkflowStarted:
			sawStarted = true
		case eventbus.WorkflowCompleted:
			sawCompleted = true
		}
	}
	assert.True(t, sawStarted)
	assert.True(t, sawCompleted)
}

func drainAll(c *eventCollector, n int) []eventbus.Event {
	var out []eventbus.Event
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case e := <-c.events:
			out = append(out, e)
		case <-deadline:
			return out
		}
	}
	return out
}
