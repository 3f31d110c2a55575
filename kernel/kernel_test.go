package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexuskernel/orchestrator/agent"
	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/health"
	"github.com/nexuskernel/orchestrator/model"
	"github.com/nexuskernel/orchestrator/model/providers/mock"
	"github.com/nexuskernel/orchestrator/orchestrator"
	"github.com/nexuskernel/orchestrator/scheduler"
	"github.com/nexuskernel/orchestrator/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAgent struct{}

func (echoAgent) Name() string    { return "echo" }
func (echoAgent) Version() string { return "1.0.0" }
func (echoAgent) ExecuteCore(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
	msg := input.GetString("msg")
	return core.Ok(map[string]interface{}{"echo": msg}, 0, nil)
}

func TestKernel_HappyPathDelegate(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Stop()

	require.NoError(t, k.RegisterAgent(echoAgent{}))

	result := k.Delegate(context.Background(), "echo", agent.Input{Data: map[string]interface{}{"msg": "hi"}})
	require.True(t, result.IsOk())
	assert.Equal(t, "hi", result.Data.(map[string]interface{})["echo"])
	assert.Equal(t, 1, result.Metadata["attempt"])
}

func TestKernel_DuplicateAgentRegistrationRejected(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Stop()

	require.NoError(t, k.RegisterAgent(echoAgent{}))
	err = k.RegisterAgent(echoAgent{})
	assert.ErrorIs(t, err, core.ErrAgentAlreadyExists)
}

func TestKernel_WorkflowRunsStepsInOrderAndMergesOutput(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Stop()

	require.NoError(t, k.RegisterAgent(echoAgent{}))
	require.NoError(t, k.RegisterWorkflow(orchestrator.WorkflowDefinition{
		ID:   "greet",
		Name: "greet",
		Steps: []orchestrator.WorkflowStep{
			{ID: "s1", AgentName: "echo", TaskType: core.TaskTypePlanning, Prompt: "hi"},
		},
	}))

	result := k.ExecuteWorkflow(context.Background(), "greet", map[string]interface{}{"msg": "hello"})
	require.True(t, result.IsOk())
	out := result.Data.(map[string]interface{})
	assert.Contains(t, out, "s1")
}

func TestKernel_WorkflowHaltsOnFirstStepFailure(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Stop()

	var s3Ran bool
	require.NoError(t, k.RegisterAgent(okAgent{name: "a1"}))
	require.NoError(t, k.RegisterAgent(failAgent{name: "a2"}))
	require.NoError(t, k.RegisterAgent(trackAgent{name: "a3", ran: &s3Ran}))

	require.NoError(t, k.RegisterWorkflow(orchestrator.WorkflowDefinition{
		ID: "w",
		Steps: []orchestrator.WorkflowStep{
			{ID: "s1", AgentName: "a1", TaskType: core.TaskTypePlanning},
			{ID: "s2", AgentName: "a2", TaskType: core.TaskTypePlanning},
			{ID: "s3", AgentName: "a3", TaskType: core.TaskTypePlanning},
		},
	}))

	result := k.ExecuteWorkflow(context.Background(), "w", map[string]interface{}{})
	require.False(t, result.IsOk())
	assert.Equal(t, "step_execution_failed", result.Code)
	assert.Equal(t, "s2", result.Metadata["failedStep"])
	assert.False(t, s3Ran)
}

type okAgent struct{ name string }

func (a okAgent) Name() string    { return a.name }
func (a okAgent) Version() string { return "1.0.0" }
func (a okAgent) ExecuteCore(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
	return core.Ok(map[string]interface{}{"ok": true}, 0, nil)
}

type failAgent struct{ name string }

func (a failAgent) Name() string    { return a.name }
func (a failAgent) Version() string { return "1.0.0" }
func (a failAgent) ExecuteCore(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
	return core.Err("boom", "deliberate failure", core.CategoryExecution, false, 0, nil)
}

type trackAgent struct {
	name string
	ran  *bool
}

func (a trackAgent) Name() string    { return a.name }
func (a trackAgent) Version() string { return "1.0.0" }
func (a trackAgent) ExecuteCore(ctx context.Context, input agent.Input, execCtx agent.ExecutionContext) core.AgentResult {
	*a.ran = true
	return core.Ok(nil, 0, nil)
}

func TestKernel_SmartExecuteFallsBackWithZeroAgents(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Stop()

	k.RegisterProvider("mock-openai", core.ProviderClassOpenAI, mock.New("a haiku about go"))

	result := k.SmartExecute(context.Background(), "write a haiku")
	require.True(t, result.IsOk())
	assert.Equal(t, "modelRouterFallback", result.Metadata["routedVia"])
	assert.Equal(t, "a haiku about go", result.Data.(map[string]interface{})["content"])
}

func TestKernel_ExecuteModelTracesThroughConfiguredTelemetryProvider(t *testing.T) {
	provider := telemetry.New("kernel-test")
	defer provider.Shutdown(context.Background())

	k, err := New(core.WithTelemetry(provider))
	require.NoError(t, err)
	defer k.Stop()

	k.RegisterProvider("mock-openai", core.ProviderClassOpenAI, mock.New("a haiku about go"))

	result, err := k.ExecuteModel(context.Background(), core.TaskTypeResearch, "write a haiku", model.Options{})
	require.NoError(t, err)
	assert.Equal(t, "a haiku about go", result.Content)
}

func TestKernel_SubmitAndTrackTaskLifecycle(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Stop()

	require.NoError(t, k.RegisterAgent(echoAgent{}))

	id, err := k.Submit(scheduler.Request{Type: scheduler.TaskResearch, AgentName: "echo", Input: map[string]interface{}{"msg": "hey"}})
	require.NoError(t, err)

	var status scheduler.Status
	deadline := time.After(2 * time.Second)
	for {
		status = k.TaskStatus(id)
		if status == scheduler.StatusCompleted || status == scheduler.StatusFailed {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("task never completed, last status %v", status)
		case <-time.After(5 * time.Millisecond):
		}
	}

	assert.Equal(t, scheduler.StatusCompleted, status)
	result := k.TaskResult(id)
	require.NotNil(t, result)
	assert.Equal(t, scheduler.StatusCompleted, result.Status)
}

func TestKernel_HealthReflectsBreakerState(t *testing.T) {
	k, err := New(core.WithBreakerConfig(core.BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute, HalfOpenMaxRequests: 1}))
	require.NoError(t, err)
	defer k.Stop()

	require.NoError(t, k.RegisterAgent(failAgent{name: "flaky"}))
	k.Delegate(context.Background(), "flaky", agent.Input{RetryPolicy: &core.RetryPolicy{MaxRetries: 0}})

	snap := k.Health()
	assert.Equal(t, health.StatusDegraded, snap.Status)
}

func TestKernel_ReconfigureUpdatesQueueBoundAndPreferences(t *testing.T) {
	k, err := New(core.WithQueueBound(2))
	require.NoError(t, err)
	defer k.Stop()

	require.NoError(t, k.Reconfigure(core.WithQueueBound(5)))
	assert.Equal(t, 5, k.Config().QueueBound)

	newPrefs := map[core.TaskType][]core.ProviderClass{core.TaskTypeResearch: {core.ProviderClassOpenAI}}
	require.NoError(t, k.Reconfigure(core.WithProviderPreferences(newPrefs)))
	assert.Equal(t, []core.ProviderClass{core.ProviderClassOpenAI}, k.Config().ProviderPreferences[core.TaskTypeResearch])
}

func TestKernel_ReconfigureRejectsInvalidConfig(t *testing.T) {
	k, err := New()
	require.NoError(t, err)
	defer k.Stop()

	err = k.Reconfigure(core.WithQueueBound(-1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))
}
