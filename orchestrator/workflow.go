package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexuskernel/orchestrator/agent"
	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/eventbus"
)

// WorkflowStep is one stage of a WorkflowDefinition (spec §3): it names an
// agent, a task type, and a prompt template. Dependencies on prior steps
// are implicit — each step receives the cumulative context built up so far.
type WorkflowStep struct {
	ID        string
	AgentName string
	TaskType  core.TaskType
	Prompt    string
}

// WorkflowDefinition is a named, ordered list of steps (spec §3/§4.7).
type WorkflowDefinition struct {
	ID          string
	Name        string
	Description string
	Steps       []WorkflowStep
}

// WorkflowStatus is the closed vocabulary spec §3 names for a
// WorkflowExecution.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// StepRecord is the per-step execution record kept inside a
// WorkflowExecution for diagnostics (spec §3: "per-step execution
// records").
type StepRecord struct {
	StepID   string
	Result   core.AgentResult
	Duration time.Duration
}

// WorkflowExecution is one run of a WorkflowDefinition (spec §3).
type WorkflowExecution struct {
	ID          string
	WorkflowID  string
	Status      WorkflowStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Input       map[string]interface{}
	Output      map[string]interface{}
	Error       string
	Steps       []StepRecord
}

// Engine is C7: it runs a WorkflowDefinition's steps in order over the
// registry's Delegate, merging each step's output into a cumulative
// context and publishing lifecycle events (spec §4.7).
//
// Grounded on the same registration-map idiom as Registry, held by
// composition alongside it rather than embedding — the engine references
// the registry, it does not own agent lifetime.
type Engine struct {
	registry *Registry
	bus      *eventbus.Bus
	logger   core.Logger

	mu          sync.RWMutex
	definitions map[string]WorkflowDefinition

	historyMu    sync.Mutex
	history      []*WorkflowExecution
	historyBound int
}

// NewEngine constructs a workflow Engine wired to registry for step
// dispatch. historyBound caps the number of retained WorkflowExecution
// records (spec §3, default 1,000); the oldest is evicted on overflow.
func NewEngine(registry *Registry, bus *eventbus.Bus, logger core.Logger, historyBound int) *Engine {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if historyBound <= 0 {
		historyBound = 1000
	}
	return &Engine{
		registry:     registry,
		bus:          bus,
		logger:       logger,
		definitions:  make(map[string]WorkflowDefinition),
		historyBound: historyBound,
	}
}

// RegisterWorkflow adds def by id. Duplicate ids are rejected (spec
// §4.7's "Registration guard").
func (e *Engine) RegisterWorkflow(def WorkflowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.definitions[def.ID]; exists {
		return &core.FrameworkError{Op: "workflow.RegisterWorkflow", Kind: "workflow", ID: def.ID, Err: core.ErrWorkflowExists}
	}
	e.definitions[def.ID] = def
	return nil
}

// UnregisterWorkflow removes a definition by id. Unlike agent
// unregistration this never fails on a missing id (spec §9: "Deregistration
// is allowed").
func (e *Engine) UnregisterWorkflow(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.definitions, id)
}

func (e *Engine) definition(id string) (WorkflowDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.definitions[id]
	return def, ok
}

// Execute runs workflowId's steps in order against input, following the
// ordered contract of spec §4.7: mint an execution id, publish
// workflowStarted, dispatch each step through the registry merging its
// output into the cumulative context keyed by step id, and on the first
// step failure abort with status=failed without retrying at this layer
// (step-level retry is C4's concern).
func (e *Engine) Execute(ctx context.Context, workflowID string, input map[string]interface{}) core.AgentResult {
	startTime := time.Now()

	def, ok := e.definition(workflowID)
	if !ok {
		return core.Err("workflow_not_found", fmt.Sprintf("no workflow registered under id %q", workflowID), core.CategoryValidation, false, 0, map[string]interface{}{"workflowId": workflowID})
	}

	execID := newWorkflowExecutionID(workflowID)
	execution := &WorkflowExecution{
		ID:         execID,
		WorkflowID: workflowID,
		Status:     WorkflowRunning,
		StartedAt:  startTime,
		Input:      input,
	}
	e.recordHistory(execution)

	e.publish(eventbus.WorkflowStarted, workflowID, map[string]interface{}{
		"executionId": execID,
		"totalSteps":  len(def.Steps),
	})

	cumulative := make(map[string]interface{}, len(input))
	for k, v := range input {
		cumulative[k] = v
	}

	for _, step := range def.Steps {
		stepStart := time.Now()

		stepData := make(map[string]interface{}, len(cumulative)+2)
		for k, v := range cumulative {
			stepData[k] = v
		}
		stepData["prompt"] = step.Prompt
		stepData["taskType"] = string(step.TaskType)

		result := e.registry.Delegate(ctx, step.AgentName, agent.Input{Data: stepData})
		execution.Steps = append(execution.Steps, StepRecord{StepID: step.ID, Result: result, Duration: time.Since(stepStart)})

		if !result.IsOk() {
			execution.Status = WorkflowFailed
			execution.Error = "step_execution_failed"
			execution.CompletedAt = time.Now()
			execution.Duration = execution.CompletedAt.Sub(startTime)
			execution.Output = cumulative

			e.publish(eventbus.WorkflowFailed, workflowID, map[string]interface{}{
				"executionId": execID,
				"failedStep":  step.ID,
				"code":        result.Code,
				"category":    string(result.Category),
			})

			return core.Err("step_execution_failed", fmt.Sprintf("step %q failed: %s", step.ID, result.Message), core.CategoryExecution, false,
				execution.Duration, map[string]interface{}{"workflowId": workflowID, "executionId": execID, "failedStep": step.ID, "partialOutput": cumulative})
		}

		if data, ok := result.Data.(map[string]interface{}); ok {
			cumulative[step.ID] = data
		} else {
			cumulative[step.ID] = result.Data
		}
	}

	execution.Status = WorkflowCompleted
	execution.CompletedAt = time.Now()
	execution.Duration = execution.CompletedAt.Sub(startTime)
	execution.Output = cumulative

	e.publish(eventbus.WorkflowCompleted, workflowID, map[string]interface{}{
		"executionId": execID,
		"duration":    execution.Duration,
	})

	return core.Ok(cumulative, execution.Duration, map[string]interface{}{"workflowId": workflowID, "executionId": execID, "totalSteps": len(def.Steps)})
}

func (e *Engine) recordHistory(execution *WorkflowExecution) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	e.history = append(e.history, execution)
	if len(e.history) > e.historyBound {
		e.history = e.history[len(e.history)-e.historyBound:]
	}
}

// History returns a snapshot of retained WorkflowExecution records, most
// recent last.
func (e *Engine) History() []*WorkflowExecution {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	out := make([]*WorkflowExecution, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) publish(kind eventbus.EventTag, subject string, payload map[string]interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Kind: kind, Subject: subject, Payload: payload})
}
