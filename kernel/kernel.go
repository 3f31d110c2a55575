// Package kernel wires C1-C12 into the single constructed value spec
// §4.12/§9 calls for: no module-level singletons, no global mutable
// state — a Kernel is built once via New(opts...) and every subsystem
// (registry, workflow engine, model router, scheduler, health
// aggregator, event bus) hangs off it by composition.
//
// Grounded on the wiring shape itsneelabh-gomind's examples/orchestrator
// main.go demonstrates (construct logger, AI client, discovery,
// communicator, router, then the orchestrator itself, in dependency
// order) but adapted from a main-package example into a reusable
// constructor a hosting process calls, per spec §6's "the kernel is a
// library" lifecycle note.
package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuskernel/orchestrator/agent"
	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/eventbus"
	"github.com/nexuskernel/orchestrator/health"
	"github.com/nexuskernel/orchestrator/model"
	"github.com/nexuskernel/orchestrator/orchestrator"
	"github.com/nexuskernel/orchestrator/scheduler"
)

// Kernel is the constructed orchestration runtime: the registry (C6),
// workflow engine (C7), smart router (C8), model router (C5), task
// scheduler (C9), health aggregator (C10), and event bus (C11), built
// from one Config (C12) and exposed as one value a hosting process holds.
type Kernel struct {
	bus       *eventbus.Bus
	registry  *orchestrator.Registry
	workflows *orchestrator.Engine
	smart     *orchestrator.SmartRouter
	models    *model.Router
	scheduler *scheduler.Scheduler
	health    *health.Aggregator

	logger core.Logger

	mu  sync.RWMutex
	cfg *core.Config
}

// New constructs a Kernel from functional options over core.DefaultConfig
// (spec §4.12). The scheduler's single-consumer worker starts immediately;
// callers register agents, providers, and workflows before submitting
// work, though registration remains safe at any point in the Kernel's
// lifetime.
func New(opts ...core.Option) (*Kernel, error) {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	bus := eventbus.New(cfg.Logger)
	registry := orchestrator.New(bus, cfg.Logger, cfg.EnvelopeTimeout, cfg.Retry, cfg.Breaker, cfg.MetricsWindowSize)
	workflows := orchestrator.NewEngine(registry, bus, cfg.Logger, cfg.WorkflowHistoryBound)
	models := model.New(cfg.ProviderPreferences, cfg.ProviderTimeout, cfg.ProbeCacheWindow, cfg.Logger, cfg.Telemetry)
	smart := orchestrator.NewSmartRouter(registry, models)

	k := &Kernel{
		bus:       bus,
		registry:  registry,
		workflows: workflows,
		smart:     smart,
		models:    models,
		health:    nil,
		logger:    cfg.Logger,
		cfg:       cfg,
	}

	k.scheduler = scheduler.New(&dispatcherAdapter{registry: registry, workflows: workflows}, bus, cfg.Logger, cfg.QueueBound, cfg.TaskHistoryBound)
	k.health = health.New(models, registry, k.scheduler, k.providerClasses(), bus, cfg.Logger)

	return k, nil
}

// providerClasses returns every capability class named in the configured
// preference map, deduplicated — the set health.New's Check walks every
// time it asks the model router "is this class fully down". It is called
// once, at construction, from the preference map given to New; a later
// Reconfigure that changes the preference map does not change the set of
// classes the health aggregator walks.
func (k *Kernel) providerClasses() []core.ProviderClass {
	seen := make(map[core.ProviderClass]bool)
	var out []core.ProviderClass
	for _, classes := range k.cfg.ProviderPreferences {
		for _, c := range classes {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// dispatcherAdapter satisfies scheduler.Dispatcher over the registry and
// workflow engine, translating the scheduler's map[string]interface{}
// input shape into the registry's agent.Input envelope. It is the one
// seam where C9 reaches into C6/C7, kept outside both packages to avoid
// an import cycle (scheduler must not depend on orchestrator).
type dispatcherAdapter struct {
	registry  *orchestrator.Registry
	workflows *orchestrator.Engine
}

func (d *dispatcherAdapter) Delegate(ctx context.Context, agentName string, input map[string]interface{}) core.AgentResult {
	return d.registry.Delegate(ctx, agentName, agent.Input{Data: input})
}

func (d *dispatcherAdapter) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]interface{}) core.AgentResult {
	return d.workflows.Execute(ctx, workflowID, input)
}

// RegisterAgent registers a onto the kernel's agent registry (C6).
func (k *Kernel) RegisterAgent(a agent.Agent) error {
	return k.registry.RegisterAgent(a)
}

// UnregisterAgent removes an agent, its breaker, and its metrics (C6).
func (k *Kernel) UnregisterAgent(name string) error {
	return k.registry.UnregisterAgent(name)
}

// Delegate routes input to the named agent through the envelope (C4/C6).
func (k *Kernel) Delegate(ctx context.Context, name string, input agent.Input) core.AgentResult {
	return k.registry.Delegate(ctx, name, input)
}

// AgentStatus reports a registered agent's existence, metrics, and derived
// health (C6).
func (k *Kernel) AgentStatus(name string) orchestrator.AgentStatus {
	return k.registry.GetAgentStatus(name)
}

// RegisterWorkflow adds a workflow definition (C7); duplicate ids are
// rejected.
func (k *Kernel) RegisterWorkflow(def orchestrator.WorkflowDefinition) error {
	return k.workflows.RegisterWorkflow(def)
}

// UnregisterWorkflow removes a workflow definition; missing ids are a
// no-op (C7/spec §9).
func (k *Kernel) UnregisterWorkflow(id string) {
	k.workflows.UnregisterWorkflow(id)
}

// ExecuteWorkflow runs workflowId's steps against input (C7).
func (k *Kernel) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]interface{}) core.AgentResult {
	return k.workflows.Execute(ctx, workflowID, input)
}

// WorkflowHistory returns a snapshot of retained WorkflowExecution
// records.
func (k *Kernel) WorkflowHistory() []*orchestrator.WorkflowExecution {
	return k.workflows.History()
}

// RegisterProvider adds a provider client under a capability class to the
// model router (C5).
func (k *Kernel) RegisterProvider(id string, class core.ProviderClass, client core.AIClient) {
	k.models.RegisterProvider(id, class, client)
}

// ExecuteModel performs a direct model-router call for taskType (C5),
// bypassing agent dispatch — used by callers that want a raw completion
// rather than a registered agent's behavior.
func (k *Kernel) ExecuteModel(ctx context.Context, taskType core.TaskType, prompt string, opts model.Options) (model.Result, error) {
	return k.models.Execute(ctx, taskType, prompt, opts)
}

// ModelStats reports per-provider availability/cost/token tallies (C5).
func (k *Kernel) ModelStats() map[string]model.Stats {
	return k.models.GetModelStats()
}

// SmartExecute classifies freeText against registered agent names and
// dispatches, falling back to a direct model-router call (C8).
func (k *Kernel) SmartExecute(ctx context.Context, freeText string) core.AgentResult {
	return k.smart.SmartExecute(ctx, freeText)
}

// Submit admits a task request onto the scheduler's priority queue (C9).
func (k *Kernel) Submit(req scheduler.Request) (string, error) {
	return k.scheduler.Submit(req)
}

// Cancel cancels a still-queued task (C9).
func (k *Kernel) Cancel(id string) error {
	return k.scheduler.Cancel(id)
}

// TaskStatus reports a task's lifecycle position (C9).
func (k *Kernel) TaskStatus(id string) scheduler.Status {
	return k.scheduler.GetStatus(id)
}

// TaskResult returns a completed task's recorded result, or nil (C9).
func (k *Kernel) TaskResult(id string) *scheduler.Result {
	return k.scheduler.GetResult(id)
}

// UseHistoryStore attaches an external mirror for completed task results
// (spec §9 Open Question 3) — e.g. a scheduler.RedisHistoryStore.
func (k *Kernel) UseHistoryStore(store scheduler.HistoryStore) {
	k.scheduler.SetHistoryStore(store)
}

// Health evaluates the tri-state rollup of provider, breaker, and queue
// state (C10).
func (k *Kernel) Health() health.Snapshot {
	return k.health.Check()
}

// Subscribe registers sub on the kernel's event bus (C11).
func (k *Kernel) Subscribe(sub eventbus.Subscriber) eventbus.Subscription {
	return k.bus.Subscribe(sub)
}

// Stop halts the scheduler's consumer goroutine. Queued and active tasks
// are left as-is — they are lost on process exit per spec §1's
// non-durability guarantee, and a caller wanting a graceful drain should
// stop submitting, poll TaskStatus for the active set up to its own grace
// deadline, and only then call Stop.
func (k *Kernel) Stop() {
	k.scheduler.Stop()
}

// Reconfigure applies opts to a copy of the live configuration, validates
// it, and stores it as the kernel's Config. Of the new values it applies
// two: the model router's provider preference map and the scheduler's
// queue bound, both of which take effect for later calls.
//
// Retry defaults, breaker thresholds, envelope timeout, and metrics window
// size are stored in the new Config but not applied: the registry keeps
// the values it was given in New and uses them for every agent, including
// agents registered after Reconfigure. Already-registered agents' envelopes
// and breakers are not rebuilt.
func (k *Kernel) Reconfigure(opts ...core.Option) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	next := k.cfg.Clone()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(next); err != nil {
			return fmt.Errorf("kernel: reconfigure: %w", err)
		}
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("kernel: reconfigure: %w", err)
	}

	k.models.SetReconfiguredPreferences(next.ProviderPreferences)
	k.scheduler.SetBound(next.QueueBound)
	k.cfg = next
	return nil
}

// Config returns a copy of the kernel's current configuration snapshot.
func (k *Kernel) Config() *core.Config {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cfg.Clone()
}
