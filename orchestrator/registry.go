// Package orchestrator implements C6 (the agent registry and delegator),
// C7 (the workflow engine), and C8 (the smart router) — the layer that
// sits between the task scheduler and the per-agent execution envelope.
//
// Grounded on itsneelabh-gomind's core/discovery.go MockDiscovery: a
// mutex-guarded map keyed by name, register/unregister/find methods, copies
// returned to callers rather than live pointers into the map. That shape is
// reused here for a registry whose value is an agent plus its dedicated
// breaker and metrics, instead of a service registration record.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexuskernel/orchestrator/agent"
	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/eventbus"
	"github.com/nexuskernel/orchestrator/resilience"
)

// AgentHealth is the derived status getAgentStatus reports (spec §4.6).
type AgentHealth string

const (
	AgentHealthy   AgentHealth = "healthy"
	AgentDegraded  AgentHealth = "degraded"
	AgentUnhealthy AgentHealth = "unhealthy"
)

// AgentStatus is what GetAgentStatus returns.
type AgentStatus struct {
	Exists  bool
	Metrics resilience.Snapshot
	Health  AgentHealth
}

type registration struct {
	agent    agent.Agent
	envelope *agent.Envelope
	breaker  core.CircuitBreaker
	metrics  *resilience.Metrics
}

// Registry is C6: maps agent name to agent instance, and owns the
// per-agent breaker and metrics pair alongside it (spec §3's
// "Relationships: C6 owns agent descriptors; C3 owns per-agent metrics
// keyed by the same name. C2 owns a breaker per agent, also keyed by
// name. Deleting an agent must atomically remove all three.").
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registration

	bus    *eventbus.Bus
	logger core.Logger

	envelopeTimeout   time.Duration
	defaultRetry      core.RetryPolicy
	breakerConfig     core.BreakerConfig
	metricsWindowSize int
}

// New constructs an empty Registry. The supplied config values become the
// default envelope timeout, retry policy, breaker config, and metrics
// window size for every agent registered afterward.
func New(bus *eventbus.Bus, logger core.Logger, envelopeTimeout time.Duration, defaultRetry core.RetryPolicy, breakerConfig core.BreakerConfig, metricsWindowSize int) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{
		entries:           make(map[string]*registration),
		bus:               bus,
		logger:            logger,
		envelopeTimeout:   envelopeTimeout,
		defaultRetry:      defaultRetry,
		breakerConfig:     breakerConfig,
		metricsWindowSize: metricsWindowSize,
	}
}

// RegisterAgent inserts a by name, initializing a dedicated breaker and
// metrics entry. Registering a name that already exists is rejected (spec
// §4.6).
func (r *Registry) RegisterAgent(a agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.entries[name]; exists {
		return &core.FrameworkError{Op: "registry.RegisterAgent", Kind: "agent", ID: name, Err: core.ErrAgentAlreadyExists}
	}

	breaker := resilience.New(core.BreakerParams{Name: name, Config: r.breakerConfig}, func(n string, from, to core.BreakerState) {
		var tag eventbus.EventTag
		switch to {
		case core.BreakerOpen:
			tag = eventbus.BreakerOpened
		case core.BreakerHalfOpen:
			tag = eventbus.BreakerHalfOpen
		case core.BreakerClosed:
			tag = eventbus.BreakerClosed
		default:
			return
		}
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{Kind: tag, Subject: n, Payload: map[string]interface{}{"from": string(from), "to": string(to)}})
		}
	})
	metrics := resilience.NewMetrics(r.metricsWindowSize)

	r.entries[name] = &registration{
		agent:    a,
		envelope: agent.New(a, breaker, metrics, r.bus, r.logger, r.envelopeTimeout, r.defaultRetry),
		breaker:  breaker,
		metrics:  metrics,
	}
	return nil
}

// UnregisterAgent removes the agent, its breaker, and its metrics
// atomically (spec §4.6).
func (r *Registry) UnregisterAgent(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return &core.FrameworkError{Op: "registry.UnregisterAgent", Kind: "agent", ID: name, Err: core.ErrAgentNotFound}
	}
	delete(r.entries, name)
	return nil
}

// Delegate looks up name and forwards input to its envelope. A missing
// name returns a validation-class, non-retryable AgentResult rather than a
// Go error, matching spec §4.6's "forwards to C4" contract: delegate never
// fails the caller's call stack, it reports failure through AgentResult.
func (r *Registry) Delegate(ctx context.Context, name string, input agent.Input) core.AgentResult {
	r.mu.RLock()
	entry, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return core.Err("agent_not_found", fmt.Sprintf("no agent registered under name %q", name), core.CategoryValidation, false, 0, map[string]interface{}{"agentName": name})
	}
	return entry.envelope.Invoke(ctx, input)
}

// GetAgentStatus reports existence, a metrics snapshot, and a derived
// health classification (spec §4.6): healthy iff closed and
// errorRate<0.1; degraded iff half-open or errorRate in [0.1,0.3];
// unhealthy otherwise.
func (r *Registry) GetAgentStatus(name string) AgentStatus {
	r.mu.RLock()
	entry, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return AgentStatus{Exists: false}
	}

	snapshot := entry.metrics.Snapshot()
	state := entry.breaker.State()
	return AgentStatus{Exists: true, Metrics: snapshot, Health: classifyAgentHealth(state, snapshot.ErrorRate)}
}

func classifyAgentHealth(state core.BreakerState, errorRate float64) AgentHealth {
	switch {
	case state == core.BreakerClosed && errorRate < 0.1:
		return AgentHealthy
	case state == core.BreakerHalfOpen, errorRate >= 0.1 && errorRate <= 0.3:
		return AgentDegraded
	default:
		return AgentUnhealthy
	}
}

// Names returns every registered agent name, for health aggregation and
// smart-router classification-vocabulary construction.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// BreakerStates returns the current breaker state of every registered
// agent, keyed by name — used by C10's "any agent breaker is open" rule.
func (r *Registry) BreakerStates() map[string]core.BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]core.BreakerState, len(r.entries))
	for name, entry := range r.entries {
		out[name] = entry.breaker.State()
	}
	return out
}
