// Package health implements C10, the health aggregator: a pull-based
// rollup of provider availability, agent breaker state, and task queue
// pressure into a single {status, components} snapshot, published on
// change via the event bus as healthChanged.
//
// Grounded on itsneelabh-gomind's telemetry.GetHealth/HealthHandler: a
// plain struct snapshot assembled from the live state of other
// subsystems rather than a subsystem that tracks its own health.
package health

import (
	"sync"

	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/eventbus"
)

// Status is the closed vocabulary spec §4.10 names.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// degradedErrorRateFloor and unhealthyErrorRate bound the "task error rate
// in (0.1, 0.5]" degraded band; unhealthyErrorRate is also the
// strictly-above threshold for unhealthy.
const (
	degradedErrorRateFloor = 0.1
	unhealthyErrorRate     = 0.5
	unhealthyQueueFraction = 0.8
)

// ComponentStatus reports one subsystem's contribution to the rollup.
type ComponentStatus struct {
	Name   string
	Status Status
	Detail string
}

// Snapshot is the {status, components} value spec §4.10 names.
type Snapshot struct {
	Status     Status
	Components []ComponentStatus
}

// ModelAvailability is the subset of model.Router health needs: whether a
// same-class alternate is available for every class actually in use.
type ModelAvailability interface {
	AllAvailable(class core.ProviderClass) bool
}

// AgentBreakers is the subset of orchestrator.Registry health needs.
type AgentBreakers interface {
	BreakerStates() map[string]core.BreakerState
}

// TaskQueue is the subset of scheduler.Scheduler health needs.
type TaskQueue interface {
	QueueDepth() int
	Bound() int
	ErrorRate() float64
}

// Aggregator is C10.
type Aggregator struct {
	models   ModelAvailability
	agents   AgentBreakers
	tasks    TaskQueue
	classes  []core.ProviderClass
	bus      *eventbus.Bus
	logger   core.Logger

	mu   sync.Mutex
	last Status
}

// New constructs an Aggregator. classes lists every provider class the
// kernel has configured preferences for; Check consults AllAvailable for
// each of them.
func New(models ModelAvailability, agents AgentBreakers, tasks TaskQueue, classes []core.ProviderClass, bus *eventbus.Bus, logger core.Logger) *Aggregator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Aggregator{
		models:  models,
		agents:  agents,
		tasks:   tasks,
		classes: classes,
		bus:     bus,
		logger:  logger,
		last:    StatusHealthy,
	}
}

// Check evaluates the rollup rules (spec §4.10) against live subsystem
// state and returns the current Snapshot. If the overall status changed
// since the last Check, it publishes healthChanged.
func (a *Aggregator) Check() Snapshot {
	components := make([]ComponentStatus, 0, len(a.classes)+2)
	overall := StatusHealthy

	for _, class := range a.classes {
		if a.models == nil {
			continue
		}
		if !a.models.AllAvailable(class) {
			components = append(components, ComponentStatus{Name: "provider:" + string(class), Status: StatusUnhealthy, Detail: "no available candidate in class"})
			overall = worstOf(overall, StatusUnhealthy)
		} else {
			components = append(components, ComponentStatus{Name: "provider:" + string(class), Status: StatusHealthy})
		}
	}

	if a.agents != nil {
		anyOpen := false
		for name, state := range a.agents.BreakerStates() {
			if state == core.BreakerOpen {
				anyOpen = true
				components = append(components, ComponentStatus{Name: "agent:" + name, Status: StatusDegraded, Detail: "breaker open"})
			}
		}
		if anyOpen {
			overall = worstOf(overall, StatusDegraded)
		}
	}

	if a.tasks != nil {
		errorRate := a.tasks.ErrorRate()
		depth, bound := a.tasks.QueueDepth(), a.tasks.Bound()
		queuePressure := bound > 0 && float64(depth) >= unhealthyQueueFraction*float64(bound)

		switch {
		case errorRate > unhealthyErrorRate || queuePressure:
			components = append(components, ComponentStatus{Name: "scheduler", Status: StatusUnhealthy, Detail: "error rate or queue depth over threshold"})
			overall = worstOf(overall, StatusUnhealthy)
		case errorRate > degradedErrorRateFloor:
			components = append(components, ComponentStatus{Name: "scheduler", Status: StatusDegraded, Detail: "elevated task error rate"})
			overall = worstOf(overall, StatusDegraded)
		default:
			components = append(components, ComponentStatus{Name: "scheduler", Status: StatusHealthy})
		}
	}

	for _, c := range components {
		if c.Status == StatusDegraded {
			overall = worstOf(overall, StatusDegraded)
		}
	}

	a.mu.Lock()
	changed := overall != a.last
	a.last = overall
	a.mu.Unlock()

	if changed {
		a.publish(overall)
	}

	return Snapshot{Status: overall, Components: components}
}

func worstOf(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func (a *Aggregator) publish(status Status) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(eventbus.Event{Kind: eventbus.HealthChanged, Subject: "kernel", Payload: map[string]interface{}{"status": string(status)}})
}
