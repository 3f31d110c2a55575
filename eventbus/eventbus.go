// Package eventbus is the in-process publish/subscribe component (C11).
// It is grounded on the goadesign-goa-ai example's runtime/agent/hooks.Bus
// — the same registration-handle-with-Close shape, copy-on-write
// subscriber snapshot, and sync.RWMutex-guarded registry — but diverges on
// delivery semantics where spec §4.11 requires it: the teacher's bus
// delivers synchronously in registration order and halts at the first
// subscriber error, which would let one slow or failing subscriber block
// (or silence delivery to) every other one. Here each subscriber runs on
// an independent path and a subscriber error or panic is caught, logged,
// and never propagated to the publisher or to sibling subscribers.
package eventbus

import (
	"sync"
	"time"

	"github.com/nexuskernel/orchestrator/core"
)

// EventTag is the closed vocabulary spec §6 enumerates.
type EventTag string

const (
	TaskSubmitted  EventTag = "taskSubmitted"
	TaskStarted    EventTag = "taskStarted"
	TaskCompleted  EventTag = "taskCompleted"
	TaskFailed     EventTag = "taskFailed"
	TaskCancelled  EventTag = "taskCancelled"

	ExecutionStarted   EventTag = "executionStarted"
	ExecutionCompleted EventTag = "executionCompleted"
	ExecutionError     EventTag = "executionError"

	WorkflowStarted   EventTag = "workflowStarted"
	WorkflowCompleted EventTag = "workflowCompleted"
	WorkflowFailed    EventTag = "workflowFailed"

	BreakerOpened   EventTag = "breakerOpened"
	BreakerHalfOpen EventTag = "breakerHalfOpen"
	BreakerClosed   EventTag = "breakerClosed"

	HealthChanged EventTag = "healthChanged"
)

// Event is the uniform envelope every publication carries (spec §6: "Each
// event carries at minimum { timestamp, kind, subject, payload }").
type Event struct {
	Timestamp time.Time
	Kind      EventTag
	Subject   string // agentName / workflowId / taskId
	Payload   map[string]interface{}
}

// Subscriber reacts to published events. A panic in HandleEvent is
// recovered and logged, never returned to the publisher and never used to
// stop fan-out to other subscribers.
type Subscriber interface {
	HandleEvent(event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(event Event)

func (f SubscriberFunc) HandleEvent(event Event) { f(event) }

// Subscription is returned by Subscribe; Close unregisters the subscriber.
// Close is idempotent and safe to call multiple times.
type Subscription interface {
	Close()
}

// Bus is the standalone, composed event bus spec §9's design notes require
// ("held by composition; components emit by calling a publish method, not
// by extending an emitter base").
type Bus struct {
	logger core.Logger

	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
}

// New constructs a ready-to-use Bus. A nil logger falls back to a no-op.
func New(logger core.Logger) *Bus {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Bus{logger: logger, subscribers: make(map[*subscription]Subscriber)}
}

// subscriberQueueDepth bounds the per-subscriber backlog. A subscriber that
// cannot keep up drops the oldest pending event rather than applying
// backpressure to Publish — Publish must never block the caller.
const subscriberQueueDepth = 256

type subscription struct {
	bus    *Bus
	sub    Subscriber
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
		close(s.done)
	})
}

func (s *subscription) run() {
	for {
		select {
		case event := <-s.events:
			s.deliver(event)
		case <-s.done:
			return
		}
	}
}

func (s *subscription) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.logger.Error("event subscriber panicked", map[string]interface{}{
				"eventKind": string(event.Kind),
				"subject":   event.Subject,
				"panic":     r,
			})
		}
	}()
	s.sub.HandleEvent(event)
}

// Subscribe registers sub and returns a handle to unregister it. Each
// subscription gets its own goroutine and queue, so events reach one
// subscriber in publication order while a slow subscriber cannot delay
// delivery to any other (spec §4.11's "independent path" fan-out).
func (b *Bus) Subscribe(sub Subscriber) Subscription {
	s := &subscription{
		bus:    b,
		sub:    sub,
		events: make(chan Event, subscriberQueueDepth),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	go s.run()
	return s
}

// Publish fans the event out to every currently registered subscriber's
// queue without blocking on subscriber work. Callers must never assume
// Publish waiting implies delivery happened — it is fire-and-forget.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.events <- event:
		default:
			// Queue full: drop the oldest event to admit this one rather
			// than block the publisher.
			select {
			case <-s.events:
			default:
			}
			select {
			case s.events <- event:
			default:
			}
			b.logger.Warn("event subscriber queue full, dropped an event", map[string]interface{}{
				"eventKind": string(event.Kind),
			})
		}
	}
}
