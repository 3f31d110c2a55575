// Package scheduler implements C9, the task scheduler: an external-facing
// priority queue in front of the orchestrator that a single consumer
// drains and routes by task type to the agent registry or workflow
// engine.
//
// Grounded on aosanya-CodeValdCortex's internal/task.Scheduler: the same
// container/heap priority queue (priority first, submission order as
// tiebreak), a tasks-by-id map for O(1) cancel/lookup, and a bounded
// result history. Narrowed from the teacher's auto-scaling worker pool
// (dispatcher + N workers + idle-timeout scale-down) to the single-
// consumer worker spec §4.9/§5 specifies: one goroutine pops the queue
// head in order, but the work it dispatches runs on its own path so a
// slow provider call never blocks the next pop.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/eventbus"
)

// TaskType is the closed vocabulary spec §3 names for scheduler-level
// tasks (distinct from C5's model-router TaskType, which classifies a
// provider request rather than a queued unit of work).
type TaskType string

const (
	TaskCode          TaskType = "code"
	TaskResearch      TaskType = "research"
	TaskDocumentation TaskType = "documentation"
	TaskAnalysis      TaskType = "analysis"
	TaskWorkflow      TaskType = "workflow"
)

// Priority is the closed vocabulary spec §3/§4.9 names, ordered highest
// first for the priority queue.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// PriorityPtr returns a pointer to p, for populating Request.Priority's
// optional field with a literal (e.g. Request{Priority: PriorityPtr(PriorityHigh)}).
func PriorityPtr(p Priority) *Priority { return &p }

// Status is the closed vocabulary getStatus reports (spec §4.9).
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusNotFound  Status = "not_found"
)

// devToolsAgentName is the registry name the code façade dispatches to
// when a submit request names no explicit agent (spec §4.9: "code → an
// internal devTools façade or direct agent dispatch, both surface
// through C6").
const devToolsAgentName = "devTools"

// Request is what Submit accepts (spec §3's Task, pre-admission).
type Request struct {
	Type TaskType
	// Priority is optional; nil means "absent" and Submit assigns
	// PriorityMedium per spec §4.9's "assign default priority=medium if
	// absent." A caller that means PriorityLow must set it explicitly
	// (via PriorityPtr) — Priority's own zero value is PriorityLow, which
	// is why a plain Priority field can't distinguish "unset" from "low".
	Priority *Priority
	// AgentName names the registered agent to dispatch to for code,
	// research, documentation, and analysis tasks.
	AgentName string
	// WorkflowID names the registered workflow to invoke for workflow
	// tasks.
	WorkflowID string
	Input      map[string]interface{}
	Deadline   time.Time
	Metadata   map[string]interface{}
}

// Task is the admitted, queued form of a Request (spec §3).
type Task struct {
	ID         string
	Type       TaskType
	Priority   Priority
	AgentName  string
	WorkflowID string
	Input      map[string]interface{}
	Deadline   time.Time
	Metadata   map[string]interface{}
	SubmittedAt time.Time

	sequence int64
}

// Result is the TaskResult record spec §4.9 names, kept in the bounded
// history after a task leaves the active map.
type Result struct {
	ID        string
	Status    Status
	Data      interface{}
	Err       string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// HistoryStore mirrors completed TaskResult records to external storage
// (spec §9 Open Question 3: "operators needing durability must bolt on
// external storage"). The scheduler's own bounded in-memory history
// remains authoritative for GetStatus/GetResult; a store is a best-effort
// side mirror and its failures never block task completion.
type HistoryStore interface {
	Save(ctx context.Context, result Result) error
}

// Dispatcher is the subset of the orchestrator layer the scheduler needs:
// agent delegation (C6) and workflow execution (C7). Accepting it as an
// interface keeps this package free of an import-cycle-prone dependency
// on the concrete orchestrator.Registry/Engine types, and lets tests
// substitute a fake.
type Dispatcher interface {
	Delegate(ctx context.Context, agentName string, input map[string]interface{}) core.AgentResult
	ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]interface{}) core.AgentResult
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].sequence < h[j].sequence
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*Task))
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler is C9.
type Scheduler struct {
	dispatcher Dispatcher
	bus        *eventbus.Bus
	logger     core.Logger

	bound atomic.Int64

	mu       sync.Mutex
	cond     *sync.Cond
	queue    taskHeap
	queued   map[string]*Task
	active   map[string]*Task
	sequence int64
	stopped  bool

	historyMu    sync.Mutex
	history      []Result
	historyIndex map[string]*Result
	historyBound int
	historyStore HistoryStore

	wg sync.WaitGroup
}

// SetHistoryStore attaches an external mirror for completed TaskResult
// records. It may be called once before Submit is used; nil disables
// mirroring (the default).
func (s *Scheduler) SetHistoryStore(store HistoryStore) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.historyStore = store
}

// New constructs a Scheduler and starts its single consumer goroutine.
// bound caps queue depth (spec §4.9, default 10,000); historyBound caps
// retained TaskResult records.
func New(dispatcher Dispatcher, bus *eventbus.Bus, logger core.Logger, bound, historyBound int) *Scheduler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if bound <= 0 {
		bound = 10000
	}
	if historyBound <= 0 {
		historyBound = 1000
	}
	s := &Scheduler{
		dispatcher:   dispatcher,
		bus:          bus,
		logger:       logger,
		queued:       make(map[string]*Task),
		active:       make(map[string]*Task),
		historyIndex: make(map[string]*Result),
		historyBound: historyBound,
	}
	s.bound.Store(int64(bound))
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(1)
	go s.consume()
	return s
}

// Stop halts the consumer goroutine. Queued and active tasks are left as
// is; it is meant for test and process-shutdown use.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit mints a task id, assigns default priority if absent, and inserts
// the task into the queue just before the first strictly-lower-priority
// task (spec §4.9) — the FIFO-within-priority ordering container/heap's
// tiebreak-by-sequence gives automatically. Returns a system/retryable
// error if the queue is at its bound.
func (s *Scheduler) Submit(req Request) (string, error) {
	s.mu.Lock()
	if int64(len(s.queue)) >= s.bound.Load() {
		s.mu.Unlock()
		return "", fmt.Errorf("scheduler: %w", core.ErrQueueFull)
	}

	id := newTaskID()
	priority := PriorityMedium
	if req.Priority != nil {
		priority = *req.Priority
	}
	task := &Task{
		ID:          id,
		Type:        req.Type,
		Priority:    priority,
		AgentName:   req.AgentName,
		WorkflowID:  req.WorkflowID,
		Input:       req.Input,
		Deadline:    req.Deadline,
		Metadata:    req.Metadata,
		SubmittedAt: time.Now(),
		sequence:    s.sequence,
	}
	s.sequence++

	heap.Push(&s.queue, task)
	s.queued[id] = task
	// Published before the lock is released so the consumer's taskStarted
	// for this task cannot precede it.
	s.publish(eventbus.TaskSubmitted, id, map[string]interface{}{"type": string(req.Type), "priority": int(priority)})
	s.cond.Signal()
	s.mu.Unlock()
	return id, nil
}

// Cancel succeeds only while the task is still queued (spec §4.9); active
// tasks are not cancellable at this layer.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, queued := s.queued[id]
	if !queued {
		if _, active := s.active[id]; active {
			return fmt.Errorf("scheduler: %w", core.ErrNotCancelable)
		}
		return fmt.Errorf("scheduler: %w", core.ErrTaskNotFound)
	}

	for i, t := range s.queue {
		if t.ID == id {
			heap.Remove(&s.queue, i)
			break
		}
	}
	delete(s.queued, id)
	s.publish(eventbus.TaskCancelled, id, nil)
	_ = task
	return nil
}

// GetStatus reports a task's lifecycle position (spec §4.9).
func (s *Scheduler) GetStatus(id string) Status {
	s.mu.Lock()
	if _, ok := s.queued[id]; ok {
		s.mu.Unlock()
		return StatusQueued
	}
	if _, ok := s.active[id]; ok {
		s.mu.Unlock()
		return StatusActive
	}
	s.mu.Unlock()

	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if r, ok := s.historyIndex[id]; ok {
		return r.Status
	}
	return StatusNotFound
}

// GetResult returns the recorded TaskResult, or nil if the task has not
// completed (or never existed).
func (s *Scheduler) GetResult(id string) *Result {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	r, ok := s.historyIndex[id]
	if !ok {
		return nil
	}
	copyResult := *r
	return &copyResult
}

// QueueDepth reports the current number of queued (not yet active)
// tasks — used by C10's "queue depth exceeds 80% of bound" rule.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Bound reports the configured queue bound.
func (s *Scheduler) Bound() int { return int(s.bound.Load()) }

// SetBound updates the queue bound for future Submit calls (spec §4.12's
// hot-reloadable queue bound). It does not evict or reject tasks already
// queued above the new bound.
func (s *Scheduler) SetBound(n int) {
	if n <= 0 {
		return
	}
	s.bound.Store(int64(n))
}

// ErrorRate reports the fraction of failed results over the retained
// history — used by C10's "task error rate over the last hour" rule.
// This scheduler's bounded history is a size-based window (the last
// historyBound results), not a time-based one.
func (s *Scheduler) ErrorRate() float64 {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if len(s.history) == 0 {
		return 0
	}
	var failed int
	for _, r := range s.history {
		if r.Status == StatusFailed {
			failed++
		}
	}
	return float64(failed) / float64(len(s.history))
}

func (s *Scheduler) consume() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped && len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		task := heap.Pop(&s.queue).(*Task)
		delete(s.queued, task.ID)
		s.active[task.ID] = task
		s.mu.Unlock()

		s.publish(eventbus.TaskStarted, task.ID, map[string]interface{}{"type": string(task.Type)})
		go s.run(task)
	}
}

func (s *Scheduler) run(task *Task) {
	start := time.Now()
	ctx := context.Background()
	if !task.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, task.Deadline)
		defer cancel()
	}

	result := s.dispatch(ctx, task)

	s.mu.Lock()
	delete(s.active, task.ID)
	s.mu.Unlock()

	end := time.Now()
	taskResult := Result{ID: task.ID, StartTime: start, EndTime: end, Duration: end.Sub(start)}
	if result.IsOk() {
		taskResult.Status = StatusCompleted
		taskResult.Data = result.Data
	} else {
		taskResult.Status = StatusFailed
		taskResult.Err = result.Message
	}
	s.recordHistory(taskResult)

	if result.IsOk() {
		s.publish(eventbus.TaskCompleted, task.ID, map[string]interface{}{"duration": taskResult.Duration})
	} else {
		s.publish(eventbus.TaskFailed, task.ID, map[string]interface{}{"code": result.Code, "category": string(result.Category)})
	}
}

// dispatch routes a task by type (spec §4.9): code to the devTools
// façade (or an explicitly named agent), research/documentation/analysis
// to the matching specialized agent, workflow to the workflow engine.
func (s *Scheduler) dispatch(ctx context.Context, task *Task) core.AgentResult {
	switch task.Type {
	case TaskWorkflow:
		return s.dispatcher.ExecuteWorkflow(ctx, task.WorkflowID, task.Input)
	case TaskCode:
		agentName := task.AgentName
		if agentName == "" {
			agentName = devToolsAgentName
		}
		return s.dispatcher.Delegate(ctx, agentName, task.Input)
	case TaskResearch, TaskDocumentation, TaskAnalysis:
		return s.dispatcher.Delegate(ctx, task.AgentName, task.Input)
	default:
		return core.Err("unknown_task_type", fmt.Sprintf("unrecognized task type %q", task.Type), core.CategoryValidation, false, 0, nil)
	}
}

func (s *Scheduler) recordHistory(r Result) {
	s.historyMu.Lock()
	s.history = append(s.history, r)
	if len(s.history) > s.historyBound {
		trimmed := make([]Result, s.historyBound)
		copy(trimmed, s.history[len(s.history)-s.historyBound:])
		s.history = trimmed
	}
	s.historyIndex = make(map[string]*Result, len(s.history))
	for i := range s.history {
		s.historyIndex[s.history[i].ID] = &s.history[i]
	}
	store := s.historyStore
	s.historyMu.Unlock()

	if store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(ctx, r); err != nil {
			s.logger.Warn("history store mirror failed", map[string]interface{}{"taskId": r.ID, "error": err.Error()})
		}
	}()
}

func (s *Scheduler) publish(kind eventbus.EventTag, subject string, payload map[string]interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Kind: kind, Subject: subject, Payload: payload})
}

func newTaskID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 8)
	for i := range suffix {
		suffix[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return "task_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + string(suffix)
}
