// Package model implements C5, the capability-aware model router: a
// registry of provider clients keyed by capability class, a per-task-type
// preference map, provider availability tracking with a cached probe
// window, and an outbound Execute with its own timeout and a single
// structural retry per candidate for system-class failures.
//
// Grounded on itsneelabh-gomind's ai package (provider registry, AIClient
// adapter contract, OpenAI/Anthropic clients) but narrowed to the
// capability-class-and-task-type dispatcher spec §4.5 specifies, in place
// of the teacher's env-var-driven multi-provider-alias configuration
// surface — that configuration richness serves a different product
// (a general-purpose AI client for tool authors), not this kernel's
// closed task-type preference table.
package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexuskernel/orchestrator/core"
	"github.com/nexuskernel/orchestrator/resilience"
)

// Options carries the per-call knobs spec §4.5 names.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	Model        string
}

// Result is what Execute returns on success (spec §4.5's
// "{ content, provider, usage, executionTime }").
type Result struct {
	Content       string
	Provider      string
	Usage         core.TokenUsage
	ExecutionTime time.Duration
}

// Error is the classified failure Execute returns when every candidate is
// exhausted, using the same closed vocabulary as C1 (spec §4.1).
type Error struct {
	Code      string
	Message   string
	Category  core.ResultCategory
	Retryable bool
}

func (e *Error) Error() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

type registeredProvider struct {
	id       string
	class    core.ProviderClass
	client   core.AIClient
	breaker  core.CircuitBreaker
	mu       sync.Mutex
	available bool
	lastProbe time.Time
	failedAt  time.Time
	rollingCostUSD   float64
	rollingInTokens  int64
	rollingOutTokens int64
}

// Stats is what GetModelStats reports per provider (spec §4.5).
type Stats struct {
	Available     bool
	LastProbe     time.Time
	RollingCost   float64
	RollingTokens int64
}

// Router is C5. Zero value is not usable; construct with New.
type Router struct {
	mu        sync.RWMutex
	providers map[string]*registeredProvider
	byClass   map[core.ProviderClass][]*registeredProvider

	preferences map[core.TaskType][]core.ProviderClass

	timeout          time.Duration
	probeCacheWindow time.Duration

	logger    core.Logger
	telemetry core.Telemetry
}

// New constructs a Router. preferences should come from
// core.DefaultProviderPreferences() unless the caller overrides it via
// C12's hot-reloadable provider preference map.
func New(preferences map[core.TaskType][]core.ProviderClass, timeout, probeCacheWindow time.Duration, logger core.Logger, telemetry core.Telemetry) *Router {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	return &Router{
		providers:        make(map[string]*registeredProvider),
		byClass:          make(map[core.ProviderClass][]*registeredProvider),
		preferences:      preferences,
		timeout:          timeout,
		probeCacheWindow: probeCacheWindow,
		logger:           logger,
		telemetry:        telemetry,
	}
}

// RegisterProvider adds a provider client under the given capability
// class. A per-provider breaker gates a single structural retry so one
// misbehaving provider can't be hammered indefinitely by Execute's own
// retry loop.
func (r *Router) RegisterProvider(id string, class core.ProviderClass, client core.AIClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &registeredProvider{
		id:        id,
		class:     class,
		client:    client,
		breaker:   resilience.New(core.BreakerParams{Name: "model/" + id, Config: core.DefaultBreakerConfig()}, nil),
		available: true,
	}
	r.providers[id] = p
	r.byClass[class] = append(r.byClass[class], p)
}

// SetReconfiguredPreferences swaps the task-type preference map (C12's
// hot-reloadable provider preference map). Future Execute calls see the
// new map; in-flight calls already hold their candidate list.
func (r *Router) SetReconfiguredPreferences(preferences map[core.TaskType][]core.ProviderClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferences = preferences
}

// candidatesFor returns the ordered provider list for a task type: for
// each preferred class, every registered provider of that class, in
// registration order.
func (r *Router) candidatesFor(taskType core.TaskType) []*registeredProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	classes := r.preferences[taskType]
	var out []*registeredProvider
	for _, class := range classes {
		out = append(out, r.byClass[class]...)
	}
	return out
}

// Execute walks the candidate list in preference order (spec §4.5),
// skipping any candidate whose last probe failed and whose cache window
// has not elapsed. Each candidate gets its own outbound timeout and a
// single structural retry for system-class failures; failures of any
// other category do not retry. A validation or execution failure is
// returned at once without trying further candidates. If no candidate is
// registered or every candidate is skipped, Execute returns a
// system/retryable Error; otherwise, when every tried candidate fails, it
// returns the last candidate's error.
func (r *Router) Execute(ctx context.Context, taskType core.TaskType, prompt string, opts Options) (Result, error) {
	start := time.Now()
	ctx, span := r.telemetry.StartSpan(ctx, "model.router.execute")
	defer span.End()
	span.SetAttribute("model.taskType", string(taskType))

	candidates := r.candidatesFor(taskType)
	if len(candidates) == 0 {
		return Result{}, &Error{Code: "no_candidates", Message: fmt.Sprintf("no providers registered for task type %q", taskType), Category: core.CategorySystem, Retryable: true}
	}

	var lastErr error
	for _, p := range candidates {
		if r.isSkipped(p) {
			continue
		}
		result, err := r.tryCandidate(ctx, p, prompt, opts, start)
		if err == nil {
			return result, nil
		}
		lastErr = err
		var rerr *Error
		if errors.As(err, &rerr) && (rerr.Category == core.CategoryValidation || rerr.Category == core.CategoryExecution) {
			// A non-transport failure (validation, definite execution
			// error) indicates the request itself is unservable, not that
			// this one candidate is down — no point falling over.
			return Result{}, err
		}
	}

	if lastErr == nil {
		lastErr = &Error{Code: "all_providers_unavailable", Message: "every candidate provider is unavailable", Category: core.CategorySystem, Retryable: true}
	}
	return Result{}, lastErr
}

func (r *Router) isSkipped(p *registeredProvider) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.available {
		return false
	}
	return time.Since(p.failedAt) < r.probeCacheWindow
}

// tryCandidate runs one provider with its own timeout and a single
// structural retry for system-class failures (spec §4.5: "a single
// structural retry per candidate for system-class failures; harder
// failures... do not retry").
func (r *Router) tryCandidate(ctx context.Context, p *registeredProvider, prompt string, opts Options, overallStart time.Time) (Result, error) {
	const maxAttempts = 2 // one try plus one structural retry
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !p.breaker.Admit() {
			lastErr = &Error{Code: "provider_circuit_open", Message: fmt.Sprintf("provider %q circuit breaker open", p.id), Category: core.CategoryCircuitBreaker, Retryable: false}
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		resp, err := p.client.GenerateResponse(callCtx, prompt, &core.AIOptions{
			Model:        opts.Model,
			Temperature:  opts.Temperature,
			MaxTokens:    opts.MaxTokens,
			SystemPrompt: opts.SystemPrompt,
		})
		cancel()

		if err == nil {
			p.breaker.RecordSuccess()
			r.markAvailable(p)
			r.recordUsage(p, resp.Usage)
			return Result{
				Content:       resp.Content,
				Provider:      p.id,
				Usage:         resp.Usage,
				ExecutionTime: time.Since(overallStart),
			}, nil
		}

		category := core.ClassifyError(err.Error())
		p.breaker.RecordFailure()
		if category != core.CategorySystem {
			r.markUnavailable(p)
			return Result{}, &Error{Code: "provider_error", Message: err.Error(), Category: category, Retryable: false}
		}
		r.markUnavailable(p)
		lastErr = &Error{Code: "provider_error", Message: err.Error(), Category: core.CategorySystem, Retryable: true}
	}

	return Result{}, lastErr
}

func (r *Router) markAvailable(p *registeredProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = true
	p.lastProbe = time.Now()
}

func (r *Router) markUnavailable(p *registeredProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = false
	p.lastProbe = time.Now()
	p.failedAt = time.Now()
}

func (r *Router) recordUsage(p *registeredProvider, usage core.TokenUsage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollingCostUSD += usage.CostUSD
	p.rollingInTokens += int64(usage.PromptTokens)
	p.rollingOutTokens += int64(usage.CompletionTokens)
}

// GetModelStats returns, per provider, availability/probe/cost/token
// rolling tallies (spec §4.5).
func (r *Router) GetModelStats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.providers))
	for id, p := range r.providers {
		p.mu.Lock()
		out[id] = Stats{
			Available:     p.available,
			LastProbe:     p.lastProbe,
			RollingCost:   p.rollingCostUSD,
			RollingTokens: p.rollingInTokens + p.rollingOutTokens,
		}
		p.mu.Unlock()
	}
	return out
}

// SelectOptimalModel returns the current head-of-list candidate for a
// task type; callers may treat it as informational (spec §4.5).
func (r *Router) SelectOptimalModel(taskType core.TaskType) string {
	candidates := r.candidatesFor(taskType)
	for _, p := range candidates {
		if !r.isSkipped(p) {
			return p.id
		}
	}
	if len(candidates) > 0 {
		return candidates[0].id
	}
	return ""
}

// AllAvailable reports whether at least one registered provider in the
// given class is currently not skipped as unavailable, and also returns
// true when the class has no registered provider — used by C10's health
// aggregation rule
// ("a provider unavailable and no same-class alternate available").
func (r *Router) AllAvailable(class core.ProviderClass) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byClass[class] {
		if !r.isSkipped(p) {
			return true
		}
	}
	return len(r.byClass[class]) == 0
}

// ProviderIDs returns every registered provider id, sorted, for
// deterministic iteration in status reports.
func (r *Router) ProviderIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
