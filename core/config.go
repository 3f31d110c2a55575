package core

import (
	"fmt"
	"time"
)

// RetryPolicy is the tuple spec §3 names: maxRetries, initialDelay,
// backoffMultiplier, maxDelay, and the set of kind tags that are retryable.
// An envelope uses an input override in place of its default policy as a
// whole; fields left zero in the override are not filled in from the
// default.
type RetryPolicy struct {
	MaxRetries          int
	InitialDelay        time.Duration
	BackoffMultiplier   float64
	MaxDelay            time.Duration
	RetryableCategories []ResultCategory
}

// DefaultRetryPolicy matches spec §3's stated defaults: 3 retries, 1s
// initial delay, x2 multiplier, 30s cap, {timeout, system} retryable.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		BackoffMultiplier: 2,
		MaxDelay:          30 * time.Second,
		RetryableCategories: []ResultCategory{
			CategoryTimeoutResult,
			CategorySystem,
		},
	}
}

// IsRetryableCategory reports whether category is in the policy's
// retryable set.
func (p RetryPolicy) IsRetryableCategory(category ResultCategory) bool {
	for _, c := range p.RetryableCategories {
		if c == category {
			return true
		}
	}
	return false
}

// BackoffFor returns the sleep duration before retry attempt N+1, per the
// backoff-monotonicity law in spec §8: min(initialDelay * multiplier^N, maxDelay).
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffMultiplier
	}
	if d := time.Duration(delay); d < p.MaxDelay {
		return d
	}
	return p.MaxDelay
}

// BreakerConfig is C2's tunable surface (spec §4.2).
type BreakerConfig struct {
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
	MonitoringPeriod    time.Duration
}

// DefaultBreakerConfig matches spec §4.2's defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		RecoveryTimeout:     60 * time.Second,
		HalfOpenMaxRequests: 3,
		MonitoringPeriod:    60 * time.Second,
	}
}

// ProviderClass is C5's capability class vocabulary.
type ProviderClass string

const (
	ProviderClassOpenAI    ProviderClass = "openai-class"
	ProviderClassAnthropic ProviderClass = "anthropic-class"
)

// TaskType is the closed vocabulary spec §1/§4.5 names.
type TaskType string

const (
	TaskTypeResearch       TaskType = "research"
	TaskTypePlanning       TaskType = "planning"
	TaskTypeCodeGeneration TaskType = "code-generation"
	TaskTypeDocumentation  TaskType = "documentation"
	TaskTypeCodeAnalysis   TaskType = "code-analysis"
	TaskTypeOptimization   TaskType = "optimization"
)

// DefaultProviderPreferences is spec §4.5's preference-map table.
func DefaultProviderPreferences() map[TaskType][]ProviderClass {
	return map[TaskType][]ProviderClass{
		TaskTypeResearch:       {ProviderClassAnthropic, ProviderClassOpenAI},
		TaskTypePlanning:       {ProviderClassOpenAI, ProviderClassAnthropic},
		TaskTypeCodeAnalysis:   {ProviderClassAnthropic, ProviderClassOpenAI},
		TaskTypeCodeGeneration: {ProviderClassOpenAI, ProviderClassAnthropic},
		TaskTypeDocumentation:  {ProviderClassAnthropic, ProviderClassOpenAI},
		TaskTypeOptimization:   {ProviderClassOpenAI, ProviderClassAnthropic},
	}
}

// Config bundles every C12 tunable into a single value passed at
// construction (spec §4.12): no module-wide mutable state, all state hangs
// off the constructed kernel. kernel.Kernel.Reconfigure applies
// ProviderPreferences and QueueBound to a running kernel; it stores new
// Retry and Breaker values in the kernel's Config but does not apply them
// to the agent registry.
type Config struct {
	// EnvelopeTimeout is C4's default per-invocation timeout (spec §4.4 step 4).
	EnvelopeTimeout time.Duration
	// ProviderTimeout is C5's own outbound timeout (spec §4.5).
	ProviderTimeout time.Duration
	// ProbeCacheWindow is how long a failed provider probe is cached (spec §4.5, default 60s).
	ProbeCacheWindow time.Duration

	Retry   RetryPolicy
	Breaker BreakerConfig

	ProviderPreferences map[TaskType][]ProviderClass

	// MetricsWindowSize is C3's rolling-window sample count (default 100).
	MetricsWindowSize int

	// QueueBound is C9's maximum queue depth (default 10,000).
	QueueBound int

	// WorkflowHistoryBound is the max retained WorkflowExecution records (default 1,000).
	WorkflowHistoryBound int

	// TaskHistoryBound is the max retained TaskResult records.
	TaskHistoryBound int

	Logger    Logger
	Telemetry Telemetry
}

// Option configures a Config at construction, matching the teacher's
// functional-options idiom (core/config.go's With* constructors).
type Option func(*Config) error

// DefaultConfig returns a Config with every spec-mandated default filled in.
func DefaultConfig() *Config {
	return &Config{
		EnvelopeTimeout:      30 * time.Second,
		ProviderTimeout:      30 * time.Second,
		ProbeCacheWindow:     60 * time.Second,
		Retry:                DefaultRetryPolicy(),
		Breaker:              DefaultBreakerConfig(),
		ProviderPreferences:  DefaultProviderPreferences(),
		MetricsWindowSize:    100,
		QueueBound:           10000,
		WorkflowHistoryBound: 1000,
		TaskHistoryBound:     1000,
		Logger:               &NoOpLogger{},
		Telemetry:            &NoOpTelemetry{},
	}
}

// NewConfig applies opts over DefaultConfig and validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations spec §8's boundary behaviors forbid
// (e.g. a zero or negative envelope timeout is a validation error at
// envelope entry).
func (c *Config) Validate() error {
	if c.EnvelopeTimeout <= 0 {
		return fmt.Errorf("%w: envelope timeout must be positive", ErrInvalidConfiguration)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("%w: breaker failureThreshold must be positive", ErrInvalidConfiguration)
	}
	if c.Breaker.HalfOpenMaxRequests <= 0 {
		return fmt.Errorf("%w: breaker halfOpenMaxRequests must be positive", ErrInvalidConfiguration)
	}
	if c.QueueBound <= 0 {
		return fmt.Errorf("%w: queue bound must be positive", ErrInvalidConfiguration)
	}
	if c.MetricsWindowSize <= 0 {
		return fmt.Errorf("%w: metrics window size must be positive", ErrInvalidConfiguration)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: retry maxRetries must be non-negative", ErrInvalidConfiguration)
	}
	return nil
}

// Clone returns a deep-enough copy for the hot-reloadable subset so an
// in-flight execution can keep its snapshotted config while the kernel's
// live config is swapped (spec §4.12's "in-flight executions keep their
// snapshotted config").
func (c *Config) Clone() *Config {
	clone := *c
	clone.Retry.RetryableCategories = append([]ResultCategory(nil), c.Retry.RetryableCategories...)
	clone.ProviderPreferences = make(map[TaskType][]ProviderClass, len(c.ProviderPreferences))
	for k, v := range c.ProviderPreferences {
		clone.ProviderPreferences[k] = append([]ProviderClass(nil), v...)
	}
	return &clone
}

func WithEnvelopeTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: envelope timeout must be positive", ErrInvalidConfiguration)
		}
		c.EnvelopeTimeout = d
		return nil
	}
}

func WithProviderTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.ProviderTimeout = d
		return nil
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Config) error {
		c.Retry = p
		return nil
	}
}

func WithBreakerConfig(b BreakerConfig) Option {
	return func(c *Config) error {
		c.Breaker = b
		return nil
	}
}

func WithProviderPreferences(prefs map[TaskType][]ProviderClass) Option {
	return func(c *Config) error {
		c.ProviderPreferences = prefs
		return nil
	}
}

func WithQueueBound(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: queue bound must be positive", ErrInvalidConfiguration)
		}
		c.QueueBound = n
		return nil
	}
}

func WithMetricsWindowSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: metrics window size must be positive", ErrInvalidConfiguration)
		}
		c.MetricsWindowSize = n
		return nil
	}
}

func WithWorkflowHistoryBound(n int) Option {
	return func(c *Config) error {
		c.WorkflowHistoryBound = n
		return nil
	}
}

func WithTaskHistoryBound(n int) Option {
	return func(c *Config) error {
		c.TaskHistoryBound = n
		return nil
	}
}

func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return fmt.Errorf("%w: logger must not be nil", ErrInvalidConfiguration)
		}
		c.Logger = logger
		return nil
	}
}

func WithTelemetry(t Telemetry) Option {
	return func(c *Config) error {
		if t == nil {
			return fmt.Errorf("%w: telemetry must not be nil", ErrInvalidConfiguration)
		}
		c.Telemetry = t
		return nil
	}
}
