package core

import (
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		message string
		want    ResultCategory
	}{
		{"input validation failed: missing field", CategoryValidation},
		{"request timeout after 30s", CategoryTimeoutResult},
		{"circuit breaker is open for agent echo", CategoryCircuitBreaker},
		{"connection refused by upstream", CategorySystem},
		{"network unreachable", CategorySystem},
		{"rate limit exceeded", CategorySystem},
		{"quota exceeded for this month", CategorySystem},
		{"service temporarily unavailable", CategorySystem},
		{"something the agent just decided to fail on", CategoryExecution},
		{"", CategoryExecution},
	}
	for _, c := range cases {
		if got := ClassifyError(c.message); got != c.want {
			t.Errorf("ClassifyError(%q) = %q, want %q", c.message, got, c.want)
		}
	}
}

func TestDefaultRetryable(t *testing.T) {
	if !DefaultRetryable(CategoryTimeoutResult) {
		t.Error("timeout should default to retryable")
	}
	if !DefaultRetryable(CategorySystem) {
		t.Error("system should default to retryable")
	}
	if DefaultRetryable(CategoryValidation) {
		t.Error("validation should never default to retryable")
	}
	if DefaultRetryable(CategoryCircuitBreaker) {
		t.Error("circuit-breaker should never default to retryable by the envelope")
	}
	if DefaultRetryable(CategoryExecution) {
		t.Error("execution should not default to retryable unless the agent opts in")
	}
}

func TestCountsTowardBreaker(t *testing.T) {
	if CountsTowardBreaker(CategoryValidation) {
		t.Error("validation must never count toward the breaker")
	}
	if CountsTowardBreaker(CategoryCircuitBreaker) {
		t.Error("circuit-breaker refusals must not further increment failure count")
	}
	if !CountsTowardBreaker(CategoryTimeoutResult) {
		t.Error("timeout should count toward the breaker")
	}
	if !CountsTowardBreaker(CategorySystem) {
		t.Error("system should count toward the breaker")
	}
	if !CountsTowardBreaker(CategoryExecution) {
		t.Error("execution should count toward the breaker")
	}
}

func TestOkAndErrConstructors(t *testing.T) {
	ok := Ok(map[string]string{"echo": "hi"}, 5*time.Millisecond, nil)
	if !ok.IsOk() {
		t.Fatal("Ok() result should report IsOk() true")
	}
	if ok.Metadata == nil {
		t.Error("Ok() should default Metadata to an empty map, not nil")
	}

	failed := Err("agent_not_found", "no such agent", CategoryValidation, false, 0, nil)
	if failed.IsOk() {
		t.Fatal("Err() result should report IsOk() false")
	}
	if failed.Category != CategoryValidation {
		t.Errorf("Category = %q, want validation", failed.Category)
	}
	if failed.Retryable {
		t.Error("validation errors must not be retryable")
	}
}
