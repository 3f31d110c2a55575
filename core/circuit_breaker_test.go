package core

import "testing"

func TestDefaultBreakerParams(t *testing.T) {
	params := DefaultBreakerParams("echo")

	if params.Name != "echo" {
		t.Errorf("Name = %q, want echo", params.Name)
	}
	if params.Config.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", params.Config.FailureThreshold)
	}
	if params.Config.HalfOpenMaxRequests != 3 {
		t.Errorf("HalfOpenMaxRequests = %d, want 3", params.Config.HalfOpenMaxRequests)
	}
	if params.Logger == nil {
		t.Error("Logger should default to a non-nil NoOpLogger")
	}
}

func TestBreakerStateConstants(t *testing.T) {
	states := []BreakerState{BreakerClosed, BreakerOpen, BreakerHalfOpen}
	seen := map[BreakerState]bool{}
	for _, s := range states {
		if seen[s] {
			t.Errorf("duplicate breaker state constant: %q", s)
		}
		seen[s] = true
		if s == "" {
			t.Error("breaker state constant must not be empty")
		}
	}
}
