package core

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
)

func captureLoggerOutput(t *testing.T, fn func(*ProductionLogger)) map[string]interface{} {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	logger := &ProductionLogger{component: "test", minLevel: levelDebug, out: w}
	fn(logger)
	w.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestProductionLoggerEmitsStructuredFields(t *testing.T) {
	entry := captureLoggerOutput(t, func(l *ProductionLogger) {
		l.Info("agent registered", map[string]interface{}{"agentName": "echo"})
	})
	if entry["component"] != "test" {
		t.Errorf("component = %v, want test", entry["component"])
	}
	if entry["message"] != "agent registered" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["agentName"] != "echo" {
		t.Errorf("agentName field missing: %v", entry)
	}
}

func TestProductionLoggerRespectsMinLevel(t *testing.T) {
	r, w, _ := os.Pipe()
	logger := &ProductionLogger{component: "test", minLevel: levelWarn, out: w}
	logger.Debug("should be suppressed", nil)
	logger.Info("also suppressed", nil)
	w.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if buf.Len() != 0 {
		t.Errorf("expected no output below minLevel, got %q", buf.String())
	}
}

func TestProductionLoggerWithContextIncludesTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-123")
	entry := captureLoggerOutput(t, func(l *ProductionLogger) {
		l.InfoWithContext(ctx, "step dispatched", nil)
	})
	if entry["traceId"] != "trace-123" {
		t.Errorf("traceId = %v, want trace-123", entry["traceId"])
	}
}

func TestWithComponentPreservesLevel(t *testing.T) {
	base := NewProductionLogger("kernel", "warn")
	scoped := base.WithComponent("kernel/scheduler")
	pl, ok := scoped.(*ProductionLogger)
	if !ok {
		t.Fatal("WithComponent should return a *ProductionLogger")
	}
	if pl.component != "kernel/scheduler" {
		t.Errorf("component = %q, want kernel/scheduler", pl.component)
	}
	if pl.minLevel != levelWarn {
		t.Error("WithComponent should preserve the parent's level")
	}
}
