package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ProductionLogger is a hand-rolled structured JSON logger in the teacher's
// idiom (core/config.go's ProductionLogger): one JSON object per line to
// stdout, a component tag, and context-aware variants that fold traceId /
// correlationId out of ctx when present. No third-party logging library is
// wired here — the teacher never reaches for zap/logrus either, so this
// matches the pack's own texture rather than falling back to a stdlib
// substitute for a missing dependency (see DESIGN.md).
type ProductionLogger struct {
	component string
	minLevel  logLevel
	out       *os.File
}

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) logLevel {
	switch s {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// NewProductionLogger builds a logger tagged with component, emitting at or
// above minLevel ("debug", "info", "warn", "error"; default "info").
func NewProductionLogger(component, minLevel string) *ProductionLogger {
	return &ProductionLogger{component: component, minLevel: parseLevel(minLevel), out: os.Stdout}
}

// WithComponent returns a logger sharing this one's level and output but
// tagged with a different component, satisfying ComponentAwareLogger.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{component: component, minLevel: p.minLevel, out: p.out}
}

func (p *ProductionLogger) log(level logLevel, levelName, msg string, fields map[string]interface{}, ctx context.Context) {
	if level < p.minLevel {
		return
	}
	entry := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     levelName,
		"component": p.component,
		"message":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	if ctx != nil {
		if traceID, ok := ctx.Value(traceIDKey{}).(string); ok && traceID != "" {
			entry["traceId"] = traceID
		}
		if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok && correlationID != "" {
			entry["correlationId"] = correlationID
		}
	}
	b, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(p.out, `{"level":"error","message":"log marshal failed: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(p.out, string(b))
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{})  { p.log(levelInfo, "info", msg, fields, nil) }
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) { p.log(levelError, "error", msg, fields, nil) }
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{})  { p.log(levelWarn, "warn", msg, fields, nil) }
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) { p.log(levelDebug, "debug", msg, fields, nil) }

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(levelInfo, "info", msg, fields, ctx)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(levelError, "error", msg, fields, ctx)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(levelWarn, "warn", msg, fields, ctx)
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(levelDebug, "debug", msg, fields, ctx)
}

type traceIDKey struct{}
type correlationIDKey struct{}

// WithTraceID returns a context carrying traceId for ...WithContext logging
// and for ExecutionContext propagation (spec §3's ExecutionContext.traceId).
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// WithCorrelationID returns a context carrying correlationId.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

// TraceIDFromContext extracts a traceId previously attached with WithTraceID.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey{}).(string)
	return v, ok
}

// CorrelationIDFromContext extracts a correlationId previously attached
// with WithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(correlationIDKey{}).(string)
	return v, ok
}
