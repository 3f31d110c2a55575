// Package telemetry implements core.Telemetry with a real OpenTelemetry
// tracer and meter.
//
// Grounded on itsneelabh-gomind's telemetry.OTelProvider: a cached-
// instrument meter wrapper plus a tracer.Start/span.End() adapter to
// core.Span. Narrowed from the teacher's OTLP/HTTP exporter pipeline
// (otlptracehttp/otlpmetrichttp, periodic export, resource/semconv
// attribution) to an in-process SDK provider with no configured
// exporter: this module's dependency set wires go.opentelemetry.io/otel's
// sdk/trace and sdk/metric packages but not the otlp exporter packages,
// which the teacher's go.mod pulls in but nothing else in the retrieved
// pack does (see DESIGN.md). Spans and metric instruments are still real
// SDK objects with correct lifecycle semantics; they simply have no
// registered processor/reader to ship them anywhere, which suits an
// embedded kernel library more than a standalone service.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexuskernel/orchestrator/core"
)

// Provider implements core.Telemetry using a locally constructed OTel
// SDK trace and meter provider.
type Provider struct {
	tracer trace.Tracer

	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider

	mu         sync.RWMutex
	meter      metric.Meter
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// New constructs a Provider scoped to instrumentationName (conventionally
// the module path, e.g. "github.com/nexuskernel/orchestrator").
func New(instrumentationName string) *Provider {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()

	return &Provider{
		tracer:        tp.Tracer(instrumentationName),
		traceProvider: tp,
		meterProvider: mp,
		meter:         mp.Meter(instrumentationName),
		counters:      make(map[string]metric.Float64Counter),
		histograms:    make(map[string]metric.Float64Histogram),
	}
}

// StartSpan starts a new span, implementing core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric routes a named measurement to a histogram or a counter
// depending on the name, following the same naming-heuristic convention
// the teacher's OTelProvider.RecordMetric uses: duration/latency/time
// names are histograms, everything else is treated as a monotonic count.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx := context.Background()
	if isDurationMetric(name) {
		h, err := p.histogramFor(name)
		if err != nil {
			return
		}
		h.Record(ctx, value, metric.WithAttributes(attrs...))
		return
	}
	c, err := p.counterFor(name)
	if err != nil {
		return
	}
	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

func isDurationMetric(name string) bool {
	for _, suffix := range []string{"duration", "latency", "time", "Duration", "Latency", "Time"} {
		if len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

func (p *Provider) histogramFor(name string) (metric.Float64Histogram, error) {
	p.mu.RLock()
	h, ok := p.histograms[name]
	p.mu.RUnlock()
	if ok {
		return h, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.histograms[name]; ok {
		return h, nil
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create histogram %s: %w", name, err)
	}
	p.histograms[name] = h
	return h, nil
}

func (p *Provider) counterFor(name string) (metric.Float64Counter, error) {
	p.mu.RLock()
	c, ok := p.counters[name]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok = p.counters[name]; ok {
		return c, nil
	}
	c, err := p.meter.Float64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create counter %s: %w", name, err)
	}
	p.counters[name] = c
	return c, nil
}

// Shutdown releases the underlying SDK providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.traceProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.meterProvider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }

var _ core.Telemetry = (*Provider)(nil)
