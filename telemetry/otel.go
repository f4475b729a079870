package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ticketgraph/engine/platform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelProvider implements platform.Telemetry over the OpenTelemetry SDK,
// exporting both traces and metrics via OTLP/HTTP.
type OTelProvider struct {
	tracer         trace.Tracer
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider
	instruments    *instrumentCache

	shutdownOnce sync.Once
	mu           sync.RWMutex
	shutdown     bool
}

// NewOTelProvider builds the trace and metric export pipeline for
// serviceName against an OTLP/HTTP endpoint (default localhost:4318).
func NewOTelProvider(serviceName, endpoint string) (*OTelProvider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name required")
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	if endpoint == "localhost:4317" {
		endpoint = "localhost:4318" // common gRPC-port typo; we only speak HTTP
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	ctx := context.Background()

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter for %s: %w", endpoint, err)
	}

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: create metric exporter for %s: %w", endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &OTelProvider{
		tracer:         tp.Tracer("ticketgraph"),
		traceProvider:  tp,
		metricProvider: mp,
		instruments:    newInstrumentCache(mp.Meter("ticketgraph")),
	}, nil
}

// StartSpan implements platform.Telemetry.
func (o *OTelProvider) StartSpan(ctx context.Context, name string) (context.Context, platform.Span) {
	o.mu.RLock()
	shutdown := o.shutdown
	o.mu.RUnlock()
	if shutdown || o.tracer == nil {
		return ctx, noOpSpan{}
	}

	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements platform.Telemetry, routing by name suffix:
// names ending in duration_ms, latency_ms, queue_depth or
// connections_in_use (the histogram and gauge declarations in
// modules.go) record as histograms; everything else records as a counter.
func (o *OTelProvider) RecordMetric(name string, value float64, labels map[string]string) {
	o.mu.RLock()
	shutdown := o.shutdown
	o.mu.RUnlock()
	if shutdown {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx := context.Background()
	if nameLooksLikeDuration(name) {
		_ = o.instruments.recordHistogram(ctx, name, value, metric.WithAttributes(attrs...))
		return
	}
	_ = o.instruments.recordCounter(ctx, name, value, metric.WithAttributes(attrs...))
}

func nameLooksLikeDuration(name string) bool {
	for _, suffix := range []string{"duration_ms", "latency_ms", "queue_depth", "connections_in_use"} {
		if len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

// Shutdown flushes and tears down the trace and metric providers. It is
// idempotent and safe to call multiple times.
func (o *OTelProvider) Shutdown(ctx context.Context) (err error) {
	o.shutdownOnce.Do(func() {
		o.mu.Lock()
		o.shutdown = true
		o.mu.Unlock()

		var errs []error
		if o.metricProvider != nil {
			if e := o.metricProvider.Shutdown(ctx); e != nil {
				errs = append(errs, fmt.Errorf("metric provider: %w", e))
			}
		}
		if o.traceProvider != nil {
			if e := o.traceProvider.Shutdown(ctx); e != nil {
				errs = append(errs, fmt.Errorf("trace provider: %w", e))
			}
		}
		if len(errs) > 0 {
			err = fmt.Errorf("telemetry: shutdown errors: %v", errs)
		}
	})
	return err
}

type noOpSpan struct{}

func (noOpSpan) End()                             {}
func (noOpSpan) SetAttribute(string, interface{}) {}
func (noOpSpan) RecordError(error)                {}

type otelSpan struct{ span trace.Span }

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

// EnableTelemetry builds an OTelProvider for serviceName, defaulting the
// OTLP endpoint from OTEL_EXPORTER_OTLP_ENDPOINT when endpoint is empty.
func EnableTelemetry(serviceName, endpoint string, logger platform.Logger) (platform.Telemetry, error) {
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	provider, err := NewOTelProvider(serviceName, endpoint)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("telemetry enabled", map[string]interface{}{
			"operation": "telemetry.enable", "service": serviceName, "endpoint": endpoint,
		})
	}

	return provider, nil
}
