package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingMiddlewareConfig customizes TracingMiddlewareWithConfig.
type TracingMiddlewareConfig struct {
	// ExcludedPaths lists URL paths to exclude from tracing, e.g. health checks.
	ExcludedPaths []string

	// SpanNameFormatter customizes span names. Defaults to "HTTP {method} {path}".
	SpanNameFormatter func(operation string, r *http.Request) string
}

// TracingMiddleware wraps an http.Handler so each request gets a span,
// with incoming W3C traceparent/tracestate headers honored. Safe to use
// even if Initialize was never called — it falls back to a no-op tracer.
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	return TracingMiddlewareWithConfig(serviceName, nil)
}

// TracingMiddlewareWithConfig is TracingMiddleware with path exclusion and
// a custom span name formatter.
func TracingMiddlewareWithConfig(serviceName string, config *TracingMiddlewareConfig) func(http.Handler) http.Handler {
	var opts []otelhttp.Option

	if config != nil && len(config.ExcludedPaths) > 0 {
		excluded := make(map[string]bool, len(config.ExcludedPaths))
		for _, path := range config.ExcludedPaths {
			excluded[path] = true
		}
		opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
			return !excluded[r.URL.Path]
		}))
	}

	if config != nil && config.SpanNameFormatter != nil {
		opts = append(opts, otelhttp.WithSpanNameFormatter(config.SpanNameFormatter))
	} else {
		opts = append(opts, otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}))
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, opts...)
	}
}

// NewTracedHTTPClient returns an http.Client that injects W3C trace-context
// headers into every outgoing request, so a downstream service sharing the
// same propagator continues the same trace. baseTransport defaults to
// http.DefaultTransport when nil. Used by callback.NewHTTPDispatcher to
// carry a ticket's request trace through to the node's callback URL.
func NewTracedHTTPClient(baseTransport http.RoundTripper) *http.Client {
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(baseTransport),
	}
}
