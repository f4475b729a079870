package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ticketgraph/engine/platform"
)

var (
	// globalRegistry holds the singleton Registry, set once by Initialize
	// and read on every Emit/EmitWithContext call.
	globalRegistry atomic.Value // *Registry
	initOnce       sync.Once

	// declaredMetrics stores metric declarations registered via
	// DeclareMetrics, which modules.go calls from init() — before
	// Initialize runs.
	declaredMetrics sync.Map // map[string]ModuleConfig
)

// ModuleConfig groups the metric declarations for one module (engine,
// orchestrator, store).
type ModuleConfig struct {
	Metrics []MetricDefinition
}

// MetricDefinition documents one metric's name, type and labels. Recorded
// metrics are pre-created during Initialize so the first real emission
// doesn't pay instrument-creation cost.
type MetricDefinition struct {
	Name    string
	Type    string // counter, histogram, gauge
	Help    string
	Labels  []string
	Unit    string
	Buckets []float64
}

// DeclareMetrics registers a module's metric definitions. Safe to call
// from init() before Initialize.
func DeclareMetrics(module string, config ModuleConfig) {
	declaredMetrics.Store(module, config)
}

// Registry coordinates metric declaration, the OTel export pipeline and
// the bridge into platform.GetGlobalMetricsRegistry.
type Registry struct {
	config   Config
	provider *OTelProvider
	logger   platform.Logger

	emitted atomic.Int64
}

// Initialize activates telemetry with the given configuration. Safe to
// call multiple times — only the first call takes effect. A failure here
// is non-fatal: Emit and RecordMetric remain silent no-ops.
func Initialize(config Config) error {
	var initErr error
	initOnce.Do(func() {
		if !config.Enabled {
			return
		}

		provider, err := NewOTelProvider(config.ServiceName, config.Endpoint)
		if err != nil {
			initErr = fmt.Errorf("telemetry: initialize: %w", err)
			return
		}

		registry := &Registry{config: config, provider: provider}

		declaredCount := 0
		declaredMetrics.Range(func(_, value interface{}) bool {
			registry.registerModule(value.(ModuleConfig))
			declaredCount++
			return true
		})

		globalRegistry.Store(registry)
		platform.SetMetricsRegistry(&metricsBridge{registry: registry})
	})
	return initErr
}

// registerModule pre-creates the OTel instruments for a module's declared
// metrics so runtime emission never pays first-use creation cost.
func (r *Registry) registerModule(config ModuleConfig) {
	ctx := context.Background()
	for _, m := range config.Metrics {
		switch m.Type {
		case "counter":
			_ = r.provider.instruments.recordCounter(ctx, m.Name, 0)
		case "histogram", "gauge":
			_ = r.provider.instruments.recordHistogram(ctx, m.Name, 0)
		}
	}
}

// Emit records a metric against the global registry. It is a silent
// no-op if telemetry was never initialized or initialization failed.
func Emit(name string, value float64, labels ...string) {
	r := currentRegistry()
	if r == nil {
		return
	}
	r.provider.RecordMetric(name, value, parseLabels(labels...))
	r.emitted.Add(1)
}

// EmitWithContext is Emit with a context parameter, for call sites that
// already carry one (span-scoped emission, request handlers).
func EmitWithContext(_ context.Context, name string, value float64, labels ...string) {
	Emit(name, value, labels...)
}

func currentRegistry() *Registry {
	v := globalRegistry.Load()
	if v == nil {
		return nil
	}
	return v.(*Registry)
}

func parseLabels(labels ...string) map[string]string {
	m := make(map[string]string, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		m[labels[i]] = labels[i+1]
	}
	return m
}

// Shutdown flushes and tears down the telemetry system. Safe to call even
// if Initialize was never called or failed.
func Shutdown(ctx context.Context) error {
	r := currentRegistry()
	if r == nil {
		return nil
	}
	platform.SetMetricsRegistry(nil)
	globalRegistry.Store((*Registry)(nil))
	if r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

// GetTelemetryProvider returns the active OTelProvider as a
// platform.Telemetry, for injecting into orchestrator.WithTelemetry.
// Returns nil if telemetry was never initialized.
func GetTelemetryProvider() platform.Telemetry {
	r := currentRegistry()
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider
}

// metricsBridge adapts Registry to platform.MetricsRegistry, the narrow
// interface platform.ProductionLogger uses to emit a "ticketgraph.operations"
// counter alongside every log line once telemetry is initialized, without
// platform importing this package.
type metricsBridge struct{ registry *Registry }

func (b *metricsBridge) Counter(name string, labels ...string) {
	Emit(name, 1, labels...)
}

func (b *metricsBridge) Histogram(name string, value float64, labels ...string) {
	Emit(name, value, labels...)
}

func (b *metricsBridge) Gauge(name string, value float64, labels ...string) {
	Emit(name, value, labels...)
}

func (b *metricsBridge) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	EmitWithContext(ctx, name, value, labels...)
}

func (b *metricsBridge) GetBaggage(ctx context.Context) map[string]string {
	return nil
}

var _ platform.MetricsRegistry = (*metricsBridge)(nil)
