package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// instrumentCache lazily creates and caches the OTel counter/histogram
// instruments this module actually emits: ticket.fired-style counters and
// duration_ms-style histograms declared in modules.go.
type instrumentCache struct {
	meter      metric.Meter
	mu         sync.RWMutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

func newInstrumentCache(meter metric.Meter) *instrumentCache {
	return &instrumentCache{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (c *instrumentCache) counter(name string) (metric.Float64Counter, error) {
	c.mu.RLock()
	ctr, ok := c.counters[name]
	c.mu.RUnlock()
	if ok {
		return ctr, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok = c.counters[name]; ok {
		return ctr, nil
	}
	ctr, err := c.meter.Float64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create counter %s: %w", name, err)
	}
	c.counters[name] = ctr
	return ctr, nil
}

func (c *instrumentCache) histogram(name string) (metric.Float64Histogram, error) {
	c.mu.RLock()
	h, ok := c.histograms[name]
	c.mu.RUnlock()
	if ok {
		return h, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok = c.histograms[name]; ok {
		return h, nil
	}
	h, err := c.meter.Float64Histogram(name)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create histogram %s: %w", name, err)
	}
	c.histograms[name] = h
	return h, nil
}

func (c *instrumentCache) recordCounter(ctx context.Context, name string, value float64, opts ...metric.AddOption) error {
	ctr, err := c.counter(name)
	if err != nil {
		return err
	}
	ctr.Add(ctx, value, opts...)
	return nil
}

func (c *instrumentCache) recordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	h, err := c.histogram(name)
	if err != nil {
		return err
	}
	h.Record(ctx, value, opts...)
	return nil
}
