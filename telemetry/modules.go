package telemetry

// This file contains metric declarations for all modules.
// It's in the telemetry package to avoid import cycles.

func init() {
	// Engine module metrics: step firing and advance-loop traversal.
	DeclareMetrics("engine", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "engine.ticket.fired",
				Type:   "counter",
				Help:   "Step firings, successful or rejected",
				Labels: []string{"process_id", "event", "outcome"},
			},
			{
				Name:    "engine.advance.duration_ms",
				Type:    "histogram",
				Help:    "AdvanceEngine traversal time in milliseconds",
				Labels:  []string{"process_id"},
				Unit:    "ms",
				Buckets: []float64{1, 5, 10, 50, 100, 500},
			},
			{
				Name:   "engine.advance.queue_depth",
				Type:   "gauge",
				Help:   "Pending nodes in the current AdvanceEngine traversal",
				Labels: []string{"process_id"},
			},
			{
				Name:   "engine.ticket.completed",
				Type:   "counter",
				Help:   "Tickets reaching a Complete step",
				Labels: []string{"process_id"},
			},
		},
	})

	// Orchestrator module metrics: transactional create/update and
	// post-commit dispatch.
	DeclareMetrics("orchestrator", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "orchestrator.tickets.created",
				Type:   "counter",
				Help:   "Tickets created",
				Labels: []string{"process_id"},
			},
			{
				Name:   "orchestrator.tickets.updated",
				Type:   "counter",
				Help:   "Ticket update requests processed",
				Labels: []string{"process_id", "result"},
			},
			{
				Name:    "orchestrator.transaction.duration_ms",
				Type:    "histogram",
				Help:    "Ticket transaction time in milliseconds",
				Labels:  []string{"operation"},
				Unit:    "ms",
				Buckets: []float64{1, 10, 50, 100, 500, 1000},
			},
			{
				Name:   "orchestrator.callback.dispatched",
				Type:   "counter",
				Help:   "Post-commit callback dispatch attempts",
				Labels: []string{"node_id", "status"},
			},
			{
				Name:   "orchestrator.notifier.ping",
				Type:   "counter",
				Help:   "Post-commit notifier pings",
				Labels: []string{"status"},
			},
		},
	})

	// Store module metrics: ticket persistence.
	DeclareMetrics("store", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "store.operations",
				Type:   "counter",
				Help:   "Store operations",
				Labels: []string{"operation", "table", "status"},
			},
			{
				Name:    "store.operation.duration_ms",
				Type:    "histogram",
				Help:    "Store operation duration in milliseconds",
				Labels:  []string{"operation", "table"},
				Unit:    "ms",
				Buckets: []float64{0.5, 1, 5, 25, 100, 500},
			},
			{
				Name:   "store.pool.connections_in_use",
				Type:   "gauge",
				Help:   "Postgres pool connections currently checked out",
				Labels: []string{},
			},
		},
	})
}
