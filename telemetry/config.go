package telemetry

// Config configures the telemetry system. The zero value is valid and
// leaves telemetry disabled — Initialize still succeeds, but Emit and
// RecordMetric calls are no-ops unless Enabled is set. An empty Endpoint
// defaults to localhost:4318.
type Config struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Provider    string // currently only "otel" is implemented
}
