package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetGlobals lets each test exercise Initialize from a clean slate —
// initOnce and globalRegistry are package singletons by design.
func resetGlobals(t *testing.T) {
	t.Helper()
	initOnce = sync.Once{}
	globalRegistry.Store((*Registry)(nil))
	t.Cleanup(func() {
		initOnce = sync.Once{}
		globalRegistry.Store((*Registry)(nil))
	})
}

func TestInitialize_DisabledConfigIsNoOp(t *testing.T) {
	resetGlobals(t)

	err := Initialize(Config{Enabled: false, ServiceName: "ticketsd"})
	require.NoError(t, err)

	assert.Nil(t, GetTelemetryProvider())
	// Emit must not panic against an uninitialized registry.
	Emit("engine.ticket.fired", 1, "process_id", "approve_test")
}

func TestEmit_BeforeInitializeIsSilentNoOp(t *testing.T) {
	resetGlobals(t)

	assert.NotPanics(t, func() {
		Emit("orchestrator.tickets.created", 1, "process_id", "approve_test")
		EmitWithContext(context.Background(), "store.operation.duration_ms", 12.5)
	})
}

func TestShutdown_WithoutInitializeIsNoOp(t *testing.T) {
	resetGlobals(t)
	assert.NoError(t, Shutdown(context.Background()))
}

func TestParseLabels(t *testing.T) {
	got := parseLabels("process_id", "approve_test", "outcome", "fired")
	assert.Equal(t, map[string]string{"process_id": "approve_test", "outcome": "fired"}, got)
}

func TestParseLabels_OddLengthDropsTrailingKey(t *testing.T) {
	got := parseLabels("process_id", "approve_test", "dangling")
	assert.Equal(t, map[string]string{"process_id": "approve_test"}, got)
}

func TestDeclareMetrics_RegistersModuleDeclarations(t *testing.T) {
	// modules.go's init() has already declared these by the time tests run.
	for _, module := range []string{"engine", "orchestrator", "store"} {
		v, ok := declaredMetrics.Load(module)
		require.Truef(t, ok, "module %q should have declared metrics", module)
		cfg := v.(ModuleConfig)
		assert.NotEmpty(t, cfg.Metrics)
	}
}
