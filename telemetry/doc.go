/*
Package telemetry wires the ticket-workflow service into OpenTelemetry.

It is intentionally narrow: it exists to support exactly the two surfaces
the rest of this module exercises — distributed tracing across the HTTP
boundary (TracingMiddleware, NewTracedHTTPClient) and span/metric creation
for orchestrator.WithTelemetry (EnableTelemetry, OTelProvider). It declares
the metric names the engine, orchestrator and store packages are expected
to emit (modules.go), and a small Registry to process and export them.

Usage, from cmd/ticketsd:

	telemetry.Initialize(telemetry.Config{Enabled: true, ServiceName: "ticketsd", Endpoint: endpoint})
	defer telemetry.Shutdown(context.Background())

	provider := telemetry.GetTelemetryProvider()
	orch := orchestrator.New(store, catalog, notifier, dispatcher, orchestrator.WithTelemetry(provider))

	server := httpapi.NewServer(orch, store)
	http.ListenAndServe(addr, telemetry.TracingMiddleware("ticketsd")(server))

Telemetry failures never block ticket processing: Initialize returning an
error leaves the global registry unset, and every Emit/RecordMetric call
degrades to a silent no-op rather than panicking.
*/
package telemetry
