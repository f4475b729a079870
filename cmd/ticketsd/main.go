// Command ticketsd wires the ticket-workflow engine's components into a
// running HTTP service: a Postgres-backed store, a file-backed process
// catalog, a Redis notifier, an HTTP callback dispatcher, the
// transactional orchestrator and the chi-routed HTTP surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ticketgraph/engine/callback"
	"github.com/ticketgraph/engine/catalog"
	"github.com/ticketgraph/engine/httpapi"
	"github.com/ticketgraph/engine/notify"
	"github.com/ticketgraph/engine/orchestrator"
	"github.com/ticketgraph/engine/platform"
	"github.com/ticketgraph/engine/store"
	"github.com/ticketgraph/engine/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := platform.NewProductionLogger("ticketsd", envOr("TICKETS_LOG_LEVEL", "info"), envOr("TICKETS_LOG_FORMAT", "json"), false, os.Stdout)

	if err := telemetry.Initialize(telemetry.Config{
		Enabled:     envOr("TICKETS_TELEMETRY_ENABLED", "") == "true",
		ServiceName: "ticketsd",
		Endpoint:    os.Getenv("TICKETS_OTEL_ENDPOINT"),
		Provider:    "otel",
	}); err != nil {
		logger.Warn("telemetry init failed, continuing with no-op telemetry", map[string]interface{}{
			"operation": "main.init_telemetry", "error": err.Error(),
		})
	}
	defer telemetry.Shutdown(context.Background())

	var telemetryOpts []orchestrator.Option
	if provider := telemetry.GetTelemetryProvider(); provider != nil {
		telemetryOpts = append(telemetryOpts, orchestrator.WithTelemetry(provider))
	}

	dbCfg, err := store.NewConfig()
	if err != nil {
		return err
	}
	pgStore, err := store.Open(ctx, dbCfg, logger)
	if err != nil {
		return err
	}
	defer pgStore.Close()

	processDir := envOr("TICKETS_PROCESS_DIR", "./processes")
	cat := catalog.New(processDir, logger)
	if err := cat.Refresh(); err != nil {
		return err
	}

	var notifier orchestrator.Notifier
	if addr := os.Getenv("TICKETS_REDIS_ADDR"); addr != "" {
		rn, err := notify.NewRedisNotifier(ctx, addr, notify.WithLogger(logger))
		if err != nil {
			logger.Warn("redis notifier unavailable, notifications will not ping", map[string]interface{}{
				"operation": "main.init_notifier", "error": err.Error(),
			})
		} else {
			defer rn.Close()
			notifier = rn
		}
	}

	dispatcher := callback.NewHTTPDispatcher(callback.WithLogger(logger))

	orchOpts := append([]orchestrator.Option{orchestrator.WithLogger(logger)}, telemetryOpts...)
	orch := orchestrator.New(pgStore, cat, notifier, dispatcher, orchOpts...)

	apiCfg, err := httpapi.NewConfig()
	if err != nil {
		return err
	}

	server := httpapi.NewServer(orch, pgStore, httpapi.WithLogger(logger))
	httpServer := &http.Server{
		Addr:         apiCfg.Addr,
		Handler:      telemetry.TracingMiddleware("ticketsd")(server),
		ReadTimeout:  apiCfg.ReadTimeout,
		WriteTimeout: apiCfg.WriteTimeout,
		IdleTimeout:  apiCfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("ticketsd listening", map[string]interface{}{"operation": "main.serve", "addr": apiCfg.Addr})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
