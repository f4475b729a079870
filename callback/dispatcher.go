// Package callback executes the HTTP callbacks a process step declares,
// POSTing the ticket's payload to each configured URL after the
// orchestrator's transaction has committed.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ticketgraph/engine/engine"
	"github.com/ticketgraph/engine/platform"
	"github.com/ticketgraph/engine/telemetry"
)

// HTTPDispatcher implements orchestrator.CallbackDispatcher by POSTing a
// JSON body to every Callback.URL on the node. One callback failing does
// not stop the others from being attempted.
type HTTPDispatcher struct {
	client *http.Client
	logger platform.Logger
}

// Option configures an HTTPDispatcher.
type Option func(*HTTPDispatcher)

// WithHTTPClient overrides the default client (e.g. to inject a
// transport wrapped with otelhttp instrumentation).
func WithHTTPClient(client *http.Client) Option {
	return func(d *HTTPDispatcher) { d.client = client }
}

// WithLogger overrides the default NoOpLogger.
func WithLogger(logger platform.Logger) Option {
	return func(d *HTTPDispatcher) { d.logger = logger }
}

// NewHTTPDispatcher builds a dispatcher whose default client propagates
// the caller's trace context to the callback target via otelhttp, with
// a 10s timeout, unless overridden.
func NewHTTPDispatcher(opts ...Option) *HTTPDispatcher {
	tracedClient := telemetry.NewTracedHTTPClient(nil)
	tracedClient.Timeout = 10 * time.Second
	d := &HTTPDispatcher{
		client: tracedClient,
		logger: platform.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if cal, ok := d.logger.(platform.ComponentAwareLogger); ok {
		d.logger = cal.WithComponent("callback")
	}
	return d
}

type callbackBody struct {
	TicketID  int64                  `json:"ticket_id"`
	NodeIndex int                    `json:"node_index"`
	Payload   map[string]interface{} `json:"payload"`
}

// Dispatch POSTs pc's payload to every callback on the node. It returns
// the first error encountered after attempting all of them, so a
// misconfigured URL doesn't prevent the others in the same node from
// firing.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, pc engine.PendingCallback) error {
	body, err := json.Marshal(callbackBody{TicketID: pc.TicketID, NodeIndex: pc.NodeIndex, Payload: pc.Payload})
	if err != nil {
		return fmt.Errorf("callback: marshal payload: %w", err)
	}

	var firstErr error
	for _, cb := range pc.Callbacks {
		if err := d.post(ctx, cb, body); err != nil {
			d.logger.WarnWithContext(ctx, "callback request failed", map[string]interface{}{
				"operation": "callback.dispatch", "ticket_id": pc.TicketID, "node": pc.NodeIndex,
				"callback": cb.Name, "url": cb.URL, "error": err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.logger.DebugWithContext(ctx, "callback request succeeded", map[string]interface{}{
			"operation": "callback.dispatch", "ticket_id": pc.TicketID, "node": pc.NodeIndex, "callback": cb.Name,
		})
	}
	return firstErr
}

func (d *HTTPDispatcher) post(ctx context.Context, cb engine.Callback, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cb.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", cb.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", cb.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback %s returned status %d", cb.Name, resp.StatusCode)
	}
	return nil
}
