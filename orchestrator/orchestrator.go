// Package orchestrator composes engine.AdvanceEngine with store.Store to
// turn one HTTP-level create/update request into a single transaction:
// persist the ticket mutation, materialize every UserAction the engine
// emitted into its table, and only after a successful commit fire the
// notifier ping and any HTTP callbacks the traversal queued.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ticketgraph/engine/engine"
	"github.com/ticketgraph/engine/platform"
	"github.com/ticketgraph/engine/store"
)

// Notifier pings the notification delivery side out-of-band; failure is
// recoverable (the notification row is already committed) so callers
// log and continue rather than fail the request.
type Notifier interface {
	Ping(ctx context.Context) error
}

// CallbackDispatcher executes one node's configured callbacks against
// external services. Failure is recoverable per the same rule as Notifier.
type CallbackDispatcher interface {
	Dispatch(ctx context.Context, pc engine.PendingCallback) error
}

// CreateTicketRequest is the input to Create.
type CreateTicketRequest struct {
	ProcessID string
	OwnerID   int64
	OwnerName string
	IsPublic  bool
	Data      map[string]interface{}
}

// UpdateTicketRequest is the input to Update.
type UpdateTicketRequest struct {
	TicketID  int64
	UserID    int64
	NodeIndex int
	Approved  bool // false means the user rejected an Approve/BlockingTask node
	Data      map[string]interface{}
}

// TicketOrchestrator is the transactional boundary around AdvanceEngine:
// every Create/Update runs in one store transaction, and the notifier
// ping plus callback dispatch for whatever the engine queued are only
// fired once that transaction has committed.
type TicketOrchestrator struct {
	store     store.Store
	catalog   engine.ProcessCatalog
	advance   *engine.AdvanceEngine
	notifier  Notifier
	callback  CallbackDispatcher
	logger    platform.Logger
	telemetry platform.Telemetry
}

// Option configures a TicketOrchestrator.
type Option func(*TicketOrchestrator)

// WithLogger overrides the default NoOpLogger.
func WithLogger(logger platform.Logger) Option {
	return func(o *TicketOrchestrator) { o.logger = logger }
}

// WithTelemetry overrides the default NoOpTelemetry.
func WithTelemetry(t platform.Telemetry) Option {
	return func(o *TicketOrchestrator) { o.telemetry = t }
}

// New builds a TicketOrchestrator. notifier and callback may be nil if
// the deployment has no Redis pub/sub or no process uses callbacks;
// both are checked for nil before use.
func New(st store.Store, catalog engine.ProcessCatalog, notifier Notifier, callback CallbackDispatcher, opts ...Option) *TicketOrchestrator {
	o := &TicketOrchestrator{
		store:     st,
		catalog:   catalog,
		advance:   engine.NewAdvanceEngine(catalog),
		notifier:  notifier,
		callback:  callback,
		logger:    platform.NoOpLogger{},
		telemetry: platform.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if cal, ok := o.logger.(platform.ComponentAwareLogger); ok {
		o.logger = cal.WithComponent("orchestrator")
	}
	return o
}

// Create inserts a new ticket, assigns the owner an active ticket on
// node 0, fires the process's Initiate node, and materializes whatever
// the resulting advancement queues — all in one transaction. The
// notifier ping and any callbacks fire only after a successful commit.
func (o *TicketOrchestrator) Create(ctx context.Context, req CreateTicketRequest) (ticketID int64, err error) {
	ctx, span := o.telemetry.StartSpan(ctx, "orchestrator.create_ticket")
	defer span.End()
	start := time.Now()

	graph, err := o.catalog.Get(req.ProcessID)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: resolve process %q: %w", req.ProcessID, err)
	}

	logID := uuid.New().String()
	ticket := &engine.Ticket{
		OwnerID:   req.OwnerID,
		OwnerName: req.OwnerName,
		ProcessID: req.ProcessID,
		LogID:     logID,
		IsPublic:  req.IsPublic,
		Status:    engine.StatusOpen,
		Complete:  engine.NewCompletionMask(len(graph.Steps)),
		State:     req.Data,
	}

	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: begin tx: %w", err)
	}
	defer rollbackOnPanic(ctx, tx)

	id, err := tx.InsertTicket(ctx, ticket)
	if err != nil {
		tx.Rollback(ctx)
		return 0, fmt.Errorf("orchestrator: insert ticket: %w", err)
	}
	o.logger.InfoWithContext(ctx, "ticket created", map[string]interface{}{
		"operation": "orchestrator.create_ticket", "ticket_id": id, "process_id": req.ProcessID, "owner_id": req.OwnerID,
	})

	if err := tx.InsertActiveUserTicket(ctx, engine.ActiveUserTicket{
		UserID: req.OwnerID, TicketID: id, NodeIndex: 0, Kind: "own", Active: true,
	}); err != nil {
		tx.Rollback(ctx)
		return 0, fmt.Errorf("orchestrator: insert owner active ticket: %w", err)
	}

	result, err := o.advance.Advance(ticket, 0, req.Data)
	if err != nil {
		tx.Rollback(ctx)
		span.RecordError(err)
		o.logger.ErrorWithContext(ctx, "advance failed on create", map[string]interface{}{
			"operation": "orchestrator.create_ticket", "ticket_id": id, "error": err.Error(),
		})
		return 0, err
	}

	if err := o.materialize(ctx, tx, ticket, result.Actions); err != nil {
		tx.Rollback(ctx)
		return 0, err
	}

	if err := tx.UpdateTicket(ctx, ticket); err != nil {
		tx.Rollback(ctx)
		return 0, fmt.Errorf("orchestrator: update ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("orchestrator: commit: %w", err)
	}

	o.telemetry.RecordMetric("orchestrator.tickets.created", 1, map[string]string{"process_id": req.ProcessID})
	o.telemetry.RecordMetric("orchestrator.transaction.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"operation": "create"})

	o.dispatchPostCommit(ctx, result)
	return id, nil
}

// Update applies one external event (an Approve decision, or a
// BlockingTask completion re-entering from the callback fabric) to an
// existing ticket. Notify, NonBlockingTask and Complete nodes are not
// accepted here: the engine rejects them with ErrInvalidTicket. A ticket
// that is no longer open (closed or rejected) is refused with
// ErrForbidden. Rejection marks the ticket rejected and deactivates every
// pending active-ticket row without invoking the engine at all, matching
// the original handler's reject-short-circuit.
func (o *TicketOrchestrator) Update(ctx context.Context, req UpdateTicketRequest) error {
	ctx, span := o.telemetry.StartSpan(ctx, "orchestrator.update_ticket")
	defer span.End()
	start := time.Now()

	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: begin tx: %w", err)
	}
	defer rollbackOnPanic(ctx, tx)

	ticket, err := tx.GetTicketForUpdate(ctx, req.TicketID)
	if err != nil {
		tx.Rollback(ctx)
		return err
	}
	if ticket.Status != engine.StatusOpen {
		tx.Rollback(ctx)
		return engine.Wrap("TicketOrchestrator.Update", req.TicketID, req.NodeIndex, engine.ErrForbidden)
	}

	if err := tx.DeactivateActiveUserTicket(ctx, req.UserID, req.TicketID, req.NodeIndex); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("orchestrator: deactivate active ticket: %w", err)
	}

	if !req.Approved {
		ticket.Status = engine.StatusRejected
		if err := tx.UpdateTicket(ctx, ticket); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("orchestrator: reject ticket: %w", err)
		}
		if err := tx.DeactivateAllActiveUserTickets(ctx, req.TicketID); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("orchestrator: deactivate all active tickets on reject: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("orchestrator: commit reject: %w", err)
		}
		o.logger.InfoWithContext(ctx, "ticket rejected", map[string]interface{}{
			"operation": "orchestrator.update_ticket", "ticket_id": req.TicketID, "user_id": req.UserID, "node": req.NodeIndex,
			"data": req.Data,
		})
		o.telemetry.RecordMetric("orchestrator.tickets.updated", 1, map[string]string{"process_id": ticket.ProcessID, "result": "rejected"})
		o.telemetry.RecordMetric("orchestrator.transaction.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"operation": "reject"})
		return nil
	}

	ticket.MergeState(req.Data)

	result, err := o.advance.Advance(ticket, req.NodeIndex, req.Data)
	if err != nil {
		tx.Rollback(ctx)
		span.RecordError(err)
		o.logger.ErrorWithContext(ctx, "advance failed on update", map[string]interface{}{
			"operation": "orchestrator.update_ticket", "ticket_id": req.TicketID, "node": req.NodeIndex, "error": err.Error(),
		})
		return err
	}

	if err := o.materialize(ctx, tx, ticket, result.Actions); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.UpdateTicket(ctx, ticket); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("orchestrator: update ticket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("orchestrator: commit: %w", err)
	}

	o.telemetry.RecordMetric("orchestrator.tickets.updated", 1, map[string]string{"process_id": ticket.ProcessID, "result": "approved"})
	o.telemetry.RecordMetric("orchestrator.transaction.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"operation": "update"})

	o.dispatchPostCommit(ctx, result)
	return nil
}

// materialize turns the engine's ordered UserActions into store writes,
// all within tx. A Completion action closes the ticket and deactivates
// every remaining active row; ApproveRequest and Notify each insert one
// row, resolving the target username to a user id first.
func (o *TicketOrchestrator) materialize(ctx context.Context, tx store.Tx, ticket *engine.Ticket, actions []engine.UserAction) error {
	for _, action := range actions {
		switch action.Kind {
		case engine.ApproveRequest:
			userID, err := o.store.UserIDByUsername(ctx, action.TargetUsername)
			if err != nil {
				return fmt.Errorf("orchestrator: resolve approver %q: %w", action.TargetUsername, err)
			}
			if err := tx.InsertActiveUserTicket(ctx, engine.ActiveUserTicket{
				UserID: userID, TicketID: action.TicketID, NodeIndex: action.NodeIndex, Kind: "approve", Active: true,
			}); err != nil {
				return fmt.Errorf("orchestrator: insert approve active ticket: %w", err)
			}
			o.logger.InfoWithContext(ctx, "approval requested", map[string]interface{}{
				"operation": "orchestrator.materialize", "ticket_id": action.TicketID, "approver": action.TargetUsername,
			})

		case engine.NotifyAction:
			userID, err := o.store.UserIDByUsername(ctx, action.TargetUsername)
			if err != nil {
				return fmt.Errorf("orchestrator: resolve notify target %q: %w", action.TargetUsername, err)
			}
			message := fmt.Sprintf("Ticket %d updated by %s. Process: %s", ticket.ID, ticket.OwnerName, ticket.ProcessID)
			if err := tx.InsertNotification(ctx, store.Notification{UserID: userID, Message: message}); err != nil {
				return fmt.Errorf("orchestrator: insert notification: %w", err)
			}
			o.logger.InfoWithContext(ctx, "notification queued", map[string]interface{}{
				"operation": "orchestrator.materialize", "ticket_id": action.TicketID, "target": action.TargetUsername,
			})

		case engine.Completion:
			ticket.Status = engine.StatusClosed
			if err := tx.DeactivateAllActiveUserTickets(ctx, action.TicketID); err != nil {
				return fmt.Errorf("orchestrator: deactivate all active tickets on completion: %w", err)
			}
			o.logger.InfoWithContext(ctx, "ticket completed", map[string]interface{}{
				"operation": "orchestrator.materialize", "ticket_id": action.TicketID,
			})
		}
	}
	return nil
}

// dispatchPostCommit fires the notifier ping and every queued callback
// after the transaction has already committed, logging failures as
// warnings rather than propagating them — the committed state is the
// source of truth and these side effects are retried by their own
// mechanisms (a later notifier poll, a manual callback retry).
func (o *TicketOrchestrator) dispatchPostCommit(ctx context.Context, result engine.AdvanceResult) {
	if len(result.Actions) > 0 && o.notifier != nil {
		hasNotify := false
		for _, a := range result.Actions {
			if a.Kind == engine.NotifyAction {
				hasNotify = true
				break
			}
		}
		if hasNotify {
			status := "ok"
			if err := o.notifier.Ping(ctx); err != nil {
				status = "error"
				o.logger.WarnWithContext(ctx, "failed to ping notifier", map[string]interface{}{
					"operation": "orchestrator.dispatch_post_commit", "error": err.Error(),
				})
			}
			o.telemetry.RecordMetric("orchestrator.notifier.ping", 1, map[string]string{"status": status})
		}
	}

	if o.callback == nil {
		return
	}
	for _, pc := range result.Callbacks {
		status := "ok"
		if err := o.callback.Dispatch(ctx, pc); err != nil {
			status = "error"
			o.logger.WarnWithContext(ctx, "failed to dispatch callback", map[string]interface{}{
				"operation": "orchestrator.dispatch_post_commit", "ticket_id": pc.TicketID, "node": pc.NodeIndex, "error": err.Error(),
			})
		}
		o.telemetry.RecordMetric("orchestrator.callback.dispatched", 1, map[string]string{"node_id": fmt.Sprintf("%d", pc.NodeIndex), "status": status})
	}
}

func rollbackOnPanic(ctx context.Context, tx store.Tx) {
	if r := recover(); r != nil {
		tx.Rollback(ctx)
		panic(r)
	}
}
