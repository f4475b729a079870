package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ticketgraph/engine/engine"
)

// pgTx implements Tx over a single *sqlx.Tx, using RETURNING id on
// insert so the engine-assigned ticket id is never discovered via a
// re-select keyed by log_id.
type pgTx struct {
	tx *sqlx.Tx
}

func (p *pgTx) InsertTicket(ctx context.Context, t *engine.Ticket) (int64, error) {
	stateJSON, err := json.Marshal(t.State)
	if err != nil {
		return 0, fmt.Errorf("store: marshal ticket state: %w", err)
	}
	var id int64
	err = p.tx.GetContext(ctx, &id, `
		INSERT INTO tickets (owner_id, owner_name, process_id, log_id, is_public, status, complete, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		t.OwnerID, t.OwnerName, t.ProcessID, t.LogID, t.IsPublic, string(t.Status), t.Complete.AsInt64(), stateJSON)
	if err != nil {
		return 0, fmt.Errorf("store: insert ticket: %w", err)
	}
	t.ID = id
	return id, nil
}

func (p *pgTx) GetTicketForUpdate(ctx context.Context, ticketID int64) (*engine.Ticket, error) {
	var row ticketRow
	err := p.tx.GetContext(ctx, &row, `SELECT * FROM tickets WHERE id = $1 FOR UPDATE`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("store: ticket %d: %w", ticketID, engine.ErrNotFound)
	}
	t, err := row.toTicket()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *pgTx) UpdateTicket(ctx context.Context, t *engine.Ticket) error {
	stateJSON, err := json.Marshal(t.State)
	if err != nil {
		return fmt.Errorf("store: marshal ticket state: %w", err)
	}
	_, err = p.tx.ExecContext(ctx, `
		UPDATE tickets SET status = $1, complete = $2, state = $3, updated_at = now()
		WHERE id = $4`,
		string(t.Status), t.Complete.AsInt64(), stateJSON, t.ID)
	if err != nil {
		return fmt.Errorf("store: update ticket %d: %w", t.ID, err)
	}
	return nil
}

func (p *pgTx) InsertActiveUserTicket(ctx context.Context, row engine.ActiveUserTicket) error {
	_, err := p.tx.ExecContext(ctx, `
		INSERT INTO user_active_tickets (userid, ticketid, active, node_number, type_)
		VALUES ($1, $2, $3, $4, $5)`,
		row.UserID, row.TicketID, row.Active, row.NodeIndex, row.Kind)
	if err != nil {
		return fmt.Errorf("store: insert active user ticket: %w", err)
	}
	return nil
}

func (p *pgTx) DeactivateActiveUserTicket(ctx context.Context, userID, ticketID int64, nodeIndex int) error {
	_, err := p.tx.ExecContext(ctx, `
		UPDATE user_active_tickets SET active = false
		WHERE userid = $1 AND ticketid = $2 AND node_number = $3`,
		userID, ticketID, nodeIndex)
	if err != nil {
		return fmt.Errorf("store: deactivate active user ticket: %w", err)
	}
	return nil
}

func (p *pgTx) DeactivateAllActiveUserTickets(ctx context.Context, ticketID int64) error {
	_, err := p.tx.ExecContext(ctx, `UPDATE user_active_tickets SET active = false WHERE ticketid = $1`, ticketID)
	if err != nil {
		return fmt.Errorf("store: deactivate all active user tickets for %d: %w", ticketID, err)
	}
	return nil
}

func (p *pgTx) InsertNotification(ctx context.Context, n Notification) error {
	_, err := p.tx.ExecContext(ctx, `INSERT INTO notifications (userid, message) VALUES ($1, $2)`, n.UserID, n.Message)
	if err != nil {
		return fmt.Errorf("store: insert notification: %w", err)
	}
	return nil
}

func (p *pgTx) Commit(ctx context.Context) error {
	if err := p.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (p *pgTx) Rollback(ctx context.Context) error {
	if err := p.tx.Rollback(); err != nil {
		return fmt.Errorf("store: rollback: %w", err)
	}
	return nil
}

var _ Tx = (*pgTx)(nil)
