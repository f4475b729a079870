package store

import (
	"context"

	"github.com/ticketgraph/engine/engine"
)

// User is a row of the users table.
type User struct {
	UserID   int64
	Username string
}

// Notification is a row of the notifications table.
type Notification struct {
	UserID    int64
	Message   string
	CreatedAt int64 // unix seconds; store layer owns timestamp precision
}

// RoleDef is a row of the role_defs table.
type RoleDef struct {
	ID   int64
	Role string
}

// Store is the persistence boundary the orchestrator depends on. Every
// method that mutates ticket state takes a Tx so the orchestrator can
// compose several writes into one transaction; read-only lookups that
// don't need transactional consistency (UserIDByUsername, AllRoles) take
// a plain context.
type Store interface {
	// BeginTx starts a transaction. Callers must Commit or Rollback.
	BeginTx(ctx context.Context) (Tx, error)

	UserIDByUsername(ctx context.Context, username string) (int64, error)
	Username(ctx context.Context, userID int64) (string, error)
	AllRoles(ctx context.Context) ([]RoleDef, error)
	CreateRole(ctx context.Context, role string) (RoleDef, error)

	// ActiveTicketsForUser returns userID's ActiveUserTicket rows that
	// are still active; OwnedTickets returns the tickets ownerID owns.
	ActiveTicketsForUser(ctx context.Context, userID int64) ([]engine.ActiveUserTicket, error)
	OwnedTickets(ctx context.Context, ownerID int64) ([]engine.Ticket, error)
}

// Tx is one transactional unit of work against the ticket tables.
// Implementations must roll back automatically if neither Commit nor
// Rollback is called before the underlying connection is released.
type Tx interface {
	// InsertTicket inserts a new ticket row and returns its
	// engine-assigned id via RETURNING id — never a re-select keyed by
	// log_id (see DESIGN.md's log-id-as-identity resolution).
	InsertTicket(ctx context.Context, t *engine.Ticket) (int64, error)
	GetTicketForUpdate(ctx context.Context, ticketID int64) (*engine.Ticket, error)
	UpdateTicket(ctx context.Context, t *engine.Ticket) error

	InsertActiveUserTicket(ctx context.Context, row engine.ActiveUserTicket) error
	DeactivateActiveUserTicket(ctx context.Context, userID, ticketID int64, nodeIndex int) error
	DeactivateAllActiveUserTickets(ctx context.Context, ticketID int64) error

	InsertNotification(ctx context.Context, n Notification) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
