package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison via errors.Is. These correspond to the
// engine's error taxonomy: a user-triggered event that does not belong
// on the originating node, a structural event reached from the wrong
// path, a process graph that could not be loaded, and logging/dispatch
// failures that abort the current advancement.
var (
	ErrInvalidTicket          = errors.New("invalid ticket: event not valid for trigger source")
	ErrInvalidEvent           = errors.New("invalid event: structurally unreachable from this path")
	ErrFailedToReadProcessData = errors.New("failed to read process graph")
	ErrFailedToLog            = errors.New("failed to write log entry")
	ErrFailedToExecuteCallback = errors.New("failed to execute callback")
	ErrFailedToNotify         = errors.New("failed to notify")
	ErrForbidden              = errors.New("forbidden: ticket is closed")
	ErrNotFound               = errors.New("ticket not found")
)

// EngineError carries structured context about a failed advancement:
// the operation, the ticket it concerned, and the underlying sentinel.
type EngineError struct {
	Op       string // e.g. "AdvanceEngine.Advance", "NodeExecutor.FireFromUser"
	Kind     string // e.g. "engine", "orchestrator", "store"
	TicketID int64
	NodeID   int
	Err      error
}

func (e *EngineError) Error() string {
	if e.Op != "" {
		if e.TicketID != 0 {
			return fmt.Sprintf("%s [ticket=%d node=%d]: %v", e.Op, e.TicketID, e.NodeID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Wrap builds an EngineError, defaulting Kind to "engine".
func Wrap(op string, ticketID int64, nodeID int, err error) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Kind: "engine", TicketID: ticketID, NodeID: nodeID, Err: err}
}

// IsInvalidTicket reports whether err is or wraps ErrInvalidTicket.
func IsInvalidTicket(err error) bool { return errors.Is(err, ErrInvalidTicket) }

// IsInvalidEvent reports whether err is or wraps ErrInvalidEvent.
func IsInvalidEvent(err error) bool { return errors.Is(err, ErrInvalidEvent) }

// IsForbidden reports whether err is or wraps ErrForbidden (closed-ticket
// update attempts map to HTTP 403 per spec's error propagation policy).
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsFatalToAdvancement reports whether err must abort the current
// advancement and roll back the enclosing transaction. All engine
// errors are fatal to the advancement; only notifier-ping failure and
// dispatched-callback failure are recovered locally by the caller.
func IsFatalToAdvancement(err error) bool {
	return errors.Is(err, ErrInvalidTicket) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrFailedToReadProcessData) ||
		errors.Is(err, ErrFailedToLog)
}
