package engine

import "time"

// TicketStatus is the lifecycle state of a Ticket. Transitions are
// terminal: open → {closed, rejected}, and closed/rejected never
// transition further.
type TicketStatus string

const (
	StatusOpen     TicketStatus = "open"
	StatusClosed   TicketStatus = "closed"
	StatusRejected TicketStatus = "rejected"
)

// Ticket is one live execution of a named process.
type Ticket struct {
	ID         int64
	OwnerID    int64
	OwnerName  string
	ProcessID  string
	LogID      string
	IsPublic   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Status     TicketStatus
	Complete   CompletionMask
	State      map[string]interface{}
}

// Touch advances UpdatedAt to now. Called on every mutation.
func (t *Ticket) Touch() {
	t.UpdatedAt = time.Now()
}

// MergeState shallow-overlays data into t.State, caller values winning
// on key collision.
func (t *Ticket) MergeState(data map[string]interface{}) {
	if len(data) == 0 {
		return
	}
	if t.State == nil {
		t.State = make(map[string]interface{}, len(data))
	}
	for k, v := range data {
		t.State[k] = v
	}
}

// UserActionKind identifies what persistent effect a UserAction requires.
type UserActionKind int

const (
	ApproveRequest UserActionKind = iota
	NotifyAction
	Completion
)

func (k UserActionKind) String() string {
	switch k {
	case ApproveRequest:
		return "ApproveRequest"
	case NotifyAction:
		return "Notify"
	case Completion:
		return "Completion"
	default:
		return "Unknown"
	}
}

// UserAction is an ephemeral intent emitted by NodeExecutor that the
// orchestrator must materialize into persistent rows (ActiveUserTicket
// or a notification) or a ticket-status transition.
type UserAction struct {
	Kind           UserActionKind
	TicketID       int64
	NodeIndex      int
	TargetUsername string // present for ApproveRequest and Notify, empty for Completion
}

// ActiveUserTicket is the persisted materialization of a UserAction.
type ActiveUserTicket struct {
	UserID    int64
	TicketID  int64
	NodeIndex int
	Kind      string // "own", "approve", "notify" — persisted type_ column
	Active    bool
}
