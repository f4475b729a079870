package engine

// ProcessCatalog resolves a process id to its immutable ProcessGraph.
type ProcessCatalog interface {
	Get(processID string) (*ProcessGraph, error)
}

// PendingCallback pairs a node's configured callbacks with the ticket
// and payload context the dispatcher needs, queued for post-commit
// dispatch by the orchestrator.
type PendingCallback struct {
	TicketID  int64
	NodeIndex int
	Payload   map[string]interface{}
	Callbacks []Callback
}

// AdvanceResult is the output of one advancement: the UserActions to
// persist, in traversal order, and the callbacks queued along the way.
type AdvanceResult struct {
	Actions   []UserAction
	Callbacks []PendingCallback
}

// AdvanceEngine drives one advancement: it fires the originating node,
// then drains a FIFO queue of auto-completable successors until none
// remain.
type AdvanceEngine struct {
	catalog  ProcessCatalog
	executor *NodeExecutor
}

// NewAdvanceEngine builds an AdvanceEngine over the given catalog.
func NewAdvanceEngine(catalog ProcessCatalog) *AdvanceEngine {
	return &AdvanceEngine{catalog: catalog, executor: NewNodeExecutor()}
}

// Advance processes a single external event at node for ticket, mutating
// ticket's Complete mask in place (ticket.State is not touched here; the
// orchestrator merges the payload into it before calling Advance), and
// returns the ordered UserActions to persist plus any callbacks to
// dispatch post-commit.
//
// The ordering invariant holds by construction: a Completion UserAction
// is only emitted by FireAuto on a Complete node, which has no
// successors, so nothing enqueued after it can emit another action
// ahead of it in the output — and since pending is a FIFO, any
// Completion emitted is appended last among the entries still
// outstanding when it fires. Combined with the fact that a Complete
// node's predecessors require every other node done, a Completion is
// always the terminal node reached in a traversal and thus the last
// element appended to the result.
func (e *AdvanceEngine) Advance(ticket *Ticket, node int, payload map[string]interface{}) (AdvanceResult, error) {
	graph, err := e.catalog.Get(ticket.ProcessID)
	if err != nil {
		return AdvanceResult{}, Wrap("AdvanceEngine.Advance", ticket.ID, node, ErrFailedToReadProcessData)
	}

	var result AdvanceResult

	initial, err := e.executor.FireFromUser(ticket, graph, node)
	if err != nil {
		return AdvanceResult{}, err
	}
	if len(initial.Callbacks) > 0 {
		result.Callbacks = append(result.Callbacks, PendingCallback{
			TicketID: ticket.ID, NodeIndex: node, Payload: payload, Callbacks: initial.Callbacks,
		})
	}

	pending := append([]int{}, initial.CompletableSteps...)
	for len(pending) > 0 {
		n := pending[0]
		pending = pending[1:]

		fired, err := e.executor.FireAuto(ticket, graph, n)
		if err != nil {
			return AdvanceResult{}, err
		}
		pending = append(pending, fired.CompletableSteps...)
		if fired.Action != nil {
			result.Actions = append(result.Actions, *fired.Action)
		}
		if len(fired.Callbacks) > 0 {
			result.Callbacks = append(result.Callbacks, PendingCallback{
				TicketID: ticket.ID, NodeIndex: n, Payload: payload, Callbacks: fired.Callbacks,
			})
		}
	}

	return result, nil
}
