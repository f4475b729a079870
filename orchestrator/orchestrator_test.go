package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgraph/engine/engine"
	"github.com/ticketgraph/engine/store"
)

type fixedCatalog struct {
	graphs map[string]*engine.ProcessGraph
}

func (c fixedCatalog) Get(processID string) (*engine.ProcessGraph, error) {
	g, ok := c.graphs[processID]
	if !ok {
		return nil, engine.ErrFailedToReadProcessData
	}
	return g, nil
}

// initiateGraph: node0=Initiate -> node1=Complete.
func initiateGraph() *engine.ProcessGraph {
	return &engine.ProcessGraph{
		ProcessID: "initiate_test",
		Steps: []engine.Step{
			{Event: engine.Initiate, Next: []int{1}},
			{Event: engine.Complete},
		},
	}
}

// approveGraph: node0=Initiate -> node1=Approve(erp_admin) -> node2=Complete.
func approveGraph() *engine.ProcessGraph {
	return &engine.ProcessGraph{
		ProcessID: "approve_test",
		Steps: []engine.Step{
			{Event: engine.Initiate, Next: []int{1}},
			{Event: engine.Approve, Required: []int{0}, Next: []int{2}, Args: []string{"erp_admin"}},
			{Event: engine.Complete},
		},
	}
}

type countingNotifier struct {
	mu    sync.Mutex
	pings int
}

func (n *countingNotifier) Ping(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pings++
	return nil
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []engine.PendingCallback
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, pc engine.PendingCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, pc)
	return nil
}

func newTestStore() *store.MemStore {
	return store.NewMemStore(map[int64]string{1: "alice", 2: "erp_admin"})
}

func TestCreate_TwoNodeProcessClosesImmediately(t *testing.T) {
	ctx := context.Background()
	graph := initiateGraph()
	catalog := fixedCatalog{graphs: map[string]*engine.ProcessGraph{graph.ProcessID: graph}}
	st := newTestStore()
	orch := New(st, catalog, nil, nil)

	id, err := orch.Create(ctx, CreateTicketRequest{ProcessID: graph.ProcessID, OwnerID: 1, OwnerName: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	tx, err := st.BeginTx(ctx)
	require.NoError(t, err)
	ticket, err := tx.GetTicketForUpdate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusClosed, ticket.Status)

	active, err := st.ActiveTicketsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, active, 0)
}

func TestCreate_ApproveProcessLeavesOwnerAndApproverActive(t *testing.T) {
	ctx := context.Background()
	graph := approveGraph()
	catalog := fixedCatalog{graphs: map[string]*engine.ProcessGraph{graph.ProcessID: graph}}
	st := newTestStore()
	orch := New(st, catalog, nil, nil)

	id, err := orch.Create(ctx, CreateTicketRequest{ProcessID: graph.ProcessID, OwnerID: 1, OwnerName: "alice"})
	require.NoError(t, err)

	ownerActive, err := st.ActiveTicketsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ownerActive, 1)
	assert.Equal(t, "own", ownerActive[0].Kind)

	approverActive, err := st.ActiveTicketsForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, approverActive, 1)
	assert.Equal(t, "approve", approverActive[0].Kind)
	assert.Equal(t, id, approverActive[0].TicketID)
}

func TestUpdate_ApprovalClosesTicketAndDeactivatesAll(t *testing.T) {
	ctx := context.Background()
	graph := approveGraph()
	catalog := fixedCatalog{graphs: map[string]*engine.ProcessGraph{graph.ProcessID: graph}}
	st := newTestStore()
	orch := New(st, catalog, nil, nil)

	id, err := orch.Create(ctx, CreateTicketRequest{ProcessID: graph.ProcessID, OwnerID: 1, OwnerName: "alice"})
	require.NoError(t, err)

	err = orch.Update(ctx, UpdateTicketRequest{TicketID: id, UserID: 2, NodeIndex: 1, Approved: true})
	require.NoError(t, err)

	tx, err := st.BeginTx(ctx)
	require.NoError(t, err)
	ticket, err := tx.GetTicketForUpdate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusClosed, ticket.Status)

	ownerActive, err := st.ActiveTicketsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, ownerActive, 0)
}

func TestUpdate_RejectionClosesAsRejectedWithoutAdvancing(t *testing.T) {
	ctx := context.Background()
	graph := approveGraph()
	catalog := fixedCatalog{graphs: map[string]*engine.ProcessGraph{graph.ProcessID: graph}}
	st := newTestStore()
	orch := New(st, catalog, nil, nil)

	id, err := orch.Create(ctx, CreateTicketRequest{ProcessID: graph.ProcessID, OwnerID: 1, OwnerName: "alice"})
	require.NoError(t, err)

	err = orch.Update(ctx, UpdateTicketRequest{TicketID: id, UserID: 2, NodeIndex: 1, Approved: false})
	require.NoError(t, err)

	tx, err := st.BeginTx(ctx)
	require.NoError(t, err)
	ticket, err := tx.GetTicketForUpdate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRejected, ticket.Status)

	ownerActive, err := st.ActiveTicketsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, ownerActive, 0)
}

func TestUpdate_ClosedTicketIsForbidden(t *testing.T) {
	ctx := context.Background()
	graph := initiateGraph()
	catalog := fixedCatalog{graphs: map[string]*engine.ProcessGraph{graph.ProcessID: graph}}
	st := newTestStore()
	orch := New(st, catalog, nil, nil)

	id, err := orch.Create(ctx, CreateTicketRequest{ProcessID: graph.ProcessID, OwnerID: 1, OwnerName: "alice"})
	require.NoError(t, err)

	err = orch.Update(ctx, UpdateTicketRequest{TicketID: id, UserID: 1, NodeIndex: 0, Approved: true})
	require.Error(t, err)
	assert.True(t, engine.IsForbidden(err))
}

func TestCreate_DispatchesCallbacksAfterCommit(t *testing.T) {
	ctx := context.Background()
	graph := &engine.ProcessGraph{
		ProcessID: "callback_test",
		Steps: []engine.Step{
			{Event: engine.Initiate, Next: []int{1}},
			{Event: engine.NonBlockingTask, Required: []int{0}, Next: []int{2},
				Callbacks: []engine.Callback{{Name: "notify_erp", URL: "http://erp.internal/hook"}}},
			{Event: engine.Complete},
		},
	}
	catalog := fixedCatalog{graphs: map[string]*engine.ProcessGraph{graph.ProcessID: graph}}
	st := newTestStore()
	dispatcher := &recordingDispatcher{}
	orch := New(st, catalog, nil, dispatcher)

	_, err := orch.Create(ctx, CreateTicketRequest{ProcessID: graph.ProcessID, OwnerID: 1, OwnerName: "alice"})
	require.NoError(t, err)

	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "notify_erp", dispatcher.calls[0].Callbacks[0].Name)
}
