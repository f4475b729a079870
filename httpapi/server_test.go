package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgraph/engine/engine"
	"github.com/ticketgraph/engine/orchestrator"
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

func newTestServer(t *testing.T) (*httptest.Server, *store.MemStore) {
	t.Helper()
	graph := approveGraph()
	catalog := fixedCatalog{graphs: map[string]*engine.ProcessGraph{graph.ProcessID: graph}}
	st := store.NewMemStore(map[int64]string{1: "alice", 2: "erp_admin"})
	orch := orchestrator.New(st, catalog, nil, nil)
	srv := NewServer(orch, st)
	return httptest.NewServer(srv), st
}

func TestCreateTicket_ReturnsCreatedWithTicketID(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(createTicketRequest{
		ProcessID: "approve_test", OwnerID: 1, OwnerName: "alice",
	})
	resp, err := http.Post(ts.URL+"/tickets", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var out createTicketResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(1), out.TicketID)
}

func TestCreateTicket_MissingFieldsReturnsBadRequest(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(createTicketRequest{OwnerName: "alice"})
	resp, err := http.Post(ts.URL+"/tickets", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateTicket_ApprovalReturnsAccepted(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	createBody, _ := json.Marshal(createTicketRequest{ProcessID: "approve_test", OwnerID: 1, OwnerName: "alice"})
	createResp, err := http.Post(ts.URL+"/tickets", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	var created createTicketResponse
	require.NoError(t, json.NewDecoder(createResp.Body).Decode(&created))
	createResp.Body.Close()

	updateBody, _ := json.Marshal(updateTicketRequest{
		TicketID: created.TicketID, UserID: 2, Node: 1, Status: true,
	})
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/tickets", bytes.NewReader(updateBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestUpdateTicket_ClosedTicketReturnsForbidden(t *testing.T) {
	ts, st := newTestServer(t)
	defer ts.Close()

	createBody, _ := json.Marshal(createTicketRequest{ProcessID: "approve_test", OwnerID: 1, OwnerName: "alice"})
	createResp, err := http.Post(ts.URL+"/tickets", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	var created createTicketResponse
	require.NoError(t, json.NewDecoder(createResp.Body).Decode(&created))
	createResp.Body.Close()

	updateBody, _ := json.Marshal(updateTicketRequest{TicketID: created.TicketID, UserID: 2, Node: 1, Status: true})
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/tickets", bytes.NewReader(updateBody))
	req.Header.Set("Content-Type", "application/json")
	firstResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	firstResp.Body.Close()

	// Second update against the now-closed ticket must be rejected.
	req2, _ := http.NewRequest(http.MethodPut, ts.URL+"/tickets", bytes.NewReader(updateBody))
	req2.Header.Set("Content-Type", "application/json")
	secondResp, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer secondResp.Body.Close()

	assert.Equal(t, http.StatusForbidden, secondResp.StatusCode)

	tx, err := st.BeginTx(context.Background())
	require.NoError(t, err)
	ticket, err := tx.GetTicketForUpdate(context.Background(), created.TicketID)
	require.NoError(t, err)
	tx.Rollback(context.Background())
	assert.Equal(t, engine.StatusClosed, ticket.Status)
}

func TestListTickets_ReturnsOwnedAndCurrentTickets(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	createBody, _ := json.Marshal(createTicketRequest{ProcessID: "approve_test", OwnerID: 1, OwnerName: "alice"})
	createResp, err := http.Post(ts.URL+"/tickets", "application/json", bytes.NewReader(createBody))
	require.NoError(t, err)
	createResp.Body.Close()

	resp, err := http.Get(ts.URL + "/tickets?user_id=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out userTicketsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.OwnTickets, 1)
	assert.Equal(t, "approve_test", out.OwnTickets[0].ProcessID)

	resp2, err := http.Get(ts.URL + "/tickets?user_id=2")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var out2 userTicketsResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&out2))
	require.Len(t, out2.CurrentTickets, 1)
	assert.Equal(t, "approve", out2.CurrentTickets[0].Type)
}

func TestListTickets_InvalidUserIDReturnsBadRequest(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/tickets?user_id=not-a-number")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAndListRoles(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(createRoleRequest{Role: "erp_admin"})
	resp, err := http.Post(ts.URL+"/roles", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	listResp, err := http.Get(ts.URL + "/roles")
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var roles []string
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&roles))
	assert.Contains(t, roles, "erp_admin")
}
