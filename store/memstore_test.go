package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgraph/engine/engine"
)

func TestMemStoreInsertAndGetTicket(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore(map[int64]string{1: "alice"})

	tx, err := ms.BeginTx(ctx)
	require.NoError(t, err)

	ticket := &engine.Ticket{
		OwnerID:   1,
		ProcessID: "initiate_test",
		Status:    engine.StatusOpen,
		Complete:  engine.NewCompletionMask(2),
		State:     map[string]interface{}{"foo": "bar"},
	}
	id, err := tx.InsertTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := ms.BeginTx(ctx)
	require.NoError(t, err)
	loaded, err := tx2.GetTicketForUpdate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "initiate_test", loaded.ProcessID)
	assert.Equal(t, "bar", loaded.State["foo"])
}

func TestMemStoreRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore(nil)

	tx, err := ms.BeginTx(ctx)
	require.NoError(t, err)
	ticket := &engine.Ticket{ProcessID: "p", Complete: engine.NewCompletionMask(1)}
	id, err := tx.InsertTicket(ctx, ticket)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	tx2, err := ms.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx2.GetTicketForUpdate(ctx, id)
	assert.Error(t, err)
}

func TestMemStoreActiveUserTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore(map[int64]string{1: "alice"})

	tx, err := ms.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertActiveUserTicket(ctx, engine.ActiveUserTicket{
		UserID: 1, TicketID: 1, NodeIndex: 0, Kind: "own", Active: true,
	}))
	require.NoError(t, tx.Commit(ctx))

	rows, err := ms.ActiveTicketsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	tx2, err := ms.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.DeactivateActiveUserTicket(ctx, 1, 1, 0))
	require.NoError(t, tx2.Commit(ctx))

	rows, err = ms.ActiveTicketsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 0)
}

func TestMemStoreUserLookup(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore(map[int64]string{7: "erp_admin"})

	id, err := ms.UserIDByUsername(ctx, "erp_admin")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = ms.UserIDByUsername(ctx, "nobody")
	assert.Error(t, err)
}

func TestMemStoreRoles(t *testing.T) {
	ctx := context.Background()
	ms := NewMemStore(nil)

	rd, err := ms.CreateRole(ctx, "approver")
	require.NoError(t, err)
	assert.Equal(t, "approver", rd.Role)

	roles, err := ms.AllRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
}
