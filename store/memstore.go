package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ticketgraph/engine/engine"
)

// MemStore is an in-memory Store, used by the engine's own test suite
// and by callers that don't need durability (e.g. local development
// without Postgres).
type MemStore struct {
	mu sync.Mutex

	nextTicketID int64
	tickets      map[int64]*engine.Ticket
	activeUser   map[string]*engine.ActiveUserTicket // key: fmt.Sprintf("%d/%d/%d", userID, ticketID, nodeIndex)
	users        map[int64]string
	usernameIdx  map[string]int64
	notifications []Notification
	roles        []RoleDef
	nextRoleID   int64
}

// NewMemStore returns an empty MemStore seeded with the given users.
func NewMemStore(users map[int64]string) *MemStore {
	usernameIdx := make(map[string]int64, len(users))
	for id, name := range users {
		usernameIdx[name] = id
	}
	return &MemStore{
		nextTicketID: 1,
		tickets:      make(map[int64]*engine.Ticket),
		activeUser:   make(map[string]*engine.ActiveUserTicket),
		users:        users,
		usernameIdx:  usernameIdx,
		nextRoleID:   1,
	}
}

func (m *MemStore) BeginTx(ctx context.Context) (Tx, error) {
	return &memTx{store: m}, nil
}

func (m *MemStore) UserIDByUsername(ctx context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usernameIdx[username]
	if !ok {
		return 0, fmt.Errorf("store: user %q: %w", username, engine.ErrNotFound)
	}
	return id, nil
}

func (m *MemStore) Username(ctx context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.users[userID]
	if !ok {
		return "", fmt.Errorf("store: user id %d: %w", userID, engine.ErrNotFound)
	}
	return name, nil
}

func (m *MemStore) AllRoles(ctx context.Context) ([]RoleDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoleDef, len(m.roles))
	copy(out, m.roles)
	return out, nil
}

func (m *MemStore) CreateRole(ctx context.Context, role string) (RoleDef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rd := RoleDef{ID: m.nextRoleID, Role: role}
	m.nextRoleID++
	m.roles = append(m.roles, rd)
	return rd, nil
}

func (m *MemStore) ActiveTicketsForUser(ctx context.Context, userID int64) ([]engine.ActiveUserTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []engine.ActiveUserTicket
	for _, row := range m.activeUser {
		if row.UserID == userID && row.Active {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *MemStore) OwnedTickets(ctx context.Context, ownerID int64) ([]engine.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []engine.Ticket
	for _, t := range m.tickets {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func activeKey(userID, ticketID int64, nodeIndex int) string {
	return fmt.Sprintf("%d/%d/%d", userID, ticketID, nodeIndex)
}

// memTx buffers every write in-process and applies them to the
// MemStore's maps only on Commit, so a Rollback (or a Commit never
// called) leaves the store exactly as it was — mirroring the
// atomicity guarantee spec.md §4.4 requires of a real transaction.
type memTx struct {
	store    *MemStore
	ops      []func()
	done     bool
	inserted map[int64]bool // ticket ids inserted by this tx, not yet committed
}

func (tx *memTx) InsertTicket(ctx context.Context, t *engine.Ticket) (int64, error) {
	tx.store.mu.Lock()
	id := tx.store.nextTicketID
	tx.store.nextTicketID++
	tx.store.mu.Unlock()

	t.ID = id
	if tx.inserted == nil {
		tx.inserted = make(map[int64]bool)
	}
	tx.inserted[id] = true
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	snapshot := *t
	snapshot.Complete = t.Complete.Clone()
	snapshot.State = cloneState(t.State)
	tx.ops = append(tx.ops, func() {
		tx.store.tickets[id] = &snapshot
	})
	return id, nil
}

func (tx *memTx) GetTicketForUpdate(ctx context.Context, ticketID int64) (*engine.Ticket, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	t, ok := tx.store.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("store: ticket %d: %w", ticketID, engine.ErrNotFound)
	}
	clone := *t
	clone.Complete = t.Complete.Clone()
	clone.State = cloneState(t.State)
	return &clone, nil
}

func (tx *memTx) UpdateTicket(ctx context.Context, t *engine.Ticket) error {
	tx.store.mu.Lock()
	_, ok := tx.store.tickets[t.ID]
	tx.store.mu.Unlock()
	if !ok && !tx.inserted[t.ID] {
		return fmt.Errorf("store: ticket %d: %w", t.ID, engine.ErrNotFound)
	}
	snapshot := *t
	snapshot.Complete = t.Complete.Clone()
	snapshot.State = cloneState(t.State)
	tx.ops = append(tx.ops, func() {
		tx.store.tickets[t.ID] = &snapshot
	})
	return nil
}

func (tx *memTx) InsertActiveUserTicket(ctx context.Context, row engine.ActiveUserTicket) error {
	tx.ops = append(tx.ops, func() {
		r := row
		tx.store.activeUser[activeKey(row.UserID, row.TicketID, row.NodeIndex)] = &r
	})
	return nil
}

func (tx *memTx) DeactivateActiveUserTicket(ctx context.Context, userID, ticketID int64, nodeIndex int) error {
	tx.ops = append(tx.ops, func() {
		if row, ok := tx.store.activeUser[activeKey(userID, ticketID, nodeIndex)]; ok {
			row.Active = false
		}
	})
	return nil
}

func (tx *memTx) DeactivateAllActiveUserTickets(ctx context.Context, ticketID int64) error {
	tx.ops = append(tx.ops, func() {
		for _, row := range tx.store.activeUser {
			if row.TicketID == ticketID {
				row.Active = false
			}
		}
	})
	return nil
}

func (tx *memTx) InsertNotification(ctx context.Context, n Notification) error {
	tx.ops = append(tx.ops, func() {
		tx.store.notifications = append(tx.store.notifications, n)
	})
	return nil
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("store: transaction already finished")
	}
	tx.done = true
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, op := range tx.ops {
		op()
	}
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	tx.done = true
	tx.ops = nil
	return nil
}

func cloneState(state map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

var (
	_ Store = (*MemStore)(nil)
	_ Tx    = (*memTx)(nil)
)
