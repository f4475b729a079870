package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver registration for sqlx
	"github.com/jmoiron/sqlx"

	"github.com/ticketgraph/engine/engine"
	"github.com/ticketgraph/engine/platform"
)

// Schema is the DDL for the five tables this store reads and writes,
// with one column beyond spec.md §6: tickets.owner_name, which supplies
// the owner's name in notification messages. state is jsonb; complete
// is always bigint and is read and written through MaskFromInt64/AsInt64,
// so a persisted mask holds at most 64 steps — there is no bytea path,
// and AsInt64 panics on a mask wider than one word.
const Schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id BIGSERIAL PRIMARY KEY,
	owner_id BIGINT NOT NULL,
	owner_name TEXT NOT NULL DEFAULT '',
	process_id TEXT NOT NULL,
	log_id TEXT NOT NULL,
	is_public BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	status TEXT NOT NULL DEFAULT 'open',
	complete BIGINT NOT NULL DEFAULT 0,
	state JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS user_active_tickets (
	userid BIGINT NOT NULL,
	ticketid BIGINT NOT NULL REFERENCES tickets(id),
	active BOOLEAN NOT NULL DEFAULT true,
	node_number INT NOT NULL,
	type_ TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	userid BIGINT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS notifications (
	userid BIGINT NOT NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS role_defs (
	id BIGSERIAL PRIMARY KEY,
	role_ TEXT NOT NULL UNIQUE
);
`

// PGStore is the Postgres-backed Store, using pgx as the driver and
// sqlx for struct scanning over database/sql.
type PGStore struct {
	db     *sqlx.DB
	pool   *pgxpool.Pool
	logger platform.Logger
}

// Open connects to Postgres using cfg and returns a ready PGStore.
func Open(ctx context.Context, cfg *Config, logger platform.Logger) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	db, err := sqlx.Open("pgx", cfg.DSN())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: sqlx open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if logger == nil {
		logger = platform.NoOpLogger{}
	}
	if cal, ok := logger.(platform.ComponentAwareLogger); ok {
		logger = cal.WithComponent("store/postgres")
	}

	return &PGStore{db: db, pool: pool, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return s.db.Close()
}

func (s *PGStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (s *PGStore) UserIDByUsername(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `SELECT userid FROM users WHERE username = $1`, username)
	if err != nil {
		return 0, fmt.Errorf("store: user %q: %w", username, engine.ErrNotFound)
	}
	return id, nil
}

func (s *PGStore) Username(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name, `SELECT username FROM users WHERE userid = $1`, userID)
	if err != nil {
		return "", fmt.Errorf("store: user id %d: %w", userID, engine.ErrNotFound)
	}
	return name, nil
}

func (s *PGStore) AllRoles(ctx context.Context) ([]RoleDef, error) {
	var rows []struct {
		ID   int64  `db:"id"`
		Role string `db:"role_"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, role_ FROM role_defs ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: list roles: %w", err)
	}
	out := make([]RoleDef, len(rows))
	for i, r := range rows {
		out[i] = RoleDef{ID: r.ID, Role: r.Role}
	}
	return out, nil
}

func (s *PGStore) CreateRole(ctx context.Context, role string) (RoleDef, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `INSERT INTO role_defs (role_) VALUES ($1) RETURNING id`, role)
	if err != nil {
		return RoleDef{}, fmt.Errorf("store: create role: %w", err)
	}
	return RoleDef{ID: id, Role: role}, nil
}

func (s *PGStore) ActiveTicketsForUser(ctx context.Context, userID int64) ([]engine.ActiveUserTicket, error) {
	var rows []struct {
		UserID    int64  `db:"userid"`
		TicketID  int64  `db:"ticketid"`
		NodeIndex int    `db:"node_number"`
		Kind      string `db:"type_"`
		Active    bool   `db:"active"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT userid, ticketid, node_number, type_, active FROM user_active_tickets WHERE userid = $1 AND active = true`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: active tickets for user %d: %w", userID, err)
	}
	out := make([]engine.ActiveUserTicket, len(rows))
	for i, r := range rows {
		out[i] = engine.ActiveUserTicket{
			UserID: r.UserID, TicketID: r.TicketID, NodeIndex: r.NodeIndex, Kind: r.Kind, Active: r.Active,
		}
	}
	return out, nil
}

func (s *PGStore) OwnedTickets(ctx context.Context, ownerID int64) ([]engine.Ticket, error) {
	var rows []ticketRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tickets WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: owned tickets for %d: %w", ownerID, err)
	}
	out := make([]engine.Ticket, len(rows))
	for i, r := range rows {
		t, err := r.toTicket()
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// ticketRow is the sqlx scan target for the tickets table.
type ticketRow struct {
	ID        int64  `db:"id"`
	OwnerID   int64  `db:"owner_id"`
	OwnerName string `db:"owner_name"`
	ProcessID string `db:"process_id"`
	LogID     string `db:"log_id"`
	IsPublic  bool      `db:"is_public"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	Status    string `db:"status"`
	Complete  int64  `db:"complete"`
	State     []byte `db:"state"`
}

func (r ticketRow) toTicket() (engine.Ticket, error) {
	var state map[string]interface{}
	if len(r.State) > 0 {
		if err := json.Unmarshal(r.State, &state); err != nil {
			return engine.Ticket{}, fmt.Errorf("store: unmarshal ticket %d state: %w", r.ID, err)
		}
	}
	return engine.Ticket{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		OwnerName: r.OwnerName,
		ProcessID: r.ProcessID,
		LogID:     r.LogID,
		IsPublic:  r.IsPublic,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Status:    engine.TicketStatus(r.Status),
		Complete:  engine.MaskFromInt64(r.Complete),
		State:     state,
	}, nil
}

var _ Store = (*PGStore)(nil)
