package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

var schema = `
CREATE TABLE IF NOT EXISTS seats (
	seat_id   BIGINT PRIMARY KEY,
	event_id  BIGINT NOT NULL,
	section   TEXT NOT NULL,
	"row"     TEXT NOT NULL,
	number    TEXT NOT NULL,
	price     DOUBLE PRECISION NOT NULL,
	status    TEXT NOT NULL DEFAULT 'AVAILABLE'
);
CREATE INDEX IF NOT EXISTS idx_seats_event ON seats (event_id);

CREATE TABLE IF NOT EXISTS orders (
	order_id       BIGSERIAL PRIMARY KEY,
	user_id        BIGINT NOT NULL,
	event_id       BIGINT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	payment_status TEXT NOT NULL DEFAULT 'PENDING',
	order_total    DOUBLE PRECISION NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tickets (
	ticket_id  BIGSERIAL PRIMARY KEY,
	order_id   BIGINT NOT NULL REFERENCES orders (order_id),
	event_id   BIGINT NOT NULL,
	seat_id    BIGINT NOT NULL,
	price_paid DOUBLE PRECISION NOT NULL,
	UNIQUE (order_id, seat_id)
);

CREATE TABLE IF NOT EXISTS payments (
	payment_id BIGSERIAL PRIMARY KEY,
	order_id   BIGINT NOT NULL,
	amount     DOUBLE PRECISION NOT NULL,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL,
	reference  TEXT NOT NULL UNIQUE,
	tx_id      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sagas (
	saga_id         TEXT PRIMARY KEY,
	order_id        BIGINT NOT NULL DEFAULT 0,
	user_id         BIGINT NOT NULL,
	event_id        BIGINT NOT NULL,
	seat_ids        BIGINT[] NOT NULL,
	idempotency_key TEXT NOT NULL,
	step            TEXT NOT NULL,
	last_error      TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sagas_order ON sagas (order_id);
CREATE INDEX IF NOT EXISTS idx_sagas_step ON sagas (step, updated_at);
`

// Migrate applies the embedded schema. The original system created its
// tables on boot; this keeps that behavior.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
