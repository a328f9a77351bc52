package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id         BIGSERIAL PRIMARY KEY,
	event_id   VARCHAR(100) NOT NULL,
	account_id VARCHAR(50)  NOT NULL,
	type       VARCHAR(10)  NOT NULL CHECK (type IN ('CREDIT', 'DEBIT')),
	amount     NUMERIC      NOT NULL CHECK (amount > 0),
	timestamp  TIMESTAMPTZ  NOT NULL,
	created_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
	CONSTRAINT ledger_entries_event_id_key UNIQUE (event_id)
);

CREATE INDEX IF NOT EXISTS idx_account_timestamp
	ON ledger_entries (account_id, timestamp, event_id);
`

// Open connects to dsn through the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the ledger table and its indexes if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return wrapErr("migrate", err)
	}
	return nil
}
