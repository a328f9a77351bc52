package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation = pq.ErrorCode("23505")
	dataException   = pq.ErrorClass("22")
)

const entryColumns = `event_id, account_id, type, amount, timestamp, created_at`

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// WithinAccount runs fn inside a transaction holding a transaction-scoped
// advisory lock on the account, so concurrent debits for one account are
// serialized across every process sharing the database.
func (p *PostgresLedgerStore) WithinAccount(ctx context.Context, accountID string, fn func(tx interfaces.AccountTx) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", err)
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const lock = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	if _, err = dbTx.ExecContext(ctx, lock, accountID); err != nil {
		return wrapErr("lock account", err)
	}

	if err = fn(&postgresTx{tx: dbTx, accountID: accountID}); err != nil {
		return err
	}

	if err = dbTx.Commit(); err != nil {
		return wrapErr("commit", err)
	}
	return nil
}

func (p *PostgresLedgerStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	return eventExists(ctx, p.db, eventID)
}

func (p *PostgresLedgerStore) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return balance(ctx, p.db, accountID)
}

func (p *PostgresLedgerStore) LatestEntry(ctx context.Context, accountID string) (*models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
	WHERE account_id = $1
	ORDER BY timestamp DESC, event_id COLLATE "C" DESC
	LIMIT 1`

	entry, err := scanEntry(p.db.QueryRowContext(ctx, query, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("latest entry", err)
	}
	return &entry, nil
}

func (p *PostgresLedgerStore) EntriesByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
	WHERE account_id = $1
	ORDER BY timestamp, event_id COLLATE "C"`

	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, wrapErr("entries by account", err)
	}

	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, wrapErr("scan entry", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("entries by account", err)
	}
	return entries, nil
}

// MinimumRunningBalance computes the lowest cumulative balance in
// (timestamp, eventId) order with a window function. Zero when empty.
func (p *PostgresLedgerStore) MinimumRunningBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	const query = `
	WITH running AS (
		SELECT SUM(CASE WHEN type = 'CREDIT' THEN amount ELSE -amount END) OVER (
			ORDER BY timestamp, event_id COLLATE "C"
			ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
		) AS running_sum
		FROM ledger_entries
		WHERE account_id = $1
	)
	SELECT COALESCE(MIN(running_sum), 0) FROM running`

	var minimum decimal.Decimal
	if err := p.db.QueryRowContext(ctx, query, accountID).Scan(&minimum); err != nil {
		return decimal.Zero, wrapErr("minimum running balance", err)
	}
	return minimum, nil
}

// postgresTx is the AccountTx bound to an open transaction.
type postgresTx struct {
	tx        *sql.Tx
	accountID string
}

func (t *postgresTx) EventExists(ctx context.Context, eventID string) (bool, error) {
	return eventExists(ctx, t.tx, eventID)
}

func (t *postgresTx) Balance(ctx context.Context) (decimal.Decimal, error) {
	return balance(ctx, t.tx, t.accountID)
}

// Insert relies on the unique event_id constraint; a conflicting row is
// reported as ErrDuplicateEvent without aborting the transaction.
func (t *postgresTx) Insert(ctx context.Context, entry models.LedgerEntry) error {
	if entry.AccountID != t.accountID {
		return fmt.Errorf("entry for account %s inserted in unit of work for %s", entry.AccountID, t.accountID)
	}

	const query = `INSERT INTO ledger_entries (event_id, account_id, type, amount, timestamp, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (event_id) DO NOTHING`

	res, err := t.tx.ExecContext(ctx, query,
		entry.EventID,
		entry.AccountID,
		entry.Type.String(),
		entry.Amount,
		entry.Timestamp,
		entry.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", interfaces.ErrDuplicateEvent, entry.EventID)
		}
		return wrapErr("insert entry", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("insert entry", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", interfaces.ErrDuplicateEvent, entry.EventID)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func eventExists(ctx context.Context, q queryer, eventID string) (bool, error) {
	const query = `SELECT 1 FROM ledger_entries WHERE event_id = $1 LIMIT 1`

	var exists int
	err := q.QueryRowContext(ctx, query, eventID).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("event exists", err)
	}

	return true, nil
}

func balance(ctx context.Context, q queryer, accountID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(CASE WHEN type = 'CREDIT' THEN amount ELSE -amount END), 0)
	FROM ledger_entries
	WHERE account_id = $1`

	var b decimal.Decimal
	if err := q.QueryRowContext(ctx, query, accountID).Scan(&b); err != nil {
		return decimal.Zero, wrapErr("balance", err)
	}
	return b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (models.LedgerEntry, error) {
	var (
		entry   models.LedgerEntry
		rawType string
	)
	if err := s.Scan(&entry.EventID, &entry.AccountID, &rawType, &entry.Amount, &entry.Timestamp, &entry.CreatedAt); err != nil {
		return models.LedgerEntry{}, err
	}
	t, err := models.ParseEntryType(rawType)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	entry.Type = t
	return entry, nil
}

// wrapErr adds the operation and, for server errors, the SQLSTATE name.
// Data exceptions (class 22) also wrap interfaces.ErrInvalidData.
func wrapErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == dataException {
			return fmt.Errorf("postgres %s: %s (%s): %w: %w", op, pqErr.Message, pqErr.Code.Name(), interfaces.ErrInvalidData, err)
		}
		return fmt.Errorf("postgres %s: %s (%s): %w", op, pqErr.Message, pqErr.Code.Name(), err)
	}
	return fmt.Errorf("postgres %s: %w", op, err)
}

var (
	_ interfaces.LedgerStore           = (*PostgresLedgerStore)(nil)
	_ interfaces.MinimumBalanceQuerier = (*PostgresLedgerStore)(nil)
)
