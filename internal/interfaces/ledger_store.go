package interfaces

import (
	"context"
	"errors"

	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// ErrDuplicateEvent is returned by Insert when the event id is already
// stored. Stores enforce this independently of any caller-side check.
var ErrDuplicateEvent = errors.New("duplicate event id")

// ErrInvalidData is wrapped by store errors caused by the values written
// rather than the store's availability. Retrying cannot succeed.
var ErrInvalidData = errors.New("data rejected by store")

// AccountTx is a unit of work scoped to one account. Reads and the insert
// made through it are serialized against every other AccountTx for the
// same account.
type AccountTx interface {
	EventExists(ctx context.Context, eventID string) (bool, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	Insert(ctx context.Context, entry models.LedgerEntry) error
}

type LedgerStore interface {
	// WithinAccount runs fn as one atomic unit for accountID. If fn returns
	// an error nothing it inserted is kept.
	WithinAccount(ctx context.Context, accountID string, fn func(tx AccountTx) error) error

	EventExists(ctx context.Context, eventID string) (bool, error)
	// Balance is credits minus debits, zero for an unknown account.
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
	// LatestEntry returns the entry with the greatest (timestamp, eventId),
	// or nil when the account has none.
	LatestEntry(ctx context.Context, accountID string) (*models.LedgerEntry, error)
	// EntriesByAccount returns entries ordered by (timestamp, eventId).
	EntriesByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
}

// MinimumBalanceQuerier is implemented by stores that can compute the
// running minimum balance themselves instead of handing back every entry.
type MinimumBalanceQuerier interface {
	MinimumRunningBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}
