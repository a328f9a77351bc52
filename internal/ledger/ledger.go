package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/metrics"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/sheikh-saqib/shadow-ledger/internal/trace"
	"github.com/shopspring/decimal"
)

// Column limits of the ledger table; longer ids would fail every retry.
const (
	maxEventIDLen   = 100
	maxAccountIDLen = 50

	// bounds on an amount's integer and fractional digits
	maxAmountIntDigits = 20
	maxAmountScale     = 18
)

// Outcome of a successfully handled event.
type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	}
	return "unknown"
}

// Ledger ingests transaction events into the shadow ledger.
// It holds a reference to the storage layer and a mutex per account so that
// events for one account are decided one at a time inside this process.
type Ledger struct {
	store interfaces.LedgerStore // the store also serializes per account, across processes
	muMap map[string]*sync.Mutex // stores the *sync.Mutex for each account in a map
	mapMu sync.Mutex             // protects the muMap itself
	now   func() time.Time
}

type Option func(*Ledger)

// WithClock replaces the wall clock used for createdAt and missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a Ledger on top of any LedgerStore implementation.
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		muMap: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) getAccountLock(accountID string) *sync.Mutex {

	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = &sync.Mutex{}
	}
	return l.muMap[accountID]
}

// ProcessEvent decides one event. The duplicate check, the debit admission
// check and the insert run as one unit of work for the account.
//
// A replayed event id returns OutcomeDuplicate with no error and no write.
// A debit larger than the current balance returns ErrInsufficientBalance.
// Debits are checked against the balance at processing time, not the
// balance as of the event's own timestamp, so out-of-order delivery can
// decide differently from a strictly time-ordered replay.
func (l *Ledger) ProcessEvent(ctx context.Context, ev models.TransactionEvent) (Outcome, error) {
	start := time.Now()
	log := trace.Logger(ctx).With("event_id", ev.EventID, "account_id", ev.AccountID)

	entry, err := ValidateEvent(ev, l.now())
	if err != nil {
		metrics.EventsProcessed.WithLabelValues(ev.Kind(), "malformed").Inc()
		log.Warn("rejected malformed event", "err", err)
		return 0, err
	}

	accountMu := l.getAccountLock(entry.AccountID)
	accountMu.Lock()
	defer accountMu.Unlock()

	var outcome Outcome
	err = l.store.WithinAccount(ctx, entry.AccountID, func(tx interfaces.AccountTx) error {
		exists, err := tx.EventExists(ctx, entry.EventID)
		if err != nil {
			return err
		}
		if exists {
			outcome = OutcomeDuplicate
			return nil
		}

		if entry.Type == models.Debit {
			balance, err := tx.Balance(ctx)
			if err != nil {
				return err
			}
			if entry.Amount.GreaterThan(balance) {
				return &InsufficientBalanceError{AccountID: entry.AccountID, Balance: balance, Amount: entry.Amount}
			}
		}

		if err := tx.Insert(ctx, entry); err != nil {
			if errors.Is(err, interfaces.ErrDuplicateEvent) {
				outcome = OutcomeDuplicate
				return nil
			}
			return err
		}
		outcome = OutcomeAccepted
		return nil
	})
	metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, interfaces.ErrDuplicateEvent):
		// lost a race with the same id on another account's unit of work
		outcome = OutcomeDuplicate
	case errors.Is(err, ErrInsufficientBalance):
		metrics.EventsProcessed.WithLabelValues(ev.Kind(), "insufficient_balance").Inc()
		log.Warn("rejected debit", "err", err)
		return 0, err
	case errors.Is(err, interfaces.ErrInvalidData):
		metrics.EventsProcessed.WithLabelValues(ev.Kind(), "malformed").Inc()
		log.Warn("store refused event data", "err", err)
		return 0, err
	case err != nil:
		metrics.EventsProcessed.WithLabelValues(ev.Kind(), "error").Inc()
		log.Error("failed to process event", "err", err)
		return 0, err
	}

	metrics.EventsProcessed.WithLabelValues(ev.Kind(), outcome.String()).Inc()
	if outcome == OutcomeDuplicate {
		log.Warn("duplicate event ignored")
	} else {
		log.Info("event stored", "type", entry.Type.String(), "amount", entry.Amount.String())
	}
	return outcome, nil
}

// ValidateEvent checks the required fields and builds the ledger entry.
// A missing timestamp defaults to now.
func ValidateEvent(ev models.TransactionEvent, now time.Time) (models.LedgerEntry, error) {
	switch {
	case strings.TrimSpace(ev.EventID) == "":
		return models.LedgerEntry{}, &MalformedEventError{Field: "eventId", Reason: "is required"}
	case len(ev.EventID) > maxEventIDLen:
		return models.LedgerEntry{}, &MalformedEventError{Field: "eventId", Reason: "is too long"}
	case !printable(ev.EventID):
		return models.LedgerEntry{}, &MalformedEventError{Field: "eventId", Reason: "contains invalid characters"}
	case strings.TrimSpace(ev.AccountID) == "":
		return models.LedgerEntry{}, &MalformedEventError{Field: "accountId", Reason: "is required"}
	case len(ev.AccountID) > maxAccountIDLen:
		return models.LedgerEntry{}, &MalformedEventError{Field: "accountId", Reason: "is too long"}
	case !printable(ev.AccountID):
		return models.LedgerEntry{}, &MalformedEventError{Field: "accountId", Reason: "contains invalid characters"}
	case strings.TrimSpace(ev.Type) == "":
		return models.LedgerEntry{}, &MalformedEventError{Field: "type", Reason: "is required"}
	}

	entryType, err := models.ParseEntryType(ev.Type)
	if err != nil {
		return models.LedgerEntry{}, &MalformedEventError{Field: "type", Reason: "must be CREDIT or DEBIT"}
	}

	// Basic validation: the amount must be positive
	if ev.Amount.Cmp(decimal.Zero) <= 0 {
		return models.LedgerEntry{}, &MalformedEventError{Field: "amount", Reason: "must be positive"}
	}
	if !amountInRange(ev.Amount) {
		return models.LedgerEntry{}, &MalformedEventError{Field: "amount", Reason: "is out of range"}
	}

	// postgres keeps microseconds; truncating keeps ordering identical across stores
	createdAt := now.UTC().Truncate(time.Microsecond)
	timestamp := createdAt
	if ev.Timestamp != nil && !ev.Timestamp.IsZero() {
		timestamp = ev.Timestamp.UTC().Truncate(time.Microsecond)
	}

	return models.LedgerEntry{
		EventID:   ev.EventID,
		AccountID: ev.AccountID,
		Type:      entryType,
		Amount:    ev.Amount,
		Timestamp: timestamp,
		CreatedAt: createdAt,
	}, nil
}

// printable is false for invalid UTF-8 and control characters, NUL
// included; postgres refuses both.
func printable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	return strings.IndexFunc(s, unicode.IsControl) < 0
}

func amountInRange(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if d.NumDigits()+exp > maxAmountIntDigits {
		return false
	}
	return -exp <= maxAmountScale
}
