package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry represents a single immutable ledger record for an account.
// Entries are only ever appended; corrections are new entries, never edits.
type LedgerEntry struct {
	EventID   string          `json:"eventId"`   // globally unique, the dedup key
	AccountID string          `json:"accountId"` // partition key for every balance computation
	Type      EntryType       `json:"type"`
	Amount    decimal.Decimal `json:"amount"`    // always > 0, the sign comes from Type
	Timestamp time.Time       `json:"timestamp"` // logical event time
	CreatedAt time.Time       `json:"createdAt"` // ingestion wall clock, set once
}

// SignedAmount returns the amount as it contributes to the account balance.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	return e.Type.Signed(e.Amount)
}

// Before reports whether e sorts before other in (timestamp, eventId) order.
func (e LedgerEntry) Before(other LedgerEntry) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.EventID < other.EventID
}
