package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event id prefixes that mark synthetic corrections. Corrections are plain
// TransactionEvents otherwise.
const (
	CorrectionPrefix = "CORR-"
	ManualPrefix     = "MANUAL-"
)

// TransactionEvent is the wire shape shared by organic events and
// corrections on both the raw and the corrections topic.
type TransactionEvent struct {
	EventID   string          `json:"eventId"`
	AccountID string          `json:"accountId"`
	Type      string          `json:"type"` // CREDIT or DEBIT, any case
	Amount    decimal.Decimal `json:"amount"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// Kind labels the event origin for logs and metrics.
func (e TransactionEvent) Kind() string {
	switch {
	case strings.HasPrefix(e.EventID, CorrectionPrefix):
		return "automatic"
	case strings.HasPrefix(e.EventID, ManualPrefix):
		return "manual"
	}
	return "organic"
}
