package models

import "github.com/shopspring/decimal"

// CbsBalance is a point-in-time balance reported by the core banking system.
type CbsBalance struct {
	AccountID       string          `json:"accountId"`
	ReportedBalance decimal.Decimal `json:"reportedBalance"`
}

// ShadowBalance is the balance derived from the shadow ledger.
// LastEventID is nil when the account has no entries.
type ShadowBalance struct {
	AccountID   string          `json:"accountId"`
	Balance     decimal.Decimal `json:"balance"`
	LastEventID *string         `json:"lastEventId"`
}

// Known reports whether the shadow ledger has ever recorded the account.
func (s ShadowBalance) Known() bool {
	return s.LastEventID != nil
}
