package ledger

import (
	"errors"
	"fmt"

	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedEvent matches every *MalformedEventError. Malformed events
	// are never persisted and never worth retrying.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrInsufficientBalance matches every *InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// MalformedEventError names the offending field.
type MalformedEventError struct {
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %s %s", e.Field, e.Reason)
}

func (e *MalformedEventError) Is(target error) bool { return target == ErrMalformedEvent }

// InsufficientBalanceError is a debit that exceeds the projected balance.
type InsufficientBalanceError struct {
	AccountID string
	Balance   decimal.Decimal
	Amount    decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for account %s: balance %s, debit %s",
		e.AccountID, e.Balance.String(), e.Amount.String())
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// IsRejection reports whether err is a domain rejection rather than an
// infrastructure failure. Rejections are final; redelivery can't change them.
// Data the store itself refuses counts as malformed.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, interfaces.ErrInvalidData)
}
