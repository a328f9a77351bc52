package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// EntryType is the direction of a ledger entry. The zero value is invalid.
type EntryType uint8

const (
	Credit EntryType = iota + 1
	Debit
)

var ErrUnknownEntryType = errors.New("unknown entry type")

// ParseEntryType accepts "credit" or "debit" in any letter case.
func ParseEntryType(s string) (EntryType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREDIT":
		return Credit, nil
	case "DEBIT":
		return Debit, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEntryType, s)
}

func (t EntryType) String() string {
	switch t {
	case Credit:
		return "CREDIT"
	case Debit:
		return "DEBIT"
	}
	return fmt.Sprintf("EntryType(%d)", uint8(t))
}

func (t EntryType) Valid() bool {
	return t == Credit || t == Debit
}

// Signed applies the direction to a positive amount: credits add, debits subtract.
func (t EntryType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == Debit {
		return amount.Neg()
	}
	return amount
}

func (t EntryType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntryType, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *EntryType) UnmarshalText(text []byte) error {
	parsed, err := ParseEntryType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
