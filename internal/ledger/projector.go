package ledger

import (
	"context"

	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// Projector derives balances from the stored entries. It keeps no state
// of its own.
type Projector struct {
	store interfaces.LedgerStore
}

func NewProjector(store interfaces.LedgerStore) *Projector {
	return &Projector{store: store}
}

// BalanceOf is credits minus debits; zero for an account with no entries.
func (p *Projector) BalanceOf(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return p.store.Balance(ctx, accountID)
}

func (p *Projector) LatestEntry(ctx context.Context, accountID string) (*models.LedgerEntry, error) {
	return p.store.LatestEntry(ctx, accountID)
}

func (p *Projector) Entries(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	return p.store.EntriesByAccount(ctx, accountID)
}

// MinimumRunningBalance is an audit figure only; admission never uses it.
func (p *Projector) MinimumRunningBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if q, ok := p.store.(interfaces.MinimumBalanceQuerier); ok {
		return q.MinimumRunningBalance(ctx, accountID)
	}

	entries, err := p.store.EntriesByAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return RunningMinimum(entries), nil
}

// ShadowBalance combines the balance with the latest entry as a watermark.
func (p *Projector) ShadowBalance(ctx context.Context, accountID string) (models.ShadowBalance, error) {
	view := models.ShadowBalance{AccountID: accountID, Balance: decimal.Zero}

	latest, err := p.store.LatestEntry(ctx, accountID)
	if err != nil {
		return view, err
	}
	if latest == nil {
		return view, nil
	}

	balance, err := p.store.Balance(ctx, accountID)
	if err != nil {
		return view, err
	}
	view.Balance = balance
	view.LastEventID = &latest.EventID
	return view, nil
}

// RunningMinimum returns the lowest cumulative balance reached by entries,
// which must already be in (timestamp, eventId) order. The opening zero
// is not counted; an empty slice yields zero.
func RunningMinimum(entries []models.LedgerEntry) decimal.Decimal {
	if len(entries) == 0 {
		return decimal.Zero
	}

	running := decimal.Zero
	minimum := entries[0].SignedAmount()
	for _, e := range entries {
		running = running.Add(e.SignedAmount())
		if running.LessThan(minimum) {
			minimum = running
		}
	}
	return minimum
}
