package drift

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/shadow-ledger/internal/ledger"
	"github.com/sheikh-saqib/shadow-ledger/internal/metrics"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/sheikh-saqib/shadow-ledger/internal/trace"
	"github.com/shopspring/decimal"
)

const defaultConcurrency = 8

// ShadowReader is the read side the detector compares against.
type ShadowReader interface {
	ShadowBalance(ctx context.Context, accountID string) (models.ShadowBalance, error)
}

// Detector compares reported balances with the shadow ledger and publishes
// a correction for any difference. It holds no state between calls.
type Detector struct {
	shadow      ShadowReader
	corrections *CorrectionPublisher
	concurrency int
}

func NewDetector(shadow ShadowReader, corrections *CorrectionPublisher) *Detector {
	return &Detector{
		shadow:      shadow,
		corrections: corrections,
		concurrency: defaultConcurrency,
	}
}

// CheckAndCorrect publishes and returns a correction when the reported
// balance differs from the shadow balance by any amount. Accounts the
// shadow ledger has never seen are left alone.
//
// The shadow balance may move between the read and the correction being
// ingested; the next check converges it.
func (d *Detector) CheckAndCorrect(ctx context.Context, cbs models.CbsBalance) (*models.TransactionEvent, error) {
	log := trace.Logger(ctx).With("account_id", cbs.AccountID)

	if cbs.AccountID == "" {
		metrics.DriftChecks.WithLabelValues("error").Inc()
		return nil, &ledger.MalformedEventError{Field: "accountId", Reason: "is required"}
	}

	shadow, err := d.shadow.ShadowBalance(ctx, cbs.AccountID)
	if err != nil {
		metrics.DriftChecks.WithLabelValues("error").Inc()
		log.Error("failed to read shadow balance", "err", err)
		return nil, err
	}
	if !shadow.Known() {
		metrics.DriftChecks.WithLabelValues("unknown_account").Inc()
		log.Info("skipping drift check for unknown account")
		return nil, nil
	}

	correction, ok := Correction(cbs, shadow.Balance)
	if !ok {
		metrics.DriftChecks.WithLabelValues("in_sync").Inc()
		return nil, nil
	}

	metrics.DriftChecks.WithLabelValues("drift").Inc()
	log.Warn("drift detected",
		"reported", cbs.ReportedBalance.String(),
		"shadow", shadow.Balance.String(),
		"correction", correction.Type+" "+correction.Amount.String())

	if err := d.corrections.Publish(ctx, correction); err != nil {
		return nil, err
	}
	return &correction, nil
}

// Correction builds the event that moves shadow to the reported balance.
// The comparison is exact; ok is false when there is nothing to correct.
func Correction(cbs models.CbsBalance, shadow decimal.Decimal) (ev models.TransactionEvent, ok bool) {
	diff := cbs.ReportedBalance.Sub(shadow)
	if diff.IsZero() {
		return models.TransactionEvent{}, false
	}

	entryType := models.Credit
	if diff.IsNegative() {
		entryType = models.Debit
	}
	return models.TransactionEvent{
		EventID:   models.CorrectionPrefix + uuid.NewString(),
		AccountID: cbs.AccountID,
		Type:      entryType.String(),
		Amount:    diff.Abs(),
	}, true
}

// Result is the outcome for one account of a batch.
type Result struct {
	AccountID  string
	Correction *models.TransactionEvent
	Err        error
}

// CheckBatch checks every balance independently, a few at a time. A
// failure for one account never undoes or blocks the others. Results are
// in input order.
func (d *Detector) CheckBatch(ctx context.Context, balances []models.CbsBalance) []Result {
	results := make([]Result, len(balances))
	sem := make(chan struct{}, d.concurrency)

	var wg sync.WaitGroup
	for i, cbs := range balances {
		results[i].AccountID = cbs.AccountID
		wg.Go(func() {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return
			}
			results[i].Correction, results[i].Err = d.CheckAndCorrect(ctx, cbs)
		})
	}
	wg.Wait()
	return results
}

// Failed returns the account ids whose check did not complete.
func Failed(results []Result) []string {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.AccountID)
		}
	}
	return failed
}
