package drift

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/ledger"
	"github.com/sheikh-saqib/shadow-ledger/internal/metrics"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/sheikh-saqib/shadow-ledger/internal/trace"
	"github.com/shopspring/decimal"
)

// CorrectionPublisher puts corrections on the corrections topic, keyed by
// account like organic events, so they go through the same ingestion path.
type CorrectionPublisher struct {
	publisher interfaces.EventPublisher
	topic     string
}

func NewCorrectionPublisher(publisher interfaces.EventPublisher, topic string) *CorrectionPublisher {
	return &CorrectionPublisher{publisher: publisher, topic: topic}
}

func (c *CorrectionPublisher) Publish(ctx context.Context, ev models.TransactionEvent) error {
	log := trace.Logger(ctx).With("event_id", ev.EventID, "account_id", ev.AccountID)

	if err := c.publisher.Publish(ctx, c.topic, ev.AccountID, ev); err != nil {
		log.Error("failed to publish correction", "topic", c.topic, "err", err)
		return fmt.Errorf("publish correction %s: %w", ev.EventID, err)
	}

	metrics.CorrectionsPublished.WithLabelValues(ev.Kind(), ev.Type).Inc()
	log.Info("correction published", "topic", c.topic, "type", ev.Type, "amount", ev.Amount.String())
	return nil
}

// ManualCorrection issues an operator correction. It is always a CREDIT:
// there is no manual debit path, so an overstated shadow balance can only
// be brought down by drift detection against a reported balance.
func (c *CorrectionPublisher) ManualCorrection(ctx context.Context, accountID string, amount decimal.Decimal) (models.TransactionEvent, error) {
	ev := models.TransactionEvent{
		EventID:   models.ManualPrefix + uuid.NewString(),
		AccountID: accountID,
		Type:      models.Credit.String(),
		Amount:    amount,
	}
	// reject here what the ingestor would reject later anyway
	if _, err := ledger.ValidateEvent(ev, time.Now()); err != nil {
		return models.TransactionEvent{}, err
	}

	trace.Logger(ctx).Info("manual correction requested", "account_id", accountID, "amount", amount.String())
	if err := c.Publish(ctx, ev); err != nil {
		return models.TransactionEvent{}, err
	}
	return ev, nil
}
