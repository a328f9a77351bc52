package ledger

import (
	"context"
	"encoding/json"

	"github.com/sheikh-saqib/shadow-ledger/internal/events"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/sheikh-saqib/shadow-ledger/internal/trace"
)

// HandleMessage is the events.Handler for both the raw and the corrections
// topic. Rejections are marked permanent; infrastructure errors are
// returned as is so the transport redelivers.
func (l *Ledger) HandleMessage(ctx context.Context, msg events.Message) error {
	log := trace.Logger(ctx).With("topic", msg.Topic, "key", msg.Key)

	var ev models.TransactionEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		log.Warn("dropping undecodable message", "err", err)
		return events.Permanent(&MalformedEventError{Field: "payload", Reason: err.Error()})
	}
	if msg.Key != "" && msg.Key != ev.AccountID {
		log.Warn("partition key does not match account", "account_id", ev.AccountID)
	}

	log.Info("consumed event", "event_id", ev.EventID, "account_id", ev.AccountID, "kind", ev.Kind())
	if _, err := l.ProcessEvent(ctx, ev); err != nil {
		if IsRejection(err) {
			return events.Permanent(err)
		}
		return err
	}
	return nil
}
