package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sheikh-saqib/shadow-ledger/internal/events"
	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/metrics"
	"github.com/sheikh-saqib/shadow-ledger/internal/trace"
)

const maxBackoff = 30 * time.Second

// Consumer reads topics as a member of a consumer group. An offset is
// committed only once the handler acknowledged the message, so a crash
// between handling and commit redelivers it.
type Consumer struct {
	brokers []string
	groupID string
	timeout time.Duration // per message
	backoff time.Duration // first retry delay, doubled per attempt
}

func NewConsumer(brokers []string, groupID string, timeout, backoff time.Duration) *Consumer {
	return &Consumer{
		brokers: brokers,
		groupID: groupID,
		timeout: timeout,
		backoff: backoff,
	}
}

// Subscribe blocks until ctx is done or the reader fails. Run it from
// several goroutines to spread partitions over more workers.
func (c *Consumer) Subscribe(ctx context.Context, topics []string, handler events.Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch from %v: %w", topics, err)
		}

		if err := c.handle(ctx, m, handler); err != nil {
			// only cancellation stops handling; the offset stays uncommitted
			return nil
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit %s/%d@%d: %w", m.Topic, m.Partition, m.Offset, err)
		}
	}
}

// handle retries transient failures on the same message, which keeps the
// partition ordered. It returns an error only when ctx is done.
func (c *Consumer) handle(ctx context.Context, m kafka.Message, handler events.Handler) error {
	msg := toMessage(m)
	hctx := trace.Ensure(ctx, msg.TraceID)
	log := trace.Logger(hctx).With("topic", m.Topic, "partition", m.Partition, "offset", m.Offset)

	for attempt := 1; ; attempt++ {
		err := c.call(hctx, handler, msg)
		if err == nil {
			return nil
		}
		if events.IsPermanent(err) {
			log.Warn("discarding message", "err", err)
			return nil
		}

		delay := c.delay(attempt)
		log.Error("failed to process message, will redeliver", "attempt", attempt, "retry_in", delay, "err", err)
		metrics.EventsRedelivered.WithLabelValues(m.Topic).Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Consumer) call(ctx context.Context, handler events.Handler, msg events.Message) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	err := handler(ctx, msg)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("handler timed out after %s: %w", c.timeout, err)
	}
	return err
}

func (c *Consumer) delay(attempt int) time.Duration {
	d := c.backoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func toMessage(m kafka.Message) events.Message {
	msg := events.Message{Topic: m.Topic, Key: string(m.Key), Value: m.Value}
	for _, h := range m.Headers {
		if h.Key == events.TraceHeader {
			msg.TraceID = string(h.Value)
		}
	}
	return msg
}

var _ interfaces.EventSubscriber = (*Consumer)(nil)
