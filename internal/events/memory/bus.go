// Package memory is an in-process transport with the same delivery
// contract as Kafka. Publish hands the message to every subscriber of the
// topic before returning, retrying transient handler failures.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sheikh-saqib/shadow-ledger/internal/events"
	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/metrics"
	"github.com/sheikh-saqib/shadow-ledger/internal/trace"
)

const defaultMaxAttempts = 3

type subscription struct {
	id      int
	handler events.Handler
}

type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]subscription // topic -> subscribers
	nextID      int
	maxAttempts int
}

type Option func(*Bus)

// WithMaxAttempts bounds deliveries of one message to one subscriber.
func WithMaxAttempts(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:        make(map[string][]subscription),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds handler for topics and returns a func that removes it.
func (b *Bus) Register(topics []string, handler events.Handler) (unregister func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	for _, t := range topics {
		b.subs[t] = append(b.subs[t], subscription{id: id, handler: handler})
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, t := range topics {
			kept := b.subs[t][:0]
			for _, s := range b.subs[t] {
				if s.id != id {
					kept = append(kept, s)
				}
			}
			b.subs[t] = kept
		}
	}
}

// Subscribe registers handler and blocks until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topics []string, handler events.Handler) error {
	unregister := b.Register(topics, handler)
	defer unregister()
	<-ctx.Done()
	return nil
}

// Publish delivers synchronously. It fails if any subscriber still returns
// a transient error after the last attempt, so the caller sees the message
// as not delivered.
func (b *Bus) Publish(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}
	msg := events.Message{Topic: topic, Key: key, Value: data, TraceID: trace.ID(ctx)}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.deliver(ctx, s.handler, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, handler events.Handler, msg events.Message) error {
	hctx := trace.Ensure(ctx, msg.TraceID)
	var err error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = handler(hctx, msg)
		if err == nil {
			return nil
		}
		if events.IsPermanent(err) {
			trace.Logger(hctx).Warn("message rejected permanently", "topic", msg.Topic, "key", msg.Key, "err", err)
			return nil
		}
		slog.Default().Debug("redelivering message", "topic", msg.Topic, "attempt", attempt, "err", err)
		metrics.EventsRedelivered.WithLabelValues(msg.Topic).Inc()
	}
	return fmt.Errorf("deliver to %s after %d attempts: %w", msg.Topic, b.maxAttempts, err)
}

var (
	_ interfaces.EventPublisher  = (*Bus)(nil)
	_ interfaces.EventSubscriber = (*Bus)(nil)
)
