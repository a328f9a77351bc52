package interfaces

import (
	"context"

	"github.com/sheikh-saqib/shadow-ledger/internal/events"
)

// EventPublisher sends event on topic, partitioned by key. Events sharing
// a key are delivered in publish order.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// EventSubscriber delivers messages from topics to handler until ctx ends.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topics []string, handler events.Handler) error
}
