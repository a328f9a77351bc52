package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sheikh-saqib/shadow-ledger/internal/events/memory"
)

var restartDelay = 5 * time.Second

// StartConsumers subscribes the ledger to the raw and corrections topics
// and returns a func that blocks until every consumer has stopped. Kafka
// readers that fail are restarted until ctx ends.
func (a *App) StartConsumers(ctx context.Context) (wait func()) {
	topics := a.Config.Topics()

	// one registration is enough in process; more would deliver each message twice
	if bus, ok := a.Subscriber.(*memory.Bus); ok {
		unregister := bus.Register(topics, a.Ledger.HandleMessage)
		return func() {
			<-ctx.Done()
			unregister()
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < a.Config.ConsumerWorkers; i++ {
		wg.Go(func() {
			for ctx.Err() == nil {
				err := a.Subscriber.Subscribe(ctx, topics, a.Ledger.HandleMessage)
				if err == nil {
					continue
				}
				slog.Error("consumer stopped, restarting", "worker", i, "err", err)
				select {
				case <-ctx.Done():
				case <-time.After(restartDelay):
				}
			}
		})
	}
	slog.Info("consumers started", "workers", a.Config.ConsumerWorkers, "topics", topics)
	return wg.Wait
}
