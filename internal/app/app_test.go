package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/shadow-ledger/internal/config"
	"github.com/sheikh-saqib/shadow-ledger/internal/events"
	"github.com/sheikh-saqib/shadow-ledger/internal/events/memory"
	"github.com/sheikh-saqib/shadow-ledger/internal/ledger"
	"github.com/sheikh-saqib/shadow-ledger/internal/metrics"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	memstore "github.com/sheikh-saqib/shadow-ledger/internal/storage/memory"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.FromLookup(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func processed(t *testing.T, outcome string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.EventsProcessed.WithLabelValues("organic", outcome).Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestBuildWithoutBackendsUsesMemory(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, ok := a.Store.(*memstore.MemoryLedgerStore); !ok {
		t.Fatalf("store=%T want memory store", a.Store)
	}
	bus, ok := a.Publisher.(*memory.Bus)
	if !ok || a.Subscriber != bus {
		t.Fatalf("publisher=%T subscriber=%T want one memory bus", a.Publisher, a.Subscriber)
	}
}

func TestStartConsumers_MemoryBusDeliversOnce(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t, map[string]string{"CONSUMER_WORKERS": "4"}))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	wait := a.StartConsumers(ctx)

	accepted, duplicates := processed(t, "accepted"), processed(t, "duplicate")
	ev := models.TransactionEvent{EventID: "START-1", AccountID: "A", Type: "CREDIT", Amount: decimal.NewFromInt(5)}
	if err := a.Publisher.Publish(ctx, a.Config.TopicRaw, ev.AccountID, ev); err != nil {
		t.Fatal(err)
	}
	if got := processed(t, "accepted") - accepted; got != 1 {
		t.Fatalf("accepted=%v want 1", got)
	}
	if got := processed(t, "duplicate") - duplicates; got != 0 {
		t.Fatalf("message delivered %v extra times", got)
	}

	cancel()
	wait()

	// unregistered once stopped
	late := models.TransactionEvent{EventID: "START-2", AccountID: "A", Type: "CREDIT", Amount: decimal.NewFromInt(5)}
	if err := a.Publisher.Publish(context.Background(), a.Config.TopicRaw, late.AccountID, late); err != nil {
		t.Fatal(err)
	}
	bal, err := a.Projector.BalanceOf(context.Background(), "A")
	if err != nil || !bal.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("balance=%s err=%v want 5", bal, err)
	}
}

// flakySubscriber fails its first Subscribe and blocks on later ones.
type flakySubscriber struct {
	mu      sync.Mutex
	calls   int
	topics  []string
	resumed chan struct{}
}

func (f *flakySubscriber) Subscribe(ctx context.Context, topics []string, handler events.Handler) error {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.topics = topics
	f.mu.Unlock()

	if calls == 1 {
		return errors.New("broker gone")
	}
	if calls == 2 {
		close(f.resumed)
	}
	<-ctx.Done()
	return nil
}

func TestStartConsumers_RestartsFailedSubscriber(t *testing.T) {
	old := restartDelay
	restartDelay = time.Millisecond
	t.Cleanup(func() { restartDelay = old })

	store := memstore.NewMemoryLedgerStore()
	sub := &flakySubscriber{resumed: make(chan struct{})}
	a := &App{
		Config:     testConfig(t, map[string]string{"CONSUMER_WORKERS": "1"}),
		Store:      store,
		Subscriber: sub,
		Ledger:     ledger.NewLedger(store),
	}

	ctx, cancel := context.WithCancel(context.Background())
	wait := a.StartConsumers(ctx)

	select {
	case <-sub.resumed:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber was not restarted")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumers did not stop")
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.calls != 2 {
		t.Fatalf("calls=%d want 2", sub.calls)
	}
	if !slices.Equal(sub.topics, a.Config.Topics()) {
		t.Fatalf("topics=%v want %v", sub.topics, a.Config.Topics())
	}
}
