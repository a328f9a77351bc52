// Package app wires the components from configuration. It is shared by
// the server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/sheikh-saqib/shadow-ledger/internal/config"
	"github.com/sheikh-saqib/shadow-ledger/internal/drift"
	"github.com/sheikh-saqib/shadow-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/shadow-ledger/internal/events/memory"
	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/ledger"
	memstore "github.com/sheikh-saqib/shadow-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/shadow-ledger/internal/storage/postgres"
)

type App struct {
	Config      *config.Config
	Store       interfaces.LedgerStore
	Publisher   interfaces.EventPublisher
	Subscriber  interfaces.EventSubscriber
	Ledger      *ledger.Ledger
	Projector   *ledger.Projector
	Detector    *drift.Detector
	Corrections *drift.CorrectionPublisher

	closers []func() error
}

// Build selects Postgres or the in-memory store and Kafka or the in-memory
// bus depending on which settings are present.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		a.Store = postgres.NewPostgresLedgerStore(db)
		slog.Info("using postgres ledger store")
	} else {
		a.Store = memstore.NewMemoryLedgerStore()
		slog.Warn("DATABASE_URL not set, using in-memory ledger store")
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(cfg.KafkaBrokers)
		a.closers = append(a.closers, pub.Close)
		a.Publisher = pub
		a.Subscriber = kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.EventTimeout, cfg.RetryBackoff)
		slog.Info("using kafka transport", "brokers", cfg.KafkaBrokers)
	} else {
		bus := memory.NewBus(memory.WithMaxAttempts(cfg.BusMaxAttempts))
		a.Publisher = bus
		a.Subscriber = bus
		slog.Warn("KAFKA_BROKERS not set, using in-memory transport")
	}

	a.Ledger = ledger.NewLedger(a.Store)
	a.Projector = ledger.NewProjector(a.Store)
	a.Corrections = drift.NewCorrectionPublisher(a.Publisher, cfg.TopicCorrections)
	a.Detector = drift.NewDetector(a.Projector, a.Corrections)
	return a, nil
}

// OpenDB connects and migrates without building the rest; used by the
// migrate command.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
