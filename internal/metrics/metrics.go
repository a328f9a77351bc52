package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadow_ledger_events_processed_total",
		Help: "Events handled by the ingestor, labelled by origin and outcome.",
	}, []string{"kind", "outcome"})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shadow_ledger_event_processing_duration_seconds",
		Help:    "Time spent deciding and persisting a single event.",
		Buckets: prometheus.DefBuckets,
	})

	EventsRedelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadow_ledger_events_redelivered_total",
		Help: "Messages handed to the handler again after a transient failure.",
	}, []string{"topic"})

	DriftChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadow_ledger_drift_checks_total",
		Help: "Reported balances checked, labelled by result (in_sync, drift, unknown_account, error).",
	}, []string{"result"})

	CorrectionsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadow_ledger_corrections_published_total",
		Help: "Correction events published, labelled by kind (automatic, manual) and type.",
	}, []string{"kind", "type"})
)
