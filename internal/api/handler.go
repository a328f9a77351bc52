package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/shadow-ledger/internal/drift"
	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/ledger"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/sheikh-saqib/shadow-ledger/internal/trace"
)

const (
	requestTimeout = 30 * time.Second

	maxEventBodyBytes = 64 << 10
	// per reported balance in a drift-check batch
	maxBalanceBytes = 1 << 10
)

// ShadowQuerier is the read side served under /accounts.
type ShadowQuerier interface {
	ShadowBalance(ctx context.Context, accountID string) (models.ShadowBalance, error)
	MinimumRunningBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Entries(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
}

// EventChecker answers whether an event id is already in the ledger.
type EventChecker interface {
	EventExists(ctx context.Context, eventID string) (bool, error)
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Shadow       ShadowQuerier
	Events       EventChecker
	Publisher    interfaces.EventPublisher // raw topic ingress
	RawTopic     string
	Detector     *drift.Detector
	Corrections  *drift.CorrectionPublisher
	MaxBatchSize int
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	deps Deps
}

// New creates an HTTP handler and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(traceMiddleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/events", h.ingestEvent)
	r.Route("/accounts/{accountId}", func(r chi.Router) {
		r.Get("/shadow-balance", h.shadowBalance)
		r.Get("/minimum-balance", h.minimumBalance)
		r.Get("/entries", h.entries)
	})
	r.Post("/drift-check", h.driftCheck)
	r.Post("/correct/{accountId}", h.manualCorrection)

	return r
}

// GET /health
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /events validates an event and publishes it onto the raw topic.
// The ledger itself is only written by the consumer.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ev models.TransactionEvent
	body := http.MaxBytesReader(w, r.Body, maxEventBodyBytes)
	if err := json.NewDecoder(body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if _, err := ledger.ValidateEvent(ev, time.Now()); err != nil {
		writeDomainError(w, err)
		return
	}

	exists, err := h.deps.Events.EventExists(ctx, ev.EventID)
	if err != nil {
		trace.Logger(ctx).Error("failed to check event id", "event_id", ev.EventID, "err", err)
		writeDomainError(w, err)
		return
	}
	if exists {
		trace.Logger(ctx).Warn("duplicate event id at ingress", "event_id", ev.EventID)
		writeError(w, http.StatusConflict, "duplicate eventId")
		return
	}

	if err := h.deps.Publisher.Publish(ctx, h.deps.RawTopic, ev.AccountID, ev); err != nil {
		trace.Logger(ctx).Error("failed to publish event", "event_id", ev.EventID, "err", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"eventId": ev.EventID,
	})
}

// GET /accounts/{accountId}/shadow-balance
func (h *Handler) shadowBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	view, err := h.deps.Shadow.ShadowBalance(r.Context(), accountID)
	if err != nil {
		trace.Logger(r.Context()).Error("failed to read shadow balance", "account_id", accountID, "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /accounts/{accountId}/minimum-balance
func (h *Handler) minimumBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	minimum, err := h.deps.Shadow.MinimumRunningBalance(r.Context(), accountID)
	if err != nil {
		trace.Logger(r.Context()).Error("failed to read minimum balance", "account_id", accountID, "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		AccountID      string          `json:"accountId"`
		MinimumBalance decimal.Decimal `json:"minimumBalance"`
	}{accountID, minimum})
}

// GET /accounts/{accountId}/entries
func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	entries, err := h.deps.Shadow.Entries(r.Context(), accountID)
	if err != nil {
		trace.Logger(r.Context()).Error("failed to list entries", "account_id", accountID, "err", err)
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// POST /drift-check takes a list of reported balances. Accounts are
// checked independently; 204 when all were checked.
func (h *Handler) driftCheck(w http.ResponseWriter, r *http.Request) {
	var balances []models.CbsBalance
	body := http.MaxBytesReader(w, r.Body, int64(h.deps.MaxBatchSize)*maxBalanceBytes)
	if err := json.NewDecoder(body).Decode(&balances); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(balances) > h.deps.MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(balances), h.deps.MaxBatchSize))
		return
	}
	for i, b := range balances {
		if b.AccountID == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("balances[%d]: accountId is required", i))
			return
		}
	}

	results := h.deps.Detector.CheckBatch(r.Context(), balances)
	if failed := drift.Failed(results); len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":          "some accounts could not be checked",
			"failedAccounts": failed,
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /correct/{accountId}?amount= is always a credit. A JSON body
// {"amount": "..."} is accepted when the query parameter is absent.
func (h *Handler) manualCorrection(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	var amount decimal.Decimal
	if raw := r.URL.Query().Get("amount"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid amount %q", raw))
			return
		}
		amount = parsed
	} else {
		var body struct {
			Amount decimal.Decimal `json:"amount"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "amount is required")
			return
		}
		amount = body.Amount
	}

	ev, err := h.deps.Corrections.ManualCorrection(r.Context(), accountID, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ev)
}
