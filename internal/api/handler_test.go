package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/shadow-ledger/internal/drift"
	"github.com/sheikh-saqib/shadow-ledger/internal/events"
	"github.com/sheikh-saqib/shadow-ledger/internal/events/memory"
	"github.com/sheikh-saqib/shadow-ledger/internal/ledger"
	memstore "github.com/sheikh-saqib/shadow-ledger/internal/storage/memory"
)

const (
	rawTopic         = "transactions.raw"
	correctionsTopic = "transactions.corrections"
)

// newTestServer wires every component in memory with the ledger consuming
// both topics, like the service does without external backends.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memstore.NewMemoryLedgerStore()
	l := ledger.NewLedger(store)
	projector := ledger.NewProjector(store)
	bus := memory.NewBus()
	t.Cleanup(bus.Register([]string{rawTopic, correctionsTopic}, l.HandleMessage))

	corrections := drift.NewCorrectionPublisher(bus, correctionsTopic)
	srv := httptest.NewServer(New(Deps{
		Shadow:       projector,
		Events:       store,
		Publisher:    bus,
		RawTopic:     rawTopic,
		Detector:     drift.NewDetector(projector, corrections),
		Corrections:  corrections,
		MaxBatchSize: 2,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postEvent(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	return do(t, http.MethodPost, srv.URL+"/events", body)
}

type shadowResponse struct {
	AccountID   string          `json:"accountId"`
	Balance     decimal.Decimal `json:"balance"`
	LastEventID *string         `json:"lastEventId"`
}

func getShadow(t *testing.T, srv *httptest.Server, account string) shadowResponse {
	t.Helper()
	resp := do(t, http.MethodGet, srv.URL+"/accounts/"+account+"/shadow-balance", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("shadow-balance status=%d", resp.StatusCode)
	}
	var out shadowResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if resp.Header.Get(events.TraceHeader) == "" {
		t.Fatal("missing trace header on response")
	}
}

func TestTraceHeaderIsEchoed(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set(events.TraceHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get(events.TraceHeader); got != "abc-123" {
		t.Fatalf("trace header=%q want abc-123", got)
	}
}

func TestShadowBalance_UnknownAccount(t *testing.T) {
	srv := newTestServer(t)
	out := getShadow(t, srv, "nobody")
	if out.AccountID != "nobody" || !out.Balance.IsZero() || out.LastEventID != nil {
		t.Fatalf("got %+v", out)
	}
}

func TestIngestEvent(t *testing.T) {
	srv := newTestServer(t)

	resp := postEvent(t, srv, `{"eventId":"E1","accountId":"A","type":"credit","amount":"100.00"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d want 202", resp.StatusCode)
	}

	out := getShadow(t, srv, "A")
	if !out.Balance.Equal(decimal.NewFromInt(100)) || out.LastEventID == nil || *out.LastEventID != "E1" {
		t.Fatalf("got %+v", out)
	}

	// already in the ledger
	if resp := postEvent(t, srv, `{"eventId":"E1","accountId":"A","type":"CREDIT","amount":"100.00"}`); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status=%d want 409", resp.StatusCode)
	}
}

func TestIngestEvent_Malformed(t *testing.T) {
	srv := newTestServer(t)
	bodies := []string{
		`not json`,
		`{"accountId":"A","type":"CREDIT","amount":"1"}`,
		`{"eventId":"E1","accountId":"A","type":"REFUND","amount":"1"}`,
		`{"eventId":"E1","accountId":"A","type":"CREDIT","amount":"-1"}`,
		`{"eventId":"E1","accountId":"A","type":"CREDIT","amount":"ten"}`,
	}
	for _, body := range bodies {
		if resp := postEvent(t, srv, body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status=%d want 400", body, resp.StatusCode)
		}
	}
}

func TestDriftCheck(t *testing.T) {
	srv := newTestServer(t)
	postEvent(t, srv, `{"eventId":"E1","accountId":"A","type":"CREDIT","amount":"100.00"}`)

	resp := do(t, http.MethodPost, srv.URL+"/drift-check",
		`[{"accountId":"A","reportedBalance":"130.00"},{"accountId":"GHOST","reportedBalance":"5"}]`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d want 204", resp.StatusCode)
	}

	if out := getShadow(t, srv, "A"); !out.Balance.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("balance=%s want 130", out.Balance)
	}
	if out := getShadow(t, srv, "GHOST"); out.LastEventID != nil {
		t.Fatalf("unknown account got entries: %+v", out)
	}
}

func TestDriftCheck_BadRequests(t *testing.T) {
	srv := newTestServer(t)
	bodies := []string{
		`{}`,
		`[{"reportedBalance":"1"}]`,
		`[{"accountId":"A","reportedBalance":"1"},{"accountId":"B","reportedBalance":"1"},{"accountId":"C","reportedBalance":"1"}]`,
	}
	for _, body := range bodies {
		if resp := do(t, http.MethodPost, srv.URL+"/drift-check", body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status=%d want 400", body, resp.StatusCode)
		}
	}
}

func TestOversizedBodiesRejected(t *testing.T) {
	srv := newTestServer(t)

	// well-formed JSON that only fails because of its size
	batch := `[{"accountId":"A","reportedBalance":"1","note":"` + strings.Repeat("x", 3000) + `"}]`
	if resp := do(t, http.MethodPost, srv.URL+"/drift-check", batch); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("drift-check status=%d want 400", resp.StatusCode)
	}

	event := `{"eventId":"E1","accountId":"A","type":"CREDIT","amount":"1","note":"` + strings.Repeat("x", 70<<10) + `"}`
	if resp := postEvent(t, srv, event); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("events status=%d want 400", resp.StatusCode)
	}
	if out := getShadow(t, srv, "A"); out.LastEventID != nil {
		t.Fatalf("oversized event was ingested: %+v", out)
	}
}

func TestManualCorrection(t *testing.T) {
	srv := newTestServer(t)
	postEvent(t, srv, `{"eventId":"E1","accountId":"A","type":"CREDIT","amount":"10"}`)

	resp := do(t, http.MethodPost, srv.URL+"/correct/A?amount=5.25", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d want 202", resp.StatusCode)
	}
	var ev struct {
		EventID string `json:"eventId"`
		Type    string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ev.EventID, "MANUAL-") || ev.Type != "CREDIT" {
		t.Fatalf("event=%+v", ev)
	}
	if out := getShadow(t, srv, "A"); !out.Balance.Equal(decimal.RequireFromString("15.25")) {
		t.Fatalf("balance=%s want 15.25", out.Balance)
	}

	// JSON body form
	if resp := do(t, http.MethodPost, srv.URL+"/correct/A", `{"amount":"1"}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("body form status=%d want 202", resp.StatusCode)
	}

	for _, url := range []string{"/correct/A?amount=0", "/correct/A?amount=-3", "/correct/A?amount=abc"} {
		if resp := do(t, http.MethodPost, srv.URL+url, ""); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status=%d want 400", url, resp.StatusCode)
		}
	}
}

func TestAccountEntriesAndMinimum(t *testing.T) {
	srv := newTestServer(t)
	postEvent(t, srv, `{"eventId":"E1","accountId":"A","type":"CREDIT","amount":"10","timestamp":"2024-01-01T00:00:00Z"}`)
	postEvent(t, srv, `{"eventId":"E2","accountId":"A","type":"DEBIT","amount":"4","timestamp":"2024-01-01T00:01:00Z"}`)

	resp := do(t, http.MethodGet, srv.URL+"/accounts/A/entries", "")
	var entries []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0]["eventId"] != "E1" || entries[1]["type"] != "DEBIT" {
		t.Fatalf("entries=%v", entries)
	}

	resp = do(t, http.MethodGet, srv.URL+"/accounts/A/minimum-balance", "")
	var minimum struct {
		MinimumBalance decimal.Decimal `json:"minimumBalance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&minimum); err != nil {
		t.Fatal(err)
	}
	if !minimum.MinimumBalance.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("minimum=%s want 6", minimum.MinimumBalance)
	}

	resp = do(t, http.MethodGet, srv.URL+"/accounts/EMPTY/entries", "")
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("empty entries body=%q want []", buf.String())
	}
}
