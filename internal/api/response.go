package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/ledger"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps ledger errors to status codes. Anything that is
// not a rejection is an infrastructure failure and worth retrying.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrMalformedEvent), errors.Is(err, interfaces.ErrInvalidData):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, "ledger temporarily unavailable")
	}
}
