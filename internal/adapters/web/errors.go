package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/ai"
	"grain-ledger/internal/app"
	"grain-ledger/internal/core"
	"grain-ledger/internal/rates"
)

type errorResponse struct {
	Error     string           `json:"error"`
	Code      string           `json:"code"`
	RequestID string           `json:"request_id,omitempty"`
	Requested *decimal.Decimal `json:"requested,omitempty"`
	Available *decimal.Decimal `json:"available,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a ledger error to its HTTP status. Amount errors carry
// the requested and available quantities so clients can show them.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	if ae, ok := core.AsAmountError(err); ok {
		requested, available := ae.Requested, ae.Available
		resp.Requested = &requested
		resp.Available = &available
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal server error"
	}
	writeErrorResponse(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, core.ErrInvalidItem):
		return http.StatusBadRequest, "INVALID_ITEM"
	case errors.Is(err, core.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, core.ErrIrreversible):
		return http.StatusConflict, "IRREVERSIBLE"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, core.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"
	case errors.Is(err, core.ErrInsufficientFarmerBalance):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_FARMER_BALANCE"
	case errors.Is(err, core.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"
	case errors.Is(err, core.ErrExceedsRemaining):
		return http.StatusUnprocessableEntity, "EXCEEDS_REMAINING"
	case errors.Is(err, core.ErrExceedsBalance):
		return http.StatusUnprocessableEntity, "EXCEEDS_BALANCE"
	case errors.Is(err, core.ErrExceedsDebt):
		return http.StatusUnprocessableEntity, "EXCEEDS_DEBT"
	case errors.Is(err, ai.ErrDisabled), errors.Is(err, app.ErrArchiveDisabled):
		return http.StatusServiceUnavailable, "FEATURE_DISABLED"
	case errors.Is(err, rates.ErrNoRate):
		return http.StatusNotFound, "NO_RATE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated writes a JSON response with status 201.
func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}
