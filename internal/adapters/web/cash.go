package web

import (
	"net/http"

	"grain-ledger/internal/app"
	"grain-ledger/internal/core"
)

// ── Cash register ────────────────────────────────────────────────────────────

func (h *Handler) cashBalances(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CashBalances(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// listCashTransactions handles GET /api/cash/transactions?limit=&offset=.
func (h *Handler) listCashTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	txs, err := h.svc.ListCashTransactions(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, txs)
}

// updateCashBalance handles POST /api/cash/transactions, a manual correction.
func (h *Handler) updateCashBalance(w http.ResponseWriter, r *http.Request) {
	var req app.CashUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, err := h.svc.UpdateCashBalance(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, tx)
}

// ── Vouchers ─────────────────────────────────────────────────────────────────

func (h *Handler) listVouchers(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := queryInt(w, r, "owner_id")
	if !ok {
		return
	}
	vouchers, err := h.svc.ListVouchers(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, vouchers)
}

func (h *Handler) voucherSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.VoucherSummary(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) listVoucherPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.svc.ListVoucherPayments(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payments)
}

func (h *Handler) createVoucherPayment(w http.ResponseWriter, r *http.Request) {
	var req app.VoucherPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	payment, err := h.svc.CreateVoucherPayment(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, payment)
}

func (h *Handler) cancelVoucherPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.svc.CancelVoucherPayment(r.Context(), h.actor(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

// ── Reference data ───────────────────────────────────────────────────────────

func (h *Handler) listCultures(w http.ResponseWriter, r *http.Request) {
	cultures, err := h.svc.ListCultures(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, cultures)
}

// saveCulture handles POST /api/cultures and PUT /api/cultures/{id}.
func (h *Handler) saveCulture(w http.ResponseWriter, r *http.Request) {
	var c core.Culture
	if !decodeJSON(w, r, &c) {
		return
	}
	c.ID = 0
	if r.Method == http.MethodPut {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		c.ID = id
	}
	saved, err := h.svc.SaveCulture(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if r.Method == http.MethodPost {
		writeCreated(w, saved)
		return
	}
	writeJSON(w, saved)
}

func (h *Handler) listOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := h.svc.ListOwners(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, owners)
}

// saveOwner handles POST /api/owners and PUT /api/owners/{id}.
func (h *Handler) saveOwner(w http.ResponseWriter, r *http.Request) {
	var o core.Owner
	if !decodeJSON(w, r, &o) {
		return
	}
	o.ID = 0
	if r.Method == http.MethodPut {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		o.ID = id
	}
	saved, err := h.svc.SaveOwner(r.Context(), o)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if r.Method == http.MethodPost {
		writeCreated(w, saved)
		return
	}
	writeJSON(w, saved)
}
