package web

import (
	"net/http"

	"grain-ledger/internal/app"
)

// listContracts handles GET /api/contracts?owner_id=&type=&status=.
func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := queryInt(w, r, "owner_id")
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.svc.ListContracts(r.Context(), app.ContractQuery{
		OwnerID: ownerID,
		Type:    q.Get("type"),
		Status:  q.Get("status"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// createContract handles POST /api/contracts.
func (h *Handler) createContract(w http.ResponseWriter, r *http.Request) {
	var req app.CreateContractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	detail, err := h.svc.CreateContract(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, detail)
}

// getContract handles GET /api/contracts/{id}.
func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.svc.GetContract(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, detail)
}

func (h *Handler) activateReserve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	contract, err := h.svc.ActivateReserve(r.Context(), h.actor(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, contract)
}

func (h *Handler) closeContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	contract, err := h.svc.CloseContract(r.Context(), h.actor(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, contract)
}

func (h *Handler) cancelContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	contract, err := h.svc.CancelContract(r.Context(), h.actor(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, contract)
}

// listContractPayments handles GET /api/contracts/{id}/payments.
func (h *Handler) listContractPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payments, err := h.svc.ListContractPayments(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payments)
}

// createPayment handles POST /api/contracts/{id}/payments.
func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req app.PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	payment, err := h.svc.CreatePayment(r.Context(), h.actor(r), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, payment)
}

// cancelPayment handles POST /api/payments/{id}/cancel.
func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.svc.CancelPayment(r.Context(), h.actor(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, payment)
}

// draftContract handles POST /api/contracts/draft. The proposal is returned
// for review; nothing is booked.
func (h *Handler) draftContract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, r, "text is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.DraftContract(r.Context(), req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// farmerBalances handles GET /api/farmers/{ownerID}/balances.
func (h *Handler) farmerBalances(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathID(w, r, "ownerID")
	if !ok {
		return
	}
	result, err := h.svc.FarmerBalances(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// farmerBalance handles GET /api/farmers/{ownerID}/balances/{cultureID}.
func (h *Handler) farmerBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathID(w, r, "ownerID")
	if !ok {
		return
	}
	cultureID, ok := pathID(w, r, "cultureID")
	if !ok {
		return
	}
	balance, err := h.svc.FarmerBalance(r.Context(), ownerID, cultureID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type response struct {
		OwnerID   int    `json:"owner_id"`
		CultureID int    `json:"culture_id"`
		BalanceKg string `json:"balance_kg"`
	}
	writeJSON(w, response{OwnerID: ownerID, CultureID: cultureID, BalanceKg: balance.String()})
}
