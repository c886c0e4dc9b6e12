package web

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/app"
	"grain-ledger/internal/core"
)

// stockKeyFromQuery reads kind, culture_id, name and category.
func stockKeyFromQuery(w http.ResponseWriter, r *http.Request) (app.StockKeyRequest, bool) {
	cultureID, ok := queryInt(w, r, "culture_id")
	if !ok {
		return app.StockKeyRequest{}, false
	}
	q := r.URL.Query()
	key := app.StockKeyRequest{Kind: q.Get("kind"), Name: q.Get("name"), Category: q.Get("category")}
	if cultureID != nil {
		key.CultureID = *cultureID
	}
	return key, true
}

// listStock handles GET /api/stock?kind=.
func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListStock(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entries)
}

// stockSnapshot handles GET /api/stock/entry?kind=grain&culture_id=1.
func (h *Handler) stockSnapshot(w http.ResponseWriter, r *http.Request) {
	key, ok := stockKeyFromQuery(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.StockSnapshot(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// listStockAdjustments handles GET /api/stock/adjustments. The key filter
// applies only when kind is given.
func (h *Handler) listStockAdjustments(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	contractID, ok := queryInt(w, r, "contract_id")
	if !ok {
		return
	}
	q := app.AdjustmentQuery{
		Source:     r.URL.Query().Get("source"),
		ContractID: contractID,
		Limit:      limit,
		Offset:     offset,
	}
	if r.URL.Query().Get("kind") != "" {
		key, ok := stockKeyFromQuery(w, r)
		if !ok {
			return
		}
		q.Key = &key
	}
	rows, err := h.svc.ListStockAdjustments(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rows)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockMutationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.AdjustStock(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

func (h *Handler) reserveStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockMutationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.ReserveStock(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

func (h *Handler) releaseStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockMutationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.svc.ReleaseStock(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

// ── Intake ───────────────────────────────────────────────────────────────────

// listIntakes handles GET /api/intakes?owner_id=&culture_id=&pending=.
func (h *Handler) listIntakes(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := queryInt(w, r, "owner_id")
	if !ok {
		return
	}
	cultureID, ok := queryInt(w, r, "culture_id")
	if !ok {
		return
	}
	f := core.IntakeFilter{OwnerID: ownerID, CultureID: cultureID}
	if raw := r.URL.Query().Get("pending"); raw != "" {
		pending, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, "invalid pending", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		f.PendingQuality = &pending
	}
	records, err := h.svc.ListIntakes(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, records)
}

// recordIntake handles POST /api/intakes.
func (h *Handler) recordIntake(w http.ResponseWriter, r *http.Request) {
	var req app.IntakeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	record, err := h.svc.RecordIntake(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, record)
}

// confirmIntakeQuality handles POST /api/intakes/{id}/quality.
func (h *Handler) confirmIntakeQuality(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		ImpurityPercent decimal.Decimal `json:"impurity_percent"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	record, err := h.svc.ConfirmIntakeQuality(r.Context(), h.actor(r), id, req.ImpurityPercent)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, record)
}

// ── Shipments and purchases ──────────────────────────────────────────────────

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	cultureID, ok := queryInt(w, r, "culture_id")
	if !ok {
		return
	}
	shipments, err := h.svc.ListShipments(r.Context(), cultureID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, shipments)
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var req app.ShipmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	shipment, err := h.svc.CreateShipment(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, shipment)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.svc.ListPurchases(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, purchases)
}

func (h *Handler) recordPurchase(w http.ResponseWriter, r *http.Request) {
	var req app.PurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	purchase, err := h.svc.RecordPurchase(r.Context(), h.actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCreated(w, purchase)
}
