package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const dayLayout = "2006-01-02"

// auditLedger handles GET /api/audit. A report with violations is still 200;
// clients read the violations list.
func (h *Handler) auditLedger(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.AuditLedger(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !report.OK() {
		h.log.Warn("ledger audit found violations",
			zap.Int("violations", len(report.Violations)),
			zap.String("request_id", requestIDFromContext(r.Context())),
		)
	}
	writeJSON(w, report)
}

// archiveDay handles POST /api/archive with {"day":"2024-09-01"}. An empty day
// archives today.
func (h *Handler) archiveDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Day string `json:"day"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	day := time.Now()
	if req.Day != "" {
		parsed, err := time.Parse(dayLayout, req.Day)
		if err != nil {
			writeError(w, r, "day must be YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		day = parsed
	}
	key, err := h.svc.ArchiveDay(r.Context(), day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.log.Info("journal archived", zap.String("key", key), zap.Int("actor_id", h.actor(r).ID))
	writeCreated(w, map[string]string{"key": key})
}

// referenceRate handles GET /api/rates/{currency}?date=YYYY-MM-DD.
func (h *Handler) referenceRate(w http.ResponseWriter, r *http.Request) {
	var on time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dayLayout, raw)
		if err != nil {
			writeError(w, r, "date must be YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		on = parsed
	}
	rate, err := h.svc.ReferenceRate(r.Context(), chi.URLParam(r, "currency"), on)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rate)
}
