package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"grain-ledger/internal/app"
	"grain-ledger/internal/core"
	"grain-ledger/internal/metrics"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	metrics   *metrics.Metrics
	log       *zap.Logger
	jwtSecret string
	started   time.Time
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, m *metrics.Metrics, logger *zap.Logger, allowedOrigins []string, jwtSecret string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		svc:       svc,
		metrics:   m,
		log:       logger,
		jwtSecret: jwtSecret,
		started:   time.Now(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(logger, m))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	// ── Health and metrics (public) ───────────────────────────────────────────
	r.Get("/api/health", h.health)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// ── Ledger API (bearer token) ─────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireActor)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Get("/api/auth/me", h.me)

		// Contracts
		r.Get("/api/contracts", h.listContracts)
		r.Post("/api/contracts", h.createContract)
		r.Post("/api/contracts/draft", h.draftContract)
		r.Get("/api/contracts/{id}", h.getContract)
		r.Post("/api/contracts/{id}/activate", h.activateReserve)
		r.Post("/api/contracts/{id}/close", h.closeContract)
		r.Post("/api/contracts/{id}/cancel", h.cancelContract)
		r.Get("/api/contracts/{id}/payments", h.listContractPayments)
		r.Post("/api/contracts/{id}/payments", h.createPayment)
		r.Post("/api/payments/{id}/cancel", h.cancelPayment)

		// Farmers
		r.Get("/api/farmers/{ownerID}/balances", h.farmerBalances)
		r.Get("/api/farmers/{ownerID}/balances/{cultureID}", h.farmerBalance)

		// Stock
		r.Get("/api/stock", h.listStock)
		r.Get("/api/stock/entry", h.stockSnapshot)
		r.Get("/api/stock/adjustments", h.listStockAdjustments)
		r.Post("/api/stock/adjust", h.adjustStock)
		r.Post("/api/stock/reserve", h.reserveStock)
		r.Post("/api/stock/release", h.releaseStock)

		// Intake, shipments, purchases
		r.Get("/api/intakes", h.listIntakes)
		r.Post("/api/intakes", h.recordIntake)
		r.Post("/api/intakes/{id}/quality", h.confirmIntakeQuality)
		r.Get("/api/shipments", h.listShipments)
		r.Post("/api/shipments", h.createShipment)
		r.Get("/api/purchases", h.listPurchases)
		r.Post("/api/purchases", h.recordPurchase)

		// Cash
		r.Get("/api/cash", h.cashBalances)
		r.Get("/api/cash/transactions", h.listCashTransactions)
		r.Post("/api/cash/transactions", h.updateCashBalance)

		// Vouchers
		r.Get("/api/vouchers", h.listVouchers)
		r.Get("/api/vouchers/summary", h.voucherSummary)
		r.Get("/api/vouchers/payments", h.listVoucherPayments)
		r.Post("/api/vouchers/payments", h.createVoucherPayment)
		r.Post("/api/vouchers/payments/{id}/cancel", h.cancelVoucherPayment)

		// Reference data
		r.Get("/api/cultures", h.listCultures)
		r.Post("/api/cultures", h.saveCulture)
		r.Put("/api/cultures/{id}", h.saveCulture)
		r.Get("/api/owners", h.listOwners)
		r.Post("/api/owners", h.saveOwner)
		r.Put("/api/owners/{id}", h.saveOwner)

		// Operations
		r.Get("/api/audit", h.auditLedger)
		r.Post("/api/archive", h.archiveDay)
		r.Get("/api/rates/{currency}", h.referenceRate)
	})

	h.router = r
	return r
}

// health returns service status and uptime.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	writeJSON(w, response{Status: "ok", Uptime: time.Since(h.started).Round(time.Second).String()})
}

// actor returns the acting user set by RequireActor.
func (h *Handler) actor(r *http.Request) core.Actor {
	actor, _ := actorFromContext(r.Context())
	return actor
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter. On failure it writes a 400
// and returns false.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid "+name, "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter. Absent means nil.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (*int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, "invalid "+name, "BAD_REQUEST", http.StatusBadRequest)
		return nil, false
	}
	return &v, true
}

// page reads limit and offset, defaulting limit to 50.
func page(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = 50
	if v, ok := queryInt(w, r, "limit"); !ok {
		return 0, 0, false
	} else if v != nil {
		limit = *v
	}
	if v, ok := queryInt(w, r, "offset"); !ok {
		return 0, 0, false
	} else if v != nil {
		offset = *v
	}
	if limit < 0 || offset < 0 {
		writeError(w, r, "limit and offset must not be negative", "BAD_REQUEST", http.StatusBadRequest)
		return 0, 0, false
	}
	return limit, offset, true
}
