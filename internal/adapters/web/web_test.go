package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/app"
	"grain-ledger/internal/core"
	"grain-ledger/internal/metrics"
	"grain-ledger/internal/store/memory"
)

const testSecret = "test-secret"

var clerk = core.Actor{ID: 4, FullName: "Oksana Hrytsenko"}

type testServer struct {
	handler http.Handler
	metrics *metrics.Metrics
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rt := core.NewRuntime(memory.NewStore(), "", nil)
	if _, err := core.EnsureRegister(context.Background(), rt); err != nil {
		t.Fatalf("EnsureRegister failed: %v", err)
	}
	m := metrics.New()
	svc := app.NewAppService(rt, nil, nil, nil, m)
	token, err := SignActorToken(testSecret, clerk, time.Hour)
	if err != nil {
		t.Fatalf("SignActorToken failed: %v", err)
	}
	return &testServer{
		handler: NewHandler(svc, m, nil, []string{"http://localhost:3000"}, testSecret),
		metrics: m,
		token:   token,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response failed: %v (body %q)", err, rec.Body.String())
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected an X-Request-ID header")
	}
}

func TestRequireActor(t *testing.T) {
	s := newTestServer(t)
	expired, err := SignActorToken(testSecret, clerk, -time.Minute)
	if err != nil {
		t.Fatalf("SignActorToken failed: %v", err)
	}
	foreign, err := SignActorToken("other-secret", clerk, time.Hour)
	if err != nil {
		t.Fatalf("SignActorToken failed: %v", err)
	}
	nameless, err := SignActorToken(testSecret, core.Actor{ID: 9}, time.Hour)
	if err != nil {
		t.Fatalf("SignActorToken failed: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + s.token},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
		{"no actor name", "Bearer " + nameless},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			expectStatus(t, rec, http.StatusUnauthorized)
		})
	}

	rec := s.do(t, http.MethodGet, "/api/auth/me", nil)
	expectStatus(t, rec, http.StatusOK)
	var got core.Actor
	decodeBody(t, rec, &got)
	if got != clerk {
		t.Errorf("Expected %+v, got %+v", clerk, got)
	}
}

func TestPaymentContractOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/cultures", map[string]any{"name": "Wheat", "price_per_kg": "10"})
	expectStatus(t, rec, http.StatusCreated)
	var wheat core.Culture
	decodeBody(t, rec, &wheat)

	rec = s.do(t, http.MethodPost, "/api/owners", map[string]any{"full_name": "Mykola Tkachenko"})
	expectStatus(t, rec, http.StatusCreated)
	var farmer core.Owner
	decodeBody(t, rec, &farmer)

	rec = s.do(t, http.MethodPost, "/api/intakes", map[string]any{
		"owner_id":        farmer.ID,
		"culture_id":      wheat.ID,
		"gross_weight_kg": "1200",
		"tare_weight_kg":  "200",
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = s.do(t, http.MethodPost, "/api/cash/transactions", map[string]any{
		"currency":         "UAH",
		"transaction_type": "add",
		"amount":           "10000",
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = s.do(t, http.MethodPost, "/api/contracts", map[string]any{
		"owner_id":      farmer.ID,
		"contract_type": "payment",
		"items": []map[string]any{
			{"direction": "from_farmer", "item_type": "grain", "culture_id": wheat.ID, "quantity_kg": "400"},
		},
	})
	expectStatus(t, rec, http.StatusCreated)
	var created struct {
		ID        int    `json:"id"`
		Status    string `json:"status"`
		ActorName string `json:"created_by_name"`
	}
	decodeBody(t, rec, &created)
	if created.Status != string(core.StatusClosed) || created.ActorName != clerk.FullName {
		t.Errorf("Expected a closed contract by %s, got %+v", clerk.FullName, created)
	}

	rec = s.do(t, http.MethodGet, "/api/contracts/"+strconv.Itoa(created.ID), nil)
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, http.MethodGet, "/api/farmers/"+strconv.Itoa(farmer.ID)+"/balances/"+strconv.Itoa(wheat.ID), nil)
	expectStatus(t, rec, http.StatusOK)
	var balance struct {
		BalanceKg decimal.Decimal `json:"balance_kg"`
	}
	decodeBody(t, rec, &balance)
	if !balance.BalanceKg.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected farmer balance 600, got %s", balance.BalanceKg)
	}

	rec = s.do(t, http.MethodGet, "/api/contracts?status=closed", nil)
	expectStatus(t, rec, http.StatusOK)
	var list app.ContractListResult
	decodeBody(t, rec, &list)
	if list.Count != 1 {
		t.Errorf("Expected 1 closed contract, got %d", list.Count)
	}

	rec = s.do(t, http.MethodGet, "/api/audit", nil)
	expectStatus(t, rec, http.StatusOK)
	var report core.AuditReport
	decodeBody(t, rec, &report)
	if !report.OK() {
		t.Errorf("Expected a clean audit, got %v", report.Violations)
	}

	// A closed contract cannot be cancelled.
	rec = s.do(t, http.MethodPost, "/api/contracts/"+strconv.Itoa(created.ID)+"/cancel", nil)
	expectStatus(t, rec, http.StatusConflict)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/cultures", map[string]any{"name": "Barley", "price_per_kg": "8"})
	expectStatus(t, rec, http.StatusCreated)
	var barley core.Culture
	decodeBody(t, rec, &barley)

	rec = s.do(t, http.MethodPost, "/api/intakes", map[string]any{
		"culture_id":      barley.ID,
		"gross_weight_kg": "500",
		"tare_weight_kg":  "0",
		"is_own_grain":    true,
	})
	expectStatus(t, rec, http.StatusCreated)

	rec = s.do(t, http.MethodPost, "/api/stock/release", map[string]any{
		"kind":        "grain",
		"culture_id":  barley.ID,
		"quantity_kg": "10",
	})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	var amountErr errorResponse
	decodeBody(t, rec, &amountErr)
	if amountErr.Code != "INSUFFICIENT_STOCK" || amountErr.Requested == nil || amountErr.Available == nil {
		t.Fatalf("Expected an INSUFFICIENT_STOCK body with amounts, got %+v", amountErr)
	}
	if !amountErr.Requested.Equal(decimal.NewFromInt(10)) || !amountErr.Available.IsZero() {
		t.Errorf("Expected requested 10 / available 0, got %s / %s", amountErr.Requested, amountErr.Available)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown contract", http.MethodGet, "/api/contracts/999", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad id", http.MethodGet, "/api/contracts/abc", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown stock kind", http.MethodGet, "/api/stock?kind=seeds", nil, http.StatusBadRequest, "INVALID_ITEM"},
		{"unknown status filter", http.MethodGet, "/api/contracts?status=archived", nil, http.StatusBadRequest, "INVALID_ITEM"},
		{"draft without drafter", http.MethodPost, "/api/contracts/draft", map[string]string{"text": "wheat"}, http.StatusServiceUnavailable, "FEATURE_DISABLED"},
		{"archive without bucket", http.MethodPost, "/api/archive", map[string]string{"day": "2024-09-01"}, http.StatusServiceUnavailable, "FEATURE_DISABLED"},
		{"bad archive day", http.MethodPost, "/api/archive", map[string]string{"day": "01.09.2024"}, http.StatusBadRequest, "BAD_REQUEST"},
		{"negative limit", http.MethodGet, "/api/cash/transactions?limit=-1", nil, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			expectStatus(t, rec, tt.status)
			var resp errorResponse
			decodeBody(t, rec, &resp)
			if resp.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, resp.Code)
			}
			if resp.RequestID == "" {
				t.Error("Expected the request ID in the error body")
			}
		})
	}
}

func TestMalformedAndOversizedBodies(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/owners", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)

	big := `{"full_name":"` + strings.Repeat("a", 2<<20) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/api/owners", strings.NewReader(big))
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusRequestEntityTooLarge)
}

func TestCORSAndMetrics(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/contracts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusNoContent)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Expected the origin to be allowed, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/contracts", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected no CORS headers for an unknown origin")
	}

	s.do(t, http.MethodGet, "/api/contracts/7", nil)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	if !strings.Contains(body, `route="/api/contracts/{id}"`) {
		t.Error("Expected the HTTP histogram to use the route pattern")
	}
}
