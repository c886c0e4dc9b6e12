package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"grain-ledger/internal/config"
	"grain-ledger/internal/core"
)

func TestRateFromNBU(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/NBUStatService/v1/statdirectory/exchange" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("valcode") + "@" + r.URL.Query().Get("date")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"r030":840,"txt":"US Dollar","rate":41.2565,"cc":"USD","exchangedate":"18.10.2026"}]`))
	}))
	defer srv.Close()

	c := NewClient(config.RatesConfig{BaseURL: srv.URL + "/"}, nil)
	rate, err := c.Rate(context.Background(), core.USD, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if gotQuery != "USD@20261018" {
		t.Errorf("Expected USD@20261018, got %s", gotQuery)
	}
	if rate.Rate.String() != "41.2565" || rate.Source != "nbu" || rate.Date != "18.10.2026" {
		t.Errorf("Unexpected rate %+v", rate)
	}
}

func TestRateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"empty result", http.StatusOK, `[]`, ErrNoRate},
		{"server error", http.StatusBadGateway, `upstream down`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(config.RatesConfig{BaseURL: srv.URL}, nil).Rate(context.Background(), core.EUR, time.Now())
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRateForHryvniaIsFixed(t *testing.T) {
	c := NewClient(config.RatesConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	rate, err := c.Rate(context.Background(), core.UAH, time.Now())
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if rate.Rate.String() != "1" || rate.Source != "fixed" {
		t.Errorf("Expected fixed rate 1, got %+v", rate)
	}
	if _, err := c.Rate(context.Background(), core.Currency("GBP"), time.Now()); !errors.Is(err, core.ErrInvalidItem) {
		t.Errorf("Expected ErrInvalidItem, got %v", err)
	}
}
