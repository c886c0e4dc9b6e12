// Package rates fetches reference exchange rates from the National Bank of
// Ukraine. The rate only prefills forms; every ledger operation still takes
// the rate the operator confirms.
package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grain-ledger/internal/config"
	"grain-ledger/internal/core"
)

// ErrNoRate is returned when the API has no rate for the currency and date.
var ErrNoRate = errors.New("rates: no reference rate")

// Client exposes the reference-rate lookup used by the application.
type Client interface {
	Rate(ctx context.Context, currency core.Currency, on time.Time) (*Rate, error)
}

// Rate is the official UAH price of one unit of Currency on Date.
type Rate struct {
	Currency core.Currency   `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
	Date     string          `json:"date"`
	Source   string          `json:"source"`
}

// NBUClient is a resty-backed implementation of Client.
type NBUClient struct {
	httpClient *resty.Client
	log        *zap.Logger
}

// NewClient builds an NBU client from configuration.
func NewClient(cfg config.RatesConfig, logger *zap.Logger) *NBUClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)

	return &NBUClient{httpClient: restyClient, log: logger.Named("rates")}
}

type nbuRate struct {
	Code         int             `json:"r030"`
	Name         string          `json:"txt"`
	Rate         decimal.Decimal `json:"rate"`
	Currency     string          `json:"cc"`
	ExchangeDate string          `json:"exchangedate"`
}

// Rate returns the NBU rate of currency on the given day. UAH is always 1.
func (c *NBUClient) Rate(ctx context.Context, currency core.Currency, on time.Time) (*Rate, error) {
	cur, err := core.ParseCurrency(string(currency))
	if err != nil {
		return nil, err
	}
	day := on.Format("20060102")
	if cur == core.UAH {
		return &Rate{Currency: cur, Rate: decimal.NewFromInt(1), Date: day, Source: "fixed"}, nil
	}

	var result []nbuRate
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"valcode": string(cur),
			"date":    day,
			"json":    "",
		}).
		SetResult(&result).
		Get("/NBUStatService/v1/statdirectory/exchange")
	if err != nil {
		return nil, fmt.Errorf("fetch nbu rate: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("nbu api error: status=%d, body=%s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	for _, r := range result {
		if strings.EqualFold(r.Currency, string(cur)) && r.Rate.IsPositive() {
			c.log.Debug("reference rate fetched", zap.String("currency", string(cur)), zap.String("rate", r.Rate.String()))
			return &Rate{Currency: cur, Rate: r.Rate, Date: r.ExchangeDate, Source: "nbu"}, nil
		}
	}
	return nil, fmt.Errorf("%w for %s on %s", ErrNoRate, cur, day)
}
