package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is one of the three currencies held in the cash register.
type Currency string

const (
	UAH Currency = "UAH"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// Currencies lists every supported currency in display order.
var Currencies = []Currency{UAH, USD, EUR}

// ParseCurrency validates a currency code. An empty code means UAH.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(s) {
	case "":
		return UAH, nil
	case UAH, USD, EUR:
		return Currency(s), nil
	}
	return "", invalidItem("unsupported currency %q", s)
}

// TransactionType is the direction of a cash or stock journal row.
type TransactionType string

const (
	TxAdd      TransactionType = "add"
	TxSubtract TransactionType = "subtract"
)

// Actor is the authenticated user attached to every mutating operation.
type Actor struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name"`
}

// SystemActor is used by scheduled jobs and migrations.
var SystemActor = Actor{ID: 0, FullName: "system"}

// CashRegister is the named aggregate holding all three currency balances.
type CashRegister struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	UAH       decimal.Decimal `json:"uah"`
	USD       decimal.Decimal `json:"usd"`
	EUR       decimal.Decimal `json:"eur"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Balance returns the balance held in currency c.
func (r *CashRegister) Balance(c Currency) decimal.Decimal {
	switch c {
	case USD:
		return r.USD
	case EUR:
		return r.EUR
	default:
		return r.UAH
	}
}

func (r *CashRegister) set(c Currency, v decimal.Decimal) {
	switch c {
	case USD:
		r.USD = v
	case EUR:
		r.EUR = v
	default:
		r.UAH = v
	}
}

func (r *CashRegister) String() string {
	return fmt.Sprintf("%s: %s UAH, %s USD, %s EUR",
		r.Name, r.UAH.StringFixed(2), r.USD.StringFixed(2), r.EUR.StringFixed(2))
}

// CashTransaction is one immutable row of the cash log, snapshotting every
// balance after the operation.
type CashTransaction struct {
	ID          int             `json:"id"`
	Register    string          `json:"register"`
	Currency    Currency        `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"transaction_type"`
	Description string          `json:"description"`
	UAHAfter    decimal.Decimal `json:"uah_balance_after"`
	USDAfter    decimal.Decimal `json:"usd_balance_after"`
	EURAfter    decimal.Decimal `json:"eur_balance_after"`
	ActorID     int             `json:"user_id"`
	ActorName   string          `json:"user_full_name"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToUAH converts amount in currency c with rate, rounded to two places.
// UAH amounts are returned unchanged. A positive rate is required otherwise.
func ToUAH(amount decimal.Decimal, c Currency, rate decimal.Decimal) (decimal.Decimal, error) {
	if c == UAH {
		return amount, nil
	}
	if !rate.IsPositive() {
		return decimal.Zero, invalidItem("exchange rate is required for %s", c)
	}
	return amount.Mul(rate).Round(2), nil
}
