package app

import (
	"time"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/core"
)

// ContractListResult is returned by ListContracts.
type ContractListResult struct {
	Contracts []core.FarmerContract `json:"contracts"`
	Count     int                   `json:"count"`
}

// CurrencyBalance is one currency of the cash register.
type CurrencyBalance struct {
	Currency core.Currency   `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// CashBalancesResult is returned by CashBalances.
type CashBalancesResult struct {
	Register  string            `json:"register"`
	Balances  []CurrencyBalance `json:"balances"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FarmerBalancesResult is returned by FarmerBalances.
type FarmerBalancesResult struct {
	OwnerID  int                  `json:"owner_id"`
	Balances []core.FarmerBalance `json:"balances"`
}
