package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// GrainVoucher is a fixed debt issued to a farmer by a payment contract.
// PaidValueUAH, RemainingValueUAH and IsClosed are derived by Distribute and
// rewritten after every voucher payment mutation.
type GrainVoucher struct {
	ID                int             `json:"id"`
	ContractID        int             `json:"contract_id"`
	PaymentID         int             `json:"payment_id"`
	OwnerID           int             `json:"owner_id"`
	CultureID         int             `json:"culture_id"`
	QuantityKg        decimal.Decimal `json:"quantity_kg"`
	PricePerKg        decimal.Decimal `json:"price_per_kg"`
	TotalValueUAH     decimal.Decimal `json:"total_value_uah"`
	PaidValueUAH      decimal.Decimal `json:"paid_value_uah"`
	RemainingValueUAH decimal.Decimal `json:"remaining_value_uah"`
	IsClosed          bool            `json:"is_closed"`
	Note              string          `json:"note,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// VoucherPayment is a pooled payment against all open vouchers.
type VoucherPayment struct {
	ID           int             `json:"id"`
	Currency     Currency        `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	AmountUAH    decimal.Decimal `json:"amount_uah"`
	Description  string          `json:"description,omitempty"`
	IsCancelled  bool            `json:"is_cancelled"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	ActorID      int             `json:"created_by_user_id"`
	ActorName    string          `json:"created_by_name"`
	CreatedAt    time.Time       `json:"created_at"`
}

// VoucherAllocation is the derived state of one voucher after a replay.
type VoucherAllocation struct {
	VoucherID         int             `json:"voucher_id"`
	PaidValueUAH      decimal.Decimal `json:"paid_value_uah"`
	RemainingValueUAH decimal.Decimal `json:"remaining_value_uah"`
	IsClosed          bool            `json:"is_closed"`
}

// VoucherSummary aggregates the voucher pool.
type VoucherSummary struct {
	Count        int             `json:"count"`
	OpenCount    int             `json:"open_count"`
	QuantityKg   decimal.Decimal `json:"quantity_kg"`
	TotalUAH     decimal.Decimal `json:"total_value_uah"`
	PaidUAH      decimal.Decimal `json:"paid_value_uah"`
	RemainingUAH decimal.Decimal `json:"remaining_value_uah"`
}
