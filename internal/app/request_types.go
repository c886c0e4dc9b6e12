package app

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/core"
)

// ContractItemRequest is one line of a CreateContractRequest. Which of
// CultureID, GoodsName or Name applies depends on Kind.
type ContractItemRequest struct {
	Direction     string          `json:"direction"`
	Kind          string          `json:"item_type"`
	CultureID     int             `json:"culture_id,omitempty"`
	GoodsName     string          `json:"goods_name,omitempty"`
	GoodsCategory string          `json:"goods_category,omitempty"`
	Name          string          `json:"name,omitempty"`
	QuantityKg    decimal.Decimal `json:"quantity_kg"`
	PricePerKg    decimal.Decimal `json:"price_per_kg"` // zero means "use the default price"
}

// CreateContractRequest is the input for creating a farmer contract.
// Currency, ExchangeRate and Payout apply to payment contracts only.
type CreateContractRequest struct {
	OwnerID      int                   `json:"owner_id"`
	Type         string                `json:"contract_type"`
	Items        []ContractItemRequest `json:"items"`
	Currency     string                `json:"currency,omitempty"`
	ExchangeRate decimal.Decimal       `json:"exchange_rate"`
	Payout       string                `json:"payout_method,omitempty"`
	Note         string                `json:"note,omitempty"`
}

func (r CreateContractRequest) toInput() (core.CreateContractInput, error) {
	typ, err := core.ParseContractType(strings.ToLower(strings.TrimSpace(r.Type)))
	if err != nil {
		return core.CreateContractInput{}, err
	}
	currency, err := core.ParseCurrency(strings.ToUpper(strings.TrimSpace(r.Currency)))
	if err != nil {
		return core.CreateContractInput{}, err
	}
	in := core.CreateContractInput{
		OwnerID:      r.OwnerID,
		Type:         typ,
		Currency:     currency,
		ExchangeRate: r.ExchangeRate,
		Payout:       core.PayoutMethod(strings.ToLower(r.Payout)),
		Note:         r.Note,
	}
	for i, it := range r.Items {
		item, err := it.toInput()
		if err != nil {
			return core.CreateContractInput{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		in.Items = append(in.Items, item)
	}
	return in, nil
}

func (r ContractItemRequest) toInput() (core.ContractItemInput, error) {
	var spec core.ItemSpec
	switch core.ItemKind(strings.ToLower(r.Kind)) {
	case core.ItemGrain:
		spec = core.GrainItem{CultureID: r.CultureID}
	case core.ItemPurchase:
		spec = core.GoodsItem{Name: r.GoodsName, Category: r.GoodsCategory}
	case core.ItemCash:
		spec = core.CashItem{}
	case core.ItemVoucher:
		spec = core.VoucherItem{Name: r.Name}
	default:
		return core.ContractItemInput{}, fmt.Errorf("%w: unknown item type %q", core.ErrInvalidItem, r.Kind)
	}
	return core.ContractItemInput{
		Direction:  core.Direction(strings.ToLower(r.Direction)),
		Item:       spec,
		QuantityKg: r.QuantityKg,
		PricePerKg: r.PricePerKg,
	}, nil
}

// PaymentRequest is the input for a contract payment. Kind selects which of
// the remaining fields are read:
//
//	goods_issue, goods_receive: ItemID, QuantityKg
//	cash:                       Amount, Currency, ExchangeRate
//	grain:                      CultureID, QuantityKg
type PaymentRequest struct {
	Kind         string          `json:"payment_type"`
	ItemID       int             `json:"item_id,omitempty"`
	CultureID    int             `json:"culture_id,omitempty"`
	QuantityKg   decimal.Decimal `json:"quantity_kg"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency,omitempty"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

func (r PaymentRequest) toCore() (core.PaymentRequest, error) {
	switch core.PaymentKind(strings.ToLower(r.Kind)) {
	case core.PaymentGoodsIssue:
		return core.GoodsIssue{ItemID: r.ItemID, QuantityKg: r.QuantityKg}, nil
	case core.PaymentGoodsReceive:
		return core.GoodsReceive{ItemID: r.ItemID, QuantityKg: r.QuantityKg}, nil
	case core.PaymentCash:
		currency, err := core.ParseCurrency(strings.ToUpper(r.Currency))
		if err != nil {
			return nil, err
		}
		return core.CashPayment{Amount: r.Amount, Currency: currency, ExchangeRate: r.ExchangeRate}, nil
	case core.PaymentGrain:
		return core.GrainPayment{CultureID: r.CultureID, QuantityKg: r.QuantityKg}, nil
	}
	return nil, fmt.Errorf("%w: unknown payment type %q", core.ErrInvalidItem, r.Kind)
}

// StockKeyRequest names a stock entry: grain by culture, goods by name and category.
type StockKeyRequest struct {
	Kind      string `json:"kind"`
	CultureID int    `json:"culture_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
}

func (r StockKeyRequest) toKey() (core.StockKey, error) {
	switch core.StockKind(strings.ToLower(r.Kind)) {
	case core.StockGrain:
		if r.CultureID <= 0 {
			return core.StockKey{}, fmt.Errorf("%w: culture_id is required for grain stock", core.ErrInvalidItem)
		}
		return core.GrainKey(r.CultureID), nil
	case core.StockGoods:
		if core.CleanName(r.Name) == "" {
			return core.StockKey{}, fmt.Errorf("%w: name is required for goods stock", core.ErrInvalidItem)
		}
		return core.GoodsKey(r.Name, r.Category), nil
	}
	return core.StockKey{}, fmt.Errorf("%w: unknown stock kind %q", core.ErrInvalidItem, r.Kind)
}

// StockMutationRequest is the input of AdjustStock (signed Quantity) and of
// ReserveStock / ReleaseStock (positive Quantity).
type StockMutationRequest struct {
	StockKeyRequest
	Quantity decimal.Decimal `json:"quantity_kg"`
}

// AdjustmentQuery narrows ListStockAdjustments.
type AdjustmentQuery struct {
	Key        *StockKeyRequest
	Source     string
	ContractID *int
	Limit      int
	Offset     int
}

// ContractQuery narrows ListContracts. Empty strings match everything.
type ContractQuery struct {
	OwnerID *int
	Type    string
	Status  string
}

func (q ContractQuery) toFilter() (core.ContractFilter, error) {
	f := core.ContractFilter{OwnerID: q.OwnerID}
	if q.Type != "" {
		typ, err := core.ParseContractType(strings.ToLower(q.Type))
		if err != nil {
			return f, err
		}
		f.Type = &typ
	}
	if q.Status != "" {
		status := core.ContractStatus(strings.ToLower(q.Status))
		switch status {
		case core.StatusPending, core.StatusOpen, core.StatusClosed, core.StatusCancelled:
		default:
			return f, fmt.Errorf("%w: unknown contract status %q", core.ErrInvalidItem, q.Status)
		}
		f.Status = &status
	}
	return f, nil
}

// IntakeRequest is the input for recording a weighed delivery.
type IntakeRequest struct {
	OwnerID         *int            `json:"owner_id,omitempty"`
	CultureID       int             `json:"culture_id"`
	GrossKg         decimal.Decimal `json:"gross_weight_kg"`
	TareKg          decimal.Decimal `json:"tare_weight_kg"`
	ImpurityPercent decimal.Decimal `json:"impurity_percent"`
	IsOwnGrain      bool            `json:"is_own_grain"`
	PendingQuality  bool            `json:"pending_quality"`
	Note            string          `json:"note,omitempty"`
}

// ShipmentRequest is the input for shipping own grain out of the warehouse.
type ShipmentRequest struct {
	CultureID   int             `json:"culture_id"`
	QuantityKg  decimal.Decimal `json:"quantity_kg"`
	Destination string          `json:"destination"`
}

// PurchaseRequest is the input for buying goods into purchase stock.
type PurchaseRequest struct {
	Name           string          `json:"name"`
	Category       string          `json:"category,omitempty"`
	QuantityKg     decimal.Decimal `json:"quantity_kg"`
	PricePerKg     decimal.Decimal `json:"price_per_kg"`
	Currency       string          `json:"currency,omitempty"`
	SalePricePerKg decimal.Decimal `json:"sale_price_per_kg"`
}

// CashUpdateRequest is a manual cash register correction.
type CashUpdateRequest struct {
	Currency    string          `json:"currency"`
	Type        string          `json:"transaction_type"` // add | subtract
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// VoucherPaymentRequest is a pooled payment against the open vouchers.
type VoucherPaymentRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency,omitempty"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Description  string          `json:"description,omitempty"`
}
