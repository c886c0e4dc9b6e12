package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractType is the settlement scheme of a farmer contract.
type ContractType string

const (
	ContractPayment  ContractType = "payment"
	ContractDebt     ContractType = "debt"
	ContractExchange ContractType = "exchange"
	ContractReserve  ContractType = "reserve"
)

// ParseContractType validates a contract type name.
func ParseContractType(s string) (ContractType, error) {
	switch t := ContractType(s); t {
	case ContractPayment, ContractDebt, ContractExchange, ContractReserve:
		return t, nil
	}
	return "", invalidItem("unknown contract type %q", s)
}

// ContractStatus is a state of the contract lifecycle:
//
//	pending → open → closed
//	open | pending → cancelled
//	closed → open (only when a payment of an auto-closed contract is cancelled)
type ContractStatus string

const (
	StatusPending   ContractStatus = "pending"
	StatusOpen      ContractStatus = "open"
	StatusClosed    ContractStatus = "closed"
	StatusCancelled ContractStatus = "cancelled"
)

// Direction says which party delivers a contract item.
type Direction string

const (
	FromCompany Direction = "from_company"
	FromFarmer  Direction = "from_farmer"
)

// ItemKind is the persisted discriminator of a contract item.
type ItemKind string

const (
	ItemGrain    ItemKind = "grain"
	ItemPurchase ItemKind = "purchase"
	ItemCash     ItemKind = "cash"
	ItemVoucher  ItemKind = "voucher"
)

// PaymentKind is the persisted discriminator of a contract payment.
type PaymentKind string

const (
	PaymentCash         PaymentKind = "cash"
	PaymentGrain        PaymentKind = "grain"
	PaymentGoodsIssue   PaymentKind = "goods_issue"
	PaymentGoodsReceive PaymentKind = "goods_receive"
	PaymentSettlement   PaymentKind = "settlement"
)

// PayoutMethod selects how a payment contract pays the farmer.
type PayoutMethod string

const (
	PayoutCash    PayoutMethod = "cash"
	PayoutVoucher PayoutMethod = "voucher"
)

// FarmerContract is the contract header. BalanceUAH is the debt still owed to
// the company; it never goes below zero.
type FarmerContract struct {
	ID             int             `json:"id"`
	OwnerID        int             `json:"owner_id"`
	Type           ContractType    `json:"contract_type"`
	Status         ContractStatus  `json:"status"`
	TotalValueUAH  decimal.Decimal `json:"total_value_uah"`
	BalanceUAH     decimal.Decimal `json:"balance_uah"`
	Currency       Currency        `json:"currency,omitempty"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	PayoutAmount   decimal.Decimal `json:"payout_amount"`
	PayoutMethod   PayoutMethod    `json:"payout_method,omitempty"`
	WasReserve     bool            `json:"was_reserve"`
	ClosedManually bool            `json:"closed_manually"`
	Note           string          `json:"note,omitempty"`
	ActorID        int             `json:"created_by_user_id"`
	ActorName      string          `json:"created_by_name"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// FarmerContractItem is one directional line of a contract.
type FarmerContractItem struct {
	ID            int             `json:"id"`
	ContractID    int             `json:"contract_id"`
	Direction     Direction       `json:"direction"`
	Kind          ItemKind        `json:"item_type"`
	Name          string          `json:"item_name"`
	CultureID     int             `json:"culture_id,omitempty"`
	GoodsName     string          `json:"goods_name,omitempty"`
	GoodsCategory string          `json:"goods_category,omitempty"`
	QuantityKg    decimal.Decimal `json:"quantity_kg"`
	PricePerKg    decimal.Decimal `json:"price_per_kg"`
	TotalValueUAH decimal.Decimal `json:"total_value_uah"`
	DeliveredKg   decimal.Decimal `json:"delivered_kg"`
}

// Remaining is the undelivered quantity of the item.
func (i *FarmerContractItem) Remaining() decimal.Decimal {
	return i.QuantityKg.Sub(i.DeliveredKg)
}

// Delivered reports whether the item is fully delivered within Epsilon.
func (i *FarmerContractItem) Delivered() bool {
	return ApproxGEQ(i.DeliveredKg, i.QuantityKg)
}

// StockKey returns the stock entry backing the item. Cash and voucher items
// have no stock.
func (i *FarmerContractItem) StockKey() (StockKey, bool) {
	switch i.Kind {
	case ItemGrain:
		return GrainKey(i.CultureID), true
	case ItemPurchase:
		return GoodsKey(i.GoodsName, i.GoodsCategory), true
	}
	return StockKey{}, false
}

// holdsReservation reports whether the undelivered part of the item is
// reserved in stock.
func (i *FarmerContractItem) holdsReservation() bool {
	_, stock := i.StockKey()
	return stock && i.Direction == FromCompany
}

// FarmerContractPayment is one fulfillment or cash event. It keeps enough of a
// snapshot to be reversed without re-deriving state; rows are never deleted.
type FarmerContractPayment struct {
	ID            int             `json:"id"`
	ContractID    int             `json:"contract_id"`
	ItemID        *int            `json:"item_id,omitempty"`
	Kind          PaymentKind     `json:"payment_type"`
	ItemKind      ItemKind        `json:"item_type,omitempty"`
	ItemName      string          `json:"item_name"`
	CultureID     int             `json:"culture_id,omitempty"`
	GoodsName     string          `json:"goods_name,omitempty"`
	GoodsCategory string          `json:"goods_category,omitempty"`
	QuantityKg    decimal.Decimal `json:"quantity_kg"`
	ReservedKg    decimal.Decimal `json:"reserved_kg"` // reservation consumed by a goods issue
	PricePerKg    decimal.Decimal `json:"price_per_kg"`
	Currency      Currency        `json:"currency"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	Amount        decimal.Decimal `json:"amount"`
	AmountUAH     decimal.Decimal `json:"amount_uah"`
	IsCancelled   bool            `json:"is_cancelled"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CancelledByID *int            `json:"cancelled_by_user_id,omitempty"`
	ActorID       int             `json:"created_by_user_id"`
	ActorName     string          `json:"created_by_name"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ContractDetail is a contract with its items and payments.
type ContractDetail struct {
	FarmerContract
	Items    []FarmerContractItem    `json:"items"`
	Payments []FarmerContractPayment `json:"payments"`
}

// ── Inputs ───────────────────────────────────────────────────────────────────

// ItemSpec is the closed set of things a contract item can be.
// Implemented by GrainItem, GoodsItem, CashItem and VoucherItem.
type ItemSpec interface {
	itemKind() ItemKind
}

// GrainItem is grain of one culture.
type GrainItem struct {
	CultureID int
}

// GoodsItem is purchase goods, matched by normalized name and category.
type GoodsItem struct {
	Name     string
	Category string
}

// CashItem is money in UAH, one "kg" per hryvnia.
type CashItem struct{}

// VoucherItem is a non-stock obligation tracked only by delivery.
type VoucherItem struct {
	Name string
}

func (GrainItem) itemKind() ItemKind   { return ItemGrain }
func (GoodsItem) itemKind() ItemKind   { return ItemPurchase }
func (CashItem) itemKind() ItemKind    { return ItemCash }
func (VoucherItem) itemKind() ItemKind { return ItemVoucher }

// ContractItemInput describes one item of a new contract.
// A zero PricePerKg means the default price: the culture price for grain,
// the sale price for goods and 1 for cash.
type ContractItemInput struct {
	Direction  Direction
	Item       ItemSpec
	QuantityKg decimal.Decimal
	PricePerKg decimal.Decimal
}

// CreateContractInput holds the parameters of CreateContract.
// Currency, ExchangeRate and Payout apply to payment contracts only.
type CreateContractInput struct {
	OwnerID      int
	Type         ContractType
	Items        []ContractItemInput
	Currency     Currency
	ExchangeRate decimal.Decimal
	Payout       PayoutMethod
	Note         string
}

// PaymentRequest is the closed set of payments that can be applied to an
// open contract: GoodsIssue, GoodsReceive, CashPayment and GrainPayment.
type PaymentRequest interface {
	paymentKind() PaymentKind
}

// GoodsIssue delivers part of a from_company item to the farmer.
type GoodsIssue struct {
	ItemID     int
	QuantityKg decimal.Decimal
}

// GoodsReceive accepts part of a from_farmer item from the farmer.
type GoodsReceive struct {
	ItemID     int
	QuantityKg decimal.Decimal
}

// CashPayment pays the contract balance down in cash.
type CashPayment struct {
	Amount       decimal.Decimal
	Currency     Currency
	ExchangeRate decimal.Decimal
}

// GrainPayment pays the contract balance down with grain from the farmer balance.
type GrainPayment struct {
	CultureID  int
	QuantityKg decimal.Decimal
}

func (GoodsIssue) paymentKind() PaymentKind   { return PaymentGoodsIssue }
func (GoodsReceive) paymentKind() PaymentKind { return PaymentGoodsReceive }
func (CashPayment) paymentKind() PaymentKind  { return PaymentCash }
func (GrainPayment) paymentKind() PaymentKind { return PaymentGrain }

// KindOf returns the payment kind a request will be recorded as.
func KindOf(r PaymentRequest) PaymentKind { return r.paymentKind() }

// ContractFilter narrows ListContracts. Zero values match everything.
type ContractFilter struct {
	OwnerID *int
	Type    *ContractType
	Status  *ContractStatus
}

// Matches reports whether c passes the filter.
func (f ContractFilter) Matches(c *FarmerContract) bool {
	if f.OwnerID != nil && c.OwnerID != *f.OwnerID {
		return false
	}
	if f.Type != nil && c.Type != *f.Type {
		return false
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	return true
}
