package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StockKind separates grain stock (ownership split) from purchase goods stock.
type StockKind string

const (
	StockGrain StockKind = "grain"
	StockGoods StockKind = "goods"
)

// StockKey identifies one stock entry: a grain culture, or a purchase goods item
// by normalized name and category.
type StockKey struct {
	Kind      StockKind `json:"kind"`
	CultureID int       `json:"culture_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Category  string    `json:"category,omitempty"`
}

// GrainKey returns the stock key of a grain culture.
func GrainKey(cultureID int) StockKey {
	return StockKey{Kind: StockGrain, CultureID: cultureID}
}

// GoodsKey returns the stock key of a purchase goods item. The name is normalized
// so that "Ammonium  Nitrate" and "ammonium nitrate" share one entry.
func GoodsKey(name, category string) StockKey {
	if category == "" {
		category = DefaultGoodsCategory
	}
	return StockKey{Kind: StockGoods, Name: NormalizeName(name), Category: category}
}

// DefaultGoodsCategory is used when a goods item is created without a category.
const DefaultGoodsCategory = "fertilizer"

func (k StockKey) String() string {
	if k.Kind == StockGrain {
		return fmt.Sprintf("grain:%d", k.CultureID)
	}
	return fmt.Sprintf("goods:%s:%s", k.Category, k.Name)
}

// CleanName collapses runs of whitespace and trims the result.
func CleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeName is CleanName lower-cased; it is the lookup form of a goods name.
func NormalizeName(name string) string {
	return strings.ToLower(CleanName(name))
}

// StockEntry is the running balance of one stock key.
//
// Grain: TotalKg = OwnKg + FarmerKg and ReservedKg <= OwnKg.
// FarmerKg counts grain owed to farmers; it is not a separate physical bin.
// Goods: only TotalKg and ReservedKg are used, ReservedKg <= TotalKg.
type StockEntry struct {
	ID             int             `json:"id"`
	Key            StockKey        `json:"key"`
	DisplayName    string          `json:"display_name"`
	TotalKg        decimal.Decimal `json:"total_kg"`
	OwnKg          decimal.Decimal `json:"own_kg"`
	FarmerKg       decimal.Decimal `json:"farmer_kg"`
	ReservedKg     decimal.Decimal `json:"reserved_kg"`
	SalePricePerKg decimal.Decimal `json:"sale_price_per_kg"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Available is the quantity that can still be reserved or issued:
// own minus reserved for grain, total minus reserved for goods.
func (e *StockEntry) Available() decimal.Decimal {
	if e.Key.Kind == StockGrain {
		return e.OwnKg.Sub(e.ReservedKg)
	}
	return e.TotalKg.Sub(e.ReservedKg)
}

// CheckInvariants returns a description of every broken invariant of the entry.
func (e *StockEntry) CheckInvariants() []string {
	var out []string
	for name, v := range map[string]decimal.Decimal{
		"total_kg": e.TotalKg, "own_kg": e.OwnKg, "farmer_kg": e.FarmerKg, "reserved_kg": e.ReservedKg,
	} {
		if v.IsNegative() {
			out = append(out, fmt.Sprintf("%s: %s is negative (%s)", e.Key, name, v))
		}
	}
	if e.Key.Kind == StockGrain {
		if !e.OwnKg.Add(e.FarmerKg).Equal(e.TotalKg) {
			out = append(out, fmt.Sprintf("%s: own %s + farmer %s != total %s", e.Key, e.OwnKg, e.FarmerKg, e.TotalKg))
		}
		if e.ReservedKg.GreaterThan(e.OwnKg) {
			out = append(out, fmt.Sprintf("%s: reserved %s exceeds own %s", e.Key, e.ReservedKg, e.OwnKg))
		}
	} else if e.ReservedKg.GreaterThan(e.TotalKg) {
		out = append(out, fmt.Sprintf("%s: reserved %s exceeds total %s", e.Key, e.ReservedKg, e.TotalKg))
	}
	return out
}

// Ownership selects which share of grain stock a delta applies to.
type Ownership string

const (
	OwnGrain    Ownership = "own"
	FarmerGrain Ownership = "farmer"
)

// StockCounter names the field of a StockEntry a journal row describes.
type StockCounter string

const (
	CounterTotal    StockCounter = "total"
	CounterOwn      StockCounter = "own"
	CounterFarmer   StockCounter = "farmer"
	CounterReserved StockCounter = "reserved"
)

// Adjustment sources recorded in the stock journal.
const (
	SourceManual       = "manual"
	SourceIntake       = "intake"
	SourceQuality      = "quality"
	SourceShipment     = "shipment"
	SourcePurchase     = "purchase"
	SourceReservation  = "reservation"
	SourceRelease      = "release"
	SourceIssue        = "issue"
	SourceReceive      = "receive"
	SourceSettlement   = "settlement"
	SourceGrainPayment = "grain_payment"
	SourceCancellation = "cancellation"
)

// StockAdjustment is one append-only row of the stock journal.
type StockAdjustment struct {
	ID          int             `json:"id"`
	StockKey    StockKey        `json:"stock_key"`
	ItemName    string          `json:"item_name"`
	Counter     StockCounter    `json:"counter"`
	Type        TransactionType `json:"transaction_type"`
	Amount      decimal.Decimal `json:"amount"`
	Before      decimal.Decimal `json:"quantity_before"`
	After       decimal.Decimal `json:"quantity_after"`
	Source      string          `json:"source"`
	Destination string          `json:"destination,omitempty"`
	ContractID  *int            `json:"contract_id,omitempty"`
	PaymentID   *int            `json:"payment_id,omitempty"`
	ActorID     int             `json:"user_id"`
	ActorName   string          `json:"user_full_name"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StockRef describes why a stock mutation happens; it is copied into the journal.
type StockRef struct {
	Source      string
	Destination string
	ContractID  *int
	PaymentID   *int
}

// Culture is a grain culture with its default price per kg in UAH.
type Culture struct {
	ID         int             `json:"id"`
	Name       string          `json:"name"`
	PricePerKg decimal.Decimal `json:"price_per_kg"`
}

// Owner is a farmer the company holds grain for or contracts with.
type Owner struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}

// IntakeRecord is one weighed delivery of grain. AcceptedKg is zero while
// PendingQuality is set; own-grain intakes carry no owner.
type IntakeRecord struct {
	ID              int             `json:"id"`
	OwnerID         *int            `json:"owner_id,omitempty"`
	CultureID       int             `json:"culture_id"`
	GrossKg         decimal.Decimal `json:"gross_weight_kg"`
	TareKg          decimal.Decimal `json:"tare_weight_kg"`
	NetKg           decimal.Decimal `json:"net_weight_kg"`
	ImpurityPercent decimal.Decimal `json:"impurity_percent"`
	AcceptedKg      decimal.Decimal `json:"accepted_weight_kg"`
	IsOwnGrain      bool            `json:"is_own_grain"`
	PendingQuality  bool            `json:"pending_quality"`
	Note            string          `json:"note,omitempty"`
	ActorID         int             `json:"created_by_user_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

// GrainDeduction consumes part of a farmer's redeemable balance. Deductions
// linked to a payment are deleted when that payment is cancelled.
type GrainDeduction struct {
	ID         int             `json:"id"`
	OwnerID    int             `json:"owner_id"`
	CultureID  int             `json:"culture_id"`
	QuantityKg decimal.Decimal `json:"quantity_kg"`
	ContractID *int            `json:"contract_id,omitempty"`
	PaymentID  *int            `json:"payment_id,omitempty"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// GrainShipment records grain leaving the warehouse.
type GrainShipment struct {
	ID          int             `json:"id"`
	CultureID   int             `json:"culture_id"`
	Destination string          `json:"destination"`
	QuantityKg  decimal.Decimal `json:"quantity_kg"`
	ActorID     int             `json:"created_by_user_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PurchaseRecord records goods bought into purchase stock.
type PurchaseRecord struct {
	ID          int             `json:"id"`
	StockID     int             `json:"stock_id"`
	ItemName    string          `json:"item_name"`
	Category    string          `json:"category"`
	PricePerKg  decimal.Decimal `json:"price_per_kg"`
	Currency    Currency        `json:"currency"`
	QuantityKg  decimal.Decimal `json:"quantity_kg"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ActorID     int             `json:"created_by_user_id"`
	CreatedAt   time.Time       `json:"created_at"`
}
