package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/core"
)

// DraftItem is one contract line as the model proposes it. Names are resolved
// against the catalog by ToInput.
type DraftItem struct {
	Direction  string `json:"direction" jsonschema_description:"'from_company' when the company delivers the item, 'from_farmer' when the farmer delivers it"`
	Kind       string `json:"kind" jsonschema_description:"One of 'grain', 'purchase' (goods such as fertilizer or seed), 'cash' or 'voucher'"`
	Name       string `json:"name" jsonschema_description:"Culture name for grain, goods name for purchase items, a short label for vouchers, empty for cash"`
	Category   string `json:"category" jsonschema_description:"Goods category for purchase items (e.g. 'fertilizer'), empty otherwise"`
	QuantityKg string `json:"quantity_kg" jsonschema_description:"Quantity in kg as a decimal string. For cash items the amount in UAH."`
	PricePerKg string `json:"price_per_kg" jsonschema_description:"Price per kg in UAH as a decimal string, or '0' to use the catalog price"`
}

// ContractDraft is the structured proposal for a new farmer contract.
type ContractDraft struct {
	Type         string      `json:"contract_type" jsonschema_description:"One of 'payment', 'debt', 'exchange' or 'reserve'"`
	OwnerName    string      `json:"owner_name" jsonschema_description:"Full name of the farmer exactly as listed in the catalog"`
	Currency     string      `json:"currency" jsonschema_description:"Payout currency for payment contracts: UAH, USD or EUR. UAH otherwise."`
	ExchangeRate string      `json:"exchange_rate" jsonschema_description:"UAH per unit of currency as a decimal string, '0' for UAH or when unknown"`
	Payout       string      `json:"payout" jsonschema_description:"'cash' or 'voucher' for payment contracts, empty otherwise"`
	Note         string      `json:"note" jsonschema_description:"Free-text note copied onto the contract"`
	Items        []DraftItem `json:"items" jsonschema_description:"Contract lines"`
	Confidence   float64     `json:"confidence" jsonschema_description:"Confidence score between 0.0 and 1.0"`
	Reasoning    string      `json:"reasoning" jsonschema_description:"Short explanation of the proposed contract"`
}

// DraftResponse lets the model either propose a contract or ask for missing details.
type DraftResponse struct {
	NeedsClarification bool          `json:"needs_clarification" jsonschema_description:"Set to true ONLY if the text lacks the farmer, the contract type or the items"`
	Question           string        `json:"question" jsonschema_description:"The question for the operator when needs_clarification is true, empty otherwise"`
	Draft              ContractDraft `json:"draft" jsonschema_description:"The proposed contract when needs_clarification is false"`
}

// Catalog is the reference data the draft is resolved against.
type Catalog struct {
	Cultures []core.Culture
	Owners   []core.Owner
}

// Normalize cleans up the formatting quirks of model output.
func (d *ContractDraft) Normalize() {
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	d.OwnerName = core.CleanName(d.OwnerName)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	if d.Currency == "" {
		d.Currency = string(core.UAH)
	}
	d.Payout = strings.ToLower(strings.TrimSpace(d.Payout))
	if isBlank(d.ExchangeRate) {
		d.ExchangeRate = "0"
	}
	for i := range d.Items {
		it := &d.Items[i]
		it.Direction = strings.ToLower(strings.TrimSpace(it.Direction))
		it.Kind = strings.ToLower(strings.TrimSpace(it.Kind))
		it.Name = core.CleanName(it.Name)
		it.Category = core.CleanName(it.Category)
		if isBlank(it.PricePerKg) {
			it.PricePerKg = "0"
		}
		if isBlank(it.QuantityKg) {
			it.QuantityKg = "0"
		}
	}
}

func isBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "null")
}

// ToInput resolves the draft against the catalog and returns the input for
// ContractEngine.CreateContract. Contract rules themselves are checked there.
func (d *ContractDraft) ToInput(cat Catalog) (core.CreateContractInput, error) {
	typ, err := core.ParseContractType(d.Type)
	if err != nil {
		return core.CreateContractInput{}, err
	}
	owner, err := findOwner(cat.Owners, d.OwnerName)
	if err != nil {
		return core.CreateContractInput{}, err
	}
	if len(d.Items) == 0 {
		return core.CreateContractInput{}, fmt.Errorf("%w: draft has no items", core.ErrInvalidItem)
	}

	in := core.CreateContractInput{
		OwnerID: owner.ID,
		Type:    typ,
		Note:    d.Note,
	}
	if typ == core.ContractPayment {
		cur, err := core.ParseCurrency(d.Currency)
		if err != nil {
			return core.CreateContractInput{}, err
		}
		rate, err := decimal.NewFromString(d.ExchangeRate)
		if err != nil {
			return core.CreateContractInput{}, fmt.Errorf("%w: invalid exchange rate %q", core.ErrInvalidItem, d.ExchangeRate)
		}
		in.Currency = cur
		in.ExchangeRate = rate
		in.Payout = core.PayoutMethod(d.Payout)
	}

	for i, it := range d.Items {
		item, err := it.toInput(cat)
		if err != nil {
			return core.CreateContractInput{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		in.Items = append(in.Items, item)
	}
	return in, nil
}

func (it DraftItem) toInput(cat Catalog) (core.ContractItemInput, error) {
	dir := core.Direction(it.Direction)
	if dir != core.FromCompany && dir != core.FromFarmer {
		return core.ContractItemInput{}, fmt.Errorf("%w: unknown direction %q", core.ErrInvalidItem, it.Direction)
	}
	qty, err := decimal.NewFromString(it.QuantityKg)
	if err != nil {
		return core.ContractItemInput{}, fmt.Errorf("%w: invalid quantity %q", core.ErrInvalidItem, it.QuantityKg)
	}
	price, err := decimal.NewFromString(it.PricePerKg)
	if err != nil {
		return core.ContractItemInput{}, fmt.Errorf("%w: invalid price %q", core.ErrInvalidItem, it.PricePerKg)
	}

	var spec core.ItemSpec
	switch core.ItemKind(it.Kind) {
	case core.ItemGrain:
		culture, err := findCulture(cat.Cultures, it.Name)
		if err != nil {
			return core.ContractItemInput{}, err
		}
		spec = core.GrainItem{CultureID: culture.ID}
	case core.ItemPurchase:
		spec = core.GoodsItem{Name: it.Name, Category: it.Category}
	case core.ItemCash:
		spec = core.CashItem{}
	case core.ItemVoucher:
		spec = core.VoucherItem{Name: it.Name}
	default:
		return core.ContractItemInput{}, fmt.Errorf("%w: unknown item kind %q", core.ErrInvalidItem, it.Kind)
	}
	return core.ContractItemInput{Direction: dir, Item: spec, QuantityKg: qty, PricePerKg: price}, nil
}

func findOwner(owners []core.Owner, name string) (*core.Owner, error) {
	if name == "" {
		return nil, errors.New("draft names no farmer")
	}
	for i := range owners {
		if core.NormalizeName(owners[i].FullName) == core.NormalizeName(name) {
			return &owners[i], nil
		}
	}
	return nil, fmt.Errorf("%w: farmer %q", core.ErrNotFound, name)
}

func findCulture(cultures []core.Culture, name string) (*core.Culture, error) {
	for i := range cultures {
		if core.NormalizeName(cultures[i].Name) == core.NormalizeName(name) {
			return &cultures[i], nil
		}
	}
	return nil, fmt.Errorf("%w: culture %q", core.ErrNotFound, name)
}
