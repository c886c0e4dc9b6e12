package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ContractEngine owns the farmer contract state machine. Every mutating method
// runs as one unit of work: stock, cash, deductions and the contract itself
// change together or not at all.
type ContractEngine interface {
	// CreateContract validates the items, applies the side effects of the
	// contract type and returns the stored contract with items and payments.
	CreateContract(ctx context.Context, actor Actor, in CreateContractInput) (*ContractDetail, error)
	// ActivateReserve turns a pending reserve contract into an open debt contract.
	ActivateReserve(ctx context.Context, actor Actor, contractID int) (*FarmerContract, error)
	// CloseContract closes an open or pending contract regardless of its balance
	// and releases the reservations of undelivered company items.
	CloseContract(ctx context.Context, actor Actor, contractID int) (*FarmerContract, error)
	// CancelContract cancels an open or pending contract that has no active payments.
	CancelContract(ctx context.Context, actor Actor, contractID int) (*FarmerContract, error)
	CreatePayment(ctx context.Context, actor Actor, contractID int, req PaymentRequest) (*FarmerContractPayment, error)
	// CancelPayment reverses a payment exactly and reopens an auto-closed contract.
	CancelPayment(ctx context.Context, actor Actor, paymentID int) (*FarmerContractPayment, error)

	GetContract(ctx context.Context, contractID int) (*ContractDetail, error)
	ListContracts(ctx context.Context, f ContractFilter) ([]FarmerContract, error)
	ListPayments(ctx context.Context, contractID int) ([]FarmerContractPayment, error)
}

type contractEngine struct {
	rt      *Runtime
	stock   *StockLedger
	cash    *CashLedger
	farmers FarmerBalanceCalculator
	log     *zap.Logger
}

func NewContractEngine(rt *Runtime) ContractEngine {
	return &contractEngine{
		rt:    rt,
		stock: NewStockLedger(rt.named("core.stock")),
		cash:  NewCashLedger(rt.named("core.cash")),
		log:   rt.named("core.contracts"),
	}
}

const activatedSuffix = "[activated from reserve]"

// ── Creation ─────────────────────────────────────────────────────────────────

func (e *contractEngine) CreateContract(ctx context.Context, actor Actor, in CreateContractInput) (*ContractDetail, error) {
	var detail *ContractDetail
	err := e.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		var err error
		detail, err = e.createContract(ctx, uow, in)
		return err
	})
	if err != nil {
		e.log.Debug("contract creation rejected",
			zap.Int("owner_id", in.OwnerID), zap.String("type", string(in.Type)), zap.Error(err))
		return nil, err
	}
	e.log.Info("contract created",
		zap.Int("contract_id", detail.ID),
		zap.String("type", string(detail.Type)),
		zap.String("status", string(detail.Status)),
		zap.String("balance_uah", detail.BalanceUAH.StringFixed(2)))
	return detail, nil
}

func (e *contractEngine) createContract(ctx context.Context, uow *UnitOfWork, in CreateContractInput) (*ContractDetail, error) {
	if _, err := uow.owner(ctx, in.OwnerID); err != nil {
		return nil, err
	}
	if _, err := ParseContractType(string(in.Type)); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, invalidItem("a %s contract needs at least one item", in.Type)
	}

	items := make([]FarmerContractItem, 0, len(in.Items))
	for i, input := range in.Items {
		item, err := e.resolveItem(ctx, uow, in.Type, input)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items = append(items, item)
	}

	// Farmer-side grain is checked per culture against the summed quantity.
	farmerGrain := make(map[int]decimal.Decimal)
	var cultureOrder []int
	for _, it := range items {
		if it.Direction == FromFarmer && it.Kind == ItemGrain {
			if _, seen := farmerGrain[it.CultureID]; !seen {
				cultureOrder = append(cultureOrder, it.CultureID)
			}
			farmerGrain[it.CultureID] = farmerGrain[it.CultureID].Add(it.QuantityKg)
		}
	}
	for _, cultureID := range cultureOrder {
		if err := e.farmers.Check(ctx, uow.Tx, in.OwnerID, cultureID, farmerGrain[cultureID],
			"farmer balance of "+cultureName(items, cultureID)); err != nil {
			return nil, err
		}
	}

	companyTotal, farmerTotal := decimal.Zero, decimal.Zero
	for _, it := range items {
		if it.Direction == FromCompany {
			companyTotal = companyTotal.Add(it.TotalValueUAH)
		} else {
			farmerTotal = farmerTotal.Add(it.TotalValueUAH)
		}
	}

	c := &FarmerContract{
		OwnerID:      in.OwnerID,
		Type:         in.Type,
		ExchangeRate: decimal.Zero,
		PayoutAmount: decimal.Zero,
		Note:         strings.TrimSpace(in.Note),
		ActorID:      uow.Actor.ID,
		ActorName:    uow.Actor.FullName,
		CreatedAt:    uow.Now,
		UpdatedAt:    uow.Now,
	}

	switch in.Type {
	case ContractPayment:
		return e.createPaymentContract(ctx, uow, c, in, items, farmerTotal)
	case ContractReserve:
		c.Status = StatusPending
		c.TotalValueUAH = companyTotal
		c.BalanceUAH = companyTotal
	default:
		c.Status = StatusOpen
		c.TotalValueUAH = companyTotal
		c.BalanceUAH = nonNegative(companyTotal.Sub(farmerTotal))
	}

	if err := uow.Tx.InsertContract(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to insert contract: %w", err)
	}
	for i := range items {
		items[i].ContractID = c.ID
		if items[i].holdsReservation() {
			if err := e.reserveItem(ctx, uow, c, &items[i]); err != nil {
				return nil, err
			}
		}
		if err := uow.Tx.InsertContractItem(ctx, &items[i]); err != nil {
			return nil, fmt.Errorf("failed to insert contract item: %w", err)
		}
	}
	if c.Status == StatusOpen {
		if _, err := e.checkCompletion(ctx, uow, c, items); err != nil {
			return nil, err
		}
	}
	return &ContractDetail{FarmerContract: *c, Items: items, Payments: []FarmerContractPayment{}}, nil
}

// resolveItem validates one input and prices it. Nothing is written.
func (e *contractEngine) resolveItem(ctx context.Context, uow *UnitOfWork, typ ContractType, in ContractItemInput) (FarmerContractItem, error) {
	it := FarmerContractItem{
		Direction:   in.Direction,
		QuantityKg:  in.QuantityKg,
		PricePerKg:  in.PricePerKg,
		DeliveredKg: decimal.Zero,
	}
	if in.Direction != FromCompany && in.Direction != FromFarmer {
		return it, invalidItem("unknown direction %q", in.Direction)
	}
	if in.Item == nil {
		return it, invalidItem("item kind is required")
	}
	if !in.QuantityKg.IsPositive() {
		return it, invalidItem("quantity must be positive, got %s", in.QuantityKg)
	}
	if in.PricePerKg.IsNegative() {
		return it, invalidItem("price must not be negative, got %s", in.PricePerKg)
	}
	it.Kind = in.Item.itemKind()

	switch spec := in.Item.(type) {
	case GrainItem:
		culture, err := uow.culture(ctx, spec.CultureID)
		if err != nil {
			return it, err
		}
		it.CultureID = culture.ID
		it.Name = culture.Name
		if it.PricePerKg.IsZero() && typ != ContractReserve {
			it.PricePerKg = culture.PricePerKg
		}
	case GoodsItem:
		name := CleanName(spec.Name)
		if name == "" {
			return it, invalidItem("goods name is required")
		}
		key := GoodsKey(name, spec.Category)
		it.Name, it.GoodsName, it.GoodsCategory = name, key.Name, key.Category
		if it.PricePerKg.IsZero() && typ != ContractReserve {
			if entry, ok, err := uow.Stock(ctx, key); err != nil {
				return it, err
			} else if ok {
				it.Name = entry.DisplayName
				it.PricePerKg = entry.SalePricePerKg
			}
		}
	case CashItem:
		it.Name = "Cash"
		if it.PricePerKg.IsZero() {
			it.PricePerKg = decimal.NewFromInt(1)
		}
	case VoucherItem:
		it.Name = CleanName(spec.Name)
		if it.Name == "" {
			it.Name = "Voucher"
		}
	default:
		return it, invalidItem("unsupported item %T", in.Item)
	}

	if !it.PricePerKg.IsPositive() {
		return it, invalidItem("price of %s must be positive", it.Name)
	}
	it.TotalValueUAH = it.QuantityKg.Mul(it.PricePerKg).Round(2)

	switch typ {
	case ContractPayment:
		if it.Direction != FromFarmer || it.Kind != ItemGrain {
			return it, invalidItem("payment contracts take farmer grain only, got %s %s", it.Direction, it.Kind)
		}
	case ContractReserve:
		if it.Direction != FromCompany {
			return it, invalidItem("reserve contracts take company items only")
		}
	}
	if it.Direction == FromFarmer && it.Kind == ItemVoucher {
		return it, invalidItem("farmer cannot deliver %s items", it.Kind)
	}
	return it, nil
}

func (e *contractEngine) reserveItem(ctx context.Context, uow *UnitOfWork, c *FarmerContract, it *FarmerContractItem) error {
	key, _ := it.StockKey()
	entry, err := e.stock.GetOrCreate(ctx, uow, key, it.Name)
	if err != nil {
		return err
	}
	if it.Kind == ItemPurchase {
		it.Name = entry.DisplayName
	}
	return e.stock.Reserve(ctx, uow, entry, it.QuantityKg, StockRef{Source: SourceReservation, ContractID: &c.ID})
}

// createPaymentContract settles farmer grain at once: ownership moves to the
// company, the farmer is paid out and a single settlement payment is stored.
func (e *contractEngine) createPaymentContract(ctx context.Context, uow *UnitOfWork, c *FarmerContract,
	in CreateContractInput, items []FarmerContractItem, farmerTotal decimal.Decimal) (*ContractDetail, error) {

	currency, err := ParseCurrency(string(in.Currency))
	if err != nil {
		return nil, err
	}
	payout := farmerTotal
	rate := decimal.NewFromInt(1)
	if currency != UAH {
		if !in.ExchangeRate.IsPositive() {
			return nil, invalidItem("exchange rate is required for %s payout", currency)
		}
		rate = in.ExchangeRate
		payout = farmerTotal.Div(rate).Round(2)
	}
	method := in.Payout
	if method == "" {
		method = PayoutCash
	}
	if method != PayoutCash && method != PayoutVoucher {
		return nil, invalidItem("unknown payout method %q", method)
	}
	if method == PayoutVoucher && currency != UAH {
		return nil, invalidItem("voucher payout is issued in UAH only")
	}

	c.Status = StatusClosed
	c.TotalValueUAH = farmerTotal
	c.BalanceUAH = decimal.Zero
	c.Currency = currency
	c.ExchangeRate = rate
	c.PayoutAmount = payout
	c.PayoutMethod = method
	c.ClosedAt = uow.nowPtr()
	if err := uow.Tx.InsertContract(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to insert contract: %w", err)
	}

	p := &FarmerContractPayment{
		ContractID:   c.ID,
		Kind:         PaymentSettlement,
		ItemName:     "Payout " + string(currency),
		QuantityKg:   decimal.Zero,
		ReservedKg:   decimal.Zero,
		PricePerKg:   decimal.Zero,
		Currency:     currency,
		ExchangeRate: rate,
		Amount:       payout,
		AmountUAH:    farmerTotal,
		ActorID:      uow.Actor.ID,
		ActorName:    uow.Actor.FullName,
		CreatedAt:    uow.Now,
	}
	if err := uow.Tx.InsertContractPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to insert settlement payment: %w", err)
	}

	ref := StockRef{Source: SourceSettlement, ContractID: &c.ID, PaymentID: &p.ID}
	for i := range items {
		it := &items[i]
		it.ContractID = c.ID
		it.DeliveredKg = it.QuantityKg
		if err := uow.Tx.InsertContractItem(ctx, it); err != nil {
			return nil, fmt.Errorf("failed to insert contract item: %w", err)
		}
		if err := e.moveFarmerGrain(ctx, uow, c, p, it.CultureID, it.Name, it.QuantityKg, ref); err != nil {
			return nil, err
		}
		if method == PayoutVoucher {
			v := &GrainVoucher{
				ContractID:        c.ID,
				PaymentID:         p.ID,
				OwnerID:           c.OwnerID,
				CultureID:         it.CultureID,
				QuantityKg:        it.QuantityKg,
				PricePerKg:        it.PricePerKg,
				TotalValueUAH:     it.TotalValueUAH,
				PaidValueUAH:      decimal.Zero,
				RemainingValueUAH: it.TotalValueUAH,
				Note:              c.Note,
				CreatedAt:         uow.Now,
			}
			if err := uow.Tx.InsertVoucher(ctx, v); err != nil {
				return nil, fmt.Errorf("failed to insert voucher: %w", err)
			}
		}
	}

	if method == PayoutVoucher {
		if err := redistributeVouchers(ctx, uow); err != nil {
			return nil, err
		}
	} else if payout.IsPositive() {
		desc := fmt.Sprintf("Contract #%d payout", c.ID)
		if _, err := e.cash.Apply(ctx, uow, currency, payout.Neg(), desc); err != nil {
			return nil, err
		}
	}
	return &ContractDetail{FarmerContract: *c, Items: items, Payments: []FarmerContractPayment{*p}}, nil
}

// moveFarmerGrain transfers qty of the farmer's grain to company ownership and
// records the deduction against the farmer balance, linked to payment p.
func (e *contractEngine) moveFarmerGrain(ctx context.Context, uow *UnitOfWork, c *FarmerContract, p *FarmerContractPayment,
	cultureID int, name string, qty decimal.Decimal, ref StockRef) error {

	entry, err := e.stock.GetOrCreate(ctx, uow, GrainKey(cultureID), name)
	if err != nil {
		return err
	}
	if err := e.stock.TransferToOwn(ctx, uow, entry, qty, ref); err != nil {
		return err
	}
	d := &GrainDeduction{
		OwnerID:    c.OwnerID,
		CultureID:  cultureID,
		QuantityKg: qty,
		ContractID: &c.ID,
		PaymentID:  &p.ID,
		Note:       fmt.Sprintf("contract #%d %s", c.ID, p.Kind),
		CreatedAt:  uow.Now,
	}
	if err := uow.Tx.InsertDeduction(ctx, d); err != nil {
		return fmt.Errorf("failed to record deduction: %w", err)
	}
	return nil
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (e *contractEngine) ActivateReserve(ctx context.Context, actor Actor, contractID int) (*FarmerContract, error) {
	var out *FarmerContract
	err := e.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		c, err := uow.contract(ctx, contractID)
		if err != nil {
			return err
		}
		if c.Type != ContractReserve {
			return invalidState("contract %d is a %s contract, not a reserve", c.ID, c.Type)
		}
		if c.Status != StatusPending {
			return invalidState("contract %d is %s, not pending", c.ID, c.Status)
		}
		items, err := uow.Tx.ListContractItems(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to load contract items: %w", err)
		}
		for _, it := range items {
			if !it.holdsReservation() {
				continue
			}
			key, _ := it.StockKey()
			entry, err := e.stock.Lookup(ctx, uow, key)
			if err != nil {
				return err
			}
			held := it.Remaining()
			if avail := entry.Available().Add(held); held.GreaterThan(avail) {
				return amountErr(ErrInsufficientStock, entry.DisplayName, held, avail)
			}
		}
		c.Type = ContractDebt
		c.Status = StatusOpen
		c.WasReserve = true
		c.Note = strings.TrimSpace(c.Note + " " + activatedSuffix)
		c.UpdatedAt = uow.Now
		if err := uow.Tx.UpdateContract(ctx, c); err != nil {
			return fmt.Errorf("failed to update contract: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		e.log.Debug("reserve activation rejected", zap.Int("contract_id", contractID), zap.Error(err))
		return nil, err
	}
	e.log.Info("reserve activated", zap.Int("contract_id", contractID))
	return out, nil
}

func (e *contractEngine) CloseContract(ctx context.Context, actor Actor, contractID int) (*FarmerContract, error) {
	var out *FarmerContract
	err := e.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		c, err := uow.contract(ctx, contractID)
		if err != nil {
			return err
		}
		if c.Status != StatusOpen && c.Status != StatusPending {
			return invalidState("contract %d is already %s", c.ID, c.Status)
		}
		if err := e.releaseReservations(ctx, uow, c); err != nil {
			return err
		}
		c.Status = StatusClosed
		c.ClosedManually = true
		c.ClosedAt = uow.nowPtr()
		c.UpdatedAt = uow.Now
		if err := uow.Tx.UpdateContract(ctx, c); err != nil {
			return fmt.Errorf("failed to update contract: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		e.log.Debug("contract close rejected", zap.Int("contract_id", contractID), zap.Error(err))
		return nil, err
	}
	e.log.Info("contract closed manually",
		zap.Int("contract_id", contractID), zap.String("written_off_uah", out.BalanceUAH.StringFixed(2)))
	return out, nil
}

func (e *contractEngine) CancelContract(ctx context.Context, actor Actor, contractID int) (*FarmerContract, error) {
	var out *FarmerContract
	err := e.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		c, err := uow.contract(ctx, contractID)
		if err != nil {
			return err
		}
		if c.Status != StatusOpen && c.Status != StatusPending {
			return invalidState("contract %d is %s and cannot be cancelled", c.ID, c.Status)
		}
		payments, err := uow.Tx.ListContractPayments(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to load payments: %w", err)
		}
		for _, p := range payments {
			if !p.IsCancelled {
				return invalidState("contract %d has active payment %d; cancel it first", c.ID, p.ID)
			}
		}
		if err := e.releaseReservations(ctx, uow, c); err != nil {
			return err
		}
		c.Status = StatusCancelled
		c.UpdatedAt = uow.Now
		if err := uow.Tx.UpdateContract(ctx, c); err != nil {
			return fmt.Errorf("failed to update contract: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		e.log.Debug("contract cancellation rejected", zap.Int("contract_id", contractID), zap.Error(err))
		return nil, err
	}
	e.log.Info("contract cancelled", zap.Int("contract_id", contractID))
	return out, nil
}

// releaseReservations frees the reservation still held by the undelivered part
// of every company stock item.
func (e *contractEngine) releaseReservations(ctx context.Context, uow *UnitOfWork, c *FarmerContract) error {
	items, err := uow.Tx.ListContractItems(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load contract items: %w", err)
	}
	for _, it := range items {
		if !it.holdsReservation() {
			continue
		}
		rest := it.Remaining()
		if !rest.IsPositive() {
			continue
		}
		key, _ := it.StockKey()
		entry, err := e.stock.Lookup(ctx, uow, key)
		if err != nil {
			return err
		}
		if _, err := e.stock.ReleaseReservation(ctx, uow, entry, rest,
			StockRef{Source: SourceRelease, ContractID: &c.ID}); err != nil {
			return err
		}
	}
	return nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (e *contractEngine) GetContract(ctx context.Context, contractID int) (*ContractDetail, error) {
	var out *ContractDetail
	err := e.rt.view(ctx, func(uow *UnitOfWork) error {
		c, err := uow.contract(ctx, contractID)
		if err != nil {
			return err
		}
		items, err := uow.Tx.ListContractItems(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to load contract items: %w", err)
		}
		payments, err := uow.Tx.ListContractPayments(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to load payments: %w", err)
		}
		out = &ContractDetail{FarmerContract: *c, Items: items, Payments: payments}
		return nil
	})
	return out, err
}

func (e *contractEngine) ListContracts(ctx context.Context, f ContractFilter) ([]FarmerContract, error) {
	var out []FarmerContract
	err := e.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Tx.ListContracts(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return out, nil
}

func (e *contractEngine) ListPayments(ctx context.Context, contractID int) ([]FarmerContractPayment, error) {
	var out []FarmerContractPayment
	err := e.rt.view(ctx, func(uow *UnitOfWork) error {
		if _, err := uow.contract(ctx, contractID); err != nil {
			return err
		}
		var err error
		out, err = uow.Tx.ListContractPayments(ctx, contractID)
		return err
	})
	return out, err
}

func cultureName(items []FarmerContractItem, cultureID int) string {
	for _, it := range items {
		if it.Kind == ItemGrain && it.CultureID == cultureID {
			return it.Name
		}
	}
	return fmt.Sprintf("culture %d", cultureID)
}
