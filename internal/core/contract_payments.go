package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ── Payments ─────────────────────────────────────────────────────────────────

func (e *contractEngine) CreatePayment(ctx context.Context, actor Actor, contractID int, req PaymentRequest) (*FarmerContractPayment, error) {
	var out *FarmerContractPayment
	var closed bool
	err := e.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		c, err := uow.contract(ctx, contractID)
		if err != nil {
			return err
		}
		if c.Status != StatusOpen {
			return invalidState("contract %d is %s; payments need an open contract", c.ID, c.Status)
		}
		items, err := uow.Tx.ListContractItems(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to load contract items: %w", err)
		}

		switch r := req.(type) {
		case GoodsIssue:
			out, err = e.issueGoods(ctx, uow, c, items, r)
		case GoodsReceive:
			out, err = e.receiveGoods(ctx, uow, c, items, r)
		case CashPayment:
			out, err = e.payCash(ctx, uow, c, r)
		case GrainPayment:
			out, err = e.payGrain(ctx, uow, c, r)
		case nil:
			return invalidItem("payment request is required")
		default:
			return invalidItem("unsupported payment %T", req)
		}
		if err != nil {
			return err
		}
		closed, err = e.checkCompletion(ctx, uow, c, items)
		return err
	})
	if err != nil {
		e.log.Debug("payment rejected", zap.Int("contract_id", contractID), zap.Error(err))
		return nil, err
	}
	e.log.Info("payment recorded",
		zap.Int("contract_id", contractID),
		zap.Int("payment_id", out.ID),
		zap.String("type", string(out.Kind)),
		zap.String("amount_uah", out.AmountUAH.StringFixed(2)))
	if closed {
		e.log.Info("contract settled", zap.Int("contract_id", contractID))
	}
	return out, nil
}

func (e *contractEngine) newPayment(uow *UnitOfWork, c *FarmerContract, kind PaymentKind) *FarmerContractPayment {
	return &FarmerContractPayment{
		ContractID:   c.ID,
		Kind:         kind,
		QuantityKg:   decimal.Zero,
		ReservedKg:   decimal.Zero,
		PricePerKg:   decimal.Zero,
		Currency:     UAH,
		ExchangeRate: decimal.NewFromInt(1),
		Amount:       decimal.Zero,
		AmountUAH:    decimal.Zero,
		ActorID:      uow.Actor.ID,
		ActorName:    uow.Actor.FullName,
		CreatedAt:    uow.Now,
	}
}

// fulfilment validates a delivery against an item and returns the item and the
// quantity to book. A request that overshoots the remainder by no more than
// Epsilon is trimmed to the remainder.
func fulfilment(items []FarmerContractItem, itemID int, dir Direction, qty decimal.Decimal) (*FarmerContractItem, decimal.Decimal, error) {
	var it *FarmerContractItem
	for i := range items {
		if items[i].ID == itemID {
			it = &items[i]
			break
		}
	}
	if it == nil {
		return nil, decimal.Zero, notFound("contract item", itemID)
	}
	if it.Direction != dir {
		return nil, decimal.Zero, invalidItem("item %d is delivered %s, not %s", it.ID, it.Direction, dir)
	}
	if !qty.IsPositive() {
		return nil, decimal.Zero, invalidItem("quantity must be positive, got %s", qty)
	}
	rest := it.Remaining()
	booked := decimal.Min(qty, rest)
	if !ApproxLEQ(qty, rest) || !booked.IsPositive() {
		return nil, decimal.Zero, amountErr(ErrExceedsRemaining, it.Name, qty, rest)
	}
	return it, booked, nil
}

func (e *contractEngine) fillPaymentItem(p *FarmerContractPayment, it *FarmerContractItem, qty decimal.Decimal) {
	id := it.ID
	p.ItemID = &id
	p.ItemKind = it.Kind
	p.ItemName = it.Name
	p.CultureID = it.CultureID
	p.GoodsName = it.GoodsName
	p.GoodsCategory = it.GoodsCategory
	p.QuantityKg = qty
	p.PricePerKg = it.PricePerKg
	p.Amount = qty.Mul(it.PricePerKg).Round(2)
	p.AmountUAH = p.Amount
}

// issueGoods delivers a company item to the farmer. The contract balance does
// not change: the item was already counted when the contract was created.
func (e *contractEngine) issueGoods(ctx context.Context, uow *UnitOfWork, c *FarmerContract,
	items []FarmerContractItem, r GoodsIssue) (*FarmerContractPayment, error) {

	it, qty, err := fulfilment(items, r.ItemID, FromCompany, r.QuantityKg)
	if err != nil {
		return nil, err
	}
	p := e.newPayment(uow, c, PaymentGoodsIssue)
	e.fillPaymentItem(p, it, qty)
	if err := uow.Tx.InsertContractPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	ref := StockRef{Source: SourceIssue, ContractID: &c.ID, PaymentID: &p.ID}

	switch it.Kind {
	case ItemGrain, ItemPurchase:
		key, _ := it.StockKey()
		entry, err := e.stock.Lookup(ctx, uow, key)
		if err != nil {
			return nil, err
		}
		consumed, err := e.stock.Issue(ctx, uow, entry, qty, ref)
		if err != nil {
			return nil, err
		}
		p.ReservedKg = consumed
		if err := uow.Tx.UpdateContractPayment(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to update payment: %w", err)
		}
	case ItemCash:
		desc := fmt.Sprintf("Contract #%d: cash issued to farmer", c.ID)
		if _, err := e.cash.Apply(ctx, uow, UAH, qty.Neg(), desc); err != nil {
			return nil, err
		}
	case ItemVoucher:
	default:
		return nil, fmt.Errorf("unknown item kind %q", it.Kind)
	}

	it.DeliveredKg = it.DeliveredKg.Add(qty)
	if err := uow.Tx.UpdateContractItem(ctx, it); err != nil {
		return nil, fmt.Errorf("failed to update contract item: %w", err)
	}
	return p, nil
}

// receiveGoods accepts a farmer item. Grain must still be on the farmer's
// balance; it becomes company grain and a deduction is linked to the payment.
func (e *contractEngine) receiveGoods(ctx context.Context, uow *UnitOfWork, c *FarmerContract,
	items []FarmerContractItem, r GoodsReceive) (*FarmerContractPayment, error) {

	it, qty, err := fulfilment(items, r.ItemID, FromFarmer, r.QuantityKg)
	if err != nil {
		return nil, err
	}
	if it.Kind == ItemGrain {
		if err := e.farmers.Check(ctx, uow.Tx, c.OwnerID, it.CultureID, qty, "farmer balance of "+it.Name); err != nil {
			return nil, err
		}
	}
	p := e.newPayment(uow, c, PaymentGoodsReceive)
	e.fillPaymentItem(p, it, qty)
	if err := uow.Tx.InsertContractPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	switch it.Kind {
	case ItemGrain:
		ref := StockRef{Source: SourceReceive, ContractID: &c.ID, PaymentID: &p.ID}
		if err := e.moveFarmerGrain(ctx, uow, c, p, it.CultureID, it.Name, qty, ref); err != nil {
			return nil, err
		}
	case ItemCash:
		desc := fmt.Sprintf("Contract #%d: cash received from farmer", c.ID)
		if _, err := e.cash.Apply(ctx, uow, UAH, qty, desc); err != nil {
			return nil, err
		}
	case ItemPurchase:
		// Farmer goods are tracked by delivery only.
	default:
		return nil, invalidItem("cannot receive %s item %d", it.Kind, it.ID)
	}

	it.DeliveredKg = it.DeliveredKg.Add(qty)
	if err := uow.Tx.UpdateContractItem(ctx, it); err != nil {
		return nil, fmt.Errorf("failed to update contract item: %w", err)
	}
	return p, nil
}

// payCash pays the balance down in any register currency.
func (e *contractEngine) payCash(ctx context.Context, uow *UnitOfWork, c *FarmerContract, r CashPayment) (*FarmerContractPayment, error) {
	if !r.Amount.IsPositive() {
		return nil, invalidItem("cash amount must be positive, got %s", r.Amount)
	}
	currency, err := ParseCurrency(string(r.Currency))
	if err != nil {
		return nil, err
	}
	amountUAH, err := ToUAH(r.Amount, currency, r.ExchangeRate)
	if err != nil {
		return nil, err
	}
	if !ApproxLEQ(amountUAH, c.BalanceUAH) {
		return nil, amountErr(ErrExceedsBalance, fmt.Sprintf("contract #%d", c.ID), amountUAH, c.BalanceUAH)
	}

	p := e.newPayment(uow, c, PaymentCash)
	p.ItemName = "Cash " + string(currency)
	p.Currency = currency
	if currency != UAH {
		p.ExchangeRate = r.ExchangeRate
	}
	p.Amount = r.Amount
	p.AmountUAH = decimal.Min(amountUAH, c.BalanceUAH)
	if err := uow.Tx.InsertContractPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	desc := fmt.Sprintf("Contract #%d: cash payment", c.ID)
	if _, err := e.cash.Apply(ctx, uow, currency, r.Amount, desc); err != nil {
		return nil, err
	}
	return p, e.changeBalance(ctx, uow, c, p.AmountUAH.Neg())
}

// payGrain pays the balance down with loose grain from the farmer balance,
// priced at the culture price.
func (e *contractEngine) payGrain(ctx context.Context, uow *UnitOfWork, c *FarmerContract, r GrainPayment) (*FarmerContractPayment, error) {
	if !r.QuantityKg.IsPositive() {
		return nil, invalidItem("quantity must be positive, got %s", r.QuantityKg)
	}
	culture, err := uow.culture(ctx, r.CultureID)
	if err != nil {
		return nil, err
	}
	if !culture.PricePerKg.IsPositive() {
		return nil, invalidItem("culture %s has no price", culture.Name)
	}
	amountUAH := r.QuantityKg.Mul(culture.PricePerKg).Round(2)
	if err := e.farmers.Check(ctx, uow.Tx, c.OwnerID, culture.ID, r.QuantityKg, "farmer balance of "+culture.Name); err != nil {
		return nil, err
	}
	if !ApproxLEQ(amountUAH, c.BalanceUAH) {
		return nil, amountErr(ErrExceedsBalance, fmt.Sprintf("contract #%d", c.ID), amountUAH, c.BalanceUAH)
	}

	p := e.newPayment(uow, c, PaymentGrain)
	p.ItemKind = ItemGrain
	p.ItemName = culture.Name
	p.CultureID = culture.ID
	p.QuantityKg = r.QuantityKg
	p.PricePerKg = culture.PricePerKg
	p.Amount = amountUAH
	p.AmountUAH = decimal.Min(amountUAH, c.BalanceUAH)
	if err := uow.Tx.InsertContractPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	ref := StockRef{Source: SourceGrainPayment, ContractID: &c.ID, PaymentID: &p.ID}
	if err := e.moveFarmerGrain(ctx, uow, c, p, culture.ID, culture.Name, r.QuantityKg, ref); err != nil {
		return nil, err
	}
	return p, e.changeBalance(ctx, uow, c, p.AmountUAH.Neg())
}

// changeBalance applies delta to the contract balance. Callers cap payments
// at the balance, so AmountUAH is always the exact reduction to reverse.
func (e *contractEngine) changeBalance(ctx context.Context, uow *UnitOfWork, c *FarmerContract, delta decimal.Decimal) error {
	c.BalanceUAH = nonNegative(c.BalanceUAH.Add(delta))
	c.UpdatedAt = uow.Now
	if err := uow.Tx.UpdateContract(ctx, c); err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	return nil
}

// checkCompletion closes an open contract once the balance is settled and
// every item is delivered, all within Epsilon.
func (e *contractEngine) checkCompletion(ctx context.Context, uow *UnitOfWork, c *FarmerContract, items []FarmerContractItem) (bool, error) {
	if c.Status != StatusOpen || !ApproxZero(c.BalanceUAH) {
		return false, nil
	}
	for i := range items {
		if !items[i].Delivered() {
			return false, nil
		}
	}
	c.Status = StatusClosed
	c.ClosedAt = uow.nowPtr()
	c.UpdatedAt = uow.Now
	if err := uow.Tx.UpdateContract(ctx, c); err != nil {
		return false, fmt.Errorf("failed to update contract: %w", err)
	}
	return true, nil
}

// ── Cancellation ─────────────────────────────────────────────────────────────

func (e *contractEngine) CancelPayment(ctx context.Context, actor Actor, paymentID int) (*FarmerContractPayment, error) {
	var out *FarmerContractPayment
	var reopened bool
	err := e.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		p, err := uow.Tx.GetContractPayment(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("payment %d: %w", paymentID, err)
		}
		if p.IsCancelled {
			return invalidState("payment %d is already cancelled", p.ID)
		}
		if p.Kind == PaymentSettlement {
			return fmt.Errorf("%w: settlement payment %d cannot be cancelled", ErrIrreversible, p.ID)
		}
		c, err := uow.contract(ctx, p.ContractID)
		if err != nil {
			return err
		}
		if c.Status == StatusCancelled || c.ClosedManually {
			return invalidState("contract %d is %s; its payments are final", c.ID, closedLabel(c))
		}
		if err := e.reverse(ctx, uow, c, p); err != nil {
			return err
		}
		if c.Status == StatusClosed {
			c.Status = StatusOpen
			c.ClosedAt = nil
			reopened = true
		}
		c.UpdatedAt = uow.Now
		if err := uow.Tx.UpdateContract(ctx, c); err != nil {
			return fmt.Errorf("failed to update contract: %w", err)
		}
		p.IsCancelled = true
		p.CancelledAt = uow.nowPtr()
		by := uow.Actor.ID
		p.CancelledByID = &by
		if err := uow.Tx.UpdateContractPayment(ctx, p); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		e.log.Debug("payment cancellation rejected", zap.Int("payment_id", paymentID), zap.Error(err))
		return nil, err
	}
	e.log.Info("payment cancelled",
		zap.Int("payment_id", paymentID),
		zap.Int("contract_id", out.ContractID),
		zap.Bool("contract_reopened", reopened))
	return out, nil
}

// reverse undoes the ledger effects of p using only what p recorded.
func (e *contractEngine) reverse(ctx context.Context, uow *UnitOfWork, c *FarmerContract, p *FarmerContractPayment) error {
	ref := StockRef{Source: SourceCancellation, ContractID: &c.ID, PaymentID: &p.ID}

	switch p.Kind {
	case PaymentGoodsIssue:
		switch p.ItemKind {
		case ItemGrain, ItemPurchase:
			entry, err := e.paymentStock(ctx, uow, p)
			if err != nil {
				return err
			}
			if err := e.stock.Restore(ctx, uow, entry, p.QuantityKg, p.ReservedKg, ref); err != nil {
				return err
			}
		case ItemCash:
			desc := fmt.Sprintf("Contract #%d: cash issue cancelled", c.ID)
			if _, err := e.cash.Apply(ctx, uow, UAH, p.QuantityKg, desc); err != nil {
				return err
			}
		}
		return e.undeliver(ctx, uow, p)

	case PaymentGoodsReceive:
		switch p.ItemKind {
		case ItemGrain:
			if err := e.returnFarmerGrain(ctx, uow, p, ref); err != nil {
				return err
			}
		case ItemCash:
			desc := fmt.Sprintf("Contract #%d: cash receipt cancelled", c.ID)
			if _, err := e.cash.Apply(ctx, uow, UAH, p.QuantityKg.Neg(), desc); err != nil {
				return err
			}
		}
		return e.undeliver(ctx, uow, p)

	case PaymentCash:
		desc := fmt.Sprintf("Contract #%d: cash payment cancelled", c.ID)
		if _, err := e.cash.Apply(ctx, uow, p.Currency, p.Amount.Neg(), desc); err != nil {
			return err
		}
		c.BalanceUAH = c.BalanceUAH.Add(p.AmountUAH)
		return nil

	case PaymentGrain:
		if err := e.returnFarmerGrain(ctx, uow, p, ref); err != nil {
			return err
		}
		c.BalanceUAH = c.BalanceUAH.Add(p.AmountUAH)
		return nil

	case PaymentSettlement:
		return fmt.Errorf("%w: settlement payment %d cannot be cancelled", ErrIrreversible, p.ID)
	}
	return fmt.Errorf("unknown payment type %q", p.Kind)
}

func (e *contractEngine) paymentStock(ctx context.Context, uow *UnitOfWork, p *FarmerContractPayment) (*StockEntry, error) {
	key := GrainKey(p.CultureID)
	if p.ItemKind == ItemPurchase {
		key = GoodsKey(p.GoodsName, p.GoodsCategory)
	}
	return e.stock.Lookup(ctx, uow, key)
}

// returnFarmerGrain moves grain back to the farmer share and drops the
// deductions linked to the payment.
func (e *contractEngine) returnFarmerGrain(ctx context.Context, uow *UnitOfWork, p *FarmerContractPayment, ref StockRef) error {
	entry, err := e.stock.Lookup(ctx, uow, GrainKey(p.CultureID))
	if err != nil {
		return err
	}
	if err := e.stock.TransferToFarmer(ctx, uow, entry, p.QuantityKg, ref); err != nil {
		return err
	}
	if _, err := uow.Tx.DeleteDeductionsByPayment(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to delete deductions of payment %d: %w", p.ID, err)
	}
	return nil
}

func (e *contractEngine) undeliver(ctx context.Context, uow *UnitOfWork, p *FarmerContractPayment) error {
	if p.ItemID == nil {
		return fmt.Errorf("payment %d has no item", p.ID)
	}
	items, err := uow.Tx.ListContractItems(ctx, p.ContractID)
	if err != nil {
		return fmt.Errorf("failed to load contract items: %w", err)
	}
	for i := range items {
		if items[i].ID != *p.ItemID {
			continue
		}
		it := &items[i]
		it.DeliveredKg = nonNegative(it.DeliveredKg.Sub(p.QuantityKg))
		if err := uow.Tx.UpdateContractItem(ctx, it); err != nil {
			return fmt.Errorf("failed to update contract item: %w", err)
		}
		return nil
	}
	return notFound("contract item", *p.ItemID)
}

func closedLabel(c *FarmerContract) string {
	if c.ClosedManually {
		return "closed manually"
	}
	return string(c.Status)
}
