package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockLedger mutates stock entries. Every method works on a handle obtained
// from the same UnitOfWork, validates before it changes anything and appends
// one journal row per counter it moves.
type StockLedger struct {
	log *zap.Logger
}

func NewStockLedger(logger *zap.Logger) *StockLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockLedger{log: logger}
}

// GetOrCreate returns the entry for key, creating a zeroed one on first use.
func (l *StockLedger) GetOrCreate(ctx context.Context, uow *UnitOfWork, key StockKey, displayName string) (*StockEntry, error) {
	e, ok, err := uow.Stock(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return e, nil
	}
	e = &StockEntry{
		Key:         key,
		DisplayName: CleanName(displayName),
		TotalKg:     decimal.Zero,
		OwnKg:       decimal.Zero,
		FarmerKg:    decimal.Zero,
		ReservedKg:  decimal.Zero,
		UpdatedAt:   uow.Now,
	}
	if e.DisplayName == "" {
		e.DisplayName = key.String()
	}
	if err := uow.Tx.InsertStock(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create stock %s: %w", key, err)
	}
	uow.cacheStock(e)
	l.log.Debug("stock entry created", zap.Stringer("key", key))
	return e, nil
}

// Lookup returns the existing entry for key or ErrNotFound.
func (l *StockLedger) Lookup(ctx context.Context, uow *UnitOfWork, key StockKey) (*StockEntry, error) {
	e, ok, err := uow.Stock(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: stock %s", ErrNotFound, key)
	}
	return e, nil
}

// Reserve earmarks qty of the available stock.
func (l *StockLedger) Reserve(ctx context.Context, uow *UnitOfWork, e *StockEntry, qty decimal.Decimal, ref StockRef) error {
	if !qty.IsPositive() {
		return invalidItem("reservation quantity must be positive, got %s", qty)
	}
	if avail := e.Available(); qty.GreaterThan(avail) {
		return amountErr(ErrInsufficientStock, e.DisplayName, qty, avail)
	}
	before := e.ReservedKg
	e.ReservedKg = e.ReservedKg.Add(qty)
	return l.save(ctx, uow, e, ref, change(CounterReserved, before, e.ReservedKg))
}

// ReleaseReservation returns up to qty of the reservation to availability and
// reports the amount actually released. It never drives reserved below zero.
func (l *StockLedger) ReleaseReservation(ctx context.Context, uow *UnitOfWork, e *StockEntry, qty decimal.Decimal, ref StockRef) (decimal.Decimal, error) {
	released := decimal.Min(qty, e.ReservedKg)
	if !released.IsPositive() {
		return decimal.Zero, nil
	}
	before := e.ReservedKg
	e.ReservedKg = e.ReservedKg.Sub(released)
	if err := l.save(ctx, uow, e, ref, change(CounterReserved, before, e.ReservedKg)); err != nil {
		return decimal.Zero, err
	}
	return released, nil
}

// ApplyDelta adds a signed quantity to the total and to the chosen ownership
// share (grain) or to the total only (goods).
func (l *StockLedger) ApplyDelta(ctx context.Context, uow *UnitOfWork, e *StockEntry, delta decimal.Decimal, owner Ownership, ref StockRef) error {
	if delta.IsZero() {
		return nil
	}
	newTotal := e.TotalKg.Add(delta)
	if e.Key.Kind == StockGoods {
		if newTotal.LessThan(e.ReservedKg) {
			return amountErr(ErrInsufficientStock, e.DisplayName, delta.Neg(), e.Available())
		}
		before := e.TotalKg
		e.TotalKg = newTotal
		return l.save(ctx, uow, e, ref, change(CounterTotal, before, newTotal))
	}

	switch owner {
	case OwnGrain:
		newOwn := e.OwnKg.Add(delta)
		if newOwn.LessThan(e.ReservedKg) {
			return amountErr(ErrInsufficientStock, e.DisplayName, delta.Neg(), e.Available())
		}
		totalBefore, ownBefore := e.TotalKg, e.OwnKg
		e.TotalKg, e.OwnKg = newTotal, newOwn
		return l.save(ctx, uow, e, ref,
			change(CounterTotal, totalBefore, newTotal),
			change(CounterOwn, ownBefore, newOwn))
	case FarmerGrain:
		newFarmer := e.FarmerKg.Add(delta)
		if newFarmer.IsNegative() {
			return amountErr(ErrInsufficientStock, "farmer share of "+e.DisplayName, delta.Neg(), e.FarmerKg)
		}
		totalBefore, farmerBefore := e.TotalKg, e.FarmerKg
		e.TotalKg, e.FarmerKg = newTotal, newFarmer
		return l.save(ctx, uow, e, ref,
			change(CounterTotal, totalBefore, newTotal),
			change(CounterFarmer, farmerBefore, newFarmer))
	}
	return fmt.Errorf("unknown ownership %q", owner)
}

// TransferToOwn moves qty of grain from the farmer share to the own share.
// The total does not change.
func (l *StockLedger) TransferToOwn(ctx context.Context, uow *UnitOfWork, e *StockEntry, qty decimal.Decimal, ref StockRef) error {
	if err := requireGrain(e); err != nil {
		return err
	}
	if qty.GreaterThan(e.FarmerKg) {
		return amountErr(ErrInsufficientStock, "farmer share of "+e.DisplayName, qty, e.FarmerKg)
	}
	ownBefore, farmerBefore := e.OwnKg, e.FarmerKg
	e.OwnKg = e.OwnKg.Add(qty)
	e.FarmerKg = e.FarmerKg.Sub(qty)
	return l.save(ctx, uow, e, ref,
		change(CounterFarmer, farmerBefore, e.FarmerKg),
		change(CounterOwn, ownBefore, e.OwnKg))
}

// TransferToFarmer is the inverse of TransferToOwn. It refuses to take own
// grain that is reserved.
func (l *StockLedger) TransferToFarmer(ctx context.Context, uow *UnitOfWork, e *StockEntry, qty decimal.Decimal, ref StockRef) error {
	if err := requireGrain(e); err != nil {
		return err
	}
	if avail := e.Available(); qty.GreaterThan(avail) {
		return amountErr(ErrInsufficientStock, e.DisplayName, qty, avail)
	}
	ownBefore, farmerBefore := e.OwnKg, e.FarmerKg
	e.OwnKg = e.OwnKg.Sub(qty)
	e.FarmerKg = e.FarmerKg.Add(qty)
	return l.save(ctx, uow, e, ref,
		change(CounterOwn, ownBefore, e.OwnKg),
		change(CounterFarmer, farmerBefore, e.FarmerKg))
}

// Issue removes qty from stock, consuming the reservation first. It returns
// the reservation consumed so that Restore can undo the issue exactly.
func (l *StockLedger) Issue(ctx context.Context, uow *UnitOfWork, e *StockEntry, qty decimal.Decimal, ref StockRef) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, invalidItem("issue quantity must be positive, got %s", qty)
	}
	consumed := decimal.Min(qty, e.ReservedKg)
	if avail := e.Available().Add(consumed); qty.GreaterThan(avail) {
		return decimal.Zero, amountErr(ErrInsufficientStock, e.DisplayName, qty, avail)
	}
	changes := []counterChange{change(CounterReserved, e.ReservedKg, e.ReservedKg.Sub(consumed))}
	changes = append(changes, change(CounterTotal, e.TotalKg, e.TotalKg.Sub(qty)))
	e.ReservedKg = e.ReservedKg.Sub(consumed)
	e.TotalKg = e.TotalKg.Sub(qty)
	if e.Key.Kind == StockGrain {
		changes = append(changes, change(CounterOwn, e.OwnKg, e.OwnKg.Sub(qty)))
		e.OwnKg = e.OwnKg.Sub(qty)
	}
	if err := l.save(ctx, uow, e, ref, changes...); err != nil {
		return decimal.Zero, err
	}
	return consumed, nil
}

// Restore puts back qty issued by Issue together with the reservation it consumed.
func (l *StockLedger) Restore(ctx context.Context, uow *UnitOfWork, e *StockEntry, qty, reserved decimal.Decimal, ref StockRef) error {
	if reserved.GreaterThan(qty) {
		return invalidItem("restored reservation %s exceeds quantity %s", reserved, qty)
	}
	changes := []counterChange{change(CounterTotal, e.TotalKg, e.TotalKg.Add(qty))}
	e.TotalKg = e.TotalKg.Add(qty)
	if e.Key.Kind == StockGrain {
		changes = append(changes, change(CounterOwn, e.OwnKg, e.OwnKg.Add(qty)))
		e.OwnKg = e.OwnKg.Add(qty)
	}
	changes = append(changes, change(CounterReserved, e.ReservedKg, e.ReservedKg.Add(reserved)))
	e.ReservedKg = e.ReservedKg.Add(reserved)
	return l.save(ctx, uow, e, ref, changes...)
}

// Adjust applies a manual signed correction to the total. For grain the new
// total is split between own and farmer in the current ratio; when the total
// was zero everything goes to own. The ratio is an approximation: it can move
// farmer-owed grain on what was meant as an own-stock correction. The own
// share never drops below the reservation; the difference comes out of the
// farmer share.
func (l *StockLedger) Adjust(ctx context.Context, uow *UnitOfWork, e *StockEntry, delta decimal.Decimal, ref StockRef) error {
	if delta.IsZero() {
		return invalidItem("adjustment must be non-zero")
	}
	newTotal := e.TotalKg.Add(delta)
	if newTotal.IsNegative() {
		return amountErr(ErrInsufficientStock, e.DisplayName, delta.Neg(), e.TotalKg)
	}
	if newTotal.LessThan(e.ReservedKg) {
		return amountErr(ErrInsufficientStock, e.DisplayName, delta.Neg(), e.TotalKg.Sub(e.ReservedKg))
	}
	if e.Key.Kind == StockGoods {
		before := e.TotalKg
		e.TotalKg = newTotal
		return l.save(ctx, uow, e, ref, change(CounterTotal, before, newTotal))
	}

	newOwn := newTotal
	if e.TotalKg.IsPositive() {
		newOwn = e.OwnKg.Mul(newTotal).Div(e.TotalKg).Round(3)
	}
	newOwn = decimal.Min(decimal.Max(newOwn, e.ReservedKg), newTotal)
	newFarmer := newTotal.Sub(newOwn)

	changes := []counterChange{
		change(CounterTotal, e.TotalKg, newTotal),
		change(CounterOwn, e.OwnKg, newOwn),
		change(CounterFarmer, e.FarmerKg, newFarmer),
	}
	e.TotalKg, e.OwnKg, e.FarmerKg = newTotal, newOwn, newFarmer
	return l.save(ctx, uow, e, ref, changes...)
}

type counterChange struct {
	counter       StockCounter
	before, after decimal.Decimal
}

func change(c StockCounter, before, after decimal.Decimal) counterChange {
	return counterChange{counter: c, before: before, after: after}
}

// save writes the entry and journals every counter that moved.
func (l *StockLedger) save(ctx context.Context, uow *UnitOfWork, e *StockEntry, ref StockRef, changes ...counterChange) error {
	e.UpdatedAt = uow.Now
	if err := uow.Tx.UpdateStock(ctx, e); err != nil {
		return fmt.Errorf("failed to update stock %s: %w", e.Key, err)
	}
	for _, c := range changes {
		if c.before.Equal(c.after) {
			continue
		}
		typ, amount := TxAdd, c.after.Sub(c.before)
		if amount.IsNegative() {
			typ, amount = TxSubtract, amount.Neg()
		}
		row := &StockAdjustment{
			StockKey:    e.Key,
			ItemName:    e.DisplayName,
			Counter:     c.counter,
			Type:        typ,
			Amount:      amount,
			Before:      c.before,
			After:       c.after,
			Source:      ref.Source,
			Destination: ref.Destination,
			ContractID:  ref.ContractID,
			PaymentID:   ref.PaymentID,
			ActorID:     uow.Actor.ID,
			ActorName:   uow.Actor.FullName,
			CreatedAt:   uow.Now,
		}
		if err := uow.Tx.AppendStockAdjustment(ctx, row); err != nil {
			return fmt.Errorf("failed to journal stock %s: %w", e.Key, err)
		}
	}
	l.log.Debug("stock updated",
		zap.Stringer("key", e.Key),
		zap.String("source", ref.Source),
		zap.String("total_kg", e.TotalKg.String()),
		zap.String("reserved_kg", e.ReservedKg.String()))
	return nil
}

func requireGrain(e *StockEntry) error {
	if e.Key.Kind != StockGrain {
		return invalidItem("%s is not grain stock", e.DisplayName)
	}
	return nil
}
