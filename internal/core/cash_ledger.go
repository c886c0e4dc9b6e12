package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CashLedger applies signed amounts to the named cash register and logs every
// change as an immutable CashTransaction.
type CashLedger struct {
	log *zap.Logger
}

func NewCashLedger(logger *zap.Logger) *CashLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CashLedger{log: logger}
}

// EnsureRegister creates the configured register with zero balances if it
// does not exist yet. It is called once at startup.
func EnsureRegister(ctx context.Context, rt *Runtime) (*CashRegister, error) {
	var reg *CashRegister
	err := rt.Store.RunInTx(ctx, func(tx Tx) error {
		r, err := tx.GetCashRegister(ctx, rt.Register)
		if err == nil {
			reg = r
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		reg = &CashRegister{
			Name:      rt.Register,
			UAH:       decimal.Zero,
			USD:       decimal.Zero,
			EUR:       decimal.Zero,
			UpdatedAt: rt.Clock(),
		}
		return tx.SaveCashRegister(ctx, reg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure cash register %q: %w", rt.Register, err)
	}
	return reg, nil
}

// Balance returns the register balance in currency c.
func (l *CashLedger) Balance(ctx context.Context, uow *UnitOfWork, c Currency) (decimal.Decimal, error) {
	r, err := uow.Register(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return r.Balance(c), nil
}

// Apply adds a signed amount to the register. A result below zero fails with
// ErrInsufficientFunds and changes nothing.
func (l *CashLedger) Apply(ctx context.Context, uow *UnitOfWork, c Currency, amount decimal.Decimal, description string) (*CashTransaction, error) {
	if amount.IsZero() {
		return nil, invalidItem("cash amount must be non-zero")
	}
	r, err := uow.Register(ctx)
	if err != nil {
		return nil, err
	}
	current := r.Balance(c)
	next := current.Add(amount)
	if next.IsNegative() {
		return nil, amountErr(ErrInsufficientFunds, "cash "+string(c), amount.Neg(), current)
	}
	r.set(c, next)
	r.UpdatedAt = uow.Now
	if err := uow.Tx.SaveCashRegister(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to update cash register: %w", err)
	}

	typ, abs := TxAdd, amount
	if amount.IsNegative() {
		typ, abs = TxSubtract, amount.Neg()
	}
	t := &CashTransaction{
		Register:    r.Name,
		Currency:    c,
		Amount:      abs,
		Type:        typ,
		Description: description,
		UAHAfter:    r.UAH,
		USDAfter:    r.USD,
		EURAfter:    r.EUR,
		ActorID:     uow.Actor.ID,
		ActorName:   uow.Actor.FullName,
		CreatedAt:   uow.Now,
	}
	if err := uow.Tx.AppendCashTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to record cash transaction: %w", err)
	}
	l.log.Debug("cash applied",
		zap.String("currency", string(c)),
		zap.String("amount", amount.String()),
		zap.String("balance", next.String()))
	return t, nil
}
