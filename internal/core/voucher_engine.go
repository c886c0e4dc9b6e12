package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// VoucherEngine settles the pooled voucher debt. Payments are not tied to a
// voucher; after every change the whole pool is redistributed FIFO.
type VoucherEngine interface {
	CreatePayment(ctx context.Context, actor Actor, amount decimal.Decimal, currency Currency, rate decimal.Decimal, description string) (*VoucherPayment, error)
	CancelPayment(ctx context.Context, actor Actor, paymentID int) (*VoucherPayment, error)
	ListVouchers(ctx context.Context, ownerID *int) ([]GrainVoucher, error)
	ListPayments(ctx context.Context) ([]VoucherPayment, error)
	Summary(ctx context.Context) (*VoucherSummary, error)
}

type voucherEngine struct {
	rt   *Runtime
	cash *CashLedger
	log  *zap.Logger
}

func NewVoucherEngine(rt *Runtime) VoucherEngine {
	return &voucherEngine{
		rt:   rt,
		cash: NewCashLedger(rt.named("core.cash")),
		log:  rt.named("core.vouchers"),
	}
}

func (e *voucherEngine) CreatePayment(ctx context.Context, actor Actor, amount decimal.Decimal, currency Currency, rate decimal.Decimal, description string) (*VoucherPayment, error) {
	var out *VoucherPayment
	err := e.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		cur, err := ParseCurrency(string(currency))
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			return invalidItem("voucher payment must be positive, got %s", amount)
		}
		if cur == UAH {
			rate = decimal.NewFromInt(1)
		} else if !rate.IsPositive() {
			return invalidItem("exchange rate is required for %s", cur)
		}
		amountUAH := amount.Mul(rate).Round(2)
		if !amountUAH.IsPositive() {
			return invalidItem("voucher payment rounds to zero UAH")
		}

		vouchers, err := uow.Tx.ListVouchers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list vouchers: %w", err)
		}
		payments, err := uow.Tx.ListVoucherPayments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list voucher payments: %w", err)
		}
		if debt := remainingDebt(vouchers, payments); !ApproxLEQ(amountUAH, debt) {
			return amountErr(ErrExceedsDebt, "voucher debt", amountUAH, debt)
		}

		desc := "Voucher payment"
		if description != "" {
			desc += ": " + description
		}
		if _, err := e.cash.Apply(ctx, uow, cur, amount.Neg(), desc); err != nil {
			return err
		}
		p := &VoucherPayment{
			Currency:     cur,
			Amount:       amount,
			ExchangeRate: rate,
			AmountUAH:    amountUAH,
			Description:  description,
			ActorID:      uow.Actor.ID,
			ActorName:    uow.Actor.FullName,
			CreatedAt:    uow.Now,
		}
		if err := uow.Tx.InsertVoucherPayment(ctx, p); err != nil {
			return fmt.Errorf("failed to insert voucher payment: %w", err)
		}
		out = p
		return redistributeVouchers(ctx, uow)
	})
	if err != nil {
		e.log.Debug("voucher payment rejected", zap.String("amount", amount.String()), zap.Error(err))
		return nil, err
	}
	e.log.Info("voucher payment recorded",
		zap.Int("payment_id", out.ID), zap.String("amount_uah", out.AmountUAH.StringFixed(2)))
	return out, nil
}

func (e *voucherEngine) CancelPayment(ctx context.Context, actor Actor, paymentID int) (*VoucherPayment, error) {
	var out *VoucherPayment
	err := e.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		p, err := uow.Tx.GetVoucherPayment(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("voucher payment %d: %w", paymentID, err)
		}
		if p.IsCancelled {
			return invalidState("voucher payment %d is already cancelled", p.ID)
		}
		desc := fmt.Sprintf("Voucher payment #%d cancelled", p.ID)
		if _, err := e.cash.Apply(ctx, uow, p.Currency, p.Amount, desc); err != nil {
			return err
		}
		p.IsCancelled = true
		p.CancelledAt = uow.nowPtr()
		if err := uow.Tx.UpdateVoucherPayment(ctx, p); err != nil {
			return fmt.Errorf("failed to update voucher payment: %w", err)
		}
		out = p
		return redistributeVouchers(ctx, uow)
	})
	if err != nil {
		e.log.Debug("voucher payment cancellation rejected", zap.Int("payment_id", paymentID), zap.Error(err))
		return nil, err
	}
	e.log.Info("voucher payment cancelled", zap.Int("payment_id", paymentID))
	return out, nil
}

func (e *voucherEngine) ListVouchers(ctx context.Context, ownerID *int) ([]GrainVoucher, error) {
	var out []GrainVoucher
	err := e.rt.view(ctx, func(uow *UnitOfWork) error {
		all, err := uow.Tx.ListVouchers(ctx)
		if err != nil {
			return err
		}
		for _, v := range all {
			if ownerID == nil || v.OwnerID == *ownerID {
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	return out, nil
}

func (e *voucherEngine) ListPayments(ctx context.Context) ([]VoucherPayment, error) {
	var out []VoucherPayment
	err := e.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Tx.ListVoucherPayments(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list voucher payments: %w", err)
	}
	return out, nil
}

func (e *voucherEngine) Summary(ctx context.Context) (*VoucherSummary, error) {
	s := &VoucherSummary{
		QuantityKg:   decimal.Zero,
		TotalUAH:     decimal.Zero,
		PaidUAH:      decimal.Zero,
		RemainingUAH: decimal.Zero,
	}
	vouchers, err := e.ListVouchers(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, v := range vouchers {
		s.Count++
		if !v.IsClosed {
			s.OpenCount++
		}
		s.QuantityKg = s.QuantityKg.Add(v.QuantityKg)
		s.TotalUAH = s.TotalUAH.Add(v.TotalValueUAH)
		s.PaidUAH = s.PaidUAH.Add(v.PaidValueUAH)
		s.RemainingUAH = s.RemainingUAH.Add(v.RemainingValueUAH)
	}
	return s, nil
}
