package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Distribute replays every non-cancelled voucher payment, oldest first, over
// the vouchers in creation order. Each voucher absorbs payment up to its total
// before the rest flows to the next one. The result has one allocation per
// voucher, in creation order. Inputs are not modified.
//
// The allocation is always rebuilt from the full history so that cancelling
// an old payment shifts every later allocation correctly.
func Distribute(vouchers []GrainVoucher, payments []VoucherPayment) []VoucherAllocation {
	vs := append([]GrainVoucher(nil), vouchers...)
	sort.SliceStable(vs, func(i, j int) bool {
		if !vs[i].CreatedAt.Equal(vs[j].CreatedAt) {
			return vs[i].CreatedAt.Before(vs[j].CreatedAt)
		}
		return vs[i].ID < vs[j].ID
	})
	ps := append([]VoucherPayment(nil), payments...)
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})

	paid := make([]decimal.Decimal, len(vs))
	for i := range paid {
		paid[i] = decimal.Zero
	}
	cursor := 0
	for _, p := range ps {
		if p.IsCancelled {
			continue
		}
		left := p.AmountUAH
		for left.IsPositive() && cursor < len(vs) {
			room := vs[cursor].TotalValueUAH.Sub(paid[cursor])
			if !room.IsPositive() {
				cursor++
				continue
			}
			take := decimal.Min(left, room)
			paid[cursor] = paid[cursor].Add(take)
			left = left.Sub(take)
		}
	}

	out := make([]VoucherAllocation, len(vs))
	for i, v := range vs {
		out[i] = VoucherAllocation{
			VoucherID:         v.ID,
			PaidValueUAH:      paid[i],
			RemainingValueUAH: v.TotalValueUAH.Sub(paid[i]),
			IsClosed:          ApproxGEQ(paid[i], v.TotalValueUAH),
		}
	}
	return out
}

// redistributeVouchers recomputes and stores the derived state of every voucher.
func redistributeVouchers(ctx context.Context, uow *UnitOfWork) error {
	vouchers, err := uow.Tx.ListVouchers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list vouchers: %w", err)
	}
	payments, err := uow.Tx.ListVoucherPayments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list voucher payments: %w", err)
	}
	byID := make(map[int]*GrainVoucher, len(vouchers))
	for i := range vouchers {
		byID[vouchers[i].ID] = &vouchers[i]
	}
	for _, a := range Distribute(vouchers, payments) {
		v := byID[a.VoucherID]
		if v.PaidValueUAH.Equal(a.PaidValueUAH) && v.RemainingValueUAH.Equal(a.RemainingValueUAH) && v.IsClosed == a.IsClosed {
			continue
		}
		v.PaidValueUAH = a.PaidValueUAH
		v.RemainingValueUAH = a.RemainingValueUAH
		v.IsClosed = a.IsClosed
		if err := uow.Tx.UpdateVoucher(ctx, v); err != nil {
			return fmt.Errorf("failed to update voucher %d: %w", v.ID, err)
		}
	}
	return nil
}

// remainingDebt is the sum of what the vouchers still owe after a full replay.
func remainingDebt(vouchers []GrainVoucher, payments []VoucherPayment) decimal.Decimal {
	total := decimal.Zero
	for _, a := range Distribute(vouchers, payments) {
		total = total.Add(a.RemainingValueUAH)
	}
	return total
}
