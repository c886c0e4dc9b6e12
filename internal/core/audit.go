package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AuditReport lists every broken ledger invariant found by Auditor.Run.
type AuditReport struct {
	CheckedAt    time.Time `json:"checked_at"`
	StockEntries int       `json:"stock_entries"`
	Contracts    int       `json:"contracts"`
	Vouchers     int       `json:"vouchers"`
	Violations   []string  `json:"violations"`
}

// OK reports whether the audit found nothing.
func (r *AuditReport) OK() bool { return len(r.Violations) == 0 }

func (r *AuditReport) add(format string, args ...any) {
	r.Violations = append(r.Violations, fmt.Sprintf(format, args...))
}

// Auditor re-checks the ledger invariants over the whole store.
type Auditor struct {
	rt  *Runtime
	log *zap.Logger
}

func NewAuditor(rt *Runtime) *Auditor {
	return &Auditor{rt: rt, log: rt.named("core.audit")}
}

// Run checks, in one snapshot:
//   - stock: total = own + farmer, reserved within own (grain) or total (goods), nothing negative
//   - cash: no negative balance
//   - contracts: balance >= 0; auto-closed contracts settled and delivered
//   - contract reservations covered by the reserved counters
//   - vouchers: stored allocation equals a fresh replay
//   - farmer balances: not negative
func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{CheckedAt: a.rt.Clock(), Violations: []string{}}
	err := a.rt.view(ctx, func(uow *UnitOfWork) error {
		if err := a.checkStock(ctx, uow, report); err != nil {
			return err
		}
		if err := a.checkCash(ctx, uow, report); err != nil {
			return err
		}
		if err := a.checkContracts(ctx, uow, report); err != nil {
			return err
		}
		if err := a.checkVouchers(ctx, uow, report); err != nil {
			return err
		}
		return a.checkFarmers(ctx, uow, report)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to audit ledger: %w", err)
	}
	if report.OK() {
		a.log.Info("ledger audit passed",
			zap.Int("stock_entries", report.StockEntries), zap.Int("contracts", report.Contracts))
	} else {
		a.log.Warn("ledger audit found violations",
			zap.Int("count", len(report.Violations)), zap.Strings("violations", report.Violations))
	}
	return report, nil
}

func (a *Auditor) checkStock(ctx context.Context, uow *UnitOfWork, r *AuditReport) error {
	entries, err := uow.Tx.ListStock(ctx, "")
	if err != nil {
		return err
	}
	r.StockEntries = len(entries)
	for i := range entries {
		for _, v := range entries[i].CheckInvariants() {
			r.add("stock %s", v)
		}
	}
	return nil
}

func (a *Auditor) checkCash(ctx context.Context, uow *UnitOfWork, r *AuditReport) error {
	reg, err := uow.Register(ctx)
	if err != nil {
		return err
	}
	for _, c := range Currencies {
		if reg.Balance(c).IsNegative() {
			r.add("cash %s balance is negative (%s)", c, reg.Balance(c))
		}
	}
	return nil
}

func (a *Auditor) checkContracts(ctx context.Context, uow *UnitOfWork, r *AuditReport) error {
	contracts, err := uow.Tx.ListContracts(ctx, ContractFilter{})
	if err != nil {
		return err
	}
	r.Contracts = len(contracts)
	held := make(map[StockKey]decimal.Decimal)
	for _, c := range contracts {
		if c.BalanceUAH.IsNegative() {
			r.add("contract %d balance is negative (%s)", c.ID, c.BalanceUAH)
		}
		items, err := uow.Tx.ListContractItems(ctx, c.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.DeliveredKg.GreaterThan(it.QuantityKg.Add(Epsilon)) {
				r.add("contract %d item %d delivered %s of %s", c.ID, it.ID, it.DeliveredKg, it.QuantityKg)
			}
			if (c.Status == StatusOpen || c.Status == StatusPending) && it.holdsReservation() {
				key, _ := it.StockKey()
				held[key] = held[key].Add(it.Remaining())
			}
		}
		if c.Status != StatusClosed || c.ClosedManually {
			continue
		}
		if !ApproxZero(c.BalanceUAH) {
			r.add("contract %d is closed with balance %s", c.ID, c.BalanceUAH.StringFixed(2))
		}
		for _, it := range items {
			if !it.Delivered() {
				r.add("contract %d is closed but item %d is delivered %s of %s", c.ID, it.ID, it.DeliveredKg, it.QuantityKg)
			}
		}
	}
	for key, qty := range held {
		e, ok, err := uow.Stock(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			r.add("stock %s is missing but contracts reserve %s", key, qty)
			continue
		}
		if qty.GreaterThan(e.ReservedKg.Add(Epsilon)) {
			r.add("stock %s: contracts reserve %s but only %s is reserved", key, qty, e.ReservedKg)
		}
	}
	return nil
}

func (a *Auditor) checkVouchers(ctx context.Context, uow *UnitOfWork, r *AuditReport) error {
	vouchers, err := uow.Tx.ListVouchers(ctx)
	if err != nil {
		return err
	}
	payments, err := uow.Tx.ListVoucherPayments(ctx)
	if err != nil {
		return err
	}
	r.Vouchers = len(vouchers)
	byID := make(map[int]GrainVoucher, len(vouchers))
	for _, v := range vouchers {
		byID[v.ID] = v
	}
	for _, alloc := range Distribute(vouchers, payments) {
		v := byID[alloc.VoucherID]
		if alloc.RemainingValueUAH.IsNegative() {
			r.add("voucher %d remaining is negative (%s)", v.ID, alloc.RemainingValueUAH)
		}
		if !v.PaidValueUAH.Equal(alloc.PaidValueUAH) || v.IsClosed != alloc.IsClosed {
			r.add("voucher %d stores paid %s, replay gives %s", v.ID, v.PaidValueUAH, alloc.PaidValueUAH)
		}
	}
	return nil
}

func (a *Auditor) checkFarmers(ctx context.Context, uow *UnitOfWork, r *AuditReport) error {
	owners, err := uow.Tx.ListOwners(ctx)
	if err != nil {
		return err
	}
	for _, o := range owners {
		raw, err := rawFarmerBalance(ctx, uow.Tx, o.ID, nil)
		if err != nil {
			return err
		}
		for cultureID, kg := range raw {
			if kg.LessThan(Epsilon.Neg()) {
				r.add("owner %d culture %d balance is negative (%s)", o.ID, cultureID, kg)
			}
		}
	}
	return nil
}
