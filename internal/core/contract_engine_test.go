package core_test

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/core"
)

func TestReserveContractNeedsAvailableStock(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 500)

	_, err := f.contracts.CreateContract(f.ctx, operator, core.CreateContractInput{
		OwnerID: f.farmer.ID,
		Type:    core.ContractReserve,
		Items:   []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 1000, "10")},
	})
	requireErr(t, err, core.ErrInsufficientStock)
	amt, ok := core.AsAmountError(err)
	if !ok {
		t.Fatalf("Expected an AmountError, got %T", err)
	}
	requireDec(t, "requested", amt.Requested, "1000")
	requireDec(t, "available", amt.Available, "500")

	contracts, err := f.contracts.ListContracts(f.ctx, core.ContractFilter{})
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}
	if len(contracts) != 0 {
		t.Fatalf("Expected no stored contract, got %d", len(contracts))
	}
	requireDec(t, "reserved", f.stock(t, core.GrainKey(f.wheat.ID)).ReservedKg, "0")

	_, err = f.contracts.CreateContract(f.ctx, operator, core.CreateContractInput{
		OwnerID: f.farmer.ID,
		Type:    core.ContractReserve,
		Items:   []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 100, "")},
	})
	requireErr(t, err, core.ErrInvalidItem)
}

func TestActivateReserve(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 1000)

	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractReserve,
		Items: []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 600, "10")},
		Note:  "spring sowing",
	})
	if d.Status != core.StatusPending {
		t.Fatalf("Expected pending, got %s", d.Status)
	}
	requireDec(t, "balance", d.BalanceUAH, "6000")
	requireDec(t, "reserved", f.stock(t, core.GrainKey(f.wheat.ID)).ReservedKg, "600")

	_, err := f.contracts.CreatePayment(f.ctx, operator, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(10)})
	requireErr(t, err, core.ErrInvalidState)

	c, err := f.contracts.ActivateReserve(f.ctx, operator, d.ID)
	if err != nil {
		t.Fatalf("ActivateReserve failed: %v", err)
	}
	if c.Type != core.ContractDebt || c.Status != core.StatusOpen || !c.WasReserve {
		t.Errorf("Expected open debt contract from reserve, got %s/%s was_reserve=%v", c.Type, c.Status, c.WasReserve)
	}
	if !strings.HasPrefix(c.Note, "spring sowing") || !strings.HasSuffix(c.Note, "[activated from reserve]") {
		t.Errorf("Unexpected note %q", c.Note)
	}
	requireDec(t, "reserved after activation", f.stock(t, core.GrainKey(f.wheat.ID)).ReservedKg, "600")

	_, err = f.contracts.ActivateReserve(f.ctx, operator, d.ID)
	requireErr(t, err, core.ErrInvalidState)

	f.pay(t, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(600)})
	wheat := f.stock(t, core.GrainKey(f.wheat.ID))
	requireDec(t, "own", wheat.OwnKg, "400")
	requireDec(t, "reserved", wheat.ReservedKg, "0")
	f.requireClean(t)
}

func TestDebtContractClosesWhenEverythingIsDelivered(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, core.UAH, "10000")
	_, err := f.purchases.RecordPurchase(f.ctx, operator, core.PurchaseInput{
		Name: "Fertilizer", QuantityKg: kg(200), PricePerKg: dec("30"), Currency: core.UAH, SalePricePerKg: dec("40"),
	})
	if err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}
	f.farmerIntake(t, f.wheat, 500)
	fertilizer := core.GoodsKey("Fertilizer", "")

	d := f.createContract(t, core.CreateContractInput{
		Type: core.ContractDebt,
		Items: []core.ContractItemInput{
			debtItem(core.FromCompany, core.GoodsItem{Name: "fertilizer"}, 200, ""),
			debtItem(core.FromFarmer, core.GrainItem{CultureID: f.wheat.ID}, 500, "20"),
		},
	})
	if d.Status != core.StatusOpen {
		t.Fatalf("Expected open, got %s", d.Status)
	}
	requireDec(t, "total", d.TotalValueUAH, "8000")
	requireDec(t, "balance", d.BalanceUAH, "0")
	requireDec(t, "goods price", d.Items[0].PricePerKg, "40")
	if d.Items[0].Name != "Fertilizer" {
		t.Errorf("Expected display name Fertilizer, got %q", d.Items[0].Name)
	}
	requireDec(t, "fertilizer reserved", f.stock(t, fertilizer).ReservedKg, "200")

	f.pay(t, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(200)})
	if got := f.contract(t, d.ID); got.Status != core.StatusOpen {
		t.Fatalf("Expected contract to stay open, got %s", got.Status)
	}

	p := f.pay(t, d.ID, core.GoodsReceive{ItemID: d.Items[1].ID, QuantityKg: kg(500)})
	requireDec(t, "receive amount", p.AmountUAH, "10000")

	got := f.contract(t, d.ID)
	if got.Status != core.StatusClosed || got.ClosedAt == nil || got.ClosedManually {
		t.Fatalf("Expected auto-closed contract, got %s manual=%v", got.Status, got.ClosedManually)
	}
	goods := f.stock(t, fertilizer)
	requireDec(t, "fertilizer total", goods.TotalKg, "0")
	requireDec(t, "fertilizer reserved", goods.ReservedKg, "0")
	wheat := f.stock(t, core.GrainKey(f.wheat.ID))
	requireDec(t, "wheat own", wheat.OwnKg, "500")
	requireDec(t, "wheat farmer", wheat.FarmerKg, "0")
	requireDec(t, "farmer balance", f.farmerBalance(t, f.wheat), "0")
	requireDec(t, "cash", f.register(t).UAH, "4000")
	f.requireClean(t)
}

func TestPaymentContractSettlesAtOnce(t *testing.T) {
	f := newFixture(t)
	f.farmerIntake(t, f.barley, 1000)
	f.deposit(t, core.USD, "500")

	d := f.createContract(t, core.CreateContractInput{
		Type:         core.ContractPayment,
		Items:        []core.ContractItemInput{debtItem(core.FromFarmer, core.GrainItem{CultureID: f.barley.ID}, 1000, "")},
		Currency:     core.USD,
		ExchangeRate: dec("40"),
	})
	if d.Status != core.StatusClosed || d.ClosedAt == nil {
		t.Fatalf("Expected closed payment contract, got %s", d.Status)
	}
	requireDec(t, "total", d.TotalValueUAH, "5000")
	requireDec(t, "payout", d.PayoutAmount, "125")
	if d.PayoutMethod != core.PayoutCash {
		t.Errorf("Expected cash payout, got %s", d.PayoutMethod)
	}
	requireDec(t, "usd", f.register(t).USD, "375")
	barley := f.stock(t, core.GrainKey(f.barley.ID))
	requireDec(t, "own", barley.OwnKg, "1000")
	requireDec(t, "farmer", barley.FarmerKg, "0")
	requireDec(t, "farmer balance", f.farmerBalance(t, f.barley), "0")

	if len(d.Payments) != 1 || d.Payments[0].Kind != core.PaymentSettlement {
		t.Fatalf("Expected one settlement payment, got %+v", d.Payments)
	}
	_, err := f.contracts.CancelPayment(f.ctx, operator, d.Payments[0].ID)
	requireErr(t, err, core.ErrIrreversible)
	f.requireClean(t)
}

func TestPaymentContractWithoutCash(t *testing.T) {
	f := newFixture(t)
	f.farmerIntake(t, f.barley, 1000)

	_, err := f.contracts.CreateContract(f.ctx, operator, core.CreateContractInput{
		OwnerID: f.farmer.ID,
		Type:    core.ContractPayment,
		Items:   []core.ContractItemInput{debtItem(core.FromFarmer, core.GrainItem{CultureID: f.barley.ID}, 1000, "")},
	})
	requireErr(t, err, core.ErrInsufficientFunds)
	requireDec(t, "farmer share", f.stock(t, core.GrainKey(f.barley.ID)).FarmerKg, "1000")
	requireDec(t, "farmer balance", f.farmerBalance(t, f.barley), "1000")
}

func TestCashPaymentCannotExceedBalance(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 300)
	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractDebt,
		Items: []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 300, "10")},
	})
	requireDec(t, "balance", d.BalanceUAH, "3000")

	_, err := f.contracts.CreatePayment(f.ctx, operator, d.ID, core.CashPayment{Amount: dec("5000"), Currency: core.UAH})
	requireErr(t, err, core.ErrExceedsBalance)

	got := f.contract(t, d.ID)
	requireDec(t, "balance", got.BalanceUAH, "3000")
	if len(got.Payments) != 0 {
		t.Errorf("Expected no payments, got %d", len(got.Payments))
	}
	requireDec(t, "cash", f.register(t).UAH, "0")

	p := f.pay(t, d.ID, core.CashPayment{Amount: dec("1000"), Currency: core.UAH})
	requireDec(t, "amount uah", p.AmountUAH, "1000")
	requireDec(t, "balance", f.contract(t, d.ID).BalanceUAH, "2000")
	requireDec(t, "cash", f.register(t).UAH, "1000")
}

// ledgerState captures every counter a contract payment can move.
func (f *fixture) ledgerState(t *testing.T, contractID int) map[string]string {
	t.Helper()
	state := make(map[string]string)
	for _, c := range []core.Culture{f.wheat, f.corn} {
		e := f.stock(t, core.GrainKey(c.ID))
		state[c.Name+".total"] = e.TotalKg.StringFixed(3)
		state[c.Name+".own"] = e.OwnKg.StringFixed(3)
		state[c.Name+".farmer"] = e.FarmerKg.StringFixed(3)
		state[c.Name+".reserved"] = e.ReservedKg.StringFixed(3)
		state[c.Name+".farmer_balance"] = f.farmerBalance(t, c).StringFixed(3)
	}
	reg := f.register(t)
	for _, c := range core.Currencies {
		state["cash."+string(c)] = reg.Balance(c).StringFixed(2)
	}
	d := f.contract(t, contractID)
	state["contract.balance"] = d.BalanceUAH.StringFixed(2)
	state["contract.status"] = string(d.Status)
	for _, it := range d.Items {
		state[fmt.Sprintf("item.%d.delivered", it.ID)] = it.DeliveredKg.StringFixed(3)
	}
	state["deductions"] = fmt.Sprint(len(f.store.ExportState().Deductions))
	return state
}

func TestCancelPaymentIsExactInverse(t *testing.T) {
	tests := []struct {
		name string
		req  func(f *fixture, d *core.ContractDetail) core.PaymentRequest
	}{
		{
			name: "goods issue",
			req: func(f *fixture, d *core.ContractDetail) core.PaymentRequest {
				return core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(150)}
			},
		},
		{
			name: "goods receive",
			req: func(f *fixture, d *core.ContractDetail) core.PaymentRequest {
				return core.GoodsReceive{ItemID: d.Items[1].ID, QuantityKg: kg(50)}
			},
		},
		{
			name: "cash payment in USD",
			req: func(f *fixture, d *core.ContractDetail) core.PaymentRequest {
				return core.CashPayment{Amount: dec("10"), Currency: core.USD, ExchangeRate: dec("40")}
			},
		},
		{
			name: "grain payment",
			req: func(f *fixture, d *core.ContractDetail) core.PaymentRequest {
				return core.GrainPayment{CultureID: f.corn.ID, QuantityKg: kg(100)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ownIntake(t, f.wheat, 1000)
			f.farmerIntake(t, f.wheat, 500)
			f.farmerIntake(t, f.corn, 300)
			d := f.createContract(t, core.CreateContractInput{
				Type: core.ContractDebt,
				Items: []core.ContractItemInput{
					debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 400, "20"),
					debtItem(core.FromFarmer, core.GrainItem{CultureID: f.wheat.ID}, 100, "20"),
				},
			})
			requireDec(t, "balance", d.BalanceUAH, "6000")

			before := f.ledgerState(t, d.ID)
			p := f.pay(t, d.ID, tt.req(f, d))
			if reflect.DeepEqual(before, f.ledgerState(t, d.ID)) {
				t.Fatalf("Expected %s to change the ledger", tt.name)
			}
			cancelled, err := f.contracts.CancelPayment(f.ctx, operator, p.ID)
			if err != nil {
				t.Fatalf("CancelPayment failed: %v", err)
			}
			if !cancelled.IsCancelled || cancelled.CancelledAt == nil || cancelled.CancelledByID == nil {
				t.Errorf("Expected cancellation to be recorded, got %+v", cancelled)
			}
			after := f.ledgerState(t, d.ID)
			if !reflect.DeepEqual(before, after) {
				t.Errorf("Ledger not restored\nbefore: %v\nafter:  %v", before, after)
			}

			payments, err := f.contracts.ListPayments(f.ctx, d.ID)
			if err != nil {
				t.Fatalf("ListPayments failed: %v", err)
			}
			if len(payments) != 1 || !payments[0].IsCancelled {
				t.Errorf("Expected the cancelled payment to stay on record, got %+v", payments)
			}
			f.requireClean(t)
		})
	}
}

func TestCancelPaymentReopensAutoClosedContract(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 300)
	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractDebt,
		Items: []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 100, "10")},
	})
	f.pay(t, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(100)})
	cash := f.pay(t, d.ID, core.CashPayment{Amount: dec("1000"), Currency: core.UAH})
	if got := f.contract(t, d.ID); got.Status != core.StatusClosed {
		t.Fatalf("Expected closed, got %s", got.Status)
	}

	if _, err := f.contracts.CancelPayment(f.ctx, operator, cash.ID); err != nil {
		t.Fatalf("CancelPayment failed: %v", err)
	}
	got := f.contract(t, d.ID)
	if got.Status != core.StatusOpen || got.ClosedAt != nil {
		t.Errorf("Expected reopened contract, got %s closed_at=%v", got.Status, got.ClosedAt)
	}
	requireDec(t, "balance", got.BalanceUAH, "1000")
	requireDec(t, "cash", f.register(t).UAH, "0")

	_, err := f.contracts.CancelPayment(f.ctx, operator, cash.ID)
	requireErr(t, err, core.ErrInvalidState)
	_, err = f.contracts.CancelPayment(f.ctx, operator, 9999)
	requireErr(t, err, core.ErrNotFound)
	f.requireClean(t)
}

func TestCloseContractReleasesReservations(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 500)
	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractDebt,
		Items: []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 300, "10")},
	})
	issue := f.pay(t, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(100)})
	requireDec(t, "reserved", f.stock(t, core.GrainKey(f.wheat.ID)).ReservedKg, "200")

	c, err := f.contracts.CloseContract(f.ctx, operator, d.ID)
	if err != nil {
		t.Fatalf("CloseContract failed: %v", err)
	}
	if c.Status != core.StatusClosed || !c.ClosedManually {
		t.Errorf("Expected manually closed contract, got %s manual=%v", c.Status, c.ClosedManually)
	}
	requireDec(t, "balance kept", c.BalanceUAH, "3000")
	wheat := f.stock(t, core.GrainKey(f.wheat.ID))
	requireDec(t, "reserved", wheat.ReservedKg, "0")
	requireDec(t, "own", wheat.OwnKg, "400")

	_, err = f.contracts.CancelPayment(f.ctx, operator, issue.ID)
	requireErr(t, err, core.ErrInvalidState)
	_, err = f.contracts.CreatePayment(f.ctx, operator, d.ID, core.CashPayment{Amount: dec("100")})
	requireErr(t, err, core.ErrInvalidState)
	_, err = f.contracts.CloseContract(f.ctx, operator, d.ID)
	requireErr(t, err, core.ErrInvalidState)
	f.requireClean(t)
}

func TestCancelContractNeedsNoActivePayments(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 500)
	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractDebt,
		Items: []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 300, "10")},
	})
	issue := f.pay(t, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(100)})

	_, err := f.contracts.CancelContract(f.ctx, operator, d.ID)
	requireErr(t, err, core.ErrInvalidState)

	if _, err := f.contracts.CancelPayment(f.ctx, operator, issue.ID); err != nil {
		t.Fatalf("CancelPayment failed: %v", err)
	}
	c, err := f.contracts.CancelContract(f.ctx, operator, d.ID)
	if err != nil {
		t.Fatalf("CancelContract failed: %v", err)
	}
	if c.Status != core.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", c.Status)
	}
	wheat := f.stock(t, core.GrainKey(f.wheat.ID))
	requireDec(t, "total", wheat.TotalKg, "500")
	requireDec(t, "reserved", wheat.ReservedKg, "0")

	status := core.StatusCancelled
	listed, err := f.contracts.ListContracts(f.ctx, core.ContractFilter{Status: &status})
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != d.ID {
		t.Errorf("Expected the cancelled contract in the filtered list, got %+v", listed)
	}
	f.requireClean(t)
}

func TestIssueWithinEpsilonIsTrimmed(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 500)
	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractDebt,
		Items: []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 100, "10")},
	})

	_, err := f.contracts.CreatePayment(f.ctx, operator, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: dec("100.02")})
	requireErr(t, err, core.ErrExceedsRemaining)

	p := f.pay(t, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: dec("100.005")})
	requireDec(t, "booked", p.QuantityKg, "100")
	requireDec(t, "reserved consumed", p.ReservedKg, "100")
	got := f.contract(t, d.ID)
	requireDec(t, "delivered", got.Items[0].DeliveredKg, "100")
	requireDec(t, "own", f.stock(t, core.GrainKey(f.wheat.ID)).OwnKg, "400")
	f.requireClean(t)
}

func TestDeliveredItemRejectsRoundingRemainder(t *testing.T) {
	f := newFixture(t)
	f.farmerIntake(t, f.wheat, 100)
	d := f.createContract(t, core.CreateContractInput{
		Type: core.ContractDebt,
		Items: []core.ContractItemInput{
			debtItem(core.FromCompany, core.VoucherItem{Name: "Fuel coupon"}, 10, "50"),
			debtItem(core.FromFarmer, core.GrainItem{CultureID: f.wheat.ID}, 20, "10"),
		},
	})
	f.pay(t, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(10)})
	f.pay(t, d.ID, core.GoodsReceive{ItemID: d.Items[1].ID, QuantityKg: kg(20)})
	before := f.ledgerState(t, d.ID)

	_, err := f.contracts.CreatePayment(f.ctx, operator, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: dec("0.005")})
	requireErr(t, err, core.ErrExceedsRemaining)
	_, err = f.contracts.CreatePayment(f.ctx, operator, d.ID, core.GoodsReceive{ItemID: d.Items[1].ID, QuantityKg: dec("0.01")})
	requireErr(t, err, core.ErrExceedsRemaining)

	payments, err := f.contracts.ListPayments(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	if len(payments) != 2 {
		t.Errorf("Expected 2 payments, got %d", len(payments))
	}
	if after := f.ledgerState(t, d.ID); !reflect.DeepEqual(before, after) {
		t.Errorf("Ledger changed\nbefore: %v\nafter:  %v", before, after)
	}
	f.requireClean(t)
}

func TestOverpaymentWithinEpsilonCancelsExactly(t *testing.T) {
	tests := []struct {
		name string
		req  func(f *fixture) core.PaymentRequest
	}{
		{
			name: "cash",
			req: func(f *fixture) core.PaymentRequest {
				return core.CashPayment{Amount: dec("100.01"), Currency: core.UAH}
			},
		},
		{
			name: "grain",
			req: func(f *fixture) core.PaymentRequest {
				return core.GrainPayment{CultureID: f.corn.ID, QuantityKg: dec("12.50125")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ownIntake(t, f.wheat, 100)
			f.farmerIntake(t, f.corn, 300)
			d := f.createContract(t, core.CreateContractInput{
				Type:  core.ContractDebt,
				Items: []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 10, "10")},
			})
			requireDec(t, "balance", d.BalanceUAH, "100")
			before := f.ledgerState(t, d.ID)

			for round := 1; round <= 3; round++ {
				p := f.pay(t, d.ID, tt.req(f))
				requireDec(t, "amount uah", p.AmountUAH, "100")
				requireDec(t, "balance after payment", f.contract(t, d.ID).BalanceUAH, "0")
				if _, err := f.contracts.CancelPayment(f.ctx, operator, p.ID); err != nil {
					t.Fatalf("CancelPayment failed: %v", err)
				}
				if after := f.ledgerState(t, d.ID); !reflect.DeepEqual(before, after) {
					t.Fatalf("Round %d did not restore the ledger\nbefore: %v\nafter:  %v", round, before, after)
				}
			}
			f.requireClean(t)
		})
	}
}

func TestFarmerGoodsTrackedByDelivery(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 200)
	d := f.createContract(t, core.CreateContractInput{
		Type: core.ContractExchange,
		Items: []core.ContractItemInput{
			debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 100, "10"),
			debtItem(core.FromFarmer, core.GoodsItem{Name: "Urea", Category: "fertilizer"}, 40, "5"),
		},
	})
	requireDec(t, "balance", d.BalanceUAH, "800")

	p := f.pay(t, d.ID, core.GoodsReceive{ItemID: d.Items[1].ID, QuantityKg: kg(40)})
	requireDec(t, "amount", p.Amount, "200")
	got := f.contract(t, d.ID)
	requireDec(t, "delivered", got.Items[1].DeliveredKg, "40")
	requireDec(t, "balance", got.BalanceUAH, "800")
	_, err := f.inventory.StockSnapshot(f.ctx, core.GoodsKey("Urea", "fertilizer"))
	requireErr(t, err, core.ErrNotFound)

	if _, err = f.contracts.CancelPayment(f.ctx, operator, p.ID); err != nil {
		t.Fatalf("CancelPayment failed: %v", err)
	}
	requireDec(t, "delivered after cancel", f.contract(t, d.ID).Items[1].DeliveredKg, "0")
	f.requireClean(t)
}

func TestCashItemIssueNeedsFunds(t *testing.T) {
	f := newFixture(t)
	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractDebt,
		Items: []core.ContractItemInput{debtItem(core.FromCompany, core.CashItem{}, 500, "")},
	})
	requireDec(t, "balance", d.BalanceUAH, "500")

	_, err := f.contracts.CreatePayment(f.ctx, operator, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(200)})
	requireErr(t, err, core.ErrInsufficientFunds)
	got := f.contract(t, d.ID)
	requireDec(t, "delivered", got.Items[0].DeliveredKg, "0")
	if len(got.Payments) != 0 {
		t.Errorf("Expected no payments, got %d", len(got.Payments))
	}

	f.deposit(t, core.UAH, "300")
	f.pay(t, d.ID, core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: kg(200)})
	requireDec(t, "cash", f.register(t).UAH, "100")
}

func TestFarmerItemsNeedFarmerBalance(t *testing.T) {
	f := newFixture(t)
	f.farmerIntake(t, f.wheat, 100)

	_, err := f.contracts.CreateContract(f.ctx, operator, core.CreateContractInput{
		OwnerID: f.farmer.ID,
		Type:    core.ContractExchange,
		Items: []core.ContractItemInput{
			debtItem(core.FromFarmer, core.GrainItem{CultureID: f.wheat.ID}, 80, ""),
			debtItem(core.FromFarmer, core.GrainItem{CultureID: f.wheat.ID}, 40, ""),
		},
	})
	requireErr(t, err, core.ErrInsufficientFarmerBalance)
	amt, ok := core.AsAmountError(err)
	if !ok {
		t.Fatalf("Expected an AmountError, got %T", err)
	}
	requireDec(t, "requested", amt.Requested, "120")
	requireDec(t, "available", amt.Available, "100")

	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractDebt,
		Items: []core.ContractItemInput{debtItem(core.FromFarmer, core.GrainItem{CultureID: f.wheat.ID}, 100, "")},
	})
	_, err = f.contracts.CreatePayment(f.ctx, operator, d.ID, core.GrainPayment{CultureID: f.wheat.ID, QuantityKg: kg(150)})
	requireErr(t, err, core.ErrInsufficientFarmerBalance)
}

func TestCreateContractValidation(t *testing.T) {
	f := newFixture(t)
	f.farmerIntake(t, f.wheat, 1000)
	f.ownIntake(t, f.wheat, 1000)
	wheat := core.GrainItem{CultureID: f.wheat.ID}

	tests := []struct {
		name string
		in   core.CreateContractInput
		want error
	}{
		{
			name: "zero quantity",
			in: core.CreateContractInput{Type: core.ContractDebt, Items: []core.ContractItemInput{
				{Direction: core.FromCompany, Item: wheat, QuantityKg: decimal.Zero}}},
			want: core.ErrInvalidItem,
		},
		{
			name: "negative price",
			in: core.CreateContractInput{Type: core.ContractDebt, Items: []core.ContractItemInput{
				debtItem(core.FromCompany, wheat, 10, "-1")}},
			want: core.ErrInvalidItem,
		},
		{
			name: "payment contract with company item",
			in: core.CreateContractInput{Type: core.ContractPayment, Items: []core.ContractItemInput{
				debtItem(core.FromCompany, wheat, 10, "")}},
			want: core.ErrInvalidItem,
		},
		{
			name: "farmer delivering a voucher",
			in: core.CreateContractInput{Type: core.ContractExchange, Items: []core.ContractItemInput{
				debtItem(core.FromFarmer, core.VoucherItem{Name: "Fuel coupon"}, 10, "5")}},
			want: core.ErrInvalidItem,
		},
		{
			name: "reserve with farmer item",
			in: core.CreateContractInput{Type: core.ContractReserve, Items: []core.ContractItemInput{
				debtItem(core.FromFarmer, wheat, 10, "5")}},
			want: core.ErrInvalidItem,
		},
		{
			name: "unknown direction",
			in: core.CreateContractInput{Type: core.ContractDebt, Items: []core.ContractItemInput{
				debtItem(core.Direction("sideways"), wheat, 10, "5")}},
			want: core.ErrInvalidItem,
		},
		{
			name: "unknown culture",
			in: core.CreateContractInput{Type: core.ContractDebt, Items: []core.ContractItemInput{
				debtItem(core.FromCompany, core.GrainItem{CultureID: 999}, 10, "5")}},
			want: core.ErrNotFound,
		},
		{
			name: "unknown owner",
			in: core.CreateContractInput{OwnerID: 999, Type: core.ContractDebt, Items: []core.ContractItemInput{
				debtItem(core.FromCompany, wheat, 10, "5")}},
			want: core.ErrNotFound,
		},
		{
			name: "no items",
			in:   core.CreateContractInput{Type: core.ContractDebt},
			want: core.ErrInvalidItem,
		},
		{
			name: "unknown type",
			in: core.CreateContractInput{Type: core.ContractType("barter"), Items: []core.ContractItemInput{
				debtItem(core.FromCompany, wheat, 10, "5")}},
			want: core.ErrInvalidItem,
		},
		{
			name: "voucher payout in USD",
			in: core.CreateContractInput{Type: core.ContractPayment, Currency: core.USD, ExchangeRate: dec("40"),
				Payout: core.PayoutVoucher, Items: []core.ContractItemInput{debtItem(core.FromFarmer, wheat, 10, "")}},
			want: core.ErrInvalidItem,
		},
		{
			name: "foreign payout without rate",
			in: core.CreateContractInput{Type: core.ContractPayment, Currency: core.EUR,
				Items: []core.ContractItemInput{debtItem(core.FromFarmer, wheat, 10, "")}},
			want: core.ErrInvalidItem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			if in.OwnerID == 0 {
				in.OwnerID = f.farmer.ID
			}
			_, err := f.contracts.CreateContract(f.ctx, operator, in)
			requireErr(t, err, tt.want)
		})
	}

	contracts, err := f.contracts.ListContracts(f.ctx, core.ContractFilter{})
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}
	if len(contracts) != 0 {
		t.Fatalf("Expected rejected contracts to leave nothing behind, got %d", len(contracts))
	}
	requireDec(t, "reserved", f.stock(t, core.GrainKey(f.wheat.ID)).ReservedKg, "0")
}

func TestPaymentRequestValidation(t *testing.T) {
	f := newFixture(t)
	f.ownIntake(t, f.wheat, 500)
	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractDebt,
		Items: []core.ContractItemInput{debtItem(core.FromCompany, core.GrainItem{CultureID: f.wheat.ID}, 100, "10")},
	})

	tests := []struct {
		name string
		req  core.PaymentRequest
		want error
	}{
		{"unknown item", core.GoodsIssue{ItemID: 999, QuantityKg: kg(1)}, core.ErrNotFound},
		{"receive on company item", core.GoodsReceive{ItemID: d.Items[0].ID, QuantityKg: kg(1)}, core.ErrInvalidItem},
		{"zero issue", core.GoodsIssue{ItemID: d.Items[0].ID, QuantityKg: decimal.Zero}, core.ErrInvalidItem},
		{"negative cash", core.CashPayment{Amount: dec("-5"), Currency: core.UAH}, core.ErrInvalidItem},
		{"cash without rate", core.CashPayment{Amount: dec("5"), Currency: core.EUR}, core.ErrInvalidItem},
		{"unknown currency", core.CashPayment{Amount: dec("5"), Currency: core.Currency("PLN")}, core.ErrInvalidItem},
		{"nil request", nil, core.ErrInvalidItem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.contracts.CreatePayment(f.ctx, operator, d.ID, tt.req)
			requireErr(t, err, tt.want)
		})
	}
	_, err := f.contracts.CreatePayment(f.ctx, operator, 9999, core.CashPayment{Amount: dec("5")})
	requireErr(t, err, core.ErrNotFound)
}

func TestPaymentContractAfterProportionalAdjustment(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, core.UAH, "5000")
	f.ownIntake(t, f.barley, 500)
	f.farmerIntake(t, f.barley, 500)
	if _, err := f.inventory.AdjustStock(f.ctx, operator, core.GrainKey(f.barley.ID), dec("-100")); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	barley := f.stock(t, core.GrainKey(f.barley.ID))
	requireDec(t, "own", barley.OwnKg, "450")
	requireDec(t, "farmer share", barley.FarmerKg, "450")
	requireDec(t, "farmer balance", f.farmerBalance(t, f.barley), "500")

	_, err := f.contracts.CreateContract(f.ctx, operator, core.CreateContractInput{
		OwnerID: f.farmer.ID,
		Type:    core.ContractPayment,
		Items:   []core.ContractItemInput{debtItem(core.FromFarmer, core.GrainItem{CultureID: f.barley.ID}, 500, "")},
	})
	requireErr(t, err, core.ErrInsufficientStock)
	amt, ok := core.AsAmountError(err)
	if !ok {
		t.Fatalf("Expected an AmountError, got %T", err)
	}
	requireDec(t, "requested", amt.Requested, "500")
	requireDec(t, "available", amt.Available, "450")

	d := f.createContract(t, core.CreateContractInput{
		Type:  core.ContractPayment,
		Items: []core.ContractItemInput{debtItem(core.FromFarmer, core.GrainItem{CultureID: f.barley.ID}, 450, "")},
	})
	if d.Status != core.StatusClosed {
		t.Errorf("Expected closed payment contract, got %s", d.Status)
	}
	barley = f.stock(t, core.GrainKey(f.barley.ID))
	requireDec(t, "own", barley.OwnKg, "900")
	requireDec(t, "farmer share", barley.FarmerKg, "0")
	requireDec(t, "farmer balance", f.farmerBalance(t, f.barley), "50")
	f.requireClean(t)
}
