package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/core"
	"grain-ledger/internal/store/memory"
)

var operator = core.Actor{ID: 7, FullName: "Olha Kravets"}

// fixture wires every ledger service to a fresh in-memory store with a
// stepping clock, so created_at ordering is deterministic.
type fixture struct {
	ctx       context.Context
	store     *memory.Store
	rt        *core.Runtime
	contracts core.ContractEngine
	vouchers  core.VoucherEngine
	inventory core.InventoryService
	purchases core.PurchaseService
	cash      core.CashService
	refs      core.ReferenceService

	wheat, barley, corn core.Culture
	farmer              core.Owner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	rt := core.NewRuntime(store, "", nil)
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	rt.Clock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	if _, err := core.EnsureRegister(ctx, rt); err != nil {
		t.Fatalf("EnsureRegister failed: %v", err)
	}

	f := &fixture{
		ctx:       ctx,
		store:     store,
		rt:        rt,
		contracts: core.NewContractEngine(rt),
		vouchers:  core.NewVoucherEngine(rt),
		inventory: core.NewInventoryService(rt),
		purchases: core.NewPurchaseService(rt),
		cash:      core.NewCashService(rt),
		refs:      core.NewReferenceService(rt),
	}
	f.wheat = f.culture(t, "Wheat", "10")
	f.barley = f.culture(t, "Barley", "5")
	f.corn = f.culture(t, "Corn", "8")
	owner, err := f.refs.SaveOwner(ctx, core.Owner{FullName: "Ivan Melnyk", Phone: "+380671234567"})
	if err != nil {
		t.Fatalf("SaveOwner failed: %v", err)
	}
	f.farmer = *owner
	return f
}

func (f *fixture) culture(t *testing.T, name, price string) core.Culture {
	t.Helper()
	c, err := f.refs.SaveCulture(f.ctx, core.Culture{Name: name, PricePerKg: dec(price)})
	if err != nil {
		t.Fatalf("SaveCulture failed: %v", err)
	}
	return *c
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func kg(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// ownIntake books n kg of company grain.
func (f *fixture) ownIntake(t *testing.T, c core.Culture, n int64) {
	t.Helper()
	_, err := f.inventory.RecordIntake(f.ctx, operator, core.IntakeInput{
		CultureID: c.ID, GrossKg: kg(n), TareKg: decimal.Zero, IsOwnGrain: true,
	})
	if err != nil {
		t.Fatalf("RecordIntake (own) failed: %v", err)
	}
}

// farmerIntake books n kg of grain stored for the fixture farmer.
func (f *fixture) farmerIntake(t *testing.T, c core.Culture, n int64) {
	t.Helper()
	owner := f.farmer.ID
	_, err := f.inventory.RecordIntake(f.ctx, operator, core.IntakeInput{
		OwnerID: &owner, CultureID: c.ID, GrossKg: kg(n), TareKg: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("RecordIntake (farmer) failed: %v", err)
	}
}

func (f *fixture) deposit(t *testing.T, c core.Currency, amount string) {
	t.Helper()
	if _, err := f.cash.UpdateBalance(f.ctx, operator, c, core.TxAdd, dec(amount), "opening balance"); err != nil {
		t.Fatalf("UpdateBalance failed: %v", err)
	}
}

func (f *fixture) stock(t *testing.T, key core.StockKey) *core.StockEntry {
	t.Helper()
	e, err := f.inventory.StockSnapshot(f.ctx, key)
	if err != nil {
		t.Fatalf("StockSnapshot failed: %v", err)
	}
	return e
}

func (f *fixture) register(t *testing.T) *core.CashRegister {
	t.Helper()
	r, err := f.cash.Balances(f.ctx)
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}
	return r
}

func (f *fixture) farmerBalance(t *testing.T, c core.Culture) decimal.Decimal {
	t.Helper()
	bal, err := f.inventory.FarmerBalance(f.ctx, f.farmer.ID, c.ID)
	if err != nil {
		t.Fatalf("FarmerBalance failed: %v", err)
	}
	return bal
}

func (f *fixture) contract(t *testing.T, id int) *core.ContractDetail {
	t.Helper()
	d, err := f.contracts.GetContract(f.ctx, id)
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	return d
}

func (f *fixture) createContract(t *testing.T, in core.CreateContractInput) *core.ContractDetail {
	t.Helper()
	if in.OwnerID == 0 {
		in.OwnerID = f.farmer.ID
	}
	d, err := f.contracts.CreateContract(f.ctx, operator, in)
	if err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	return d
}

func (f *fixture) pay(t *testing.T, contractID int, req core.PaymentRequest) *core.FarmerContractPayment {
	t.Helper()
	p, err := f.contracts.CreatePayment(f.ctx, operator, contractID, req)
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	return p
}

// requireClean fails the test when the ledger audit reports any violation.
func (f *fixture) requireClean(t *testing.T) {
	t.Helper()
	report, err := core.NewAuditor(f.rt).Run(f.ctx)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if !report.OK() {
		t.Fatalf("Expected clean audit, got %v", report.Violations)
	}
}

func requireErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("Expected %v, got %v", want, err)
	}
}

func requireDec(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("Expected %s %s, got %s", what, want, got)
	}
}

func debtItem(dir core.Direction, item core.ItemSpec, qty int64, price string) core.ContractItemInput {
	in := core.ContractItemInput{Direction: dir, Item: item, QuantityKg: kg(qty)}
	if price != "" {
		in.PricePerKg = dec(price)
	}
	return in
}
