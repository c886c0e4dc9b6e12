package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/ai"
	"grain-ledger/internal/core"
	"grain-ledger/internal/metrics"
	"grain-ledger/internal/rates"
	"grain-ledger/internal/store/memory"
)

var clerk = core.Actor{ID: 4, FullName: "Oksana Hrytsenko"}

type stubDrafter struct {
	catalog ai.Catalog
}

func (d *stubDrafter) DraftContract(ctx context.Context, text string, cat ai.Catalog) (*ai.DraftResult, error) {
	d.catalog = cat
	return &ai.DraftResult{NeedsClarification: true, Question: "Which culture?"}, nil
}

type stubRates struct {
	currency core.Currency
}

func (r *stubRates) Rate(ctx context.Context, currency core.Currency, on time.Time) (*rates.Rate, error) {
	r.currency = currency
	return &rates.Rate{Currency: currency, Rate: decimal.RequireFromString("41.25"), Source: "stub"}, nil
}

type testEnv struct {
	svc     ApplicationService
	metrics *metrics.Metrics
	drafter *stubDrafter
	rates   *stubRates
	wheat   *core.Culture
	farmer  *core.Owner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	rt := core.NewRuntime(memory.NewStore(), "", nil)
	if _, err := core.EnsureRegister(ctx, rt); err != nil {
		t.Fatalf("EnsureRegister failed: %v", err)
	}
	env := &testEnv{metrics: metrics.New(), drafter: &stubDrafter{}, rates: &stubRates{}}
	env.svc = NewAppService(rt, env.drafter, env.rates, nil, env.metrics)

	var err error
	env.wheat, err = env.svc.SaveCulture(ctx, core.Culture{Name: "Wheat", PricePerKg: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("SaveCulture failed: %v", err)
	}
	env.farmer, err = env.svc.SaveOwner(ctx, core.Owner{FullName: "Mykola Tkachenko"})
	if err != nil {
		t.Fatalf("SaveOwner failed: %v", err)
	}
	return env
}

func (env *testEnv) operations(t *testing.T, operation, outcome string) float64 {
	t.Helper()
	families, err := env.metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "grain_ledger_operations_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == operation && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPaymentContractThroughService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ownerID := env.farmer.ID
	if _, err := env.svc.RecordIntake(ctx, clerk, IntakeRequest{
		OwnerID:   &ownerID,
		CultureID: env.wheat.ID,
		GrossKg:   decimal.NewFromInt(1200),
		TareKg:    decimal.NewFromInt(200),
	}); err != nil {
		t.Fatalf("RecordIntake failed: %v", err)
	}
	if _, err := env.svc.UpdateCashBalance(ctx, clerk, CashUpdateRequest{Currency: "uah", Type: "add", Amount: decimal.NewFromInt(10000)}); err != nil {
		t.Fatalf("UpdateCashBalance failed: %v", err)
	}

	detail, err := env.svc.CreateContract(ctx, clerk, CreateContractRequest{
		OwnerID: env.farmer.ID,
		Type:    "payment",
		Items: []ContractItemRequest{
			{Direction: "from_farmer", Kind: "grain", CultureID: env.wheat.ID, QuantityKg: decimal.NewFromInt(400)},
		},
	})
	if err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	if detail.Status != core.StatusClosed || detail.ActorName != clerk.FullName {
		t.Errorf("Expected closed contract by %s, got %s by %s", clerk.FullName, detail.Status, detail.ActorName)
	}

	cash, err := env.svc.CashBalances(ctx)
	if err != nil {
		t.Fatalf("CashBalances failed: %v", err)
	}
	if len(cash.Balances) != 3 || cash.Balances[0].Currency != core.UAH || !cash.Balances[0].Amount.Equal(decimal.NewFromInt(6000)) {
		t.Errorf("Expected UAH 6000 first, got %+v", cash.Balances)
	}

	balance, err := env.svc.FarmerBalance(ctx, env.farmer.ID, env.wheat.ID)
	if err != nil {
		t.Fatalf("FarmerBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected farmer balance 600, got %s", balance)
	}

	closed, err := env.svc.ListContracts(ctx, ContractQuery{Status: "closed"})
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}
	if closed.Count != 1 {
		t.Errorf("Expected 1 closed contract, got %d", closed.Count)
	}

	grain, err := env.svc.StockSnapshot(ctx, StockKeyRequest{Kind: "grain", CultureID: env.wheat.ID})
	if err != nil {
		t.Fatalf("StockSnapshot failed: %v", err)
	}
	if !grain.OwnKg.Equal(decimal.NewFromInt(400)) || !grain.FarmerKg.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected own 400 / farmer 600, got %s / %s", grain.OwnKg, grain.FarmerKg)
	}

	report, err := env.svc.AuditLedger(ctx)
	if err != nil {
		t.Fatalf("AuditLedger failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("Expected a clean audit, got %v", report.Violations)
	}

	if got := env.operations(t, "create_contract", "ok"); got != 1 {
		t.Errorf("Expected 1 successful create_contract, got %v", got)
	}
}

func TestRequestValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.CreateContract(ctx, clerk, CreateContractRequest{
		OwnerID: env.farmer.ID,
		Type:    "debt",
		Items:   []ContractItemRequest{{Direction: "from_company", Kind: "tractor", QuantityKg: decimal.NewFromInt(1)}},
	})
	if !errors.Is(err, core.ErrInvalidItem) {
		t.Errorf("Expected ErrInvalidItem for an unknown item type, got %v", err)
	}
	if got := env.operations(t, "create_contract", "invalid_item"); got != 1 {
		t.Errorf("Expected 1 invalid_item create_contract, got %v", got)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"unknown payment type", func() error {
			_, err := env.svc.CreatePayment(ctx, clerk, 1, PaymentRequest{Kind: "barter"})
			return err
		}},
		{"unknown stock kind", func() error {
			_, err := env.svc.StockSnapshot(ctx, StockKeyRequest{Kind: "livestock"})
			return err
		}},
		{"grain key without culture", func() error {
			_, err := env.svc.AdjustStock(ctx, clerk, StockMutationRequest{StockKeyRequest: StockKeyRequest{Kind: "grain"}, Quantity: decimal.NewFromInt(5)})
			return err
		}},
		{"unknown contract status", func() error {
			_, err := env.svc.ListContracts(ctx, ContractQuery{Status: "archived"})
			return err
		}},
		{"unsupported currency", func() error {
			_, err := env.svc.UpdateCashBalance(ctx, clerk, CashUpdateRequest{Currency: "GBP", Type: "add", Amount: decimal.NewFromInt(1)})
			return err
		}},
		{"list unknown stock kind", func() error {
			_, err := env.svc.ListStock(ctx, "seeds")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, core.ErrInvalidItem) {
				t.Errorf("Expected ErrInvalidItem, got %v", err)
			}
		})
	}
}

func TestGoodsStockThroughService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.svc.UpdateCashBalance(ctx, clerk, CashUpdateRequest{Currency: "UAH", Type: "add", Amount: decimal.NewFromInt(5000)}); err != nil {
		t.Fatalf("UpdateCashBalance failed: %v", err)
	}
	if _, err := env.svc.RecordPurchase(ctx, clerk, PurchaseRequest{
		Name:           "Urea",
		QuantityKg:     decimal.NewFromInt(200),
		PricePerKg:     decimal.NewFromInt(20),
		SalePricePerKg: decimal.NewFromInt(25),
	}); err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}

	key := StockKeyRequest{Kind: "goods", Name: "UREA"}
	entry, err := env.svc.ReserveStock(ctx, clerk, StockMutationRequest{StockKeyRequest: key, Quantity: decimal.NewFromInt(50)})
	if err != nil {
		t.Fatalf("ReserveStock failed: %v", err)
	}
	if !entry.ReservedKg.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected 50 reserved, got %s", entry.ReservedKg)
	}

	rows, err := env.svc.ListStockAdjustments(ctx, AdjustmentQuery{Key: &key, Source: core.SourceManual})
	if err != nil {
		t.Fatalf("ListStockAdjustments failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ActorID != clerk.ID {
		t.Errorf("Expected one reservation row by the clerk, got %+v", rows)
	}

	txs, err := env.svc.ListCashTransactions(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListCashTransactions failed: %v", err)
	}
	if len(txs) != 1 || !txs[0].Amount.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("Expected the purchase debit of 4000 first, got %+v", txs)
	}
}

func TestOptionalFeatures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if _, err := env.svc.ArchiveDay(ctx, time.Now()); !errors.Is(err, ErrArchiveDisabled) {
		t.Errorf("Expected ErrArchiveDisabled, got %v", err)
	}

	result, err := env.svc.DraftContract(ctx, "Mykola brings wheat")
	if err != nil {
		t.Fatalf("DraftContract failed: %v", err)
	}
	if !result.NeedsClarification {
		t.Errorf("Expected a clarification, got %+v", result)
	}
	if len(env.drafter.catalog.Cultures) != 1 || len(env.drafter.catalog.Owners) != 1 {
		t.Errorf("Expected the catalog to carry 1 culture and 1 owner, got %+v", env.drafter.catalog)
	}

	rate, err := env.svc.ReferenceRate(ctx, "usd", time.Time{})
	if err != nil {
		t.Fatalf("ReferenceRate failed: %v", err)
	}
	if env.rates.currency != core.USD || rate.Rate.String() != "41.25" {
		t.Errorf("Unexpected rate %+v for %s", rate, env.rates.currency)
	}

	bare := NewAppService(core.NewRuntime(memory.NewStore(), "", nil), nil, nil, nil, nil)
	if _, err := bare.DraftContract(ctx, "x"); !errors.Is(err, ai.ErrDisabled) {
		t.Errorf("Expected ai.ErrDisabled, got %v", err)
	}
	if _, err := bare.ReferenceRate(ctx, "USD", time.Now()); err == nil {
		t.Error("Expected an error without a rates client")
	}
}
