package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"grain-ledger/internal/core"
	"grain-ledger/internal/store/postgres"
	"grain-ledger/migrations"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if _, err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE voucher_payments, grain_vouchers, farmer_contract_payments, farmer_contract_items,
			farmer_contracts, purchases, grain_shipments, grain_deductions, grain_intakes,
			cash_transactions, cash_registers, stock_adjustments, stock_entries, owners, cultures
			RESTART IDENTITY CASCADE;

		INSERT INTO cultures (name, price_per_kg) VALUES ('Wheat', 8.00), ('Corn', 7.00);
		INSERT INTO owners (full_name, phone) VALUES ('Petro Bondar', '+380501112233');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}
	return pool
}

var operator = core.Actor{ID: 1, FullName: "Operator"}

func TestPostgresStore_DebtContractRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	rt := core.NewRuntime(postgres.NewStore(pool, nil), "", nil)
	if _, err := core.EnsureRegister(ctx, rt); err != nil {
		t.Fatalf("EnsureRegister failed: %v", err)
	}
	inventory := core.NewInventoryService(rt)
	contracts := core.NewContractEngine(rt)

	if _, err := inventory.RecordIntake(ctx, operator, core.IntakeInput{
		CultureID: 1, GrossKg: decimal.NewFromInt(1200), TareKg: decimal.NewFromInt(200), IsOwnGrain: true,
	}); err != nil {
		t.Fatalf("RecordIntake failed: %v", err)
	}

	detail, err := contracts.CreateContract(ctx, operator, core.CreateContractInput{
		OwnerID: 1,
		Type:    core.ContractDebt,
		Items: []core.ContractItemInput{
			{Direction: core.FromCompany, Item: core.GrainItem{CultureID: 1}, QuantityKg: decimal.NewFromInt(400)},
		},
	})
	if err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}

	stock, err := inventory.StockSnapshot(ctx, core.GrainKey(1))
	if err != nil {
		t.Fatalf("StockSnapshot failed: %v", err)
	}
	if !stock.ReservedKg.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected 400 reserved, got %s", stock.ReservedKg)
	}

	payment, err := contracts.CreatePayment(ctx, operator, detail.ID, core.GoodsIssue{
		ItemID: detail.Items[0].ID, QuantityKg: decimal.NewFromInt(150),
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if _, err := contracts.CancelPayment(ctx, operator, payment.ID); err != nil {
		t.Fatalf("CancelPayment failed: %v", err)
	}
	if _, err := contracts.CancelPayment(ctx, operator, payment.ID); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on second cancel, got %v", err)
	}

	stock, err = inventory.StockSnapshot(ctx, core.GrainKey(1))
	if err != nil {
		t.Fatalf("StockSnapshot failed: %v", err)
	}
	if !stock.TotalKg.Equal(decimal.NewFromInt(1000)) || !stock.ReservedKg.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected total 1000 reserved 400 after cancel, got total %s reserved %s", stock.TotalKg, stock.ReservedKg)
	}

	report, err := core.NewAuditor(rt).Run(ctx)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("Expected clean audit, got %v", report.Violations)
	}
}

func TestPostgresStore_ConcurrentReserves(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	rt := core.NewRuntime(postgres.NewStore(pool, nil), "", nil)
	if _, err := core.EnsureRegister(ctx, rt); err != nil {
		t.Fatalf("EnsureRegister failed: %v", err)
	}
	inventory := core.NewInventoryService(rt)
	contracts := core.NewContractEngine(rt)
	if _, err := inventory.RecordIntake(ctx, operator, core.IntakeInput{
		CultureID: 1, GrossKg: decimal.NewFromInt(500), TareKg: decimal.Zero, IsOwnGrain: true,
	}); err != nil {
		t.Fatalf("RecordIntake failed: %v", err)
	}

	const workers = 10
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		unexpected []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := contracts.CreateContract(ctx, operator, core.CreateContractInput{
				OwnerID: 1,
				Type:    core.ContractReserve,
				Items: []core.ContractItemInput{{
					Direction:  core.FromCompany,
					Item:       core.GrainItem{CultureID: 1},
					QuantityKg: decimal.NewFromInt(100),
					PricePerKg: decimal.NewFromInt(8),
				}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrInsufficientStock):
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("Unexpected errors: %v", unexpected)
	}
	if succeeded < 1 || succeeded > 5 {
		t.Errorf("Expected between 1 and 5 reservations, got %d", succeeded)
	}
	stock, err := inventory.StockSnapshot(ctx, core.GrainKey(1))
	if err != nil {
		t.Fatalf("StockSnapshot failed: %v", err)
	}
	if stock.ReservedKg.GreaterThan(stock.OwnKg) {
		t.Errorf("Reserved %s exceeds own %s", stock.ReservedKg, stock.OwnKg)
	}
	if want := decimal.NewFromInt(int64(succeeded * 100)); !stock.ReservedKg.Equal(want) {
		t.Errorf("Expected %s reserved, got %s", want, stock.ReservedKg)
	}
}

func TestPostgresStore_RollbackOnError(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	store := postgres.NewStore(pool, nil)
	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(tx core.Tx) error {
		if err := tx.SaveOwner(ctx, &core.Owner{FullName: "Rolled Back"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM owners WHERE full_name = 'Rolled Back'").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected rollback, found %d rows", count)
	}
}

func TestPostgresStore_ViewIsReadOnly(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	store := postgres.NewStore(pool, nil)
	err := store.View(ctx, func(tx core.Tx) error {
		return tx.SaveCulture(ctx, &core.Culture{Name: "Barley"})
	})
	if err == nil {
		t.Fatal("Expected write in a view to fail")
	}
}
