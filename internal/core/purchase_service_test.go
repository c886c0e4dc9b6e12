package core_test

import (
	"testing"

	"grain-ledger/internal/core"
)

func TestRecordPurchaseNeedsCash(t *testing.T) {
	f := newFixture(t)
	_, err := f.purchases.RecordPurchase(f.ctx, operator, core.PurchaseInput{
		Name: "Urea", QuantityKg: kg(100), PricePerKg: dec("20"), Currency: core.UAH,
	})
	requireErr(t, err, core.ErrInsufficientFunds)

	_, err = f.inventory.StockSnapshot(f.ctx, core.GoodsKey("Urea", ""))
	requireErr(t, err, core.ErrNotFound)
}

func TestRecordPurchaseMergesNormalizedNames(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, core.UAH, "5000")
	f.deposit(t, core.EUR, "100")

	first, err := f.purchases.RecordPurchase(f.ctx, operator, core.PurchaseInput{
		Name: "  Ammonium   Nitrate ", QuantityKg: kg(100), PricePerKg: dec("12.5"), Currency: core.UAH, SalePricePerKg: dec("16"),
	})
	if err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}
	if first.ItemName != "Ammonium Nitrate" || first.Category != core.DefaultGoodsCategory {
		t.Errorf("Unexpected purchase %q/%q", first.ItemName, first.Category)
	}
	requireDec(t, "total", first.TotalAmount, "1250")

	if _, err := f.purchases.RecordPurchase(f.ctx, operator, core.PurchaseInput{
		Name: "ammonium nitrate", QuantityKg: kg(50), PricePerKg: dec("0.5"), Currency: core.EUR,
	}); err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}

	goods, err := f.inventory.ListStock(f.ctx, core.StockGoods)
	if err != nil {
		t.Fatalf("ListStock failed: %v", err)
	}
	if len(goods) != 1 {
		t.Fatalf("Expected one merged goods entry, got %d", len(goods))
	}
	if goods[0].DisplayName != "Ammonium Nitrate" {
		t.Errorf("Expected display name to be kept, got %q", goods[0].DisplayName)
	}
	requireDec(t, "total", goods[0].TotalKg, "150")
	requireDec(t, "sale price", goods[0].SalePricePerKg, "16")

	reg := f.register(t)
	requireDec(t, "uah", reg.UAH, "3750")
	requireDec(t, "eur", reg.EUR, "75")

	purchases, err := f.purchases.ListPurchases(f.ctx)
	if err != nil {
		t.Fatalf("ListPurchases failed: %v", err)
	}
	if len(purchases) != 2 || purchases[0].StockID != purchases[1].StockID {
		t.Errorf("Expected two purchases on one stock entry, got %+v", purchases)
	}
}

func TestRecordPurchaseValidation(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, core.UAH, "1000")
	tests := []struct {
		name string
		in   core.PurchaseInput
	}{
		{"empty name", core.PurchaseInput{Name: " ", QuantityKg: kg(1), PricePerKg: dec("1")}},
		{"zero quantity", core.PurchaseInput{Name: "Urea", PricePerKg: dec("1")}},
		{"zero price", core.PurchaseInput{Name: "Urea", QuantityKg: kg(1)}},
		{"unknown currency", core.PurchaseInput{Name: "Urea", QuantityKg: kg(1), PricePerKg: dec("1"), Currency: "GBP"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.purchases.RecordPurchase(f.ctx, operator, tt.in)
			requireErr(t, err, core.ErrInvalidItem)
		})
	}
}
