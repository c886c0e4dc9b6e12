package migrations

import (
	"strings"
	"testing"
)

func TestNamesAreOrderedSQLFiles(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("Expected at least one migration")
	}
	for i, name := range names {
		if !strings.HasSuffix(name, ".sql") {
			t.Errorf("Expected .sql file, got %s", name)
		}
		if i > 0 && names[i-1] >= name {
			t.Errorf("Expected %s after %s", name, names[i-1])
		}
	}
}

func TestSchemaCoversLedgerTables(t *testing.T) {
	body, err := files.ReadFile("sql/001_ledger.sql")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	schema := string(body)
	for _, table := range []string{
		"cultures", "owners", "stock_entries", "stock_adjustments", "cash_registers",
		"cash_transactions", "grain_intakes", "grain_deductions", "grain_shipments",
		"purchases", "farmer_contracts", "farmer_contract_items",
		"farmer_contract_payments", "grain_vouchers", "voucher_payments",
	} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("Expected table %s in schema", table)
		}
	}
}
