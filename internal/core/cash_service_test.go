package core_test

import (
	"testing"

	"grain-ledger/internal/core"
)

func TestUpdateBalance(t *testing.T) {
	f := newFixture(t)

	if _, err := f.cash.UpdateBalance(f.ctx, operator, core.UAH, core.TxAdd, dec("1000"), ""); err != nil {
		t.Fatalf("UpdateBalance (add) failed: %v", err)
	}
	tx, err := f.cash.UpdateBalance(f.ctx, operator, core.UAH, core.TxSubtract, dec("300"), "fuel")
	if err != nil {
		t.Fatalf("UpdateBalance (subtract) failed: %v", err)
	}
	requireDec(t, "uah after", tx.UAHAfter, "700")
	if tx.ActorName != operator.FullName {
		t.Errorf("Expected actor %q, got %q", operator.FullName, tx.ActorName)
	}

	_, err = f.cash.UpdateBalance(f.ctx, operator, core.UAH, core.TxSubtract, dec("800"), "")
	requireErr(t, err, core.ErrInsufficientFunds)
	requireDec(t, "uah", f.register(t).UAH, "700")

	rows, err := f.cash.ListTransactions(f.ctx, core.Page{})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(rows))
	}
	if rows[0].Type != core.TxSubtract || rows[0].Description != "fuel" {
		t.Errorf("Expected newest first, got %+v", rows[0])
	}
	if rows[1].Description != "Manual cash add" {
		t.Errorf("Expected default description, got %q", rows[1].Description)
	}
	requireDec(t, "first balance after", rows[1].UAHAfter, "1000")
}

func TestUpdateBalanceValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name     string
		currency core.Currency
		typ      core.TransactionType
		amount   string
	}{
		{"unknown currency", "PLN", core.TxAdd, "10"},
		{"zero amount", core.UAH, core.TxAdd, "0"},
		{"negative amount", core.USD, core.TxAdd, "-10"},
		{"unknown type", core.EUR, "transfer", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cash.UpdateBalance(f.ctx, operator, tt.currency, tt.typ, dec(tt.amount), "")
			requireErr(t, err, core.ErrInvalidItem)
		})
	}
}
