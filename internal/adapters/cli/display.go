package cli

import (
	"fmt"
	"io"
	"strings"

	"grain-ledger/internal/app"
	"grain-ledger/internal/core"
)

func printCashBalances(out io.Writer, result *app.CashBalancesResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 42))
	fmt.Fprintf(out, "  CASH REGISTER %s\n", strings.ToUpper(result.Register))
	fmt.Fprintln(out, strings.Repeat("=", 42))
	for _, b := range result.Balances {
		fmt.Fprintf(out, "  %-10s %28s\n", b.Currency, b.Amount.StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("=", 42))
}

func printStock(out io.Writer, entries []core.StockEntry) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "  %-26s %12s %12s %12s %12s\n", "ITEM", "TOTAL KG", "OWN KG", "FARMER KG", "RESERVED")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	if len(entries) == 0 {
		fmt.Fprintln(out, "  No stock.")
	}
	for _, e := range entries {
		fmt.Fprintf(out, "  %-26s %12s %12s %12s %12s\n",
			truncate(e.DisplayName, 26), e.TotalKg.StringFixed(2), e.OwnKg.StringFixed(2),
			e.FarmerKg.StringFixed(2), e.ReservedKg.StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("=", 80))
}

func printContracts(out io.Writer, result *app.ContractListResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 72))
	fmt.Fprintf(out, "  %-6s %-8s %-8s %-10s %16s %16s\n", "ID", "OWNER", "TYPE", "STATUS", "TOTAL UAH", "BALANCE UAH")
	fmt.Fprintln(out, strings.Repeat("-", 72))
	for _, c := range result.Contracts {
		fmt.Fprintf(out, "  %-6d %-8d %-8s %-10s %16s %16s\n",
			c.ID, c.OwnerID, c.Type, c.Status, c.TotalValueUAH.StringFixed(2), c.BalanceUAH.StringFixed(2))
	}
	fmt.Fprintln(out, strings.Repeat("-", 72))
	fmt.Fprintf(out, "  %d contract(s)\n", result.Count)
}

func printFarmerBalances(out io.Writer, result *app.FarmerBalancesResult) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  FARMER %d\n", result.OwnerID)
	fmt.Fprintln(out, strings.Repeat("-", 42))
	if len(result.Balances) == 0 {
		fmt.Fprintln(out, "  No grain on balance.")
	}
	for _, b := range result.Balances {
		name := b.Culture
		if name == "" {
			name = fmt.Sprintf("culture %d", b.CultureID)
		}
		fmt.Fprintf(out, "  %-24s %14s kg\n", name, b.BalanceKg.StringFixed(2))
	}
}

func printVoucherSummary(out io.Writer, s *core.VoucherSummary) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  VOUCHERS   : %d (%d open)\n", s.Count, s.OpenCount)
	fmt.Fprintf(out, "  QUANTITY   : %s kg\n", s.QuantityKg.StringFixed(2))
	fmt.Fprintf(out, "  TOTAL      : %s UAH\n", s.TotalUAH.StringFixed(2))
	fmt.Fprintf(out, "  PAID       : %s UAH\n", s.PaidUAH.StringFixed(2))
	fmt.Fprintf(out, "  REMAINING  : %s UAH\n", s.RemainingUAH.StringFixed(2))
}

func printAudit(out io.Writer, r *core.AuditReport) {
	fmt.Fprintf(out, "Checked %d stock entries, %d contracts, %d vouchers.\n", r.StockEntries, r.Contracts, r.Vouchers)
	if r.OK() {
		fmt.Fprintln(out, "Ledger is consistent.")
		return
	}
	fmt.Fprintf(out, "%d violation(s):\n", len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(out, "  - %s\n", v)
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
