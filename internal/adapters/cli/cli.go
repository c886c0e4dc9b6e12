package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/app"
	"grain-ledger/internal/core"
)

// ErrUsage is returned for unknown commands and missing arguments.
var ErrUsage = errors.New("usage")

// ErrAuditFailed is returned by the audit command when violations were found,
// so scripts can rely on the exit code.
var ErrAuditFailed = errors.New("ledger audit found violations")

const usage = `Available commands:
  bal | balances                   cash register balances
  stock [grain|goods]              stock entries
  contracts [status]               list contracts, optionally by status
  contract <id>                    contract with items and payments
  farmer <owner-id>                farmer grain balances
  create-contract                  create a contract from JSON on stdin
  pay <contract-id>                record a payment from JSON on stdin
  cancel-payment <payment-id>      reverse a contract payment
  activate | close | cancel <id>   contract lifecycle
  cash add|subtract <amount> <currency> [description...]
  vouchers                         voucher summary
  audit                            re-check ledger invariants
  archive [YYYY-MM-DD]             export a day of journal rows
  draft "<text>"                   ask the AI drafter for a contract proposal
  rate <currency> [YYYY-MM-DD]     official reference rate`

// Run executes a one-shot CLI command.
// args is os.Args[1:]; the first element is the subcommand name. JSON input
// is read from in, output goes to out.
func Run(ctx context.Context, svc app.ApplicationService, actor core.Actor, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w\n%s", ErrUsage, usage)
	}
	cmd, rest := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "bal", "balances":
		result, err := svc.CashBalances(ctx)
		if err != nil {
			return fmt.Errorf("failed to get balances: %w", err)
		}
		printCashBalances(out, result)

	case "stock":
		kind := ""
		if len(rest) > 0 {
			kind = rest[0]
		}
		entries, err := svc.ListStock(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to list stock: %w", err)
		}
		printStock(out, entries)

	case "contracts":
		q := app.ContractQuery{}
		if len(rest) > 0 {
			q.Status = rest[0]
		}
		result, err := svc.ListContracts(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to list contracts: %w", err)
		}
		printContracts(out, result)

	case "contract":
		id, err := intArg(rest, "contract <id>")
		if err != nil {
			return err
		}
		detail, err := svc.GetContract(ctx, id)
		if err != nil {
			return err
		}
		return writeJSON(out, detail)

	case "farmer":
		id, err := intArg(rest, "farmer <owner-id>")
		if err != nil {
			return err
		}
		result, err := svc.FarmerBalances(ctx, id)
		if err != nil {
			return err
		}
		printFarmerBalances(out, result)

	case "create-contract":
		var req app.CreateContractRequest
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		detail, err := svc.CreateContract(ctx, actor, req)
		if err != nil {
			return fmt.Errorf("create contract failed: %w", err)
		}
		fmt.Fprintf(out, "Contract %d created (%s, %s).\n", detail.ID, detail.Type, detail.Status)

	case "pay":
		id, err := intArg(rest, "pay <contract-id>")
		if err != nil {
			return err
		}
		var req app.PaymentRequest
		if err := json.NewDecoder(in).Decode(&req); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		payment, err := svc.CreatePayment(ctx, actor, id, req)
		if err != nil {
			return fmt.Errorf("payment failed: %w", err)
		}
		fmt.Fprintf(out, "Payment %d recorded: %s UAH.\n", payment.ID, payment.AmountUAH.StringFixed(2))

	case "cancel-payment":
		id, err := intArg(rest, "cancel-payment <payment-id>")
		if err != nil {
			return err
		}
		if _, err := svc.CancelPayment(ctx, actor, id); err != nil {
			return fmt.Errorf("cancel payment failed: %w", err)
		}
		fmt.Fprintf(out, "Payment %d cancelled.\n", id)

	case "activate", "close", "cancel":
		id, err := intArg(rest, cmd+" <contract-id>")
		if err != nil {
			return err
		}
		var contract *core.FarmerContract
		switch cmd {
		case "activate":
			contract, err = svc.ActivateReserve(ctx, actor, id)
		case "close":
			contract, err = svc.CloseContract(ctx, actor, id)
		default:
			contract, err = svc.CancelContract(ctx, actor, id)
		}
		if err != nil {
			return fmt.Errorf("%s failed: %w", cmd, err)
		}
		fmt.Fprintf(out, "Contract %d is now %s.\n", contract.ID, contract.Status)

	case "cash":
		if len(rest) < 3 {
			return fmt.Errorf("%w: cash add|subtract <amount> <currency> [description...]", ErrUsage)
		}
		amount, err := decimal.NewFromString(rest[1])
		if err != nil {
			return fmt.Errorf("%w: invalid amount %q", ErrUsage, rest[1])
		}
		tx, err := svc.UpdateCashBalance(ctx, actor, app.CashUpdateRequest{
			Type:        rest[0],
			Amount:      amount,
			Currency:    rest[2],
			Description: strings.Join(rest[3:], " "),
		})
		if err != nil {
			return fmt.Errorf("cash update failed: %w", err)
		}
		fmt.Fprintf(out, "Cash transaction %d booked.\n", tx.ID)

	case "vouchers":
		summary, err := svc.VoucherSummary(ctx)
		if err != nil {
			return err
		}
		printVoucherSummary(out, summary)

	case "audit":
		report, err := svc.AuditLedger(ctx)
		if err != nil {
			return err
		}
		printAudit(out, report)
		if !report.OK() {
			return ErrAuditFailed
		}

	case "archive":
		day := time.Now()
		if len(rest) > 0 {
			parsed, err := time.Parse("2006-01-02", rest[0])
			if err != nil {
				return fmt.Errorf("%w: day must be YYYY-MM-DD", ErrUsage)
			}
			day = parsed
		}
		key, err := svc.ArchiveDay(ctx, day)
		if err != nil {
			return fmt.Errorf("archive failed: %w", err)
		}
		fmt.Fprintf(out, "Archived to %s\n", key)

	case "draft":
		if len(rest) == 0 {
			return fmt.Errorf("%w: draft \"<text>\"", ErrUsage)
		}
		result, err := svc.DraftContract(ctx, strings.Join(rest, " "))
		if err != nil {
			return fmt.Errorf("draft failed: %w", err)
		}
		if result.NeedsClarification {
			fmt.Fprintln(out, "AI needs clarification:", result.Question)
			return nil
		}
		if result.Warning != "" {
			fmt.Fprintln(out, "WARNING:", result.Warning)
		}
		return writeJSON(out, result.Draft)

	case "rate":
		if len(rest) == 0 {
			return fmt.Errorf("%w: rate <currency> [YYYY-MM-DD]", ErrUsage)
		}
		var on time.Time
		if len(rest) > 1 {
			parsed, err := time.Parse("2006-01-02", rest[1])
			if err != nil {
				return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrUsage)
			}
			on = parsed
		}
		rate, err := svc.ReferenceRate(ctx, rest[0], on)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s (%s, %s)\n", rate.Currency, rate.Rate.String(), rate.Date, rate.Source)

	default:
		return fmt.Errorf("%w: unknown command %s\n%s", ErrUsage, args[0], usage)
	}
	return nil
}

func intArg(args []string, form string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUsage, form)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUsage, form)
	}
	return id, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
