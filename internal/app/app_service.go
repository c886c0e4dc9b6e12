package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grain-ledger/internal/ai"
	"grain-ledger/internal/archive"
	"grain-ledger/internal/core"
	"grain-ledger/internal/metrics"
	"grain-ledger/internal/rates"
)

// ErrArchiveDisabled is returned by ArchiveDay when no bucket is configured.
var ErrArchiveDisabled = errors.New("journal archive is not configured")

type appService struct {
	contracts core.ContractEngine
	vouchers  core.VoucherEngine
	inventory core.InventoryService
	purchases core.PurchaseService
	cash      core.CashService
	refs      core.ReferenceService
	auditor   *core.Auditor

	drafter  ai.Drafter
	rates    rates.Client
	exporter *archive.Exporter
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
// drafter, rateClient, exporter and m may be nil; the matching operations then
// report that the feature is not configured.
func NewAppService(
	rt *core.Runtime,
	drafter ai.Drafter,
	rateClient rates.Client,
	exporter *archive.Exporter,
	m *metrics.Metrics,
) ApplicationService {
	if drafter == nil {
		drafter = ai.Disabled{}
	}
	return &appService{
		contracts: core.NewContractEngine(rt),
		vouchers:  core.NewVoucherEngine(rt),
		inventory: core.NewInventoryService(rt),
		purchases: core.NewPurchaseService(rt),
		cash:      core.NewCashService(rt),
		refs:      core.NewReferenceService(rt),
		auditor:   core.NewAuditor(rt),
		drafter:   drafter,
		rates:     rateClient,
		exporter:  exporter,
		metrics:   m,
		log:       rt.Logger.Named("app"),
	}
}

// observe counts a mutating operation and passes err through.
func (s *appService) observe(operation string, err error) error {
	s.metrics.ObserveOperation(operation, err)
	return err
}

// ── Contracts ────────────────────────────────────────────────────────────────

func (s *appService) CreateContract(ctx context.Context, actor core.Actor, req CreateContractRequest) (*core.ContractDetail, error) {
	in, err := req.toInput()
	if err != nil {
		return nil, s.observe("create_contract", err)
	}
	detail, err := s.contracts.CreateContract(ctx, actor, in)
	return detail, s.observe("create_contract", err)
}

func (s *appService) ActivateReserve(ctx context.Context, actor core.Actor, contractID int) (*core.FarmerContract, error) {
	c, err := s.contracts.ActivateReserve(ctx, actor, contractID)
	return c, s.observe("activate_reserve", err)
}

func (s *appService) CloseContract(ctx context.Context, actor core.Actor, contractID int) (*core.FarmerContract, error) {
	c, err := s.contracts.CloseContract(ctx, actor, contractID)
	return c, s.observe("close_contract", err)
}

func (s *appService) CancelContract(ctx context.Context, actor core.Actor, contractID int) (*core.FarmerContract, error) {
	c, err := s.contracts.CancelContract(ctx, actor, contractID)
	return c, s.observe("cancel_contract", err)
}

func (s *appService) CreatePayment(ctx context.Context, actor core.Actor, contractID int, req PaymentRequest) (*core.FarmerContractPayment, error) {
	pr, err := req.toCore()
	if err != nil {
		return nil, s.observe("create_payment", err)
	}
	p, err := s.contracts.CreatePayment(ctx, actor, contractID, pr)
	return p, s.observe("create_payment", err)
}

func (s *appService) CancelPayment(ctx context.Context, actor core.Actor, paymentID int) (*core.FarmerContractPayment, error) {
	p, err := s.contracts.CancelPayment(ctx, actor, paymentID)
	return p, s.observe("cancel_payment", err)
}

func (s *appService) GetContract(ctx context.Context, contractID int) (*core.ContractDetail, error) {
	return s.contracts.GetContract(ctx, contractID)
}

func (s *appService) ListContracts(ctx context.Context, q ContractQuery) (*ContractListResult, error) {
	f, err := q.toFilter()
	if err != nil {
		return nil, err
	}
	contracts, err := s.contracts.ListContracts(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ContractListResult{Contracts: contracts, Count: len(contracts)}, nil
}

func (s *appService) ListContractPayments(ctx context.Context, contractID int) ([]core.FarmerContractPayment, error) {
	return s.contracts.ListPayments(ctx, contractID)
}

// ── Farmers and stock ────────────────────────────────────────────────────────

func (s *appService) FarmerBalance(ctx context.Context, ownerID, cultureID int) (decimal.Decimal, error) {
	return s.inventory.FarmerBalance(ctx, ownerID, cultureID)
}

func (s *appService) FarmerBalances(ctx context.Context, ownerID int) (*FarmerBalancesResult, error) {
	balances, err := s.inventory.FarmerBalances(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &FarmerBalancesResult{OwnerID: ownerID, Balances: balances}, nil
}

func (s *appService) StockSnapshot(ctx context.Context, req StockKeyRequest) (*core.StockEntry, error) {
	key, err := req.toKey()
	if err != nil {
		return nil, err
	}
	return s.inventory.StockSnapshot(ctx, key)
}

func (s *appService) ListStock(ctx context.Context, kind string) ([]core.StockEntry, error) {
	k := core.StockKind(strings.ToLower(kind))
	if k != "" && k != core.StockGrain && k != core.StockGoods {
		return nil, fmt.Errorf("%w: unknown stock kind %q", core.ErrInvalidItem, kind)
	}
	return s.inventory.ListStock(ctx, k)
}

func (s *appService) ListStockAdjustments(ctx context.Context, q AdjustmentQuery) ([]core.StockAdjustment, error) {
	f := core.AdjustmentFilter{
		Source:     q.Source,
		ContractID: q.ContractID,
		Page:       core.Page{Limit: q.Limit, Offset: q.Offset},
	}
	if q.Key != nil {
		key, err := q.Key.toKey()
		if err != nil {
			return nil, err
		}
		f.Key = &key
	}
	return s.inventory.ListStockAdjustments(ctx, f)
}

func (s *appService) AdjustStock(ctx context.Context, actor core.Actor, req StockMutationRequest) (*core.StockEntry, error) {
	key, err := req.toKey()
	if err != nil {
		return nil, s.observe("adjust_stock", err)
	}
	e, err := s.inventory.AdjustStock(ctx, actor, key, req.Quantity)
	return e, s.observe("adjust_stock", err)
}

func (s *appService) ReserveStock(ctx context.Context, actor core.Actor, req StockMutationRequest) (*core.StockEntry, error) {
	key, err := req.toKey()
	if err != nil {
		return nil, s.observe("reserve_stock", err)
	}
	e, err := s.inventory.ReserveStock(ctx, actor, key, req.Quantity)
	return e, s.observe("reserve_stock", err)
}

func (s *appService) ReleaseStock(ctx context.Context, actor core.Actor, req StockMutationRequest) (*core.StockEntry, error) {
	key, err := req.toKey()
	if err != nil {
		return nil, s.observe("release_stock", err)
	}
	e, err := s.inventory.ReleaseStock(ctx, actor, key, req.Quantity)
	return e, s.observe("release_stock", err)
}

// ── Intake, shipments, purchases ─────────────────────────────────────────────

func (s *appService) RecordIntake(ctx context.Context, actor core.Actor, req IntakeRequest) (*core.IntakeRecord, error) {
	r, err := s.inventory.RecordIntake(ctx, actor, core.IntakeInput{
		OwnerID:         req.OwnerID,
		CultureID:       req.CultureID,
		GrossKg:         req.GrossKg,
		TareKg:          req.TareKg,
		ImpurityPercent: req.ImpurityPercent,
		IsOwnGrain:      req.IsOwnGrain,
		PendingQuality:  req.PendingQuality,
		Note:            req.Note,
	})
	return r, s.observe("record_intake", err)
}

func (s *appService) ConfirmIntakeQuality(ctx context.Context, actor core.Actor, intakeID int, impurityPercent decimal.Decimal) (*core.IntakeRecord, error) {
	r, err := s.inventory.ConfirmIntakeQuality(ctx, actor, intakeID, impurityPercent)
	return r, s.observe("confirm_intake_quality", err)
}

func (s *appService) ListIntakes(ctx context.Context, f core.IntakeFilter) ([]core.IntakeRecord, error) {
	return s.inventory.ListIntakes(ctx, f)
}

func (s *appService) CreateShipment(ctx context.Context, actor core.Actor, req ShipmentRequest) (*core.GrainShipment, error) {
	sh, err := s.inventory.CreateShipment(ctx, actor, req.CultureID, req.QuantityKg, req.Destination)
	return sh, s.observe("create_shipment", err)
}

func (s *appService) ListShipments(ctx context.Context, cultureID *int) ([]core.GrainShipment, error) {
	return s.inventory.ListShipments(ctx, cultureID)
}

func (s *appService) RecordPurchase(ctx context.Context, actor core.Actor, req PurchaseRequest) (*core.PurchaseRecord, error) {
	currency, err := core.ParseCurrency(strings.ToUpper(req.Currency))
	if err != nil {
		return nil, s.observe("record_purchase", err)
	}
	p, err := s.purchases.RecordPurchase(ctx, actor, core.PurchaseInput{
		Name:           req.Name,
		Category:       req.Category,
		QuantityKg:     req.QuantityKg,
		PricePerKg:     req.PricePerKg,
		Currency:       currency,
		SalePricePerKg: req.SalePricePerKg,
	})
	return p, s.observe("record_purchase", err)
}

func (s *appService) ListPurchases(ctx context.Context) ([]core.PurchaseRecord, error) {
	return s.purchases.ListPurchases(ctx)
}

// ── Cash ─────────────────────────────────────────────────────────────────────

func (s *appService) CashBalances(ctx context.Context) (*CashBalancesResult, error) {
	reg, err := s.cash.Balances(ctx)
	if err != nil {
		return nil, err
	}
	result := &CashBalancesResult{Register: reg.Name, UpdatedAt: reg.UpdatedAt}
	for _, c := range core.Currencies {
		result.Balances = append(result.Balances, CurrencyBalance{Currency: c, Amount: reg.Balance(c)})
	}
	return result, nil
}

func (s *appService) UpdateCashBalance(ctx context.Context, actor core.Actor, req CashUpdateRequest) (*core.CashTransaction, error) {
	currency, err := core.ParseCurrency(strings.ToUpper(req.Currency))
	if err != nil {
		return nil, s.observe("update_cash_balance", err)
	}
	t, err := s.cash.UpdateBalance(ctx, actor, currency, core.TransactionType(strings.ToLower(req.Type)), req.Amount, req.Description)
	return t, s.observe("update_cash_balance", err)
}

func (s *appService) ListCashTransactions(ctx context.Context, limit, offset int) ([]core.CashTransaction, error) {
	return s.cash.ListTransactions(ctx, core.Page{Limit: limit, Offset: offset})
}

// ── Vouchers ─────────────────────────────────────────────────────────────────

func (s *appService) CreateVoucherPayment(ctx context.Context, actor core.Actor, req VoucherPaymentRequest) (*core.VoucherPayment, error) {
	currency, err := core.ParseCurrency(strings.ToUpper(req.Currency))
	if err != nil {
		return nil, s.observe("create_voucher_payment", err)
	}
	p, err := s.vouchers.CreatePayment(ctx, actor, req.Amount, currency, req.ExchangeRate, req.Description)
	return p, s.observe("create_voucher_payment", err)
}

func (s *appService) CancelVoucherPayment(ctx context.Context, actor core.Actor, paymentID int) (*core.VoucherPayment, error) {
	p, err := s.vouchers.CancelPayment(ctx, actor, paymentID)
	return p, s.observe("cancel_voucher_payment", err)
}

func (s *appService) ListVouchers(ctx context.Context, ownerID *int) ([]core.GrainVoucher, error) {
	return s.vouchers.ListVouchers(ctx, ownerID)
}

func (s *appService) ListVoucherPayments(ctx context.Context) ([]core.VoucherPayment, error) {
	return s.vouchers.ListPayments(ctx)
}

func (s *appService) VoucherSummary(ctx context.Context) (*core.VoucherSummary, error) {
	return s.vouchers.Summary(ctx)
}

// ── Reference data ───────────────────────────────────────────────────────────

func (s *appService) SaveCulture(ctx context.Context, c core.Culture) (*core.Culture, error) {
	saved, err := s.refs.SaveCulture(ctx, c)
	return saved, s.observe("save_culture", err)
}

func (s *appService) ListCultures(ctx context.Context) ([]core.Culture, error) {
	return s.refs.ListCultures(ctx)
}

func (s *appService) SaveOwner(ctx context.Context, o core.Owner) (*core.Owner, error) {
	saved, err := s.refs.SaveOwner(ctx, o)
	return saved, s.observe("save_owner", err)
}

func (s *appService) ListOwners(ctx context.Context) ([]core.Owner, error) {
	return s.refs.ListOwners(ctx)
}

// ── Operations ───────────────────────────────────────────────────────────────

func (s *appService) AuditLedger(ctx context.Context) (*core.AuditReport, error) {
	report, err := s.auditor.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetAuditViolations(len(report.Violations))
	return report, nil
}

func (s *appService) ArchiveDay(ctx context.Context, day time.Time) (string, error) {
	if s.exporter == nil {
		return "", ErrArchiveDisabled
	}
	return s.exporter.ExportDay(ctx, journalSource{s}, day)
}

// journalSource exposes the unpaged journal queries the exporter needs.
type journalSource struct{ s *appService }

func (j journalSource) ListStockAdjustments(ctx context.Context, f core.AdjustmentFilter) ([]core.StockAdjustment, error) {
	return j.s.inventory.ListStockAdjustments(ctx, f)
}

func (j journalSource) ListCashTransactions(ctx context.Context, p core.Page) ([]core.CashTransaction, error) {
	return j.s.cash.ListTransactions(ctx, p)
}

func (s *appService) DraftContract(ctx context.Context, text string) (*ai.DraftResult, error) {
	cultures, err := s.refs.ListCultures(ctx)
	if err != nil {
		return nil, err
	}
	owners, err := s.refs.ListOwners(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.drafter.DraftContract(ctx, text, ai.Catalog{Cultures: cultures, Owners: owners})
	if err != nil {
		return nil, err
	}
	if result.Warning != "" {
		s.log.Debug("contract draft does not resolve", zap.String("warning", result.Warning))
	}
	return result, nil
}

func (s *appService) ReferenceRate(ctx context.Context, currency string, on time.Time) (*rates.Rate, error) {
	if s.rates == nil {
		return nil, errors.New("reference rates are not configured")
	}
	if on.IsZero() {
		on = time.Now()
	}
	return s.rates.Rate(ctx, core.Currency(strings.ToUpper(currency)), on)
}
