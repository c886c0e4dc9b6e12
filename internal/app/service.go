package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"grain-ledger/internal/ai"
	"grain-ledger/internal/core"
	"grain-ledger/internal/rates"
)

// ApplicationService is the single interface all adapters (CLI, Web, scheduler)
// call. It decouples presentation from the ledger core. Implementations
// contain no display logic of any kind.
//
// Mutating methods take the acting user; it is stamped on every journal row.
type ApplicationService interface {
	// ── Contracts ──

	// CreateContract validates and books a new farmer contract.
	CreateContract(ctx context.Context, actor core.Actor, req CreateContractRequest) (*core.ContractDetail, error)
	// ActivateReserve turns a pending reserve contract into an open debt contract.
	ActivateReserve(ctx context.Context, actor core.Actor, contractID int) (*core.FarmerContract, error)
	// CloseContract closes a contract manually and releases its reservations.
	CloseContract(ctx context.Context, actor core.Actor, contractID int) (*core.FarmerContract, error)
	// CancelContract cancels a contract that has no active payments.
	CancelContract(ctx context.Context, actor core.Actor, contractID int) (*core.FarmerContract, error)
	CreatePayment(ctx context.Context, actor core.Actor, contractID int, req PaymentRequest) (*core.FarmerContractPayment, error)
	// CancelPayment reverses a payment exactly.
	CancelPayment(ctx context.Context, actor core.Actor, paymentID int) (*core.FarmerContractPayment, error)
	GetContract(ctx context.Context, contractID int) (*core.ContractDetail, error)
	ListContracts(ctx context.Context, q ContractQuery) (*ContractListResult, error)
	ListContractPayments(ctx context.Context, contractID int) ([]core.FarmerContractPayment, error)

	// ── Farmers and stock ──

	FarmerBalance(ctx context.Context, ownerID, cultureID int) (decimal.Decimal, error)
	FarmerBalances(ctx context.Context, ownerID int) (*FarmerBalancesResult, error)
	StockSnapshot(ctx context.Context, key StockKeyRequest) (*core.StockEntry, error)
	// ListStock returns entries of kind ("grain", "goods"), or all when kind is empty.
	ListStock(ctx context.Context, kind string) ([]core.StockEntry, error)
	ListStockAdjustments(ctx context.Context, q AdjustmentQuery) ([]core.StockAdjustment, error)
	AdjustStock(ctx context.Context, actor core.Actor, req StockMutationRequest) (*core.StockEntry, error)
	ReserveStock(ctx context.Context, actor core.Actor, req StockMutationRequest) (*core.StockEntry, error)
	ReleaseStock(ctx context.Context, actor core.Actor, req StockMutationRequest) (*core.StockEntry, error)

	// ── Intake, shipments, purchases ──

	RecordIntake(ctx context.Context, actor core.Actor, req IntakeRequest) (*core.IntakeRecord, error)
	ConfirmIntakeQuality(ctx context.Context, actor core.Actor, intakeID int, impurityPercent decimal.Decimal) (*core.IntakeRecord, error)
	ListIntakes(ctx context.Context, f core.IntakeFilter) ([]core.IntakeRecord, error)
	CreateShipment(ctx context.Context, actor core.Actor, req ShipmentRequest) (*core.GrainShipment, error)
	ListShipments(ctx context.Context, cultureID *int) ([]core.GrainShipment, error)
	RecordPurchase(ctx context.Context, actor core.Actor, req PurchaseRequest) (*core.PurchaseRecord, error)
	ListPurchases(ctx context.Context) ([]core.PurchaseRecord, error)

	// ── Cash ──

	CashBalances(ctx context.Context) (*CashBalancesResult, error)
	UpdateCashBalance(ctx context.Context, actor core.Actor, req CashUpdateRequest) (*core.CashTransaction, error)
	// ListCashTransactions returns the newest transactions first.
	ListCashTransactions(ctx context.Context, limit, offset int) ([]core.CashTransaction, error)

	// ── Vouchers ──

	CreateVoucherPayment(ctx context.Context, actor core.Actor, req VoucherPaymentRequest) (*core.VoucherPayment, error)
	CancelVoucherPayment(ctx context.Context, actor core.Actor, paymentID int) (*core.VoucherPayment, error)
	ListVouchers(ctx context.Context, ownerID *int) ([]core.GrainVoucher, error)
	ListVoucherPayments(ctx context.Context) ([]core.VoucherPayment, error)
	VoucherSummary(ctx context.Context) (*core.VoucherSummary, error)

	// ── Reference data ──

	SaveCulture(ctx context.Context, c core.Culture) (*core.Culture, error)
	ListCultures(ctx context.Context) ([]core.Culture, error)
	SaveOwner(ctx context.Context, o core.Owner) (*core.Owner, error)
	ListOwners(ctx context.Context) ([]core.Owner, error)

	// ── Operations ──

	// AuditLedger re-checks every ledger invariant over the whole store.
	AuditLedger(ctx context.Context) (*core.AuditReport, error)
	// ArchiveDay exports the journal rows of day to the archive bucket.
	ArchiveDay(ctx context.Context, day time.Time) (string, error)
	// DraftContract asks the AI drafter for a contract proposal. Nothing is booked.
	DraftContract(ctx context.Context, text string) (*ai.DraftResult, error)
	// ReferenceRate returns the official rate used to prefill exchange-rate fields.
	ReferenceRate(ctx context.Context, currency string, on time.Time) (*rates.Rate, error)
}
