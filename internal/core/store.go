package core

import "context"

// Store is the storage port of the ledger. RunInTx executes fn atomically:
// every write made through tx commits together or not at all. View runs fn
// against a consistent read-only snapshot.
//
// Implementations: internal/store/memory, internal/store/sqlite and
// internal/store/postgres.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of repositories visible inside one transaction.
// Getters return ErrNotFound (wrapped) for unknown ids. Insert methods assign
// the ID of the passed record. Returned records are copies owned by the caller.
type Tx interface {
	ReferenceRepository
	StockRepository
	CashRepository
	IntakeRepository
	ContractRepository
	VoucherRepository
}

type ReferenceRepository interface {
	GetCulture(ctx context.Context, id int) (*Culture, error)
	ListCultures(ctx context.Context) ([]Culture, error)
	SaveCulture(ctx context.Context, c *Culture) error
	GetOwner(ctx context.Context, id int) (*Owner, error)
	ListOwners(ctx context.Context) ([]Owner, error)
	SaveOwner(ctx context.Context, o *Owner) error
}

type StockRepository interface {
	// FindStock locks and returns the entry for key, or ErrNotFound.
	FindStock(ctx context.Context, key StockKey) (*StockEntry, error)
	InsertStock(ctx context.Context, e *StockEntry) error
	UpdateStock(ctx context.Context, e *StockEntry) error
	// ListStock returns entries of kind, or all entries when kind is empty.
	ListStock(ctx context.Context, kind StockKind) ([]StockEntry, error)
	AppendStockAdjustment(ctx context.Context, a *StockAdjustment) error
	ListStockAdjustments(ctx context.Context, f AdjustmentFilter) ([]StockAdjustment, error)
}

type CashRepository interface {
	// GetCashRegister locks and returns the named register, or ErrNotFound.
	GetCashRegister(ctx context.Context, name string) (*CashRegister, error)
	SaveCashRegister(ctx context.Context, r *CashRegister) error
	AppendCashTransaction(ctx context.Context, t *CashTransaction) error
	// ListCashTransactions returns the newest transactions first.
	ListCashTransactions(ctx context.Context, register string, p Page) ([]CashTransaction, error)
}

type IntakeRepository interface {
	InsertIntake(ctx context.Context, r *IntakeRecord) error
	UpdateIntake(ctx context.Context, r *IntakeRecord) error
	GetIntake(ctx context.Context, id int) (*IntakeRecord, error)
	ListIntakes(ctx context.Context, f IntakeFilter) ([]IntakeRecord, error)
	InsertDeduction(ctx context.Context, d *GrainDeduction) error
	// DeleteDeductionsByPayment removes the deductions linked to a payment and
	// returns how many were removed.
	DeleteDeductionsByPayment(ctx context.Context, paymentID int) (int, error)
	ListDeductions(ctx context.Context, f DeductionFilter) ([]GrainDeduction, error)
	InsertShipment(ctx context.Context, s *GrainShipment) error
	ListShipments(ctx context.Context, cultureID *int) ([]GrainShipment, error)
	InsertPurchase(ctx context.Context, p *PurchaseRecord) error
	ListPurchases(ctx context.Context) ([]PurchaseRecord, error)
}

type ContractRepository interface {
	InsertContract(ctx context.Context, c *FarmerContract) error
	UpdateContract(ctx context.Context, c *FarmerContract) error
	GetContract(ctx context.Context, id int) (*FarmerContract, error)
	ListContracts(ctx context.Context, f ContractFilter) ([]FarmerContract, error)
	InsertContractItem(ctx context.Context, i *FarmerContractItem) error
	UpdateContractItem(ctx context.Context, i *FarmerContractItem) error
	ListContractItems(ctx context.Context, contractID int) ([]FarmerContractItem, error)
	InsertContractPayment(ctx context.Context, p *FarmerContractPayment) error
	UpdateContractPayment(ctx context.Context, p *FarmerContractPayment) error
	GetContractPayment(ctx context.Context, id int) (*FarmerContractPayment, error)
	ListContractPayments(ctx context.Context, contractID int) ([]FarmerContractPayment, error)
}

type VoucherRepository interface {
	InsertVoucher(ctx context.Context, v *GrainVoucher) error
	UpdateVoucher(ctx context.Context, v *GrainVoucher) error
	// ListVouchers returns vouchers in creation order.
	ListVouchers(ctx context.Context) ([]GrainVoucher, error)
	InsertVoucherPayment(ctx context.Context, p *VoucherPayment) error
	UpdateVoucherPayment(ctx context.Context, p *VoucherPayment) error
	GetVoucherPayment(ctx context.Context, id int) (*VoucherPayment, error)
	ListVoucherPayments(ctx context.Context) ([]VoucherPayment, error)
}

// Page limits list queries. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Paginate slices a result set already ordered by the caller.
func Paginate[T any](p Page, rows []T) []T {
	if p.Offset > 0 {
		if p.Offset >= len(rows) {
			return nil
		}
		rows = rows[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(rows) {
		rows = rows[:p.Limit]
	}
	return rows
}

// AdjustmentFilter narrows ListStockAdjustments.
type AdjustmentFilter struct {
	Key        *StockKey
	Source     string
	ContractID *int
	Page       Page
}

// Matches reports whether a passes the filter, ignoring paging.
func (f AdjustmentFilter) Matches(a *StockAdjustment) bool {
	if f.Key != nil && a.StockKey != *f.Key {
		return false
	}
	if f.Source != "" && a.Source != f.Source {
		return false
	}
	if f.ContractID != nil && (a.ContractID == nil || *a.ContractID != *f.ContractID) {
		return false
	}
	return true
}

// IntakeFilter narrows ListIntakes.
type IntakeFilter struct {
	OwnerID        *int
	CultureID      *int
	PendingQuality *bool
}

// Matches reports whether r passes the filter.
func (f IntakeFilter) Matches(r *IntakeRecord) bool {
	if f.OwnerID != nil && (r.OwnerID == nil || *r.OwnerID != *f.OwnerID) {
		return false
	}
	if f.CultureID != nil && r.CultureID != *f.CultureID {
		return false
	}
	if f.PendingQuality != nil && r.PendingQuality != *f.PendingQuality {
		return false
	}
	return true
}

// DeductionFilter narrows ListDeductions.
type DeductionFilter struct {
	OwnerID   *int
	CultureID *int
	PaymentID *int
}

// Matches reports whether d passes the filter.
func (f DeductionFilter) Matches(d *GrainDeduction) bool {
	if f.OwnerID != nil && d.OwnerID != *f.OwnerID {
		return false
	}
	if f.CultureID != nil && d.CultureID != *f.CultureID {
		return false
	}
	if f.PaymentID != nil && (d.PaymentID == nil || *d.PaymentID != *f.PaymentID) {
		return false
	}
	return true
}
