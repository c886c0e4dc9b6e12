package memory

import (
	"context"
	"fmt"
	"sort"

	"grain-ledger/internal/core"
)

type transaction struct {
	state    *Snapshot
	readOnly bool
}

func (t *transaction) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *transaction) next(seq string) int {
	t.state.Sequences[seq]++
	return t.state.Sequences[seq]
}

func missing(entity string, id any) error {
	return fmt.Errorf("%w: %s %v", core.ErrNotFound, entity, id)
}

// sortedValues returns the map values ordered by id.
func sortedValues[V any](m map[int]V) []V {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// ── Reference ────────────────────────────────────────────────────────────────

func (t *transaction) GetCulture(_ context.Context, id int) (*core.Culture, error) {
	c, ok := t.state.Cultures[id]
	if !ok {
		return nil, missing("culture", id)
	}
	return &c, nil
}

func (t *transaction) ListCultures(context.Context) ([]core.Culture, error) {
	return sortedValues(t.state.Cultures), nil
}

func (t *transaction) SaveCulture(_ context.Context, c *core.Culture) error {
	if err := t.writable(); err != nil {
		return err
	}
	if c.ID == 0 {
		c.ID = t.next("cultures")
	}
	t.state.Cultures[c.ID] = *c
	return nil
}

func (t *transaction) GetOwner(_ context.Context, id int) (*core.Owner, error) {
	o, ok := t.state.Owners[id]
	if !ok {
		return nil, missing("owner", id)
	}
	return &o, nil
}

func (t *transaction) ListOwners(context.Context) ([]core.Owner, error) {
	return sortedValues(t.state.Owners), nil
}

func (t *transaction) SaveOwner(_ context.Context, o *core.Owner) error {
	if err := t.writable(); err != nil {
		return err
	}
	if o.ID == 0 {
		o.ID = t.next("owners")
	}
	t.state.Owners[o.ID] = *o
	return nil
}

// ── Stock ────────────────────────────────────────────────────────────────────

func (t *transaction) FindStock(_ context.Context, key core.StockKey) (*core.StockEntry, error) {
	for _, e := range t.state.Stock {
		if e.Key == key {
			e := e
			return &e, nil
		}
	}
	return nil, missing("stock", key)
}

func (t *transaction) InsertStock(_ context.Context, e *core.StockEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, existing := range t.state.Stock {
		if existing.Key == e.Key {
			return fmt.Errorf("stock %s already exists", e.Key)
		}
	}
	e.ID = t.next("stock")
	t.state.Stock[e.ID] = *e
	return nil
}

func (t *transaction) UpdateStock(_ context.Context, e *core.StockEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.Stock[e.ID]; !ok {
		return missing("stock", e.ID)
	}
	t.state.Stock[e.ID] = *e
	return nil
}

func (t *transaction) ListStock(_ context.Context, kind core.StockKind) ([]core.StockEntry, error) {
	var out []core.StockEntry
	for _, e := range sortedValues(t.state.Stock) {
		if kind == "" || e.Key.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *transaction) AppendStockAdjustment(_ context.Context, a *core.StockAdjustment) error {
	if err := t.writable(); err != nil {
		return err
	}
	a.ID = t.next("adjustments")
	t.state.Adjustments = append(t.state.Adjustments, *a)
	return nil
}

func (t *transaction) ListStockAdjustments(_ context.Context, f core.AdjustmentFilter) ([]core.StockAdjustment, error) {
	var out []core.StockAdjustment
	for i := range t.state.Adjustments {
		if f.Matches(&t.state.Adjustments[i]) {
			out = append(out, t.state.Adjustments[i])
		}
	}
	return core.Paginate(f.Page, out), nil
}

// ── Cash ─────────────────────────────────────────────────────────────────────

func (t *transaction) GetCashRegister(_ context.Context, name string) (*core.CashRegister, error) {
	r, ok := t.state.Registers[name]
	if !ok {
		return nil, missing("cash register", name)
	}
	return &r, nil
}

func (t *transaction) SaveCashRegister(_ context.Context, r *core.CashRegister) error {
	if err := t.writable(); err != nil {
		return err
	}
	if r.ID == 0 {
		if existing, ok := t.state.Registers[r.Name]; ok {
			r.ID = existing.ID
		} else {
			r.ID = t.next("registers")
		}
	}
	t.state.Registers[r.Name] = *r
	return nil
}

func (t *transaction) AppendCashTransaction(_ context.Context, ct *core.CashTransaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	ct.ID = t.next("cash_transactions")
	t.state.CashTransactions = append(t.state.CashTransactions, *ct)
	return nil
}

func (t *transaction) ListCashTransactions(_ context.Context, register string, p core.Page) ([]core.CashTransaction, error) {
	var out []core.CashTransaction
	for i := len(t.state.CashTransactions) - 1; i >= 0; i-- {
		if ct := t.state.CashTransactions[i]; ct.Register == register {
			out = append(out, ct)
		}
	}
	return core.Paginate(p, out), nil
}

// ── Intake, deductions, shipments, purchases ─────────────────────────────────

func (t *transaction) InsertIntake(_ context.Context, r *core.IntakeRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	r.ID = t.next("intakes")
	t.state.Intakes[r.ID] = *r
	return nil
}

func (t *transaction) UpdateIntake(_ context.Context, r *core.IntakeRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.Intakes[r.ID]; !ok {
		return missing("intake", r.ID)
	}
	t.state.Intakes[r.ID] = *r
	return nil
}

func (t *transaction) GetIntake(_ context.Context, id int) (*core.IntakeRecord, error) {
	r, ok := t.state.Intakes[id]
	if !ok {
		return nil, missing("intake", id)
	}
	return &r, nil
}

func (t *transaction) ListIntakes(_ context.Context, f core.IntakeFilter) ([]core.IntakeRecord, error) {
	var out []core.IntakeRecord
	for _, r := range sortedValues(t.state.Intakes) {
		if f.Matches(&r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *transaction) InsertDeduction(_ context.Context, d *core.GrainDeduction) error {
	if err := t.writable(); err != nil {
		return err
	}
	d.ID = t.next("deductions")
	t.state.Deductions[d.ID] = *d
	return nil
}

func (t *transaction) DeleteDeductionsByPayment(_ context.Context, paymentID int) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, d := range t.state.Deductions {
		if d.PaymentID != nil && *d.PaymentID == paymentID {
			delete(t.state.Deductions, id)
			n++
		}
	}
	return n, nil
}

func (t *transaction) ListDeductions(_ context.Context, f core.DeductionFilter) ([]core.GrainDeduction, error) {
	var out []core.GrainDeduction
	for _, d := range sortedValues(t.state.Deductions) {
		if f.Matches(&d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (t *transaction) InsertShipment(_ context.Context, s *core.GrainShipment) error {
	if err := t.writable(); err != nil {
		return err
	}
	s.ID = t.next("shipments")
	t.state.Shipments = append(t.state.Shipments, *s)
	return nil
}

func (t *transaction) ListShipments(_ context.Context, cultureID *int) ([]core.GrainShipment, error) {
	var out []core.GrainShipment
	for _, s := range t.state.Shipments {
		if cultureID == nil || s.CultureID == *cultureID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *transaction) InsertPurchase(_ context.Context, p *core.PurchaseRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	p.ID = t.next("purchases")
	t.state.Purchases = append(t.state.Purchases, *p)
	return nil
}

func (t *transaction) ListPurchases(context.Context) ([]core.PurchaseRecord, error) {
	return cloneSlice(t.state.Purchases), nil
}

// ── Contracts ────────────────────────────────────────────────────────────────

func (t *transaction) InsertContract(_ context.Context, c *core.FarmerContract) error {
	if err := t.writable(); err != nil {
		return err
	}
	c.ID = t.next("contracts")
	t.state.Contracts[c.ID] = *c
	return nil
}

func (t *transaction) UpdateContract(_ context.Context, c *core.FarmerContract) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.Contracts[c.ID]; !ok {
		return missing("contract", c.ID)
	}
	t.state.Contracts[c.ID] = *c
	return nil
}

func (t *transaction) GetContract(_ context.Context, id int) (*core.FarmerContract, error) {
	c, ok := t.state.Contracts[id]
	if !ok {
		return nil, missing("contract", id)
	}
	return &c, nil
}

func (t *transaction) ListContracts(_ context.Context, f core.ContractFilter) ([]core.FarmerContract, error) {
	var out []core.FarmerContract
	for _, c := range sortedValues(t.state.Contracts) {
		if f.Matches(&c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *transaction) InsertContractItem(_ context.Context, i *core.FarmerContractItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	i.ID = t.next("items")
	t.state.Items[i.ID] = *i
	return nil
}

func (t *transaction) UpdateContractItem(_ context.Context, i *core.FarmerContractItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.Items[i.ID]; !ok {
		return missing("contract item", i.ID)
	}
	t.state.Items[i.ID] = *i
	return nil
}

func (t *transaction) ListContractItems(_ context.Context, contractID int) ([]core.FarmerContractItem, error) {
	var out []core.FarmerContractItem
	for _, i := range sortedValues(t.state.Items) {
		if i.ContractID == contractID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (t *transaction) InsertContractPayment(_ context.Context, p *core.FarmerContractPayment) error {
	if err := t.writable(); err != nil {
		return err
	}
	p.ID = t.next("payments")
	t.state.Payments[p.ID] = *p
	return nil
}

func (t *transaction) UpdateContractPayment(_ context.Context, p *core.FarmerContractPayment) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.Payments[p.ID]; !ok {
		return missing("payment", p.ID)
	}
	t.state.Payments[p.ID] = *p
	return nil
}

func (t *transaction) GetContractPayment(_ context.Context, id int) (*core.FarmerContractPayment, error) {
	p, ok := t.state.Payments[id]
	if !ok {
		return nil, missing("payment", id)
	}
	return &p, nil
}

func (t *transaction) ListContractPayments(_ context.Context, contractID int) ([]core.FarmerContractPayment, error) {
	var out []core.FarmerContractPayment
	for _, p := range sortedValues(t.state.Payments) {
		if p.ContractID == contractID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ── Vouchers ─────────────────────────────────────────────────────────────────

func (t *transaction) InsertVoucher(_ context.Context, v *core.GrainVoucher) error {
	if err := t.writable(); err != nil {
		return err
	}
	v.ID = t.next("vouchers")
	t.state.Vouchers[v.ID] = *v
	return nil
}

func (t *transaction) UpdateVoucher(_ context.Context, v *core.GrainVoucher) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.Vouchers[v.ID]; !ok {
		return missing("voucher", v.ID)
	}
	t.state.Vouchers[v.ID] = *v
	return nil
}

func (t *transaction) ListVouchers(context.Context) ([]core.GrainVoucher, error) {
	out := sortedValues(t.state.Vouchers)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *transaction) InsertVoucherPayment(_ context.Context, p *core.VoucherPayment) error {
	if err := t.writable(); err != nil {
		return err
	}
	p.ID = t.next("voucher_payments")
	t.state.VoucherPayments[p.ID] = *p
	return nil
}

func (t *transaction) UpdateVoucherPayment(_ context.Context, p *core.VoucherPayment) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.VoucherPayments[p.ID]; !ok {
		return missing("voucher payment", p.ID)
	}
	t.state.VoucherPayments[p.ID] = *p
	return nil
}

func (t *transaction) GetVoucherPayment(_ context.Context, id int) (*core.VoucherPayment, error) {
	p, ok := t.state.VoucherPayments[id]
	if !ok {
		return nil, missing("voucher payment", id)
	}
	return &p, nil
}

func (t *transaction) ListVoucherPayments(context.Context) ([]core.VoucherPayment, error) {
	return sortedValues(t.state.VoucherPayments), nil
}
