package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"grain-ledger/internal/core"
)

var errReadOnly = errors.New("postgres store: write in read-only view")

type transaction struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *transaction) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// forUpdate is appended to row reads that the unit of work will modify.
func (t *transaction) forUpdate() string {
	if t.readOnly {
		return ""
	}
	return " FOR UPDATE"
}

// ── Reference ────────────────────────────────────────────────────────────────

func scanCulture(row scanner) (core.Culture, error) {
	var c core.Culture
	err := row.Scan(&c.ID, &c.Name, &c.PricePerKg)
	return c, err
}

func (t *transaction) GetCulture(ctx context.Context, id int) (*core.Culture, error) {
	c, err := scanCulture(t.tx.QueryRow(ctx, "SELECT id, name, price_per_kg FROM cultures WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "culture", id)
	}
	return &c, nil
}

func (t *transaction) ListCultures(ctx context.Context) ([]core.Culture, error) {
	rows, err := t.tx.Query(ctx, "SELECT id, name, price_per_kg FROM cultures ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query cultures: %w", err)
	}
	return collect(rows, scanCulture)
}

func (t *transaction) SaveCulture(ctx context.Context, c *core.Culture) error {
	if err := t.writable(); err != nil {
		return err
	}
	if c.ID == 0 {
		return t.tx.QueryRow(ctx, "INSERT INTO cultures (name, price_per_kg) VALUES ($1, $2) RETURNING id",
			c.Name, c.PricePerKg).Scan(&c.ID)
	}
	_, err := t.tx.Exec(ctx, "UPDATE cultures SET name = $2, price_per_kg = $3 WHERE id = $1", c.ID, c.Name, c.PricePerKg)
	return err
}

func scanOwner(row scanner) (core.Owner, error) {
	var o core.Owner
	err := row.Scan(&o.ID, &o.FullName, &o.Phone)
	return o, err
}

func (t *transaction) GetOwner(ctx context.Context, id int) (*core.Owner, error) {
	o, err := scanOwner(t.tx.QueryRow(ctx, "SELECT id, full_name, phone FROM owners WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "owner", id)
	}
	return &o, nil
}

func (t *transaction) ListOwners(ctx context.Context) ([]core.Owner, error) {
	rows, err := t.tx.Query(ctx, "SELECT id, full_name, phone FROM owners ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	return collect(rows, scanOwner)
}

func (t *transaction) SaveOwner(ctx context.Context, o *core.Owner) error {
	if err := t.writable(); err != nil {
		return err
	}
	if o.ID == 0 {
		return t.tx.QueryRow(ctx, "INSERT INTO owners (full_name, phone) VALUES ($1, $2) RETURNING id",
			o.FullName, o.Phone).Scan(&o.ID)
	}
	_, err := t.tx.Exec(ctx, "UPDATE owners SET full_name = $2, phone = $3 WHERE id = $1", o.ID, o.FullName, o.Phone)
	return err
}

// ── Stock ────────────────────────────────────────────────────────────────────

const stockColumns = `id, kind, culture_id, name, category, display_name,
	total_kg, own_kg, farmer_kg, reserved_kg, sale_price_per_kg, updated_at`

func scanStock(row scanner) (core.StockEntry, error) {
	var e core.StockEntry
	err := row.Scan(&e.ID, &e.Key.Kind, &e.Key.CultureID, &e.Key.Name, &e.Key.Category, &e.DisplayName,
		&e.TotalKg, &e.OwnKg, &e.FarmerKg, &e.ReservedKg, &e.SalePricePerKg, &e.UpdatedAt)
	return e, err
}

func (t *transaction) FindStock(ctx context.Context, key core.StockKey) (*core.StockEntry, error) {
	e, err := scanStock(t.tx.QueryRow(ctx,
		"SELECT "+stockColumns+" FROM stock_entries WHERE kind = $1 AND culture_id = $2 AND name = $3 AND category = $4"+t.forUpdate(),
		key.Kind, key.CultureID, key.Name, key.Category))
	if err != nil {
		return nil, notFound(err, "stock", key)
	}
	return &e, nil
}

func (t *transaction) InsertStock(ctx context.Context, e *core.StockEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_entries (kind, culture_id, name, category, display_name,
			total_kg, own_kg, farmer_kg, reserved_kg, sale_price_per_kg, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		e.Key.Kind, e.Key.CultureID, e.Key.Name, e.Key.Category, e.DisplayName,
		e.TotalKg, e.OwnKg, e.FarmerKg, e.ReservedKg, e.SalePricePerKg, e.UpdatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert stock %s: %w", e.Key, err)
	}
	return nil
}

func (t *transaction) UpdateStock(ctx context.Context, e *core.StockEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE stock_entries SET display_name = $2, total_kg = $3, own_kg = $4, farmer_kg = $5,
			reserved_kg = $6, sale_price_per_kg = $7, updated_at = $8
		WHERE id = $1`,
		e.ID, e.DisplayName, e.TotalKg, e.OwnKg, e.FarmerKg, e.ReservedKg, e.SalePricePerKg, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update stock %s: %w", e.Key, err)
	}
	return nil
}

func (t *transaction) ListStock(ctx context.Context, kind core.StockKind) ([]core.StockEntry, error) {
	var w where
	if kind != "" {
		w.add("kind = $%d", kind)
	}
	rows, err := t.tx.Query(ctx, "SELECT "+stockColumns+" FROM stock_entries"+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock: %w", err)
	}
	return collect(rows, scanStock)
}

const adjustmentColumns = `id, kind, culture_id, name, category, item_name, counter, transaction_type,
	amount, quantity_before, quantity_after, source, destination, contract_id, payment_id,
	user_id, user_full_name, created_at`

func scanAdjustment(row scanner) (core.StockAdjustment, error) {
	var a core.StockAdjustment
	err := row.Scan(&a.ID, &a.StockKey.Kind, &a.StockKey.CultureID, &a.StockKey.Name, &a.StockKey.Category,
		&a.ItemName, &a.Counter, &a.Type, &a.Amount, &a.Before, &a.After, &a.Source, &a.Destination,
		&a.ContractID, &a.PaymentID, &a.ActorID, &a.ActorName, &a.CreatedAt)
	return a, err
}

func (t *transaction) AppendStockAdjustment(ctx context.Context, a *core.StockAdjustment) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_adjustments (kind, culture_id, name, category, item_name, counter, transaction_type,
			amount, quantity_before, quantity_after, source, destination, contract_id, payment_id,
			user_id, user_full_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		a.StockKey.Kind, a.StockKey.CultureID, a.StockKey.Name, a.StockKey.Category, a.ItemName, a.Counter, a.Type,
		a.Amount, a.Before, a.After, a.Source, a.Destination, a.ContractID, a.PaymentID,
		a.ActorID, a.ActorName, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to append stock adjustment: %w", err)
	}
	return nil
}

func (t *transaction) ListStockAdjustments(ctx context.Context, f core.AdjustmentFilter) ([]core.StockAdjustment, error) {
	var w where
	if f.Key != nil {
		w.add("kind = $%d", f.Key.Kind)
		w.add("culture_id = $%d", f.Key.CultureID)
		w.add("name = $%d", f.Key.Name)
		w.add("category = $%d", f.Key.Category)
	}
	if f.Source != "" {
		w.add("source = $%d", f.Source)
	}
	if f.ContractID != nil {
		w.add("contract_id = $%d", *f.ContractID)
	}
	query := "SELECT " + adjustmentColumns + " FROM stock_adjustments" + w.String() + " ORDER BY id"
	query += w.page(f.Page)
	rows, err := t.tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock adjustments: %w", err)
	}
	return collect(rows, scanAdjustment)
}

// ── Cash ─────────────────────────────────────────────────────────────────────

func (t *transaction) GetCashRegister(ctx context.Context, name string) (*core.CashRegister, error) {
	var r core.CashRegister
	err := t.tx.QueryRow(ctx,
		"SELECT id, name, uah, usd, eur, updated_at FROM cash_registers WHERE name = $1"+t.forUpdate(), name).
		Scan(&r.ID, &r.Name, &r.UAH, &r.USD, &r.EUR, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "cash register", name)
	}
	return &r, nil
}

func (t *transaction) SaveCashRegister(ctx context.Context, r *core.CashRegister) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cash_registers (name, uah, usd, eur, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET uah = excluded.uah, usd = excluded.usd, eur = excluded.eur,
			updated_at = excluded.updated_at
		RETURNING id`,
		r.Name, r.UAH, r.USD, r.EUR, r.UpdatedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to save cash register %q: %w", r.Name, err)
	}
	return nil
}

func (t *transaction) AppendCashTransaction(ctx context.Context, ct *core.CashTransaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO cash_transactions (register, currency, amount, transaction_type, description,
			uah_balance_after, usd_balance_after, eur_balance_after, user_id, user_full_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		ct.Register, ct.Currency, ct.Amount, ct.Type, ct.Description,
		ct.UAHAfter, ct.USDAfter, ct.EURAfter, ct.ActorID, ct.ActorName, ct.CreatedAt).Scan(&ct.ID)
	if err != nil {
		return fmt.Errorf("failed to append cash transaction: %w", err)
	}
	return nil
}

func scanCashTransaction(row scanner) (core.CashTransaction, error) {
	var ct core.CashTransaction
	err := row.Scan(&ct.ID, &ct.Register, &ct.Currency, &ct.Amount, &ct.Type, &ct.Description,
		&ct.UAHAfter, &ct.USDAfter, &ct.EURAfter, &ct.ActorID, &ct.ActorName, &ct.CreatedAt)
	return ct, err
}

func (t *transaction) ListCashTransactions(ctx context.Context, register string, p core.Page) ([]core.CashTransaction, error) {
	var w where
	w.add("register = $%d", register)
	query := `SELECT id, register, currency, amount, transaction_type, description,
		uah_balance_after, usd_balance_after, eur_balance_after, user_id, user_full_name, created_at
		FROM cash_transactions` + w.String() + " ORDER BY id DESC"
	query += w.page(p)
	rows, err := t.tx.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash transactions: %w", err)
	}
	return collect(rows, scanCashTransaction)
}

// ── Intake, deductions, shipments, purchases ─────────────────────────────────

const intakeColumns = `id, owner_id, culture_id, gross_weight_kg, tare_weight_kg, net_weight_kg,
	impurity_percent, accepted_weight_kg, is_own_grain, pending_quality, note, created_by_user_id, created_at`

func scanIntake(row scanner) (core.IntakeRecord, error) {
	var r core.IntakeRecord
	err := row.Scan(&r.ID, &r.OwnerID, &r.CultureID, &r.GrossKg, &r.TareKg, &r.NetKg,
		&r.ImpurityPercent, &r.AcceptedKg, &r.IsOwnGrain, &r.PendingQuality, &r.Note, &r.ActorID, &r.CreatedAt)
	return r, err
}

func (t *transaction) InsertIntake(ctx context.Context, r *core.IntakeRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO grain_intakes (owner_id, culture_id, gross_weight_kg, tare_weight_kg, net_weight_kg,
			impurity_percent, accepted_weight_kg, is_own_grain, pending_quality, note, created_by_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		r.OwnerID, r.CultureID, r.GrossKg, r.TareKg, r.NetKg,
		r.ImpurityPercent, r.AcceptedKg, r.IsOwnGrain, r.PendingQuality, r.Note, r.ActorID, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to insert intake: %w", err)
	}
	return nil
}

func (t *transaction) UpdateIntake(ctx context.Context, r *core.IntakeRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE grain_intakes SET impurity_percent = $2, accepted_weight_kg = $3, pending_quality = $4, note = $5
		WHERE id = $1`,
		r.ID, r.ImpurityPercent, r.AcceptedKg, r.PendingQuality, r.Note)
	if err != nil {
		return fmt.Errorf("failed to update intake %d: %w", r.ID, err)
	}
	return nil
}

func (t *transaction) GetIntake(ctx context.Context, id int) (*core.IntakeRecord, error) {
	r, err := scanIntake(t.tx.QueryRow(ctx, "SELECT "+intakeColumns+" FROM grain_intakes WHERE id = $1"+t.forUpdate(), id))
	if err != nil {
		return nil, notFound(err, "intake", id)
	}
	return &r, nil
}

func (t *transaction) ListIntakes(ctx context.Context, f core.IntakeFilter) ([]core.IntakeRecord, error) {
	var w where
	if f.OwnerID != nil {
		w.add("owner_id = $%d", *f.OwnerID)
	}
	if f.CultureID != nil {
		w.add("culture_id = $%d", *f.CultureID)
	}
	if f.PendingQuality != nil {
		w.add("pending_quality = $%d", *f.PendingQuality)
	}
	rows, err := t.tx.Query(ctx, "SELECT "+intakeColumns+" FROM grain_intakes"+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query intakes: %w", err)
	}
	return collect(rows, scanIntake)
}

func (t *transaction) InsertDeduction(ctx context.Context, d *core.GrainDeduction) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO grain_deductions (owner_id, culture_id, quantity_kg, contract_id, payment_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		d.OwnerID, d.CultureID, d.QuantityKg, d.ContractID, d.PaymentID, d.Note, d.CreatedAt).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to insert deduction: %w", err)
	}
	return nil
}

func (t *transaction) DeleteDeductionsByPayment(ctx context.Context, paymentID int) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, "DELETE FROM grain_deductions WHERE payment_id = $1", paymentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete deductions of payment %d: %w", paymentID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *transaction) ListDeductions(ctx context.Context, f core.DeductionFilter) ([]core.GrainDeduction, error) {
	var w where
	if f.OwnerID != nil {
		w.add("owner_id = $%d", *f.OwnerID)
	}
	if f.CultureID != nil {
		w.add("culture_id = $%d", *f.CultureID)
	}
	if f.PaymentID != nil {
		w.add("payment_id = $%d", *f.PaymentID)
	}
	rows, err := t.tx.Query(ctx, `SELECT id, owner_id, culture_id, quantity_kg, contract_id, payment_id, note, created_at
		FROM grain_deductions`+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deductions: %w", err)
	}
	return collect(rows, func(row scanner) (core.GrainDeduction, error) {
		var d core.GrainDeduction
		err := row.Scan(&d.ID, &d.OwnerID, &d.CultureID, &d.QuantityKg, &d.ContractID, &d.PaymentID, &d.Note, &d.CreatedAt)
		return d, err
	})
}

func (t *transaction) InsertShipment(ctx context.Context, s *core.GrainShipment) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO grain_shipments (culture_id, destination, quantity_kg, created_by_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		s.CultureID, s.Destination, s.QuantityKg, s.ActorID, s.CreatedAt).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert shipment: %w", err)
	}
	return nil
}

func (t *transaction) ListShipments(ctx context.Context, cultureID *int) ([]core.GrainShipment, error) {
	var w where
	if cultureID != nil {
		w.add("culture_id = $%d", *cultureID)
	}
	rows, err := t.tx.Query(ctx, `SELECT id, culture_id, destination, quantity_kg, created_by_user_id, created_at
		FROM grain_shipments`+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipments: %w", err)
	}
	return collect(rows, func(row scanner) (core.GrainShipment, error) {
		var s core.GrainShipment
		err := row.Scan(&s.ID, &s.CultureID, &s.Destination, &s.QuantityKg, &s.ActorID, &s.CreatedAt)
		return s, err
	})
}

func (t *transaction) InsertPurchase(ctx context.Context, p *core.PurchaseRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchases (stock_id, item_name, category, price_per_kg, currency, quantity_kg,
			total_amount, created_by_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		p.StockID, p.ItemName, p.Category, p.PricePerKg, p.Currency, p.QuantityKg,
		p.TotalAmount, p.ActorID, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

func (t *transaction) ListPurchases(ctx context.Context) ([]core.PurchaseRecord, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, stock_id, item_name, category, price_per_kg, currency, quantity_kg,
		total_amount, created_by_user_id, created_at FROM purchases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	return collect(rows, func(row scanner) (core.PurchaseRecord, error) {
		var p core.PurchaseRecord
		err := row.Scan(&p.ID, &p.StockID, &p.ItemName, &p.Category, &p.PricePerKg, &p.Currency, &p.QuantityKg,
			&p.TotalAmount, &p.ActorID, &p.CreatedAt)
		return p, err
	})
}

// ── Contracts ────────────────────────────────────────────────────────────────

const contractColumns = `id, owner_id, contract_type, status, total_value_uah, balance_uah, currency,
	exchange_rate, payout_amount, payout_method, was_reserve, closed_manually, note,
	created_by_user_id, created_by_name, created_at, updated_at, closed_at`

func scanContract(row scanner) (core.FarmerContract, error) {
	var c core.FarmerContract
	err := row.Scan(&c.ID, &c.OwnerID, &c.Type, &c.Status, &c.TotalValueUAH, &c.BalanceUAH, &c.Currency,
		&c.ExchangeRate, &c.PayoutAmount, &c.PayoutMethod, &c.WasReserve, &c.ClosedManually, &c.Note,
		&c.ActorID, &c.ActorName, &c.CreatedAt, &c.UpdatedAt, &c.ClosedAt)
	return c, err
}

func (t *transaction) InsertContract(ctx context.Context, c *core.FarmerContract) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO farmer_contracts (owner_id, contract_type, status, total_value_uah, balance_uah, currency,
			exchange_rate, payout_amount, payout_method, was_reserve, closed_manually, note,
			created_by_user_id, created_by_name, created_at, updated_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		c.OwnerID, c.Type, c.Status, c.TotalValueUAH, c.BalanceUAH, c.Currency,
		c.ExchangeRate, c.PayoutAmount, c.PayoutMethod, c.WasReserve, c.ClosedManually, c.Note,
		c.ActorID, c.ActorName, c.CreatedAt, c.UpdatedAt, c.ClosedAt).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

func (t *transaction) UpdateContract(ctx context.Context, c *core.FarmerContract) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE farmer_contracts SET contract_type = $2, status = $3, total_value_uah = $4, balance_uah = $5,
			payout_amount = $6, was_reserve = $7, closed_manually = $8, note = $9, updated_at = $10, closed_at = $11
		WHERE id = $1`,
		c.ID, c.Type, c.Status, c.TotalValueUAH, c.BalanceUAH,
		c.PayoutAmount, c.WasReserve, c.ClosedManually, c.Note, c.UpdatedAt, c.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to update contract %d: %w", c.ID, err)
	}
	return nil
}

func (t *transaction) GetContract(ctx context.Context, id int) (*core.FarmerContract, error) {
	c, err := scanContract(t.tx.QueryRow(ctx, "SELECT "+contractColumns+" FROM farmer_contracts WHERE id = $1"+t.forUpdate(), id))
	if err != nil {
		return nil, notFound(err, "contract", id)
	}
	return &c, nil
}

func (t *transaction) ListContracts(ctx context.Context, f core.ContractFilter) ([]core.FarmerContract, error) {
	var w where
	if f.OwnerID != nil {
		w.add("owner_id = $%d", *f.OwnerID)
	}
	if f.Type != nil {
		w.add("contract_type = $%d", *f.Type)
	}
	if f.Status != nil {
		w.add("status = $%d", *f.Status)
	}
	rows, err := t.tx.Query(ctx, "SELECT "+contractColumns+" FROM farmer_contracts"+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	return collect(rows, scanContract)
}

const itemColumns = `id, contract_id, direction, item_type, item_name, culture_id, goods_name, goods_category,
	quantity_kg, price_per_kg, total_value_uah, delivered_kg`

func scanItem(row scanner) (core.FarmerContractItem, error) {
	var i core.FarmerContractItem
	err := row.Scan(&i.ID, &i.ContractID, &i.Direction, &i.Kind, &i.Name, &i.CultureID, &i.GoodsName, &i.GoodsCategory,
		&i.QuantityKg, &i.PricePerKg, &i.TotalValueUAH, &i.DeliveredKg)
	return i, err
}

func (t *transaction) InsertContractItem(ctx context.Context, i *core.FarmerContractItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO farmer_contract_items (contract_id, direction, item_type, item_name, culture_id, goods_name,
			goods_category, quantity_kg, price_per_kg, total_value_uah, delivered_kg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		i.ContractID, i.Direction, i.Kind, i.Name, i.CultureID, i.GoodsName,
		i.GoodsCategory, i.QuantityKg, i.PricePerKg, i.TotalValueUAH, i.DeliveredKg).Scan(&i.ID)
	if err != nil {
		return fmt.Errorf("failed to insert contract item: %w", err)
	}
	return nil
}

func (t *transaction) UpdateContractItem(ctx context.Context, i *core.FarmerContractItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, "UPDATE farmer_contract_items SET delivered_kg = $2 WHERE id = $1", i.ID, i.DeliveredKg)
	if err != nil {
		return fmt.Errorf("failed to update contract item %d: %w", i.ID, err)
	}
	return nil
}

func (t *transaction) ListContractItems(ctx context.Context, contractID int) ([]core.FarmerContractItem, error) {
	rows, err := t.tx.Query(ctx, "SELECT "+itemColumns+" FROM farmer_contract_items WHERE contract_id = $1 ORDER BY id", contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract items: %w", err)
	}
	return collect(rows, scanItem)
}

const paymentColumns = `id, contract_id, item_id, payment_type, item_type, item_name, culture_id, goods_name,
	goods_category, quantity_kg, reserved_kg, price_per_kg, currency, exchange_rate, amount, amount_uah,
	is_cancelled, cancelled_at, cancelled_by_user_id, created_by_user_id, created_by_name, created_at`

func scanPayment(row scanner) (core.FarmerContractPayment, error) {
	var p core.FarmerContractPayment
	err := row.Scan(&p.ID, &p.ContractID, &p.ItemID, &p.Kind, &p.ItemKind, &p.ItemName, &p.CultureID, &p.GoodsName,
		&p.GoodsCategory, &p.QuantityKg, &p.ReservedKg, &p.PricePerKg, &p.Currency, &p.ExchangeRate, &p.Amount, &p.AmountUAH,
		&p.IsCancelled, &p.CancelledAt, &p.CancelledByID, &p.ActorID, &p.ActorName, &p.CreatedAt)
	return p, err
}

func (t *transaction) InsertContractPayment(ctx context.Context, p *core.FarmerContractPayment) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO farmer_contract_payments (contract_id, item_id, payment_type, item_type, item_name, culture_id,
			goods_name, goods_category, quantity_kg, reserved_kg, price_per_kg, currency, exchange_rate, amount,
			amount_uah, is_cancelled, cancelled_at, cancelled_by_user_id, created_by_user_id, created_by_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id`,
		p.ContractID, p.ItemID, p.Kind, p.ItemKind, p.ItemName, p.CultureID,
		p.GoodsName, p.GoodsCategory, p.QuantityKg, p.ReservedKg, p.PricePerKg, p.Currency, p.ExchangeRate, p.Amount,
		p.AmountUAH, p.IsCancelled, p.CancelledAt, p.CancelledByID, p.ActorID, p.ActorName, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert contract payment: %w", err)
	}
	return nil
}

func (t *transaction) UpdateContractPayment(ctx context.Context, p *core.FarmerContractPayment) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE farmer_contract_payments SET is_cancelled = $2, cancelled_at = $3, cancelled_by_user_id = $4
		WHERE id = $1`,
		p.ID, p.IsCancelled, p.CancelledAt, p.CancelledByID)
	if err != nil {
		return fmt.Errorf("failed to update contract payment %d: %w", p.ID, err)
	}
	return nil
}

func (t *transaction) GetContractPayment(ctx context.Context, id int) (*core.FarmerContractPayment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, "SELECT "+paymentColumns+" FROM farmer_contract_payments WHERE id = $1"+t.forUpdate(), id))
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &p, nil
}

func (t *transaction) ListContractPayments(ctx context.Context, contractID int) ([]core.FarmerContractPayment, error) {
	rows, err := t.tx.Query(ctx, "SELECT "+paymentColumns+" FROM farmer_contract_payments WHERE contract_id = $1 ORDER BY id", contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract payments: %w", err)
	}
	return collect(rows, scanPayment)
}

// ── Vouchers ─────────────────────────────────────────────────────────────────

const voucherColumns = `id, contract_id, payment_id, owner_id, culture_id, quantity_kg, price_per_kg,
	total_value_uah, paid_value_uah, remaining_value_uah, is_closed, note, created_at`

func scanVoucher(row scanner) (core.GrainVoucher, error) {
	var v core.GrainVoucher
	err := row.Scan(&v.ID, &v.ContractID, &v.PaymentID, &v.OwnerID, &v.CultureID, &v.QuantityKg, &v.PricePerKg,
		&v.TotalValueUAH, &v.PaidValueUAH, &v.RemainingValueUAH, &v.IsClosed, &v.Note, &v.CreatedAt)
	return v, err
}

func (t *transaction) InsertVoucher(ctx context.Context, v *core.GrainVoucher) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO grain_vouchers (contract_id, payment_id, owner_id, culture_id, quantity_kg, price_per_kg,
			total_value_uah, paid_value_uah, remaining_value_uah, is_closed, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		v.ContractID, v.PaymentID, v.OwnerID, v.CultureID, v.QuantityKg, v.PricePerKg,
		v.TotalValueUAH, v.PaidValueUAH, v.RemainingValueUAH, v.IsClosed, v.Note, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to insert voucher: %w", err)
	}
	return nil
}

func (t *transaction) UpdateVoucher(ctx context.Context, v *core.GrainVoucher) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE grain_vouchers SET paid_value_uah = $2, remaining_value_uah = $3, is_closed = $4
		WHERE id = $1`,
		v.ID, v.PaidValueUAH, v.RemainingValueUAH, v.IsClosed)
	if err != nil {
		return fmt.Errorf("failed to update voucher %d: %w", v.ID, err)
	}
	return nil
}

func (t *transaction) ListVouchers(ctx context.Context) ([]core.GrainVoucher, error) {
	rows, err := t.tx.Query(ctx, "SELECT "+voucherColumns+" FROM grain_vouchers ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	return collect(rows, scanVoucher)
}

const voucherPaymentColumns = `id, currency, amount, exchange_rate, amount_uah, description, is_cancelled,
	cancelled_at, created_by_user_id, created_by_name, created_at`

func scanVoucherPayment(row scanner) (core.VoucherPayment, error) {
	var p core.VoucherPayment
	err := row.Scan(&p.ID, &p.Currency, &p.Amount, &p.ExchangeRate, &p.AmountUAH, &p.Description, &p.IsCancelled,
		&p.CancelledAt, &p.ActorID, &p.ActorName, &p.CreatedAt)
	return p, err
}

func (t *transaction) InsertVoucherPayment(ctx context.Context, p *core.VoucherPayment) error {
	if err := t.writable(); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO voucher_payments (currency, amount, exchange_rate, amount_uah, description, is_cancelled,
			cancelled_at, created_by_user_id, created_by_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		p.Currency, p.Amount, p.ExchangeRate, p.AmountUAH, p.Description, p.IsCancelled,
		p.CancelledAt, p.ActorID, p.ActorName, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert voucher payment: %w", err)
	}
	return nil
}

func (t *transaction) UpdateVoucherPayment(ctx context.Context, p *core.VoucherPayment) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, "UPDATE voucher_payments SET is_cancelled = $2, cancelled_at = $3 WHERE id = $1",
		p.ID, p.IsCancelled, p.CancelledAt)
	if err != nil {
		return fmt.Errorf("failed to update voucher payment %d: %w", p.ID, err)
	}
	return nil
}

func (t *transaction) GetVoucherPayment(ctx context.Context, id int) (*core.VoucherPayment, error) {
	p, err := scanVoucherPayment(t.tx.QueryRow(ctx, "SELECT "+voucherPaymentColumns+" FROM voucher_payments WHERE id = $1"+t.forUpdate(), id))
	if err != nil {
		return nil, notFound(err, "voucher payment", id)
	}
	return &p, nil
}

func (t *transaction) ListVoucherPayments(ctx context.Context) ([]core.VoucherPayment, error) {
	rows, err := t.tx.Query(ctx, "SELECT "+voucherPaymentColumns+" FROM voucher_payments ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query voucher payments: %w", err)
	}
	return collect(rows, scanVoucherPayment)
}
