// Package memory provides an in-memory implementation of the ledger store
// used for tests, local runs and as the base of the sqlite store.
package memory

import (
	"context"
	"errors"
	"sync"

	"grain-ledger/internal/core"
)

var _ core.Store = (*Store)(nil)

// Snapshot captures a point-in-time copy of the store state. Every field is
// one bucket of the sqlite snapshot.
type Snapshot struct {
	Cultures         map[int]core.Culture               `json:"cultures"`
	Owners           map[int]core.Owner                 `json:"owners"`
	Stock            map[int]core.StockEntry            `json:"stock"`
	Adjustments      []core.StockAdjustment             `json:"adjustments"`
	Registers        map[string]core.CashRegister       `json:"registers"`
	CashTransactions []core.CashTransaction             `json:"cash_transactions"`
	Intakes          map[int]core.IntakeRecord          `json:"intakes"`
	Deductions       map[int]core.GrainDeduction        `json:"deductions"`
	Shipments        []core.GrainShipment               `json:"shipments"`
	Purchases        []core.PurchaseRecord              `json:"purchases"`
	Contracts        map[int]core.FarmerContract        `json:"contracts"`
	Items            map[int]core.FarmerContractItem    `json:"items"`
	Payments         map[int]core.FarmerContractPayment `json:"payments"`
	Vouchers         map[int]core.GrainVoucher          `json:"vouchers"`
	VoucherPayments  map[int]core.VoucherPayment        `json:"voucher_payments"`
	Sequences        map[string]int                     `json:"sequences"`
}

// Buckets maps bucket names to pointers at the snapshot fields, for
// encoders that persist the state bucket by bucket.
func (s *Snapshot) Buckets() map[string]any {
	return map[string]any{
		"cultures":          &s.Cultures,
		"owners":            &s.Owners,
		"stock":             &s.Stock,
		"adjustments":       &s.Adjustments,
		"registers":         &s.Registers,
		"cash_transactions": &s.CashTransactions,
		"intakes":           &s.Intakes,
		"deductions":        &s.Deductions,
		"shipments":         &s.Shipments,
		"purchases":         &s.Purchases,
		"contracts":         &s.Contracts,
		"items":             &s.Items,
		"payments":          &s.Payments,
		"vouchers":          &s.Vouchers,
		"voucher_payments":  &s.VoucherPayments,
		"sequences":         &s.Sequences,
	}
}

func newSnapshot() Snapshot {
	return Snapshot{
		Cultures:        make(map[int]core.Culture),
		Owners:          make(map[int]core.Owner),
		Stock:           make(map[int]core.StockEntry),
		Registers:       make(map[string]core.CashRegister),
		Intakes:         make(map[int]core.IntakeRecord),
		Deductions:      make(map[int]core.GrainDeduction),
		Contracts:       make(map[int]core.FarmerContract),
		Items:           make(map[int]core.FarmerContractItem),
		Payments:        make(map[int]core.FarmerContractPayment),
		Vouchers:        make(map[int]core.GrainVoucher),
		VoucherPayments: make(map[int]core.VoucherPayment),
		Sequences:       make(map[string]int),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	return append([]T(nil), s...)
}

// clone copies every bucket. Records are values; their pointer fields are
// replaced, never written through, so sharing them is safe.
func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Cultures:         cloneMap(s.Cultures),
		Owners:           cloneMap(s.Owners),
		Stock:            cloneMap(s.Stock),
		Adjustments:      cloneSlice(s.Adjustments),
		Registers:        cloneMap(s.Registers),
		CashTransactions: cloneSlice(s.CashTransactions),
		Intakes:          cloneMap(s.Intakes),
		Deductions:       cloneMap(s.Deductions),
		Shipments:        cloneSlice(s.Shipments),
		Purchases:        cloneSlice(s.Purchases),
		Contracts:        cloneMap(s.Contracts),
		Items:            cloneMap(s.Items),
		Payments:         cloneMap(s.Payments),
		Vouchers:         cloneMap(s.Vouchers),
		VoucherPayments:  cloneMap(s.VoucherPayments),
		Sequences:        cloneMap(s.Sequences),
	}
}

// normalize replaces nil buckets so a decoded snapshot is usable.
func (s *Snapshot) normalize() {
	fresh := newSnapshot()
	if s.Cultures == nil {
		s.Cultures = fresh.Cultures
	}
	if s.Owners == nil {
		s.Owners = fresh.Owners
	}
	if s.Stock == nil {
		s.Stock = fresh.Stock
	}
	if s.Registers == nil {
		s.Registers = fresh.Registers
	}
	if s.Intakes == nil {
		s.Intakes = fresh.Intakes
	}
	if s.Deductions == nil {
		s.Deductions = fresh.Deductions
	}
	if s.Contracts == nil {
		s.Contracts = fresh.Contracts
	}
	if s.Items == nil {
		s.Items = fresh.Items
	}
	if s.Payments == nil {
		s.Payments = fresh.Payments
	}
	if s.Vouchers == nil {
		s.Vouchers = fresh.Vouchers
	}
	if s.VoucherPayments == nil {
		s.VoucherPayments = fresh.VoucherPayments
	}
	if s.Sequences == nil {
		s.Sequences = fresh.Sequences
	}
}

// CommitHook is called with the new state before a transaction is published.
// An error aborts the commit.
type CommitHook func(Snapshot) error

// Store keeps the whole ledger in memory. Transactions are serialized by a
// mutex and run against a clone of the state that replaces the live state
// only when fn succeeds.
type Store struct {
	mu     sync.RWMutex
	state  Snapshot
	commit CommitHook
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newSnapshot()}
}

// SetCommitHook installs hook; it runs under the store lock.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit = hook
}

// RunInTx executes fn within a transactional copy of the store state.
func (s *Store) RunInTx(ctx context.Context, fn func(tx core.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&transaction{state: &work}); err != nil {
		return err
	}
	if s.commit != nil {
		if err := s.commit(work); err != nil {
			return err
		}
	}
	s.state = work
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(tx core.Tx) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&transaction{state: &snapshot, readOnly: true})
}

// ExportState returns a copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// ImportState replaces the current state with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	snapshot.normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snapshot.clone()
}

var errReadOnly = errors.New("memory store: write in read-only view")
