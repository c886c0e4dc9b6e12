package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultRegister is the cash register name used when none is configured.
const DefaultRegister = "main"

// Runtime bundles what every ledger service needs: the store, the name of the
// cash register and a clock. It is built once at startup.
type Runtime struct {
	Store    Store
	Register string
	Clock    func() time.Time
	Logger   *zap.Logger
}

// NewRuntime returns a Runtime with a UTC wall clock.
func NewRuntime(store Store, register string, logger *zap.Logger) *Runtime {
	if register == "" {
		register = DefaultRegister
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		Store:    store,
		Register: register,
		Clock:    func() time.Time { return time.Now().UTC() },
		Logger:   logger,
	}
}

func (rt *Runtime) named(component string) *zap.Logger {
	return rt.Logger.Named(component)
}

// run executes fn as one atomic unit of work on behalf of actor.
func (rt *Runtime) run(ctx context.Context, actor Actor, fn func(uow *UnitOfWork) error) error {
	return rt.Store.RunInTx(ctx, func(tx Tx) error {
		return fn(rt.newUnitOfWork(tx, actor))
	})
}

// view executes fn against a read-only snapshot.
func (rt *Runtime) view(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	return rt.Store.View(ctx, func(tx Tx) error {
		return fn(rt.newUnitOfWork(tx, SystemActor))
	})
}

func (rt *Runtime) newUnitOfWork(tx Tx, actor Actor) *UnitOfWork {
	return &UnitOfWork{
		Tx:       tx,
		Actor:    actor,
		Now:      rt.Clock(),
		register: rt.Register,
		stock:    make(map[StockKey]*StockEntry),
	}
}

// UnitOfWork is the context of one ledger operation. Stock entries and the
// cash register are loaded at most once per unit of work; every later lookup
// returns the same handle, and writes go through to the transaction at once.
type UnitOfWork struct {
	Tx    Tx
	Actor Actor
	Now   time.Time

	register string
	cash     *CashRegister
	stock    map[StockKey]*StockEntry
}

// Stock returns the cached handle for key, loading it on first use.
// ok is false when no entry exists yet.
func (u *UnitOfWork) Stock(ctx context.Context, key StockKey) (*StockEntry, bool, error) {
	if e, ok := u.stock[key]; ok {
		return e, true, nil
	}
	e, err := u.Tx.FindStock(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load stock %s: %w", key, err)
	}
	u.stock[key] = e
	return e, true, nil
}

func (u *UnitOfWork) cacheStock(e *StockEntry) {
	u.stock[e.Key] = e
}

// Register returns the cash register handle.
func (u *UnitOfWork) Register(ctx context.Context) (*CashRegister, error) {
	if u.cash != nil {
		return u.cash, nil
	}
	r, err := u.Tx.GetCashRegister(ctx, u.register)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("cash register %q is not initialised: %w", u.register, err)
		}
		return nil, fmt.Errorf("failed to load cash register: %w", err)
	}
	u.cash = r
	return r, nil
}

// contract loads a contract or returns a wrapped ErrNotFound.
func (u *UnitOfWork) contract(ctx context.Context, id int) (*FarmerContract, error) {
	c, err := u.Tx.GetContract(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("contract", id)
		}
		return nil, fmt.Errorf("failed to load contract %d: %w", id, err)
	}
	return c, nil
}

func (u *UnitOfWork) culture(ctx context.Context, id int) (*Culture, error) {
	c, err := u.Tx.GetCulture(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("culture", id)
		}
		return nil, fmt.Errorf("failed to load culture %d: %w", id, err)
	}
	return c, nil
}

func (u *UnitOfWork) owner(ctx context.Context, id int) (*Owner, error) {
	o, err := u.Tx.GetOwner(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("owner", id)
		}
		return nil, fmt.Errorf("failed to load owner %d: %w", id, err)
	}
	return o, nil
}

func (u *UnitOfWork) nowPtr() *time.Time {
	t := u.Now
	return &t
}
