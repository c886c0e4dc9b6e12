package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CashService is the administrative surface of the cash register.
type CashService interface {
	Balances(ctx context.Context) (*CashRegister, error)
	// UpdateBalance adds to or subtracts from one currency. A subtraction that
	// would overdraw the register fails with ErrInsufficientFunds.
	UpdateBalance(ctx context.Context, actor Actor, currency Currency, typ TransactionType, amount decimal.Decimal, description string) (*CashTransaction, error)
	ListTransactions(ctx context.Context, p Page) ([]CashTransaction, error)
}

type cashService struct {
	rt   *Runtime
	cash *CashLedger
	log  *zap.Logger
}

func NewCashService(rt *Runtime) CashService {
	return &cashService{rt: rt, cash: NewCashLedger(rt.named("core.cash")), log: rt.named("core.cash")}
}

func (s *cashService) Balances(ctx context.Context) (*CashRegister, error) {
	var out *CashRegister
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Register(ctx)
		return err
	})
	return out, err
}

func (s *cashService) UpdateBalance(ctx context.Context, actor Actor, currency Currency, typ TransactionType, amount decimal.Decimal, description string) (*CashTransaction, error) {
	var out *CashTransaction
	err := s.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		cur, err := ParseCurrency(string(currency))
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			return invalidItem("amount must be positive, got %s", amount)
		}
		signed := amount
		switch typ {
		case TxAdd:
		case TxSubtract:
			signed = amount.Neg()
		default:
			return invalidItem("unknown transaction type %q", typ)
		}
		if description == "" {
			description = "Manual cash " + string(typ)
		}
		out, err = s.cash.Apply(ctx, uow, cur, signed, description)
		return err
	})
	if err != nil {
		s.log.Debug("cash update rejected", zap.String("currency", string(currency)), zap.Error(err))
		return nil, err
	}
	s.log.Info("cash balance updated",
		zap.String("currency", string(out.Currency)),
		zap.String("type", string(out.Type)),
		zap.String("amount", out.Amount.StringFixed(2)))
	return out, nil
}

func (s *cashService) ListTransactions(ctx context.Context, p Page) ([]CashTransaction, error) {
	var out []CashTransaction
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Tx.ListCashTransactions(ctx, s.rt.Register, p)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cash transactions: %w", err)
	}
	return out, nil
}
