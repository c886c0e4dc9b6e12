package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PurchaseService books goods bought for resale or for exchange contracts.
type PurchaseService interface {
	// RecordPurchase adds the goods to purchase stock and pays for them from
	// the cash register in the purchase currency.
	RecordPurchase(ctx context.Context, actor Actor, in PurchaseInput) (*PurchaseRecord, error)
	ListPurchases(ctx context.Context) ([]PurchaseRecord, error)
}

// PurchaseInput holds the parameters of RecordPurchase. A positive
// SalePricePerKg updates the price used as the default in contracts.
type PurchaseInput struct {
	Name           string
	Category       string
	QuantityKg     decimal.Decimal
	PricePerKg     decimal.Decimal
	Currency       Currency
	SalePricePerKg decimal.Decimal
}

type purchaseService struct {
	rt    *Runtime
	stock *StockLedger
	cash  *CashLedger
	log   *zap.Logger
}

// NewPurchaseService constructs a PurchaseService on the given runtime.
func NewPurchaseService(rt *Runtime) PurchaseService {
	return &purchaseService{
		rt:    rt,
		stock: NewStockLedger(rt.named("core.stock")),
		cash:  NewCashLedger(rt.named("core.cash")),
		log:   rt.named("core.purchases"),
	}
}

func (s *purchaseService) RecordPurchase(ctx context.Context, actor Actor, in PurchaseInput) (*PurchaseRecord, error) {
	var out *PurchaseRecord
	err := s.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		name := CleanName(in.Name)
		if name == "" {
			return invalidItem("purchase item name is required")
		}
		if !in.QuantityKg.IsPositive() {
			return invalidItem("purchase quantity must be positive, got %s", in.QuantityKg)
		}
		if !in.PricePerKg.IsPositive() {
			return invalidItem("purchase price must be positive, got %s", in.PricePerKg)
		}
		currency, err := ParseCurrency(string(in.Currency))
		if err != nil {
			return err
		}
		total := in.QuantityKg.Mul(in.PricePerKg).Round(2)
		key := GoodsKey(name, in.Category)

		entry, err := s.stock.GetOrCreate(ctx, uow, key, name)
		if err != nil {
			return err
		}
		if in.SalePricePerKg.IsPositive() {
			entry.SalePricePerKg = in.SalePricePerKg
		}
		if err := s.stock.ApplyDelta(ctx, uow, entry, in.QuantityKg, OwnGrain, StockRef{Source: SourcePurchase}); err != nil {
			return err
		}
		if _, err := s.cash.Apply(ctx, uow, currency, total.Neg(), "Purchase: "+entry.DisplayName); err != nil {
			return err
		}
		rec := &PurchaseRecord{
			StockID:     entry.ID,
			ItemName:    entry.DisplayName,
			Category:    key.Category,
			PricePerKg:  in.PricePerKg,
			Currency:    currency,
			QuantityKg:  in.QuantityKg,
			TotalAmount: total,
			ActorID:     uow.Actor.ID,
			CreatedAt:   uow.Now,
		}
		if err := uow.Tx.InsertPurchase(ctx, rec); err != nil {
			return fmt.Errorf("failed to insert purchase: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		s.log.Debug("purchase rejected", zap.String("item", in.Name), zap.Error(err))
		return nil, err
	}
	s.log.Info("purchase recorded",
		zap.Int("purchase_id", out.ID),
		zap.String("item", out.ItemName),
		zap.String("total", out.TotalAmount.StringFixed(2)+" "+string(out.Currency)))
	return out, nil
}

func (s *purchaseService) ListPurchases(ctx context.Context) ([]PurchaseRecord, error) {
	var out []PurchaseRecord
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Tx.ListPurchases(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return out, nil
}
