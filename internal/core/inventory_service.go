package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InventoryService manages grain intake, manual stock operations, shipments
// and stock queries. Contract-driven stock changes go through ContractEngine.
type InventoryService interface {
	// RecordIntake books a weighed delivery. Farmer grain raises the farmer
	// share, own grain the own share. Pending-quality intakes move no stock
	// until ConfirmIntakeQuality.
	RecordIntake(ctx context.Context, actor Actor, in IntakeInput) (*IntakeRecord, error)
	ConfirmIntakeQuality(ctx context.Context, actor Actor, intakeID int, impurityPercent decimal.Decimal) (*IntakeRecord, error)
	ListIntakes(ctx context.Context, f IntakeFilter) ([]IntakeRecord, error)

	// AdjustStock applies a manual correction to a stock entry.
	AdjustStock(ctx context.Context, actor Actor, key StockKey, delta decimal.Decimal) (*StockEntry, error)
	// ReserveStock and ReleaseStock move the reservation counter outside any contract.
	ReserveStock(ctx context.Context, actor Actor, key StockKey, qty decimal.Decimal) (*StockEntry, error)
	ReleaseStock(ctx context.Context, actor Actor, key StockKey, qty decimal.Decimal) (*StockEntry, error)

	// CreateShipment ships unreserved own grain out of the warehouse.
	CreateShipment(ctx context.Context, actor Actor, cultureID int, qty decimal.Decimal, destination string) (*GrainShipment, error)
	ListShipments(ctx context.Context, cultureID *int) ([]GrainShipment, error)

	StockSnapshot(ctx context.Context, key StockKey) (*StockEntry, error)
	ListStock(ctx context.Context, kind StockKind) ([]StockEntry, error)
	ListStockAdjustments(ctx context.Context, f AdjustmentFilter) ([]StockAdjustment, error)

	FarmerBalance(ctx context.Context, ownerID, cultureID int) (decimal.Decimal, error)
	FarmerBalances(ctx context.Context, ownerID int) ([]FarmerBalance, error)
}

// IntakeInput holds the parameters of RecordIntake. OwnerID is required for
// farmer grain and ignored for own grain.
type IntakeInput struct {
	OwnerID         *int
	CultureID       int
	GrossKg         decimal.Decimal
	TareKg          decimal.Decimal
	ImpurityPercent decimal.Decimal
	IsOwnGrain      bool
	PendingQuality  bool
	Note            string
}

type inventoryService struct {
	rt      *Runtime
	stock   *StockLedger
	farmers FarmerBalanceCalculator
	log     *zap.Logger
}

func NewInventoryService(rt *Runtime) InventoryService {
	return &inventoryService{
		rt:    rt,
		stock: NewStockLedger(rt.named("core.stock")),
		log:   rt.named("core.inventory"),
	}
}

var hundred = decimal.NewFromInt(100)

// acceptedWeight is net·(1 − impurity/100), rounded to grams.
func acceptedWeight(net, impurity decimal.Decimal) (decimal.Decimal, error) {
	if impurity.IsNegative() || impurity.GreaterThanOrEqual(hundred) {
		return decimal.Zero, invalidItem("impurity must be in [0, 100), got %s", impurity)
	}
	return net.Mul(hundred.Sub(impurity)).Div(hundred).Round(3), nil
}

// ── Intake ───────────────────────────────────────────────────────────────────

func (s *inventoryService) RecordIntake(ctx context.Context, actor Actor, in IntakeInput) (*IntakeRecord, error) {
	var out *IntakeRecord
	err := s.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		culture, err := uow.culture(ctx, in.CultureID)
		if err != nil {
			return err
		}
		var ownerID *int
		if !in.IsOwnGrain {
			if in.OwnerID == nil {
				return invalidItem("farmer intake needs an owner")
			}
			if _, err := uow.owner(ctx, *in.OwnerID); err != nil {
				return err
			}
			id := *in.OwnerID
			ownerID = &id
		}
		net := in.GrossKg.Sub(in.TareKg)
		if !net.IsPositive() {
			return invalidItem("net weight must be positive (gross %s, tare %s)", in.GrossKg, in.TareKg)
		}
		accepted, err := acceptedWeight(net, in.ImpurityPercent)
		if err != nil {
			return err
		}
		if in.PendingQuality {
			accepted = decimal.Zero
		}

		r := &IntakeRecord{
			OwnerID:         ownerID,
			CultureID:       culture.ID,
			GrossKg:         in.GrossKg,
			TareKg:          in.TareKg,
			NetKg:           net,
			ImpurityPercent: in.ImpurityPercent,
			AcceptedKg:      accepted,
			IsOwnGrain:      in.IsOwnGrain,
			PendingQuality:  in.PendingQuality,
			Note:            in.Note,
			ActorID:         uow.Actor.ID,
			CreatedAt:       uow.Now,
		}
		if err := uow.Tx.InsertIntake(ctx, r); err != nil {
			return fmt.Errorf("failed to insert intake: %w", err)
		}
		if !in.PendingQuality {
			if err := s.bookIntake(ctx, uow, culture, r, SourceIntake); err != nil {
				return err
			}
		}
		out = r
		return nil
	})
	if err != nil {
		s.log.Debug("intake rejected", zap.Int("culture_id", in.CultureID), zap.Error(err))
		return nil, err
	}
	s.log.Info("intake recorded",
		zap.Int("intake_id", out.ID),
		zap.Bool("own_grain", out.IsOwnGrain),
		zap.Bool("pending_quality", out.PendingQuality),
		zap.String("accepted_kg", out.AcceptedKg.String()))
	return out, nil
}

func (s *inventoryService) ConfirmIntakeQuality(ctx context.Context, actor Actor, intakeID int, impurityPercent decimal.Decimal) (*IntakeRecord, error) {
	var out *IntakeRecord
	err := s.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		r, err := uow.Tx.GetIntake(ctx, intakeID)
		if err != nil {
			return fmt.Errorf("intake %d: %w", intakeID, err)
		}
		if !r.PendingQuality {
			return invalidState("intake %d has no pending quality check", r.ID)
		}
		culture, err := uow.culture(ctx, r.CultureID)
		if err != nil {
			return err
		}
		accepted, err := acceptedWeight(r.NetKg, impurityPercent)
		if err != nil {
			return err
		}
		r.ImpurityPercent = impurityPercent
		r.AcceptedKg = accepted
		r.PendingQuality = false
		if err := uow.Tx.UpdateIntake(ctx, r); err != nil {
			return fmt.Errorf("failed to update intake: %w", err)
		}
		if err := s.bookIntake(ctx, uow, culture, r, SourceQuality); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		s.log.Debug("quality confirmation rejected", zap.Int("intake_id", intakeID), zap.Error(err))
		return nil, err
	}
	s.log.Info("intake quality confirmed", zap.Int("intake_id", intakeID), zap.String("accepted_kg", out.AcceptedKg.String()))
	return out, nil
}

func (s *inventoryService) bookIntake(ctx context.Context, uow *UnitOfWork, culture *Culture, r *IntakeRecord, source string) error {
	if !r.AcceptedKg.IsPositive() {
		return nil
	}
	entry, err := s.stock.GetOrCreate(ctx, uow, GrainKey(culture.ID), culture.Name)
	if err != nil {
		return err
	}
	share := FarmerGrain
	if r.IsOwnGrain {
		share = OwnGrain
	}
	return s.stock.ApplyDelta(ctx, uow, entry, r.AcceptedKg, share, StockRef{Source: source})
}

func (s *inventoryService) ListIntakes(ctx context.Context, f IntakeFilter) ([]IntakeRecord, error) {
	var out []IntakeRecord
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Tx.ListIntakes(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list intakes: %w", err)
	}
	return out, nil
}

// ── Manual stock operations ──────────────────────────────────────────────────

// entryFor resolves key to a stock handle. Grain entries are created on first
// use; goods entries must already exist.
func (s *inventoryService) entryFor(ctx context.Context, uow *UnitOfWork, key StockKey) (*StockEntry, error) {
	if key.Kind == StockGrain {
		culture, err := uow.culture(ctx, key.CultureID)
		if err != nil {
			return nil, err
		}
		return s.stock.GetOrCreate(ctx, uow, key, culture.Name)
	}
	if key.Kind != StockGoods {
		return nil, invalidItem("unknown stock kind %q", key.Kind)
	}
	return s.stock.Lookup(ctx, uow, GoodsKey(key.Name, key.Category))
}

func (s *inventoryService) AdjustStock(ctx context.Context, actor Actor, key StockKey, delta decimal.Decimal) (*StockEntry, error) {
	return s.mutate(ctx, actor, "stock adjusted", key, func(uow *UnitOfWork, e *StockEntry) error {
		return s.stock.Adjust(ctx, uow, e, delta, StockRef{Source: SourceManual})
	})
}

func (s *inventoryService) ReserveStock(ctx context.Context, actor Actor, key StockKey, qty decimal.Decimal) (*StockEntry, error) {
	return s.mutate(ctx, actor, "stock reserved", key, func(uow *UnitOfWork, e *StockEntry) error {
		return s.stock.Reserve(ctx, uow, e, qty, StockRef{Source: SourceManual})
	})
}

func (s *inventoryService) ReleaseStock(ctx context.Context, actor Actor, key StockKey, qty decimal.Decimal) (*StockEntry, error) {
	return s.mutate(ctx, actor, "stock released", key, func(uow *UnitOfWork, e *StockEntry) error {
		if !qty.IsPositive() {
			return invalidItem("release quantity must be positive, got %s", qty)
		}
		if qty.GreaterThan(e.ReservedKg) {
			return amountErr(ErrInsufficientStock, "reservation of "+e.DisplayName, qty, e.ReservedKg)
		}
		_, err := s.stock.ReleaseReservation(ctx, uow, e, qty, StockRef{Source: SourceManual})
		return err
	})
}

func (s *inventoryService) mutate(ctx context.Context, actor Actor, event string, key StockKey,
	fn func(uow *UnitOfWork, e *StockEntry) error) (*StockEntry, error) {

	var out StockEntry
	err := s.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		e, err := s.entryFor(ctx, uow, key)
		if err != nil {
			return err
		}
		if err := fn(uow, e); err != nil {
			return err
		}
		out = *e
		return nil
	})
	if err != nil {
		s.log.Debug(event+" rejected", zap.Stringer("key", key), zap.Error(err))
		return nil, err
	}
	s.log.Info(event,
		zap.Stringer("key", out.Key),
		zap.String("total_kg", out.TotalKg.String()),
		zap.String("reserved_kg", out.ReservedKg.String()))
	return &out, nil
}

// ── Shipments ────────────────────────────────────────────────────────────────

func (s *inventoryService) CreateShipment(ctx context.Context, actor Actor, cultureID int, qty decimal.Decimal, destination string) (*GrainShipment, error) {
	var out *GrainShipment
	err := s.rt.run(ctx, actor, func(uow *UnitOfWork) error {
		if !qty.IsPositive() {
			return invalidItem("shipment quantity must be positive, got %s", qty)
		}
		dest := CleanName(destination)
		if dest == "" {
			return invalidItem("shipment destination is required")
		}
		culture, err := uow.culture(ctx, cultureID)
		if err != nil {
			return err
		}
		entry, err := s.stock.GetOrCreate(ctx, uow, GrainKey(culture.ID), culture.Name)
		if err != nil {
			return err
		}
		if avail := entry.Available(); qty.GreaterThan(avail) {
			return amountErr(ErrInsufficientStock, culture.Name, qty, avail)
		}
		if err := s.stock.ApplyDelta(ctx, uow, entry, qty.Neg(), OwnGrain,
			StockRef{Source: SourceShipment, Destination: dest}); err != nil {
			return err
		}
		sh := &GrainShipment{
			CultureID:   culture.ID,
			Destination: dest,
			QuantityKg:  qty,
			ActorID:     uow.Actor.ID,
			CreatedAt:   uow.Now,
		}
		if err := uow.Tx.InsertShipment(ctx, sh); err != nil {
			return fmt.Errorf("failed to insert shipment: %w", err)
		}
		out = sh
		return nil
	})
	if err != nil {
		s.log.Debug("shipment rejected", zap.Int("culture_id", cultureID), zap.Error(err))
		return nil, err
	}
	s.log.Info("shipment created",
		zap.Int("shipment_id", out.ID), zap.String("destination", out.Destination), zap.String("quantity_kg", qty.String()))
	return out, nil
}

func (s *inventoryService) ListShipments(ctx context.Context, cultureID *int) ([]GrainShipment, error) {
	var out []GrainShipment
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Tx.ListShipments(ctx, cultureID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}
	return out, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *inventoryService) StockSnapshot(ctx context.Context, key StockKey) (*StockEntry, error) {
	if key.Kind == StockGoods {
		key = GoodsKey(key.Name, key.Category)
	}
	var out *StockEntry
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		e, err := uow.Tx.FindStock(ctx, key)
		if errors.Is(err, ErrNotFound) && key.Kind == StockGrain {
			// A known culture with no stock yet reads as zero.
			if _, err := uow.culture(ctx, key.CultureID); err != nil {
				return err
			}
			out = &StockEntry{Key: key, TotalKg: decimal.Zero, OwnKg: decimal.Zero, FarmerKg: decimal.Zero, ReservedKg: decimal.Zero}
			return nil
		}
		if err != nil {
			return fmt.Errorf("stock %s: %w", key, err)
		}
		out = e
		return nil
	})
	return out, err
}

func (s *inventoryService) ListStock(ctx context.Context, kind StockKind) ([]StockEntry, error) {
	var out []StockEntry
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Tx.ListStock(ctx, kind)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	return out, nil
}

func (s *inventoryService) ListStockAdjustments(ctx context.Context, f AdjustmentFilter) ([]StockAdjustment, error) {
	var out []StockAdjustment
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		var err error
		out, err = uow.Tx.ListStockAdjustments(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stock adjustments: %w", err)
	}
	return out, nil
}

func (s *inventoryService) FarmerBalance(ctx context.Context, ownerID, cultureID int) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		if _, err := uow.owner(ctx, ownerID); err != nil {
			return err
		}
		if _, err := uow.culture(ctx, cultureID); err != nil {
			return err
		}
		var err error
		out, err = s.farmers.Balance(ctx, uow.Tx, ownerID, cultureID)
		return err
	})
	return out, err
}

func (s *inventoryService) FarmerBalances(ctx context.Context, ownerID int) ([]FarmerBalance, error) {
	var out []FarmerBalance
	err := s.rt.view(ctx, func(uow *UnitOfWork) error {
		if _, err := uow.owner(ctx, ownerID); err != nil {
			return err
		}
		var err error
		out, err = s.farmers.Balances(ctx, uow.Tx, ownerID)
		return err
	})
	return out, err
}
