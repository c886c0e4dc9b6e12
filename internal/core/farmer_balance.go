package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// FarmerBalance is a farmer's redeemable grain of one culture.
type FarmerBalance struct {
	OwnerID   int             `json:"owner_id"`
	CultureID int             `json:"culture_id"`
	Culture   string          `json:"culture_name,omitempty"`
	BalanceKg decimal.Decimal `json:"balance_kg"`
}

// FarmerBalanceCalculator derives farmer balances from intake records and
// deductions. Nothing is cached: every call re-reads the records.
type FarmerBalanceCalculator struct{}

// Balance returns Σ accepted intake (not own grain, not pending quality)
// minus Σ deductions for the pair, reported as zero when not positive.
func (FarmerBalanceCalculator) Balance(ctx context.Context, tx Tx, ownerID, cultureID int) (decimal.Decimal, error) {
	raw, err := rawFarmerBalance(ctx, tx, ownerID, &cultureID)
	if err != nil {
		return decimal.Zero, err
	}
	return nonNegative(raw[cultureID]), nil
}

// Balances lists every culture in which the owner has a positive balance.
func (FarmerBalanceCalculator) Balances(ctx context.Context, tx Tx, ownerID int) ([]FarmerBalance, error) {
	raw, err := rawFarmerBalance(ctx, tx, ownerID, nil)
	if err != nil {
		return nil, err
	}
	var out []FarmerBalance
	for cultureID, kg := range raw {
		if !kg.IsPositive() {
			continue
		}
		fb := FarmerBalance{OwnerID: ownerID, CultureID: cultureID, BalanceKg: kg}
		if c, err := tx.GetCulture(ctx, cultureID); err == nil {
			fb.Culture = c.Name
		}
		out = append(out, fb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CultureID < out[j].CultureID })
	return out, nil
}

// Check fails with ErrInsufficientFarmerBalance when qty exceeds the balance
// by more than Epsilon.
func (f FarmerBalanceCalculator) Check(ctx context.Context, tx Tx, ownerID, cultureID int, qty decimal.Decimal, subject string) error {
	bal, err := f.Balance(ctx, tx, ownerID, cultureID)
	if err != nil {
		return err
	}
	if !ApproxLEQ(qty, bal) {
		return amountErr(ErrInsufficientFarmerBalance, subject, qty, bal)
	}
	return nil
}

func rawFarmerBalance(ctx context.Context, tx Tx, ownerID int, cultureID *int) (map[int]decimal.Decimal, error) {
	pending := false
	intakes, err := tx.ListIntakes(ctx, IntakeFilter{OwnerID: &ownerID, CultureID: cultureID, PendingQuality: &pending})
	if err != nil {
		return nil, fmt.Errorf("failed to list intakes: %w", err)
	}
	deductions, err := tx.ListDeductions(ctx, DeductionFilter{OwnerID: &ownerID, CultureID: cultureID})
	if err != nil {
		return nil, fmt.Errorf("failed to list deductions: %w", err)
	}
	out := make(map[int]decimal.Decimal)
	for _, r := range intakes {
		if r.IsOwnGrain {
			continue
		}
		out[r.CultureID] = out[r.CultureID].Add(r.AcceptedKg)
	}
	for _, d := range deductions {
		out[d.CultureID] = out[d.CultureID].Sub(d.QuantityKg)
	}
	return out, nil
}
