package core

import (
	"context"
	"fmt"
	"strings"
)

// ReferenceService maintains the cultures and owners the ledger prices and
// names items with.
type ReferenceService interface {
	SaveCulture(ctx context.Context, c Culture) (*Culture, error)
	ListCultures(ctx context.Context) ([]Culture, error)
	SaveOwner(ctx context.Context, o Owner) (*Owner, error)
	ListOwners(ctx context.Context) ([]Owner, error)
}

type referenceService struct {
	rt *Runtime
}

// NewReferenceService constructs a ReferenceService on the given runtime.
func NewReferenceService(rt *Runtime) ReferenceService {
	return &referenceService{rt: rt}
}

// SaveCulture inserts a culture when ID is zero and updates it otherwise.
func (s *referenceService) SaveCulture(ctx context.Context, c Culture) (*Culture, error) {
	c.Name = CleanName(c.Name)
	if c.Name == "" {
		return nil, invalidItem("culture name is required")
	}
	if c.PricePerKg.IsNegative() {
		return nil, invalidItem("culture price must not be negative")
	}
	err := s.rt.Store.RunInTx(ctx, func(tx Tx) error {
		if c.ID != 0 {
			if _, err := tx.GetCulture(ctx, c.ID); err != nil {
				return fmt.Errorf("culture %d: %w", c.ID, err)
			}
		}
		return tx.SaveCulture(ctx, &c)
	})
	if err != nil {
		return nil, fmt.Errorf("save culture %q: %w", c.Name, err)
	}
	return &c, nil
}

func (s *referenceService) ListCultures(ctx context.Context) ([]Culture, error) {
	var out []Culture
	err := s.rt.Store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListCultures(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list cultures: %w", err)
	}
	return out, nil
}

// SaveOwner inserts an owner when ID is zero and updates it otherwise.
func (s *referenceService) SaveOwner(ctx context.Context, o Owner) (*Owner, error) {
	o.FullName = CleanName(o.FullName)
	o.Phone = strings.TrimSpace(o.Phone)
	if o.FullName == "" {
		return nil, invalidItem("owner name is required")
	}
	err := s.rt.Store.RunInTx(ctx, func(tx Tx) error {
		if o.ID != 0 {
			if _, err := tx.GetOwner(ctx, o.ID); err != nil {
				return fmt.Errorf("owner %d: %w", o.ID, err)
			}
		}
		return tx.SaveOwner(ctx, &o)
	})
	if err != nil {
		return nil, fmt.Errorf("save owner %q: %w", o.FullName, err)
	}
	return &o, nil
}

func (s *referenceService) ListOwners(ctx context.Context) ([]Owner, error) {
	var out []Owner
	err := s.rt.Store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListOwners(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return out, nil
}
