package qrcode

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/core"
)

// =============================================================================
// PRODUCT CATALOGUE
// =============================================================================

type ProductInput struct {
	Name               string          `json:"name"`
	Category           string          `json:"category"`
	Price              core.Money      `json:"price"`
	CashbackPercentage decimal.Decimal `json:"cashbackPercentage"`
	RecycleReward      core.Money      `json:"recycleReward"`
	Material           core.Material   `json:"material"`
	// BrandOwnerID is honored for admins only; brands always own what they create.
	BrandOwnerID core.UserID `json:"brandOwnerId,omitempty"`
}

var hundred = decimal.NewFromInt(100)

func (in *ProductInput) validate() error {
	v := &core.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "required")
	}
	if in.Price.IsNegative() {
		v.Add("price", "must not be negative")
	}
	if in.CashbackPercentage.IsNegative() || in.CashbackPercentage.GreaterThan(hundred) {
		v.Add("cashbackPercentage", "must be within [0, 100]")
	}
	if in.RecycleReward.IsNegative() {
		v.Add("recycleReward", "must not be negative")
	}
	if in.Material == "" {
		in.Material = core.MaterialPlastic
	}
	if !in.Material.Valid() {
		v.Add("material", "unknown material")
	}
	return v.OrNil()
}

func (s *Service) CreateProduct(ctx context.Context, caller core.Principal, in ProductInput) (*core.Product, error) {
	if !caller.HasRole(core.RoleBrand, core.RoleAdmin) {
		return nil, core.ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	owner := caller.ID
	if caller.IsAdmin() && in.BrandOwnerID != "" {
		owner = in.BrandOwnerID
	}

	p := core.Product{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(in.Name),
		BrandOwnerID:       owner,
		Category:           in.Category,
		Price:              in.Price,
		CashbackPercentage: in.CashbackPercentage,
		RecycleReward:      in.RecycleReward.Round(),
		Material:           in.Material,
		IsActive:           true,
		CreatedAt:          s.clock.Now(),
	}
	if err := s.store.WithTx(ctx, func(r core.Repository) error { return r.CreateProduct(ctx, p) }); err != nil {
		return nil, err
	}
	s.log.Info("product created", zap.String("product_id", p.ID), zap.String("brand_owner_id", string(owner)))
	return &p, nil
}

// ProductUpdate changes only the fields that are set. Codes already
// generated keep the amounts they were minted with.
type ProductUpdate struct {
	Name               *string          `json:"name,omitempty"`
	Category           *string          `json:"category,omitempty"`
	Price              *core.Money      `json:"price,omitempty"`
	CashbackPercentage *decimal.Decimal `json:"cashbackPercentage,omitempty"`
	RecycleReward      *core.Money      `json:"recycleReward,omitempty"`
	Material           *core.Material   `json:"material,omitempty"`
	IsActive           *bool            `json:"isActive,omitempty"`
}

func (in ProductUpdate) apply(p *core.Product) error {
	next := ProductInput{
		Name:               p.Name,
		Category:           p.Category,
		Price:              p.Price,
		CashbackPercentage: p.CashbackPercentage,
		RecycleReward:      p.RecycleReward,
		Material:           p.Material,
	}
	if in.Name != nil {
		next.Name = *in.Name
	}
	if in.Category != nil {
		next.Category = *in.Category
	}
	if in.Price != nil {
		next.Price = *in.Price
	}
	if in.CashbackPercentage != nil {
		next.CashbackPercentage = *in.CashbackPercentage
	}
	if in.RecycleReward != nil {
		next.RecycleReward = *in.RecycleReward
	}
	if in.Material != nil {
		next.Material = *in.Material
	}
	if err := next.validate(); err != nil {
		return err
	}

	p.Name = strings.TrimSpace(next.Name)
	p.Category = next.Category
	p.Price = next.Price
	p.CashbackPercentage = next.CashbackPercentage
	p.RecycleReward = next.RecycleReward.Round()
	p.Material = next.Material
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return nil
}

// ownedProduct loads id for a change by caller: admins may touch any
// product, brands only their own.
func ownedProduct(ctx context.Context, r core.Repository, caller core.Principal, id string) (*core.Product, error) {
	if !caller.HasRole(core.RoleBrand, core.RoleAdmin) {
		return nil, core.ErrForbidden
	}
	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	if !caller.IsAdmin() && p.BrandOwnerID != caller.ID {
		return nil, core.ErrForbidden
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, caller core.Principal, id string, in ProductUpdate) (*core.Product, error) {
	var p *core.Product
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		if p, err = ownedProduct(ctx, r, caller, id); err != nil {
			return err
		}
		if err := in.apply(p); err != nil {
			return err
		}
		return r.UpdateProduct(ctx, *p)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("product updated", zap.String("product_id", id), zap.String("by", string(caller.ID)))
	return p, nil
}

// DeactivateProduct hides a product from the catalogue and stops new
// batches for it. Codes already printed stay claimable.
func (s *Service) DeactivateProduct(ctx context.Context, caller core.Principal, id string) (*core.Product, error) {
	var p *core.Product
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		var err error
		if p, err = ownedProduct(ctx, r, caller, id); err != nil {
			return err
		}
		p.IsActive = false
		return r.UpdateProduct(ctx, *p)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("product deactivated", zap.String("product_id", id), zap.String("by", string(caller.ID)))
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*core.Product, error) {
	var p *core.Product
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		p, err = r.GetProduct(ctx, id)
		return err
	})
	return p, err
}

func (s *Service) ListProducts(ctx context.Context, f core.ProductFilter) ([]core.Product, error) {
	var out []core.Product
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		out, err = r.ListProducts(ctx, f)
		return err
	})
	if out == nil {
		out = []core.Product{}
	}
	return out, err
}
