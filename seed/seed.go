/*
Package seed loads a YAML fixture of accounts, products and collection
points and inserts it into a store. It replaces hand-built demo data: a
fresh database started with seed.file set comes up with staff accounts, a
brand catalogue and drop-off locations.

FORMAT:
  users:
    - id: admin-1
      fullName: EcoBack Admin
      email: admin@ecoback.vn
      password: admin123
      role: admin
  products:
    - id: p-shampoo
      name: Shampoo 500ml
      brandOwnerId: brand-1
      category: personal-care
      price: 120000
      cashbackPercentage: 5
      recycleReward: 2000
      material: plastic
  collectionPoints:
    - id: cp-d1
      name: District 1 Hub
      address: 1 Le Loi
      city: Ho Chi Minh
      location: {lat: 10.7769, lng: 106.7009}
      acceptedMaterials: [plastic, paper]
      maxCapacity: 500

IDEMPOTENCY:
  Records whose id already exists are skipped, so applying the same
  fixture on every boot is safe. Everything is inserted in one unit of
  work: a bad record leaves the store untouched.
*/
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ecoback/reward-engine/auth"
	"github.com/ecoback/reward-engine/core"
)

type Fixture struct {
	Users            []UserSeed    `yaml:"users"`
	Products         []ProductSeed `yaml:"products"`
	CollectionPoints []PointSeed   `yaml:"collectionPoints"`
}

type UserSeed struct {
	ID       string `yaml:"id"`
	FullName string `yaml:"fullName"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type ProductSeed struct {
	ID                 string  `yaml:"id"`
	Name               string  `yaml:"name"`
	BrandOwnerID       string  `yaml:"brandOwnerId"`
	Category           string  `yaml:"category"`
	Price              int64   `yaml:"price"`
	CashbackPercentage float64 `yaml:"cashbackPercentage"`
	RecycleReward      int64   `yaml:"recycleReward"`
	Material           string  `yaml:"material"`
}

type PointSeed struct {
	ID                string        `yaml:"id"`
	Name              string        `yaml:"name"`
	Address           string        `yaml:"address"`
	City              string        `yaml:"city"`
	Phone             string        `yaml:"phone"`
	Location          core.GeoPoint `yaml:"location"`
	AcceptedMaterials []string      `yaml:"acceptedMaterials"`
	MaxCapacity       float64       `yaml:"maxCapacity"`
}

// Load reads and validates the fixture at path.
func Load(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	v := &core.ValidationError{}
	for i, u := range f.Users {
		at := fmt.Sprintf("users[%d]", i)
		if u.ID == "" || u.Email == "" {
			v.Add(at, "id and email are required")
		}
		if !core.Role(u.Role).Valid() {
			v.Add(at+".role", fmt.Sprintf("unknown role %q", u.Role))
		}
		if len(u.Password) < auth.MinPasswordLength {
			v.Add(at+".password", "too short")
		}
	}
	for i, p := range f.Products {
		at := fmt.Sprintf("products[%d]", i)
		if p.ID == "" || p.Name == "" || p.BrandOwnerID == "" {
			v.Add(at, "id, name and brandOwnerId are required")
		}
		if !core.Material(p.Material).Valid() {
			v.Add(at+".material", fmt.Sprintf("unknown material %q", p.Material))
		}
		if p.CashbackPercentage < 0 || p.CashbackPercentage > 100 {
			v.Add(at+".cashbackPercentage", "must be within [0, 100]")
		}
	}
	for i, p := range f.CollectionPoints {
		at := fmt.Sprintf("collectionPoints[%d]", i)
		if p.ID == "" || p.Name == "" {
			v.Add(at, "id and name are required")
		}
		for _, m := range p.AcceptedMaterials {
			if !core.Material(m).Valid() {
				v.Add(at+".acceptedMaterials", fmt.Sprintf("unknown material %q", m))
			}
		}
	}
	return v.OrNil()
}

// Report counts what Apply inserted and skipped.
type Report struct {
	Users, Products, Points int
	Skipped                 int
}

// Apply inserts f into st. cost is the bcrypt cost for seeded passwords.
func Apply(ctx context.Context, st core.Store, f *Fixture, now time.Time, cost int) (*Report, error) {
	// hashing is slow; do it before taking the write lock
	hashes := make([]string, len(f.Users))
	for i, u := range f.Users {
		h, err := auth.HashPassword(u.Password, cost)
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}

	var rep Report
	err := st.WithTx(ctx, func(r core.Repository) error {
		for i, u := range f.Users {
			_, err := r.GetUser(ctx, core.UserID(u.ID))
			found, err := exists(err)
			if err != nil {
				return err
			}
			if found {
				rep.Skipped++
				continue
			}
			if err := r.CreateUser(ctx, newUser(u, hashes[i], now)); err != nil {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
			rep.Users++
		}

		for _, p := range f.Products {
			_, err := r.GetProduct(ctx, p.ID)
			found, err := exists(err)
			if err != nil {
				return err
			}
			if found {
				rep.Skipped++
				continue
			}
			if err := r.CreateProduct(ctx, newProduct(p, now)); err != nil {
				return fmt.Errorf("seed product %s: %w", p.ID, err)
			}
			rep.Products++
		}

		for _, p := range f.CollectionPoints {
			_, err := r.GetPoint(ctx, p.ID)
			found, err := exists(err)
			if err != nil {
				return err
			}
			if found {
				rep.Skipped++
				continue
			}
			if err := r.CreatePoint(ctx, newPoint(p, now)); err != nil {
				return fmt.Errorf("seed collection point %s: %w", p.ID, err)
			}
			rep.Points++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// exists turns a lookup error into found / not found / failure.
func exists(err error) (bool, error) {
	if core.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func newUser(u UserSeed, hash string, now time.Time) core.User {
	id := core.UserID(u.ID)
	zero := core.NewMoney(0)
	return core.User{
		ID:           id,
		FullName:     u.FullName,
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		Phone:        u.Phone,
		PasswordHash: hash,
		Role:         core.Role(u.Role),
		Wallet:       core.Wallet{Balance: zero, TotalEarned: zero, TotalWithdrawn: zero},
		Level:        1,
		Badges:       []core.EarnedBadge{},
		ReferralCode: auth.ReferralCode(id),
		Referrals:    []core.UserID{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newProduct(p ProductSeed, now time.Time) core.Product {
	return core.Product{
		ID:                 p.ID,
		Name:               p.Name,
		BrandOwnerID:       core.UserID(p.BrandOwnerID),
		Category:           p.Category,
		Price:              core.NewMoney(p.Price),
		CashbackPercentage: decimal.NewFromFloat(p.CashbackPercentage),
		RecycleReward:      core.NewMoney(p.RecycleReward),
		Material:           core.Material(p.Material),
		IsActive:           true,
		CreatedAt:          now,
	}
}

func newPoint(p PointSeed, now time.Time) core.CollectionPoint {
	cp := core.CollectionPoint{
		ID:       p.ID,
		Name:     p.Name,
		Address:  p.Address,
		City:     p.City,
		Phone:    p.Phone,
		Location: p.Location,
		Capacity: core.Capacity{Current: decimal.Zero, Maximum: decimal.NewFromFloat(p.MaxCapacity)},
		Stats: core.PointStats{
			TotalWeightCollected: decimal.Zero,
			RecentDropoffs:       []core.Dropoff{},
		},
		IsActive:  true,
		CreatedAt: now,
	}
	for _, m := range p.AcceptedMaterials {
		cp.AcceptedMaterials = append(cp.AcceptedMaterials, core.AcceptedMaterial{
			Type: core.Material(m), CollectedAmount: decimal.Zero,
		})
	}
	return cp
}
