package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MATERIALS
// =============================================================================

type Material string

const (
	MaterialPlastic Material = "plastic"
	MaterialGlass   Material = "glass"
	MaterialPaper   Material = "paper"
	MaterialMetal   Material = "metal"
	MaterialMixed   Material = "mixed"
)

var Materials = []Material{MaterialPlastic, MaterialGlass, MaterialPaper, MaterialMetal, MaterialMixed}

func (m Material) Valid() bool {
	for _, x := range Materials {
		if x == m {
			return true
		}
	}
	return false
}

type Condition string

const (
	ConditionClean   Condition = "clean"
	ConditionDirty   Condition = "dirty"
	ConditionDamaged Condition = "damaged"
	ConditionIntact  Condition = "intact"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionClean, ConditionDirty, ConditionDamaged, ConditionIntact:
		return true
	}
	return false
}

// =============================================================================
// USER
// =============================================================================

// Wallet is owned exclusively by its User and mutated only through
// wallet.ApplyDelta / withdrawal settlement.
//
// Invariant: Balance == TotalEarned - TotalWithdrawn, Balance >= 0.
type Wallet struct {
	Balance        Money `json:"balance"`
	TotalEarned    Money `json:"totalEarned"`
	TotalWithdrawn Money `json:"totalWithdrawn"`
}

// Impact holds the accumulated environmental counters. Weights are kg.
type Impact struct {
	PlasticRecycled     decimal.Decimal `json:"totalPlasticRecycled"`
	GlassRecycled       decimal.Decimal `json:"totalGlassRecycled"`
	PaperRecycled       decimal.Decimal `json:"totalPaperRecycled"`
	MetalRecycled       decimal.Decimal `json:"totalMetalRecycled"`
	MixedRecycled       decimal.Decimal `json:"totalMixedRecycled"`
	CO2Saved            decimal.Decimal `json:"co2Saved"`
	WaterSaved          decimal.Decimal `json:"waterSaved"`
	EnergySaved         decimal.Decimal `json:"energySaved"`
	TreesEquivalent     decimal.Decimal `json:"treesEquivalent"`
	TotalRecycleActions int             `json:"totalRecycleActions"`
	ConsecutiveDays     int             `json:"consecutiveDays"`
	LastActionAt        *time.Time      `json:"lastActionAt,omitempty"`
}

// AddMaterial adds kg to the counter for m.
func (i *Impact) AddMaterial(m Material, kg decimal.Decimal) {
	switch m {
	case MaterialPlastic:
		i.PlasticRecycled = i.PlasticRecycled.Add(kg)
	case MaterialGlass:
		i.GlassRecycled = i.GlassRecycled.Add(kg)
	case MaterialPaper:
		i.PaperRecycled = i.PaperRecycled.Add(kg)
	case MaterialMetal:
		i.MetalRecycled = i.MetalRecycled.Add(kg)
	default:
		i.MixedRecycled = i.MixedRecycled.Add(kg)
	}
}

// Recycled returns the counter for m.
func (i Impact) Recycled(m Material) decimal.Decimal {
	switch m {
	case MaterialPlastic:
		return i.PlasticRecycled
	case MaterialGlass:
		return i.GlassRecycled
	case MaterialPaper:
		return i.PaperRecycled
	case MaterialMetal:
		return i.MetalRecycled
	default:
		return i.MixedRecycled
	}
}

type EarnedBadge struct {
	ID       string    `json:"id"`
	EarnedAt time.Time `json:"earnedAt"`
}

type User struct {
	ID           UserID        `json:"id"`
	FullName     string        `json:"fullName"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone"`
	PasswordHash string        `json:"passwordHash,omitempty"`
	Role         Role          `json:"role"`
	Wallet       Wallet        `json:"wallet"`
	Impact       Impact        `json:"impact"`
	XP           int64         `json:"xp"`
	Level        int           `json:"level"`
	Badges       []EarnedBadge `json:"badges"`
	ReferralCode string        `json:"referralCode"`
	ReferredBy   UserID        `json:"referredBy,omitempty"`
	Referrals    []UserID      `json:"referrals"`
	IsActive     bool          `json:"isActive"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// HasBadge reports whether id is already unlocked.
func (u *User) HasBadge(id string) bool {
	for _, b := range u.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// PRODUCT
// =============================================================================

type Product struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	BrandOwnerID       UserID          `json:"brandOwnerId"`
	Category           string          `json:"category"`
	Price              Money           `json:"price"`
	CashbackPercentage decimal.Decimal `json:"cashbackPercentage"`
	RecycleReward      Money           `json:"recycleReward"`
	Material           Material        `json:"material"`
	IsActive           bool            `json:"isActive"`
	CreatedAt          time.Time       `json:"createdAt"`
}

type ProductFilter struct {
	BrandOwnerID UserID
	Category     string
	ActiveOnly   bool
}
