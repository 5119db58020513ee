/*
Package rewards is the reward policy: pure functions from material, weight,
condition and product attributes to money and experience points.

PURPOSE:
  Every amount the engine credits is computed here and nowhere else.
  Nothing in this package touches a store, a clock or a logger.

RATES (VND per kg):
  plastic 2000, glass 1000, paper 1500, metal 5000, mixed 1000
  Unknown materials are paid at the mixed rate.

RECYCLE REQUEST REWARD:
  base    = sum(weight x rate[material])
  quality = +10% of base when any item is clean
  bulk    = +20% of base when total weight > 10kg
  total   = round(base + quality + bulk)
  xp      = floor(total/1000) + floor(totalKg x 10)

QR CLAIMS:
  cashback xp = floor(amount/1000) + 10
  recycle xp  = 20 + floor(reward/500)

EXAMPLE:
  [{plastic, 5kg, clean}] -> base 10000, quality 1000, bulk 0
  total 11000, xp 11 + 50 = 61

SEE ALSO:
  - impact.go: environmental savings per kg
  - gamification/: level and badges driven by the xp computed here
*/
package rewards

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecoback/reward-engine/core"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// ReferralBonus is credited to the referrer when a referred user registers.
	ReferralBonus int64 = 50000

	// MinWithdrawal is the smallest withdrawal request accepted, in VND.
	MinWithdrawal int64 = 50000

	// QRValidity is how long a generated QR code can be claimed.
	QRValidity = 365 * 24 * time.Hour

	// MaxBatchSize bounds one QR generation request.
	MaxBatchSize = 10000

	// BulkThresholdKg: strictly more than this earns the bulk bonus.
	BulkThresholdKg = 10
)

var (
	qualityBonusRate = decimal.RequireFromString("0.1")
	bulkBonusRate    = decimal.RequireFromString("0.2")
	bulkThreshold    = decimal.NewFromInt(BulkThresholdKg)
	xpPerKg          = decimal.NewFromInt(10)
)

var rates = map[core.Material]int64{
	core.MaterialPlastic: 2000,
	core.MaterialGlass:   1000,
	core.MaterialPaper:   1500,
	core.MaterialMetal:   5000,
	core.MaterialMixed:   1000,
}

// Rate returns the VND/kg rate for m.
func Rate(m core.Material) core.Money {
	r, ok := rates[m]
	if !ok {
		r = rates[core.MaterialMixed]
	}
	return core.NewMoney(r)
}

// =============================================================================
// RECYCLE REQUEST
// =============================================================================

// Breakdown explains a recycle request reward.
type Breakdown struct {
	Base         core.Money
	QualityBonus core.Money
	BulkBonus    core.Money
	Total        core.Money // rounded to whole dong
	TotalWeight  decimal.Decimal
	XP           int64
}

// BonusReason renders the applied bonuses for display, empty when none.
func (b Breakdown) BonusReason() string {
	switch {
	case b.QualityBonus.IsPositive() && b.BulkBonus.IsPositive():
		return "quality bonus 10%, bulk bonus 20%"
	case b.QualityBonus.IsPositive():
		return "quality bonus 10%"
	case b.BulkBonus.IsPositive():
		return "bulk bonus 20%"
	}
	return ""
}

// RecycleReward computes the reward for a batch. Callers pass the actual
// (verified) items when paying out and the submitted ones for estimates.
func RecycleReward(items []core.RecycleItem) Breakdown {
	base := core.NewMoney(0)
	anyClean := false
	for _, it := range items {
		base = base.Add(Rate(it.Material).Mul(it.Weight))
		if it.Condition == core.ConditionClean {
			anyClean = true
		}
	}

	b := Breakdown{
		Base:         base,
		QualityBonus: core.NewMoney(0),
		BulkBonus:    core.NewMoney(0),
		TotalWeight:  core.TotalWeight(items),
	}
	if anyClean {
		b.QualityBonus = base.Mul(qualityBonusRate)
	}
	if b.TotalWeight.GreaterThan(bulkThreshold) {
		b.BulkBonus = base.Mul(bulkBonusRate)
	}
	b.Total = base.Add(b.QualityBonus).Add(b.BulkBonus).Round()
	b.XP = RecycleRequestXP(b.Total, b.TotalWeight)
	return b
}

// RecycleRequestXP = floor(total/1000) + floor(kg*10).
func RecycleRequestXP(total core.Money, weightKg decimal.Decimal) int64 {
	return total.Thousands() + weightKg.Mul(xpPerKg).Floor().IntPart()
}

// =============================================================================
// QR CLAIMS
// =============================================================================

// CashbackAmount is price x percentage / 100, rounded to whole dong.
func CashbackAmount(price core.Money, percentage decimal.Decimal) core.Money {
	return price.Mul(percentage).Mul(decimal.New(1, -2)).Round()
}

// CashbackXP = floor(amount/1000) + 10.
func CashbackXP(amount core.Money) int64 {
	return amount.Thousands() + 10
}

// RecycleClaimXP = 20 + floor(reward/500).
func RecycleClaimXP(reward core.Money) int64 {
	return 20 + reward.Value.Div(decimal.NewFromInt(500)).Floor().IntPart()
}

// PackagingWeight estimates the packaging of one product unit, in kg.
// It is a fixed heuristic by product category, not a measurement.
func PackagingWeight(category string) decimal.Decimal {
	switch category {
	case "personal-care":
		return decimal.New(50, -3)
	case "household":
		return decimal.New(100, -3)
	default:
		return decimal.New(30, -3)
	}
}
