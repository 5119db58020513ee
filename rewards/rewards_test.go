package rewards_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/rewards"
)

func item(m core.Material, kg float64, c core.Condition) core.RecycleItem {
	return core.RecycleItem{Material: m, Weight: core.Kg(kg), Quantity: 1, Condition: c}
}

// =============================================================================
// RECYCLE REQUEST REWARD
// =============================================================================

func TestRecycleReward_CleanPlasticUnderBulkThreshold(t *testing.T) {
	// GIVEN: 5kg of clean plastic
	// WHEN: Computing the reward
	// THEN: base 10000 + quality 1000, no bulk bonus, XP 11 + 50

	b := rewards.RecycleReward([]core.RecycleItem{item(core.MaterialPlastic, 5, core.ConditionClean)})

	assert.True(t, b.Base.Equal(core.NewMoney(10000)))
	assert.True(t, b.QualityBonus.Equal(core.NewMoney(1000)))
	assert.True(t, b.BulkBonus.IsZero())
	assert.True(t, b.Total.Equal(core.NewMoney(11000)), "got %s", b.Total)
	assert.Equal(t, int64(61), b.XP)
	assert.Equal(t, "quality bonus 10%", b.BonusReason())
}

func TestRecycleReward_Table(t *testing.T) {
	tests := []struct {
		name  string
		items []core.RecycleItem
		total int64
		xp    int64
	}{
		{
			name:  "empty",
			items: nil,
			total: 0,
			xp:    0,
		},
		{
			name:  "exactly 10kg gets no bulk bonus",
			items: []core.RecycleItem{item(core.MaterialGlass, 10, core.ConditionIntact)},
			total: 10000,
			xp:    10 + 100,
		},
		{
			name:  "over 10kg gets bulk bonus",
			items: []core.RecycleItem{item(core.MaterialMetal, 11, core.ConditionDirty)},
			total: 66000, // 55000 * 1.2
			xp:    66 + 110,
		},
		{
			name: "quality and bulk stack on base",
			items: []core.RecycleItem{
				item(core.MaterialPaper, 8, core.ConditionClean),
				item(core.MaterialPlastic, 4, core.ConditionDamaged),
			},
			total: 26000, // (12000+8000) * 1.3
			xp:    26 + 120,
		},
		{
			name:  "unknown material paid at mixed rate",
			items: []core.RecycleItem{item("rubber", 2, core.ConditionIntact)},
			total: 2000,
			xp:    2 + 20,
		},
		{
			name:  "fractional weight rounds total",
			items: []core.RecycleItem{item(core.MaterialPaper, 0.333, core.ConditionIntact)},
			total: 500, // 499.5 rounds half up
			xp:    0 + 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := rewards.RecycleReward(tt.items)
			assert.True(t, b.Total.Equal(core.NewMoney(tt.total)), "total: got %s want %d", b.Total, tt.total)
			assert.Equal(t, tt.xp, b.XP)
		})
	}
}

// =============================================================================
// QR CLAIMS
// =============================================================================

func TestCashbackAmount_RoundsToWholeDong(t *testing.T) {
	got := rewards.CashbackAmount(core.NewMoney(45500), decimal.NewFromInt(5))
	assert.True(t, got.Equal(core.NewMoney(2275)), "got %s", got)

	got = rewards.CashbackAmount(core.NewMoney(19999), decimal.RequireFromString("2.5"))
	assert.True(t, got.Equal(core.NewMoney(500)), "got %s", got)
}

func TestClaimXP(t *testing.T) {
	assert.Equal(t, int64(12), rewards.CashbackXP(core.NewMoney(2500)))
	assert.Equal(t, int64(10), rewards.CashbackXP(core.NewMoney(999)))
	assert.Equal(t, int64(24), rewards.RecycleClaimXP(core.NewMoney(2000)))
	assert.Equal(t, int64(20), rewards.RecycleClaimXP(core.NewMoney(499)))
}

func TestPackagingWeight(t *testing.T) {
	assert.True(t, rewards.PackagingWeight("personal-care").Equal(core.Kg(0.05)))
	assert.True(t, rewards.PackagingWeight("household").Equal(core.Kg(0.1)))
	assert.True(t, rewards.PackagingWeight("food-beverage").Equal(core.Kg(0.03)))
}

// =============================================================================
// ENVIRONMENTAL IMPACT
// =============================================================================

func TestApplyImpact_AccumulatesCountersAndTrees(t *testing.T) {
	// GIVEN: A user who already saved 20kg CO2
	// WHEN: Applying 10kg plastic and 2kg metal
	// THEN: CO2 grows by 15 + 4, trees are recomputed from the new total

	imp := core.Impact{CO2Saved: core.Kg(20)}
	env := rewards.ApplyImpact(&imp, []core.RecycleItem{
		item(core.MaterialPlastic, 10, core.ConditionClean),
		item(core.MaterialMetal, 2, core.ConditionClean),
	})

	assert.True(t, env.CO2Saved.Equal(core.Kg(19)))
	assert.True(t, env.WaterSaved.Equal(core.Kg(260)))
	assert.True(t, env.EnergySaved.Equal(core.Kg(66)))
	assert.True(t, imp.CO2Saved.Equal(core.Kg(39)))
	assert.True(t, imp.PlasticRecycled.Equal(core.Kg(10)))
	assert.True(t, imp.MetalRecycled.Equal(core.Kg(2)))
	assert.True(t, imp.TreesEquivalent.Equal(core.Kg(1.79)), "got %s", imp.TreesEquivalent)
}
