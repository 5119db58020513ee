package rewards

import (
	"github.com/shopspring/decimal"

	"github.com/ecoback/reward-engine/core"
)

// factor holds the savings per kg of one material.
type factor struct {
	co2    decimal.Decimal // kg
	water  decimal.Decimal // liters
	energy decimal.Decimal // kWh
}

func f(co2, water, energy string) factor {
	return factor{
		co2:    decimal.RequireFromString(co2),
		water:  decimal.RequireFromString(water),
		energy: decimal.RequireFromString(energy),
	}
}

var impactFactors = map[core.Material]factor{
	core.MaterialPlastic: f("1.5", "20", "5"),
	core.MaterialGlass:   f("0.5", "10", "2"),
	core.MaterialPaper:   f("1.0", "50", "3"),
	core.MaterialMetal:   f("2.0", "30", "8"),
	core.MaterialMixed:   f("1.0", "25", "4"),
}

// co2PerTreeYear is the CO2 one tree absorbs in a year, in kg.
var co2PerTreeYear = decimal.RequireFromString("21.77")

// Impact sums the environmental savings of items.
func Impact(items []core.RecycleItem) core.EnvImpact {
	out := core.EnvImpact{CO2Saved: decimal.Zero, WaterSaved: decimal.Zero, EnergySaved: decimal.Zero}
	for _, it := range items {
		fc, ok := impactFactors[it.Material]
		if !ok {
			fc = impactFactors[core.MaterialMixed]
		}
		out.CO2Saved = out.CO2Saved.Add(it.Weight.Mul(fc.co2))
		out.WaterSaved = out.WaterSaved.Add(it.Weight.Mul(fc.water))
		out.EnergySaved = out.EnergySaved.Add(it.Weight.Mul(fc.energy))
	}
	return out
}

// TreesEquivalent converts saved CO2 (kg) to tree-years, 2 decimals.
func TreesEquivalent(co2 decimal.Decimal) decimal.Decimal {
	return co2.DivRound(co2PerTreeYear, 2)
}

// ApplyImpact folds a batch into a user's counters: per-material weights,
// savings and trees equivalent. Action count and streak are not touched.
func ApplyImpact(dst *core.Impact, items []core.RecycleItem) core.EnvImpact {
	env := Impact(items)
	for _, it := range items {
		dst.AddMaterial(it.Material, it.Weight)
	}
	dst.CO2Saved = dst.CO2Saved.Add(env.CO2Saved)
	dst.WaterSaved = dst.WaterSaved.Add(env.WaterSaved)
	dst.EnergySaved = dst.EnergySaved.Add(env.EnergySaved)
	dst.TreesEquivalent = TreesEquivalent(dst.CO2Saved)
	return env
}
