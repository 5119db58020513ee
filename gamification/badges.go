package gamification

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecoback/reward-engine/core"
)

// =============================================================================
// BADGE CATALOGUE
// =============================================================================

type BadgeType string

const (
	BadgeActions  BadgeType = "actions"
	BadgePlastic  BadgeType = "plastic"
	BadgePaper    BadgeType = "paper"
	BadgeGlass    BadgeType = "glass"
	BadgeMetal    BadgeType = "metal"
	BadgeStreak   BadgeType = "streak"
	BadgeCO2      BadgeType = "co2"
	BadgeTrees    BadgeType = "trees"
	BadgeReferral BadgeType = "referral"
	BadgeLevel    BadgeType = "level"
)

type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Type        BadgeType `json:"type"`
	Requirement int64     `json:"requirement"`
}

var Catalogue = []Badge{
	{"first_recycle", "Beginner", "Complete your first recycling action", "🌱", BadgeActions, 1},
	{"recycle_10", "Active Recycler", "Recycle 10 times", "♻️", BadgeActions, 10},
	{"recycle_50", "Green Warrior", "Recycle 50 times", "🌿", BadgeActions, 50},
	{"recycle_100", "Environment Hero", "Recycle 100 times", "🏆", BadgeActions, 100},
	{"plastic_10kg", "Plastic Buster", "Recycle 10kg of plastic", "🥤", BadgePlastic, 10},
	{"paper_20kg", "Forest Saver", "Recycle 20kg of paper", "📄", BadgePaper, 20},
	{"glass_15kg", "Crystal Clear", "Recycle 15kg of glass", "🍾", BadgeGlass, 15},
	{"metal_10kg", "Precious Metal", "Recycle 10kg of metal", "⚙️", BadgeMetal, 10},
	{"streak_7", "Green Week", "Recycle 7 days in a row", "🔥", BadgeStreak, 7},
	{"streak_30", "Sustainable Month", "Recycle 30 days in a row", "⭐", BadgeStreak, 30},
	{"co2_100kg", "CO2 Cutter", "Save 100kg of CO2", "🌍", BadgeCO2, 100},
	{"trees_10", "Virtual Forest", "Save the equivalent of 10 trees", "🌳", BadgeTrees, 10},
	{"referral_5", "Inspirer", "Refer 5 friends", "👥", BadgeReferral, 5},
	{"level_5", "Level Up", "Reach level 5", "📈", BadgeLevel, 5},
	{"level_10", "Expert", "Reach level 10", "💎", BadgeLevel, 10},
}

// Progress returns the counter the badge measures.
func (b Badge) Progress(u *core.User) decimal.Decimal {
	imp := u.Impact
	switch b.Type {
	case BadgeActions:
		return decimal.NewFromInt(int64(imp.TotalRecycleActions))
	case BadgePlastic:
		return imp.PlasticRecycled
	case BadgePaper:
		return imp.PaperRecycled
	case BadgeGlass:
		return imp.GlassRecycled
	case BadgeMetal:
		return imp.MetalRecycled
	case BadgeStreak:
		return decimal.NewFromInt(int64(imp.ConsecutiveDays))
	case BadgeCO2:
		return imp.CO2Saved
	case BadgeTrees:
		return imp.TreesEquivalent
	case BadgeReferral:
		return decimal.NewFromInt(int64(len(u.Referrals)))
	case BadgeLevel:
		return decimal.NewFromInt(int64(u.Level))
	}
	return decimal.Zero
}

func (b Badge) Satisfied(u *core.User) bool {
	return b.Progress(u).GreaterThanOrEqual(decimal.NewFromInt(b.Requirement))
}

// Evaluate unlocks every satisfied badge u does not hold yet, stamped at
// now, and returns the newly unlocked ids in catalogue order.
func Evaluate(u *core.User, now time.Time) []string {
	var unlocked []string
	for _, b := range Catalogue {
		if u.HasBadge(b.ID) || !b.Satisfied(u) {
			continue
		}
		u.Badges = append(u.Badges, core.EarnedBadge{ID: b.ID, EarnedAt: now})
		unlocked = append(unlocked, b.ID)
	}
	return unlocked
}

// BadgeStatus is one catalogue entry as seen by one user.
type BadgeStatus struct {
	Badge
	Unlocked bool            `json:"unlocked"`
	EarnedAt *time.Time      `json:"earnedAt,omitempty"`
	Progress decimal.Decimal `json:"progress"`
}

// Statuses lists the whole catalogue with u's unlock state.
func Statuses(u *core.User) []BadgeStatus {
	earned := make(map[string]time.Time, len(u.Badges))
	for _, b := range u.Badges {
		earned[b.ID] = b.EarnedAt
	}
	out := make([]BadgeStatus, 0, len(Catalogue))
	for _, b := range Catalogue {
		st := BadgeStatus{Badge: b, Progress: b.Progress(u)}
		if at, ok := earned[b.ID]; ok {
			st.Unlocked = true
			st.EarnedAt = core.TimePtr(at)
		}
		out = append(out, st)
	}
	return out
}
