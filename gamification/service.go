package gamification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/core"
)

// Progress summarizes what one rewarding action did to a user.
type Progress struct {
	XPGained  int64    `json:"xpGained"`
	TotalXP   int64    `json:"totalXp"`
	Level     int      `json:"level"`
	LeveledUp bool     `json:"leveledUp"`
	NewBadges []string `json:"newBadges,omitempty"`
}

// Apply awards xp and unlocks badges. Call it after counters were updated
// and before the user is saved, inside the same unit of work.
func Apply(u *core.User, xp int64, now time.Time) Progress {
	up := AwardXP(u, xp)
	return Progress{
		XPGained:  xp,
		TotalXP:   u.XP,
		Level:     u.Level,
		LeveledUp: up,
		NewBadges: Evaluate(u, now),
	}
}

// =============================================================================
// SERVICE - Read side
// =============================================================================

type Service struct {
	store core.Store
	clock core.Clock
	log   *zap.Logger
}

func NewService(store core.Store, clock core.Clock, log *zap.Logger) *Service {
	return &Service{store: store, clock: clock, log: log.Named("gamification")}
}

type MaterialTotals struct {
	Plastic decimal.Decimal `json:"plastic"`
	Glass   decimal.Decimal `json:"glass"`
	Paper   decimal.Decimal `json:"paper"`
	Metal   decimal.Decimal `json:"metal"`
	Mixed   decimal.Decimal `json:"mixed"`
	Total   decimal.Decimal `json:"total"`
}

type ImpactReport struct {
	Materials       MaterialTotals  `json:"materials"`
	CO2Saved        decimal.Decimal `json:"co2Saved"`
	WaterSaved      decimal.Decimal `json:"waterSaved"`
	EnergySaved     decimal.Decimal `json:"energySaved"`
	TreesEquivalent decimal.Decimal `json:"treesEquivalent"`
	TotalActions    int             `json:"totalActions"`
	ConsecutiveDays int             `json:"consecutiveDays"`
	LastActionAt    *time.Time      `json:"lastActionAt,omitempty"`
	Level           int             `json:"level"`
	XP              int64           `json:"xp"`
	XPToNextLevel   int64           `json:"xpToNextLevel"`
	Badges          int             `json:"badges"`
}

func (s *Service) Impact(ctx context.Context, userID core.UserID) (*ImpactReport, error) {
	var u *core.User
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		u, err = r.GetUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	imp := u.Impact
	return &ImpactReport{
		Materials: MaterialTotals{
			Plastic: imp.PlasticRecycled,
			Glass:   imp.GlassRecycled,
			Paper:   imp.PaperRecycled,
			Metal:   imp.MetalRecycled,
			Mixed:   imp.MixedRecycled,
			Total: imp.PlasticRecycled.Add(imp.GlassRecycled).Add(imp.PaperRecycled).
				Add(imp.MetalRecycled).Add(imp.MixedRecycled),
		},
		CO2Saved:        imp.CO2Saved,
		WaterSaved:      imp.WaterSaved,
		EnergySaved:     imp.EnergySaved,
		TreesEquivalent: imp.TreesEquivalent,
		TotalActions:    imp.TotalRecycleActions,
		ConsecutiveDays: imp.ConsecutiveDays,
		LastActionAt:    imp.LastActionAt,
		Level:           u.Level,
		XP:              u.XP,
		XPToNextLevel:   XPToNextLevel(u.XP),
		Badges:          len(u.Badges),
	}, nil
}

type BadgesReport struct {
	Badges    []BadgeStatus `json:"badges"`
	Unlocked  int           `json:"unlocked"`
	Total     int           `json:"total"`
	NewBadges []string      `json:"newBadges"`
}

// Badges evaluates and persists any badge whose threshold was crossed
// without an event (seeded counters, catalogue additions).
func (s *Service) Badges(ctx context.Context, userID core.UserID) (*BadgesReport, error) {
	report := &BadgesReport{NewBadges: []string{}}
	err := s.store.WithTx(ctx, func(r core.Repository) error {
		u, err := r.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if fresh := Evaluate(u, s.clock.Now()); len(fresh) > 0 {
			u.UpdatedAt = s.clock.Now()
			if err := r.UpdateUser(ctx, *u); err != nil {
				return err
			}
			report.NewBadges = fresh
		}
		report.Badges = Statuses(u)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, b := range report.Badges {
		if b.Unlocked {
			report.Unlocked++
		}
	}
	report.Total = len(report.Badges)
	if len(report.NewBadges) > 0 {
		s.log.Info("badges unlocked on read",
			zap.String("user_id", string(userID)), zap.Strings("badges", report.NewBadges))
	}
	return report, nil
}

func (s *Service) Leaderboard(ctx context.Context, t LeaderboardType, limit int, caller core.UserID) (*Leaderboard, error) {
	var users []core.User
	err := s.store.View(ctx, func(r core.Repository) error {
		var err error
		users, err = r.ListUsers(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	// staff accounts do not compete
	players := users[:0]
	for _, u := range users {
		if u.Role == core.RoleUser {
			players = append(players, u)
		}
	}
	lb := Rank(players, t, limit, caller)
	return &lb, nil
}
