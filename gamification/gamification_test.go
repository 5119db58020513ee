package gamification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/core"
	"github.com/ecoback/reward-engine/core/store"
	"github.com/ecoback/reward-engine/gamification"
)

var day1 = time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)

// =============================================================================
// LEVEL
// =============================================================================

func TestLevel(t *testing.T) {
	tests := []struct {
		xp    int64
		level int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{10000, 11},
		{980100, 100},
		{5_000_000, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, gamification.Level(tt.xp), "xp=%d", tt.xp)
	}
}

func TestXPToNextLevel(t *testing.T) {
	assert.Equal(t, int64(100), gamification.XPToNextLevel(0))
	assert.Equal(t, int64(500), gamification.XPToNextLevel(400)) // level 3 -> 4 at 900
	assert.Equal(t, int64(0), gamification.XPToNextLevel(5_000_000))
}

func TestAwardXP_ReportsLevelUp(t *testing.T) {
	u := &core.User{Level: 1}

	assert.False(t, gamification.AwardXP(u, 61))
	assert.True(t, gamification.AwardXP(u, 39))
	assert.Equal(t, int64(100), u.XP)
	assert.Equal(t, 2, u.Level)
	assert.False(t, gamification.AwardXP(u, 0))
}

// =============================================================================
// STREAK
// =============================================================================

func TestRecordAction_Streak(t *testing.T) {
	// GIVEN: A user with no actions
	// WHEN: Acting on day 1, again on day 1, day 2, then day 4
	// THEN: Streak goes 1, 1, 2, 1 and actions count every call

	var imp core.Impact

	gamification.RecordAction(&imp, day1)
	assert.Equal(t, 1, imp.ConsecutiveDays)

	gamification.RecordAction(&imp, day1.Add(5*time.Hour))
	assert.Equal(t, 1, imp.ConsecutiveDays, "same day leaves the streak unchanged")

	gamification.RecordAction(&imp, day1.Add(24*time.Hour))
	assert.Equal(t, 2, imp.ConsecutiveDays)

	gamification.RecordAction(&imp, day1.Add(72*time.Hour))
	assert.Equal(t, 1, imp.ConsecutiveDays, "a gap restarts the streak")

	assert.Equal(t, 4, imp.TotalRecycleActions)
	require.NotNil(t, imp.LastActionAt)
	assert.True(t, imp.LastActionAt.Equal(day1.Add(72*time.Hour)))
}

// =============================================================================
// BADGES
// =============================================================================

func TestEvaluate_UnlocksOnceAtCrossingTime(t *testing.T) {
	u := &core.User{Level: 1}
	u.Impact.TotalRecycleActions = 1
	u.Impact.PlasticRecycled = core.Kg(10)

	fresh := gamification.Evaluate(u, day1)
	assert.Equal(t, []string{"first_recycle", "plastic_10kg"}, fresh)
	require.Len(t, u.Badges, 2)
	assert.True(t, u.Badges[0].EarnedAt.Equal(day1))

	assert.Empty(t, gamification.Evaluate(u, day1.Add(time.Hour)), "no re-award")
	assert.Len(t, u.Badges, 2)
}

func TestEvaluate_ReferralAndLevel(t *testing.T) {
	u := &core.User{Level: 10, Referrals: []core.UserID{"a", "b", "c", "d", "e"}}

	fresh := gamification.Evaluate(u, day1)
	assert.ElementsMatch(t, []string{"referral_5", "level_5", "level_10"}, fresh)
}

func TestApply_CombinesXPAndBadges(t *testing.T) {
	u := &core.User{Level: 1, XP: 350}
	u.Impact.TotalRecycleActions = 1

	p := gamification.Apply(u, 61, day1)
	assert.Equal(t, int64(411), p.TotalXP)
	assert.Equal(t, 3, p.Level)
	assert.True(t, p.LeveledUp)
	assert.Equal(t, []string{"first_recycle"}, p.NewBadges)
}

// =============================================================================
// LEADERBOARD
// =============================================================================

func TestRank_OrdersDescendingAndFindsCaller(t *testing.T) {
	users := []core.User{
		{ID: "a", Level: 2, XP: 150},
		{ID: "b", Level: 3, XP: 400},
		{ID: "c", Level: 3, XP: 700},
	}
	users[0].Impact.TotalRecycleActions = 5
	users[1].Impact.TotalRecycleActions = 9
	users[2].Impact.TotalRecycleActions = 1

	lb := gamification.Rank(users, gamification.BoardTotal, 2, "c")
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, core.UserID("b"), lb.Entries[0].UserID)
	assert.Equal(t, core.UserID("a"), lb.Entries[1].UserID)
	assert.Equal(t, 3, lb.MyRank, "caller ranked beyond the limit")

	byLevel := gamification.Rank(users, gamification.BoardLevel, 0, "c")
	assert.Equal(t, core.UserID("c"), byLevel.Entries[0].UserID, "xp breaks level ties")
	assert.True(t, byLevel.Entries[0].IsMe)
	assert.Equal(t, 1, byLevel.MyRank)
}

func TestParseLeaderboardType(t *testing.T) {
	assert.Equal(t, gamification.BoardCO2, gamification.ParseLeaderboardType("co2"))
	assert.Equal(t, gamification.BoardTotal, gamification.ParseLeaderboardType("bogus"))
}

// =============================================================================
// SERVICE
// =============================================================================

func TestService_Badges_LazyUnlockPersists(t *testing.T) {
	// GIVEN: A seeded user whose counters already cross first_recycle
	// WHEN: Reading badges twice
	// THEN: The first read unlocks and persists, the second reports nothing new

	ctx := context.Background()
	st := store.NewMemory()
	clock := core.NewFixedClock(day1)
	svc := gamification.NewService(st, clock, zap.NewNop())

	u := core.User{ID: "u1", Role: core.RoleUser, Level: 1, IsActive: true}
	u.Impact.TotalRecycleActions = 3
	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error { return r.CreateUser(ctx, u) }))

	first, err := svc.Badges(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"first_recycle"}, first.NewBadges)
	assert.Equal(t, 1, first.Unlocked)
	assert.Equal(t, len(gamification.Catalogue), first.Total)

	second, err := svc.Badges(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, second.NewBadges)
	assert.Equal(t, 1, second.Unlocked)
}

func TestService_Leaderboard_ExcludesStaff(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := gamification.NewService(st, core.NewFixedClock(day1), zap.NewNop())

	require.NoError(t, st.WithTx(ctx, func(r core.Repository) error {
		for _, u := range []core.User{
			{ID: "admin", Email: "admin@x", Role: core.RoleAdmin, IsActive: true, CreatedAt: day1},
			{ID: "u1", Email: "u1@x", Role: core.RoleUser, IsActive: true, CreatedAt: day1},
		} {
			if err := r.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	}))

	lb, err := svc.Leaderboard(ctx, gamification.BoardTotal, 10, "u1")
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, core.UserID("u1"), lb.Entries[0].UserID)
	assert.Equal(t, 1, lb.MyRank)
}
