/*
Package gamification derives levels, badges, streaks and rankings from a
user's accumulated counters.

LEVEL:
  level = min(100, floor(sqrt(xp/100)) + 1)
  xp=0 -> 1, xp=400 -> 3, xp=10000 -> 11

BADGES:
  Declarative thresholds over counters (badges.go). Evaluate runs inside
  every rewarding unit of work, so earnedAt is the real crossing time. The
  badges read evaluates again; a second evaluation never re-awards.

STREAK:
  An action on the day after the last one extends the streak, an action on
  the same day leaves it unchanged, anything else restarts it at 1.
*/
package gamification

import (
	"math"
	"time"

	"github.com/ecoback/reward-engine/core"
)

const MaxLevel = 100

// Level is a pure function of xp.
func Level(xp int64) int {
	if xp <= 0 {
		return 1
	}
	// floor(sqrt(xp/100)) == floor(sqrt(floor(xp/100))) for integer roots
	n := xp / 100
	r := int64(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	level := int(r) + 1
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// XPForLevel is the minimum xp that reaches level.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level - 1)
	return 100 * l * l
}

// XPToNextLevel is how much more xp the next level needs; 0 at MaxLevel.
func XPToNextLevel(xp int64) int64 {
	level := Level(xp)
	if level >= MaxLevel {
		return 0
	}
	return XPForLevel(level+1) - xp
}

// AwardXP adds xp to u and recomputes the level.
func AwardXP(u *core.User, xp int64) (leveledUp bool) {
	if xp <= 0 {
		return false
	}
	before := u.Level
	u.XP += xp
	u.Level = Level(u.XP)
	return u.Level > before
}

// RecordAction counts one recycling action at now and updates the streak.
func RecordAction(imp *core.Impact, now time.Time) {
	imp.TotalRecycleActions++
	imp.ConsecutiveDays = nextStreak(imp.LastActionAt, imp.ConsecutiveDays, now)
	imp.LastActionAt = core.TimePtr(now)
}

func nextStreak(last *time.Time, current int, now time.Time) int {
	if last == nil {
		return 1
	}
	switch core.DaysBetween(*last, now) {
	case 0:
		if current == 0 {
			return 1
		}
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}
