package gamification

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ecoback/reward-engine/core"
)

type LeaderboardType string

const (
	BoardTotal   LeaderboardType = "total"
	BoardPlastic LeaderboardType = "plastic"
	BoardPaper   LeaderboardType = "paper"
	BoardGlass   LeaderboardType = "glass"
	BoardMetal   LeaderboardType = "metal"
	BoardCO2     LeaderboardType = "co2"
	BoardLevel   LeaderboardType = "level"
	BoardStreak  LeaderboardType = "streak"
)

const DefaultLeaderboardLimit = 50

// ParseLeaderboardType falls back to total for unknown values.
func ParseLeaderboardType(s string) LeaderboardType {
	switch t := LeaderboardType(s); t {
	case BoardTotal, BoardPlastic, BoardPaper, BoardGlass, BoardMetal, BoardCO2, BoardLevel, BoardStreak:
		return t
	}
	return BoardTotal
}

type LeaderboardEntry struct {
	Rank     int             `json:"rank"`
	UserID   core.UserID     `json:"userId"`
	FullName string          `json:"fullName"`
	Level    int             `json:"level"`
	XP       int64           `json:"xp"`
	Badges   int             `json:"badges"`
	Value    decimal.Decimal `json:"value"`
	IsMe     bool            `json:"isMe"`
}

type Leaderboard struct {
	Type    LeaderboardType    `json:"type"`
	Entries []LeaderboardEntry `json:"leaderboard"`
	MyRank  int                `json:"myRank,omitempty"` // 0 when the caller is unranked
}

func boardValue(t LeaderboardType, u *core.User) decimal.Decimal {
	switch t {
	case BoardPlastic:
		return u.Impact.PlasticRecycled
	case BoardPaper:
		return u.Impact.PaperRecycled
	case BoardGlass:
		return u.Impact.GlassRecycled
	case BoardMetal:
		return u.Impact.MetalRecycled
	case BoardCO2:
		return u.Impact.CO2Saved
	case BoardLevel:
		return decimal.NewFromInt(int64(u.Level))
	case BoardStreak:
		return decimal.NewFromInt(int64(u.Impact.ConsecutiveDays))
	default:
		return decimal.NewFromInt(int64(u.Impact.TotalRecycleActions))
	}
}

// Rank orders users by the board's value, descending. Level boards break
// ties on xp; remaining ties keep input order. caller may be empty.
func Rank(users []core.User, t LeaderboardType, limit int, caller core.UserID) Leaderboard {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	ranked := make([]core.User, len(users))
	copy(ranked, users)
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := boardValue(t, &ranked[i]), boardValue(t, &ranked[j])
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		if t == BoardLevel {
			return ranked[i].XP > ranked[j].XP
		}
		return false
	})

	lb := Leaderboard{Type: t, Entries: []LeaderboardEntry{}}
	for i := range ranked {
		u := &ranked[i]
		if u.ID == caller {
			lb.MyRank = i + 1
		}
		if i >= limit {
			continue
		}
		lb.Entries = append(lb.Entries, LeaderboardEntry{
			Rank:     i + 1,
			UserID:   u.ID,
			FullName: u.FullName,
			Level:    u.Level,
			XP:       u.XP,
			Badges:   len(u.Badges),
			Value:    boardValue(t, u),
			IsMe:     u.ID == caller,
		})
	}
	return lb
}
