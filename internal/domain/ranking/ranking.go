// Package ranking folds game results into stage standings and orders them.
//
// The order is a chain of keys: cumulative utility desc, max single-item
// utility desc, items won desc, registration time asc, team id asc. The
// last key makes it total, so equal inputs always rank the same way.
package ranking

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// Less reports whether a ranks strictly ahead of b.
func Less(a, b *model.StageStanding) bool {
	if a.CumulativeUtility != b.CumulativeUtility {
		return a.CumulativeUtility > b.CumulativeUtility
	}
	if a.MaxSingleItemUtility != b.MaxSingleItemUtility {
		return a.MaxSingleItemUtility > b.MaxSingleItemUtility
	}
	if a.ItemsWon != b.ItemsWon {
		return a.ItemsWon > b.ItemsWon
	}
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.TeamID < b.TeamID
}

// Sort orders standings in place and assigns ranks 1..n.
func Sort(standings []model.StageStanding) {
	sort.SliceStable(standings, func(i, j int) bool {
		return Less(&standings[i], &standings[j])
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
}

type acc struct {
	utility      decimal.Decimal
	spent        decimal.Decimal
	valuationWon decimal.Decimal
	maxItem      float64
	items        int
	games        int
	gamesWon     int
}

// Fold aggregates games into one standing per team and ranks them.
//
// Every team in teams gets a standing, even with no games. Sums are exact
// decimal sums, so the result does not depend on the order of games.
// MaxSingleItemUtility starts at 0, so a team that never won an item, or
// only won items at a loss, reports 0.
func Fold(stage int, arenaID string, teams []model.Team, games []model.GameResult) []model.StageStanding {
	accs := make(map[string]*acc, len(teams))
	for _, t := range teams {
		accs[t.ID] = &acc{}
	}

	for i := range games {
		g := &games[i]
		best := bestUtility(g)
		for id, r := range g.Teams {
			a, ok := accs[id]
			if !ok {
				continue
			}
			a.utility = a.utility.Add(decimal.NewFromFloat(r.Utility))
			a.spent = a.spent.Add(decimal.NewFromFloat(r.BudgetSpent))
			a.valuationWon = a.valuationWon.Add(decimal.NewFromFloat(r.ValuationWon))
			if r.MaxSingleItemUtility > a.maxItem {
				a.maxItem = r.MaxSingleItemUtility
			}
			a.items += len(r.ItemsWon)
			a.games++
			if best > 0 && r.Utility == best {
				a.gamesWon++
			}
		}
	}

	out := make([]model.StageStanding, 0, len(teams))
	for _, t := range teams {
		a := accs[t.ID]
		out = append(out, model.StageStanding{
			TeamID:               t.ID,
			Stage:                stage,
			ArenaID:              arenaID,
			CumulativeUtility:    a.utility.InexactFloat64(),
			MaxSingleItemUtility: a.maxItem,
			ItemsWon:             a.items,
			GamesPlayed:          a.games,
			TotalSpent:           a.spent.InexactFloat64(),
			TotalValuationWon:    a.valuationWon.InexactFloat64(),
			RegisteredAt:         t.RegisteredAt,
			GamesWon:             a.gamesWon,
		})
	}
	Sort(out)
	return out
}

func bestUtility(g *model.GameResult) float64 {
	var best float64
	first := true
	for _, r := range g.Teams {
		if first || r.Utility > best {
			best = r.Utility
			first = false
		}
	}
	return best
}

// Merge concatenates per-arena standings into one ranked leaderboard.
// Arena ids are kept so readers can tell which arena a row came from.
func Merge(perArena ...[]model.StageStanding) []model.StageStanding {
	var n int
	for _, s := range perArena {
		n += len(s)
	}
	out := make([]model.StageStanding, 0, n)
	for _, s := range perArena {
		out = append(out, s...)
	}
	Sort(out)
	return out
}
