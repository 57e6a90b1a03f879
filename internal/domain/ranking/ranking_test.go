package ranking_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func team(id string, minutes int) model.Team {
	return model.Team{ID: id, RegisteredAt: base.Add(time.Duration(minutes) * time.Minute)}
}

func game(n int, results ...model.TeamGameResult) model.GameResult {
	teams := make(map[string]model.TeamGameResult, len(results))
	for _, r := range results {
		teams[r.TeamID] = r
	}
	return model.GameResult{GameNumber: n, Teams: teams}
}

func TestLessChain(t *testing.T) {
	Convey("Given two standings", t, func() {
		a := model.StageStanding{TeamID: "a", CumulativeUtility: 10, MaxSingleItemUtility: 4, ItemsWon: 3, RegisteredAt: base}
		b := a
		b.TeamID = "b"

		Convey("Higher cumulative utility ranks first", func() {
			b.CumulativeUtility = 11
			So(ranking.Less(&b, &a), ShouldBeTrue)
			So(ranking.Less(&a, &b), ShouldBeFalse)
		})

		Convey("Then max single-item utility breaks the tie", func() {
			b.MaxSingleItemUtility = 5
			So(ranking.Less(&b, &a), ShouldBeTrue)
		})

		Convey("Then more items won", func() {
			b.ItemsWon = 4
			So(ranking.Less(&b, &a), ShouldBeTrue)
		})

		Convey("Then earlier registration", func() {
			b.RegisteredAt = base.Add(-time.Second)
			So(ranking.Less(&b, &a), ShouldBeTrue)
		})

		Convey("Finally team id ascending", func() {
			So(ranking.Less(&a, &b), ShouldBeTrue)
			So(ranking.Less(&b, &a), ShouldBeFalse)
		})
	})
}

func TestFold(t *testing.T) {
	Convey("Given an arena of three teams and two games", t, func() {
		teams := []model.Team{team("x", 0), team("y", 1), team("z", 2)}
		games := []model.GameResult{
			game(1,
				model.TeamGameResult{TeamID: "x", Utility: 13, ItemsWon: []string{"item_1", "item_2"}, MaxSingleItemUtility: 8, BudgetSpent: 10, ValuationWon: 23},
				model.TeamGameResult{TeamID: "y", Utility: 2.5, ItemsWon: []string{"item_3"}, MaxSingleItemUtility: 2.5, BudgetSpent: 4, ValuationWon: 6.5},
				model.TeamGameResult{TeamID: "z"},
			),
			game(2,
				model.TeamGameResult{TeamID: "x", Utility: -1, ItemsWon: []string{"item_4"}, MaxSingleItemUtility: -1, BudgetSpent: 6, ValuationWon: 5},
				model.TeamGameResult{TeamID: "y", Utility: 9.5, ItemsWon: []string{"item_5"}, MaxSingleItemUtility: 9.5, BudgetSpent: 1, ValuationWon: 10.5},
				model.TeamGameResult{TeamID: "z"},
			),
		}

		standings := ranking.Fold(1, "1", teams, games)

		Convey("Every team has one standing with summed utility", func() {
			So(standings, ShouldHaveLength, 3)
			byID := map[string]model.StageStanding{}
			for _, s := range standings {
				byID[s.TeamID] = s
			}
			So(byID["x"].CumulativeUtility, ShouldEqual, 12.0)
			So(byID["y"].CumulativeUtility, ShouldEqual, 12.0)
			So(byID["x"].ItemsWon, ShouldEqual, 3)
			So(byID["x"].GamesPlayed, ShouldEqual, 2)
			So(byID["x"].TotalSpent, ShouldEqual, 16.0)
			So(byID["y"].MaxSingleItemUtility, ShouldEqual, 9.5)
			So(byID["x"].GamesWon, ShouldEqual, 1)
			So(byID["y"].GamesWon, ShouldEqual, 1)
		})

		Convey("A team that never won keeps max single-item utility at zero", func() {
			So(standings[2].TeamID, ShouldEqual, "z")
			So(standings[2].MaxSingleItemUtility, ShouldEqual, 0.0)
			So(standings[2].GamesWon, ShouldEqual, 0)
		})

		Convey("Equal utility is broken by max single-item utility", func() {
			So(standings[0].TeamID, ShouldEqual, "y")
			So(standings[0].Rank, ShouldEqual, 1)
			So(standings[1].TeamID, ShouldEqual, "x")
			So(standings[1].Rank, ShouldEqual, 2)
		})

		Convey("The order does not depend on the order of games or teams", func() {
			rng := rand.New(rand.NewSource(5))
			for i := 0; i < 20; i++ {
				g := append([]model.GameResult(nil), games...)
				tm := append([]model.Team(nil), teams...)
				rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
				rng.Shuffle(len(tm), func(i, j int) { tm[i], tm[j] = tm[j], tm[i] })
				So(ranking.Fold(1, "1", tm, g), ShouldResemble, standings)
			}
		})
	})
}

func TestMerge(t *testing.T) {
	Convey("Merging arenas ranks every team on one board", t, func() {
		a := []model.StageStanding{{TeamID: "a1", CumulativeUtility: 5, ArenaID: "1"}, {TeamID: "a2", CumulativeUtility: 1, ArenaID: "1"}}
		b := []model.StageStanding{{TeamID: "b1", CumulativeUtility: 7, ArenaID: "2"}}

		merged := ranking.Merge(a, b)
		So(merged, ShouldHaveLength, 3)
		So(merged[0].TeamID, ShouldEqual, "b1")
		So(merged[0].ArenaID, ShouldEqual, "2")
		So(merged[2].Rank, ShouldEqual, 3)
	})
}
