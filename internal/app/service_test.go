package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/nitayalon/AGT-Bidding-competition/internal/app"
	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/loader"
	"github.com/nitayalon/AGT-Bidding-competition/internal/config"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/tournament"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.New(context.Background())
	cfg.ResultsDir = t.TempDir()
	cfg.Seed = 7
	cfg.Stage1Games = 2
	cfg.Stage2Games = 2
	cfg.WorkerCount = 2
	cfg.BidTimeoutMS = 500
	return cfg
}

func testTeams(n int) []model.Team {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	builtins := loader.Builtins()
	teams := make([]model.Team, n)
	for i := range teams {
		teams[i] = model.Team{
			ID:           fmt.Sprintf("team_%02d", i+1),
			RegisteredAt: base.Add(time.Duration(i) * time.Hour),
			Source:       loader.BuiltinPrefix + builtins[i%len(builtins)],
		}
	}
	return teams
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := service.New(testConfig(t))

		Convey("When it has not been started", func() {
			_, err := svc.Run(ctx, testTeams(5))

			Convey("Then runs are refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When starting and stopping it", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it is marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given an inconsistent configuration", t, func() {
		cfg := testConfig(t)
		cfg.AuctionRounds = cfg.ItemCount + 1
		err := service.New(cfg).Start(context.Background())

		Convey("Then start fails with a configuration error", func() {
			So(errors.Is(err, tournament.ErrConfiguration), ShouldBeTrue)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_Run(t *testing.T) {
	Convey("Given a started service and ten builtin teams", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		svc := service.New(cfg)
		So(svc.Start(ctx), ShouldBeNil)

		res, err := svc.Run(ctx, testTeams(10))
		So(err, ShouldBeNil)
		So(svc.Stop(ctx), ShouldBeNil)

		Convey("Then both stages ran and a champion was crowned", func() {
			So(res.Stage1, ShouldNotBeNil)
			So(res.Stage2, ShouldNotBeNil)
			So(res.Stage1.Leaderboard, ShouldHaveLength, 10)
			So(res.Stage1.Advanced, ShouldHaveLength, 2)
			So(res.Stage2.Leaderboard, ShouldHaveLength, 2)
			So(res.Champion, ShouldEqual, res.Stage2.Leaderboard[0].TeamID)
			So(res.RunnerUp, ShouldEqual, res.Stage2.Leaderboard[1].TeamID)

			last, ok := svc.Last()
			So(ok, ShouldBeTrue)
			So(last.RunID, ShouldEqual, res.RunID)
		})

		Convey("And every artefact was written", func() {
			for _, name := range []string{
				service.ReportFile,
				"tournament.json",
				"outcomes_public.jsonl",
				"stage1_complete.json",
				"stage1_leaderboard.csv",
				"stage2_leaderboard.csv",
				filepath.Join("stage1", "arena_1", "game_1_detailed.json"),
				filepath.Join("stage2", "arena_championship", "game_2_public.json"),
				filepath.Join("stage2", "arena_championship", "game_2.cbor.sha256"),
			} {
				_, err := os.Stat(filepath.Join(cfg.ResultsDir, name))
				So(err, ShouldBeNil)
			}
			text, err := os.ReadFile(filepath.Join(cfg.ResultsDir, service.ReportFile))
			So(err, ShouldBeNil)
			So(string(text), ShouldContainSubstring, "Champion:  "+res.Champion)
		})

		Convey("And every game archive passes verification", func() {
			checks, err := svc.VerifyArchives(ctx)
			So(err, ShouldBeNil)
			// 2 arenas x 2 games in stage 1, 2 championship games.
			So(checks, ShouldHaveLength, 6)
			for _, c := range checks {
				So(c.Err, ShouldBeNil)
				So(c.GameID, ShouldNotBeEmpty)
			}
		})

		Convey("And the same seed reproduces the same standings", func() {
			again := service.New(testConfig(t))
			So(again.Start(ctx), ShouldBeNil)
			defer again.Stop(ctx)
			res2, err := again.Run(ctx, testTeams(10))
			So(err, ShouldBeNil)
			So(res2.Stage1.Leaderboard, ShouldResemble, res.Stage1.Leaderboard)
			So(res2.Champion, ShouldEqual, res.Champion)
		})
	})
}

func TestService_RunStageAndServe(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(testConfig(t))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When running stage 1 alone", func() {
			st, err := svc.RunStage(ctx, 1, testTeams(5))
			So(err, ShouldBeNil)

			Convey("Then the arena winner advances", func() {
				So(st.Advanced, ShouldHaveLength, 1)
				So(st.Advanced[0].ID, ShouldEqual, st.Leaderboard[0].TeamID)
			})

			Convey("And the HTTP API serves the live leaderboard", func() {
				h, err := svc.Handler()
				So(err, ShouldBeNil)
				w := httptest.NewRecorder()
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboard?stage=1", nil))
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, st.Leaderboard[0].TeamID)

				doc := httptest.NewRecorder()
				h.ServeHTTP(doc, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
				So(doc.Code, ShouldEqual, http.StatusOK)

				stats := svc.GetStats()
				So(stats["games"], ShouldEqual, 2)
				So(stats["teams"], ShouldEqual, 5)
			})
		})

		Convey("When the team count does not fill whole arenas", func() {
			_, err := svc.RunStage(ctx, 1, testTeams(7))
			So(errors.Is(err, tournament.ErrConfiguration), ShouldBeTrue)
		})

		Convey("When asking for an unknown stage", func() {
			_, err := svc.RunStage(ctx, 3, testTeams(5))
			So(errors.Is(err, service.ErrInvalidStage), ShouldBeTrue)
		})
	})
}

func TestService_Validate(t *testing.T) {
	Convey("Given team directories", t, func() {
		ctx := context.Background()
		svc := service.New(testConfig(t))
		mk := func(manifest string) string {
			dir := t.TempDir()
			So(os.WriteFile(filepath.Join(dir, loader.ManifestFile), []byte(manifest), 0o600), ShouldBeNil)
			return dir
		}

		Convey("When the strategy bids its value", func() {
			rep, err := svc.Validate(ctx, mk("team_id: honest\nstrategy: truthful\n"))

			Convey("Then the single bid is the constant valuation", func() {
				So(err, ShouldBeNil)
				So(rep.OK(), ShouldBeTrue)
				So(rep.Team.ID, ShouldEqual, "honest")
				So(rep.Item, ShouldEqual, "item_0")
				So(rep.Bid.Amount, ShouldEqual, 10.0)
			})
		})

		Convey("When the strategy cannot be built", func() {
			rep, err := svc.Validate(ctx, mk("team_id: broken\nstrategy: no_such_strategy\n"))

			Convey("Then the team forfeits", func() {
				So(err, ShouldBeNil)
				So(rep.Forfeit, ShouldBeTrue)
				So(rep.OK(), ShouldBeFalse)
				So(rep.Bid.Amount, ShouldEqual, 0.0)
			})
		})

		Convey("When the directory has no strategy", func() {
			_, err := svc.Validate(ctx, t.TempDir())
			So(errors.Is(err, loader.ErrManifest), ShouldBeTrue)
		})
	})
}
