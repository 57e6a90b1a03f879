package game_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/auction"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/game"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/strategy"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/valuation"
	"github.com/nitayalon/AGT-Bidding-competition/internal/sandbox"
	. "github.com/smartystreets/goconvey/convey"
)

// fixedProvider hands out preset valuations and sequence.
type fixedProvider struct {
	vals     map[string]model.Valuation
	sequence []string
}

func (p fixedProvider) Generate(teamIDs []string, _ int, _ int64) (map[string]model.Valuation, error) {
	out := make(map[string]model.Valuation, len(teamIDs))
	for _, id := range teamIDs {
		out[id] = p.vals[id]
	}
	return out, nil
}

func (p fixedProvider) SelectAuctionSubset(_, _ int, _ int64) ([]string, error) {
	return p.sequence, nil
}

// scripted is a strategy whose bids come from a function of the item.
type scripted struct {
	mu       sync.Mutex
	bid      func(ctx context.Context, item string) (float64, error)
	observed []string
	closed   bool
}

func (s *scripted) ProduceBid(ctx context.Context, item string) (float64, error) {
	return s.bid(ctx, item)
}

func (s *scripted) ObserveOutcome(_ context.Context, item, winner string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed = append(s.observed, fmt.Sprintf("%s:%s:%.2f", item, winner, price))
	return nil
}

func (s *scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func bidTable(table map[string]float64) func(context.Context, string) (float64, error) {
	return func(_ context.Context, item string) (float64, error) { return table[item], nil }
}

// recordingLoader builds strategies from a per-team factory and remembers them.
type recordingLoader struct {
	mu       sync.Mutex
	factory  map[string]func(strategy.Init) (strategy.Handle, error)
	inits    map[string]strategy.Init
	built    map[string]strategy.Handle
	fallback func(strategy.Init) (strategy.Handle, error)
}

func newLoader() *recordingLoader {
	return &recordingLoader{
		factory: map[string]func(strategy.Init) (strategy.Handle, error){},
		inits:   map[string]strategy.Init{},
		built:   map[string]strategy.Handle{},
	}
}

func (l *recordingLoader) Load(_ context.Context, team model.Team, setup strategy.Init) (strategy.Handle, error) {
	f, ok := l.factory[team.ID]
	if !ok {
		f = l.fallback
	}
	h, err := f(setup)
	l.mu.Lock()
	l.inits[team.ID] = setup
	if h != nil {
		l.built[team.ID] = h
	}
	l.mu.Unlock()
	return h, err
}

func teams(ids ...string) []model.Team {
	out := make([]model.Team, len(ids))
	for i, id := range ids {
		out[i] = model.Team{ID: id, RegisteredAt: time.Unix(int64(i), 0)}
	}
	return out
}

type collectingPublisher struct {
	mu       sync.Mutex
	outcomes []model.AuctionOutcome
}

func (p *collectingPublisher) PublishOutcome(_ context.Context, o model.AuctionOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return nil
}

func newOrchestrator(params game.Params, provider valuation.Provider, loader strategy.Loader, opts ...game.Option) *game.Orchestrator {
	sb := sandbox.New()
	round := auction.NewRound(sb, auction.WithBidTimeout(40*time.Millisecond))
	return game.New(params, provider, loader, sb, round, opts...)
}

func params(items, rounds int, budget float64) game.Params {
	return game.Params{
		ItemCount:      items,
		AuctionRounds:  rounds,
		Budget:         budget,
		InitTimeout:    100 * time.Millisecond,
		ObserveTimeout: 40 * time.Millisecond,
	}
}

func TestGameScenarios(t *testing.T) {
	ctx := context.Background()

	Convey("A budget off the cent grid is never overspent", t, func() {
		provider := fixedProvider{
			vals:     map[string]model.Valuation{"a": {"item_0": 20}, "b": {"item_0": 20}},
			sequence: []string{"item_0"},
		}
		loader := newLoader()
		loader.fallback = func(strategy.Init) (strategy.Handle, error) {
			return &scripted{bid: bidTable(map[string]float64{"item_0": 10.005})}, nil
		}
		o := newOrchestrator(params(1, 1, 10.005), provider, loader)

		res, err := o.Play(ctx, game.Spec{Stage: 1, ArenaID: "1", GameNumber: 1, Seed: 3, Teams: teams("a", "b")})
		So(err, ShouldBeNil)
		So(res.Outcomes, ShouldHaveLength, 1)
		So(res.Outcomes[0].Price, ShouldEqual, 10.0)

		winner := res.Teams[res.Outcomes[0].WinnerID]
		So(winner.BudgetSpent, ShouldEqual, res.Outcomes[0].Price)
		So(winner.BudgetRemaining, ShouldEqual, 0.005)
	})

	Convey("Scenario B: utility is value won minus price paid", t, func() {
		provider := fixedProvider{
			vals: map[string]model.Valuation{
				"a": {"item_0": 8, "item_1": 15},
				"b": {"item_0": 3, "item_1": 7},
			},
			sequence: []string{"item_1", "item_0"},
		}
		loader := newLoader()
		loader.factory["a"] = func(strategy.Init) (strategy.Handle, error) {
			return &scripted{bid: bidTable(map[string]float64{"item_0": 10, "item_1": 10})}, nil
		}
		loader.factory["b"] = func(strategy.Init) (strategy.Handle, error) {
			return &scripted{bid: bidTable(map[string]float64{"item_0": 3, "item_1": 7})}, nil
		}
		pub := &collectingPublisher{}
		o := newOrchestrator(params(2, 2, 60), provider, loader, game.WithPublisher(pub))

		res, err := o.Play(ctx, game.Spec{Stage: 1, ArenaID: "1", GameNumber: 1, Seed: 1, Teams: teams("a", "b")})
		So(err, ShouldBeNil)

		a := res.Teams["a"]
		So(a.Utility, ShouldEqual, 13.0)
		So(a.BudgetSpent, ShouldEqual, 10.0)
		So(a.BudgetRemaining, ShouldEqual, 50.0)
		So(a.ItemsWon, ShouldResemble, []string{"item_1", "item_0"})
		So(a.MaxSingleItemUtility, ShouldEqual, 8.0)
		So(a.ValuationWon, ShouldEqual, 23.0)
		So(res.Teams["b"].Utility, ShouldEqual, 0.0)

		Convey("Outcomes are published in round order and broadcast to every team", func() {
			So(res.GameID, ShouldEqual, "stage1_arena1_game1")
			So(pub.outcomes, ShouldHaveLength, 2)
			So(pub.outcomes[0].Round, ShouldEqual, 1)
			So(pub.outcomes[0].ItemID, ShouldEqual, "item_1")
			So(pub.outcomes[0].Price, ShouldEqual, 7.0)
			So(pub.outcomes[1].Price, ShouldEqual, 3.0)
			for _, h := range loader.built {
				s := h.(*scripted)
				So(s.observed, ShouldResemble, []string{"item_1:a:7.00", "item_0:a:3.00"})
				So(s.closed, ShouldBeTrue)
			}
		})

		Convey("Strategies are built with the auction sequence", func() {
			So(loader.inits["a"].Items, ShouldResemble, []string{"item_1", "item_0"})
			So(loader.inits["a"].Budget, ShouldEqual, 60.0)
			So(loader.inits["a"].Valuation["item_1"], ShouldEqual, 15.0)
		})
	})

	Convey("Scenario C: a team that always bids zero keeps its budget", t, func() {
		provider := fixedProvider{
			vals:     map[string]model.Valuation{"z": {"item_0": 5, "item_1": 5, "item_2": 5}, "p": {"item_0": 5, "item_1": 5, "item_2": 5}},
			sequence: []string{"item_2", "item_0", "item_1"},
		}
		loader := newLoader()
		loader.factory["z"] = func(strategy.Init) (strategy.Handle, error) { return &scripted{bid: bidTable(nil)}, nil }
		loader.factory["p"] = func(strategy.Init) (strategy.Handle, error) {
			return &scripted{bid: bidTable(map[string]float64{"item_0": 2, "item_1": 2, "item_2": 2})}, nil
		}
		o := newOrchestrator(params(3, 3, 60), provider, loader)

		res, err := o.Play(ctx, game.Spec{Stage: 1, ArenaID: "1", GameNumber: 2, Seed: 2, Teams: teams("z", "p")})
		So(err, ShouldBeNil)

		z := res.Teams["z"]
		So(z.BudgetRemaining, ShouldEqual, 60.0)
		So(z.Utility, ShouldEqual, 0.0)
		So(z.ItemsWon, ShouldBeEmpty)

		Convey("And the other team wins everything at price zero", func() {
			p := res.Teams["p"]
			So(p.ItemsWon, ShouldHaveLength, 3)
			So(p.BudgetSpent, ShouldEqual, 0.0)
			So(p.Utility, ShouldEqual, 15.0)
		})
	})

	Convey("Scenario D: an item nobody bids on changes no ledger", t, func() {
		provider := fixedProvider{
			vals:     map[string]model.Valuation{"a": {"item_0": 5}, "b": {"item_0": 5}},
			sequence: []string{"item_0"},
		}
		loader := newLoader()
		loader.fallback = func(strategy.Init) (strategy.Handle, error) { return &scripted{bid: bidTable(nil)}, nil }
		o := newOrchestrator(params(1, 1, 60), provider, loader)

		res, err := o.Play(ctx, game.Spec{Stage: 2, ArenaID: "championship", GameNumber: 1, Teams: teams("a", "b")})
		So(err, ShouldBeNil)
		So(res.Outcomes[0].WinnerID, ShouldEqual, "")
		So(res.Outcomes[0].Price, ShouldEqual, 0.0)
		for _, r := range res.Teams {
			So(r.BudgetRemaining, ShouldEqual, 60.0)
			So(r.ItemsWon, ShouldBeEmpty)
		}
		So(res.GameID, ShouldEqual, "stage2_arenachampionship_game1")
	})
}

func TestBudgetInvariant(t *testing.T) {
	Convey("Given random strategies over many games", t, func() {
		sampler := valuation.NewSampler(valuation.Categories{
			High: 6, Low: 4, Mixed: 10,
			HighRange:  valuation.Range{Min: 10, Max: 20},
			LowRange:   valuation.Range{Min: 1, Max: 10},
			MixedRange: valuation.Range{Min: 1, Max: 20},
		})
		loader := newLoader()
		var seq int64
		var seqMu sync.Mutex
		loader.fallback = func(strategy.Init) (strategy.Handle, error) {
			seqMu.Lock()
			seq++
			rng := rand.New(rand.NewSource(seq))
			seqMu.Unlock()
			var mu sync.Mutex
			return &scripted{bid: func(context.Context, string) (float64, error) {
				mu.Lock()
				defer mu.Unlock()
				return rng.Float64() * 80, nil
			}}, nil
		}
		o := newOrchestrator(params(20, 15, 60), sampler, loader)

		for g := 1; g <= 10; g++ {
			res, err := o.Play(context.Background(), game.Spec{Stage: 1, ArenaID: "1", GameNumber: g, Seed: int64(g), Teams: teams("a", "b", "c", "d", "e")})
			So(err, ShouldBeNil)

			paid := map[string]float64{}
			for _, out := range res.Outcomes {
				So(out.Price, ShouldBeGreaterThanOrEqualTo, 0.0)
				if out.HasWinner() {
					paid[out.WinnerID] += out.Price
				}
			}
			for id, r := range res.Teams {
				So(r.BudgetRemaining, ShouldBeGreaterThanOrEqualTo, 0.0)
				So(r.BudgetRemaining, ShouldBeLessThanOrEqualTo, 60.0)
				So(r.BudgetSpent+r.BudgetRemaining, ShouldAlmostEqual, 60.0, 1e-9)
				So(r.BudgetSpent, ShouldAlmostEqual, paid[id], 1e-9)

				var want float64
				for _, item := range r.ItemsWon {
					want += r.Valuation[item]
				}
				So(r.ValuationWon, ShouldAlmostEqual, want, 1e-9)
				So(r.Utility, ShouldAlmostEqual, want-r.BudgetSpent, 1e-9)
			}
		}
	})
}

func TestFaultIsolation(t *testing.T) {
	Convey("Given one panicking, one sleeping, one unbuildable and one honest strategy", t, func() {
		vals := map[string]model.Valuation{}
		for _, id := range []string{"panics", "sleeps", "broken", "honest"} {
			vals[id] = model.Valuation{"item_0": 10, "item_1": 10, "item_2": 10}
		}
		provider := fixedProvider{vals: vals, sequence: []string{"item_0", "item_1", "item_2"}}

		loader := newLoader()
		loader.factory["panics"] = func(strategy.Init) (strategy.Handle, error) {
			return &scripted{bid: func(context.Context, string) (float64, error) { panic("kaboom") }}, nil
		}
		loader.factory["sleeps"] = func(strategy.Init) (strategy.Handle, error) {
			return &scripted{bid: func(context.Context, string) (float64, error) {
				time.Sleep(60 * time.Millisecond)
				return 59, nil
			}}, nil
		}
		loader.factory["broken"] = func(strategy.Init) (strategy.Handle, error) {
			return nil, errors.New("cannot import strategy")
		}
		loader.factory["honest"] = func(strategy.Init) (strategy.Handle, error) {
			return &scripted{bid: bidTable(map[string]float64{"item_0": 4, "item_1": 4, "item_2": 4})}, nil
		}
		o := newOrchestrator(params(3, 3, 60), provider, loader)

		res, err := o.Play(context.Background(), game.Spec{Stage: 1, ArenaID: "1", GameNumber: 1, Teams: teams("panics", "sleeps", "broken", "honest")})

		Convey("The game completes and the honest team is scored normally", func() {
			So(err, ShouldBeNil)
			So(res.Outcomes, ShouldHaveLength, 3)
			honest := res.Teams["honest"]
			So(honest.ItemsWon, ShouldHaveLength, 3)
			So(honest.Utility, ShouldEqual, 30.0)
			So(honest.Faults, ShouldEqual, 0)
		})

		Convey("Misbehaving teams bid zero and carry diagnostics", func() {
			So(res.Teams["panics"].Faults, ShouldBeGreaterThanOrEqualTo, 3)
			So(res.Teams["sleeps"].Faults, ShouldBeGreaterThanOrEqualTo, 3)
			So(res.Teams["broken"].Forfeit, ShouldBeTrue)
			So(res.Teams["broken"].BudgetRemaining, ShouldEqual, 60.0)
			kinds := map[model.DiagnosticKind]bool{}
			for _, d := range res.Outcomes[0].Diagnostics {
				kinds[d.Kind] = true
			}
			So(kinds[model.BidFault], ShouldBeTrue)
			So(kinds[model.BidTimeout], ShouldBeTrue)
		})
	})
}

func TestCancellation(t *testing.T) {
	Convey("A cancelled context aborts the game between rounds", t, func() {
		provider := fixedProvider{
			vals:     map[string]model.Valuation{"a": {"item_0": 1}},
			sequence: []string{"item_0"},
		}
		loader := newLoader()
		loader.fallback = func(strategy.Init) (strategy.Handle, error) { return &scripted{bid: bidTable(nil)}, nil }
		o := newOrchestrator(params(1, 1, 60), provider, loader)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := o.Play(ctx, game.Spec{Stage: 1, ArenaID: "1", GameNumber: 1, Teams: teams("a")})
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}
