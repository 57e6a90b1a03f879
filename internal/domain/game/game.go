// Package game plays one game: T sequential second-price auctions among a
// fixed set of teams, with the authoritative budget and utility ledger.
package game

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/auction"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/strategy"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/valuation"
	"github.com/nitayalon/AGT-Bidding-competition/internal/sandbox"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/metrics"
)

// Operation labels for sandboxed calls made by the orchestrator.
const (
	OperationInitialize = "initialize"
	OperationObserve    = "observe_outcome"
)

// tieSalt separates the tie-break stream from the valuation stream.
const tieSalt int64 = 0x7e_b4ea

// Params are the game parameters taken from configuration.
type Params struct {
	ItemCount      int
	AuctionRounds  int
	Budget         float64
	InitTimeout    time.Duration
	ObserveTimeout time.Duration
}

// Spec identifies one game to play.
type Spec struct {
	GameID     string
	Stage      int
	ArenaID    string
	GameNumber int
	Seed       int64
	Teams      []model.Team
}

// ID returns the conventional id for a game.
func ID(stage int, arenaID string, gameNumber int) string {
	return "stage" + strconv.Itoa(stage) + "_arena" + arenaID + "_game" + strconv.Itoa(gameNumber)
}

// OutcomePublisher receives every outcome as soon as it is final.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome model.AuctionOutcome) error
}

// seat is one team's place at the table for the duration of a game.
type seat struct {
	team    model.Team
	handle  strategy.Handle
	guard   *sandbox.Guard
	ledger  *ledger
	forfeit bool
	faults  int
}

// Orchestrator plays games. It holds no per-game state and is safe for
// concurrent use.
type Orchestrator struct {
	params    Params
	provider  valuation.Provider
	loader    strategy.Loader
	sandbox   *sandbox.Sandbox
	round     *auction.Round
	publisher OutcomePublisher
	logger    logger.Logger
	now       func() time.Time
}

// New creates an Orchestrator.
func New(params Params, provider valuation.Provider, loader strategy.Loader, sb *sandbox.Sandbox, round *auction.Round, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		params:   params,
		provider: provider,
		loader:   loader,
		sandbox:  sb,
		round:    round,
		logger:   logger.Get().Named("game"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Play runs a complete game. Strategy misbehaviour never fails a game;
// an error means the parameters are unusable or ctx was cancelled.
func (o *Orchestrator) Play(ctx context.Context, spec Spec) (model.GameResult, error) {
	started := o.now()
	metrics.AddActiveGames(1)
	defer metrics.AddActiveGames(-1)

	if spec.GameID == "" {
		spec.GameID = ID(spec.Stage, spec.ArenaID, spec.GameNumber)
	}
	log := o.logger.With(logger.String("game", spec.GameID))

	ids := make([]string, len(spec.Teams))
	for i, t := range spec.Teams {
		ids[i] = t.ID
	}

	vals, err := o.provider.Generate(ids, o.params.ItemCount, spec.Seed)
	if err != nil {
		return model.GameResult{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	sequence, err := o.provider.SelectAuctionSubset(o.params.ItemCount, o.params.AuctionRounds, spec.Seed)
	if err != nil {
		return model.GameResult{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	seats := o.seat(ctx, spec, vals, sequence)
	defer o.closeAll(ctx, seats)

	rnd := rand.New(rand.NewSource(spec.Seed ^ tieSalt)) //nolint:gosec // reproducible tie-breaks
	outcomes := make([]model.AuctionOutcome, 0, len(sequence))

	for i, item := range sequence {
		if err := ctx.Err(); err != nil {
			return model.GameResult{}, fmt.Errorf("game %s aborted before round %d: %w", spec.GameID, i+1, err)
		}

		parts := make([]auction.Participant, len(seats))
		for j, s := range seats {
			parts[j] = auction.Participant{TeamID: s.team.ID, Handle: s.handle, Guard: s.guard, Budget: s.ledger.Budget()}
		}
		outcome := o.round.Run(ctx, spec.GameID, i+1, item, parts, rnd)

		if outcome.HasWinner() {
			for _, s := range seats {
				if s.team.ID == outcome.WinnerID {
					if err := s.ledger.win(item, vals[s.team.ID][item], outcome.Price); err != nil {
						return model.GameResult{}, fmt.Errorf("game %s round %d: %w", spec.GameID, i+1, err)
					}
				}
			}
		}

		outcome.Diagnostics = append(outcome.Diagnostics, o.broadcast(ctx, seats, outcome)...)
		for _, d := range outcome.Diagnostics {
			if d.Kind == model.BudgetCapApplied {
				continue
			}
			for _, s := range seats {
				if s.team.ID == d.TeamID {
					s.faults++
				}
			}
		}

		log.Info(ctx, "round resolved",
			logger.Int("round", outcome.Round),
			logger.String("item", outcome.ItemID),
			logger.Bool("sold", outcome.HasWinner()),
			logger.String("winner", outcome.WinnerID),
			logger.Float64("price", outcome.Price),
		)
		if o.publisher != nil {
			if err := o.publisher.PublishOutcome(ctx, outcome); err != nil {
				metrics.RecordErrorByComponent("game", "publish_outcome")
				log.Warn(ctx, "failed to publish outcome", logger.Int("round", outcome.Round), logger.Error(err))
			}
		}
		outcomes = append(outcomes, outcome)
	}

	result := model.GameResult{
		GameID:     spec.GameID,
		Stage:      spec.Stage,
		ArenaID:    spec.ArenaID,
		GameNumber: spec.GameNumber,
		Seed:       spec.Seed,
		Sequence:   sequence,
		Teams:      make(map[string]model.TeamGameResult, len(seats)),
		Outcomes:   outcomes,
		StartedAt:  started,
		FinishedAt: o.now(),
	}
	for _, s := range seats {
		result.Teams[s.team.ID] = s.ledger.result(s.team.ID, vals[s.team.ID], s.faults, s.forfeit)
	}

	metrics.RecordGame(strconv.Itoa(spec.Stage), float64(result.FinishedAt.Sub(started).Milliseconds()))
	log.Info(ctx, "game finished",
		logger.Int("rounds", len(outcomes)),
		logger.Duration("elapsed", result.FinishedAt.Sub(started)),
	)
	return result, nil
}

// seat builds every team's handle concurrently through the sandbox. A team
// whose strategy cannot be built forfeits: it bids 0 for the whole game.
func (o *Orchestrator) seat(ctx context.Context, spec Spec, vals map[string]model.Valuation, items []string) []*seat {
	seats := make([]*seat, len(spec.Teams))
	var wg sync.WaitGroup
	for i, team := range spec.Teams {
		seats[i] = &seat{team: team, guard: sandbox.NewGuard(), ledger: newLedger(o.params.Budget)}
		wg.Add(1)
		go func(s *seat) {
			defer wg.Done()
			setup := strategy.Init{
				TeamID:    s.team.ID,
				Valuation: vals[s.team.ID].Clone(),
				Budget:    o.params.Budget,
				Items:     append([]string(nil), items...),
			}

			built := make(chan strategy.Handle, 1)
			out := o.sandbox.Invoke(ctx, s.guard, OperationInitialize, o.params.InitTimeout, func(c context.Context) (float64, error) {
				var h strategy.Handle
				defer func() { built <- h }()
				var err error
				h, err = o.loader.Load(c, s.team, setup)
				return 0, err
			})

			if out.Status == sandbox.OK {
				if h := <-built; h != nil {
					s.handle = h
					return
				}
				out.Status, out.Cause = sandbox.Faulted, ErrNilHandle
			} else {
				// A build that finishes after its deadline must not leak.
				go func() {
					if h := <-built; h != nil {
						_ = h.Close()
					}
				}()
			}
			s.handle = strategy.Forfeit{}
			s.guard = sandbox.NewGuard()
			s.forfeit = true
			s.faults++
			o.logger.Named("staff").Warn(ctx, "strategy forfeits game",
				logger.String("game", spec.GameID),
				logger.String("team", s.team.ID),
				logger.String("kind", string(model.InitFault)),
				logger.String("status", out.Status.String()),
				logger.Error(out.Cause),
			)
		}(seats[i])
	}
	wg.Wait()
	return seats
}

// broadcast tells every team the public outcome. Failures are diagnostics.
func (o *Orchestrator) broadcast(ctx context.Context, seats []*seat, outcome model.AuctionOutcome) []model.Diagnostic {
	diags := make([]*model.Diagnostic, len(seats))
	var wg sync.WaitGroup
	for i, s := range seats {
		wg.Add(1)
		go func(i int, s *seat) {
			defer wg.Done()
			out := o.sandbox.Invoke(ctx, s.guard, OperationObserve, o.params.ObserveTimeout, func(c context.Context) (float64, error) {
				return 0, s.handle.ObserveOutcome(c, outcome.ItemID, outcome.WinnerID, outcome.Price)
			})
			if out.Status != sandbox.OK {
				diags[i] = &model.Diagnostic{
					TeamID: s.team.ID,
					Kind:   model.ObserveFault,
					Detail: out.Status.String() + ": " + causeText(out.Cause),
				}
			}
		}(i, s)
	}
	wg.Wait()

	var out []model.Diagnostic
	for _, d := range diags {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}

func (o *Orchestrator) closeAll(ctx context.Context, seats []*seat) {
	for _, s := range seats {
		if s.handle == nil {
			continue
		}
		if err := s.handle.Close(); err != nil {
			o.logger.Debug(ctx, "failed to close strategy", logger.String("team", s.team.ID), logger.Error(err))
		}
	}
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
