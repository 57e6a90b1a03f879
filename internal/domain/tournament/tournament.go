// Package tournament runs the two-stage competition: qualification arenas
// followed by a championship among the arena winners.
//
// Every (arena, game) pair is an independent job on a bounded pool. All
// seeds are drawn before any job is scheduled, and results are stored by
// job index, so a run is identical whatever the scheduling.
package tournament

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nitayalon/AGT-Bidding-competition/internal/config"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/game"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/ranking"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/metrics"
)

// ChampionshipArenaID names the single Stage 2 arena.
const ChampionshipArenaID = "championship"

// stageSeedStride keeps the per-stage seed streams apart.
const stageSeedStride int64 = 1_000_003

// Params are the tournament parameters taken from configuration.
type Params struct {
	ArenaSize   int
	Stage1Games int
	Stage2Games int
	WorkerCount int
	Seed        int64
}

// Player plays one game.
type Player interface {
	Play(ctx context.Context, spec game.Spec) (model.GameResult, error)
}

// Sink receives completed games and stages. Implementations must be safe
// for concurrent use; games complete on pool goroutines.
type Sink interface {
	PublishGame(ctx context.Context, result model.GameResult) error
	PublishStandings(ctx context.Context, result model.StageResult) error
}

// Orchestrator runs stages and the full tournament.
type Orchestrator struct {
	params Params
	player Player
	sink   Sink
	logger logger.Logger
	now    func() time.Time
}

// New creates an Orchestrator.
func New(params Params, player Player, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		params: params,
		player: player,
		logger: logger.Get().Named("tournament"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.params.WorkerCount < 1 {
		o.params.WorkerCount = 1
	}
	return o
}

// Run plays Stage 1 over all teams and Stage 2 over the arena winners.
func (o *Orchestrator) Run(ctx context.Context, teams []model.Team) (model.TournamentResult, error) {
	result := model.TournamentResult{RunID: uuid.NewString(), Seed: o.params.Seed}
	o.logger.Info(ctx, "tournament starting",
		logger.String("run_id", result.RunID),
		logger.Int("teams", len(teams)),
		logger.Any("seed", o.params.Seed),
	)
	metrics.UpdateRegisteredTeams(len(teams))

	s1, err := o.RunStage1(ctx, teams)
	if err != nil {
		return result, err
	}
	result.Stage1 = &s1

	s2, err := o.RunStage2(ctx, s1.Advanced)
	if err != nil {
		return result, err
	}
	result.Stage2 = &s2

	if len(s2.Leaderboard) > 0 {
		result.Champion = s2.Leaderboard[0].TeamID
	}
	if len(s2.Leaderboard) > 1 {
		result.RunnerUp = s2.Leaderboard[1].TeamID
	}
	o.logger.Info(ctx, "tournament finished",
		logger.String("run_id", result.RunID),
		logger.String("champion", result.Champion),
		logger.String("runner_up", result.RunnerUp),
	)
	return result, nil
}

// RunStage1 partitions teams, in registration order, into arenas of
// ArenaSize, plays every arena and advances each arena's top team.
func (o *Orchestrator) RunStage1(ctx context.Context, teams []model.Team) (model.StageResult, error) {
	if err := validateTeams(teams); err != nil {
		return model.StageResult{}, err
	}
	if len(teams)%o.params.ArenaSize != 0 {
		return model.StageResult{}, configurationError("%d teams cannot be split into arenas of %d", len(teams), o.params.ArenaSize)
	}

	arenas := make([]model.Arena, 0, len(teams)/o.params.ArenaSize)
	for i := 0; i < len(teams); i += o.params.ArenaSize {
		arenas = append(arenas, model.Arena{
			ID:    strconv.Itoa(i/o.params.ArenaSize + 1),
			Stage: 1,
			Teams: teams[i : i+o.params.ArenaSize],
		})
	}

	res, err := o.runStage(ctx, 1, arenas, o.params.Stage1Games)
	if err != nil {
		return res, err
	}
	for _, a := range res.Arenas {
		winner := a.Standings[0].TeamID
		for _, t := range a.Arena.Teams {
			if t.ID == winner {
				res.Advanced = append(res.Advanced, t)
			}
		}
		o.logger.Info(ctx, "arena winner",
			logger.String("arena", a.Arena.ID),
			logger.String("team", winner),
			logger.Float64("utility", a.Standings[0].CumulativeUtility),
		)
	}
	o.publishStandings(ctx, res)
	return res, nil
}

// RunStage2 plays the championship arena with every given team.
func (o *Orchestrator) RunStage2(ctx context.Context, teams []model.Team) (model.StageResult, error) {
	if err := validateTeams(teams); err != nil {
		return model.StageResult{}, err
	}
	arenas := []model.Arena{{ID: ChampionshipArenaID, Stage: 2, Teams: teams}}
	res, err := o.runStage(ctx, 2, arenas, o.params.Stage2Games)
	if err != nil {
		return res, err
	}
	o.publishStandings(ctx, res)
	return res, nil
}

type job struct {
	arena int
	spec  game.Spec
}

func (o *Orchestrator) runStage(ctx context.Context, stage int, arenas []model.Arena, games int) (model.StageResult, error) {
	if games < 1 {
		return model.StageResult{}, configurationError("stage %d needs at least one game", stage)
	}
	o.logger.Info(ctx, "stage starting",
		logger.Int("stage", stage),
		logger.Int("arenas", len(arenas)),
		logger.Int("games_per_arena", games),
	)

	jobs := o.plan(stage, arenas, games)
	results := make([][]model.GameResult, len(arenas))
	for i := range results {
		results[i] = make([]model.GameResult, games)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.params.WorkerCount)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			res, err := o.player.Play(gctx, j.spec)
			if err != nil {
				return fmt.Errorf("stage %d arena %s game %d: %w", stage, j.spec.ArenaID, j.spec.GameNumber, err)
			}
			results[j.arena][j.spec.GameNumber-1] = res
			if o.sink != nil {
				if err := o.sink.PublishGame(gctx, res); err != nil {
					metrics.RecordErrorByComponent("tournament", "publish_game")
					o.logger.Warn(gctx, "failed to publish game", logger.String("game", res.GameID), logger.Error(err))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.StageResult{}, err
	}

	res := model.StageResult{Stage: stage}
	perArena := make([][]model.StageStanding, len(arenas))
	for i, a := range arenas {
		standings := ranking.Fold(stage, a.ID, a.Teams, results[i])
		perArena[i] = standings
		res.Arenas = append(res.Arenas, model.ArenaResult{Arena: a, Games: results[i], Standings: standings})
	}
	res.Leaderboard = ranking.Merge(perArena...)
	res.FinishedAt = o.now()

	metrics.RecordStageCompleted(strconv.Itoa(stage))
	o.logger.Info(ctx, "stage finished", logger.Int("stage", stage), logger.Int("teams", len(res.Leaderboard)))
	return res, nil
}

// plan derives every game seed up front: stage seed, then one stream per
// arena, then one seed per game in order.
func (o *Orchestrator) plan(stage int, arenas []model.Arena, games int) []job {
	stageRNG := rand.New(rand.NewSource(o.params.Seed + int64(stage)*stageSeedStride)) //nolint:gosec // reproducible seeds
	jobs := make([]job, 0, len(arenas)*games)
	for i, a := range arenas {
		arenaRNG := rand.New(rand.NewSource(stageRNG.Int63())) //nolint:gosec // reproducible seeds
		for n := 1; n <= games; n++ {
			jobs = append(jobs, job{
				arena: i,
				spec: game.Spec{
					GameID:     game.ID(stage, a.ID, n),
					Stage:      stage,
					ArenaID:    a.ID,
					GameNumber: n,
					Seed:       arenaRNG.Int63(),
					Teams:      a.Teams,
				},
			})
		}
	}
	return jobs
}

func (o *Orchestrator) publishStandings(ctx context.Context, res model.StageResult) {
	if o.sink == nil {
		return
	}
	if err := o.sink.PublishStandings(ctx, res); err != nil {
		metrics.RecordErrorByComponent("tournament", "publish_standings")
		o.logger.Warn(ctx, "failed to publish standings", logger.Int("stage", res.Stage), logger.Error(err))
	}
}

func validateTeams(teams []model.Team) error {
	if len(teams) == 0 {
		return configurationError("no teams registered")
	}
	seen := make(map[string]bool, len(teams))
	for _, t := range teams {
		if t.ID == "" {
			return configurationError("team with empty id")
		}
		if seen[t.ID] {
			return configurationError("duplicate team id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

func configurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrConfiguration, config.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
