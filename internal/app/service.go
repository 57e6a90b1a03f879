// Package service wires configuration, strategy loading, the game and
// tournament orchestrators and the result sinks into one runnable service,
// and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/http/api"
	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/http/swagger"
	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/loader"
	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/report"
	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/repository"
	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/sink"
	"github.com/nitayalon/AGT-Bidding-competition/internal/config"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/auction"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/game"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/strategy"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/tournament"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/valuation"
	"github.com/nitayalon/AGT-Bidding-competition/internal/sandbox"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/metrics"
)

// Files written next to the game records.
const (
	ReportFile = "final_report.txt"

	validationValue = 10.0
	stopTimeout     = 30 * time.Second
)

// Service runs tournaments and serves their results.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger
	loader strategy.Loader
	now    func() time.Time

	// Core components, built by Start.
	store      *repository.TreapStore
	memory     *sink.Memory
	files      *sink.File
	async      *sink.Async
	standings  *sink.Standings
	results    sink.Sink
	sandbox    *sandbox.Sandbox
	round      *auction.Round
	games      *game.Orchestrator
	tournament *tournament.Orchestrator

	// State
	started bool
	teams   int
	last    *model.TournamentResult
}

// New constructs a Service for cfg. Components are built by Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the configuration and builds every component.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", tournament.ErrConfiguration, err)
	}

	files, err := sink.NewFile(s.cfg.ResultsDir, s.logger.Named("sink"))
	if err != nil {
		return err
	}
	s.files = files
	s.store = repository.NewTreapStore(ctx)
	s.memory = sink.NewMemory()
	s.standings = sink.NewStandings(s.store, nil)
	s.async = sink.NewAsync(ctx, files, s.cfg.QueueSize, s.cfg.SinkWorkers, s.logger.Named("sink"))
	s.results = sink.Fanout{s.memory, s.standings, s.async}

	if s.loader == nil {
		s.loader = loader.New(loader.WithLogger(s.logger.Named("loader")))
	}
	s.sandbox = sandbox.New(sandbox.WithLogger(s.logger.Named("sandbox")))
	s.round = auction.NewRound(s.sandbox,
		auction.WithBidTimeout(s.cfg.BidTimeout()),
		auction.WithDecimalPlaces(s.cfg.BidDecimalPlaces),
		auction.WithClock(s.now),
	)
	s.games = game.New(s.gameParams(s.cfg.AuctionRounds), s.sampler(), s.loader, s.sandbox, s.round,
		game.WithPublisher(s.results),
		game.WithLogger(s.logger.Named("game")),
		game.WithClock(s.now),
	)
	s.tournament = tournament.New(tournament.Params{
		ArenaSize:   s.cfg.ArenaSize,
		Stage1Games: s.cfg.Stage1Games,
		Stage2Games: s.cfg.Stage2Games,
		WorkerCount: s.cfg.WorkerCount,
		Seed:        s.cfg.Seed,
	}, s.games,
		tournament.WithSink(s.results),
		tournament.WithLogger(s.logger.Named("tournament")),
		tournament.WithClock(s.now),
	)

	s.started = true
	s.logger.Info(ctx, "tournament service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.String("resultsDir", s.cfg.ResultsDir),
		logger.Any("seed", s.cfg.Seed),
	)
	return nil
}

// Stop flushes pending result records and releases the rank store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping tournament service...")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	var errs []error
	if err := s.async.Close(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("flush results: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}

	s.started = false
	s.logger.Info(ctx, "tournament service stopped")
	return errors.Join(errs...)
}

// DiscoverTeams loads the team manifests under the configured teams dir.
func (s *Service) DiscoverTeams(ctx context.Context) ([]model.Team, error) {
	log := s.logger
	if log == nil {
		log = logger.Get()
	}
	return loader.Discover(ctx, s.cfg.TeamsDir, log.Named("loader"))
}

// Run plays the full tournament and writes the summary and final report.
func (s *Service) Run(ctx context.Context, teams []model.Team) (model.TournamentResult, error) {
	orch, err := s.prepare(teams)
	if err != nil {
		return model.TournamentResult{}, err
	}

	res, err := orch.Run(ctx, teams)
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	if err := s.files.WriteTournament(res); err != nil {
		return res, err
	}
	if err := s.files.WriteText(ReportFile, report.New(io.Discard).Tournament(res)); err != nil {
		return res, err
	}
	s.logger.Info(ctx, "tournament complete",
		logger.String("run", res.RunID),
		logger.String("champion", res.Champion),
		logger.String("runnerUp", res.RunnerUp),
	)
	return res, nil
}

// RunStage plays a single stage: 1 partitions teams into arenas, 2 plays
// one championship arena with every given team.
func (s *Service) RunStage(ctx context.Context, stage int, teams []model.Team) (model.StageResult, error) {
	orch, err := s.prepare(teams)
	if err != nil {
		return model.StageResult{}, err
	}

	var res model.StageResult
	switch stage {
	case 1:
		res, err = orch.RunStage1(ctx, teams)
	case 2:
		res, err = orch.RunStage2(ctx, teams)
	default:
		return model.StageResult{}, fmt.Errorf("%w: %d", ErrInvalidStage, stage)
	}
	if err != nil {
		return res, err
	}

	name := "stage" + strconv.Itoa(stage) + "_report.txt"
	if err := s.files.WriteText(name, report.New(io.Discard).Stage(res)); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) prepare(teams []model.Team) (*tournament.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	s.teams = len(teams)
	s.standings.SetRoster(teams)
	metrics.UpdateRegisteredTeams(len(teams))
	return s.tournament, nil
}

// ValidationReport is what a single dry-run bid revealed about a strategy.
type ValidationReport struct {
	Team        model.Team         `json:"team"`
	Item        string             `json:"item_id"`
	Bid         model.Bid          `json:"bid"`
	Forfeit     bool               `json:"forfeit"`
	Diagnostics []model.Diagnostic `json:"diagnostics,omitempty"`
}

// OK reports whether the strategy built and bid without any anomaly.
func (r ValidationReport) OK() bool {
	return !r.Forfeit && len(r.Diagnostics) == 0
}

// Validate builds the strategy in dir against constant valuations and runs
// one bid through the sandbox. Nothing is published.
func (s *Service) Validate(ctx context.Context, dir string) (ValidationReport, error) {
	if err := s.cfg.Validate(); err != nil {
		return ValidationReport{}, fmt.Errorf("%w: %w", tournament.ErrConfiguration, err)
	}
	team, err := loader.LoadTeam(dir)
	if err != nil {
		return ValidationReport{}, err
	}

	log := s.logger
	if log == nil {
		log = logger.Get()
	}
	ld := s.loader
	if ld == nil {
		ld = loader.New(loader.WithLogger(log.Named("loader")))
	}
	sb := sandbox.New(sandbox.WithLogger(log.Named("sandbox")))
	round := auction.NewRound(sb,
		auction.WithBidTimeout(s.cfg.BidTimeout()),
		auction.WithDecimalPlaces(s.cfg.BidDecimalPlaces),
	)
	dry := game.New(s.gameParams(1), valuation.Constant{Value: validationValue}, ld, sb, round,
		game.WithLogger(log.Named("validate")),
	)

	res, err := dry.Play(ctx, game.Spec{
		GameID:     "validate_" + team.ID,
		ArenaID:    "validate",
		GameNumber: 1,
		Teams:      []model.Team{team},
	})
	if err != nil {
		return ValidationReport{Team: team}, err
	}

	rep := ValidationReport{Team: team, Forfeit: res.Teams[team.ID].Forfeit}
	if len(res.Outcomes) > 0 {
		o := res.Outcomes[0]
		rep.Item = o.ItemID
		rep.Diagnostics = o.Diagnostics
		if len(o.Bids) > 0 {
			rep.Bid = o.Bids[0]
		}
	}
	return rep, nil
}

// ArchiveCheck is the outcome of verifying one game archive.
type ArchiveCheck struct {
	Path   string
	GameID string
	Err    error
}

// VerifyArchives checks the digest of every game archive under the results
// directory and decodes it. It fails only when the directory cannot be
// walked; per-archive problems are reported in the checks.
func (s *Service) VerifyArchives(ctx context.Context) ([]ArchiveCheck, error) {
	var checks []ArchiveCheck
	err := filepath.WalkDir(s.cfg.ResultsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || filepath.Ext(path) != ".cbor" {
			return nil
		}
		g, rerr := sink.ReadArchive(path)
		checks = append(checks, ArchiveCheck{Path: path, GameID: g.GameID, Err: rerr})
		if rerr != nil {
			s.logger.Warn(ctx, "game archive failed verification", logger.String("path", path), logger.Error(rerr))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify archives: %w", err)
	}
	return checks, nil
}

// Handler returns the HTTP read API over the service's results.
func (s *Service) Handler() (http.Handler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	mux := http.NewServeMux()
	api.NewServer(s.store, s.memory, s, s.cfg.MaxLeaderboardLimit).Register(mux)
	swagger.Register(mux)
	return mux, nil
}

// Last returns the result of the most recent full run, if any.
func (s *Service) Last() (model.TournamentResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.TournamentResult{}, false
	}
	return *s.last, true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
		"teams":       s.teams,
	}
	if s.started {
		ctx := context.Background()
		held := s.memory.Stats()
		stats["outcomes"] = held.Outcomes
		stats["games"] = held.Games
		stats["stagesCompleted"] = held.StagesCompleted
		stats["pendingRecords"] = s.async.Pending(ctx)

		ranked := map[string]int{}
		for _, stage := range s.store.Stages(ctx) {
			ranked[strconv.Itoa(stage)] = s.store.Count(ctx, stage)
		}
		stats["rankedTeams"] = ranked
	}
	if s.last != nil {
		stats["champion"] = s.last.Champion
		stats["runnerUp"] = s.last.RunnerUp
	}
	return stats
}

func (s *Service) gameParams(rounds int) game.Params {
	return game.Params{
		ItemCount:      s.cfg.ItemCount,
		AuctionRounds:  rounds,
		Budget:         s.cfg.Budget,
		InitTimeout:    s.cfg.InitTimeout(),
		ObserveTimeout: s.cfg.ObserveTimeout(),
	}
}

func (s *Service) sampler() *valuation.Sampler {
	c := s.cfg
	return valuation.NewSampler(valuation.Categories{
		High:       c.HighValueItems,
		Low:        c.LowValueItems,
		Mixed:      c.MixedValueItems,
		HighRange:  valuation.Range{Min: c.HighValueMin, Max: c.HighValueMax},
		LowRange:   valuation.Range{Min: c.LowValueMin, Max: c.LowValueMax},
		MixedRange: valuation.Range{Min: c.MixedValueMin, Max: c.MixedValueMax},
	})
}
