package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/report"
	service "github.com/nitayalon/AGT-Bidding-competition/internal/app"
	"github.com/nitayalon/AGT-Bidding-competition/internal/config"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

var (
	errValidation = errors.New("strategy validation failed")
	errNoTeams    = errors.New("no teams found")
	errArchives   = errors.New("game archives failed verification")
)

// cli holds the persistent flags and what PersistentPreRunE builds from them.
type cli struct {
	configPath string
	seed       int64
	teamsDir   string
	resultsDir string
	logLevel   string

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "bidarena",
		Short: "Sequential Vickrey auction tournament",
		Long: `bidarena runs a two-stage tournament of sealed-bid second-price auctions
between team strategies. Stage 1 partitions the teams into arenas; arena
winners meet in a single championship arena in Stage 2.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "config file (YAML); defaults to $"+config.EnvConfigPath)
	pf.Int64Var(&c.seed, "seed", 0, "random seed of the run; 0 picks one")
	pf.StringVar(&c.teamsDir, "teams-dir", "", "directory holding one sub-directory per team")
	pf.StringVar(&c.resultsDir, "results-dir", "", "directory receiving results")
	pf.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(c.runCmd(), c.stageCmd(), c.validateCmd(), c.serveCmd(), c.verifyCmd())
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(ctx, c.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = c.seed
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if c.teamsDir != "" {
		cfg.TeamsDir = c.teamsDir
	}
	if c.resultsDir != "" {
		cfg.ResultsDir = c.resultsDir
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	c.log = logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

func (c *cli) runCmd() *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play the full tournament and write the final report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runTournament(cmd, serve)
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "serve the HTTP API during the run and until interrupted")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Play the full tournament behind the HTTP API and keep serving results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runTournament(cmd, true)
		},
	}
}

func (c *cli) stageCmd() *cobra.Command {
	var stage int
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Play a single stage",
		Long: `Play a single stage. Stage 2 plays the teams that advanced in the
stage 1 results found in the results directory, or every team when there
are none.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStage(cmd, stage)
		},
	}
	cmd.Flags().IntVar(&stage, "stage", 1, "stage to play (1 or 2)")
	return cmd
}

func (c *cli) validateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Build one team's strategy and run a single test bid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.validate(cmd, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "team", "", "team directory to validate")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func (c *cli) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the digests of the game archives in the results directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.verify(cmd)
		},
	}
}

func (c *cli) runTournament(cmd *cobra.Command, serve bool) error {
	ctx := cmd.Context()
	svc, teams, err := c.start(ctx)
	if err != nil {
		return err
	}
	defer c.stop(ctx, svc)

	var served <-chan error
	if serve {
		if served, err = c.serve(ctx, svc); err != nil {
			return err
		}
	}

	res, err := svc.Run(ctx, teams)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.New(out).Tournament(res))

	if serve {
		c.log.Info(ctx, "tournament finished; serving results until interrupted", logger.String("addr", c.cfg.Addr))
		return <-served
	}
	return nil
}

func (c *cli) runStage(cmd *cobra.Command, stage int) error {
	ctx := cmd.Context()
	svc, teams, err := c.start(ctx)
	if err != nil {
		return err
	}
	defer c.stop(ctx, svc)

	if stage == 2 {
		teams, err = advancedTeams(c.cfg.ResultsDir, teams)
		if err != nil {
			return err
		}
	}
	res, err := svc.RunStage(ctx, stage, teams)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.New(out).Stage(res))
	return nil
}

func (c *cli) validate(cmd *cobra.Command, dir string) error {
	svc := service.New(c.cfg, service.WithLogger(c.log))
	rep, err := svc.Validate(cmd.Context(), dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "team:    %s (%s)\n", rep.Team.ID, rep.Team.Source)
	fmt.Fprintf(out, "item:    %s\n", rep.Item)
	fmt.Fprintf(out, "bid:     %.2f (submitted %q, %s)\n", rep.Bid.Amount, rep.Bid.Submitted, rep.Bid.Elapsed)
	if rep.Forfeit {
		fmt.Fprintln(out, "result:  strategy could not be built")
	}
	for _, d := range rep.Diagnostics {
		fmt.Fprintf(out, "warning: %s %s\n", d.Kind, d.Detail)
	}
	if !rep.OK() {
		return errValidation
	}
	fmt.Fprintln(out, "result:  ok")
	return nil
}

func (c *cli) verify(cmd *cobra.Command) error {
	checks, err := service.New(c.cfg, service.WithLogger(c.log)).VerifyArchives(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, ch := range checks {
		if ch.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", ch.Path, ch.Err)
		}
	}
	fmt.Fprintf(out, "%d archives checked, %d failed\n", len(checks), failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errArchives, failed, len(checks))
	}
	return nil
}

func (c *cli) start(ctx context.Context) (*service.Service, []model.Team, error) {
	teams, err := service.New(c.cfg, service.WithLogger(c.log)).DiscoverTeams(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(teams) == 0 {
		return nil, nil, fmt.Errorf("%w in %s", errNoTeams, c.cfg.TeamsDir)
	}

	svc := service.New(c.cfg, service.WithLogger(c.log))
	if err := svc.Start(ctx); err != nil {
		return nil, nil, err
	}
	c.log.Info(ctx, "starting tournament",
		logger.Int("teams", len(teams)),
		logger.Any("seed", c.cfg.Seed),
	)
	return svc, teams, nil
}

func (c *cli) stop(ctx context.Context, svc *service.Service) {
	if err := svc.Stop(ctx); err != nil {
		c.log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
}

// serve runs the HTTP API until ctx is done. The listener is bound before
// serve returns, so an unusable address fails the command up front. The
// returned channel yields the outcome once the server has stopped.
func (c *cli) serve(ctx context.Context, svc *service.Service) (<-chan error, error) {
	h, err := svc.Handler()
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("HTTP server failed: %w", err)
	}
	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan error, 1)
	go func() {
		listen := make(chan error, 1)
		go func() {
			c.log.Info(ctx, "starting HTTP server", logger.String("addr", ln.Addr().String()))
			listen <- srv.Serve(ln)
		}()

		select {
		case err := <-listen:
			if !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("HTTP server failed: %w", err)
				return
			}
		case <-ctx.Done():
		}

		c.log.Info(ctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			done <- fmt.Errorf("server shutdown failed: %w", err)
			return
		}
		c.log.Info(ctx, "server stopped")
		done <- nil
	}()
	return done, nil
}

// advancedTeams narrows teams to those that advanced in the stage 1 result
// stored under dir. Without a stage 1 result every team plays.
func advancedTeams(dir string, teams []model.Team) ([]model.Team, error) {
	b, err := os.ReadFile(filepath.Join(dir, "stage1_complete.json")) //nolint:gosec // operator-supplied results dir
	if errors.Is(err, os.ErrNotExist) {
		return teams, nil
	}
	if err != nil {
		return nil, err
	}
	var st model.StageResult
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("read stage 1 result: %w", err)
	}

	byID := make(map[string]model.Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}
	out := make([]model.Team, 0, len(st.Advanced))
	for _, a := range st.Advanced {
		if t, ok := byID[a.ID]; ok {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: none of the stage 1 qualifiers is registered", errNoTeams)
	}
	return out, nil
}
