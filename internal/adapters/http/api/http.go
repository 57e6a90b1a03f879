// Package api serves the read-only tournament HTTP API: the public outcome
// feed, public game views, live standings and metrics. Nothing here exposes
// bids, diagnostics or valuations.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/repository"
	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/sink"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// Default limits for paged endpoints.
const (
	DefaultMaxLimit  = 100
	defaultFeedLimit = 50
)

// StandingsReader exposes ranked stage standings.
type StandingsReader interface {
	Rank(ctx context.Context, stage int, teamID string) (model.StageStanding, error)
	TopN(ctx context.Context, stage int, n int) ([]model.StageStanding, error)
	Count(ctx context.Context, stage int) int
	Stages(ctx context.Context) []int
}

// FeedReader exposes public outcomes and public game views.
type FeedReader interface {
	Feed(cursor, limit int) ([]model.PublicOutcome, int)
	PublicGame(gameID string) (model.PublicGame, error)
	GameIDs() []string
}

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	feedHandler        *FeedHandler
	gamesHandler       *GamesHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// page size of paged endpoints; values below 1 use DefaultMaxLimit.
func NewServer(standings StandingsReader, feed FeedReader, statsProvider StatsProvider, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = DefaultMaxLimit
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider, standings),
		feedHandler:        NewFeedHandler(feed, maxLimit),
		gamesHandler:       NewGamesHandler(feed),
		leaderboardHandler: NewLeaderboardHandler(standings, maxLimit),
		rankHandler:        NewRankHandler(standings),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/feed", MetricsMiddleware(s.feedHandler.HandleGetFeed, "feed"))
	mux.HandleFunc("/games", MetricsMiddleware(s.gamesHandler.HandleListGames, "games"))
	mux.HandleFunc("/games/", MetricsMiddleware(s.gamesHandler.HandleGetGame, "game"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps upstream errors onto status codes.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, sink.ErrGameNotFound):
		writeError(w, http.StatusNotFound, "not_found", wrapKind(op, ErrNotFound, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// intParam reads a non-negative integer query parameter, returning def when
// it is absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, name, raw)
	}
	return n, nil
}
