package sink

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/ranking"
)

// StandingsWriter stores one team's standing.
type StandingsWriter interface {
	Upsert(ctx context.Context, standing model.StageStanding) error
}

type arenaKey struct {
	stage int
	arena string
}

// Standings keeps a rank store current while a stage is still running: each
// completed game re-folds its arena and upserts the arena's teams. The
// final stage leaderboard overwrites the live rows.
type Standings struct {
	store StandingsWriter

	mu     sync.Mutex
	roster map[string]model.Team
	games  map[arenaKey][]model.GameResult
}

var _ Sink = (*Standings)(nil)

// NewStandings creates a Standings sink writing to store.
func NewStandings(store StandingsWriter, roster []model.Team) *Standings {
	s := &Standings{store: store, games: make(map[arenaKey][]model.GameResult)}
	s.SetRoster(roster)
	return s
}

// SetRoster replaces the teams used for registration-time tie-breaks.
func (s *Standings) SetRoster(teams []model.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = make(map[string]model.Team, len(teams))
	for _, t := range teams {
		s.roster[t.ID] = t
	}
}

func (s *Standings) PublishOutcome(context.Context, model.AuctionOutcome) error { return nil }

func (s *Standings) PublishGame(ctx context.Context, g model.GameResult) error {
	// Held across the upserts so a stale fold never overwrites a newer one.
	s.mu.Lock()
	defer s.mu.Unlock()
	key := arenaKey{stage: g.Stage, arena: g.ArenaID}
	s.games[key] = append(s.games[key], g)

	teams := make([]model.Team, 0, len(g.Teams))
	for id := range g.Teams {
		t, ok := s.roster[id]
		if !ok {
			t = model.Team{ID: id}
		}
		teams = append(teams, t)
	}

	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	var errs []error
	for _, st := range ranking.Fold(g.Stage, g.ArenaID, teams, s.games[key]) {
		errs = append(errs, s.store.Upsert(ctx, st))
	}
	return errors.Join(errs...)
}

func (s *Standings) PublishStandings(ctx context.Context, st model.StageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, row := range st.Leaderboard {
		errs = append(errs, s.store.Upsert(ctx, row))
	}
	return errors.Join(errs...)
}
