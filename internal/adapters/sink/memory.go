package sink

import (
	"context"
	"sync"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// Memory keeps results in memory for the HTTP read API and for tests.
// Outcomes are kept only as their public projection; games and stages are
// kept whole and cloned on the way in and out.
type Memory struct {
	mu        sync.RWMutex
	feed      []model.PublicOutcome
	games     map[string]model.GameResult
	gameOrder []string
	stages    map[int]model.StageResult
}

var _ Sink = (*Memory)(nil)

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{
		games:  make(map[string]model.GameResult),
		stages: make(map[int]model.StageResult),
	}
}

func (m *Memory) PublishOutcome(ctx context.Context, o model.AuctionOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feed = append(m.feed, o.Public())
	return nil
}

func (m *Memory) PublishGame(ctx context.Context, g model.GameResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.GameID]; !ok {
		m.gameOrder = append(m.gameOrder, g.GameID)
	}
	m.games[g.GameID] = cloneGame(g)
	return nil
}

func (m *Memory) PublishStandings(ctx context.Context, st model.StageResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[st.Stage] = cloneStage(st)
	return nil
}

// Feed returns up to limit public outcomes starting at cursor, plus the
// cursor to continue from.
func (m *Memory) Feed(cursor, limit int) ([]model.PublicOutcome, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(m.feed) || limit < 1 {
		return []model.PublicOutcome{}, min(max(cursor, 0), len(m.feed))
	}
	end := min(cursor+limit, len(m.feed))
	out := make([]model.PublicOutcome, end-cursor)
	copy(out, m.feed[cursor:end])
	return out, end
}

// PublicGame returns the public view of a completed game.
func (m *Memory) PublicGame(gameID string) (model.PublicGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	if !ok {
		return model.PublicGame{}, ErrGameNotFound
	}
	return g.Public(), nil
}

// GameIDs returns completed game ids in completion order.
func (m *Memory) GameIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.gameOrder...)
}

// Stage returns a completed stage.
func (m *Memory) Stage(stage int) (model.StageResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stages[stage]
	if !ok {
		return model.StageResult{}, false
	}
	return cloneStage(st), true
}

// Stats summarises what the sink holds.
type Stats struct {
	Outcomes        int `json:"outcomes"`
	Games           int `json:"games"`
	StagesCompleted int `json:"stages_completed"`
}

// Stats returns counts of held results.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Outcomes: len(m.feed), Games: len(m.games), StagesCompleted: len(m.stages)}
}

func cloneGame(in model.GameResult) model.GameResult {
	out := in
	out.Sequence = append([]string(nil), in.Sequence...)
	out.Outcomes = append([]model.AuctionOutcome(nil), in.Outcomes...)
	out.Teams = make(map[string]model.TeamGameResult, len(in.Teams))
	for id, r := range in.Teams {
		r.ItemsWon = append([]string(nil), r.ItemsWon...)
		r.Valuation = r.Valuation.Clone()
		out.Teams[id] = r
	}
	return out
}

func cloneStage(in model.StageResult) model.StageResult {
	out := in
	out.Leaderboard = append([]model.StageStanding(nil), in.Leaderboard...)
	out.Advanced = append([]model.Team(nil), in.Advanced...)
	out.Arenas = make([]model.ArenaResult, len(in.Arenas))
	for i, a := range in.Arenas {
		a.Standings = append([]model.StageStanding(nil), a.Standings...)
		a.Games = append([]model.GameResult(nil), a.Games...)
		out.Arenas[i] = a
	}
	return out
}
