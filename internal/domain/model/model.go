// Package model contains domain records passed between layers.
//
// Records are values: once produced they are never mutated. Fields that
// must stay private to tournament staff (raw bids, diagnostics, valuations)
// are carried on the full record; Public projections strip them.
package model

import (
	"fmt"
	"time"
)

// Team is a registered participant. Immutable.
type Team struct {
	ID           string    `json:"team_id"`
	Name         string    `json:"team_name"`
	RegisteredAt time.Time `json:"registered_at"`
	// Source tells the loader how to build the strategy, e.g. "builtin:truthful"
	// or "exec:./bidder --flag".
	Source string `json:"source"`
}

// Valuation maps item ids to the private, additive value a team assigns them.
type Valuation map[string]float64

// Clone returns an independent copy.
func (v Valuation) Clone() Valuation {
	out := make(Valuation, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// ItemID returns the canonical id of the i-th item of the universe.
func ItemID(i int) string { return fmt.Sprintf("item_%d", i) }

// ItemIDs returns the canonical ids item_0..item_{n-1}.
func ItemIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ItemID(i)
	}
	return ids
}

// DiagnosticKind classifies a per-team anomaly recorded during a game.
type DiagnosticKind string

// Diagnostic kinds. None of them disqualify a team.
const (
	BidTimeout       DiagnosticKind = "bid_timeout"
	BidFault         DiagnosticKind = "bid_fault"
	InvalidBidValue  DiagnosticKind = "invalid_bid_value"
	BudgetCapApplied DiagnosticKind = "budget_cap_applied"
	ObserveFault     DiagnosticKind = "observe_fault"
	InitFault        DiagnosticKind = "init_fault"
)

// Diagnostic is a private record of one anomaly.
type Diagnostic struct {
	TeamID string         `json:"team_id"`
	Kind   DiagnosticKind `json:"kind"`
	Detail string         `json:"detail,omitempty"`
}

// Bid is one team's bid in one round after coercion.
type Bid struct {
	TeamID string `json:"team_id"`
	// Submitted is the raw value as returned by the strategy, formatted for
	// display; it may be "NaN", "+Inf" or empty when nothing usable came back.
	Submitted string `json:"submitted"`
	// Amount is the effective bid used for resolution.
	Amount  float64       `json:"amount"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// AuctionOutcome is the full, private record of one resolved round.
type AuctionOutcome struct {
	GameID      string       `json:"game_id"`
	Round       int          `json:"round"`
	ItemID      string       `json:"item_id"`
	WinnerID    string       `json:"winner_id"`
	Price       float64      `json:"price"`
	Bids        []Bid        `json:"bids"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// Tied lists the top set when more than one team shared the highest bid.
	Tied      []string  `json:"tied,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HasWinner reports whether the item was sold.
func (o AuctionOutcome) HasWinner() bool { return o.WinnerID != "" }

// PublicOutcome is what every participant may see about a round.
type PublicOutcome struct {
	GameID   string  `json:"game_id"`
	Round    int     `json:"round"`
	ItemID   string  `json:"item_id"`
	WinnerID string  `json:"winner_id"`
	Price    float64 `json:"price"`
}

// Public strips bids, diagnostics and tie information.
func (o AuctionOutcome) Public() PublicOutcome {
	return PublicOutcome{
		GameID:   o.GameID,
		Round:    o.Round,
		ItemID:   o.ItemID,
		WinnerID: o.WinnerID,
		Price:    o.Price,
	}
}

// TeamGameResult is one team's ledger at the end of a game.
type TeamGameResult struct {
	TeamID               string    `json:"team_id"`
	Utility              float64   `json:"utility"`
	ItemsWon             []string  `json:"items_won"`
	MaxSingleItemUtility float64   `json:"max_single_item_utility"`
	BudgetSpent          float64   `json:"budget_spent"`
	BudgetRemaining      float64   `json:"budget_remaining"`
	ValuationWon         float64   `json:"total_valuation_won"`
	Valuation            Valuation `json:"valuation_vector"`
	Faults               int       `json:"faults"`
	// Forfeit is set when the strategy could not be built; every bid was 0.
	Forfeit bool `json:"forfeit,omitempty"`
}

// GameResult is the full, private record of one game.
type GameResult struct {
	GameID     string                    `json:"game_id"`
	Stage      int                       `json:"stage"`
	ArenaID    string                    `json:"arena_id"`
	GameNumber int                       `json:"game_number"`
	Seed       int64                     `json:"seed"`
	Sequence   []string                  `json:"auction_sequence"`
	Teams      map[string]TeamGameResult `json:"team_results"`
	Outcomes   []AuctionOutcome          `json:"auction_log"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
}

// PublicGame is the participant-visible view of a game.
type PublicGame struct {
	GameID     string          `json:"game_id"`
	Stage      int             `json:"stage"`
	ArenaID    string          `json:"arena_id"`
	GameNumber int             `json:"game_number"`
	Rounds     []PublicOutcome `json:"rounds"`
}

// Public projects the game onto public outcomes only.
func (g GameResult) Public() PublicGame {
	rounds := make([]PublicOutcome, len(g.Outcomes))
	for i, o := range g.Outcomes {
		rounds[i] = o.Public()
	}
	return PublicGame{
		GameID:     g.GameID,
		Stage:      g.Stage,
		ArenaID:    g.ArenaID,
		GameNumber: g.GameNumber,
		Rounds:     rounds,
	}
}

// StageStanding aggregates one team's games within a stage.
type StageStanding struct {
	TeamID               string    `json:"team_id"`
	Stage                int       `json:"stage"`
	ArenaID              string    `json:"arena_id,omitempty"`
	CumulativeUtility    float64   `json:"total_utility"`
	MaxSingleItemUtility float64   `json:"max_single_item_utility"`
	ItemsWon             int       `json:"total_items_won"`
	GamesPlayed          int       `json:"games_played"`
	TotalSpent           float64   `json:"total_spent"`
	TotalValuationWon    float64   `json:"total_valuation_won"`
	RegisteredAt         time.Time `json:"registered_at"`
	// GamesWon counts games where the team had the top utility. Reported only.
	GamesWon int `json:"games_won"`
	Rank     int `json:"rank"`
}

// Arena is a fixed group of teams playing together within a stage.
type Arena struct {
	ID    string `json:"arena_id"`
	Stage int    `json:"stage"`
	Teams []Team `json:"teams"`
}

// TeamIDs returns the arena's team ids in registration order.
func (a Arena) TeamIDs() []string {
	ids := make([]string, len(a.Teams))
	for i, t := range a.Teams {
		ids[i] = t.ID
	}
	return ids
}

// ArenaResult groups the games and ranked standings of one arena.
type ArenaResult struct {
	Arena     Arena           `json:"arena"`
	Games     []GameResult    `json:"-"`
	Standings []StageStanding `json:"standings"`
}

// StageResult is the outcome of a complete stage.
type StageResult struct {
	Stage       int             `json:"stage"`
	Arenas      []ArenaResult   `json:"arenas"`
	Leaderboard []StageStanding `json:"leaderboard"`
	Advanced    []Team          `json:"advanced,omitempty"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// TournamentResult is the outcome of a full run.
type TournamentResult struct {
	RunID    string       `json:"run_id"`
	Seed     int64        `json:"seed"`
	Stage1   *StageResult `json:"stage1,omitempty"`
	Stage2   *StageResult `json:"stage2,omitempty"`
	Champion string       `json:"champion,omitempty"`
	RunnerUp string       `json:"runner_up,omitempty"`
}

// RecordKind labels what a Record carries.
type RecordKind string

// Record kinds.
const (
	RecordOutcome   RecordKind = "outcome"
	RecordGame      RecordKind = "game"
	RecordStandings RecordKind = "standings"
)

// Record is one unit of result output on its way to persistence. Exactly
// one of Outcome, Game or Stage is set, matching Kind.
type Record struct {
	ID        string          `json:"record_id"`
	Kind      RecordKind      `json:"kind"`
	Outcome   *AuctionOutcome `json:"outcome,omitempty"`
	Game      *GameResult     `json:"game,omitempty"`
	Stage     *StageResult    `json:"stage,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
