// Package config defines tournament configuration structures and loading hooks.
//
// Conventions:
//   - Core code never uses literals for tournament parameters; everything
//     is read from a Config produced by New or Load.
//   - All future functions must accept context.Context as the first parameter.
//   - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text, json or pretty console output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Seed drives every random choice of a run. Zero means "pick one".
	Seed int64 `koanf:"seed"`

	// TeamsDir holds one sub-directory per team with a team.yaml manifest.
	TeamsDir string `koanf:"teams_dir"`

	// ResultsDir receives game files, stage leaderboards and the final report.
	ResultsDir string `koanf:"results_dir"`

	// ItemCount (K) is the size of the item universe per game.
	ItemCount int `koanf:"item_count"`

	// AuctionRounds (T) is the number of items actually auctioned per game.
	AuctionRounds int `koanf:"auction_rounds"`

	// Budget (B) is every team's starting budget per game.
	Budget float64 `koanf:"budget"`

	// BidDecimalPlaces is the precision bids and prices are rounded to.
	BidDecimalPlaces int32 `koanf:"bid_decimal_places"`

	// Valuation categories. Counts must sum to ItemCount.
	HighValueItems  int     `koanf:"high_value_items"`
	LowValueItems   int     `koanf:"low_value_items"`
	MixedValueItems int     `koanf:"mixed_value_items"`
	HighValueMin    float64 `koanf:"high_value_min"`
	HighValueMax    float64 `koanf:"high_value_max"`
	LowValueMin     float64 `koanf:"low_value_min"`
	LowValueMax     float64 `koanf:"low_value_max"`
	MixedValueMin   float64 `koanf:"mixed_value_min"`
	MixedValueMax   float64 `koanf:"mixed_value_max"`

	// ArenaSize is the number of teams per Stage 1 arena.
	ArenaSize int `koanf:"arena_size"`

	// Stage1Games and Stage2Games are the games played per arena per stage.
	Stage1Games int `koanf:"stage1_games"`
	Stage2Games int `koanf:"stage2_games"`

	// Per-call deadlines for strategy code.
	BidTimeoutMS     int `koanf:"bid_timeout_ms"`
	ObserveTimeoutMS int `koanf:"observe_timeout_ms"`
	InitTimeoutMS    int `koanf:"init_timeout_ms"`

	// WorkerCount bounds how many games run at the same time.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory result record queue.
	QueueSize int `koanf:"queue_size"`

	// SinkWorkers sets the number of workers persisting result records.
	SinkWorkers int `koanf:"sink_workers"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with the competition defaults. Context is accepted
// first to satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		TeamsDir:            "teams",
		ResultsDir:          "results",
		ItemCount:           20,
		AuctionRounds:       15,
		Budget:              60,
		BidDecimalPlaces:    2,
		HighValueItems:      6,
		LowValueItems:       4,
		MixedValueItems:     10,
		HighValueMin:        10,
		HighValueMax:        20,
		LowValueMin:         1,
		LowValueMax:         10,
		MixedValueMin:       1,
		MixedValueMax:       20,
		ArenaSize:           5,
		Stage1Games:         5,
		Stage2Games:         5,
		BidTimeoutMS:        2000,
		ObserveTimeoutMS:    2000,
		InitTimeoutMS:       2000,
		WorkerCount:         runtime.NumCPU(),
		QueueSize:           10_000,
		SinkWorkers:         2,
		MaxLeaderboardLimit: 100,
	}
}

// BidTimeout is the deadline for a single ProduceBid call.
func (c *Config) BidTimeout() time.Duration {
	return time.Duration(c.BidTimeoutMS) * time.Millisecond
}

// ObserveTimeout is the deadline for a single ObserveOutcome call.
func (c *Config) ObserveTimeout() time.Duration {
	return time.Duration(c.ObserveTimeoutMS) * time.Millisecond
}

// InitTimeout is the deadline for building one strategy handle.
func (c *Config) InitTimeout() time.Duration {
	return time.Duration(c.InitTimeoutMS) * time.Millisecond
}

// Validate checks the tournament parameters for internal consistency.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.ItemCount <= 0:
		return invalid("item_count must be positive, got %d", c.ItemCount)
	case c.AuctionRounds <= 0 || c.AuctionRounds > c.ItemCount:
		return invalid("auction_rounds must be in [1, %d], got %d", c.ItemCount, c.AuctionRounds)
	case c.Budget <= 0:
		return invalid("budget must be positive, got %v", c.Budget)
	case c.BidDecimalPlaces < 0:
		return invalid("bid_decimal_places must not be negative")
	case c.HighValueItems < 0 || c.LowValueItems < 0 || c.MixedValueItems < 0:
		return invalid("valuation category counts must not be negative")
	case c.HighValueItems+c.LowValueItems+c.MixedValueItems != c.ItemCount:
		return invalid("valuation categories sum to %d, want item_count %d",
			c.HighValueItems+c.LowValueItems+c.MixedValueItems, c.ItemCount)
	case !validRange(c.HighValueMin, c.HighValueMax),
		!validRange(c.LowValueMin, c.LowValueMax),
		!validRange(c.MixedValueMin, c.MixedValueMax):
		return invalid("valuation ranges must satisfy 0 <= min <= max")
	case c.ArenaSize <= 0:
		return invalid("arena_size must be positive, got %d", c.ArenaSize)
	case c.Stage1Games <= 0 || c.Stage2Games <= 0:
		return invalid("games per stage must be positive")
	case c.BidTimeoutMS <= 0 || c.ObserveTimeoutMS <= 0 || c.InitTimeoutMS <= 0:
		return invalid("call timeouts must be positive")
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.QueueSize <= 0 || c.SinkWorkers <= 0:
		return invalid("queue_size and sink_workers must be positive")
	case c.MaxLeaderboardLimit <= 0:
		return invalid("max_leaderboard_limit must be positive")
	}
	return nil
}

func validRange(lo, hi float64) bool {
	return lo >= 0 && lo <= hi
}
