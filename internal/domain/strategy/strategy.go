// Package strategy defines the fixed capability surface every bidding
// strategy exposes to the tournament, whatever it is implemented in.
package strategy

import (
	"context"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// Handle is a constructed strategy for one team in one game.
//
// Calls on a Handle are never concurrent: the game issues them one at a
// time through the sandbox, which also enforces deadlines. A Handle must
// not assume it is told its own budget after construction; the ledger is
// owned by the game.
type Handle interface {
	// ProduceBid returns the bid for the item currently on the block.
	ProduceBid(ctx context.Context, itemID string) (float64, error)
	// ObserveOutcome receives the public result of a round. winnerID is
	// empty when the item went unsold.
	ObserveOutcome(ctx context.Context, itemID, winnerID string, price float64) error
	// Close releases everything the handle holds.
	Close() error
}

// Init carries what a strategy is told at construction time.
type Init struct {
	TeamID    string
	Valuation model.Valuation
	Budget    float64
	// Items lists the items that will be auctioned, in auction order.
	Items []string
}

// Loader builds a Handle for a team.
type Loader interface {
	Load(ctx context.Context, team model.Team, init Init) (Handle, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, team model.Team, init Init) (Handle, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, team model.Team, init Init) (Handle, error) {
	return f(ctx, team, init)
}

// Forfeit is a Handle that always bids zero. It stands in for a team whose
// strategy could not be built.
type Forfeit struct{}

func (Forfeit) ProduceBid(context.Context, string) (float64, error) { return 0, nil }

func (Forfeit) ObserveOutcome(context.Context, string, string, float64) error { return nil }

func (Forfeit) Close() error { return nil }
