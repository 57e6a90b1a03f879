// Package valuation samples private item valuations and auction sequences.
//
// Items are split into three categories once per game, shared by every
// team: high-value, low-value and mixed. Each team then draws its own
// value for every item uniformly from the item's category range.
package valuation

import (
	"fmt"
	"math/rand"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// subsetSalt decorrelates the sequence draw from the valuation draw when
// both use the same game seed.
const subsetSalt int64 = 0x5eed_a0c7

// Provider supplies valuations and the auction sequence for a game.
// Both methods are deterministic in their seed.
type Provider interface {
	Generate(teamIDs []string, itemCount int, seed int64) (map[string]model.Valuation, error)
	SelectAuctionSubset(itemCount, subsetSize int, seed int64) ([]string, error)
}

// Range is a closed-open interval [Min, Max) values are drawn from.
type Range struct {
	Min float64
	Max float64
}

func (r Range) draw(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Categories describes how the item universe is split.
type Categories struct {
	High       int
	Low        int
	Mixed      int
	HighRange  Range
	LowRange   Range
	MixedRange Range
}

// Sampler is the default Provider.
type Sampler struct {
	categories Categories
}

// NewSampler creates a Sampler for the given categories.
func NewSampler(categories Categories) *Sampler {
	return &Sampler{categories: categories}
}

// Generate draws one valuation vector per team over item_0..item_{itemCount-1}.
func (s *Sampler) Generate(teamIDs []string, itemCount int, seed int64) (map[string]model.Valuation, error) {
	c := s.categories
	if c.High+c.Low+c.Mixed != itemCount {
		return nil, fmt.Errorf("%w: categories cover %d items, want %d", ErrCategoryMismatch, c.High+c.Low+c.Mixed, itemCount)
	}

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible draws, not security sensitive

	// Category assignment is shared by every team in the game.
	ranges := make([]Range, itemCount)
	for rank, idx := range rng.Perm(itemCount) {
		switch {
		case rank < c.High:
			ranges[idx] = c.HighRange
		case rank < c.High+c.Low:
			ranges[idx] = c.LowRange
		default:
			ranges[idx] = c.MixedRange
		}
	}

	out := make(map[string]model.Valuation, len(teamIDs))
	for _, id := range teamIDs {
		v := make(model.Valuation, itemCount)
		for i := 0; i < itemCount; i++ {
			v[model.ItemID(i)] = ranges[i].draw(rng)
		}
		out[id] = v
	}
	return out, nil
}

// SelectAuctionSubset draws subsetSize distinct items in auction order.
func (s *Sampler) SelectAuctionSubset(itemCount, subsetSize int, seed int64) ([]string, error) {
	if subsetSize <= 0 || subsetSize > itemCount {
		return nil, fmt.Errorf("%w: subset of %d from %d items", ErrSubsetSize, subsetSize, itemCount)
	}
	rng := rand.New(rand.NewSource(seed ^ subsetSalt)) //nolint:gosec // reproducible draws, not security sensitive
	perm := rng.Perm(itemCount)[:subsetSize]
	seq := make([]string, subsetSize)
	for i, idx := range perm {
		seq[i] = model.ItemID(idx)
	}
	return seq, nil
}

// Constant is a Provider that values every item at the same amount. It is
// used to exercise a strategy without a real game.
type Constant struct {
	Value float64
}

// Generate gives every team the constant value for every item.
func (c Constant) Generate(teamIDs []string, itemCount int, _ int64) (map[string]model.Valuation, error) {
	out := make(map[string]model.Valuation, len(teamIDs))
	for _, id := range teamIDs {
		v := make(model.Valuation, itemCount)
		for _, item := range model.ItemIDs(itemCount) {
			v[item] = c.Value
		}
		out[id] = v
	}
	return out, nil
}

// SelectAuctionSubset returns the first subsetSize items in id order.
func (c Constant) SelectAuctionSubset(itemCount, subsetSize int, _ int64) ([]string, error) {
	if subsetSize <= 0 || subsetSize > itemCount {
		return nil, fmt.Errorf("%w: subset of %d from %d items", ErrSubsetSize, subsetSize, itemCount)
	}
	return model.ItemIDs(itemCount)[:subsetSize], nil
}
