// Package auction resolves single-item sealed-bid second-price rounds.
//
// Collection (asking every strategy for a bid through the sandbox) and
// resolution (picking winner and price from coerced bids) are separate:
// Resolve is pure and can be tested on plain bid lists.
package auction

import (
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// RandSource provides random numbers for tie-breaking. *rand.Rand
// satisfies it; tests inject deterministic sources.
type RandSource interface {
	// Intn returns a random integer in [0, n). Panics if n <= 0.
	Intn(n int) int
}

// Resolution is the result of resolving one round.
type Resolution struct {
	WinnerID string
	Price    float64
	// Tied is the top set, in bid order, when it has more than one member.
	Tied []string
}

// Resolve picks the winner and clearing price from coerced bids.
//
// The highest bid wins; ties are broken uniformly at random among the top
// set. The winner pays the highest bid among all other teams, which equals
// the top bid when the top set is tied. A top bid of 0 leaves the item
// unsold at price 0.
func Resolve(bids []model.Bid, rnd RandSource) Resolution {
	var top float64
	for _, b := range bids {
		if b.Amount > top {
			top = b.Amount
		}
	}
	if top <= 0 {
		return Resolution{}
	}

	var topSet []int
	for i, b := range bids {
		if b.Amount == top {
			topSet = append(topSet, i)
		}
	}

	winner := topSet[0]
	var tied []string
	if len(topSet) > 1 {
		winner = topSet[rnd.Intn(len(topSet))]
		tied = make([]string, len(topSet))
		for i, idx := range topSet {
			tied[i] = bids[idx].TeamID
		}
	}

	var price float64
	for i, b := range bids {
		if i != winner && b.Amount > price {
			price = b.Amount
		}
	}

	return Resolution{
		WinnerID: bids[winner].TeamID,
		Price:    price,
		Tied:     tied,
	}
}
