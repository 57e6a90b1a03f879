package loader

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/money"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/strategy"
)

// Builtin strategy names.
const (
	Truthful    = "truthful"
	Shaded      = "shaded"
	BudgetPacer = "budget_pacer"
	Random      = "random"
	Zero        = "zero"
)

const defaultShade = 0.8

// Builtins lists the reference strategies in a stable order.
func Builtins() []string {
	return []string{Truthful, Shaded, BudgetPacer, Random, Zero}
}

// builtinState is the bookkeeping every reference strategy keeps. It is
// the strategy's own view; the game ledger stays authoritative.
type builtinState struct {
	teamID    string
	valuation map[string]float64
	budget    float64
	remaining int
	closed    bool
}

func newBuiltinState(setup strategy.Init) builtinState {
	return builtinState{
		teamID:    setup.TeamID,
		valuation: setup.Valuation,
		budget:    setup.Budget,
		remaining: len(setup.Items),
	}
}

func (s *builtinState) observe(winnerID string, price float64) error {
	if s.closed {
		return strategy.ErrClosed
	}
	if winnerID == s.teamID {
		s.budget = money.Sub(s.budget, price, money.DefaultPlaces)
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return nil
}

// builtin is a reference strategy driven by a bid rule.
type builtin struct {
	builtinState
	rule func(s *builtinState, itemID string) float64
}

func (b *builtin) ProduceBid(_ context.Context, itemID string) (float64, error) {
	if b.closed {
		return 0, strategy.ErrClosed
	}
	return b.rule(&b.builtinState, itemID), nil
}

func (b *builtin) ObserveOutcome(_ context.Context, _ string, winnerID string, price float64) error {
	return b.observe(winnerID, price)
}

func (b *builtin) Close() error {
	b.closed = true
	return nil
}

// newBuiltin parses specs of the form "name" or "name:param".
func newBuiltin(spec string, setup strategy.Init) (strategy.Handle, error) {
	name, param, _ := strings.Cut(spec, ":")
	state := newBuiltinState(setup)

	switch name {
	case Truthful:
		return &builtin{builtinState: state, rule: func(s *builtinState, item string) float64 {
			return min(s.valuation[item], s.budget)
		}}, nil

	case Shaded:
		factor := defaultShade
		if param != "" {
			f, err := strconv.ParseFloat(param, 64)
			if err != nil || f < 0 || f > 1 {
				return nil, fmt.Errorf("%w: shade factor %q", strategy.ErrUnknownStrategy, param)
			}
			factor = f
		}
		return &builtin{builtinState: state, rule: func(s *builtinState, item string) float64 {
			return min(s.valuation[item]*factor, s.budget)
		}}, nil

	case BudgetPacer:
		return &builtin{builtinState: state, rule: func(s *builtinState, item string) float64 {
			if s.remaining < 1 {
				return 0
			}
			// Allow up to twice the even share of what is left.
			pace := 2 * s.budget / float64(s.remaining)
			return min(s.valuation[item], pace, s.budget)
		}}, nil

	case Random:
		h := fnv.New64a()
		_, _ = h.Write([]byte(setup.TeamID))
		rng := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec // reproducible reference strategy
		return &builtin{builtinState: state, rule: func(s *builtinState, item string) float64 {
			return min(rng.Float64()*s.valuation[item], s.budget)
		}}, nil

	case Zero:
		return &builtin{builtinState: state, rule: func(*builtinState, string) float64 { return 0 }}, nil

	default:
		return nil, fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, name)
	}
}
