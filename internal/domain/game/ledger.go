package game

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// ledger is the authoritative per-team account for one game. Only the
// orchestrator touches it; strategies never see it directly.
type ledger struct {
	initial      decimal.Decimal
	budget       decimal.Decimal
	utility      decimal.Decimal
	valuationWon decimal.Decimal
	maxItem      decimal.Decimal
	items        []string
}

func newLedger(budget float64) *ledger {
	b := decimal.NewFromFloat(budget)
	return &ledger{initial: b, budget: b}
}

// Budget returns the remaining budget.
func (l *ledger) Budget() float64 { return l.budget.InexactFloat64() }

// win debits price and credits value-price. A price above the remaining
// budget leaves the ledger untouched and returns ErrOverdraft.
func (l *ledger) win(itemID string, value, price float64) error {
	v := decimal.NewFromFloat(value)
	p := decimal.NewFromFloat(price)
	if p.GreaterThan(l.budget) {
		return fmt.Errorf("%w: %s costs %s, budget %s", ErrOverdraft, itemID, p, l.budget)
	}
	gain := v.Sub(p)

	l.budget = l.budget.Sub(p)
	l.utility = l.utility.Add(gain)
	l.valuationWon = l.valuationWon.Add(v)
	if gain.GreaterThan(l.maxItem) {
		l.maxItem = gain
	}
	l.items = append(l.items, itemID)
	return nil
}

func (l *ledger) result(teamID string, valuation model.Valuation, faults int, forfeit bool) model.TeamGameResult {
	items := make([]string, len(l.items))
	copy(items, l.items)
	return model.TeamGameResult{
		TeamID:               teamID,
		Utility:              l.utility.InexactFloat64(),
		ItemsWon:             items,
		MaxSingleItemUtility: l.maxItem.InexactFloat64(),
		BudgetSpent:          l.initial.Sub(l.budget).InexactFloat64(),
		BudgetRemaining:      l.budget.InexactFloat64(),
		ValuationWon:         l.valuationWon.InexactFloat64(),
		Valuation:            valuation,
		Faults:               faults,
		Forfeit:              forfeit,
	}
}
