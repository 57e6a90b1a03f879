// Package money does ledger arithmetic at a fixed decimal precision so that
// repeated debits never drift below zero through float rounding.
package money

import (
	"github.com/shopspring/decimal"
)

// DefaultPlaces is the precision of bids, prices and budgets.
const DefaultPlaces int32 = 2

// Round rounds v half away from zero to places decimal places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Sub returns a-b at the given precision.
func Sub(a, b float64, places int32) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(places).InexactFloat64()
}

// Add returns a+b at the given precision.
func Add(a, b float64, places int32) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(places).InexactFloat64()
}

// Clamp limits v to [0, limit] and rounds the result to the given precision.
// capped reports whether the upper bound was applied.
func Clamp(v, limit float64, places int32) (out float64, capped bool) {
	d := decimal.NewFromFloat(v)
	l := decimal.NewFromFloat(limit)
	if d.IsNegative() {
		return 0, false
	}
	// The ceiling is the limit rounded down, so neither the cap nor the
	// rounding of an in-range bid can exceed the limit.
	ceiling := l.RoundFloor(places)
	if d.GreaterThan(l) || d.Round(places).GreaterThan(ceiling) {
		return ceiling.InexactFloat64(), true
	}
	return d.Round(places).InexactFloat64(), false
}
