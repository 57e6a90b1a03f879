package strategy

import "errors"

// Sentinel errors for strategy construction and calls.
var (
	// ErrUnknownStrategy is returned when a team source names no known strategy.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrNonNumericBid marks a bid reply that could not be read as a number.
	ErrNonNumericBid = errors.New("non-numeric bid")
	// ErrClosed is returned by handles used after Close.
	ErrClosed = errors.New("strategy handle closed")
)
