package game

import "errors"

var (
	// ErrSetup is returned when a game cannot be set up from its parameters.
	ErrSetup = errors.New("game setup failed")
	// ErrNilHandle marks a loader that reported success without a strategy.
	ErrNilHandle = errors.New("loader returned no strategy")
	// ErrOverdraft marks a price above the winner's remaining budget.
	ErrOverdraft = errors.New("price exceeds remaining budget")
)
