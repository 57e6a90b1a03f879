package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks settings that cannot describe a tournament.
	ErrInvalidConfig = errors.New("invalid tournament config")
	// ErrLoadConfig marks failures reading the file or environment layers.
	ErrLoadConfig = errors.New("load tournament config")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
