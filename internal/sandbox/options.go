package sandbox

import (
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// Option applies a configuration option to the Sandbox.
type Option func(*Sandbox)

// WithLogger sets a custom logger for the sandbox.
func WithLogger(l logger.Logger) Option {
	return func(s *Sandbox) {
		if l != nil {
			s.logger = l
		}
	}
}
