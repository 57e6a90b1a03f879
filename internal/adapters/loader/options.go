package loader

import "github.com/nitayalon/AGT-Bidding-competition/pkg/logger"

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for strategy process output.
func WithLogger(l logger.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}
