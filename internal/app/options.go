package service

import (
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/strategy"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLoader replaces the strategy loader built from team sources.
func WithLoader(l strategy.Loader) Option {
	return func(s *Service) {
		if l != nil {
			s.loader = l
		}
	}
}

// WithClock sets the time source stamped on records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
