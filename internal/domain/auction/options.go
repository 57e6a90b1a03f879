package auction

import (
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// Option applies a configuration option to the Round.
type Option func(*Round)

// WithBidTimeout sets the deadline for each ProduceBid call.
func WithBidTimeout(d time.Duration) Option {
	return func(r *Round) {
		if d > 0 {
			r.bidTimeout = d
		}
	}
}

// WithDecimalPlaces sets the precision bids are rounded to.
func WithDecimalPlaces(places int32) Option {
	return func(r *Round) {
		if places >= 0 {
			r.places = places
		}
	}
}

// WithLogger sets the logger receiving private bid records.
func WithLogger(l logger.Logger) Option {
	return func(r *Round) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the outcome timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Round) {
		if now != nil {
			r.now = now
		}
	}
}
