package worker

import (
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

// Option configures an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName names the worker in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets the worker's logger.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRetries lets a failed record be handed to the handler up to attempts
// times in total, sleeping backoff between tries. Results files are written
// once per record, so a transient write error should not lose a game.
func WithRetries(attempts int, backoff time.Duration) Option {
	return func(w *InMemoryWorker) {
		if attempts > 0 {
			w.attempts = attempts
		}
		if backoff >= 0 {
			w.backoff = backoff
		}
	}
}
