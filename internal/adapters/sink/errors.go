package sink

import "errors"

// Sentinel errors for result sinks.
var (
	ErrUnknownRecord  = errors.New("unknown record")
	ErrGameNotFound   = errors.New("game not found")
	ErrClosed         = errors.New("sink closed")
	ErrDigestMismatch = errors.New("archive digest mismatch")
)
