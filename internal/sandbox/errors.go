package sandbox

import "errors"

// ErrDeadlineExceeded wraps the cause of every TimedOut outcome.
var ErrDeadlineExceeded = errors.New("strategy call deadline exceeded")
