package tournament

import "errors"

// ErrConfiguration is the only error class that stops a tournament before
// it starts. It always also wraps config.ErrInvalidConfig.
var ErrConfiguration = errors.New("configuration error")
