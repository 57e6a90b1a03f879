package service

import "errors"

// Sentinel errors for the service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrInvalidStage = errors.New("stage must be 1 or 2")
)
