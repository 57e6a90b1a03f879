package queue

import "errors"

// ErrRejected is returned by producers when the queue refused a record.
var ErrRejected = errors.New("queue rejected record")
