// Package queue is the bounded in-memory hand-off between games, which
// produce result records, and the workers that persist them.
package queue

import (
	"context"
	"sync"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10_000
	defaultBufferSize    = 10_000
)

// Record is the payload type flowing through the queue.
type Record = model.Record

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a record to the queue.
	// Returns false if the queue is full or closed and the record was not enqueued.
	Enqueue(ctx context.Context, r Record) bool

	// Dequeue returns a channel that receives records as they become available.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Record

	// Len returns the current number of queued records.
	Len(ctx context.Context) int

	// Close stops accepting records. Records already queued stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records    chan Record
	capacity   int
	bufferSize int
	component  string
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
		component:  "queue",
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}

	q.records = make(chan Record, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a record to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Record) bool { //nolint:gocritic // hugeParam: Record is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent(q.component, "closed")
		return false
	}
	if len(q.records) >= q.capacity {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent(q.component, "capacity_exceeded")
		return false
	}

	select {
	case q.records <- r:
		metrics.UpdateQueueSize(len(q.records))
		return true
	case <-ctx.Done():
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent(q.component, "context_cancelled")
		return false
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent(q.component, "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives records as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Record {
	out := make(chan Record)
	go func() {
		defer close(out)
		for r := range q.records {
			select {
			case out <- r:
				metrics.UpdateQueueSize(len(q.records))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued records.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.records)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting records.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.records)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
