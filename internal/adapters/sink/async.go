package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/mq/queue"
	"github.com/nitayalon/AGT-Bidding-competition/internal/adapters/mq/worker"
	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
)

const (
	deliveryAttempts = 3
	deliveryBackoff  = 50 * time.Millisecond
)

// Async puts results on a bounded queue and lets a worker pool deliver them
// to a downstream sink, so slow persistence never holds up a game.
// Records from different games may be delivered out of order.
type Async struct {
	downstream Sink
	queue      *queue.InMemoryQueue
	pool       *worker.Pool
	now        func() time.Time
}

var _ Sink = (*Async)(nil)

// NewAsync starts workers delivering to downstream. Close must be called to
// flush. The workers outlive cancellation of ctx so that records queued
// before an interrupt are still written by Close.
func NewAsync(ctx context.Context, downstream Sink, capacity, workers int, log logger.Logger) *Async {
	if log == nil {
		log = logger.Get().Named("sink")
	}
	q := queue.NewInMemoryQueue(queue.WithCapacity(capacity), queue.WithComponent("sink_queue"))
	a := &Async{downstream: downstream, queue: q, now: time.Now}
	a.pool = worker.NewPool(workers, q, worker.HandlerFunc(func(ctx context.Context, r queue.Record) error {
		return Dispatch(ctx, downstream, r)
	}), worker.WithLogger(log), worker.WithRetries(deliveryAttempts, deliveryBackoff))
	a.pool.Start(context.WithoutCancel(ctx))
	return a
}

func (a *Async) PublishOutcome(ctx context.Context, o model.AuctionOutcome) error {
	return a.enqueue(ctx, o)
}

func (a *Async) PublishGame(ctx context.Context, g model.GameResult) error {
	return a.enqueue(ctx, g)
}

func (a *Async) PublishStandings(ctx context.Context, st model.StageResult) error {
	return a.enqueue(ctx, st)
}

func (a *Async) enqueue(ctx context.Context, v any) error {
	r, err := NewRecord(v, a.now())
	if err != nil {
		return err
	}
	if a.queue.Enqueue(ctx, r) {
		return nil
	}
	if a.queue.IsClosed() {
		return ErrClosed
	}
	return fmt.Errorf("%w: %s %s", queue.ErrRejected, r.Kind, r.ID)
}

// Pending returns the number of records not yet picked up by a worker.
func (a *Async) Pending(ctx context.Context) int {
	return a.queue.Len(ctx)
}

// Close stops accepting results and waits for queued ones to be delivered.
func (a *Async) Close(ctx context.Context) error {
	return a.pool.Shutdown(ctx)
}
