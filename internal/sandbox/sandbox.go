// Package sandbox runs calls into untrusted strategy code under a hard
// wall-clock deadline and converts every failure into an Outcome value.
//
// A call runs on its own goroutine. When the deadline passes the sandbox
// stops waiting, cancels the call's context and abandons the goroutine;
// the caller always gets an answer within the deadline. Calls sharing a
// Guard are serialised, so an abandoned call can never interleave with a
// newer call on the same strategy.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/nitayalon/AGT-Bidding-competition/pkg/logger"
	"github.com/nitayalon/AGT-Bidding-competition/pkg/metrics"
)

// Status is the terminal state of a sandboxed call.
type Status int

const (
	OK Status = iota
	TimedOut
	Faulted
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case TimedOut:
		return "timed_out"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of one sandboxed call.
type Outcome struct {
	Status  Status
	Value   float64
	Cause   error
	Elapsed time.Duration
}

// Call is a unit of strategy code. It should honour ctx but is not trusted to.
type Call func(ctx context.Context) (float64, error)

// Guard is a one-slot fence shared by all calls on one strategy handle.
type Guard struct {
	slot chan struct{}
}

// NewGuard creates an unheld guard.
func NewGuard() *Guard {
	return &Guard{slot: make(chan struct{}, 1)}
}

// PanicError is the cause of a Faulted outcome produced by a panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("strategy panicked: %v", e.Value)
}

type result struct {
	value float64
	err   error
}

// Sandbox executes calls. It holds no per-call state and is safe for
// concurrent use.
type Sandbox struct {
	logger logger.Logger
}

// New creates a Sandbox.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		logger: logger.Get().Named("sandbox"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invoke runs call with a deadline of min(ctx deadline, timeout). It never
// panics and always returns within that deadline, plus scheduling slack.
func (s *Sandbox) Invoke(ctx context.Context, guard *Guard, operation string, timeout time.Duration, call Call) Outcome {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// A previous call on this handle that was abandoned may still hold the slot.
	select {
	case guard.slot <- struct{}{}:
	case <-callCtx.Done():
		return s.finish(ctx, operation, Outcome{
			Status:  TimedOut,
			Cause:   fmt.Errorf("%w: previous call still running", ErrDeadlineExceeded),
			Elapsed: time.Since(start),
		})
	}

	done := make(chan result, 1)
	go func() {
		defer func() { <-guard.slot }()
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		v, err := call(callCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		out := Outcome{Status: OK, Value: r.value, Elapsed: time.Since(start)}
		switch {
		case r.err == nil:
		case callCtx.Err() != nil && errors.Is(r.err, context.DeadlineExceeded):
			out.Status = TimedOut
			out.Cause = fmt.Errorf("%w: %w", ErrDeadlineExceeded, r.err)
		default:
			out.Status = Faulted
			out.Cause = r.err
		}
		return s.finish(ctx, operation, out)
	case <-callCtx.Done():
		metrics.AddAbandonedCalls(1)
		go func() {
			<-done
			metrics.AddAbandonedCalls(-1)
		}()
		return s.finish(ctx, operation, Outcome{
			Status:  TimedOut,
			Cause:   fmt.Errorf("%w: %w", ErrDeadlineExceeded, callCtx.Err()),
			Elapsed: time.Since(start),
		})
	}
}

func (s *Sandbox) finish(ctx context.Context, operation string, out Outcome) Outcome {
	metrics.RecordSandboxCall(operation, out.Status.String(), float64(out.Elapsed.Microseconds())/1000)
	if out.Status != OK {
		s.logger.Debug(ctx, "strategy call did not complete",
			logger.String("operation", operation),
			logger.String("status", out.Status.String()),
			logger.Duration("elapsed", out.Elapsed),
			logger.Error(out.Cause),
		)
	}
	return out
}
