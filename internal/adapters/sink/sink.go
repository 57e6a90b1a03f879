// Package sink persists and exposes tournament results. The core only ever
// writes to a Sink; nothing it does depends on reading results back.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// Sink receives results as they are produced. Implementations must be safe
// for concurrent use.
type Sink interface {
	PublishOutcome(ctx context.Context, outcome model.AuctionOutcome) error
	PublishGame(ctx context.Context, result model.GameResult) error
	PublishStandings(ctx context.Context, result model.StageResult) error
}

// NewRecord wraps a result in a Record with a fresh id. v must be an
// AuctionOutcome, a GameResult or a StageResult.
func NewRecord(v any, now time.Time) (model.Record, error) {
	r := model.Record{ID: uuid.NewString(), CreatedAt: now}
	switch x := v.(type) {
	case model.AuctionOutcome:
		r.Kind, r.Outcome = model.RecordOutcome, &x
	case model.GameResult:
		r.Kind, r.Game = model.RecordGame, &x
	case model.StageResult:
		r.Kind, r.Stage = model.RecordStandings, &x
	default:
		return model.Record{}, fmt.Errorf("%w: %T", ErrUnknownRecord, v)
	}
	return r, nil
}

// Dispatch delivers a record to the matching method of s.
func Dispatch(ctx context.Context, s Sink, r model.Record) error { //nolint:gocritic // hugeParam: Record mirrors queue semantics
	switch {
	case r.Kind == model.RecordOutcome && r.Outcome != nil:
		return s.PublishOutcome(ctx, *r.Outcome)
	case r.Kind == model.RecordGame && r.Game != nil:
		return s.PublishGame(ctx, *r.Game)
	case r.Kind == model.RecordStandings && r.Stage != nil:
		return s.PublishStandings(ctx, *r.Stage)
	default:
		return fmt.Errorf("%w: kind %q", ErrUnknownRecord, r.Kind)
	}
}

// Fanout publishes to every sink in order and joins their errors.
type Fanout []Sink

func (f Fanout) PublishOutcome(ctx context.Context, o model.AuctionOutcome) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishOutcome(ctx, o))
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishGame(ctx context.Context, g model.GameResult) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishGame(ctx, g))
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishStandings(ctx context.Context, st model.StageResult) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishStandings(ctx, st))
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) PublishOutcome(context.Context, model.AuctionOutcome) error { return nil }

func (Discard) PublishGame(context.Context, model.GameResult) error { return nil }

func (Discard) PublishStandings(context.Context, model.StageResult) error { return nil }
