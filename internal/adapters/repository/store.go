// Package repository keeps the live standings of every stage in an
// order-statistics structure so leaderboard reads never re-sort.
package repository

import (
	"context"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// Store provides read/write access to stage standings.
type Store interface {
	// Upsert replaces a team's standing in its stage.
	Upsert(ctx context.Context, standing model.StageStanding) error

	// Rank returns a team's standing with its current rank in the stage.
	// Returns ErrNotFound if the team has no standing in the stage.
	Rank(ctx context.Context, stage int, teamID string) (model.StageStanding, error)

	// TopN returns the first n standings of the stage in ranking order.
	TopN(ctx context.Context, stage int, n int) ([]model.StageStanding, error)

	// Count returns the number of teams with a standing in the stage.
	Count(ctx context.Context, stage int) int

	// Stages returns the stages that have standings, ascending.
	Stages(ctx context.Context) []int
}
