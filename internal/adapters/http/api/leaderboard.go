package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

const defaultLeaderboardLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	TopN(ctx context.Context, stage int, n int) ([]model.StageStanding, error)
	Count(ctx context.Context, stage int) int
	Stages(ctx context.Context) []int
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

type leaderboardResponse struct {
	Stage   int                   `json:"stage"`
	Total   int                   `json:"total"`
	Entries []model.StageStanding `json:"entries"`
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?stage=S&limit=N requests.
// Without a stage the latest stage with standings is served.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n, err := intParam(r, "limit", min(defaultLeaderboardLimit, h.maxLimit))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if n < 1 || n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			wrapKind(op, ErrBadRequest, fmt.Errorf("limit must be within [1, %d]", h.maxLimit)))
		return
	}

	stage, err := intParam(r, "stage", 0)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if stage == 0 {
		stages := h.deps.Stages(r.Context())
		if len(stages) == 0 {
			writeJSON(w, http.StatusOK, leaderboardResponse{Entries: []model.StageStanding{}})
			return
		}
		stage = stages[len(stages)-1]
	}

	entries, err := h.deps.TopN(r.Context(), stage, n)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Stage:   stage,
		Total:   h.deps.Count(r.Context(), stage),
		Entries: entries,
	})
}
