package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nitayalon/AGT-Bidding-competition/internal/domain/model"
)

// FeedHandler serves the public outcome feed. Clients poll with the cursor
// returned by the previous page.
type FeedHandler struct {
	feed     FeedReader
	maxLimit int
}

type feedResponse struct {
	Outcomes   []model.PublicOutcome `json:"outcomes"`
	NextCursor int                   `json:"next_cursor"`
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(feed FeedReader, maxLimit int) *FeedHandler {
	return &FeedHandler{feed: feed, maxLimit: maxLimit}
}

// HandleGetFeed handles GET /feed?cursor=C&limit=N requests.
func (h *FeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_feed"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	cursor, err := intParam(r, "cursor", 0)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	limit, err := intParam(r, "limit", min(defaultFeedLimit, h.maxLimit))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if limit < 1 || limit > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			wrapKind(op, ErrBadRequest, fmt.Errorf("limit must be within [1, %d]", h.maxLimit)))
		return
	}
	outcomes, next := h.feed.Feed(cursor, limit)
	writeJSON(w, http.StatusOK, feedResponse{Outcomes: outcomes, NextCursor: next})
}

// GamesHandler serves public views of completed games.
type GamesHandler struct {
	feed FeedReader
}

// NewGamesHandler creates a new games handler.
func NewGamesHandler(feed FeedReader) *GamesHandler {
	return &GamesHandler{feed: feed}
}

// HandleListGames handles GET /games requests.
func (h *GamesHandler) HandleListGames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	ids := h.feed.GameIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"games": ids})
}

// HandleGetGame handles GET /games/{game_id} requests.
func (h *GamesHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_game"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/games/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrBadRequest))
		return
	}
	g, err := h.feed.PublicGame(id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
