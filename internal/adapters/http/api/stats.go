package api

import (
	"maps"
	"net/http"
	"strconv"
)

// StatsProvider reports service counters.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler serves the service counters together with the number of
// ranked teams per stage held by the standings store.
type StatsHandler struct {
	provider  StatsProvider
	standings StandingsReader
}

// NewStatsHandler creates a stats handler. standings may be nil.
func NewStatsHandler(provider StatsProvider, standings StandingsReader) *StatsHandler {
	return &StatsHandler{provider: provider, standings: standings}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	out := map[string]any{}
	if h.provider != nil {
		maps.Copy(out, h.provider.GetStats())
	}
	if h.standings != nil {
		ranked := map[string]int{}
		for _, stage := range h.standings.Stages(r.Context()) {
			ranked[strconv.Itoa(stage)] = h.standings.Count(r.Context(), stage)
		}
		out["standings"] = ranked
	}
	writeJSON(w, http.StatusOK, out)
}
