package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-centroids/internal/database"
)

// IndexStats is the read-only view of the vector index used by the stats
// endpoint.
type IndexStats interface {
	Count() int
}

// StatsHandler serves operational counters.
type StatsHandler struct {
	store database.CentroidStore
	index IndexStats
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(store database.CentroidStore, index IndexStats) *StatsHandler {
	return &StatsHandler{store: store, index: index}
}

// StatsResponse is the response for the stats endpoint.
type StatsResponse struct {
	CentroidsByStatus map[string]int `json:"centroids_by_status"`
	IndexedVectors    int            `json:"indexed_vectors"`
}

// Get returns centroid lifecycle counts and the vector index size.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read centroid stats")
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}

	resp := StatsResponse{CentroidsByStatus: byStatus}
	if h.index != nil {
		resp.IndexedVectors = h.index.Count()
	}
	respondJSON(w, http.StatusOK, resp)
}
