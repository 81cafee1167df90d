package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-centroids/internal/centroid"
	"github.com/kozaktomas/face-centroids/internal/config"
	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/engine"
)

// CentroidsHandler serves centroid reads, rebuilds and invalidation.
type CentroidsHandler struct {
	engine *engine.Engine
	config *config.Config
}

// NewCentroidsHandler creates a new centroids handler.
func NewCentroidsHandler(eng *engine.Engine, cfg *config.Config) *CentroidsHandler {
	return &CentroidsHandler{engine: eng, config: cfg}
}

// CentroidResult is one centroid record in a response. Vectors are omitted:
// consumers search through the suggestion endpoint, they don't need raw
// 512-dim payloads on every read.
type CentroidResult struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	ClusterLabel    string    `json:"cluster_label"`
	ModelVersion    string    `json:"model_version"`
	CentroidVersion int       `json:"centroid_version"`
	NFaces          int       `json:"n_faces"`
	SourceHash      string    `json:"source_hash"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// CentroidsResponse is the response for centroid reads and rebuilds.
type CentroidsResponse struct {
	PersonID       string           `json:"person_id"`
	Rebuilt        bool             `json:"rebuilt"`
	RebuildPending bool             `json:"rebuild_pending"`
	Centroids      []CentroidResult `json:"centroids"`
}

func toCentroidResults(records []database.PersonCentroid) []CentroidResult {
	out := make([]CentroidResult, 0, len(records))
	for i := range records {
		rec := &records[i]
		out = append(out, CentroidResult{
			ID:              rec.ID,
			Type:            string(rec.Type),
			ClusterLabel:    rec.ClusterLabel,
			ModelVersion:    rec.ModelVersion,
			CentroidVersion: rec.CentroidVersion,
			NFaces:          rec.NFaces,
			SourceHash:      rec.SourceHash,
			Status:          string(rec.Status),
			CreatedAt:       rec.CreatedAt,
		})
	}
	return out
}

func (h *CentroidsHandler) computeOrFetch(w http.ResponseWriter, r *http.Request, force bool) {
	personID := chi.URLParam(r, "id")
	if personID == "" {
		respondError(w, http.StatusBadRequest, "person id is required")
		return
	}

	cfg := engine.AlgorithmConfigFromDefaults(h.config.Algorithm)
	set, err := h.engine.ComputeOrFetchCentroids(r.Context(), personID, cfg, engine.RebuildOptions{Force: force})
	if err != nil {
		switch {
		case errors.Is(err, centroid.ErrInsufficientInput):
			respondError(w, http.StatusUnprocessableEntity, "person has no confirmed faces")
		case errors.Is(err, database.ErrLockContention):
			respondError(w, http.StatusConflict, "rebuild already in progress")
		default:
			respondError(w, http.StatusInternalServerError, "failed to compute centroids")
		}
		return
	}

	respondJSON(w, http.StatusOK, CentroidsResponse{
		PersonID:       personID,
		Rebuilt:        set.Rebuilt,
		RebuildPending: set.RebuildPending,
		Centroids:      toCentroidResults(set.Centroids),
	})
}

// Get returns the person's active centroids, rebuilding them first when stale.
func (h *CentroidsHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.computeOrFetch(w, r, false)
}

// Rebuild forces a rebuild regardless of staleness.
func (h *CentroidsHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	h.computeOrFetch(w, r, true)
}

// Invalidate marks the person's centroids stale. The active records remain
// servable until the next read rebuilds them.
func (h *CentroidsHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")
	if personID == "" {
		respondError(w, http.StatusBadRequest, "person id is required")
		return
	}

	if err := h.engine.Invalidate(r.Context(), personID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to invalidate centroids")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"person_id": personID,
		"status":    "invalidated",
	})
}
