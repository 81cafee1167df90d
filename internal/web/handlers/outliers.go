package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-centroids/internal/config"
	"github.com/kozaktomas/face-centroids/internal/engine"
)

// OutliersHandler serves outlier reports for label review.
type OutliersHandler struct {
	engine *engine.Engine
	config *config.Config
}

// NewOutliersHandler creates a new outliers handler.
func NewOutliersHandler(eng *engine.Engine, cfg *config.Config) *OutliersHandler {
	return &OutliersHandler{engine: eng, config: cfg}
}

// OutlierRequest controls the outlier report.
type OutlierRequest struct {
	Threshold float64 `json:"threshold"` // min distance from centroid to include (0 = show all)
	Limit     int     `json:"limit"`     // 0 = no limit
}

// Find ranks the person's confirmed faces by distance from their active
// global centroid, most suspicious first.
func (h *OutliersHandler) Find(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")
	if personID == "" {
		respondError(w, http.StatusBadRequest, "person id is required")
		return
	}

	var req OutlierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	cfg := engine.AlgorithmConfigFromDefaults(h.config.Algorithm)
	report, err := h.engine.Outliers(r.Context(), personID, cfg, req.Threshold, req.Limit)
	if err != nil {
		if errors.Is(err, engine.ErrNoActiveCentroid) {
			respondError(w, http.StatusNotFound, "person has no active centroid")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to compute outliers")
		return
	}

	if report.Outliers == nil {
		report.Outliers = []engine.Outlier{}
	}
	respondJSON(w, http.StatusOK, report)
}
