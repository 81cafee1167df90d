package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-centroids/internal/centroid"
	"github.com/kozaktomas/face-centroids/internal/config"
	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/engine"
)

// SuggestionsHandler serves face suggestion searches.
type SuggestionsHandler struct {
	engine *engine.Engine
	config *config.Config
}

// NewSuggestionsHandler creates a new suggestions handler.
func NewSuggestionsHandler(eng *engine.Engine, cfg *config.Config) *SuggestionsHandler {
	return &SuggestionsHandler{engine: eng, config: cfg}
}

// SuggestionRequest overrides the configured suggestion defaults. Zero values
// keep the defaults.
type SuggestionRequest struct {
	MinSimilarity float64 `json:"min_similarity"`
	MaxResults    int     `json:"max_results"`
	NoAutoRebuild bool    `json:"no_auto_rebuild"`
}

// SuggestionResponse is the response for suggestion searches.
type SuggestionResponse struct {
	PersonID       string                         `json:"person_id"`
	RebuildPending bool                           `json:"rebuild_pending"`
	Candidates     []database.SuggestionCandidate `json:"candidates"`
}

// Suggest proposes unassigned faces that likely belong to the person.
func (h *SuggestionsHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")
	if personID == "" {
		respondError(w, http.StatusBadRequest, "person id is required")
		return
	}

	var req SuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	opts := engine.SuggestionOptionsFromDefaults(h.config.Suggestions)
	if req.MinSimilarity > 0 {
		opts.MinSimilarity = req.MinSimilarity
	}
	if req.MaxResults > 0 {
		opts.MaxResults = req.MaxResults
	}
	if req.NoAutoRebuild {
		opts.AutoRebuild = false
	}

	cfg := engine.AlgorithmConfigFromDefaults(h.config.Algorithm)
	result, err := h.engine.GetSuggestions(r.Context(), personID, cfg, opts)
	if err != nil {
		if errors.Is(err, centroid.ErrInsufficientInput) {
			respondError(w, http.StatusUnprocessableEntity, "person has no confirmed faces")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to compute suggestions")
		return
	}

	if result.Candidates == nil {
		result.Candidates = []database.SuggestionCandidate{}
	}
	respondJSON(w, http.StatusOK, SuggestionResponse{
		PersonID:       personID,
		RebuildPending: result.RebuildPending,
		Candidates:     result.Candidates,
	})
}
