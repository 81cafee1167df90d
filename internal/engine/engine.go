// Package engine is the single entry point for centroid computation and
// suggestion searches. Every caller (interactive request, background batch,
// recurring job) goes through the same three operations; no caller carries
// its own copy of the trimming or clustering algorithm.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-centroids/internal/config"
	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/vectorindex"
)

// AlgorithmConfig is the explicit, immutable parameterization of a facade
// call. Versions travel with the call instead of being read from global
// state, so concurrent callers with different deployments cannot interleave.
type AlgorithmConfig struct {
	ModelVersion     string
	CentroidVersion  int
	TrimOutliers     bool
	EnableClustering bool
	FacePageSize     int
}

// AlgorithmConfigFromDefaults builds an AlgorithmConfig from loaded defaults.
func AlgorithmConfigFromDefaults(d config.AlgorithmDefaults) AlgorithmConfig {
	return AlgorithmConfig{
		ModelVersion:     d.ModelVersion,
		CentroidVersion:  d.CentroidVersion,
		TrimOutliers:     d.TrimOutliers,
		EnableClustering: d.EnableClustering,
		FacePageSize:     d.FacePageSize,
	}
}

// Key returns the rebuild lock key for a person under this config.
func (c AlgorithmConfig) Key(personID string) database.StalenessKey {
	return database.StalenessKey{
		PersonID:        personID,
		ModelVersion:    c.ModelVersion,
		CentroidVersion: c.CentroidVersion,
	}
}

// RebuildOptions controls ComputeOrFetchCentroids.
type RebuildOptions struct {
	// Force rebuilds even when the active records are fresh.
	Force bool
}

// CentroidSet is the result of ComputeOrFetchCentroids.
type CentroidSet struct {
	// Centroids holds the active records: global first, then cluster labels
	// in their stored deterministic order.
	Centroids []database.PersonCentroid

	// Rebuilt is true when this call performed the rebuild.
	Rebuilt bool

	// RebuildPending is true when the call timed out waiting for another
	// caller's in-progress rebuild and these records are the most recent
	// active (possibly stale) set.
	RebuildPending bool
}

// Global returns the global centroid record, or nil if the set is empty.
func (s CentroidSet) Global() *database.PersonCentroid {
	for i := range s.Centroids {
		if s.Centroids[i].Type == database.CentroidTypeGlobal {
			return &s.Centroids[i]
		}
	}
	return nil
}

// SuggestionOptions controls GetSuggestions.
type SuggestionOptions struct {
	MinSimilarity     float64
	MaxResults        int
	PerCentroidLimit  int
	UnassignedOnly    bool
	ExcludePrototypes bool

	// AutoRebuild refreshes stale centroids before searching. When false,
	// the search runs against whatever active records exist.
	AutoRebuild bool
}

// SuggestionOptionsFromDefaults builds SuggestionOptions from loaded defaults.
func SuggestionOptionsFromDefaults(d config.SuggestionDefaults) SuggestionOptions {
	return SuggestionOptions{
		MinSimilarity:     d.MinSimilarity,
		MaxResults:        d.MaxResults,
		PerCentroidLimit:  d.PerCentroidLimit,
		UnassignedOnly:    d.UnassignedOnly,
		ExcludePrototypes: d.ExcludePrototypes,
		AutoRebuild:       true,
	}
}

// SuggestionResult is the result of GetSuggestions.
type SuggestionResult struct {
	Candidates     []database.SuggestionCandidate
	RebuildPending bool
}

// Engine composes the centroid store, the face source and the vector index.
type Engine struct {
	store  database.CentroidStore
	source database.FaceSource
	index  vectorindex.Index
	log    zerolog.Logger
}

// New creates an engine.
func New(store database.CentroidStore, source database.FaceSource, index vectorindex.Index, log zerolog.Logger) *Engine {
	return &Engine{store: store, source: source, index: index, log: log}
}

// Invalidate forces the next ComputeOrFetchCentroids call for the person to
// rebuild regardless of whether the face set changed. The current active
// records stay servable until the rebuild completes.
func (e *Engine) Invalidate(ctx context.Context, personID string) error {
	if err := e.store.InvalidateSourceHash(ctx, personID); err != nil {
		return fmt.Errorf("invalidate centroids for person %s: %w", personID, err)
	}
	e.log.Info().Str("person", personID).Msg("centroids invalidated")
	return nil
}

// collectFaces pages through the face source and returns the person's
// confirmed faces. Fetched in bounded pages; the page size guards against
// materializing an unbounded collection in one round trip.
func (e *Engine) collectFaces(ctx context.Context, personID string, pageSize int) ([]database.StoredFace, error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	var faces []database.StoredFace
	afterID := int64(0)
	for {
		page, err := e.source.ListFaces(ctx, personID, afterID, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list faces for person %s: %w", personID, err)
		}
		faces = append(faces, page...)
		if len(page) < pageSize {
			return faces, nil
		}
		afterID = page[len(page)-1].ID
	}
}
