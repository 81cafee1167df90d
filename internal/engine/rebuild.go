package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-centroids/internal/centroid"
	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/vectorindex"
)

// ComputeOrFetchCentroids returns the person's active centroid set, rebuilding
// it first when the stored records are stale (or opts.Force is set). Two
// concurrent callers for the same key result in exactly one rebuild: the
// loser waits on the per-key lock and then reads the winner's result.
//
// When ctx expires while another caller holds the lock, the most recent
// active records are returned with RebuildPending set instead of blocking;
// the in-progress rebuild completes independently. ErrLockContention is only
// surfaced when there is no active fallback to serve.
func (e *Engine) ComputeOrFetchCentroids(ctx context.Context, personID string, cfg AlgorithmConfig, opts RebuildOptions) (CentroidSet, error) {
	key := cfg.Key(personID)

	var set CentroidSet
	err := e.store.WithKeyLock(ctx, key, func(ctx context.Context) error {
		var err error
		set, err = e.rebuildLocked(ctx, key, cfg, opts.Force)
		return err
	})
	if errors.Is(err, database.ErrLockContention) {
		// The rebuild in progress keeps running; serve what we have.
		active, gerr := e.store.GetActive(context.WithoutCancel(ctx), key)
		if gerr == nil && len(active) > 0 {
			e.log.Warn().Str("person", personID).Msg("rebuild in progress, serving possibly stale centroids")
			return CentroidSet{Centroids: active, RebuildPending: true}, nil
		}
		return CentroidSet{}, err
	}
	return set, err
}

// rebuildLocked runs the check-then-rebuild protocol while holding the
// per-key lock.
func (e *Engine) rebuildLocked(ctx context.Context, key database.StalenessKey, cfg AlgorithmConfig, force bool) (CentroidSet, error) {
	active, err := e.store.GetActive(ctx, key)
	if err != nil {
		return CentroidSet{}, fmt.Errorf("read active centroids: %w", err)
	}

	faces, err := e.collectFaces(ctx, key.PersonID, cfg.FacePageSize)
	if err != nil {
		return CentroidSet{}, err
	}

	faceIDs := make([]int64, len(faces))
	vectors := make([][]float32, len(faces))
	for i := range faces {
		faceIDs[i] = faces[i].ID
		vectors[i] = faces[i].Embedding
	}

	if len(active) > 0 && !force && !centroid.IsStale(&active[0], faceIDs, cfg.ModelVersion, cfg.CentroidVersion) {
		return CentroidSet{Centroids: active}, nil
	}

	records, err := e.buildRecords(key, cfg, faceIDs, vectors)
	if err != nil {
		// Algorithmic failure: record the attempt, leave prior active
		// records untouched.
		e.recordFailure(ctx, key, cfg, faceIDs, err)
		return CentroidSet{}, fmt.Errorf("compute centroids for person %s: %w", key.PersonID, err)
	}

	if err := e.store.InsertBuilding(ctx, records); err != nil {
		return CentroidSet{}, fmt.Errorf("persist building centroids: %w", err)
	}

	for i := range records {
		payload := vectorindex.Payload{Kind: vectorindex.KindCentroid, PersonID: key.PersonID}
		if err := e.index.Upsert(ctx, "centroid:"+records[i].ID, records[i].Vector, payload); err != nil {
			e.failAll(ctx, records, err)
			return CentroidSet{}, fmt.Errorf("publish centroid vectors: %w", err)
		}
	}

	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	if err := e.store.Activate(ctx, key, ids); err != nil {
		e.failAll(ctx, records, err)
		return CentroidSet{}, fmt.Errorf("activate centroids: %w", err)
	}
	for i := range records {
		records[i].Status = database.StatusActive
	}

	e.log.Info().
		Str("person", key.PersonID).
		Str("model", key.ModelVersion).
		Int("centroid_version", key.CentroidVersion).
		Int("faces", len(faces)).
		Int("centroids", len(records)).
		Msg("centroids rebuilt")

	return CentroidSet{Centroids: records, Rebuilt: true}, nil
}

// buildRecords runs the pure computation and assembles building records:
// the global centroid plus optional cluster centroids.
func (e *Engine) buildRecords(key database.StalenessKey, cfg AlgorithmConfig, faceIDs []int64, vectors [][]float32) ([]database.PersonCentroid, error) {
	hash := centroid.SourceHash(faceIDs)
	now := time.Now().UTC()

	global, err := centroid.ComputeGlobalCentroid(vectors, cfg.TrimOutliers)
	if err != nil {
		return nil, err
	}

	records := []database.PersonCentroid{{
		ID:              uuid.NewString(),
		PersonID:        key.PersonID,
		ModelVersion:    key.ModelVersion,
		CentroidVersion: key.CentroidVersion,
		Type:            database.CentroidTypeGlobal,
		ClusterLabel:    database.GlobalLabel,
		Vector:          global,
		NFaces:          len(vectors),
		SourceHash:      hash,
		Status:          database.StatusBuilding,
		CreatedAt:       now,
	}}

	if !cfg.EnableClustering {
		return records, nil
	}

	clusters, err := centroid.ComputeClusterCentroids(vectors)
	if err != nil {
		// A degenerate partition is not worth failing the whole rebuild
		// over: the global centroid is valid, proceed global-only.
		e.log.Warn().Err(err).Str("person", key.PersonID).Msg("cluster computation failed, proceeding global-only")
		return records, nil
	}
	if clusters == nil {
		e.log.Debug().Str("person", key.PersonID).Int("faces", len(vectors)).Msg("clustering fallback, global-only")
		return records, nil
	}

	for _, c := range clusters {
		records = append(records, database.PersonCentroid{
			ID:              uuid.NewString(),
			PersonID:        key.PersonID,
			ModelVersion:    key.ModelVersion,
			CentroidVersion: key.CentroidVersion,
			Type:            database.CentroidTypeCluster,
			ClusterLabel:    c.Label,
			Vector:          c.Vector,
			NFaces:          c.NFaces,
			SourceHash:      hash,
			Status:          database.StatusBuilding,
			CreatedAt:       now,
		})
	}
	return records, nil
}

// recordFailure persists a terminal failed record for an attempted rebuild.
func (e *Engine) recordFailure(ctx context.Context, key database.StalenessKey, cfg AlgorithmConfig, faceIDs []int64, cause error) {
	rec := database.PersonCentroid{
		ID:              uuid.NewString(),
		PersonID:        key.PersonID,
		ModelVersion:    key.ModelVersion,
		CentroidVersion: key.CentroidVersion,
		Type:            database.CentroidTypeGlobal,
		ClusterLabel:    database.GlobalLabel,
		NFaces:          len(faceIDs),
		SourceHash:      centroid.SourceHash(faceIDs),
		Status:          database.StatusBuilding,
		CreatedAt:       time.Now().UTC(),
	}

	ctx = context.WithoutCancel(ctx)
	if err := e.store.InsertBuilding(ctx, []database.PersonCentroid{rec}); err != nil {
		e.log.Error().Err(err).Str("person", key.PersonID).Msg("failed to persist failure record")
		return
	}
	if err := e.store.MarkFailed(ctx, rec.ID, cause.Error()); err != nil {
		e.log.Error().Err(err).Str("person", key.PersonID).Msg("failed to mark record failed")
	}
}

// failAll marks every record of an aborted rebuild as failed.
func (e *Engine) failAll(ctx context.Context, records []database.PersonCentroid, cause error) {
	ctx = context.WithoutCancel(ctx)
	for i := range records {
		if err := e.store.MarkFailed(ctx, records[i].ID, cause.Error()); err != nil {
			e.log.Error().Err(err).Str("record", records[i].ID).Msg("failed to mark record failed")
		}
	}
}
