package database

import (
	"context"
	"errors"
	"time"
)

// ErrLockContention is returned by WithKeyLock when the per-key rebuild lock
// cannot be acquired before the caller's context expires. Transient: the
// caller may retry or serve the most recent active records instead.
var ErrLockContention = errors.New("rebuild lock contention timeout")

// FaceSource provides read-only access to confirmed labeled face embeddings.
// Faces pending human review are excluded at the source so that unconfirmed
// suggestions can never feed back into centroid computation.
type FaceSource interface {
	// ListFaces returns up to limit confirmed faces for a person with
	// ID > afterID, ordered by ID. Callers page through results rather
	// than materializing unbounded collections.
	ListFaces(ctx context.Context, personID string, afterID int64, limit int) ([]StoredFace, error)

	// ListPersonIDs returns the distinct person IDs that have confirmed faces.
	ListPersonIDs(ctx context.Context) ([]string, error)
}

// CentroidStore persists centroid metadata records and exclusively owns the
// write path for status transitions. All other components only read.
type CentroidStore interface {
	// GetActive returns the active records for a key: zero, one global,
	// or one global plus N cluster records. Order: global first, then
	// cluster labels ascending.
	GetActive(ctx context.Context, key StalenessKey) ([]PersonCentroid, error)

	// InsertBuilding persists new records in the building state.
	InsertBuilding(ctx context.Context, records []PersonCentroid) error

	// Activate atomically flips the previously active records for the key
	// to deprecated and the given building records to active. Readers never
	// observe an interval with zero active global centroids for a key that
	// had one before.
	Activate(ctx context.Context, key StalenessKey, ids []string) error

	// MarkFailed transitions a building record to the terminal failed state.
	MarkFailed(ctx context.Context, id, reason string) error

	// InvalidateSourceHash clears the stored source hash on all active
	// records for a person. The records stay active and servable, but the
	// next staleness check reports stale, forcing a rebuild regardless of
	// whether the face set changed.
	InvalidateSourceHash(ctx context.Context, personID string) error

	// WithKeyLock runs fn while holding the exclusive rebuild lock for the
	// key. Returns ErrLockContention if the lock cannot be acquired before
	// ctx is done. The lock is scoped to the key, never global.
	WithKeyLock(ctx context.Context, key StalenessKey, fn func(ctx context.Context) error) error

	// CountByStatus returns record counts grouped by lifecycle status.
	CountByStatus(ctx context.Context) (map[CentroidStatus]int, error)

	// PruneDeprecated deletes deprecated records created before the cutoff.
	// Operator tooling only: the engine never calls this, deprecated records
	// are retained for audit by default.
	PruneDeprecated(ctx context.Context, before time.Time) (int64, error)
}
