package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-centroids/internal/database"
)

// CentroidRepository provides PostgreSQL-backed centroid lifecycle storage.
type CentroidRepository struct {
	pool *Pool
}

// NewCentroidRepository creates a new PostgreSQL centroid repository.
func NewCentroidRepository(pool *Pool) *CentroidRepository {
	return &CentroidRepository{pool: pool}
}

const centroidColumns = `id, person_id, model_version, centroid_version, centroid_type,
	cluster_label, embedding, n_faces, source_hash, status, failure_reason, created_at`

// GetActive returns the active records for a key: global first, then cluster
// labels ascending.
func (r *CentroidRepository) GetActive(ctx context.Context, key database.StalenessKey) ([]database.PersonCentroid, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM person_centroids
		WHERE person_id = $1 AND model_version = $2 AND centroid_version = $3
		  AND status = 'active'
		ORDER BY (centroid_type = 'global') DESC, cluster_label
	`, centroidColumns)

	rows, err := r.pool.Query(ctx, query, key.PersonID, key.ModelVersion, key.CentroidVersion)
	if err != nil {
		return nil, fmt.Errorf("query active centroids: %w", err)
	}
	defer rows.Close()

	return scanCentroids(rows)
}

// InsertBuilding persists new records in the building state.
func (r *CentroidRepository) InsertBuilding(ctx context.Context, records []database.PersonCentroid) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO person_centroids
			(id, person_id, model_version, centroid_version, centroid_type,
			 cluster_label, embedding, n_faces, source_hash, status, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]

		// Failure records carry no vector.
		var vec any
		if len(rec.Vector) > 0 {
			vec = pgvector.NewVector(rec.Vector)
		}

		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.PersonID, rec.ModelVersion, rec.CentroidVersion, string(rec.Type),
			rec.ClusterLabel, vec, rec.NFaces, rec.SourceHash, string(rec.Status),
			rec.FailureReason, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert centroid %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Activate deprecates the key's current active records and flips the given
// building records to active, in a single transaction. Readers never observe
// a key with zero active records mid-flip.
func (r *CentroidRepository) Activate(ctx context.Context, key database.StalenessKey, ids []string) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE person_centroids
		SET status = 'deprecated'
		WHERE person_id = $1 AND model_version = $2 AND centroid_version = $3
		  AND status = 'active'
	`, key.PersonID, key.ModelVersion, key.CentroidVersion)
	if err != nil {
		return fmt.Errorf("deprecate active centroids: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE person_centroids
		SET status = 'active'
		WHERE id = ANY($1) AND status = 'building'
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("activate centroids: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != int64(len(ids)) {
		return fmt.Errorf("activate centroids: %d of %d records transitioned", n, len(ids))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activation: %w", err)
	}
	return nil
}

// MarkFailed transitions a record to the terminal failed state.
func (r *CentroidRepository) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE person_centroids
		SET status = 'failed', failure_reason = $2
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("mark centroid failed: %w", err)
	}
	return nil
}

// InvalidateSourceHash clears the stored hash on a person's active records so
// the next staleness check reports stale. The records stay servable.
func (r *CentroidRepository) InvalidateSourceHash(ctx context.Context, personID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE person_centroids
		SET source_hash = ''
		WHERE person_id = $1 AND status = 'active'
	`, personID)
	if err != nil {
		return fmt.Errorf("invalidate source hash: %w", err)
	}
	return nil
}

// CountByStatus returns record counts per lifecycle status.
func (r *CentroidRepository) CountByStatus(ctx context.Context) (map[database.CentroidStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM person_centroids GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count centroids by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[database.CentroidStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[database.CentroidStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// PruneDeprecated deletes deprecated records created before the cutoff.
func (r *CentroidRepository) PruneDeprecated(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `
		DELETE FROM person_centroids
		WHERE status = 'deprecated' AND created_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("prune deprecated centroids: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune deprecated centroids: %w", err)
	}
	return n, nil
}

func scanCentroids(rows *sql.Rows) ([]database.PersonCentroid, error) {
	var out []database.PersonCentroid
	for rows.Next() {
		var rec database.PersonCentroid
		var typ, status string
		var vec pgvector.Vector

		if err := rows.Scan(
			&rec.ID, &rec.PersonID, &rec.ModelVersion, &rec.CentroidVersion, &typ,
			&rec.ClusterLabel, &vec, &rec.NFaces, &rec.SourceHash, &status,
			&rec.FailureReason, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan centroid: %w", err)
		}

		rec.Type = database.CentroidType(typ)
		rec.Status = database.CentroidStatus(status)
		rec.Vector = vec.Slice()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate centroids: %w", err)
	}
	return out, nil
}

var _ database.CentroidStore = (*CentroidRepository)(nil)
