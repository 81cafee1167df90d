package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-centroids/internal/database"
)

// FaceRepository provides PostgreSQL-backed face storage.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

const faceColumns = `id, person_id, embedding, model, dim, prototype, created_at`

// ListFaces returns up to limit confirmed faces of a person with ID > afterID,
// ordered by ID. Faces flagged for review are excluded: an unreviewed label is
// not a confirmed label.
func (r *FaceRepository) ListFaces(ctx context.Context, personID string, afterID int64, limit int) ([]database.StoredFace, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM faces
		WHERE person_id = $1 AND id > $2 AND review_pending = FALSE
		ORDER BY id
		LIMIT $3
	`, faceColumns)

	rows, err := r.pool.Query(ctx, query, personID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// ListPersonIDs returns the distinct person IDs with confirmed faces, sorted.
func (r *FaceRepository) ListPersonIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT person_id
		FROM faces
		WHERE person_id <> '' AND review_pending = FALSE
		ORDER BY person_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query person IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan person ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate person IDs: %w", err)
	}
	return ids, nil
}

// ListAll streams every face through fn in pages of pageSize, for building
// the vector index at startup without materializing the whole table.
func (r *FaceRepository) ListAll(ctx context.Context, pageSize int, fn func(database.StoredFace) error) error {
	if pageSize <= 0 {
		pageSize = 1000
	}

	afterID := int64(0)
	for {
		query := fmt.Sprintf(`
			SELECT %s
			FROM faces
			WHERE id > $1
			ORDER BY id
			LIMIT $2
		`, faceColumns)

		rows, err := r.pool.Query(ctx, query, afterID, pageSize)
		if err != nil {
			return fmt.Errorf("query faces page: %w", err)
		}

		page, err := scanFaces(rows)
		rows.Close()
		if err != nil {
			return err
		}

		for _, f := range page {
			if err := fn(f); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		afterID = page[len(page)-1].ID
	}
}

// SaveBatch upserts faces in a single transaction, used by the sync job that
// mirrors confirmed labels from the photo application.
func (r *FaceRepository) SaveBatch(ctx context.Context, faces []database.StoredFace) error {
	if len(faces) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO faces (id, person_id, embedding, model, dim, prototype)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			person_id = EXCLUDED.person_id,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			prototype = EXCLUDED.prototype
	`)
	if err != nil {
		return fmt.Errorf("prepare face upsert: %w", err)
	}
	defer stmt.Close()

	for _, f := range faces {
		vec := pgvector.NewVector(f.Embedding)
		if _, err := stmt.ExecContext(ctx, f.ID, f.PersonID, vec, f.Model, f.Dim, f.Prototype); err != nil {
			return fmt.Errorf("upsert face %d: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit face upsert: %w", err)
	}
	return nil
}

// CountFaces returns the number of stored faces.
func (r *FaceRepository) CountFaces(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces").Scan(&n); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return n, nil
}

func scanFaces(rows *sql.Rows) ([]database.StoredFace, error) {
	var faces []database.StoredFace
	for rows.Next() {
		var f database.StoredFace
		var vec pgvector.Vector

		if err := rows.Scan(&f.ID, &f.PersonID, &vec, &f.Model, &f.Dim, &f.Prototype, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}

		f.Embedding = vec.Slice()
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

var _ database.FaceSource = (*FaceRepository)(nil)
