package mariadb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/face-centroids/internal/people"
)

// ConfirmedFace is a face marker with a human-confirmed subject and an
// InsightFace embedding, as stored by the photo application.
type ConfirmedFace struct {
	MarkerID    int64
	SubjectUID  string
	SubjectName string
	Embedding   []float32
}

// Subject is a person known to the photo application.
type Subject struct {
	UID  string
	Name string
	Key  string // normalized name, for matching against external lists
}

// ListConfirmedFaces returns up to limit confirmed face markers with
// marker ID > afterID, ordered by marker ID. Markers without an embedding or
// still pending review are skipped.
func (p *Pool) ListConfirmedFaces(ctx context.Context, afterID int64, limit int) ([]ConfirmedFace, error) {
	query := `
		SELECT m.id, m.subj_uid, s.subj_name, m.embeddings_json
		FROM markers m
		JOIN subjects s ON s.subj_uid = m.subj_uid
		WHERE m.marker_type = 'face'
		  AND m.subj_src = 'manual'
		  AND m.marker_review = 0
		  AND m.embeddings_json IS NOT NULL
		  AND m.id > ?
		ORDER BY m.id
		LIMIT ?
	`

	rows, err := p.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query confirmed markers: %w", err)
	}
	defer rows.Close()

	var faces []ConfirmedFace
	for rows.Next() {
		var f ConfirmedFace
		var embJSON []byte
		if err := rows.Scan(&f.MarkerID, &f.SubjectUID, &f.SubjectName, &embJSON); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}

		emb, err := parseEmbeddingsJSON(embJSON)
		if err != nil {
			return nil, fmt.Errorf("marker %d: %w", f.MarkerID, err)
		}
		if emb == nil {
			continue
		}
		f.Embedding = emb
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}
	return faces, nil
}

// ListSubjects returns the photo application's subjects with normalized
// name keys.
func (p *Pool) ListSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT subj_uid, subj_name
		FROM subjects
		WHERE subj_type = 0 AND deleted_at IS NULL
		ORDER BY subj_uid
	`)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.UID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		s.Key = people.NormalizeKey(s.Name)
		subjects = append(subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}

// parseEmbeddingsJSON decodes the photo app's list-of-lists embedding format
// ([[e1, e2, ...]]) and returns the first embedding, or nil when empty.
func parseEmbeddingsJSON(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var wrapped [][]float32
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse embeddings JSON: %w", err)
	}
	if len(wrapped) == 0 || len(wrapped[0]) == 0 {
		return nil, nil
	}
	return wrapped[0], nil
}
