package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kozaktomas/face-centroids/internal/database"
)

// ErrNoActiveCentroid is returned by Outliers when the person has no active
// global centroid to measure against.
var ErrNoActiveCentroid = errors.New("no active global centroid")

// Outlier is a face ranked by its distance from the active global centroid.
type Outlier struct {
	FaceID   int64   `json:"face_id"`
	Distance float64 `json:"dist_from_centroid"`
}

// OutlierReport lists a person's faces most distant from their centroid,
// used to spot mislabeled faces.
type OutlierReport struct {
	PersonID    string    `json:"person_id"`
	TotalFaces  int       `json:"total_faces"`
	AvgDistance float64   `json:"avg_distance"`
	Outliers    []Outlier `json:"outliers"`
}

// Outliers ranks the person's confirmed faces by cosine distance from the
// stored active global centroid, most distant first. Faces closer than
// threshold are skipped (0 includes all); limit caps the list (0 = no cap).
// Read-only: reuses the stored centroid, never triggers a rebuild.
func (e *Engine) Outliers(ctx context.Context, personID string, cfg AlgorithmConfig, threshold float64, limit int) (OutlierReport, error) {
	active, err := e.store.GetActive(ctx, cfg.Key(personID))
	if err != nil {
		return OutlierReport{}, fmt.Errorf("read active centroids: %w", err)
	}

	set := CentroidSet{Centroids: active}
	global := set.Global()
	if global == nil {
		return OutlierReport{}, fmt.Errorf("person %s: %w", personID, ErrNoActiveCentroid)
	}

	faces, err := e.collectFaces(ctx, personID, cfg.FacePageSize)
	if err != nil {
		return OutlierReport{}, err
	}

	report := OutlierReport{PersonID: personID, TotalFaces: len(faces)}
	if len(faces) == 0 {
		return report, nil
	}

	outliers := make([]Outlier, 0, len(faces))
	total := 0.0
	for _, f := range faces {
		dist := database.CosineDistance(global.Vector, f.Embedding)
		total += dist
		outliers = append(outliers, Outlier{FaceID: f.ID, Distance: dist})
	}
	report.AvgDistance = total / float64(len(faces))

	sort.Slice(outliers, func(i, j int) bool {
		if outliers[i].Distance != outliers[j].Distance {
			return outliers[i].Distance > outliers[j].Distance
		}
		return outliers[i].FaceID < outliers[j].FaceID
	})

	filtered := outliers[:0]
	for _, o := range outliers {
		if threshold > 0 && o.Distance < threshold {
			continue
		}
		filtered = append(filtered, o)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	report.Outliers = filtered

	return report, nil
}
