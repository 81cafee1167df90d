package database

import (
	"time"
)

// CentroidType distinguishes the single global centroid from cluster centroids.
type CentroidType string

const (
	CentroidTypeGlobal  CentroidType = "global"
	CentroidTypeCluster CentroidType = "cluster"
)

// GlobalLabel is the cluster_label used by the global centroid.
const GlobalLabel = "global"

// CentroidStatus is the lifecycle state of a PersonCentroid record.
//
// building -> active   (successful rebuild)
// building -> failed   (terminal, prior active record untouched)
// active   -> deprecated (superseded, retained for audit)
type CentroidStatus string

const (
	StatusBuilding   CentroidStatus = "building"
	StatusActive     CentroidStatus = "active"
	StatusDeprecated CentroidStatus = "deprecated"
	StatusFailed     CentroidStatus = "failed"
)

// StoredFace represents a confirmed labeled face embedding from the face source.
// Faces pending human review never reach this type.
type StoredFace struct {
	ID        int64
	PersonID  string
	Embedding []float32
	Model     string
	Dim       int
	Prototype bool
	CreatedAt time.Time
}

// PersonCentroid is the derived representative embedding for a person.
// The vector is unit-norm for active records; failed records carry no vector.
type PersonCentroid struct {
	ID              string // UUID
	PersonID        string
	ModelVersion    string
	CentroidVersion int
	Type            CentroidType
	ClusterLabel    string // "global" or "k2_0"/"k2_1"
	Vector          []float32
	NFaces          int
	SourceHash      string
	Status          CentroidStatus
	FailureReason   string
	CreatedAt       time.Time
}

// StalenessKey identifies the unit of mutual exclusion for centroid rebuilds.
type StalenessKey struct {
	PersonID        string
	ModelVersion    string
	CentroidVersion int
}

// Key returns the rebuild lock key for this record.
func (c *PersonCentroid) Key() StalenessKey {
	return StalenessKey{
		PersonID:        c.PersonID,
		ModelVersion:    c.ModelVersion,
		CentroidVersion: c.CentroidVersion,
	}
}

// SuggestionCandidate is a face proposed as belonging to a person.
// Ephemeral: produced by suggestion searches, never persisted here.
type SuggestionCandidate struct {
	FaceID        int64   `json:"face_id"`
	Score         float64 `json:"score"`
	CentroidLabel string  `json:"centroid_label"`
}
