// Package vectorindex provides the embedding index used for suggestion
// searches: payload-filtered nearest-neighbor lookup over face and centroid
// vectors, with an in-memory HNSW implementation and a retry decorator for
// the I/O error contract.
package vectorindex

import (
	"context"
	"errors"
)

// ErrIndexOperation marks a vector index I/O failure that survived the
// bounded retry policy. Transient: callers may serve stale data instead of
// failing the request.
var ErrIndexOperation = errors.New("vector index operation failed")

// Kind distinguishes face vectors (search targets) from centroid vectors
// (published for other consumers, never returned by face searches).
type Kind string

const (
	KindFace     Kind = "face"
	KindCentroid Kind = "centroid"
)

// Payload is the filterable metadata attached to every indexed vector.
type Payload struct {
	Kind      Kind
	FaceID    int64
	PersonID  string // assigned person, empty when unassigned
	Prototype bool   // exemplar faces are excluded from suggestions
}

// Assigned reports whether the face has a person assigned.
func (p Payload) Assigned() bool {
	return p.PersonID != ""
}

// Match is a single search hit.
type Match struct {
	ID      string
	Score   float64 // cosine similarity, higher is better
	Payload Payload
}

// Filter restricts search results by payload fields.
type Filter struct {
	Kind              Kind
	ExcludePersonID   string
	ExcludePrototypes bool
	UnassignedOnly    bool
}

// Matches reports whether a payload passes the filter.
func (f Filter) Matches(p Payload) bool {
	if f.Kind != "" && p.Kind != f.Kind {
		return false
	}
	if f.ExcludePersonID != "" && p.PersonID == f.ExcludePersonID {
		return false
	}
	if f.ExcludePrototypes && p.Prototype {
		return false
	}
	if f.UnassignedOnly && p.Assigned() {
		return false
	}
	return true
}

// Index is the vector index contract: upsert, filtered nearest-neighbor
// search with a score threshold, and delete.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, payload Payload) error
	Search(ctx context.Context, query []float32, filter Filter, limit int, minScore float64) ([]Match, error)
	Delete(ctx context.Context, id string) error
}
