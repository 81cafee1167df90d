// Package mock provides in-memory implementations of the storage and index
// interfaces for testing: a face source, a centroid store with a real
// per-key lock, and an exact brute-force vector index. All support error
// injection.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/vectorindex"
)

// FaceSource is an in-memory database.FaceSource.
type FaceSource struct {
	mu    sync.RWMutex
	faces map[string][]database.StoredFace

	// Error injection
	ListFacesError     error
	ListPersonIDsError error

	// ListFacesCalls counts page fetches, for verifying single-fetch behavior.
	ListFacesCalls int
}

// NewFaceSource creates an empty face source.
func NewFaceSource() *FaceSource {
	return &FaceSource{faces: make(map[string][]database.StoredFace)}
}

// AddFace adds a confirmed face for a person.
func (s *FaceSource) AddFace(face database.StoredFace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces[face.PersonID] = append(s.faces[face.PersonID], face)
	sort.Slice(s.faces[face.PersonID], func(i, j int) bool {
		return s.faces[face.PersonID][i].ID < s.faces[face.PersonID][j].ID
	})
}

// RemoveFace removes a face by ID.
func (s *FaceSource) RemoveFace(personID string, faceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.faces[personID][:0]
	for _, f := range s.faces[personID] {
		if f.ID != faceID {
			kept = append(kept, f)
		}
	}
	s.faces[personID] = kept
}

// ListFaces returns up to limit faces with ID > afterID, ordered by ID.
func (s *FaceSource) ListFaces(_ context.Context, personID string, afterID int64, limit int) ([]database.StoredFace, error) {
	s.mu.Lock()
	s.ListFacesCalls++
	s.mu.Unlock()

	if s.ListFacesError != nil {
		return nil, s.ListFacesError
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var page []database.StoredFace
	for _, f := range s.faces[personID] {
		if f.ID <= afterID {
			continue
		}
		page = append(page, f)
		if len(page) >= limit {
			break
		}
	}
	return page, nil
}

// ListPersonIDs returns the distinct person IDs with faces, sorted.
func (s *FaceSource) ListPersonIDs(_ context.Context) ([]string, error) {
	if s.ListPersonIDsError != nil {
		return nil, s.ListPersonIDsError
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.faces))
	for id, faces := range s.faces {
		if len(faces) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// CentroidStore is an in-memory database.CentroidStore with a real per-key
// lock, so concurrency tests exercise the same protocol as the Postgres
// implementation.
type CentroidStore struct {
	mu      sync.Mutex
	records map[string]*database.PersonCentroid
	locks   map[database.StalenessKey]chan struct{}

	// Error injection
	GetActiveError  error
	InsertError     error
	ActivateError   error
	MarkFailedError error

	// ActivateCalls counts successful Activate transitions.
	ActivateCalls int
}

// NewCentroidStore creates an empty centroid store.
func NewCentroidStore() *CentroidStore {
	return &CentroidStore{
		records: make(map[string]*database.PersonCentroid),
		locks:   make(map[database.StalenessKey]chan struct{}),
	}
}

func (s *CentroidStore) lockChan(key database.StalenessKey) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// WithKeyLock runs fn while holding the exclusive lock for the key.
func (s *CentroidStore) WithKeyLock(ctx context.Context, key database.StalenessKey, fn func(ctx context.Context) error) error {
	ch := s.lockChan(key)
	select {
	case ch <- struct{}{}:
		defer func() { <-ch }()
		return fn(ctx)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", database.ErrLockContention, ctx.Err())
	}
}

func matchesKey(rec *database.PersonCentroid, key database.StalenessKey) bool {
	return rec.PersonID == key.PersonID &&
		rec.ModelVersion == key.ModelVersion &&
		rec.CentroidVersion == key.CentroidVersion
}

// GetActive returns active records for the key, global first, then cluster
// labels ascending.
func (s *CentroidStore) GetActive(_ context.Context, key database.StalenessKey) ([]database.PersonCentroid, error) {
	if s.GetActiveError != nil {
		return nil, s.GetActiveError
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []database.PersonCentroid
	for _, rec := range s.records {
		if rec.Status == database.StatusActive && matchesKey(rec, key) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Type == database.CentroidTypeGlobal) != (out[j].Type == database.CentroidTypeGlobal) {
			return out[i].Type == database.CentroidTypeGlobal
		}
		return out[i].ClusterLabel < out[j].ClusterLabel
	})
	return out, nil
}

// InsertBuilding persists new building records.
func (s *CentroidStore) InsertBuilding(_ context.Context, records []database.PersonCentroid) error {
	if s.InsertError != nil {
		return s.InsertError
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		rec := records[i]
		s.records[rec.ID] = &rec
	}
	return nil
}

// Activate atomically deprecates the key's active records and activates the
// given building records.
func (s *CentroidStore) Activate(_ context.Context, key database.StalenessKey, ids []string) error {
	if s.ActivateError != nil {
		return s.ActivateError
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.Status == database.StatusActive && matchesKey(rec, key) {
			rec.Status = database.StatusDeprecated
		}
	}
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			return fmt.Errorf("activate: unknown record %s", id)
		}
		rec.Status = database.StatusActive
	}
	s.ActivateCalls++
	return nil
}

// MarkFailed transitions a record to the terminal failed state.
func (s *CentroidStore) MarkFailed(_ context.Context, id, reason string) error {
	if s.MarkFailedError != nil {
		return s.MarkFailedError
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("mark failed: unknown record %s", id)
	}
	rec.Status = database.StatusFailed
	rec.FailureReason = reason
	return nil
}

// InvalidateSourceHash clears the source hash on a person's active records.
func (s *CentroidStore) InvalidateSourceHash(_ context.Context, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Status == database.StatusActive && rec.PersonID == personID {
			rec.SourceHash = ""
		}
	}
	return nil
}

// CountByStatus returns record counts per lifecycle status.
func (s *CentroidStore) CountByStatus(_ context.Context) (map[database.CentroidStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[database.CentroidStatus]int)
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// PruneDeprecated deletes deprecated records created before the cutoff.
func (s *CentroidStore) PruneDeprecated(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for id, rec := range s.records {
		if rec.Status == database.StatusDeprecated && rec.CreatedAt.Before(before) {
			delete(s.records, id)
			pruned++
		}
	}
	return pruned, nil
}

// Records returns a copy of all stored records, for test assertions.
func (s *CentroidStore) Records() []database.PersonCentroid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]database.PersonCentroid, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

// Index is an exact brute-force vectorindex.Index. Deterministic: results
// are ordered by descending score, ties by ascending ID.
type Index struct {
	mu      sync.RWMutex
	entries map[string]indexEntry

	// Error injection
	UpsertError error
	SearchError error
	DeleteError error

	// UpsertCalls counts upserts, for duplicate-write assertions.
	UpsertCalls int
}

type indexEntry struct {
	vector  []float32
	payload vectorindex.Payload
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]indexEntry)}
}

func (m *Index) Upsert(_ context.Context, id string, vector []float32, payload vectorindex.Payload) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = indexEntry{vector: vector, payload: payload}
	m.UpsertCalls++
	return nil
}

func (m *Index) Search(_ context.Context, query []float32, filter vectorindex.Filter, limit int, minScore float64) ([]vectorindex.Match, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []vectorindex.Match
	for id, ent := range m.entries {
		if !filter.Matches(ent.payload) {
			continue
		}
		score := database.CosineSimilarity(query, ent.vector)
		if score < minScore {
			continue
		}
		matches = append(matches, vectorindex.Match{ID: id, Score: score, Payload: ent.payload})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *Index) Delete(_ context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Count returns the number of indexed vectors.
func (m *Index) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
