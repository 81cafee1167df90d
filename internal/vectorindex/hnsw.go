package vectorindex

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-centroids/internal/database"
)

// HNSW graph parameters for 512-dim face embeddings.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16

	// hnswSearchMultiplier requests more candidates from the graph than the
	// caller asked for, so enough survive payload filtering.
	hnswSearchMultiplier = 3

	hnswMinSearchCandidates = 100

	hnswSnapshotVersion = 1
)

// entry holds the vector and payload for one indexed ID. Kept outside the
// graph because HNSW has no true deletion: an ID missing from entries is
// invisible to searches even if its node is still in the graph.
type entry struct {
	Vector  []float32
	Payload Payload
}

// HNSW is an in-memory, payload-filtered vector index backed by an HNSW
// graph, with optional snapshot persistence. Safe for concurrent use.
type HNSW struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string]
	entries    map[string]entry
}

// NewHNSW creates an empty index.
func NewHNSW() *HNSW {
	return &HNSW{entries: make(map[string]entry)}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Upsert adds or replaces a vector.
func (h *HNSW) Upsert(_ context.Context, id string, vector []float32, payload Payload) error {
	if len(vector) == 0 {
		return errors.New("empty vector")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.savedGraph != nil {
		// SavedGraph embeds *Graph, additions go to the loaded graph.
		h.savedGraph.Add(hnsw.MakeNode(id, vector))
	} else {
		if h.graph == nil {
			h.graph = newGraph()
		}
		h.graph.Add(hnsw.MakeNode(id, vector))
	}
	h.entries[id] = entry{Vector: vector, Payload: payload}
	return nil
}

// Delete removes a vector from search results. The graph node stays behind
// (HNSW does not support true deletion) but is filtered out via the entries
// lookup.
func (h *HNSW) Delete(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, id)
	return nil
}

// Search finds up to limit vectors passing the filter with cosine similarity
// of at least minScore, ordered by descending similarity.
func (h *HNSW) Search(_ context.Context, query []float32, filter Filter, limit int, minScore float64) ([]Match, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}

	searchK := limit * hnswSearchMultiplier
	if searchK < hnswMinSearchCandidates {
		searchK = hnswMinSearchCandidates
	}

	var neighbors []hnsw.Node[string]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, searchK)
	} else {
		neighbors = h.graph.Search(query, searchK)
	}

	matches := make([]Match, 0, limit)
	seen := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		if seen[n.Key] {
			continue
		}
		seen[n.Key] = true

		ent, ok := h.entries[n.Key]
		if !ok || !filter.Matches(ent.Payload) {
			continue
		}
		// Exact similarity against the stored vector, not the graph's
		// approximate ordering.
		score := database.CosineSimilarity(query, ent.Vector)
		if score < minScore {
			continue
		}
		matches = append(matches, Match{ID: n.Key, Score: score, Payload: ent.Payload})
		if len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

// Count returns the number of searchable vectors.
func (h *HNSW) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// CountByKind returns the number of searchable vectors of the given kind.
func (h *HNSW) CountByKind(kind Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, ent := range h.entries {
		if ent.Payload.Kind == kind {
			count++
		}
	}
	return count
}

// SnapshotMetadata validates persisted snapshots before reuse. A snapshot
// whose entry count no longer matches the source of truth is discarded and
// the index rebuilt.
type SnapshotMetadata struct {
	EntryCount int       `json:"entry_count"`
	BuildTime  time.Time `json:"build_time"`
	Version    int       `json:"version"`
}

// Save persists the graph, entries and snapshot metadata next to path.
func (h *HNSW) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		// Best-effort cleanup of stale snapshot files.
		_ = os.Remove(path)
		_ = os.Remove(path + ".entries")
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index snapshot: %w", err)
	}
	if h.savedGraph != nil {
		err = h.savedGraph.Export(f)
	} else {
		err = h.graph.Export(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h.entries); err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}
	if err := os.WriteFile(path+".entries", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}

	meta := SnapshotMetadata{
		EntryCount: len(h.entries),
		BuildTime:  time.Now().UTC(),
		Version:    hnswSnapshotVersion,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal snapshot metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("write snapshot metadata: %w", err)
	}
	return nil
}

// LoadSnapshotMetadata reads just the metadata file for staleness checking.
func LoadSnapshotMetadata(path string) (SnapshotMetadata, error) {
	var meta SnapshotMetadata
	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return meta, fmt.Errorf("read snapshot metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("unmarshal snapshot metadata: %w", err)
	}
	return meta, nil
}

// Load restores a snapshot written by Save. Snapshots with an unknown
// version are rejected so a format change cannot load garbage silently.
func (h *HNSW) Load(path string) error {
	meta, err := LoadSnapshotMetadata(path)
	if err != nil {
		return err
	}
	if meta.Version != hnswSnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", meta.Version)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("load graph snapshot: %w", err)
	}

	data, err := os.ReadFile(path + ".entries")
	if err != nil {
		return fmt.Errorf("read entries: %w", err)
	}
	entries := make(map[string]entry)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return fmt.Errorf("decode entries: %w", err)
	}
	if len(entries) != meta.EntryCount {
		return fmt.Errorf("snapshot entry count mismatch: meta %d, entries %d", meta.EntryCount, len(entries))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.savedGraph = saved
	h.graph = nil
	h.entries = entries
	return nil
}
