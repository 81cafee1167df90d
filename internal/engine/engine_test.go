package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-centroids/internal/centroid"
	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/database/mock"
)

const testDim = 8

func testConfig() AlgorithmConfig {
	return AlgorithmConfig{
		ModelVersion:     "buffalo_l-r100",
		CentroidVersion:  3,
		TrimOutliers:     true,
		EnableClustering: true,
		FacePageSize:     100,
	}
}

// unitVec builds a unit-norm vector mostly along axis with a deterministic
// per-seed perturbation.
func unitVec(axis, seed int) []float32 {
	v := make([]float32, testDim)
	v[axis] = 1
	for i := range v {
		v[i] += float32(((seed*31+i*7)%13)-6) * 0.002
	}
	var normSq float64
	for _, x := range v {
		normSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(normSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}

type testEnv struct {
	engine *Engine
	store  *mock.CentroidStore
	source *mock.FaceSource
	index  *mock.Index
}

func newTestEnv() *testEnv {
	store := mock.NewCentroidStore()
	source := mock.NewFaceSource()
	index := mock.NewIndex()
	return &testEnv{
		engine: New(store, source, index, zerolog.Nop()),
		store:  store,
		source: source,
		index:  index,
	}
}

// addFaces adds n faces for a person around the given axis, with face IDs
// starting at startID.
func (env *testEnv) addFaces(personID string, axis, n int, startID int64) {
	for i := 0; i < n; i++ {
		env.source.AddFace(database.StoredFace{
			ID:        startID + int64(i),
			PersonID:  personID,
			Embedding: unitVec(axis, i),
			Model:     "buffalo_l-r100",
			Dim:       testDim,
		})
	}
}

func TestComputeOrFetch_BuildsThenServesCached(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 30, 1)

	first, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !first.Rebuilt {
		t.Error("first call should rebuild")
	}
	if len(first.Centroids) != 1 {
		t.Fatalf("got %d centroids, want 1 (global only below clustering minimum)", len(first.Centroids))
	}
	global := first.Global()
	if global == nil || global.Type != database.CentroidTypeGlobal || global.ClusterLabel != database.GlobalLabel {
		t.Fatalf("unexpected global record: %+v", first.Centroids[0])
	}
	if global.Status != database.StatusActive {
		t.Errorf("status = %s, want active", global.Status)
	}
	if global.NFaces != 30 {
		t.Errorf("n_faces = %d, want 30", global.NFaces)
	}

	second, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.Rebuilt {
		t.Error("second call should serve the cached set")
	}
	if second.Centroids[0].ID != global.ID {
		t.Error("second call returned a different record")
	}
	for i := range global.Vector {
		if second.Centroids[0].Vector[i] != global.Vector[i] {
			t.Fatal("cached vector differs from computed vector")
		}
	}
}

func TestComputeOrFetch_RebuildsWhenFaceSetChanges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 30, 1)

	first, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	env.addFaces("alice", 0, 1, 100)

	second, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Rebuilt {
		t.Error("adding a face must trigger a rebuild")
	}
	if second.Centroids[0].SourceHash == first.Centroids[0].SourceHash {
		t.Error("source hash unchanged after face set change")
	}

	// The superseded record is deprecated, never deleted.
	counts, err := env.store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[database.StatusActive] != 1 {
		t.Errorf("active records = %d, want 1", counts[database.StatusActive])
	}
	if counts[database.StatusDeprecated] != 1 {
		t.Errorf("deprecated records = %d, want 1", counts[database.StatusDeprecated])
	}
}

func TestComputeOrFetch_StaleOnVersionChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 30, 1)

	cfg := testConfig()
	if _, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", cfg, RebuildOptions{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	cfg.CentroidVersion = 4
	set, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", cfg, RebuildOptions{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !set.Rebuilt {
		t.Error("algorithm version bump must trigger a rebuild")
	}
	if set.Centroids[0].CentroidVersion != 4 {
		t.Errorf("centroid version = %d, want 4", set.Centroids[0].CentroidVersion)
	}
}

func TestComputeOrFetch_ForceRebuild(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 30, 1)

	if _, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	set, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{Force: true})
	if err != nil {
		t.Fatalf("forced call: %v", err)
	}
	if !set.Rebuilt {
		t.Error("force must rebuild even when records are fresh")
	}
}

func TestComputeOrFetch_InsufficientInput(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	_, err := env.engine.ComputeOrFetchCentroids(ctx, "nobody", testConfig(), RebuildOptions{})
	if !errors.Is(err, centroid.ErrInsufficientInput) {
		t.Fatalf("expected ErrInsufficientInput, got %v", err)
	}

	counts, cerr := env.store.CountByStatus(ctx)
	if cerr != nil {
		t.Fatalf("count by status: %v", cerr)
	}
	if counts[database.StatusFailed] != 1 {
		t.Errorf("failed records = %d, want 1", counts[database.StatusFailed])
	}
	if counts[database.StatusActive] != 0 {
		t.Errorf("active records = %d, want 0", counts[database.StatusActive])
	}
}

func TestComputeOrFetch_FailedRebuildLeavesPriorActive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 30, 1)

	first, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	// All faces get unlabeled: the rebuild attempt must fail without
	// touching the prior active record.
	for i := int64(1); i <= 30; i++ {
		env.source.RemoveFace("alice", i)
	}

	_, err = env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
	if !errors.Is(err, centroid.ErrInsufficientInput) {
		t.Fatalf("expected ErrInsufficientInput, got %v", err)
	}

	active, err := env.store.GetActive(ctx, testConfig().Key("alice"))
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(active) != 1 || active[0].ID != first.Centroids[0].ID {
		t.Error("prior active record was disturbed by the failed rebuild")
	}
}

func TestComputeOrFetch_ClusteredPerson(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("bob", 0, 100, 1)
	env.addFaces("bob", 1, 100, 200)

	set, err := env.engine.ComputeOrFetchCentroids(ctx, "bob", testConfig(), RebuildOptions{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(set.Centroids) != 3 {
		t.Fatalf("got %d centroids, want global + 2 clusters", len(set.Centroids))
	}
	if set.Centroids[0].Type != database.CentroidTypeGlobal {
		t.Error("global centroid not first")
	}
	if set.Centroids[1].ClusterLabel != "k2_0" || set.Centroids[2].ClusterLabel != "k2_1" {
		t.Errorf("cluster labels %q, %q out of order", set.Centroids[1].ClusterLabel, set.Centroids[2].ClusterLabel)
	}

	// All records share the rebuild's source hash.
	for _, rec := range set.Centroids {
		if rec.SourceHash != set.Centroids[0].SourceHash {
			t.Error("records of one rebuild have different source hashes")
		}
	}
}

func TestComputeOrFetch_Invalidate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 30, 1)

	if _, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := env.engine.Invalidate(ctx, "alice"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	set, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
	if err != nil {
		t.Fatalf("post-invalidate call: %v", err)
	}
	if !set.Rebuilt {
		t.Error("invalidate must force the next call to rebuild")
	}
}

func TestComputeOrFetch_ConcurrentCallersSingleRebuild(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 60, 1)

	const callers = 50
	results := make([]CentroidSet, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	// Exactly one building->active transition, no duplicate index writes.
	if env.store.ActivateCalls != 1 {
		t.Errorf("activate transitions = %d, want 1", env.store.ActivateCalls)
	}
	if env.index.UpsertCalls != 1 {
		t.Errorf("index upserts = %d, want 1", env.index.UpsertCalls)
	}

	// Every caller observes the same resulting vector.
	winner := results[0].Centroids[0]
	for i := 1; i < callers; i++ {
		got := results[i].Centroids[0]
		if got.ID != winner.ID {
			t.Fatalf("caller %d observed record %s, want %s", i, got.ID, winner.ID)
		}
		for j := range winner.Vector {
			if got.Vector[j] != winner.Vector[j] {
				t.Fatalf("caller %d observed a different vector", i)
			}
		}
	}

	counts, err := env.store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts[database.StatusActive] != 1 {
		t.Errorf("active records = %d, want 1", counts[database.StatusActive])
	}
}

func TestComputeOrFetch_LockTimeoutServesStale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 30, 1)

	first, err := env.engine.ComputeOrFetchCentroids(ctx, "alice", testConfig(), RebuildOptions{})
	if err != nil {
		t.Fatalf("initial build: %v", err)
	}

	// Simulate a long-running rebuild holding the key lock.
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = env.store.WithKeyLock(ctx, testConfig().Key("alice"), func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	set, err := env.engine.ComputeOrFetchCentroids(timeoutCtx, "alice", testConfig(), RebuildOptions{Force: true})
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !set.RebuildPending {
		t.Error("RebuildPending not set")
	}
	if set.Rebuilt {
		t.Error("caller must not rebuild while the lock is held elsewhere")
	}
	if len(set.Centroids) != 1 || set.Centroids[0].ID != first.Centroids[0].ID {
		t.Error("fallback did not serve the most recent active record")
	}
}

func TestComputeOrFetch_LockTimeoutWithoutFallback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.addFaces("alice", 0, 30, 1)

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = env.store.WithKeyLock(ctx, testConfig().Key("alice"), func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err := env.engine.ComputeOrFetchCentroids(timeoutCtx, "alice", testConfig(), RebuildOptions{})
	if !errors.Is(err, database.ErrLockContention) {
		t.Errorf("expected ErrLockContention with no active fallback, got %v", err)
	}
}
