package centroid

import (
	"github.com/kozaktomas/face-centroids/internal/database"
)

// Clustering thresholds. Clustering only pays off for persons with many faces
// and two genuinely distinct appearance modes (e.g. with/without glasses);
// anything below these limits falls back to the global centroid alone.
const (
	// MinFacesForClustering is the minimum set size before k=2 clustering is attempted.
	MinFacesForClustering = 200

	// MinClusterFraction is the minimum partition size as a fraction of n.
	MinClusterFraction = 0.08

	// MinClusterSizeAbs is the absolute minimum partition size.
	MinClusterSizeAbs = 20

	kmeansMaxIterations = 25
)

// ClusterCentroid is one of the k=2 partition centroids.
type ClusterCentroid struct {
	Label  string // "k2_0" or "k2_1", stable across runs on identical input
	Vector []float32
	NFaces int
}

// ComputeClusterCentroids partitions the embeddings with a deterministic k=2
// spherical k-means and returns one centroid per partition. Partitions of
// MinFacesForTrimming or more faces get the same trimmed-mean treatment as
// the global centroid; smaller partitions use a plain normalized mean.
//
// Returns (nil, nil) when clustering does not apply: fewer than
// MinFacesForClustering embeddings, or either partition smaller than
// max(MinClusterSizeAbs, MinClusterFraction*n). That is the documented
// fallback to global-only, not a failure.
func ComputeClusterCentroids(embeddings [][]float32) ([]ClusterCentroid, error) {
	n := len(embeddings)
	if n < MinFacesForClustering {
		return nil, nil
	}

	partA, partB := partitionK2(embeddings)

	minSize := MinClusterSizeAbs
	if frac := int(MinClusterFraction * float64(n)); frac > minSize {
		minSize = frac
	}
	if len(partA) < minSize || len(partB) < minSize {
		return nil, nil
	}

	centroidA, err := partitionCentroid(embeddings, partA)
	if err != nil {
		return nil, err
	}
	centroidB, err := partitionCentroid(embeddings, partB)
	if err != nil {
		return nil, err
	}

	// Stable labeling: order partitions by ascending first coordinate of
	// their centroid, ties by ascending first-member index.
	first := ClusterCentroid{Label: "k2_0", Vector: centroidA, NFaces: len(partA)}
	second := ClusterCentroid{Label: "k2_1", Vector: centroidB, NFaces: len(partB)}
	if centroidB[0] < centroidA[0] || (centroidB[0] == centroidA[0] && partB[0] < partA[0]) {
		first.Vector, second.Vector = centroidB, centroidA
		first.NFaces, second.NFaces = len(partB), len(partA)
	}
	return []ClusterCentroid{first, second}, nil
}

// partitionCentroid aggregates the embeddings at the given indexes.
func partitionCentroid(embeddings [][]float32, members []int) ([]float32, error) {
	part := make([][]float32, len(members))
	for i, idx := range members {
		part[i] = embeddings[idx]
	}
	if len(part) >= MinFacesForTrimming {
		return ComputeGlobalCentroid(part, true)
	}
	return normalizedMean(part)
}

// partitionK2 runs a deterministic k=2 k-means over unit vectors using cosine
// similarity. No randomness: the seeds are embeddings[0] and the vector
// farthest from it (lowest index on ties), assignment ties go to the first
// cluster, and iteration stops when assignments are stable or after
// kmeansMaxIterations rounds. Either partition may come back empty when the
// inputs collapse onto one mode; callers treat that as the fallback case.
func partitionK2(embeddings [][]float32) ([]int, []int) {
	n := len(embeddings)

	seedA := embeddings[0]
	farIdx := 0
	farDist := -1.0
	for i := 1; i < n; i++ {
		if d := database.CosineDistance(seedA, embeddings[i]); d > farDist {
			farDist = d
			farIdx = i
		}
	}
	centerA, centerB := seedA, embeddings[farIdx]

	assign := make([]int, n)
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, emb := range embeddings {
			cluster := 0
			if database.CosineSimilarity(emb, centerB) > database.CosineSimilarity(emb, centerA) {
				cluster = 1
			}
			if assign[i] != cluster {
				assign[i] = cluster
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		var membersA, membersB [][]float32
		for i, emb := range embeddings {
			if assign[i] == 0 {
				membersA = append(membersA, emb)
			} else {
				membersB = append(membersB, emb)
			}
		}
		if len(membersA) == 0 || len(membersB) == 0 {
			break
		}

		newA, errA := normalizedMean(membersA)
		newB, errB := normalizedMean(membersB)
		if errA != nil || errB != nil {
			break
		}
		centerA, centerB = newA, newB
	}

	var partA, partB []int
	for i := range embeddings {
		if assign[i] == 0 {
			partA = append(partA, i)
		} else {
			partB = append(partB, i)
		}
	}
	return partA, partB
}
