// Package centroid implements the canonical person-centroid computation:
// outlier-trimmed mean aggregation of unit-norm face embeddings and optional
// k=2 cluster centroids for persons with distinct appearance modes.
//
// Everything in this package is pure and deterministic: no I/O, no logging,
// no randomness. Every caller (request handler, background worker, batch job)
// must go through these functions; there is deliberately no second
// implementation of the trimming or clustering algorithm anywhere else.
package centroid

import (
	"math"
	"sort"

	"github.com/kozaktomas/face-centroids/internal/database"
)

// Trim policy. Small sets are left untrimmed because dropping faces from a
// handful of examples hurts more than the occasional mislabeled face.
const (
	// MinFacesForTrimming is the minimum set size before outlier trimming kicks in.
	MinFacesForTrimming = 50

	// TrimLargeSetThreshold separates the 5% and 10% trim fractions.
	TrimLargeSetThreshold = 300

	trimFractionSmall = 0.05
	trimFractionLarge = 0.10
)

// ComputeGlobalCentroid computes the trimmed-mean centroid of the given
// embeddings. Input vectors must be pre-normalized (caller's responsibility).
// The result is unit-norm.
//
// With trimOutliers set and n >= MinFacesForTrimming, the vectors least
// similar to the initial mean are excluded before the final averaging:
// floor(5% * n) vectors for n <= 300, floor(10% * n) for larger sets.
// The boundary is a nearest-rank percentile over similarities sorted
// ascending, ties broken by ascending input index, so identical inputs
// always produce identical trim sets.
func ComputeGlobalCentroid(embeddings [][]float32, trimOutliers bool) ([]float32, error) {
	n := len(embeddings)
	if n == 0 {
		return nil, ErrInsufficientInput
	}

	initial, err := normalizedMean(embeddings)
	if err != nil {
		return nil, err
	}

	if !trimOutliers || n < MinFacesForTrimming {
		return initial, nil
	}

	survivors := trimLeastSimilar(embeddings, initial, TrimCount(n))
	return normalizedMean(survivors)
}

// TrimCount returns how many vectors the trim policy excludes for a set of
// size n. Zero for sets below MinFacesForTrimming.
func TrimCount(n int) int {
	if n < MinFacesForTrimming {
		return 0
	}
	fraction := trimFractionSmall
	if n > TrimLargeSetThreshold {
		fraction = trimFractionLarge
	}
	return int(fraction * float64(n))
}

// trimLeastSimilar drops the `drop` vectors with the lowest cosine similarity
// to the reference vector, preserving the original order of the survivors.
func trimLeastSimilar(embeddings [][]float32, reference []float32, drop int) [][]float32 {
	if drop <= 0 {
		return embeddings
	}

	n := len(embeddings)
	order := make([]int, n)
	sims := make([]float64, n)
	for i, emb := range embeddings {
		order[i] = i
		sims[i] = database.CosineSimilarity(emb, reference)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sims[order[a]] < sims[order[b]]
	})

	dropped := make(map[int]bool, drop)
	for _, idx := range order[:drop] {
		dropped[idx] = true
	}

	survivors := make([][]float32, 0, n-drop)
	for i, emb := range embeddings {
		if !dropped[i] {
			survivors = append(survivors, emb)
		}
	}
	return survivors
}

// normalizedMean computes the arithmetic mean of the vectors and scales it to
// unit norm. Accumulates in float64 so the result does not depend on how the
// float32 rounding happens to fall for large sets.
func normalizedMean(embeddings [][]float32) ([]float32, error) {
	if len(embeddings) == 0 {
		return nil, ErrInsufficientInput
	}

	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for _, emb := range embeddings {
		for i := range sum {
			if i < len(emb) {
				sum[i] += float64(emb[i])
			}
		}
	}

	var normSq float64
	inv := 1 / float64(len(embeddings))
	for i := range sum {
		sum[i] *= inv
		normSq += sum[i] * sum[i]
	}
	if normSq == 0 {
		return nil, ErrDegenerateVector
	}

	norm := math.Sqrt(normSq)
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / norm)
	}
	return out, nil
}
