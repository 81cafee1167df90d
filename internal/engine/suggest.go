package engine

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/vectorindex"
)

// GetSuggestions proposes unconfirmed faces that likely belong to the person.
// Each active centroid queries the vector index independently (in parallel:
// the searches are read-only), the result lists are merged, deduped by face
// keeping the highest-scoring match, sorted by score descending with
// first-seen order as the stable tie-break, and truncated to MaxResults.
func (e *Engine) GetSuggestions(ctx context.Context, personID string, cfg AlgorithmConfig, opts SuggestionOptions) (SuggestionResult, error) {
	var set CentroidSet
	var err error
	if opts.AutoRebuild {
		set, err = e.ComputeOrFetchCentroids(ctx, personID, cfg, RebuildOptions{})
		if err != nil {
			return SuggestionResult{}, err
		}
	} else {
		set.Centroids, err = e.store.GetActive(ctx, cfg.Key(personID))
		if err != nil {
			return SuggestionResult{}, fmt.Errorf("read active centroids: %w", err)
		}
	}

	if len(set.Centroids) == 0 {
		return SuggestionResult{RebuildPending: set.RebuildPending}, nil
	}

	filter := vectorindex.Filter{
		Kind:              vectorindex.KindFace,
		ExcludePersonID:   personID,
		ExcludePrototypes: opts.ExcludePrototypes,
		UnassignedOnly:    opts.UnassignedOnly,
	}

	perCentroid := make([][]vectorindex.Match, len(set.Centroids))
	g, gctx := errgroup.WithContext(ctx)
	for i := range set.Centroids {
		i := i
		g.Go(func() error {
			matches, err := e.index.Search(gctx, set.Centroids[i].Vector, filter, opts.PerCentroidLimit, opts.MinSimilarity)
			if err != nil {
				return fmt.Errorf("search with centroid %s: %w", set.Centroids[i].ClusterLabel, err)
			}
			perCentroid[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SuggestionResult{}, err
	}

	// Merge in centroid iteration order (global first, then cluster labels
	// in stored order) so the first-seen sequence is deterministic.
	type ranked struct {
		cand database.SuggestionCandidate
		seen int
	}
	best := make(map[int64]*ranked)
	order := make([]int64, 0)
	seen := 0
	for i := range set.Centroids {
		label := set.Centroids[i].ClusterLabel
		for _, m := range perCentroid[i] {
			seen++
			cur, ok := best[m.Payload.FaceID]
			if !ok {
				best[m.Payload.FaceID] = &ranked{
					cand: database.SuggestionCandidate{FaceID: m.Payload.FaceID, Score: m.Score, CentroidLabel: label},
					seen: seen,
				}
				order = append(order, m.Payload.FaceID)
				continue
			}
			if m.Score > cur.cand.Score {
				cur.cand.Score = m.Score
				cur.cand.CentroidLabel = label
			}
		}
	}

	candidates := make([]database.SuggestionCandidate, 0, len(order))
	for _, faceID := range order {
		candidates = append(candidates, best[faceID].cand)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})
	if opts.MaxResults > 0 && len(candidates) > opts.MaxResults {
		candidates = candidates[:opts.MaxResults]
	}

	return SuggestionResult{Candidates: candidates, RebuildPending: set.RebuildPending}, nil
}
