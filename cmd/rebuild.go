package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-centroids/internal/centroid"
	"github.com/kozaktomas/face-centroids/internal/database/postgres"
	"github.com/kozaktomas/face-centroids/internal/engine"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [person-id]",
	Short: "Rebuild centroids for one person or all persons",
	Long: `Rebuild recomputes person centroids from confirmed face embeddings.
With a person ID, that person's centroids are checked and rebuilt if stale.
With --all, every person with confirmed faces is processed.`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().Bool("all", false, "Rebuild centroids for every person")
	rebuildCmd.Flags().Bool("force", false, "Rebuild even when centroids are fresh")
	rebuildCmd.Flags().Int("concurrency", 4, "Concurrent rebuilds when using --all")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	all := mustGetBool(cmd, "all")
	force := mustGetBool(cmd, "force")
	concurrency := mustGetInt(cmd, "concurrency")

	if !all && len(args) != 1 {
		return errors.New("provide a person ID or use --all")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, pool, _, _, err := buildEngine(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer pool.Close()

	algCfg := engine.AlgorithmConfigFromDefaults(cfg.Algorithm)

	if !all {
		return rebuildOne(ctx, eng, args[0], algCfg, force)
	}
	return rebuildAll(ctx, eng, pool, algCfg, force, concurrency)
}

func rebuildOne(ctx context.Context, eng *engine.Engine, personID string, algCfg engine.AlgorithmConfig, force bool) error {
	set, err := eng.ComputeOrFetchCentroids(ctx, personID, algCfg, engine.RebuildOptions{Force: force})
	if err != nil {
		return fmt.Errorf("rebuild person %s: %w", personID, err)
	}

	if set.Rebuilt {
		fmt.Printf("Rebuilt %d centroid(s) for %s:\n", len(set.Centroids), personID)
	} else {
		fmt.Printf("Centroids for %s are fresh (%d record(s)):\n", personID, len(set.Centroids))
	}
	for _, rec := range set.Centroids {
		fmt.Printf("  %-8s %-6s faces=%-5d hash=%s\n", rec.ClusterLabel, rec.Type, rec.NFaces, rec.SourceHash)
	}
	return nil
}

func rebuildAll(ctx context.Context, eng *engine.Engine, pool *postgres.Pool, algCfg engine.AlgorithmConfig, force bool, concurrency int) error {
	faceRepo := postgres.NewFaceRepository(pool)
	personIDs, err := faceRepo.ListPersonIDs(ctx)
	if err != nil {
		return fmt.Errorf("list persons: %w", err)
	}
	if len(personIDs) == 0 {
		fmt.Println("No persons with confirmed faces found.")
		return nil
	}

	bar := progressbar.NewOptions(len(personIDs),
		progressbar.OptionSetDescription("Rebuilding centroids"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("persons"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var rebuilt, fresh, skipped, failed int
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, personID := range personIDs {
		wg.Add(1)
		go func(personID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			set, err := eng.ComputeOrFetchCentroids(ctx, personID, algCfg, engine.RebuildOptions{Force: force})

			mu.Lock()
			switch {
			case errors.Is(err, centroid.ErrInsufficientInput), errors.Is(err, centroid.ErrDegenerateVector):
				skipped++
			case err != nil:
				failed++
			case set.Rebuilt:
				rebuilt++
			default:
				fresh++
			}
			mu.Unlock()
			bar.Add(1)
		}(personID)
	}
	wg.Wait()

	fmt.Printf("\n\nDone: %d rebuilt, %d fresh, %d skipped, %d failed (of %d persons)\n",
		rebuilt, fresh, skipped, failed, len(personIDs))
	if failed > 0 {
		return fmt.Errorf("%d person(s) failed to rebuild", failed)
	}
	return nil
}
