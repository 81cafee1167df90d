package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-centroids/internal/database/postgres"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old deprecated centroid records",
	Long: `Prune deletes deprecated centroid records older than the retention
window. Active, building and failed records are never touched; deprecated
records inside the window are kept for audit.`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().Int("retention-days", 30, "Keep deprecated records newer than this many days")
}

func runPrune(cmd *cobra.Command, args []string) error {
	retentionDays := mustGetInt(cmd, "retention-days")
	if retentionDays < 0 {
		retentionDays = 0
	}

	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := postgres.Initialize(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	pruned, err := postgres.NewCentroidRepository(pool).PruneDeprecated(ctx, cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("Pruned %d deprecated centroid record(s) older than %s.\n", pruned, cutoff.Format(time.DateOnly))
	return nil
}
