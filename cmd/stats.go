package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-centroids/internal/database/postgres"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show centroid and face storage counters",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
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

	faceRepo := postgres.NewFaceRepository(pool)
	centroidRepo := postgres.NewCentroidRepository(pool)

	faces, err := faceRepo.CountFaces(ctx)
	if err != nil {
		return err
	}
	persons, err := faceRepo.ListPersonIDs(ctx)
	if err != nil {
		return err
	}
	counts, err := centroidRepo.CountByStatus(ctx)
	if err != nil {
		return err
	}

	byStatus := make(map[string]int, len(counts))
	statuses := make([]string, 0, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)

	fmt.Printf("Faces:   %d (%d persons)\n", faces, len(persons))
	fmt.Println("Centroids:")
	for _, status := range statuses {
		fmt.Printf("  %-10s %d\n", status, byStatus[status])
	}
	if len(statuses) == 0 {
		fmt.Println("  (none)")
	}
	return nil
}
