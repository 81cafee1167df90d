package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-centroids/internal/engine"
)

var outliersCmd = &cobra.Command{
	Use:   "outliers <person-id>",
	Short: "Rank a person's faces by distance from their centroid",
	Long: `Outliers ranks a person's confirmed faces by cosine distance from the
active global centroid, most distant first. Faces far from the centroid are
candidates for mislabeled assignments.`,
	Args: cobra.ExactArgs(1),
	RunE: runOutliers,
}

func init() {
	rootCmd.AddCommand(outliersCmd)

	outliersCmd.Flags().Float64("threshold", 0, "Minimum distance to include (0 = show all)")
	outliersCmd.Flags().Int("limit", 20, "Maximum number of outliers to show (0 = no limit)")
}

func runOutliers(cmd *cobra.Command, args []string) error {
	personID := args[0]
	threshold := mustGetFloat64(cmd, "threshold")
	limit := mustGetInt(cmd, "limit")

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
	report, err := eng.Outliers(ctx, personID, algCfg, threshold, limit)
	if err != nil {
		return fmt.Errorf("outliers for person %s: %w", personID, err)
	}

	fmt.Printf("Person %s: %d faces, average distance %.4f\n", report.PersonID, report.TotalFaces, report.AvgDistance)
	if len(report.Outliers) == 0 {
		fmt.Println("No faces above the threshold.")
		return nil
	}
	for i, o := range report.Outliers {
		fmt.Printf("  %2d. face %-10d distance=%.4f\n", i+1, o.FaceID, o.Distance)
	}
	return nil
}
