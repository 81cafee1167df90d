package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-centroids/internal/engine"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <person-id>",
	Short: "Suggest unassigned faces that likely belong to a person",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	suggestCmd.Flags().Int("limit", 0, "Maximum number of suggestions (0 = configured default)")
	suggestCmd.Flags().Float64("min-similarity", 0, "Minimum cosine similarity (0 = configured default)")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	personID := args[0]
	limit := mustGetInt(cmd, "limit")
	minSimilarity := mustGetFloat64(cmd, "min-similarity")

	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, pool, _, _, err := buildEngine(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer pool.Close()

	opts := engine.SuggestionOptionsFromDefaults(cfg.Suggestions)
	if limit > 0 {
		opts.MaxResults = limit
	}
	if minSimilarity > 0 {
		opts.MinSimilarity = minSimilarity
	}

	algCfg := engine.AlgorithmConfigFromDefaults(cfg.Algorithm)
	result, err := eng.GetSuggestions(ctx, personID, algCfg, opts)
	if err != nil {
		return fmt.Errorf("suggestions for person %s: %w", personID, err)
	}

	if len(result.Candidates) == 0 {
		fmt.Printf("No suggestions for %s above similarity %.2f.\n", personID, opts.MinSimilarity)
		return nil
	}

	fmt.Printf("Suggestions for %s:\n", personID)
	for i, c := range result.Candidates {
		fmt.Printf("  %2d. face %-10d score=%.4f via %s\n", i+1, c.FaceID, c.Score, c.CentroidLabel)
	}
	if result.RebuildPending {
		fmt.Println("Note: centroids are being rebuilt; results may be slightly stale.")
	}
	return nil
}
