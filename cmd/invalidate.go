package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <person-id>",
	Short: "Mark a person's centroids stale",
	Long: `Invalidate marks a person's centroids stale so the next read rebuilds
them, regardless of whether the face set changed. The current centroids stay
servable until the rebuild completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	personID := args[0]

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

	if err := eng.Invalidate(ctx, personID); err != nil {
		return err
	}
	fmt.Printf("Centroids for %s invalidated; next read will rebuild.\n", personID)
	return nil
}
