package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-centroids",
	Short: "Person centroid computation and face suggestion service",
	Long: `face-centroids derives representative embeddings (centroids) for people
from their confirmed face embeddings, keeps them fresh as labels change,
and uses them to suggest unassigned faces that likely belong to a person.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
