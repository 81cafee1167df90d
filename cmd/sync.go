package cmd

import (
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/database/mariadb"
	"github.com/kozaktomas/face-centroids/internal/database/postgres"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror confirmed face labels from the photo application",
	Long: `Sync copies confirmed face markers (embedding + subject) from the photo
application's MariaDB into the local faces table. Read-only on the photo
side; repeated runs upsert, so re-syncing is safe.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Int("batch-size", 500, "Faces per upsert batch")
}

func runSync(cmd *cobra.Command, args []string) error {
	batchSize := mustGetInt(cmd, "batch-size")
	if batchSize < 1 {
		batchSize = 500
	}

	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.PhotoDB.DSN == "" {
		return errors.New("PHOTO_DATABASE_URL environment variable is required")
	}

	ctx := cmd.Context()
	pool, err := postgres.Initialize(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	photoDB, err := mariadb.NewPool(cfg.PhotoDB.DSN)
	if err != nil {
		return err
	}
	defer photoDB.Close()

	faceRepo := postgres.NewFaceRepository(pool)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Syncing faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	var total int
	afterID := int64(0)
	for {
		page, err := photoDB.ListConfirmedFaces(ctx, afterID, batchSize)
		if err != nil {
			return fmt.Errorf("read confirmed faces: %w", err)
		}
		if len(page) == 0 {
			break
		}

		faces := make([]database.StoredFace, 0, len(page))
		for _, f := range page {
			faces = append(faces, database.StoredFace{
				ID:        f.MarkerID,
				PersonID:  f.SubjectUID,
				Embedding: f.Embedding,
				Model:     cfg.Algorithm.ModelVersion,
				Dim:       len(f.Embedding),
			})
		}
		if err := faceRepo.SaveBatch(ctx, faces); err != nil {
			return fmt.Errorf("store faces: %w", err)
		}

		total += len(faces)
		bar.Add(len(faces))
		afterID = page[len(page)-1].MarkerID
		if len(page) < batchSize {
			break
		}
	}

	fmt.Printf("\n\nSynced %d confirmed faces.\n", total)
	if total > 0 {
		fmt.Println("Centroids of affected persons will rebuild on their next read.")
	}
	return nil
}
