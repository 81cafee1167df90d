package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-centroids/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the centroid API server",
	Long: `Start the HTTP API server. The server answers centroid reads, rebuilds,
suggestion searches, outlier reports and invalidation over a JSON API, with
the vector index held in memory.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	log := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, pool, centroidRepo, idx, err := buildEngine(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer pool.Close()

	server := web.NewServer(cfg, eng, centroidRepo, idx, host, port, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received")

		if cfg.Index.SnapshotPath != "" {
			if err := idx.Save(cfg.Index.SnapshotPath); err != nil {
				log.Warn().Err(err).Msg("failed to save index snapshot")
			} else {
				log.Info().Str("path", cfg.Index.SnapshotPath).Msg("index snapshot saved")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
