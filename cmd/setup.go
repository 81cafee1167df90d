package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-centroids/internal/config"
	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/database/postgres"
	"github.com/kozaktomas/face-centroids/internal/engine"
	"github.com/kozaktomas/face-centroids/internal/vectorindex"
)

// newLogger builds the process logger. LOG_LEVEL selects the level
// (default info), LOG_FORMAT=json switches off the console writer.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(s); err == nil {
			level = parsed
		}
	}

	var log zerolog.Logger
	if os.Getenv("LOG_FORMAT") == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return log.Level(level).With().Timestamp().Logger()
}

// loadConfig loads configuration and validates the database URL.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	return cfg, nil
}

// retryPolicyFromConfig maps the configured retry defaults onto the index
// retry policy.
func retryPolicyFromConfig(cfg *config.Config) vectorindex.RetryPolicy {
	if cfg.Retry.MaxAttempts <= 0 {
		return vectorindex.DefaultRetryPolicy
	}
	return vectorindex.RetryPolicy{
		MaxAttempts:     uint64(cfg.Retry.MaxAttempts),
		InitialInterval: time.Duration(cfg.Retry.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Retry.MaxIntervalMs) * time.Millisecond,
	}
}

// buildFaceIndex loads the vector index snapshot when configured, falling
// back to a rebuild from the faces table. The rebuilt index is saved back to
// the snapshot path.
func buildFaceIndex(ctx context.Context, faceRepo *postgres.FaceRepository, snapshotPath string, log zerolog.Logger) (*vectorindex.HNSW, error) {
	idx := vectorindex.NewHNSW()

	if snapshotPath != "" {
		if err := idx.Load(snapshotPath); err == nil {
			log.Info().Str("path", snapshotPath).Int("vectors", idx.Count()).Msg("vector index loaded from snapshot")
			return idx, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", snapshotPath).Msg("snapshot unusable, rebuilding index")
		}
		idx = vectorindex.NewHNSW()
	}

	start := time.Now()
	var n int
	err := faceRepo.ListAll(ctx, 1000, func(f database.StoredFace) error {
		payload := vectorindex.Payload{
			Kind:      vectorindex.KindFace,
			FaceID:    f.ID,
			PersonID:  f.PersonID,
			Prototype: f.Prototype,
		}
		n++
		return idx.Upsert(ctx, fmt.Sprintf("face:%d", f.ID), f.Embedding, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	log.Info().Int("vectors", n).Dur("took", time.Since(start)).Msg("vector index built from database")

	if snapshotPath != "" {
		if err := idx.Save(snapshotPath); err != nil {
			log.Warn().Err(err).Str("path", snapshotPath).Msg("failed to save index snapshot")
		}
	}
	return idx, nil
}

// buildEngine wires the Postgres repositories, the vector index and the
// engine for a CLI command. When withFaces is false the index starts empty;
// rebuild-only commands don't need face vectors indexed.
func buildEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger, withFaces bool) (*engine.Engine, *postgres.Pool, *postgres.CentroidRepository, *vectorindex.HNSW, error) {
	pool, err := postgres.Initialize(&cfg.Database, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	faceRepo := postgres.NewFaceRepository(pool)
	centroidRepo := postgres.NewCentroidRepository(pool)

	var idx *vectorindex.HNSW
	if withFaces {
		idx, err = buildFaceIndex(ctx, faceRepo, cfg.Index.SnapshotPath, log)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
	} else {
		idx = vectorindex.NewHNSW()
	}

	retrying := vectorindex.WithRetry(idx, retryPolicyFromConfig(cfg), log)
	eng := engine.New(centroidRepo, faceRepo, retrying, log)
	return eng, pool, centroidRepo, idx, nil
}
