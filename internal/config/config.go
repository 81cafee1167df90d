package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds runtime configuration. Connection settings come from the
// environment; algorithm parameters come from the embedded defaults with
// env overrides for the versions, so a deploy can switch models without a
// rebuild but nothing reads versions from ambient global state at call time.
type Config struct {
	Database    DatabaseConfig
	PhotoDB     PhotoDBConfig
	Index       IndexConfig
	Algorithm   AlgorithmDefaults
	Suggestions SuggestionDefaults
	Retry       RetryDefaults
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // default 25
	MaxIdleConns int    // default 5
}

// PhotoDBConfig points at the photo management app's MariaDB, used as a
// read-only source of confirmed face labels.
type PhotoDBConfig struct {
	DSN string // e.g. photoprism:photoprism@tcp(mariadb:3306)/photoprism
}

type IndexConfig struct {
	SnapshotPath string // optional, if empty the index is rebuilt on startup
}

type AlgorithmDefaults struct {
	ModelVersion     string `yaml:"model_version"`
	CentroidVersion  int    `yaml:"centroid_version"`
	TrimOutliers     bool   `yaml:"trim_outliers"`
	EnableClustering bool   `yaml:"enable_clustering"`
	FacePageSize     int    `yaml:"face_page_size"`
}

type SuggestionDefaults struct {
	MinSimilarity     float64 `yaml:"min_similarity"`
	MaxResults        int     `yaml:"max_results"`
	PerCentroidLimit  int     `yaml:"per_centroid_limit"`
	UnassignedOnly    bool    `yaml:"unassigned_only"`
	ExcludePrototypes bool    `yaml:"exclude_prototypes"`
}

type RetryDefaults struct {
	MaxAttempts       int `yaml:"max_attempts"`
	InitialIntervalMs int `yaml:"initial_interval_ms"`
	MaxIntervalMs     int `yaml:"max_interval_ms"`
}

type defaultsFile struct {
	Algorithm   AlgorithmDefaults  `yaml:"algorithm"`
	Suggestions SuggestionDefaults `yaml:"suggestions"`
	Retry       RetryDefaults      `yaml:"retry"`
}

// Load reads configuration from the environment and the embedded defaults.
func Load() (*Config, error) {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DB_MAX_IDLE_CONNS", 5),
		},
		PhotoDB: PhotoDBConfig{
			DSN: os.Getenv("PHOTO_DATABASE_URL"),
		},
		Index: IndexConfig{
			SnapshotPath: os.Getenv("INDEX_SNAPSHOT_PATH"),
		},
		Algorithm:   defaults.Algorithm,
		Suggestions: defaults.Suggestions,
		Retry:       defaults.Retry,
	}

	if v := os.Getenv("MODEL_VERSION"); v != "" {
		cfg.Algorithm.ModelVersion = v
	}
	if v := envInt("CENTROID_VERSION", 0); v > 0 {
		cfg.Algorithm.CentroidVersion = v
	}

	return cfg, nil
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}
