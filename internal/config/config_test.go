package config

import "testing"

func TestLoad_EmbeddedDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Algorithm.ModelVersion == "" {
		t.Error("default model version is empty")
	}
	if cfg.Algorithm.CentroidVersion <= 0 {
		t.Errorf("default centroid version = %d, want > 0", cfg.Algorithm.CentroidVersion)
	}
	if !cfg.Algorithm.TrimOutliers {
		t.Error("trimming disabled by default; the canonical policy applies trimming everywhere")
	}
	if cfg.Algorithm.FacePageSize <= 0 {
		t.Errorf("face page size = %d, want > 0", cfg.Algorithm.FacePageSize)
	}
	if cfg.Suggestions.MinSimilarity <= 0 || cfg.Suggestions.MinSimilarity >= 1 {
		t.Errorf("min similarity = %f, want in (0, 1)", cfg.Suggestions.MinSimilarity)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		t.Errorf("retry max attempts = %d, want > 0", cfg.Retry.MaxAttempts)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MODEL_VERSION", "buffalo_l-r50")
	t.Setenv("CENTROID_VERSION", "7")
	t.Setenv("DB_MAX_OPEN_CONNS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Algorithm.ModelVersion != "buffalo_l-r50" {
		t.Errorf("model version = %q, want env override", cfg.Algorithm.ModelVersion)
	}
	if cfg.Algorithm.CentroidVersion != 7 {
		t.Errorf("centroid version = %d, want 7", cfg.Algorithm.CentroidVersion)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("max open conns = %d, want 10", cfg.Database.MaxOpenConns)
	}
}

func TestEnvInt_Invalid(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "not-a-number")
	if got := envInt("TEST_ENV_INT", 42); got != 42 {
		t.Errorf("envInt with invalid value = %d, want default 42", got)
	}

	t.Setenv("TEST_ENV_INT", "-5")
	if got := envInt("TEST_ENV_INT", 42); got != 42 {
		t.Errorf("envInt with negative value = %d, want default 42", got)
	}
}
