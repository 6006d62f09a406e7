package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./mangax.db" {
			t.Errorf("expected database path ./mangax.db, got %s", config.Database.Path)
		}

		if config.Limiter.RequestsPerMinute != 28 {
			t.Errorf("expected 28 requests per minute, got %d", config.Limiter.RequestsPerMinute)
		}

		if config.Limiter.SafetyMargin != 50*time.Millisecond {
			t.Errorf("expected 50ms safety margin, got %v", config.Limiter.SafetyMargin)
		}

		if config.Cache.TTL != 24*time.Hour {
			t.Errorf("expected 24h cache ttl, got %v", config.Cache.TTL)
		}

		if config.Catalog.IDChunkSize != 25 {
			t.Errorf("expected id chunk size 25, got %d", config.Catalog.IDChunkSize)
		}

		if config.Matching.ConfidenceThreshold != 75 || config.Matching.ConfidenceMargin != 20 {
			t.Errorf("expected threshold 75 / margin 20, got %d / %d",
				config.Matching.ConfidenceThreshold, config.Matching.ConfidenceMargin)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[limiter]
requests_per_minute = 10
safety_margin = "100ms"

[matching]
confidence_threshold = 80
excluded_formats = ["NOVEL", "ONE_SHOT"]

[cache]
ttl = "1h"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Limiter.RequestsPerMinute != 10 {
			t.Errorf("expected 10 requests per minute, got %d", config.Limiter.RequestsPerMinute)
		}

		if config.Cache.TTL != time.Hour {
			t.Errorf("expected 1h ttl, got %v", config.Cache.TTL)
		}

		if len(config.Matching.ExcludedFormats) != 2 {
			t.Errorf("expected 2 excluded formats, got %v", config.Matching.ExcludedFormats)
		}

		if config.Catalog.PerPage != 50 {
			t.Errorf("unset values should keep defaults, got per_page %d", config.Catalog.PerPage)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tt := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero rpm", mutate: func(c *Config) { c.Limiter.RequestsPerMinute = 0 }},
		{name: "negative margin", mutate: func(c *Config) { c.Limiter.SafetyMargin = -time.Second }},
		{name: "per page too large", mutate: func(c *Config) { c.Catalog.PerPage = 51 }},
		{name: "threshold above 100", mutate: func(c *Config) { c.Matching.ConfidenceThreshold = 101 }},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }},
		{name: "zero chunk size", mutate: func(c *Config) { c.Catalog.IDChunkSize = 0 }},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(config)

			if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
