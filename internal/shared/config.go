package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Limiter  LimiterConfig  `toml:"limiter"`
	Retry    RetryConfig    `toml:"retry"`
	Matching MatchingConfig `toml:"matching"`
	Cache    CacheConfig    `toml:"cache"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CatalogConfig contains settings for the target catalog's GraphQL API.
//
// AccessToken is optional and is only attached as a bearer token; it is never acquired here.
type CatalogConfig struct {
	Endpoint    string        `toml:"endpoint"`
	AccessToken string        `toml:"access_token"`
	PerPage     int           `toml:"per_page"`
	MaxResults  int           `toml:"max_results"`
	IDChunkSize int           `toml:"id_chunk_size"`
	Timeout     time.Duration `toml:"timeout"`
}

// LimiterConfig controls the outbound request queue.
type LimiterConfig struct {
	RequestsPerMinute int           `toml:"requests_per_minute"`
	SafetyMargin      time.Duration `toml:"safety_margin"`
}

// RetryConfig controls retry of transient catalog failures.
type RetryConfig struct {
	MaxRetries int           `toml:"max_retries"`
	BaseDelay  time.Duration `toml:"base_delay"`
}

// MatchingConfig contains scoring and status-decision knobs.
type MatchingConfig struct {
	MinTitleLength      int      `toml:"min_title_length"`
	Precision           int      `toml:"precision"`
	PreferredTitle      string   `toml:"preferred_title"`
	PreferenceWeight    float64  `toml:"preference_weight"`
	ConfidenceThreshold int      `toml:"confidence_threshold"`
	ConfidenceMargin    int      `toml:"confidence_margin"`
	ExactOnly           bool     `toml:"exact_only"`
	ExcludedFormats     []string `toml:"excluded_formats"`
	FallbackFloor       int      `toml:"fallback_floor"`
}

// CacheConfig contains search result cache settings.
type CacheConfig struct {
	TTL       time.Duration `toml:"ttl"`
	KeyLength int           `toml:"key_length"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the engine cannot operate with.
func (c *Config) Validate() error {
	switch {
	case c.Limiter.RequestsPerMinute <= 0:
		return fmt.Errorf("%w: limiter.requests_per_minute must be positive", ErrInvalidConfig)
	case c.Limiter.SafetyMargin < 0:
		return fmt.Errorf("%w: limiter.safety_margin must not be negative", ErrInvalidConfig)
	case c.Retry.MaxRetries < 0:
		return fmt.Errorf("%w: retry.max_retries must not be negative", ErrInvalidConfig)
	case c.Catalog.PerPage <= 0 || c.Catalog.PerPage > 50:
		return fmt.Errorf("%w: catalog.per_page must be between 1 and 50", ErrInvalidConfig)
	case c.Catalog.IDChunkSize <= 0:
		return fmt.Errorf("%w: catalog.id_chunk_size must be positive", ErrInvalidConfig)
	case c.Matching.ConfidenceThreshold < 0 || c.Matching.ConfidenceThreshold > 100:
		return fmt.Errorf("%w: matching.confidence_threshold must be within 0..100", ErrInvalidConfig)
	case c.Matching.ConfidenceMargin < 0 || c.Matching.ConfidenceMargin > 100:
		return fmt.Errorf("%w: matching.confidence_margin must be within 0..100", ErrInvalidConfig)
	case c.Matching.FallbackFloor < 0 || c.Matching.FallbackFloor > 100:
		return fmt.Errorf("%w: matching.fallback_floor must be within 0..100", ErrInvalidConfig)
	case c.Cache.TTL <= 0:
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the host:port pair the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
