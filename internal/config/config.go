// Package config loads the ingestion engine's configuration from layered
// sources: built-in defaults, an optional YAML file, then environment
// variables, in ascending priority.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search when set.
const ConfigPathEnvVar = "INGEST_CONFIG_PATH"

// DefaultConfigPaths lists where a config file is searched for, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/exness-ingest/config.yaml",
}

// ArchiveConfig configures the monthly archive source.
type ArchiveConfig struct {
	BaseURL string `koanf:"base_url"`
	TempDir string `koanf:"temp_dir"`
}

// StorageConfig configures the per-pair DuckDB files.
type StorageConfig struct {
	DataDir                string `koanf:"data_dir"`
	Threads                int    `koanf:"threads"`
	MaxMemory              string `koanf:"max_memory"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	Caller    bool   `koanf:"caller"`
	Timestamp bool   `koanf:"timestamp"`
}

// ObservabilityConfig configures the /healthz and /metrics HTTP surface.
type ObservabilityConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// Config is the ingestion engine's full runtime configuration.
type Config struct {
	Pairs                  []string            `koanf:"pairs"`
	StartYear              int                 `koanf:"start_year"`
	StartMonth             int                 `koanf:"start_month"`
	DeleteArchiveAfterLoad bool                `koanf:"delete_archive_after_load"`
	RunTimeout             time.Duration       `koanf:"run_timeout"`
	MaxMonthParallelism    int                 `koanf:"max_month_parallelism"`
	ForceRedownload        bool                `koanf:"force_redownload"`
	Archive                ArchiveConfig       `koanf:"archive"`
	Storage                StorageConfig       `koanf:"storage"`
	Logging                LoggingConfig       `koanf:"logging"`
	Observability          ObservabilityConfig `koanf:"observability"`
}

// defaultConfig returns sane defaults, applied before any file or
// environment override.
func defaultConfig() *Config {
	return &Config{
		Pairs:                  []string{"EURUSD"},
		StartYear:              2020,
		StartMonth:             1,
		DeleteArchiveAfterLoad: true,
		RunTimeout:             30 * time.Minute,
		MaxMonthParallelism:    1,
		ForceRedownload:        false,
		Archive: ArchiveConfig{
			BaseURL: "https://ticks.exness.example/v1",
			TempDir: "/tmp/exness-ingest",
		},
		Storage: StorageConfig{
			DataDir:                "./data",
			Threads:                0,
			MaxMemory:              "4GB",
			PreserveInsertionOrder: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "console",
			Caller:    false,
			Timestamp: true,
		},
		Observability: ObservabilityConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Load builds the configuration with the documented precedence:
// defaults, then an optional YAML file, then environment variables
// (INGEST_ prefixed, double-underscore nested, e.g. INGEST_STORAGE__DATA_DIR).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("INGEST_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return cfg, nil
}

// envTransformFunc maps INGEST_STORAGE__DATA_DIR to storage.data_dir.
func envTransformFunc(s string) string {
	s = strings.TrimPrefix(s, "INGEST_")
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "__", ".")
	return s
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks invariants that cannot be expressed in the struct tags.
func (c *Config) Validate() error {
	if len(c.Pairs) == 0 {
		return fmt.Errorf("at least one currency pair must be configured")
	}
	for _, pair := range c.Pairs {
		if len(pair) != 6 {
			return fmt.Errorf("pair %q must be a six-letter currency code", pair)
		}
	}
	if c.StartMonth < 1 || c.StartMonth > 12 {
		return fmt.Errorf("start_month %d out of range [1,12]", c.StartMonth)
	}
	if c.Archive.BaseURL == "" {
		return fmt.Errorf("archive.base_url must be set")
	}
	if c.MaxMonthParallelism < 1 {
		return fmt.Errorf("max_month_parallelism %d must be >= 1", c.MaxMonthParallelism)
	}
	return nil
}
