// Package config provides configuration loading and structs for the Kensaku server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Vector  VectorConfig  `yaml:"vector"`
	Search  SearchConfig  `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RebuildRatePerMinute caps POST /api/v1/index/rebuild. Zero means the default; negative disables the limit.
	RebuildRatePerMinute int `yaml:"rebuild_rate_per_minute"`
}

// StorageConfig holds paths for the database and the index artifacts.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	// VectorIndexPath and VectorMappingPath are the two sibling persistence artifacts of the vector index.
	VectorIndexPath   string `yaml:"vector_index_path"`
	VectorMappingPath string `yaml:"vector_mapping_path"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	IndexType         string `yaml:"index_type"`
	Dimensions        int    `yaml:"dimensions"`
	Compression       string `yaml:"compression"`
	PersistOnShutdown bool   `yaml:"persist_on_shutdown"`
	RebuildOnStart    bool   `yaml:"rebuild_on_start"`
}

// SearchConfig holds query engine settings.
type SearchConfig struct {
	DefaultLimit      int     `yaml:"default_limit"`
	MaxLimit          int     `yaml:"max_limit"`
	KeywordTitleBoost float64 `yaml:"keyword_title_boost"`
	Fuzzy             bool    `yaml:"fuzzy"`
	HistoryEnabled    *bool   `yaml:"history_enabled"`
}

// HistoryEnabledOrDefault returns whether searches are logged; defaults to true when unset.
func (s *SearchConfig) HistoryEnabledOrDefault() bool {
	if s.HistoryEnabled != nil {
		return *s.HistoryEnabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.VectorMappingPath = expandPath(cfg.Storage.VectorMappingPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work regardless of environment.
func (c *Config) Validate() error {
	var errs []error
	if c.Vector.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("vector.dimensions must be positive, got %d", c.Vector.Dimensions))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		errs = append(errs, fmt.Errorf("search limits invalid: default %d, max %d", c.Search.DefaultLimit, c.Search.MaxLimit))
	}
	if c.Storage.VectorIndexPath != "" && c.Storage.VectorIndexPath == c.Storage.VectorMappingPath {
		errs = append(errs, errors.New("vector_index_path and vector_mapping_path must differ"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" is kept as is.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
