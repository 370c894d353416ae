package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
vector:
  dimensions: 4
  compression: lz4
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Vector.Dimensions != 4 || cfg.Vector.Compression != "lz4" {
		t.Errorf("unexpected vector config: %+v", cfg.Vector)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/documents.db"
  vector_index_path: "./data/indices/vectors.bin"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "documents.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantIndex := filepath.Join(dir, "data", "indices", "vectors.bin")
	if cfg.Storage.VectorIndexPath != wantIndex {
		t.Errorf("vector_index_path = %s, want %s", cfg.Storage.VectorIndexPath, wantIndex)
	}
	if cfg.Storage.VectorMappingPath != wantIndex+".mapping.json" {
		t.Errorf("vector_mapping_path = %s, want sibling of %s", cfg.Storage.VectorMappingPath, wantIndex)
	}
}

func TestLoad_memoryDatabaseKept(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  database_path: \":memory:\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DatabasePath != ":memory:" {
		t.Errorf("database_path = %s, want :memory:", cfg.Storage.DatabasePath)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"negative dimensions", "vector:\n  dimensions: -1\n", "vector.dimensions"},
		{"max below default", "search:\n  default_limit: 50\n  max_limit: 20\n", "search limits"},
		{"same artifact paths", "storage:\n  vector_index_path: /tmp/v\n  vector_mapping_path: /tmp/v\n", "must differ"},
		{"bad yaml", "server: [", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Server.RebuildRatePerMinute != 6 {
		t.Errorf("default rebuild rate: got %d", cfg.Server.RebuildRatePerMinute)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("default limit: got %d", cfg.Search.DefaultLimit)
	}
	if cfg.Search.KeywordTitleBoost != 10.0 {
		t.Errorf("default keyword_title_boost: got %f, want 10.0", cfg.Search.KeywordTitleBoost)
	}
	if cfg.Vector.Dimensions != 384 || cfg.Vector.IndexType != "flat" || cfg.Vector.Compression != "zstd" {
		t.Errorf("vector defaults: got %+v", cfg.Vector)
	}
	if cfg.Storage.VectorMappingPath != cfg.Storage.VectorIndexPath+".mapping.json" {
		t.Errorf("mapping path should be sibling of index path: got %s", cfg.Storage.VectorMappingPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSearchConfig_HistoryEnabledOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		s := &SearchConfig{}
		if got := s.HistoryEnabledOrDefault(); !got {
			t.Errorf("HistoryEnabledOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		s := &SearchConfig{HistoryEnabled: &f}
		if got := s.HistoryEnabledOrDefault(); got {
			t.Errorf("HistoryEnabledOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Vector:  VectorConfig{Dimensions: 8, RebuildOnStart: true},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Vector.Dimensions != 8 || !loaded.Vector.RebuildOnStart {
		t.Errorf("loaded vector config: got %+v", loaded.Vector)
	}
}
