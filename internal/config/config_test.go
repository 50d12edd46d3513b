package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Log.Level != "info" {
		t.Errorf("Expected log.level=info, got %s", cfg.Log.Level)
	}
	if !strings.HasSuffix(cfg.Database.Path, "perf.db") {
		t.Errorf("Expected database.path to end with perf.db, got %s", cfg.Database.Path)
	}
	if cfg.Database.Echo {
		t.Error("Expected database.echo=false by default")
	}
	if cfg.Import.Strict {
		t.Error("Expected import.strict=false by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestConfigGetSet(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		key   string
		value string
	}{
		{"database.path", "postgres://localhost/perf"},
		{"database.schemas_dir", "/etc/perfdb/schemas"},
		{"database.baseline_revision", "42"},
		{"database.echo", "true"},
		{"import.strict", "true"},
		{"import.compute_derived_value", "true"},
		{"log.level", "debug"},
		{"log.file", "/tmp/perfdb.log"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := cfg.Set(tt.key, tt.value); err != nil {
				t.Fatalf("Set(%q) error: %v", tt.key, err)
			}
			got, err := cfg.Get(tt.key)
			if err != nil {
				t.Fatalf("Get(%q) error: %v", tt.key, err)
			}
			if got != tt.value {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.value)
			}
		})
	}

	if len(ListKeys()) != len(tests) {
		t.Errorf("ListKeys() has %d keys, want %d", len(ListKeys()), len(tests))
	}
}

func TestConfigSet_Invalid(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		key   string
		value string
	}{
		{"database.baseline_revision", "abc"},
		{"database.baseline_revision", "-1"},
		{"database.echo", "maybe"},
		{"import.strict", "yes please"},
		{"log.level", "verbose"},
		{"log.color", "true"},
		{"server.port", "80"},
		{"nodot", "x"},
	}

	for _, tt := range tests {
		if err := cfg.Set(tt.key, tt.value); err == nil {
			t.Errorf("Set(%q, %q) expected error", tt.key, tt.value)
		}
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	t.Setenv("PERFDB_DATABASE", "")
	t.Setenv("PERFDB_LOG_LEVEL", "")
	t.Setenv("PERFDB_DEBUG", "")

	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log.level, got %s", cfg.Log.Level)
	}
}

func TestLoadFromFile_RoundTrip(t *testing.T) {
	t.Setenv("PERFDB_DATABASE", "")
	t.Setenv("PERFDB_SCHEMAS_DIR", "")
	t.Setenv("PERFDB_LOG_LEVEL", "")
	t.Setenv("PERFDB_DEBUG", "")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Database.Path = "sqlite:///tmp/perf.db"
	cfg.Database.BaselineRevision = 7
	cfg.Import.ComputeDerivedValue = true
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("Loaded config differs:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	t.Setenv("PERFDB_LOG_LEVEL", "")
	t.Setenv("PERFDB_DEBUG", "")

	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badYAML, []byte("database: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(badYAML); err == nil {
		t.Error("Expected parse error")
	}

	badLevel := filepath.Join(dir, "level.yaml")
	if err := os.WriteFile(badLevel, []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(badLevel); err == nil {
		t.Error("Expected validation error")
	}

	negative := filepath.Join(dir, "negative.yaml")
	if err := os.WriteFile(negative, []byte("database:\n  baseline_revision: -3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(negative); err == nil {
		t.Error("Expected validation error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PERFDB_DATABASE", "postgres://db/perf")
	t.Setenv("PERFDB_SCHEMAS_DIR", "/srv/schemas")
	t.Setenv("PERFDB_DEBUG", "1")
	t.Setenv("PERFDB_LOG_LEVEL", "")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Database.Path != "postgres://db/perf" {
		t.Errorf("Expected PERFDB_DATABASE override, got %s", cfg.Database.Path)
	}
	if cfg.Database.SchemasDir != "/srv/schemas" {
		t.Errorf("Expected PERFDB_SCHEMAS_DIR override, got %s", cfg.Database.SchemasDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected PERFDB_DEBUG to force debug, got %s", cfg.Log.Level)
	}

	// An explicit level wins over PERFDB_DEBUG; invalid levels are ignored.
	t.Setenv("PERFDB_LOG_LEVEL", "warn")
	cfg.ApplyEnvOverrides()
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected PERFDB_LOG_LEVEL=warn, got %s", cfg.Log.Level)
	}
	t.Setenv("PERFDB_LOG_LEVEL", "chatty")
	cfg.ApplyEnvOverrides()
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected invalid PERFDB_LOG_LEVEL to be ignored, got %s", cfg.Log.Level)
	}
}

func TestDefaultPaths_XDG(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG test not applicable on Windows")
	}

	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	paths := DefaultPaths()

	if paths.ConfigFile() != "/custom/config/perfdb/config.yaml" {
		t.Errorf("ConfigFile should respect XDG_CONFIG_HOME: %s", paths.ConfigFile())
	}
	if paths.DatabaseFile() != "/custom/data/perfdb/perf.db" {
		t.Errorf("DatabaseFile should respect XDG_DATA_HOME: %s", paths.DatabaseFile())
	}
	if paths.SchemasDir() != "/custom/config/perfdb/schemas" {
		t.Errorf("SchemasDir should live under ConfigDir: %s", paths.SchemasDir())
	}
}
