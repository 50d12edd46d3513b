package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the perfdb configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Import   ImportConfig   `yaml:"import"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds database-related settings.
type DatabaseConfig struct {
	Path             string `yaml:"path"`              // Connection path (file path, sqlite:// or postgres:// URL)
	SchemasDir       string `yaml:"schemas_dir"`       // Directory of *.yaml suite definitions
	BaselineRevision int    `yaml:"baseline_revision"` // Revision comparisons are anchored to
	Echo             bool   `yaml:"echo"`              // Log every SQL statement
}

// ImportConfig holds report import settings.
type ImportConfig struct {
	Strict              bool `yaml:"strict"`                // Reject samples for unknown metrics
	ComputeDerivedValue bool `yaml:"compute_derived_value"` // Store one derived sample per test
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // Log file path (empty = stderr)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	paths := DefaultPaths()
	return &Config{
		Database: DatabaseConfig{
			Path:       paths.DatabaseFile(),
			SchemasDir: paths.SchemasDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil // Return defaults if file doesn't exist
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get retrieves a configuration value by dot-separated key.
// For example: "database.path" or "import.strict"
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "database":
		return c.getDatabaseField(field)
	case "import":
		return c.getImportField(field)
	case "log":
		return c.getLogField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "database":
		return c.setDatabaseField(field, value)
	case "import":
		return c.setImportField(field, value)
	case "log":
		return c.setLogField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func splitKey(key string) (section, field string, err error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func (c *Config) getDatabaseField(field string) (string, error) {
	switch field {
	case "path":
		return c.Database.Path, nil
	case "schemas_dir":
		return c.Database.SchemasDir, nil
	case "baseline_revision":
		return strconv.Itoa(c.Database.BaselineRevision), nil
	case "echo":
		return strconv.FormatBool(c.Database.Echo), nil
	default:
		return "", fmt.Errorf("unknown field: database.%s", field)
	}
}

func (c *Config) setDatabaseField(field, value string) error {
	switch field {
	case "path":
		c.Database.Path = value
	case "schemas_dir":
		c.Database.SchemasDir = value
	case "baseline_revision":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for baseline_revision: %w", err)
		}
		if v < 0 {
			return errors.New("baseline_revision must be >= 0")
		}
		c.Database.BaselineRevision = v
	case "echo":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for echo: %w", err)
		}
		c.Database.Echo = v
	default:
		return fmt.Errorf("unknown field: database.%s", field)
	}
	return nil
}

func (c *Config) getImportField(field string) (string, error) {
	switch field {
	case "strict":
		return strconv.FormatBool(c.Import.Strict), nil
	case "compute_derived_value":
		return strconv.FormatBool(c.Import.ComputeDerivedValue), nil
	default:
		return "", fmt.Errorf("unknown field: import.%s", field)
	}
}

func (c *Config) setImportField(field, value string) error {
	v, err := strconv.ParseBool(value)
	switch field {
	case "strict":
		if err != nil {
			return fmt.Errorf("invalid value for strict: %w", err)
		}
		c.Import.Strict = v
	case "compute_derived_value":
		if err != nil {
			return fmt.Errorf("invalid value for compute_derived_value: %w", err)
		}
		c.Import.ComputeDerivedValue = v
	default:
		return fmt.Errorf("unknown field: import.%s", field)
	}
	return nil
}

func (c *Config) getLogField(field string) (string, error) {
	switch field {
	case "level":
		return c.Log.Level, nil
	case "file":
		return c.Log.File, nil
	default:
		return "", fmt.Errorf("unknown field: log.%s", field)
	}
}

func (c *Config) setLogField(field, value string) error {
	switch field {
	case "level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", value)
		}
		c.Log.Level = value
	case "file":
		c.Log.File = value
	default:
		return fmt.Errorf("unknown field: log.%s", field)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must not be empty")
	}

	if c.Database.BaselineRevision < 0 {
		return errors.New("database.baseline_revision must be >= 0")
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PERFDB_DATABASE"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("PERFDB_SCHEMAS_DIR"); v != "" {
		c.Database.SchemasDir = v
	}
	if v := os.Getenv("PERFDB_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
	if v := os.Getenv("PERFDB_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
}

// ListKeys returns the configuration keys accepted by Get and Set.
func ListKeys() []string {
	return []string{
		"database.path",
		"database.schemas_dir",
		"database.baseline_revision",
		"database.echo",
		"import.strict",
		"import.compute_derived_value",
		"log.level",
		"log.file",
	}
}
