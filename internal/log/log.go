// Package log provides JSON-lines structured logging for perfdb.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/runger/perfdb/internal/sanitize"
)

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelInfo)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: os.Stderr,
		Level:  slog.LevelInfo,
	}
}

// New creates a new JSON-lines structured logger:
//
//	{"ts":"2024-01-15T10:30:00Z","level":"INFO","msg":"database opened","path":"sqlite:///perf.db"}
//
// Log levels:
//   - debug: Verbose (enabled via PERFDB_DEBUG=1)
//   - info: Opens, migrations, imports
//   - warn: Skipped schema files, skipped samples
//   - error: Failures requiring attention
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "ts"
			}
			return a
		},
	}

	return slog.New(slog.NewJSONHandler(output, opts))
}

// ParseLevel converts a configured level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Open creates a logger writing to file, or to stderr when file is empty.
// The returned closer releases the file and is never nil.
func Open(level, file string) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if file == "" {
		return New(&Config{Output: os.Stderr, Level: lvl}), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(&Config{Output: f, Level: lvl}), f, nil
}

// LogOpened logs a database handle being opened.
func LogOpened(logger *slog.Logger, path string, suites int) {
	logger.Info("database opened", "path", sanitize.Path(path), "suites", suites)
}

// LogMigrated logs a connection path being brought to the current version.
func LogMigrated(logger *slog.Logger, path string, version int) {
	logger.Info("database migrated", "path", sanitize.Path(path), "schema_version", version)
}

// LogSchemaLoaded logs a suite definition loaded from a file.
func LogSchemaLoaded(logger *slog.Logger, file, suite string) {
	logger.Debug("suite definition loaded", "file", file, "suite", suite)
}

// LogSchemaSkipped logs a suite definition file that could not be used.
func LogSchemaSkipped(logger *slog.Logger, file string, err error) {
	logger.Error("suite definition skipped", "file", file, "error", err)
}

// LogImport logs the outcome of a report import.
func LogImport(logger *slog.Logger, suite string, runID int64, status string) {
	logger.Info("report import finished", "suite", suite, "run_id", runID, "status", status)
}
