package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/runger/perfdb/internal/config"
	"github.com/runger/perfdb/internal/database"
	plog "github.com/runger/perfdb/internal/log"
)

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.DefaultPaths().ConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if flagDatabase != "" {
		cfg.Database.Path = flagDatabase
	}
	if flagSchemasDir != "" {
		cfg.Database.SchemasDir = flagSchemasDir
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagEcho {
		cfg.Database.Echo = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// env is an open database plus the config and logger it was opened with.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	handle    *database.Handle
	logCloser io.Closer
}

// openEnv loads the configuration and opens the configured database.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closer, err := plog.Open(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	h, err := database.Open(ctx, database.Options{
		Config:           cfg,
		BaselineRevision: cfg.Database.BaselineRevision,
		Echo:             cfg.Database.Echo,
		Logger:           logger,
	})
	if err != nil {
		_ = closer.Close()
		if database.IsFatal(err) {
			return nil, fmt.Errorf("%w (was the database created by perfdb?)", err)
		}
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, handle: h, logCloser: closer}, nil
}

// Close releases the handle, disposes the engine and closes the log file.
func (e *env) Close() error {
	var result *multierror.Error
	if err := e.handle.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := database.DefaultRegistry().Dispose(e.handle.Path()); err != nil {
		result = multierror.Append(result, err)
	}
	if err := e.logCloser.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
