// Package database opens perfdb databases. A Registry shares one engine per
// connection path and migrates each path once; a Handle binds a session to
// that engine and exposes the test suites stored in it.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	plog "github.com/runger/perfdb/internal/log"
	"github.com/runger/perfdb/internal/migrate"
	"github.com/runger/perfdb/internal/sanitize"
	"github.com/runger/perfdb/internal/sqlstore"
)

// MigrateFunc brings the catalog of an engine to the current version. It
// must be idempotent.
type MigrateFunc func(ctx context.Context, engine *sqlstore.Engine, logger *slog.Logger) error

// OpenFunc opens an engine for a normalized connection path.
type OpenFunc func(ctx context.Context, path string, logger *slog.Logger) (*sqlstore.Engine, error)

const maxAcquireAttempts = 3

// Option configures a Registry.
type Option func(*Registry)

// WithMigrator replaces the migration procedure.
func WithMigrator(fn MigrateFunc) Option {
	return func(r *Registry) { r.migrate = fn }
}

// WithEngineOpener replaces how engines are opened.
func WithEngineOpener(fn OpenFunc) Option {
	return func(r *Registry) { r.open = fn }
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// entry is the registry state of one connection path.
type entry struct {
	engine *sqlstore.Engine
	// migrateMu serializes migration of this path only.
	migrateMu sync.Mutex
	migrated  bool
}

// Registry caches one engine per connection path and records which paths
// have been migrated. It is safe for concurrent use.
type Registry struct {
	entries map[string]*entry
	migrate MigrateFunc
	open    OpenFunc
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: map[string]*entry{},
		migrate: migrate.UpdateWithLogger,
		open:    sqlstore.OpenEngine,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry { return NewRegistry() })

// DefaultRegistry returns the process-wide registry used when a Handle is
// opened without one.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// Acquire returns the engine for path, opening it on first use. Concurrent
// callers for the same path get the same engine.
func (r *Registry) Acquire(ctx context.Context, path string) (*sqlstore.Engine, error) {
	path = sqlstore.NormalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[path]; ok {
		return e.engine, nil
	}
	engine, err := r.open(ctx, path, r.logger)
	if err != nil {
		return nil, err
	}
	r.entries[path] = &entry{engine: engine}
	r.logger.Debug("engine created", "path", sanitize.Path(path))
	return engine, nil
}

// EnsureMigrated migrates path unless that already happened since it was
// acquired. Concurrent callers for one path wait for a single migration;
// other paths are not blocked. A failed migration leaves the path
// unmigrated so the next caller retries. It fails with ErrEngineDisposed
// when engine is no longer the one the registry holds for path.
func (r *Registry) EnsureMigrated(ctx context.Context, path string, engine *sqlstore.Engine) error {
	path = sqlstore.NormalizePath(path)

	e := r.lookup(path)
	if e == nil || e.engine != engine {
		return fmt.Errorf("%w: %s", ErrEngineDisposed, sanitize.Path(path))
	}

	e.migrateMu.Lock()
	defer e.migrateMu.Unlock()

	// Dispose may have taken the entry while we waited.
	if r.lookup(path) != e {
		return fmt.Errorf("%w: %s", ErrEngineDisposed, sanitize.Path(path))
	}
	if e.migrated {
		return nil
	}
	if err := r.migrate(ctx, engine, r.logger); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", sanitize.Path(path), err)
	}
	e.migrated = true
	plog.LogMigrated(r.logger, path, migrate.SchemaVersion)
	return nil
}

// acquireMigrated is Acquire followed by EnsureMigrated. An engine disposed
// in between is replaced by a fresh one.
func (r *Registry) acquireMigrated(ctx context.Context, path string) (*sqlstore.Engine, error) {
	for attempt := 1; ; attempt++ {
		engine, err := r.Acquire(ctx, path)
		if err != nil {
			return nil, err
		}
		err = r.EnsureMigrated(ctx, path, engine)
		if err == nil {
			return engine, nil
		}
		if !errors.Is(err, ErrEngineDisposed) || attempt == maxAcquireAttempts {
			return nil, err
		}
		r.logger.Debug("engine disposed while opening, retrying", "path", sanitize.Path(path), "attempt", attempt)
	}
}

func (r *Registry) lookup(path string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[path]
}

// IsMigrated reports whether path has been migrated since it was acquired.
func (r *Registry) IsMigrated(path string) bool {
	e := r.lookup(sqlstore.NormalizePath(path))
	if e == nil {
		return false
	}

	e.migrateMu.Lock()
	defer e.migrateMu.Unlock()
	return e.migrated
}

// Paths returns the normalized paths that currently hold an engine.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.entries))
	for p := range r.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Dispose closes the engine for path and forgets the path, so the next
// Acquire opens a fresh engine and the next EnsureMigrated migrates again.
// Disposing an unknown path is a no-op.
func (r *Registry) Dispose(path string) error {
	path = sqlstore.NormalizePath(path)

	r.mu.Lock()
	e, ok := r.entries[path]
	delete(r.entries, path)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.disposeEntry(path, e)
}

// DisposeAll disposes every cached path and returns the combined errors.
func (r *Registry) DisposeAll() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[string]*entry{}
	r.mu.Unlock()

	var result *multierror.Error
	for path, e := range entries {
		if err := r.disposeEntry(path, e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (r *Registry) disposeEntry(path string, e *entry) error {
	// Wait for an in-flight migration before closing its engine.
	e.migrateMu.Lock()
	defer e.migrateMu.Unlock()

	e.migrated = false
	if err := e.engine.Dispose(); err != nil {
		return fmt.Errorf("failed to dispose engine for %s: %w", sanitize.Path(path), err)
	}
	r.logger.Debug("engine disposed", "path", sanitize.Path(path))
	return nil
}
