package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver
)

const (
	// walCheckpointInterval is how often file-backed SQLite engines
	// checkpoint the WAL to keep it from growing without bound.
	walCheckpointInterval = 5 * time.Minute

	// fileMaxOpenConns bounds the pool of a file-backed SQLite engine.
	// WAL allows concurrent readers; writers queue on busy_timeout.
	fileMaxOpenConns = 4
)

// Engine is a pooled connection to one physical database. It is safe for
// concurrent use by multiple sessions.
type Engine struct {
	closeErr  error
	db        *sql.DB
	logger    *slog.Logger
	stopCh    chan struct{}
	stoppedCh chan struct{}
	path      string
	target    Target
	closeOnce sync.Once
}

// OpenEngine opens a pooled engine for the given connection path.
func OpenEngine(ctx context.Context, path string, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path = NormalizePath(path)
	target, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	if target.File != "" {
		if dir := filepath.Dir(target.File); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(target.Dialect.Driver(), target.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configurePool(db, target)

	// Ping to establish connection and ensure pragmas are applied
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	e := &Engine{
		db:        db,
		logger:    logger,
		path:      path,
		target:    target,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	if target.File != "" {
		go e.walCheckpointLoop()
	} else {
		close(e.stoppedCh)
	}
	return e, nil
}

func configurePool(db *sql.DB, target Target) {
	switch {
	case target.Memory:
		// Every connection to :memory: is a separate database, so the
		// pool must never grow past or recycle its single connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	case target.File != "":
		db.SetMaxOpenConns(fileMaxOpenConns)
		db.SetMaxIdleConns(fileMaxOpenConns)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(4)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
}

// Path returns the normalized connection path the engine was opened with.
func (e *Engine) Path() string { return e.path }

// Dialect returns the engine's SQL dialect.
func (e *Engine) Dialect() Dialect { return e.target.Dialect }

// DB returns the underlying pool for direct access.
func (e *Engine) DB() *sql.DB { return e.db }

// Dispose closes every pooled connection. It is safe to call more than once.
func (e *Engine) Dispose() error {
	e.closeOnce.Do(func() {
		close(e.stopCh)
		<-e.stoppedCh

		if e.target.File != "" {
			// Final checkpoint before closing to merge WAL into main db
			_, _ = e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
		e.closeErr = e.db.Close()
	})
	return e.closeErr
}

func (e *Engine) walCheckpointLoop() {
	defer close(e.stoppedCh)

	ticker := time.NewTicker(walCheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if _, err := e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				e.logger.Warn("WAL checkpoint failed", "path", e.path, "error", err)
			}
		}
	}
}
