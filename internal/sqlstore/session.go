package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrSessionClosed is returned when a write is attempted on a closed session.
var ErrSessionClosed = errors.New("session is closed")

// Session is a unit of work bound to an Engine. The first write lazily opens
// a transaction that stays open until Commit or Rollback, so callers can
// batch several imports into one atomic unit. Reads see the session's own
// uncommitted writes.
type Session struct {
	engine *Engine
	logger *slog.Logger
	tx     *sql.Tx
	mu     sync.Mutex
	echo   bool
	closed bool
}

// NewSession binds a new session to engine. When echo is set every statement
// is logged at info level.
func NewSession(engine *Engine, logger *slog.Logger, echo bool) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{engine: engine, logger: logger, echo: echo}
}

// Engine returns the engine this session is bound to.
func (s *Session) Engine() *Engine { return s.engine }

// Dialect returns the engine's SQL dialect.
func (s *Session) Dialect() Dialect { return s.engine.Dialect() }

// InTransaction reports whether uncommitted work is pending.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// ExecContext runs a write statement inside the session transaction,
// opening it if needed.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginLocked(ctx)
	if err != nil {
		return nil, err
	}
	query = s.prepare(query, args)
	return tx.ExecContext(ctx, query, args...)
}

// InsertReturningID runs an INSERT inside the session transaction and
// returns the generated id column.
func (s *Session) InsertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginLocked(ctx)
	if err != nil {
		return 0, err
	}
	query = s.prepare(query+" RETURNING id", args)

	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// QueryContext runs a read. It goes through the pending transaction when
// one is open and straight to the pool otherwise.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query = s.prepare(query, args)
	if s.tx != nil {
		return s.tx.QueryContext(ctx, query, args...)
	}
	return s.engine.db.QueryContext(ctx, query, args...)
}

// QueryRowContext is QueryContext for at most one row.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	query = s.prepare(query, args)
	if s.tx != nil {
		return s.tx.QueryRowContext(ctx, query, args...)
	}
	return s.engine.db.QueryRowContext(ctx, query, args...)
}

// ExecDDL runs schema statements. With a transaction pending they join it;
// otherwise they run in their own short transaction so a partial failure
// leaves nothing behind.
func (s *Session) ExecDDL(ctx context.Context, stmts ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.tx != nil {
		for _, stmt := range stmts {
			if _, err := s.tx.ExecContext(ctx, s.prepare(stmt, nil)); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := s.engine.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Best effort rollback on error

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, s.prepare(stmt, nil)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// WithSavepoint runs fn inside a named savepoint. If fn fails only its own
// writes are undone; earlier uncommitted work in the session survives.
func (s *Session) WithSavepoint(ctx context.Context, name string, fn func() error) error {
	ident := s.Dialect().Quote(name)
	if _, err := s.ExecContext(ctx, "SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := s.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+ident); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back savepoint: %w", rbErr))
		}
		_, _ = s.ExecContext(ctx, "RELEASE SAVEPOINT "+ident)
		return err
	}
	if _, err := s.ExecContext(ctx, "RELEASE SAVEPOINT "+ident); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// WithTransaction runs fn as one unit of work. With a transaction pending,
// fn joins it inside the savepoint name. Otherwise fn's writes get their
// own transaction, committed when fn succeeds and rolled back when it
// fails.
func (s *Session) WithTransaction(ctx context.Context, name string, fn func() error) error {
	if s.InTransaction() {
		return s.WithSavepoint(ctx, name, fn)
	}
	if err := fn(); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return s.Commit()
}

// Commit finalizes pending work. It is a no-op when nothing is pending.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if s.echo {
		s.logger.Info("sql", "statement", "COMMIT")
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards pending work. It is a no-op when nothing is pending.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbackLocked()
}

// Close discards pending work and rejects further writes. Reads after Close
// go straight to the engine pool. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.rollbackLocked()
}

func (s *Session) rollbackLocked() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if s.echo {
		s.logger.Info("sql", "statement", "ROLLBACK")
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (s *Session) beginLocked(ctx context.Context) (*sql.Tx, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	// The transaction outlives the call that opened it, so it must not be
	// rolled back when that call's context is cancelled.
	tx, err := s.engine.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if s.echo {
		s.logger.Info("sql", "statement", "BEGIN")
	}
	s.tx = tx
	return tx, nil
}

func (s *Session) prepare(query string, args []any) string {
	query = s.Dialect().Rebind(query)
	if s.echo {
		s.logger.Info("sql", "statement", query, "args", args)
	}
	return query
}
