// Package suitedb binds one test suite definition to live tables and
// implements report import and queries against them.
package suitedb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/runger/perfdb/internal/report"
	"github.com/runger/perfdb/internal/sqlstore"
	"github.com/runger/perfdb/internal/testsuite"
)

var (
	// ErrInvalidReport is returned for reports that fail validation.
	ErrInvalidReport = report.ErrInvalidReport
	// ErrUnknownMetric is returned in strict mode for samples naming a
	// metric the suite does not define.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrSampleTypeMismatch is returned when a sample declares a type that
	// differs from its metric's type.
	ErrSampleTypeMismatch = errors.New("sample type does not match metric")
	// ErrInvalidValue is returned for sample values that cannot be stored
	// in their metric's column.
	ErrInvalidValue = errors.New("invalid sample value")
	// ErrRunNotFound is returned by Run for unknown ids.
	ErrRunNotFound = errors.New("run not found")
)

// Accessor owns the tables of one suite and performs imports and queries
// through its handle's session. It is not safe for concurrent use.
type Accessor struct {
	def           *testsuite.Definition
	session       *sqlstore.Session
	logger        *slog.Logger
	tables        Tables
	createdTables bool
}

// New binds def to session. With createTables set the suite's tables are
// created if they do not exist yet; otherwise they are assumed to exist.
func New(ctx context.Context, session *sqlstore.Session, def *testsuite.Definition, createTables bool, logger *slog.Logger) (*Accessor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Accessor{
		def:     def,
		session: session,
		logger:  logger.With("suite", def.Name),
		tables:  BuildTables(def),
	}
	if createTables {
		if err := session.ExecDDL(ctx, a.tables.CreateStatements(session.Dialect())...); err != nil {
			return nil, fmt.Errorf("failed to create tables for suite %q: %w", def.Name, err)
		}
		a.createdTables = true
		a.logger.Debug("suite tables ensured")
	}
	return a, nil
}

// Name returns the suite name.
func (a *Accessor) Name() string { return a.def.Name }

// Definition returns the suite definition the accessor was built from.
func (a *Accessor) Definition() *testsuite.Definition { return a.def }

// Tables returns the suite's table descriptions.
func (a *Accessor) Tables() Tables { return a.tables }

// CreatedTables reports whether this accessor created (or ensured) its
// tables when it was built.
func (a *Accessor) CreatedTables() bool { return a.createdTables }

// Count returns the number of rows in the table for entity e.
func (a *Accessor) Count(ctx context.Context, e Entity) (int64, error) {
	d := a.session.Dialect()
	var n int64
	err := a.session.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+d.Quote(a.tables.Get(e).Name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s rows of suite %q: %w", e, a.def.Name, err)
	}
	return n, nil
}

// MachineCount returns the number of machines.
func (a *Accessor) MachineCount(ctx context.Context) (int64, error) {
	return a.Count(ctx, EntityMachine)
}

// RunCount returns the number of runs.
func (a *Accessor) RunCount(ctx context.Context) (int64, error) {
	return a.Count(ctx, EntityRun)
}

// TestCount returns the number of tests.
func (a *Accessor) TestCount(ctx context.Context) (int64, error) {
	return a.Count(ctx, EntityTest)
}

// SampleCount returns the number of samples.
func (a *Accessor) SampleCount(ctx context.Context) (int64, error) {
	return a.Count(ctx, EntitySample)
}
