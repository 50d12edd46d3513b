package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	plog "github.com/runger/perfdb/internal/log"
	"github.com/runger/perfdb/internal/sqlstore"
	"github.com/runger/perfdb/internal/testsuite"
)

// Catalog resolves suite definitions. Persisted definitions live in the
// test_suites table and its field tables; external definitions are held in
// an in-memory overlay until their tables are first created.
type Catalog struct {
	session      *sqlstore.Session
	logger       *slog.Logger
	persisted    map[string]*testsuite.Definition
	overlay      map[string]*testsuite.Definition
	overlayOrder []string
}

// NewCatalog creates a catalog reading through session.
func NewCatalog(session *sqlstore.Session, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		session:   session,
		logger:    logger,
		persisted: map[string]*testsuite.Definition{},
		overlay:   map[string]*testsuite.Definition{},
	}
}

type suiteRow struct {
	def *testsuite.Definition
	id  int64
}

// LoadPersisted reads every persisted definition, ordered by id, and
// refreshes the catalog's copy of them.
func (c *Catalog) LoadPersisted(ctx context.Context) ([]*testsuite.Definition, error) {
	defs, err := c.loadSuites(ctx, "")
	if err != nil {
		return nil, err
	}
	c.persisted = make(map[string]*testsuite.Definition, len(defs))
	for _, def := range defs {
		c.persisted[def.Name] = def
	}
	return defs, nil
}

// Persisted returns the persisted definition named name, or nil.
func (c *Catalog) Persisted(ctx context.Context, name string) (*testsuite.Definition, error) {
	if def, ok := c.persisted[name]; ok {
		return def, nil
	}
	defs, err := c.loadSuites(ctx, "WHERE name = ?", name)
	if err != nil || len(defs) == 0 {
		return nil, err
	}
	c.persisted[name] = defs[0]
	return defs[0], nil
}

// PersistedNames returns the names of persisted suites ordered by id.
func (c *Catalog) PersistedNames(ctx context.Context) ([]string, error) {
	rows, err := c.session.QueryContext(ctx, `SELECT name FROM test_suites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list test suites: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan test suite name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RegisterExternal adds def to the overlay. A later registration under the
// same name replaces the earlier one; persisted rows are never touched. A
// name that differs only in case from a known suite is rejected with
// ErrSuiteNameConflict.
func (c *Catalog) RegisterExternal(def *testsuite.Definition) error {
	if other := c.foldedMatch(def.Name); other != "" {
		return fmt.Errorf("%w: %q and %q", ErrSuiteNameConflict, def.Name, other)
	}
	if _, ok := c.overlay[def.Name]; !ok {
		c.overlayOrder = append(c.overlayOrder, def.Name)
	}
	c.overlay[def.Name] = def
	return nil
}

// foldedMatch returns an overlay or loaded persisted name equal to name
// ignoring case but not identical to it.
func (c *Catalog) foldedMatch(name string) string {
	for _, known := range []map[string]*testsuite.Definition{c.overlay, c.persisted} {
		for n := range known {
			if n != name && strings.EqualFold(n, name) {
				return n
			}
		}
	}
	return ""
}

// External returns the overlay definition named name.
func (c *Catalog) External(name string) (*testsuite.Definition, bool) {
	def, ok := c.overlay[name]
	return def, ok
}

// Names returns persisted names first, then overlay names that are not
// persisted, in registration order. No suite is instantiated.
func (c *Catalog) Names(ctx context.Context) ([]string, error) {
	names, err := c.PersistedNames(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range c.overlayOrder {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names, nil
}

// LoadDirectory registers the suite definitions found in dir and returns
// how many were registered. Every file is loaded on its own: unreadable or
// invalid files are logged and skipped. A file is also skipped when its
// suite is already persisted or was registered by an earlier file.
func (c *Catalog) LoadDirectory(ctx context.Context, dir string) int {
	if dir == "" {
		return 0
	}
	results, err := testsuite.ScanDir(dir)
	if err != nil {
		c.logger.Error("failed to scan schemas directory", "dir", dir, "error", err)
		return 0
	}
	if len(results) == 0 {
		return 0
	}

	persisted, err := c.PersistedNames(ctx)
	if err != nil {
		c.logger.Error("failed to list persisted suites", "error", err)
		return 0
	}
	skip := make(map[string]bool, len(persisted)+len(c.overlay))
	for _, n := range persisted {
		skip[strings.ToLower(n)] = true
	}
	for n := range c.overlay {
		skip[strings.ToLower(n)] = true
	}

	loaded := 0
	for _, res := range results {
		if res.Err != nil {
			plog.LogSchemaSkipped(c.logger, res.Path, res.Err)
			continue
		}
		name := res.Definition.Name
		if skip[strings.ToLower(name)] {
			c.logger.Warn("suite definition shadowed by an earlier one", "file", res.Path, "suite", name)
			continue
		}
		if err := c.RegisterExternal(res.Definition); err != nil {
			plog.LogSchemaSkipped(c.logger, res.Path, err)
			continue
		}
		skip[strings.ToLower(name)] = true
		plog.LogSchemaLoaded(c.logger, res.Path, name)
		loaded++
	}
	return loaded
}

// CheckName fails with ErrSuiteNameConflict when a persisted suite has a
// name equal to name ignoring case but not identical to it.
func (c *Catalog) CheckName(ctx context.Context, name string) error {
	_, err := c.lookupFolded(ctx, name)
	return err
}

// lookupFolded reports whether name is persisted. A persisted name that
// matches only ignoring case is a conflict.
func (c *Catalog) lookupFolded(ctx context.Context, name string) (bool, error) {
	var existing string
	err := c.session.QueryRowContext(ctx,
		`SELECT name FROM test_suites WHERE lower(name) = lower(?)`, name).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up test suite %q: %w", name, err)
	case existing != name:
		return false, fmt.Errorf("%w: %q and %q", ErrSuiteNameConflict, name, existing)
	}
	return true, nil
}

// Save persists def unless a suite with its name is already persisted.
// It reports whether a row was written. With a transaction pending the
// write joins it; otherwise the row is committed before Save returns, so a
// lookup never leaves a write transaction open.
func (c *Catalog) Save(ctx context.Context, def *testsuite.Definition) (bool, error) {
	exists, err := c.lookupFolded(ctx, def.Name)
	if err != nil || exists {
		return false, err
	}

	err = c.session.WithTransaction(ctx, "save_suite", func() error {
		id, err := c.session.InsertReturningID(ctx,
			`INSERT INTO test_suites (name, db_key_name, version, description) VALUES (?, ?, ?, ?)`,
			def.Name, def.DBKeyName(), def.FormatVersion, def.Description)
		if err != nil {
			return err
		}
		for i, f := range def.Metrics {
			if _, err := c.session.ExecContext(ctx, `
				INSERT INTO sample_fields
				  (test_suite_id, name, type_id, ordinal, display_name, unit, unit_abbrev, bigger_is_better)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				id, f.Name, int(f.Type), i, f.DisplayName, f.Unit, f.UnitAbbrev, boolInt(f.BiggerIsBetter)); err != nil {
				return err
			}
		}
		for i, f := range def.MachineFields {
			if _, err := c.session.ExecContext(ctx,
				`INSERT INTO machine_fields (test_suite_id, name, ordinal) VALUES (?, ?, ?)`,
				id, f.Name, i); err != nil {
				return err
			}
		}
		for i, f := range def.RunFields {
			if _, err := c.session.ExecContext(ctx,
				`INSERT INTO run_fields (test_suite_id, name, is_order, ordinal) VALUES (?, ?, ?, ?)`,
				id, f.Name, boolInt(f.Order), i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to save test suite %q: %w", def.Name, err)
	}
	c.persisted[def.Name] = def
	return true, nil
}

// loadSuites reads suite rows matching where, then their fields. Field
// queries run only after the suite rows are closed.
func (c *Catalog) loadSuites(ctx context.Context, where string, args ...any) ([]*testsuite.Definition, error) {
	rows, err := c.session.QueryContext(ctx,
		`SELECT id, name, version, description FROM test_suites `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query test suites: %w", err)
	}

	var suites []suiteRow
	for rows.Next() {
		def := &testsuite.Definition{}
		var id int64
		if err := rows.Scan(&id, &def.Name, &def.FormatVersion, &def.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan test suite: %w", err)
		}
		suites = append(suites, suiteRow{id: id, def: def})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	defs := make([]*testsuite.Definition, 0, len(suites))
	for _, s := range suites {
		if err := c.loadFields(ctx, s); err != nil {
			return nil, fmt.Errorf("failed to load fields of suite %q: %w", s.def.Name, err)
		}
		defs = append(defs, s.def)
	}
	return defs, nil
}

func (c *Catalog) loadFields(ctx context.Context, s suiteRow) error {
	def := s.def

	err := c.scanAll(ctx, `
		SELECT name, type_id, display_name, unit, unit_abbrev, bigger_is_better
		FROM sample_fields WHERE test_suite_id = ? ORDER BY ordinal`, s.id,
		func(rows *sql.Rows) error {
			var f testsuite.Field
			var typeID, bigger int64
			if err := rows.Scan(&f.Name, &typeID, &f.DisplayName, &f.Unit, &f.UnitAbbrev, &bigger); err != nil {
				return err
			}
			f.Type = testsuite.SampleType(typeID)
			f.BiggerIsBetter = bigger != 0
			def.Metrics = append(def.Metrics, f)
			return nil
		})
	if err != nil {
		return err
	}

	err = c.scanAll(ctx, `SELECT name FROM machine_fields WHERE test_suite_id = ? ORDER BY ordinal`, s.id,
		func(rows *sql.Rows) error {
			var f testsuite.AuxField
			if err := rows.Scan(&f.Name); err != nil {
				return err
			}
			def.MachineFields = append(def.MachineFields, f)
			return nil
		})
	if err != nil {
		return err
	}

	return c.scanAll(ctx, `SELECT name, is_order FROM run_fields WHERE test_suite_id = ? ORDER BY ordinal`, s.id,
		func(rows *sql.Rows) error {
			var f testsuite.AuxField
			var order int64
			if err := rows.Scan(&f.Name, &order); err != nil {
				return err
			}
			f.Order = order != 0
			def.RunFields = append(def.RunFields, f)
			return nil
		})
}

func (c *Catalog) scanAll(ctx context.Context, query string, id int64, scan func(*sql.Rows) error) error {
	rows, err := c.session.QueryContext(ctx, query, id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
