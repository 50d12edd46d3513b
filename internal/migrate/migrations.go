// Package migrate brings the shared catalog tables of a perfdb database to
// the current schema version. Per-suite tables are not migrated here; they
// are derived from suite definitions at runtime.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/runger/perfdb/internal/sanitize"
	"github.com/runger/perfdb/internal/sqlstore"
)

// SchemaVersion is the newest catalog version this code understands.
const SchemaVersion = 4

// ErrSchemaVersionTooNew is returned when the database schema version
// exceeds the version supported by this code. This prevents data corruption
// from running old code against a newer schema.
var ErrSchemaVersionTooNew = errors.New("database schema version is newer than supported; upgrade perfdb")

// Migration represents a single forward-only migration. SQL is rendered per
// dialect and may hold several statements separated by semicolons.
type Migration struct {
	SQL     func(d sqlstore.Dialect) string
	Name    string
	Version int
}

// Migrations returns the list of all migrations in order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "catalog", SQL: catalogV1},
		{Version: 2, Name: "suite_fields", SQL: suiteFieldsV2},
		{Version: 3, Name: "suite_metric_metadata", SQL: metricMetadataV3},
		{Version: 4, Name: "suite_key_nocase", SQL: suiteKeyNoCaseV4},
	}
}

// Tables lists the catalog tables that exist after all migrations.
var Tables = []string{
	"schema_migrations",
	"status_kinds",
	"sample_types",
	"test_suites",
	"sample_fields",
	"machine_fields",
	"run_fields",
}

// Update applies all pending migrations. It is idempotent: running it on an
// up-to-date database does nothing.
func Update(ctx context.Context, engine *sqlstore.Engine) error {
	return UpdateWithLogger(ctx, engine, slog.Default())
}

// UpdateWithLogger is Update with an explicit logger.
func UpdateWithLogger(ctx context.Context, engine *sqlstore.Engine, logger *slog.Logger) error {
	db := engine.DB()
	d := engine.Dialect()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_ts BIGINT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion, err := GetSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Refuse to run if DB version is newer than supported
	if currentVersion > SchemaVersion {
		return fmt.Errorf("%w: database version %d, supported version %d",
			ErrSchemaVersionTooNew, currentVersion, SchemaVersion)
	}

	for _, m := range Migrations() {
		if m.Version <= currentVersion {
			continue
		}
		if err := applyMigration(ctx, db, d, m); err != nil {
			return fmt.Errorf("migration v%d (%s) failed: %w", m.Version, m.Name, err)
		}
		logger.Info("migration applied", "path", sanitize.Path(engine.Path()), "version", m.Version, "name", m.Name)
	}
	return nil
}

// GetSchemaVersion returns the highest applied migration version, or 0.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// applyMigration applies a single migration within a transaction.
func applyMigration(ctx context.Context, db *sql.DB, d sqlstore.Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Best effort rollback on error

	for _, stmt := range splitStatements(m.SQL(d)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, d.Rebind(`
		INSERT INTO schema_migrations (version, name, applied_ts)
		VALUES (?, ?, ?)
	`), m.Version, m.Name, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// ValidateSchema checks that all catalog tables can be queried.
func ValidateSchema(ctx context.Context, db *sql.DB) error {
	for _, table := range Tables {
		rows, err := db.QueryContext(ctx, "SELECT 1 FROM "+table+" LIMIT 1")
		if err != nil {
			return fmt.Errorf("table %q does not exist: %w", table, err)
		}
		rows.Close()
	}
	return nil
}

// splitStatements splits a migration script on semicolons. Migration
// scripts contain no semicolons inside literals.
func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// catalogV1 creates the global lookup tables and the suite catalog.
func catalogV1(d sqlstore.Dialect) string {
	return fmt.Sprintf(`
-- Status kinds
CREATE TABLE IF NOT EXISTS status_kinds (
  id INTEGER PRIMARY KEY,
  name VARCHAR(256) NOT NULL UNIQUE
);

INSERT INTO status_kinds (id, name) VALUES (0, 'PASS'), (1, 'FAIL'), (2, 'XFAIL')
  ON CONFLICT DO NOTHING;

-- Sample types
CREATE TABLE IF NOT EXISTS sample_types (
  id INTEGER PRIMARY KEY,
  name VARCHAR(256) NOT NULL UNIQUE
);

INSERT INTO sample_types (id, name) VALUES (1, 'Real'), (2, 'Status'), (3, 'Hash')
  ON CONFLICT DO NOTHING;

-- Test suites
CREATE TABLE IF NOT EXISTS test_suites (
  id %s,
  name VARCHAR(256) NOT NULL UNIQUE,
  db_key_name VARCHAR(256) NOT NULL UNIQUE,
  version VARCHAR(16) NOT NULL,
  description TEXT NOT NULL DEFAULT ''
)
`, d.SerialPrimaryKey())
}

// suiteFieldsV2 adds the per-suite field catalogs.
func suiteFieldsV2(d sqlstore.Dialect) string {
	intType := d.ColumnType(sqlstore.KindInteger)
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS sample_fields (
  id %[1]s,
  test_suite_id %[2]s NOT NULL REFERENCES test_suites(id),
  name VARCHAR(256) NOT NULL,
  type_id INTEGER NOT NULL REFERENCES sample_types(id),
  ordinal INTEGER NOT NULL,
  UNIQUE (test_suite_id, name)
);

CREATE TABLE IF NOT EXISTS machine_fields (
  id %[1]s,
  test_suite_id %[2]s NOT NULL REFERENCES test_suites(id),
  name VARCHAR(256) NOT NULL,
  ordinal INTEGER NOT NULL,
  UNIQUE (test_suite_id, name)
);

CREATE TABLE IF NOT EXISTS run_fields (
  id %[1]s,
  test_suite_id %[2]s NOT NULL REFERENCES test_suites(id),
  name VARCHAR(256) NOT NULL,
  is_order INTEGER NOT NULL DEFAULT 0,
  ordinal INTEGER NOT NULL,
  UNIQUE (test_suite_id, name)
)
`, d.SerialPrimaryKey(), intType)
}

// metricMetadataV3 adds display and aggregation metadata to sample fields.
func metricMetadataV3(sqlstore.Dialect) string {
	return `
ALTER TABLE sample_fields ADD COLUMN display_name TEXT NOT NULL DEFAULT '';
ALTER TABLE sample_fields ADD COLUMN unit TEXT NOT NULL DEFAULT '';
ALTER TABLE sample_fields ADD COLUMN unit_abbrev TEXT NOT NULL DEFAULT '';
ALTER TABLE sample_fields ADD COLUMN bigger_is_better INTEGER NOT NULL DEFAULT 0
`
}

// suiteKeyNoCaseV4 keeps suite table prefixes unique ignoring case: SQLite
// resolves table names case-insensitively, so nts and NTS would share
// tables.
func suiteKeyNoCaseV4(sqlstore.Dialect) string {
	return `
CREATE UNIQUE INDEX IF NOT EXISTS test_suites_db_key_name_nocase ON test_suites (lower(db_key_name))
`
}
