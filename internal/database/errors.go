package database

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSuiteNotFound is returned when no persisted or registered suite
	// has the requested name.
	ErrSuiteNotFound = errors.New("test suite not found")

	// ErrSchemaMismatch is returned when a report names a different suite
	// than the one it is imported into.
	ErrSchemaMismatch = errors.New("report schema does not match target suite")

	// ErrEngineDisposed is returned by Registry.EnsureMigrated when the
	// engine was disposed after it was acquired.
	ErrEngineDisposed = errors.New("engine was disposed")

	// ErrSuiteNameConflict is returned when a suite name differs only in
	// case from a suite that is already known. Such suites would share
	// tables.
	ErrSuiteNameConflict = errors.New("test suite name conflicts with an existing suite")

	// ErrCatalogNotInitialized is the cause of every *CatalogError.
	ErrCatalogNotInitialized = errors.New("database catalog is not initialized")
)

// CatalogError reports required lookup rows missing from a migrated
// database. The database is uninitialized or corrupt; callers should stop
// rather than continue with a broken handle.
type CatalogError struct {
	Table   string
	Missing []string
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("%s: table %s is missing %s",
		ErrCatalogNotInitialized, e.Table, strings.Join(e.Missing, ", "))
}

func (e *CatalogError) Unwrap() error { return ErrCatalogNotInitialized }

// IsFatal reports whether err means the database cannot be used at all.
func IsFatal(err error) bool {
	var ce *CatalogError
	return errors.As(err, &ce)
}
