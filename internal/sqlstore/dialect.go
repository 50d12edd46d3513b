// Package sqlstore provides the SQL plumbing shared by every database handle:
// connection-path parsing, per-backend dialects, pooled engines and sessions.
package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedPath is returned when a connection path names a backend
// this package cannot open.
var ErrUnsupportedPath = errors.New("unsupported connection path")

// ColumnKind is the storage class of a column, independent of the backend.
type ColumnKind int

const (
	KindInteger ColumnKind = iota
	KindReal
	KindText
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	name     string
	driver   string
	numbered bool // $1, $2 ... instead of ?
	serialPK string
	intType  string
	realType string
	textType string
}

var (
	// SQLite is the dialect for modernc.org/sqlite engines.
	SQLite = Dialect{
		name:     "sqlite",
		driver:   "sqlite",
		serialPK: "INTEGER PRIMARY KEY AUTOINCREMENT",
		intType:  "INTEGER",
		realType: "REAL",
		textType: "TEXT",
	}

	// Postgres is the dialect for pgx engines.
	Postgres = Dialect{
		name:     "postgres",
		driver:   "pgx",
		numbered: true,
		serialPK: "BIGSERIAL PRIMARY KEY",
		intType:  "BIGINT",
		realType: "DOUBLE PRECISION",
		textType: "TEXT",
	}
)

// Name returns the backend name ("sqlite" or "postgres").
func (d Dialect) Name() string { return d.name }

// Driver returns the database/sql driver name.
func (d Dialect) Driver() string { return d.driver }

// SerialPrimaryKey returns the column definition of an auto-incrementing key.
func (d Dialect) SerialPrimaryKey() string { return d.serialPK }

// ColumnType maps a ColumnKind to this backend's type name.
func (d Dialect) ColumnType(k ColumnKind) string {
	switch k {
	case KindInteger:
		return d.intType
	case KindReal:
		return d.realType
	default:
		return d.textType
	}
}

// Quote quotes an identifier. Identifiers are validated upstream, so the
// only escaping needed is for embedded quotes.
func (d Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Rebind rewrites ? placeholders into the dialect's bind syntax. Question
// marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NormalizePath applies the default sqlite scheme to paths that carry no
// database type, so "perf.db" becomes "sqlite:///perf.db".
func NormalizePath(path string) string {
	if HasNoDatabaseType(path) {
		return "sqlite:///" + path
	}
	return path
}

// HasNoDatabaseType reports whether path lacks a scheme prefix.
func HasNoDatabaseType(path string) bool {
	return !strings.Contains(path, "://")
}

// Target is a parsed connection path.
type Target struct {
	Dialect Dialect
	// File is the SQLite database file; empty for memory and non-SQLite targets.
	File string
	// Memory is true for a private in-memory SQLite database.
	Memory bool
	// DSN is what gets handed to sql.Open.
	DSN string
}

// ParsePath resolves a normalized connection path into a Target.
func ParsePath(path string) (Target, error) {
	path = NormalizePath(path)
	scheme, rest, _ := strings.Cut(path, "://")

	switch strings.ToLower(scheme) {
	case "sqlite":
		file := strings.TrimPrefix(rest, "/")
		if file == "" || file == ":memory:" {
			return Target{
				Dialect: SQLite,
				Memory:  true,
				DSN:     "file::memory:?_pragma=foreign_keys(1)",
			}, nil
		}
		// modernc.org/sqlite uses _pragma=name(value) syntax
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", file)
		return Target{Dialect: SQLite, File: file, DSN: dsn}, nil
	case "postgres", "postgresql":
		return Target{Dialect: Postgres, DSN: path}, nil
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedPath, path)
	}
}
