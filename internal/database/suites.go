package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/runger/perfdb/internal/sqlstore"
	"github.com/runger/perfdb/internal/suitedb"
	"github.com/runger/perfdb/internal/testsuite"
)

// Suites is a read-through cache of suite accessors, keyed by suite name
// and owned by one Handle. An accessor is built on first access and reused
// afterwards; a cached accessor is never rebuilt, so a suite must not
// change shape once it has been accessed. Suites is not safe for
// concurrent use.
type Suites struct {
	catalog *Catalog
	session *sqlstore.Session
	logger  *slog.Logger
	cache   map[string]*suitedb.Accessor
}

func newSuites(catalog *Catalog, session *sqlstore.Session, logger *slog.Logger) *Suites {
	return &Suites{
		catalog: catalog,
		session: session,
		logger:  logger,
		cache:   map[string]*suitedb.Accessor{},
	}
}

// Get returns the accessor for name. The overlay is consulted before the
// persisted catalog; an overlay suite has its tables created and its
// definition saved when first accessed. The catalog row joins a pending
// transaction and is committed on its own otherwise. The boolean is false
// when no suite has the name.
func (s *Suites) Get(ctx context.Context, name string) (*suitedb.Accessor, bool, error) {
	if a, ok := s.cache[name]; ok {
		return a, true, nil
	}

	def, createTables := s.catalog.External(name)
	if !createTables {
		var err error
		if def, err = s.catalog.Persisted(ctx, name); err != nil {
			return nil, false, err
		}
		if def == nil {
			return nil, false, nil
		}
	}

	if createTables {
		if err := s.catalog.CheckName(ctx, name); err != nil {
			return nil, false, err
		}
	}

	a, err := suitedb.New(ctx, s.session, def, createTables, s.logger)
	if err != nil {
		return nil, false, err
	}
	if createTables {
		saved, err := s.catalog.Save(ctx, def)
		if err != nil {
			return nil, false, err
		}
		if saved {
			s.logger.Info("test suite registered", "suite", name)
		}
	}
	s.cache[name] = a
	return a, true, nil
}

// GetOrFail is Get with a missing suite reported as ErrSuiteNotFound.
func (s *Suites) GetOrFail(ctx context.Context, name string) (*suitedb.Accessor, error) {
	a, ok, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSuiteNotFound, name)
	}
	return a, nil
}

// Names lists every known suite without instantiating any: persisted
// suites first, then registered ones that are not persisted.
func (s *Suites) Names(ctx context.Context) ([]string, error) {
	return s.catalog.Names(ctx)
}

// ForEach calls fn with the accessor of every known suite, in Names order,
// and stops at the first error. Every suite is instantiated, which creates
// the tables of registered suites; prefer Names when only names are needed.
func (s *Suites) ForEach(ctx context.Context, fn func(name string, a *suitedb.Accessor) error) error {
	names, err := s.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		a, err := s.GetOrFail(ctx, name)
		if err != nil {
			return err
		}
		if err := fn(name, a); err != nil {
			return err
		}
	}
	return nil
}

// AddSuite registers def in the overlay, replacing an earlier registration
// with the same name. An accessor already cached under that name is kept.
// Names that differ from a known suite only in case are rejected with
// ErrSuiteNameConflict.
func (s *Suites) AddSuite(def *testsuite.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	return s.catalog.RegisterExternal(def)
}

// Cached reports whether an accessor for name has been built.
func (s *Suites) Cached(name string) bool {
	_, ok := s.cache[name]
	return ok
}
