package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/runger/perfdb/internal/config"
	plog "github.com/runger/perfdb/internal/log"
	"github.com/runger/perfdb/internal/report"
	"github.com/runger/perfdb/internal/sqlstore"
	"github.com/runger/perfdb/internal/suitedb"
	"github.com/runger/perfdb/internal/testsuite"
)

// Options are the inputs of Open.
type Options struct {
	// Config supplies the schemas directory. It may be nil.
	Config *config.Config
	// Registry defaults to DefaultRegistry().
	Registry *Registry
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Path is the connection path. When empty, Config.Database.Path is used.
	Path             string
	BaselineRevision int
	// Echo logs every statement of the handle's session.
	Echo bool
}

// Settings are the inputs needed to open an equivalent Handle, for example
// in another process.
type Settings struct {
	Config           *config.Config
	Path             string
	BaselineRevision int
	Echo             bool
}

// Handle is an open database: a session on the registry's engine for the
// path plus the suites stored in it. A Handle must not be used from several
// goroutines at once; open one per goroutine instead. Handles on the same
// path share an engine.
type Handle struct {
	registry    *Registry
	engine      *sqlstore.Engine
	session     *sqlstore.Session
	catalog     *Catalog
	suites      *Suites
	logger      *slog.Logger
	statusKinds map[string]testsuite.StatusKind
	sampleTypes map[string]testsuite.SampleType
	settings    Settings
}

// Open opens the database at opts.Path: it acquires the path's engine,
// migrates the path once per registry, opens a session, checks the status
// kind and sample type rows and loads the suite catalog, including the
// definitions in the configured schemas directory.
//
// Missing status kind or sample type rows produce a *CatalogError.
func Open(ctx context.Context, opts Options) (*Handle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	path := opts.Path
	if path == "" && opts.Config != nil {
		path = opts.Config.Database.Path
	}
	if path == "" {
		return nil, errors.New("no database path given")
	}
	path = sqlstore.NormalizePath(path)

	engine, err := reg.acquireMigrated(ctx, path)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		registry: reg,
		engine:   engine,
		session:  sqlstore.NewSession(engine, logger, opts.Echo),
		logger:   logger,
		settings: Settings{
			Path:             path,
			Config:           opts.Config,
			BaselineRevision: opts.BaselineRevision,
			Echo:             opts.Echo,
		},
	}
	if err := h.init(ctx); err != nil {
		_ = h.session.Close()
		return nil, err
	}
	return h, nil
}

// OpenSettings opens a Handle equivalent to the one s was taken from.
func OpenSettings(ctx context.Context, s Settings, reg *Registry, logger *slog.Logger) (*Handle, error) {
	return Open(ctx, Options{
		Path:             s.Path,
		Config:           s.Config,
		BaselineRevision: s.BaselineRevision,
		Echo:             s.Echo,
		Registry:         reg,
		Logger:           logger,
	})
}

func (h *Handle) init(ctx context.Context) error {
	var err error
	if h.statusKinds, err = resolveEnum(ctx, h.session, "status_kinds", testsuite.StatusKinds); err != nil {
		return err
	}
	if h.sampleTypes, err = resolveEnum(ctx, h.session, "sample_types", testsuite.SampleTypes); err != nil {
		return err
	}

	h.catalog = NewCatalog(h.session, h.logger)
	persisted, err := h.catalog.LoadPersisted(ctx)
	if err != nil {
		return err
	}
	loaded := 0
	if cfg := h.settings.Config; cfg != nil {
		loaded = h.catalog.LoadDirectory(ctx, cfg.Database.SchemasDir)
	}
	h.suites = newSuites(h.catalog, h.session, h.logger)

	plog.LogOpened(h.logger, h.settings.Path, len(persisted)+loaded)
	return nil
}

// resolveEnum checks that every member of want is stored in table under
// its own id and returns the members by name.
func resolveEnum[T ~int](ctx context.Context, s *sqlstore.Session, table string, want []T) (map[string]T, error) {
	rows, err := s.QueryContext(ctx, "SELECT id, name FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	stored := map[string]int64{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		stored[strings.ToUpper(name)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resolved := make(map[string]T, len(want))
	var missing []string
	for _, m := range want {
		name := fmt.Sprint(m)
		if id, ok := stored[strings.ToUpper(name)]; !ok || id != int64(m) {
			missing = append(missing, name)
			continue
		}
		resolved[name] = m
	}
	if len(missing) > 0 {
		return nil, &CatalogError{Table: table, Missing: missing}
	}
	return resolved, nil
}

// Close discards uncommitted work and releases the session. The engine
// stays in the registry for other handles on the same path.
func (h *Handle) Close() error {
	return h.session.Close()
}

// Settings returns the inputs this handle was opened with.
func (h *Handle) Settings() Settings { return h.settings }

// Path returns the normalized connection path.
func (h *Handle) Path() string { return h.settings.Path }

// BaselineRevision returns the revision comparisons are anchored to.
func (h *Handle) BaselineRevision() int { return h.settings.BaselineRevision }

// Engine returns the shared engine of the handle's path.
func (h *Handle) Engine() *sqlstore.Engine { return h.engine }

// Session returns the handle's session.
func (h *Handle) Session() *sqlstore.Session { return h.session }

// Catalog returns the suite catalog.
func (h *Handle) Catalog() *Catalog { return h.catalog }

// Suites returns the suite accessor cache.
func (h *Handle) Suites() *Suites { return h.suites }

// StatusKinds returns the stored status kinds by name.
func (h *Handle) StatusKinds() map[string]testsuite.StatusKind { return h.statusKinds }

// SampleTypes returns the stored sample types by name.
func (h *Handle) SampleTypes() map[string]testsuite.SampleType { return h.sampleTypes }

// Commit commits the session's pending work.
func (h *Handle) Commit() error { return h.session.Commit() }

// Rollback discards the session's pending work.
func (h *Handle) Rollback() error { return h.session.Rollback() }

// ImportIntoSchema imports rep into the suite named schemaName. A report
// that names another suite is rejected with ErrSchemaMismatch before
// anything is written.
func (h *Handle) ImportIntoSchema(ctx context.Context, rep *report.Report, schemaName string, opts suitedb.ImportOptions) (*suitedb.Run, suitedb.ImportStatus, error) {
	if rep.Schema != "" && rep.Schema != schemaName {
		return nil, 0, fmt.Errorf("%w: report is for %q, target is %q", ErrSchemaMismatch, rep.Schema, schemaName)
	}
	a, err := h.suites.GetOrFail(ctx, schemaName)
	if err != nil {
		return nil, 0, err
	}
	run, status, err := a.ImportReport(ctx, rep, opts)
	if err != nil {
		return nil, 0, err
	}
	plog.LogImport(h.logger, schemaName, run.ID, status.String())
	return run, status, nil
}

// The counts below sum over every suite, instantiating all of them. They
// serve callers that predate per-suite storage.

// MachineCount returns the number of machines across all suites.
func (h *Handle) MachineCount(ctx context.Context) (int64, error) {
	return h.count(ctx, suitedb.EntityMachine)
}

// RunCount returns the number of runs across all suites.
func (h *Handle) RunCount(ctx context.Context) (int64, error) {
	return h.count(ctx, suitedb.EntityRun)
}

// TestCount returns the number of tests across all suites.
func (h *Handle) TestCount(ctx context.Context) (int64, error) {
	return h.count(ctx, suitedb.EntityTest)
}

// SampleCount returns the number of samples across all suites.
func (h *Handle) SampleCount(ctx context.Context) (int64, error) {
	return h.count(ctx, suitedb.EntitySample)
}

func (h *Handle) count(ctx context.Context, e suitedb.Entity) (int64, error) {
	var total int64
	err := h.suites.ForEach(ctx, func(_ string, a *suitedb.Accessor) error {
		n, err := a.Count(ctx, e)
		total += n
		return err
	})
	return total, err
}
