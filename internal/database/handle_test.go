package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/perfdb/internal/config"
	"github.com/runger/perfdb/internal/suitedb"
	"github.com/runger/perfdb/internal/testsuite"
)

func TestOpen_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Options{Registry: newTestRegistry(t), Logger: quietLogger()})
	assert.Error(t, err)
}

func TestOpen_PathFromConfig(t *testing.T) {
	t.Parallel()

	path := tempDBPath(t)
	cfg := &config.Config{Database: config.DatabaseConfig{Path: path}}
	h := openTestHandle(t, newTestRegistry(t), "", cfg)

	assert.Equal(t, "sqlite:///"+path, h.Path())
}

func TestOpen_ResolvesEnumerations(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t, newTestRegistry(t), tempDBPath(t), nil)

	assert.Equal(t, map[string]testsuite.StatusKind{
		"PASS": testsuite.Pass, "FAIL": testsuite.Fail, "XFAIL": testsuite.XFail,
	}, h.StatusKinds())
	assert.Equal(t, map[string]testsuite.SampleType{
		"Real": testsuite.Real, "Status": testsuite.Status, "Hash": testsuite.Hash,
	}, h.SampleTypes())
}

func TestOpen_MissingStatusKindIsFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newTestRegistry(t)
	path := tempDBPath(t)

	h := openTestHandle(t, reg, path, nil)
	_, err := h.Engine().DB().ExecContext(ctx, `DELETE FROM status_kinds WHERE name = 'XFAIL'`)
	require.NoError(t, err)

	_, err = Open(ctx, Options{Path: path, Registry: reg, Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrCatalogNotInitialized)

	var ce *CatalogError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "status_kinds", ce.Table)
	assert.Equal(t, []string{"XFAIL"}, ce.Missing)
}

func TestOpen_MissingSampleTypeIsFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newTestRegistry(t)
	path := tempDBPath(t)

	h := openTestHandle(t, reg, path, nil)
	_, err := h.Engine().DB().ExecContext(ctx, `UPDATE sample_types SET id = 7 WHERE name = 'Hash'`)
	require.NoError(t, err)

	_, err = Open(ctx, Options{Path: path, Registry: reg, Logger: quietLogger()})
	var ce *CatalogError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "sample_types", ce.Table)
	assert.Equal(t, []string{"Hash"}, ce.Missing)
	assert.False(t, IsFatal(ErrSuiteNotFound))
}

func TestHandle_SettingsReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newTestRegistry(t)
	cfg := &config.Config{Database: config.DatabaseConfig{SchemasDir: t.TempDir()}}

	h, err := Open(ctx, Options{Path: tempDBPath(t), Config: cfg, BaselineRevision: 12, Echo: true, Registry: reg, Logger: quietLogger()})
	require.NoError(t, err)
	defer h.Close()

	again, err := OpenSettings(ctx, h.Settings(), reg, quietLogger())
	require.NoError(t, err)
	defer again.Close()

	assert.Equal(t, h.Settings(), again.Settings())
	assert.Equal(t, 12, again.BaselineRevision())
	assert.Same(t, h.Engine(), again.Engine())
}

func TestImportIntoSchema(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := openTestHandle(t, newTestRegistry(t), tempDBPath(t), nil)
	require.NoError(t, h.Suites().AddSuite(ntsDefinition(t)))

	run, status, err := h.ImportIntoSchema(ctx, ntsReport(), "nts", suitedb.ImportOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, suitedb.Added, status)
	assert.False(t, h.Session().InTransaction())

	a, err := h.Suites().GetOrFail(ctx, "nts")
	require.NoError(t, err)
	samples, err := a.Samples(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "bar", samples[0].TestName)
	assert.Equal(t, map[string]any{"compile_time": 0.25, "hash": "d41d8cd9"}, samples[0].Values)
	assert.Equal(t, "foo", samples[1].TestName)
	assert.Equal(t, map[string]any{"compile_time": 1.5, "exec_status": testsuite.Pass}, samples[1].Values)

	countAll := func() []int64 {
		var out []int64
		for _, fn := range []func(context.Context) (int64, error){h.MachineCount, h.RunCount, h.TestCount, h.SampleCount} {
			n, err := fn(ctx)
			require.NoError(t, err)
			out = append(out, n)
		}
		return out
	}
	assert.Equal(t, []int64{1, 1, 2, 2}, countAll())

	repeat, status, err := h.ImportIntoSchema(ctx, ntsReport(), "nts", suitedb.ImportOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, suitedb.RepeatOfExistingRun, status)
	assert.Equal(t, run.ID, repeat.ID)
	assert.Equal(t, []int64{1, 1, 2, 2}, countAll())

	// A report without a schema field is accepted for any suite.
	rep := ntsReport()
	rep.Schema = ""
	rep.Run.StartTime = "2024-01-16 10:30:00"
	rep.Run.EndTime = "2024-01-16 10:45:00"
	_, status, err = h.ImportIntoSchema(ctx, rep, "nts", suitedb.ImportOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, suitedb.Added, status)
	assert.Equal(t, []int64{1, 2, 2, 4}, countAll())
}

func TestImportIntoSchema_SchemaMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := openTestHandle(t, newTestRegistry(t), tempDBPath(t), nil)
	require.NoError(t, h.Suites().AddSuite(ntsDefinition(t)))

	rep := ntsReport()
	rep.Schema = "compile"
	_, _, err := h.ImportIntoSchema(ctx, rep, "nts", suitedb.ImportOptions{Commit: true})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	// Nothing was written: the suite was not even instantiated.
	assert.False(t, h.Suites().Cached("nts"))
	assert.False(t, h.Session().InTransaction())
	names, err := h.Catalog().PersistedNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestImportIntoSchema_UnknownSuite(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t, newTestRegistry(t), tempDBPath(t), nil)

	_, _, err := h.ImportIntoSchema(context.Background(), ntsReport(), "nts", suitedb.ImportOptions{Commit: true})
	assert.ErrorIs(t, err, ErrSuiteNotFound)
}

func TestHandle_CloseDiscardsPendingWork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newTestRegistry(t)
	path := tempDBPath(t)

	h, err := Open(ctx, Options{Path: path, Registry: reg, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, h.Suites().AddSuite(ntsDefinition(t)))
	_, _, err = h.ImportIntoSchema(ctx, ntsReport(), "nts", suitedb.ImportOptions{})
	require.NoError(t, err)
	require.True(t, h.Session().InTransaction())
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	// The tables and the catalog row were committed on their own; the run
	// was not kept.
	other := openTestHandle(t, reg, path, nil)
	names, err := other.Suites().Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"nts"}, names)

	var runs int
	require.NoError(t, other.Engine().DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM "nts_Run"`).Scan(&runs))
	assert.Zero(t, runs)
}

func TestHandle_Echo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h, err := Open(context.Background(), Options{Path: tempDBPath(t), Echo: true, Registry: newTestRegistry(t), Logger: logger})
	require.NoError(t, err)
	defer h.Close()

	assert.Contains(t, buf.String(), `"msg":"sql"`)
	assert.Contains(t, buf.String(), "status_kinds")
}
