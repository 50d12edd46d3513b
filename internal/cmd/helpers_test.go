package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/runger/perfdb/internal/report"
)

const ntsSchema = `format_version: '2'
name: nts
metrics:
  - {name: compile_time, type: Real, unit: seconds}
  - {name: exec_status, type: Status}
  - {name: hash, type: Hash}
run_fields:
  - {name: llvm_project_revision, order: true}
machine_fields:
  - {name: hardware}
`

// testEnv points the persistent flags at a fresh database and schemas
// directory and restores every command global afterwards.
type testEnv struct {
	dir        string
	dbPath     string
	schemasDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	for _, key := range []string{"PERFDB_DATABASE", "PERFDB_SCHEMAS_DIR", "PERFDB_LOG_LEVEL", "PERFDB_DEBUG"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	e := &testEnv{
		dir:        dir,
		dbPath:     filepath.Join(dir, "perf.db"),
		schemasDir: filepath.Join(dir, "schemas"),
	}
	require.NoError(t, os.MkdirAll(e.schemasDir, 0o755))

	oldConfig, oldDatabase, oldSchemas, oldLevel, oldEcho := flagConfig, flagDatabase, flagSchemasDir, flagLogLevel, flagEcho
	oldStrict, oldDerived, oldMerge, oldDryRun := importStrict, importDerived, importMerge, importDryRun
	oldLimit := runsLimit
	t.Cleanup(func() {
		runsLimit = oldLimit
		flagConfig, flagDatabase, flagSchemasDir, flagLogLevel, flagEcho = oldConfig, oldDatabase, oldSchemas, oldLevel, oldEcho
		importStrict, importDerived, importMerge, importDryRun = oldStrict, oldDerived, oldMerge, oldDryRun
	})

	flagConfig = filepath.Join(dir, "config.yaml")
	flagDatabase = e.dbPath
	flagSchemasDir = e.schemasDir
	flagLogLevel = "error"
	flagEcho = false
	importStrict, importDerived, importMerge, importDryRun = false, false, false, false
	runsLimit = 20
	return e
}

func (e *testEnv) writeSchema(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.schemasDir, "nts.yaml"), []byte(ntsSchema), 0o644))
}

func (e *testEnv) writeReport(t *testing.T, name string, rep *report.Report) string {
	t.Helper()

	data, err := rep.Render()
	require.NoError(t, err)
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func ntsReport() *report.Report {
	return &report.Report{
		Machine: report.Machine{Name: "jm", Info: map[string]string{"hardware": "x86_64"}},
		Run: report.Run{
			StartTime: "2024-01-15 10:30:00",
			EndTime:   "2024-01-15 10:45:00",
			Info:      map[string]string{"llvm_project_revision": "1234"},
		},
		Tests: []report.Test{
			{Name: "foo.compile_time", Values: []any{1.5}},
			{Name: "foo.exec_status", Values: []any{"PASS"}},
			{Name: "bar.hash", Values: []any{"d41d8cd9"}},
		},
	}
}

// run executes a standalone copy of a command so the shared root command
// keeps no flag state between tests.
func run(t *testing.T, use string, runE func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()

	c := &cobra.Command{Use: use, RunE: runE, SilenceUsage: true, SilenceErrors: true}
	buf := new(bytes.Buffer)
	c.SetOut(buf)
	c.SetArgs(args)
	err := c.Execute()
	return buf.String(), err
}
