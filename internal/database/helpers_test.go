package database

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runger/perfdb/internal/config"
	"github.com/runger/perfdb/internal/report"
	"github.com/runger/perfdb/internal/testsuite"
)

const ntsSchema = `format_version: '2'
name: nts
description: nightly test suite
metrics:
  - {name: compile_time, type: Real, unit: seconds}
  - {name: exec_status, type: Status}
  - {name: hash, type: Hash}
run_fields:
  - {name: llvm_project_revision, order: true}
machine_fields:
  - {name: hardware}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	reg := NewRegistry(opts...)
	t.Cleanup(func() { _ = reg.DisposeAll() })
	return reg
}

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "perf.db")
}

func openTestHandle(t *testing.T, reg *Registry, path string, cfg *config.Config) *Handle {
	t.Helper()

	h, err := Open(context.Background(), Options{Path: path, Config: cfg, Registry: reg, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func ntsDefinition(t *testing.T) *testsuite.Definition {
	t.Helper()

	def, err := testsuite.Parse([]byte(ntsSchema))
	require.NoError(t, err)
	return def
}

func namedDefinition(t *testing.T, name string) *testsuite.Definition {
	t.Helper()

	def := ntsDefinition(t)
	def.Name = name
	return def
}

func writeSchemaFile(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
}

func ntsReport() *report.Report {
	return &report.Report{
		Schema:  "nts",
		Machine: report.Machine{Name: "jm", Info: map[string]string{"hardware": "x86_64"}},
		Run: report.Run{
			StartTime: "2024-01-15 10:30:00",
			EndTime:   "2024-01-15 10:45:00",
			Info:      map[string]string{"llvm_project_revision": "1234"},
		},
		Tests: []report.Test{
			{Name: "foo.compile_time", Values: []any{1.5}},
			{Name: "foo.exec_status", Values: []any{"PASS"}},
			{Name: "bar.compile_time", Values: []any{0.25}},
			{Name: "bar.hash", Values: []any{"d41d8cd9"}},
		},
	}
}
