package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"perf.db", "sqlite:///perf.db"},
		{"/tmp/perf.db", "sqlite:////tmp/perf.db"},
		{"sqlite:///perf.db", "sqlite:///perf.db"},
		{"postgres://user@localhost/perf", "postgres://user@localhost/perf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), tt.in)
	}
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	target, err := ParsePath("/tmp/x/perf.db")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", target.Dialect.Name())
	assert.Equal(t, "/tmp/x/perf.db", target.File)
	assert.False(t, target.Memory)
	assert.Contains(t, target.DSN, "file:/tmp/x/perf.db?")
	assert.Contains(t, target.DSN, "_pragma=foreign_keys(1)")

	target, err = ParsePath("sqlite:///relative.db")
	require.NoError(t, err)
	assert.Equal(t, "relative.db", target.File)

	for _, p := range []string{"sqlite://", "sqlite:///:memory:"} {
		target, err = ParsePath(p)
		require.NoError(t, err)
		assert.True(t, target.Memory, p)
		assert.Empty(t, target.File, p)
	}

	target, err = ParsePath("postgresql://localhost/perf")
	require.NoError(t, err)
	assert.Equal(t, "postgres", target.Dialect.Name())
	assert.Equal(t, "pgx", target.Dialect.Driver())
	assert.Equal(t, "postgresql://localhost/perf", target.DSN)

	_, err = ParsePath("mysql://localhost/perf")
	assert.ErrorIs(t, err, ErrUnsupportedPath)
}

func TestRebind(t *testing.T) {
	t.Parallel()

	q := "SELECT id FROM t WHERE a = ? AND b = '?' AND c = ?"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT id FROM t WHERE a = $1 AND b = '?' AND c = $2", Postgres.Rebind(q))
}

func TestColumnType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "REAL", SQLite.ColumnType(KindReal))
	assert.Equal(t, "DOUBLE PRECISION", Postgres.ColumnType(KindReal))
	assert.Equal(t, "BIGINT", Postgres.ColumnType(KindInteger))
	assert.Equal(t, "TEXT", SQLite.ColumnType(KindText))
	assert.Equal(t, `"nts_Run"`, SQLite.Quote("nts_Run"))
}
