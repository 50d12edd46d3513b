package testsuite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ntsSchema = `
format_version: '2'
name: nts
description: nightly test suite
metrics:
  - name: compile_time
    type: Real
    unit: seconds
    unit_abbrev: s
  - name: score
    type: real
    bigger_is_better: true
  - name: exec_status
    type: Status
  - name: hash
    type: Hash
run_fields:
  - name: llvm_project_revision
    order: true
machine_fields:
  - name: hardware
  - name: os
`

func TestParse(t *testing.T) {
	t.Parallel()

	def, err := Parse([]byte(ntsSchema))
	require.NoError(t, err)

	assert.Equal(t, "nts", def.Name)
	assert.Equal(t, "nts", def.DBKeyName())
	assert.Equal(t, "nightly test suite", def.Description)
	require.Len(t, def.Metrics, 4)
	assert.Equal(t, Real, def.Metrics[0].Type)
	assert.Equal(t, "s", def.Metrics[0].UnitAbbrev)
	assert.Equal(t, Real, def.Metrics[1].Type)
	assert.True(t, def.Metrics[1].BiggerIsBetter)
	assert.Equal(t, Status, def.Metrics[2].Type)
	assert.Equal(t, Hash, def.Metrics[3].Type)
	assert.Equal(t, []AuxField{{Name: "llvm_project_revision", Order: true}}, def.RunFields)
	assert.Equal(t, []AuxField{{Name: "hardware"}, {Name: "os"}}, def.MachineFields)

	f, ok := def.Metric("exec_status")
	assert.True(t, ok)
	assert.Equal(t, Status, f.Type)
	_, ok = def.Metric("missing")
	assert.False(t, ok)
}

func TestParse_RoundTripsThroughMarshal(t *testing.T) {
	t.Parallel()

	def, err := Parse([]byte(ntsSchema))
	require.NoError(t, err)

	data, err := Marshal(def)
	require.NoError(t, err)
	assert.Contains(t, string(data), "type: Status")

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, def, again)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "name: [unterminated"},
		{"missing format", "name: nts\nmetrics:\n  - {name: t, type: Real}\n"},
		{"unsupported format", "format_version: '3'\nname: nts\nmetrics:\n  - {name: t, type: Real}\n"},
		{"bad suite name", "format_version: '2'\nname: 'n ts'\nmetrics:\n  - {name: t, type: Real}\n"},
		{"no metrics", "format_version: '2'\nname: nts\n"},
		{"unknown type", "format_version: '2'\nname: nts\nmetrics:\n  - {name: t, type: Complex}\n"},
		{"missing type", "format_version: '2'\nname: nts\nmetrics:\n  - {name: t}\n"},
		{"reserved metric", "format_version: '2'\nname: nts\nmetrics:\n  - {name: run_id, type: Real}\n"},
		{"duplicate metric", "format_version: '2'\nname: nts\nmetrics:\n  - {name: t, type: Real}\n  - {name: t, type: Hash}\n"},
		{"metrics differing in case", "format_version: '2'\nname: nts\nmetrics:\n  - {name: Foo, type: Real}\n  - {name: foo, type: Real}\n"},
		{"reserved metric in upper case", "format_version: '2'\nname: nts\nmetrics:\n  - {name: RUN_ID, type: Real}\n"},
		{"machine fields differing in case", "format_version: '2'\nname: nts\nmetrics:\n  - {name: t, type: Real}\nmachine_fields:\n  - {name: os}\n  - {name: OS}\n"},
		{"reserved run field", "format_version: '2'\nname: nts\nmetrics:\n  - {name: t, type: Real}\nrun_fields:\n  - {name: start_time}\n"},
		{"bad machine field", "format_version: '2'\nname: nts\nmetrics:\n  - {name: t, type: Real}\nmachine_fields:\n  - {name: 'a-b'}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestParse_AcceptsMinorFormatVersions(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"2", "2.0", "2.1.0"} {
		doc := "format_version: '" + v + "'\nname: nts\nmetrics:\n  - {name: t, type: Real}\n"
		_, err := Parse([]byte(doc))
		assert.NoError(t, err, v)
	}
}

func TestScanDir_SkipsBadFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_nts.yaml"), []byte(ntsSchema), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_broken.yaml"), []byte("name: [oops"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c_ignored.txt"), []byte(ntsSchema), 0o644))

	results, err := ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Definition)
	assert.Equal(t, "nts", results[0].Definition.Name)

	assert.ErrorIs(t, results[1].Err, ErrInvalidDefinition)
	assert.Nil(t, results[1].Definition)
	assert.Equal(t, filepath.Join(dir, "b_broken.yaml"), results[1].Path)
}

func TestScanDir_EmptyDir(t *testing.T) {
	t.Parallel()

	results, err := ScanDir("")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = ScanDir(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParseStatusKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want StatusKind
	}{
		{0.0, Pass},
		{1, Fail},
		{int64(2), XFail},
		{"pass", Pass},
		{"XFAIL", XFail},
		{"XPASS", Fail},
		{"UNRESOLVED", Fail},
	}
	for _, tt := range tests {
		got, err := ParseStatusKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []any{3, 1.5, "maybe", true} {
		_, err := ParseStatusKind(bad)
		assert.Error(t, err, bad)
	}

	assert.True(t, Fail.Worse(XFail))
	assert.True(t, XFail.Worse(Pass))
	assert.False(t, Pass.Worse(Fail))
}

func TestParseSampleType(t *testing.T) {
	t.Parallel()

	for _, st := range SampleTypes {
		got, err := ParseSampleType(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseSampleType("Complex")
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}
