package suitedb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runger/perfdb/internal/report"
	"github.com/runger/perfdb/internal/testsuite"
)

// ImportStatus tells whether an import created a run.
type ImportStatus int

const (
	// Added means a new run was written.
	Added ImportStatus = iota + 1
	// RepeatOfExistingRun means an identical report was already imported;
	// the existing run is returned and nothing is written.
	RepeatOfExistingRun
)

func (s ImportStatus) String() string {
	switch s {
	case Added:
		return "ADDED"
	case RepeatOfExistingRun:
		return "REPEAT_OF_EXISTING_RUN"
	default:
		return fmt.Sprintf("ImportStatus(%d)", int(s))
	}
}

// ImportOptions controls one import.
type ImportOptions struct {
	// ImportedFrom records where the report came from, e.g. a file path.
	ImportedFrom string
	// Commit finalizes the session transaction after a successful import.
	// Leave it unset to batch several imports and commit them together.
	Commit bool
	// ComputeDerivedValue stores one derived sample per test instead of
	// one sample per submitted value: the best Real value (min, or max
	// for bigger_is_better metrics), the worst status and the first hash.
	ComputeDerivedValue bool
	// Strict rejects samples for metrics the suite does not define instead
	// of skipping them.
	Strict bool
}

// pendingTest gathers the converted values of one test, keyed by metric.
type pendingTest struct {
	values map[string][]any
	name   string
}

// ImportReport writes rep into the suite's tables and returns the run.
//
// A report whose content hash matches an existing run is a repeat: the
// existing run is returned with RepeatOfExistingRun and nothing is written.
// The import runs under a savepoint, so a failure discards only its own
// writes and leaves earlier uncommitted work in the session intact.
func (a *Accessor) ImportReport(ctx context.Context, rep *report.Report, opts ImportOptions) (*Run, ImportStatus, error) {
	if err := rep.Validate(); err != nil {
		return nil, 0, err
	}
	hash, err := rep.ContentHash()
	if err != nil {
		return nil, 0, err
	}
	tests, err := a.collectTests(rep, opts.Strict)
	if err != nil {
		return nil, 0, err
	}

	existing, err := a.runByHash(ctx, hash)
	if err != nil {
		return nil, 0, err
	}
	if existing != nil {
		a.logger.Info("report already imported", "run_id", existing.ID, "content_hash", hash)
		return existing, RepeatOfExistingRun, nil
	}

	var runID int64
	err = a.session.WithSavepoint(ctx, "import_report", func() error {
		machineID, err := a.getOrCreateMachine(ctx, rep.Machine)
		if err != nil {
			return err
		}
		runID, err = a.insertRun(ctx, machineID, rep, hash, opts.ImportedFrom)
		if err != nil {
			return err
		}
		return a.insertSamples(ctx, runID, tests, opts.ComputeDerivedValue)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to import report into suite %q: %w", a.def.Name, err)
	}

	run, err := a.Run(ctx, runID)
	if err != nil {
		return nil, 0, err
	}
	if opts.Commit {
		if err := a.session.Commit(); err != nil {
			return nil, 0, err
		}
	}
	a.logger.Info("report imported", "run_id", run.ID, "tests", len(tests), "commit", opts.Commit)
	return run, Added, nil
}

// collectTests groups the report's entries by test and converts every
// value to its metric's storage form. It performs no writes.
func (a *Accessor) collectTests(rep *report.Report, strict bool) ([]*pendingTest, error) {
	var ordered []*pendingTest
	byName := map[string]*pendingTest{}

	for _, entry := range rep.Tests {
		testName, metricName, ok := splitTestName(entry.Name)
		var field testsuite.Field
		if ok {
			field, ok = a.def.Metric(metricName)
		}
		if !ok {
			if strict {
				return nil, fmt.Errorf("%w: %q in suite %q", ErrUnknownMetric, entry.Name, a.def.Name)
			}
			a.logger.Warn("skipping sample for unknown metric", "test", entry.Name)
			continue
		}

		if entry.SampleType != "" {
			declared, err := testsuite.ParseSampleType(entry.SampleType)
			if err != nil || declared != field.Type {
				return nil, fmt.Errorf("%w: %q declares %q, metric %q is %s",
					ErrSampleTypeMismatch, entry.Name, entry.SampleType, field.Name, field.Type)
			}
		}

		converted := make([]any, 0, len(entry.Values))
		for _, v := range entry.Values {
			cv, err := convertValue(field.Type, v)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidValue, entry.Name, err)
			}
			converted = append(converted, cv)
		}

		pt, seen := byName[testName]
		if !seen {
			pt = &pendingTest{name: testName, values: map[string][]any{}}
			byName[testName] = pt
			ordered = append(ordered, pt)
		}
		pt.values[field.Name] = append(pt.values[field.Name], converted...)
	}
	return ordered, nil
}

// splitTestName splits "<test>.<metric>" at the last dot.
func splitTestName(name string) (test, metric string, ok bool) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

// convertValue maps a decoded report value to what the metric column stores:
// float64 for Real, int64 status ids for Status and string for Hash.
func convertValue(t testsuite.SampleType, v any) (any, error) {
	switch t {
	case testsuite.Real:
		f, err := realValue(v)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite value %v", v)
		}
		return f, nil
	case testsuite.Status:
		k, err := testsuite.ParseStatusKind(v)
		if err != nil {
			return nil, err
		}
		return int64(k), nil
	default:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case json.Number:
			return x.String(), nil
		}
		return nil, fmt.Errorf("hash value of type %T", v)
	}
}

func realValue(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("real value of type %T", v)
}

// derive reduces all values of one metric to a single value.
func derive(f testsuite.Field, values []any) any {
	if len(values) == 0 {
		return nil
	}
	switch f.Type {
	case testsuite.Real:
		best := values[0].(float64)
		for _, v := range values[1:] {
			x := v.(float64)
			if (f.BiggerIsBetter && x > best) || (!f.BiggerIsBetter && x < best) {
				best = x
			}
		}
		return best
	case testsuite.Status:
		worst := testsuite.StatusKind(values[0].(int64))
		for _, v := range values[1:] {
			if k := testsuite.StatusKind(v.(int64)); k.Worse(worst) {
				worst = k
			}
		}
		return int64(worst)
	default:
		return values[0]
	}
}

// sampleRows lays out the metric values of one test as sample rows, in
// metric order. Values are zipped by index; short series leave NULLs.
func (a *Accessor) sampleRows(pt *pendingTest, computeDerived bool) [][]any {
	if computeDerived {
		row := make([]any, len(a.def.Metrics))
		for i, f := range a.def.Metrics {
			row[i] = derive(f, pt.values[f.Name])
		}
		return [][]any{row}
	}

	n := 0
	for _, vs := range pt.values {
		n = max(n, len(vs))
	}
	rows := make([][]any, n)
	for r := range rows {
		row := make([]any, len(a.def.Metrics))
		for i, f := range a.def.Metrics {
			if vs := pt.values[f.Name]; r < len(vs) {
				row[i] = vs[r]
			}
		}
		rows[r] = row
	}
	return rows
}

func (a *Accessor) getOrCreateMachine(ctx context.Context, m report.Machine) (int64, error) {
	d := a.session.Dialect()
	params, err := encodeInfo(m.Info)
	if err != nil {
		return 0, err
	}
	table := a.tables.Machine

	var id int64
	err = a.session.QueryRowContext(ctx,
		"SELECT id FROM "+d.Quote(table.Name)+" WHERE name = ? AND parameters = ?", m.Name, params).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("failed to look up machine: %w", err)
	}

	values := []any{m.Name, params}
	for _, f := range a.def.MachineFields {
		values = append(values, infoValue(m.Info, f.Name))
	}
	id, err = a.session.InsertReturningID(ctx, insertSQL(d, table), values...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert machine: %w", err)
	}
	return id, nil
}

func (a *Accessor) insertRun(ctx context.Context, machineID int64, rep *report.Report, hash, importedFrom string) (int64, error) {
	d := a.session.Dialect()
	start, end, err := rep.Run.Times()
	if err != nil {
		return 0, err
	}
	params, err := encodeInfo(rep.Run.Info)
	if err != nil {
		return 0, err
	}

	values := []any{
		uuid.NewString(),
		machineID,
		start.Format(report.TimeLayout),
		end.Format(report.TimeLayout),
		nullIfEmpty(importedFrom),
		time.Now().UTC().Format(report.TimeLayout),
		params,
		hash,
	}
	for _, f := range a.def.RunFields {
		values = append(values, infoValue(rep.Run.Info, f.Name))
	}
	id, err := a.session.InsertReturningID(ctx, insertSQL(d, a.tables.Run), values...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

func (a *Accessor) insertSamples(ctx context.Context, runID int64, tests []*pendingTest, computeDerived bool) error {
	d := a.session.Dialect()
	query := insertSQL(d, a.tables.Sample)

	for _, pt := range tests {
		testID, err := a.getOrCreateTest(ctx, pt.name)
		if err != nil {
			return err
		}
		for _, row := range a.sampleRows(pt, computeDerived) {
			args := append([]any{runID, testID}, row...)
			if _, err := a.session.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert sample for test %q: %w", pt.name, err)
			}
		}
	}
	return nil
}

func (a *Accessor) getOrCreateTest(ctx context.Context, name string) (int64, error) {
	d := a.session.Dialect()
	table := a.tables.Test

	var id int64
	err := a.session.QueryRowContext(ctx,
		"SELECT id FROM "+d.Quote(table.Name)+" WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("failed to look up test %q: %w", name, err)
	}
	id, err = a.session.InsertReturningID(ctx, insertSQL(d, table), name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert test %q: %w", name, err)
	}
	return id, nil
}

// encodeInfo renders an info mapping as canonical JSON.
func encodeInfo(info map[string]string) (string, error) {
	if info == nil {
		info = map[string]string{}
	}
	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode info: %w", err)
	}
	return string(data), nil
}

func infoValue(info map[string]string, key string) any {
	if v, ok := info[key]; ok {
		return v
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
