package suitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/runger/perfdb/internal/report"
	"github.com/runger/perfdb/internal/sqlstore"
	"github.com/runger/perfdb/internal/testsuite"
)

// Run is one imported run.
type Run struct {
	StartTime    time.Time
	EndTime      time.Time
	ImportedAt   time.Time
	Parameters   map[string]string
	Fields       map[string]string // run fields declared by the suite
	UUID         string
	ImportedFrom string
	ContentHash  string
	ID           int64
	MachineID    int64
}

// Sample is one stored sample row with its metric values. Values holds
// float64 for Real metrics, testsuite.StatusKind for Status metrics and
// string for Hash metrics; NULL metric columns are absent.
type Sample struct {
	Values   map[string]any
	TestName string
	ID       int64
	RunID    int64
}

// Run loads the run with the given id.
func (a *Accessor) Run(ctx context.Context, id int64) (*Run, error) {
	run, err := a.queryRun(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: id %d in suite %q", ErrRunNotFound, id, a.def.Name)
	}
	return run, nil
}

// runByHash returns the run with the given content hash, or nil.
func (a *Accessor) runByHash(ctx context.Context, hash string) (*Run, error) {
	return a.queryRun(ctx, "content_hash = ?", hash)
}

// Runs lists runs ordered by start time, newest first. limit <= 0 means all.
func (a *Accessor) Runs(ctx context.Context, limit int) ([]*Run, error) {
	query, cols := a.runSelect()
	query += " ORDER BY start_time DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := a.session.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := a.scanRun(rows, cols)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (a *Accessor) queryRun(ctx context.Context, where string, arg any) (*Run, error) {
	query, cols := a.runSelect()
	rows, err := a.session.QueryContext(ctx, query+" WHERE "+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return a.scanRun(rows, cols)
}

var runBaseColumns = []string{
	"id", "uuid", "machine_id", "start_time", "end_time",
	"imported_from", "imported_at", "parameters", "content_hash",
}

func (a *Accessor) runSelect() (string, []string) {
	d := a.session.Dialect()
	cols := append([]string(nil), runBaseColumns...)
	for _, f := range a.def.RunFields {
		cols = append(cols, f.Name)
	}
	return "SELECT " + quoteAll(d, cols) + " FROM " + d.Quote(a.tables.Run.Name), cols
}

func (a *Accessor) scanRun(rows *sql.Rows, cols []string) (*Run, error) {
	var (
		run                      Run
		start, end, params       string
		importedFrom, importedAt sql.NullString
	)
	extra := make([]sql.NullString, len(cols)-len(runBaseColumns))
	dest := []any{
		&run.ID, &run.UUID, &run.MachineID, &start, &end,
		&importedFrom, &importedAt, &params, &run.ContentHash,
	}
	for i := range extra {
		dest = append(dest, &extra[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var err error
	if run.StartTime, err = report.ParseTime(start); err != nil {
		return nil, err
	}
	if run.EndTime, err = report.ParseTime(end); err != nil {
		return nil, err
	}
	if importedAt.Valid {
		if run.ImportedAt, err = report.ParseTime(importedAt.String); err != nil {
			return nil, err
		}
	}
	run.ImportedFrom = importedFrom.String
	if err := json.Unmarshal([]byte(params), &run.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode run parameters: %w", err)
	}
	run.Fields = make(map[string]string, len(extra))
	for i, f := range a.def.RunFields {
		if extra[i].Valid {
			run.Fields[f.Name] = extra[i].String
		}
	}
	return &run, nil
}

// Samples returns the samples of a run ordered by test name and insertion.
func (a *Accessor) Samples(ctx context.Context, runID int64) ([]Sample, error) {
	d := a.session.Dialect()
	sample, test := a.tables.Sample.Name, a.tables.Test.Name

	cols := []string{"s.id", "s.run_id", "t.name"}
	for _, f := range a.def.Metrics {
		cols = append(cols, "s."+d.Quote(f.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s s JOIN %s t ON t.id = s.test_id WHERE s.run_id = ? ORDER BY t.name, s.id",
		strings.Join(cols, ", "), d.Quote(sample), d.Quote(test))

	rows, err := a.session.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		dest := []any{&s.ID, &s.RunID, &s.TestName}
		holders := make([]any, len(a.def.Metrics))
		for i, f := range a.def.Metrics {
			switch f.Type {
			case testsuite.Real:
				holders[i] = new(sql.NullFloat64)
			case testsuite.Status:
				holders[i] = new(sql.NullInt64)
			default:
				holders[i] = new(sql.NullString)
			}
		}
		dest = append(dest, holders...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		s.Values = map[string]any{}
		for i, f := range a.def.Metrics {
			switch h := holders[i].(type) {
			case *sql.NullFloat64:
				if h.Valid {
					s.Values[f.Name] = h.Float64
				}
			case *sql.NullInt64:
				if h.Valid {
					s.Values[f.Name] = testsuite.StatusKind(h.Int64)
				}
			case *sql.NullString:
				if h.Valid {
					s.Values[f.Name] = h.String
				}
			}
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func insertSQL(d sqlstore.Dialect, t Table) string {
	names := t.ColumnNames()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(t.Name), quoteAll(d, names), placeholders)
}

func quoteAll(d sqlstore.Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
