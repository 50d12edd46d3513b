package suitedb

import (
	"fmt"
	"strings"

	"github.com/runger/perfdb/internal/sqlstore"
	"github.com/runger/perfdb/internal/testsuite"
)

// Entity names one of the four tables every suite owns.
type Entity int

const (
	EntityMachine Entity = iota
	EntityRun
	EntityTest
	EntitySample
)

func (e Entity) String() string {
	switch e {
	case EntityMachine:
		return "Machine"
	case EntityRun:
		return "Run"
	case EntityTest:
		return "Test"
	case EntitySample:
		return "Sample"
	default:
		return fmt.Sprintf("Entity(%d)", int(e))
	}
}

// Column is one non-key column of a suite table.
type Column struct {
	Name       string
	Default    string
	References string // referenced table; its id column is implied
	Kind       sqlstore.ColumnKind
	NotNull    bool
	Unique     bool
}

// Table is a suite table. Every table has an auto-incrementing id column
// that is not listed in Columns.
type Table struct {
	Name    string
	Columns []Column
	Indexes [][]string
}

// ColumnNames returns the names of the non-key columns in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateSQL renders the CREATE TABLE statement for dialect d.
func (t Table) CreateSQL(d sqlstore.Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n  id %s", d.Quote(t.Name), d.SerialPrimaryKey())
	for _, c := range t.Columns {
		fmt.Fprintf(&b, ",\n  %s %s", d.Quote(c.Name), d.ColumnType(c.Kind))
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.Unique {
			b.WriteString(" UNIQUE")
		}
		if c.Default != "" {
			b.WriteString(" DEFAULT " + c.Default)
		}
		if c.References != "" {
			fmt.Fprintf(&b, " REFERENCES %s(id)", d.Quote(c.References))
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// IndexSQL renders the CREATE INDEX statements for dialect d.
func (t Table) IndexSQL(d sqlstore.Dialect) []string {
	stmts := make([]string, 0, len(t.Indexes))
	for _, cols := range t.Indexes {
		name := t.Name + "_" + strings.Join(cols, "_") + "_idx"
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = d.Quote(c)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			d.Quote(name), d.Quote(t.Name), strings.Join(quoted, ", ")))
	}
	return stmts
}

// Tables is the set of tables derived from one suite definition.
type Tables struct {
	Machine Table
	Run     Table
	Test    Table
	Sample  Table
}

// Get returns the table for entity e.
func (ts Tables) Get(e Entity) Table {
	switch e {
	case EntityMachine:
		return ts.Machine
	case EntityRun:
		return ts.Run
	case EntityTest:
		return ts.Test
	default:
		return ts.Sample
	}
}

// All returns the tables in creation order.
func (ts Tables) All() []Table {
	return []Table{ts.Machine, ts.Run, ts.Test, ts.Sample}
}

// CreateStatements renders every CREATE TABLE and CREATE INDEX statement in
// dependency order.
func (ts Tables) CreateStatements(d sqlstore.Dialect) []string {
	var stmts []string
	for _, t := range ts.All() {
		stmts = append(stmts, t.CreateSQL(d))
		stmts = append(stmts, t.IndexSQL(d)...)
	}
	return stmts
}

// MetricKind maps a sample type to its storage column kind.
func MetricKind(t testsuite.SampleType) sqlstore.ColumnKind {
	switch t {
	case testsuite.Real:
		return sqlstore.KindReal
	case testsuite.Status:
		return sqlstore.KindInteger
	default:
		return sqlstore.KindText
	}
}

// StatusKindTable is the global table that status metrics reference.
const StatusKindTable = "status_kinds"

// BuildTables derives the machine, run, test and sample tables of a suite.
// It only computes table descriptions; nothing is executed.
func BuildTables(def *testsuite.Definition) Tables {
	key := def.DBKeyName()
	ts := Tables{
		Machine: Table{Name: key + "_Machine"},
		Run:     Table{Name: key + "_Run"},
		Test:    Table{Name: key + "_Test"},
		Sample:  Table{Name: key + "_Sample"},
	}

	ts.Machine.Columns = []Column{
		{Name: "name", Kind: sqlstore.KindText, NotNull: true},
		{Name: "parameters", Kind: sqlstore.KindText, NotNull: true, Default: "'{}'"},
	}
	for _, f := range def.MachineFields {
		ts.Machine.Columns = append(ts.Machine.Columns, Column{Name: f.Name, Kind: sqlstore.KindText})
	}
	ts.Machine.Indexes = [][]string{{"name"}}

	ts.Run.Columns = []Column{
		{Name: "uuid", Kind: sqlstore.KindText, NotNull: true, Unique: true},
		{Name: "machine_id", Kind: sqlstore.KindInteger, NotNull: true, References: ts.Machine.Name},
		{Name: "start_time", Kind: sqlstore.KindText, NotNull: true},
		{Name: "end_time", Kind: sqlstore.KindText, NotNull: true},
		{Name: "imported_from", Kind: sqlstore.KindText},
		{Name: "imported_at", Kind: sqlstore.KindText},
		{Name: "parameters", Kind: sqlstore.KindText, NotNull: true, Default: "'{}'"},
		{Name: "content_hash", Kind: sqlstore.KindText, NotNull: true, Unique: true},
	}
	for _, f := range def.RunFields {
		ts.Run.Columns = append(ts.Run.Columns, Column{Name: f.Name, Kind: sqlstore.KindText})
	}
	ts.Run.Indexes = [][]string{{"machine_id"}, {"start_time"}}

	ts.Test.Columns = []Column{
		{Name: "name", Kind: sqlstore.KindText, NotNull: true, Unique: true},
	}

	ts.Sample.Columns = []Column{
		{Name: "run_id", Kind: sqlstore.KindInteger, NotNull: true, References: ts.Run.Name},
		{Name: "test_id", Kind: sqlstore.KindInteger, NotNull: true, References: ts.Test.Name},
	}
	for _, f := range def.Metrics {
		col := Column{Name: f.Name, Kind: MetricKind(f.Type)}
		if f.Type == testsuite.Status {
			col.References = StatusKindTable
		}
		ts.Sample.Columns = append(ts.Sample.Columns, col)
	}
	ts.Sample.Indexes = [][]string{{"run_id"}, {"test_id"}}

	return ts
}
