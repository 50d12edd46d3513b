// Package testsuite describes test suite schemas as plain data. A Definition
// names a suite and lists its metrics and auxiliary machine and run fields;
// it is parsed from YAML schema files or rebuilt from catalog rows, and is
// turned into live tables elsewhere.
package testsuite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition is returned for malformed or inconsistent schemas.
var ErrInvalidDefinition = errors.New("invalid test suite definition")

// SupportedFormat is the semver constraint a definition's format_version
// must satisfy.
const SupportedFormat = "^2"

var (
	suiteNameRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)
	fieldNameRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
	formatLimits = mustConstraint(SupportedFormat)

	reservedMetricNames  = []string{"id", "run_id", "test_id"}
	reservedMachineNames = []string{"id", "name", "parameters"}
	reservedRunNames     = []string{"id", "uuid", "machine_id", "start_time", "end_time",
		"imported_from", "parameters", "content_hash", "imported_at"}
)

// Field is one metric recorded per sample.
type Field struct {
	Name           string     `yaml:"name"`
	Type           SampleType `yaml:"type"`
	DisplayName    string     `yaml:"display_name,omitempty"`
	Unit           string     `yaml:"unit,omitempty"`
	UnitAbbrev     string     `yaml:"unit_abbrev,omitempty"`
	BiggerIsBetter bool       `yaml:"bigger_is_better,omitempty"`
}

// AuxField is a machine or run attribute promoted to its own column.
type AuxField struct {
	Name string `yaml:"name"`
	// Order marks run fields that order runs, such as a source revision.
	Order bool `yaml:"order,omitempty"`
}

// Definition is the declarative description of one test suite.
type Definition struct {
	FormatVersion string     `yaml:"format_version"`
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description,omitempty"`
	Metrics       []Field    `yaml:"metrics"`
	RunFields     []AuxField `yaml:"run_fields,omitempty"`
	MachineFields []AuxField `yaml:"machine_fields,omitempty"`
}

// DBKeyName is the prefix of the suite's table names.
func (d *Definition) DBKeyName() string {
	return d.Name
}

// Metric returns the metric with the given name.
func (d *Definition) Metric(name string) (Field, bool) {
	for _, f := range d.Metrics {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks names, types and format version.
func (d *Definition) Validate() error {
	if !suiteNameRe.MatchString(d.Name) {
		return fmt.Errorf("%w: suite name %q must be an identifier", ErrInvalidDefinition, d.Name)
	}
	if err := checkFormatVersion(d.FormatVersion); err != nil {
		return err
	}
	if len(d.Metrics) == 0 {
		return fmt.Errorf("%w: suite %q has no metrics", ErrInvalidDefinition, d.Name)
	}

	seen := map[string]bool{}
	for _, f := range d.Metrics {
		if err := checkFieldName("metric", f.Name, reservedMetricNames, seen); err != nil {
			return err
		}
		switch f.Type {
		case Real, Status, Hash:
		default:
			return fmt.Errorf("%w: metric %q has no valid type", ErrInvalidDefinition, f.Name)
		}
	}

	seen = map[string]bool{}
	for _, f := range d.MachineFields {
		if err := checkFieldName("machine field", f.Name, reservedMachineNames, seen); err != nil {
			return err
		}
	}

	seen = map[string]bool{}
	for _, f := range d.RunFields {
		if err := checkFieldName("run field", f.Name, reservedRunNames, seen); err != nil {
			return err
		}
	}
	return nil
}

func checkFieldName(kind, name string, reserved []string, seen map[string]bool) error {
	if !fieldNameRe.MatchString(name) {
		return fmt.Errorf("%w: %s name %q must be an identifier", ErrInvalidDefinition, kind, name)
	}
	// Column names are case-insensitive in SQLite.
	for _, r := range reserved {
		if strings.EqualFold(name, r) {
			return fmt.Errorf("%w: %s name %q is reserved", ErrInvalidDefinition, kind, name)
		}
	}
	key := strings.ToLower(name)
	if seen[key] {
		return fmt.Errorf("%w: duplicate %s %q", ErrInvalidDefinition, kind, name)
	}
	seen[key] = true
	return nil
}

func checkFormatVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: missing format_version", ErrInvalidDefinition)
	}
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: format_version %q: %v", ErrInvalidDefinition, v, err)
	}
	if !formatLimits.Check(version) {
		return fmt.Errorf("%w: format_version %q is not supported (want %s)", ErrInvalidDefinition, v, SupportedFormat)
	}
	return nil
}

func mustConstraint(c string) *semver.Constraints {
	constraints, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraints
}

// Parse decodes and validates a YAML schema document.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Marshal encodes a definition as a YAML schema document.
func Marshal(def *Definition) ([]byte, error) {
	return yaml.Marshal(def)
}

// LoadFile reads and parses one schema file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// SchemaFilePattern matches schema files inside a schemas directory.
const SchemaFilePattern = "*.yaml"

// FileResult is the outcome of loading one schema file.
type FileResult struct {
	Definition *Definition
	Err        error
	Path       string
}

// ScanDir loads every schema file in dir in lexical order. Each file is
// parsed independently; a bad file yields a FileResult with Err set and
// does not stop the scan.
func ScanDir(dir string) ([]FileResult, error) {
	if dir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, SchemaFilePattern))
	if err != nil {
		return nil, fmt.Errorf("failed to scan schemas directory: %w", err)
	}
	sort.Strings(matches)

	results := make([]FileResult, 0, len(matches))
	for _, path := range matches {
		def, err := LoadFile(path)
		results = append(results, FileResult{Path: path, Definition: def, Err: err})
	}
	return results, nil
}
