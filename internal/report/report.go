// Package report defines the structured result report produced by a test
// harness and consumed by suite imports.
package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrInvalidReport is returned for reports that cannot be imported.
var ErrInvalidReport = errors.New("invalid report")

// TimeLayout is the canonical timestamp format written to the database.
const TimeLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	time.RFC3339Nano,
}

// Report is one harness submission.
type Report struct {
	// Schema, when set, names the test suite the report was produced for.
	Schema  string  `json:"schema,omitempty"`
	Machine Machine `json:"machine"`
	Run     Run     `json:"run"`
	Tests   []Test  `json:"tests"`
}

// Machine describes the machine the run executed on.
type Machine struct {
	Info map[string]string `json:"info,omitempty"`
	Name string            `json:"name"`
}

// Run describes one execution of a suite.
type Run struct {
	Info      map[string]string `json:"info,omitempty"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
}

// Test is one named series of samples. Name is "<test>.<metric>".
type Test struct {
	Info       map[string]string `json:"info,omitempty"`
	Name       string            `json:"name"`
	SampleType string            `json:"sample_type,omitempty"`
	Values     []any             `json:"values"`
}

// Decode reads a JSON report. Numbers decode as float64, including status
// ids; reports built in code may also carry json.Number values.
func Decode(r io.Reader) (*Report, error) {
	var rep Report
	dec := json.NewDecoder(r)
	if err := dec.Decode(&rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return &rep, nil
}

// Parse decodes a JSON report from memory.
func Parse(data []byte) (*Report, error) {
	return Decode(bytes.NewReader(data))
}

// LoadFile decodes the report stored at path.
func LoadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Render encodes the report as indented JSON.
func (r *Report) Render() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Validate checks the fields every import relies on.
func (r *Report) Validate() error {
	if strings.TrimSpace(r.Machine.Name) == "" {
		return fmt.Errorf("%w: machine name is required", ErrInvalidReport)
	}
	start, end, err := r.Run.Times()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("%w: run ends before it starts", ErrInvalidReport)
	}
	for i, t := range r.Tests {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: test %d has no name", ErrInvalidReport, i)
		}
	}
	return nil
}

// Times parses the run's start and end timestamps.
func (r Run) Times() (start, end time.Time, err error) {
	if start, err = ParseTime(r.StartTime); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_time: %v", ErrInvalidReport, err)
	}
	if end, err = ParseTime(r.EndTime); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_time: %v", ErrInvalidReport, err)
	}
	return start, end, nil
}

// ParseTime accepts the timestamp formats harnesses emit.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ContentHash identifies the report's content: machine, run bounds and info,
// and the ordered test entries. Two submissions of the same report hash
// equal regardless of the schema field.
func (r *Report) ContentHash() (string, error) {
	canonical := struct {
		Machine Machine `json:"machine"`
		Run     Run     `json:"run"`
		Tests   []Test  `json:"tests"`
	}{r.Machine, r.Run, r.Tests}

	// encoding/json writes map keys in sorted order, which makes the
	// encoding canonical.
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Merge combines consecutive reports of one machine into a single report
// spanning the first start time to the last end time.
func Merge(reports []*Report) (*Report, error) {
	if len(reports) == 0 {
		return nil, fmt.Errorf("%w: nothing to merge", ErrInvalidReport)
	}
	if len(reports) == 1 {
		return reports[0], nil
	}
	merged := &Report{
		Schema:  reports[0].Schema,
		Machine: reports[0].Machine,
		Run:     reports[0].Run,
	}
	merged.Run.EndTime = reports[len(reports)-1].Run.EndTime
	for _, r := range reports {
		merged.Tests = append(merged.Tests, r.Tests...)
	}
	return merged, nil
}
