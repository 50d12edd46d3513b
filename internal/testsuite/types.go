package testsuite

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// SampleType is the semantic type of a metric. Values are the ids of the
// rows seeded into the sample_types table.
type SampleType int

const (
	Real   SampleType = 1
	Status SampleType = 2
	Hash   SampleType = 3
)

// SampleTypes lists every known sample type in id order.
var SampleTypes = []SampleType{Real, Status, Hash}

func (t SampleType) String() string {
	switch t {
	case Real:
		return "Real"
	case Status:
		return "Status"
	case Hash:
		return "Hash"
	default:
		return fmt.Sprintf("SampleType(%d)", int(t))
	}
}

// ParseSampleType parses a sample type name, ignoring case.
func ParseSampleType(s string) (SampleType, error) {
	for _, t := range SampleTypes {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown sample type %q", ErrInvalidDefinition, s)
}

// UnmarshalYAML reads a sample type from its name.
func (t *SampleType) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseSampleType(value.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML writes a sample type as its name.
func (t SampleType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// StatusKind classifies a test outcome. Values are the ids of the rows
// seeded into the status_kinds table.
type StatusKind int

const (
	Pass  StatusKind = 0
	Fail  StatusKind = 1
	XFail StatusKind = 2
)

// StatusKinds lists every known status kind in id order.
var StatusKinds = []StatusKind{Pass, Fail, XFail}

func (k StatusKind) String() string {
	switch k {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case XFail:
		return "XFAIL"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// severity orders outcomes so that the worst of a set can be picked.
func (k StatusKind) severity() int {
	switch k {
	case Fail:
		return 2
	case XFail:
		return 1
	default:
		return 0
	}
}

// Worse reports whether k is a worse outcome than other.
func (k StatusKind) Worse(other StatusKind) bool {
	return k.severity() > other.severity()
}

// ParseStatusKind converts a report value into a StatusKind. It accepts the
// numeric ids and the names PASS, FAIL and XFAIL. XPASS and UNRESOLVED map
// to FAIL.
func ParseStatusKind(v any) (StatusKind, error) {
	switch x := v.(type) {
	case StatusKind:
		return checkStatusKind(int64(x))
	case int:
		return checkStatusKind(int64(x))
	case int64:
		return checkStatusKind(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("invalid status value %v", x)
		}
		return checkStatusKind(int64(x))
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid status value %q", x.String())
		}
		return checkStatusKind(n)
	case string:
		switch strings.ToUpper(x) {
		case "PASS":
			return Pass, nil
		case "FAIL", "XPASS", "UNRESOLVED":
			return Fail, nil
		case "XFAIL":
			return XFail, nil
		}
		return 0, fmt.Errorf("invalid status value %q", x)
	default:
		return 0, fmt.Errorf("invalid status value of type %T", v)
	}
}

func checkStatusKind(n int64) (StatusKind, error) {
	for _, k := range StatusKinds {
		if int64(k) == n {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid status value %d", n)
}
