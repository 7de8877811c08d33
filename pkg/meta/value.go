package meta

import (
	"math"
	"strconv"
	"strings"
	"time"

	ismnerr "github.com/soilnet/ismn/pkg/errors"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindFloat
	KindString
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// TimeLayout is the layout used to render time values.
const TimeLayout = "2006-01-02 15:04:05"

// Value is a metadata value: a number, a string, a timestamp or null.
// The zero Value is null.
type Value struct {
	kind Kind
	f    float64
	s    string
	t    time.Time
}

// Null returns the missing-value sentinel.
func Null() Value { return Value{} }

// Float returns a numeric value. NaN is stored as null.
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: KindFloat, f: f}
}

// String returns a string value. The empty string is stored as null.
func String(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{kind: KindString, s: s}
}

// Time returns a timestamp value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

// ParseValue returns a float value if s parses as a number, null if s is
// blank, and a string value otherwise.
func ParseValue(s string) Value {
	if s == "" {
		return Null()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	return String(s)
}

// ParseKind parses s as a value of kind k. Blank input is null. Float
// columns keep unparseable cells as strings; KindNull defers to ParseValue.
func ParseKind(k Kind, s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null(), nil
	}
	switch k {
	case KindString:
		return String(s), nil
	case KindTime:
		t, err := ParseTime(s)
		if err != nil {
			return Null(), err
		}
		return Time(t), nil
	default:
		return ParseValue(s), nil
	}
}

var timeLayouts = []string{
	TimeLayout,
	"2006/01/02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses the timestamp layouts found in sensor files and index
// tables. Times are interpreted as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ismnerr.InvalidTimestamp(s)
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether v is null or an empty string.
func (v Value) IsEmpty() bool {
	return v.kind == KindNull || (v.kind == KindString && v.s == "")
}

// AsFloat returns the numeric value and whether v holds one.
func (v Value) AsFloat() (float64, bool) {
	return v.f, v.kind == KindFloat
}

// AsString returns the string value and whether v holds one.
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsTime returns the timestamp and whether v holds one.
func (v Value) AsTime() (time.Time, bool) {
	return v.t, v.kind == KindTime
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// String renders the value with standard decimal formatting. Null renders
// as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(TimeLayout)
	default:
		return ""
	}
}
