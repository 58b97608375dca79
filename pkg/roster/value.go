package roster

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

//go:generate go tool stringer -type=Kind -trimprefix=Kind

// Kind identifies which variant a Value holds.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// Value is a cell value as it arrives from a table or workbook.
// The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
}

// Null returns the empty value.
func Null() Value { return Value{} }

// String wraps a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric value. NaN is kept but classifies as empty.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time wraps a date or datetime value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Of converts a dynamically typed value into a Value.
// Values that have no string form are rejected.
func Of(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case bool:
		return Bool(x), nil
	case time.Time:
		return Time(x), nil
	case *time.Time:
		if x == nil {
			return Null(), nil
		}
		return Time(*x), nil
	case fmt.Stringer:
		return String(x.String()), nil
	default:
		return Value{}, fmt.Errorf("roster: cannot convert %T to a cell value", v)
	}
}

// MustOf is like Of but panics on unsupported types. Intended for tests and literals.
func MustOf(v any) Value {
	val, err := Of(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null or a NaN number.
func (v Value) IsNull() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return math.IsNaN(v.num)
	}
	return false
}

// IsEmpty reports whether v is null or stringifies to blank text.
func (v Value) IsEmpty() bool {
	if v.IsNull() {
		return true
	}
	return isBlank(v.String())
}

// String returns the canonical text form used for resolution and comparison.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindTime:
		return formatTime(v.t)
	default:
		return ""
	}
}

// Any returns the underlying Go value (nil, string, float64, bool or time.Time).
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	default:
		return nil
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return ""
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatFloat(f, 'f', 0, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	h, m, s := t.Clock()
	if h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.DateTime)
}
