package core

import (
	"time"

	"github.com/spf13/cast"
)

// ValueKind is the value kind an Attribute type carries (spec.md §3).
type ValueKind int

const (
	ValueKindBoolean ValueKind = iota
	ValueKindLong
	ValueKindDouble
	ValueKindString
	ValueKindDateTime
)

func (k ValueKind) String() string {
	switch k {
	case ValueKindBoolean:
		return "boolean"
	case ValueKindLong:
		return "long"
	case ValueKindDouble:
		return "double"
	case ValueKindString:
		return "string"
	case ValueKindDateTime:
		return "datetime"
	default:
		return "unknown"
	}
}

// Value is a kind-tagged scalar carried by a Thing, Value, or ValueList
// answer column.
type Value struct {
	Kind ValueKind
	Data interface{}
}

func BooleanValue(b bool) Value        { return Value{Kind: ValueKindBoolean, Data: b} }
func LongValue(v int64) Value          { return Value{Kind: ValueKindLong, Data: v} }
func DoubleValue(v float64) Value      { return Value{Kind: ValueKindDouble, Data: v} }
func StringValue(v string) Value       { return Value{Kind: ValueKindString, Data: v} }
func DateTimeValue(v time.Time) Value  { return Value{Kind: ValueKindDateTime, Data: v} }

// Compare orders two values of kind-compatible value kinds, coercing via
// spf13/cast when the underlying Go representations differ (e.g. an int32
// literal compared against an int64-backed long). Returns -1/0/1. Panics if
// the kinds are not comparable — callers must have verified compatibility
// during type inference before reaching a Comparison constraint.
func (v Value) Compare(other Value) int {
	switch v.Kind {
	case ValueKindBoolean:
		a, b := cast.ToBool(v.Data), cast.ToBool(other.Data)
		return boolCompare(a, b)
	case ValueKindLong:
		a, b := cast.ToInt64(v.Data), cast.ToInt64(other.Data)
		return int64Compare(a, b)
	case ValueKindDouble:
		a, b := cast.ToFloat64(v.Data), cast.ToFloat64(other.Data)
		return float64Compare(a, b)
	case ValueKindString:
		a, b := cast.ToString(v.Data), cast.ToString(other.Data)
		if a < b {
			return -1
		} else if a > b {
			return 1
		}
		return 0
	case ValueKindDateTime:
		a, b := cast.ToTime(v.Data), cast.ToTime(other.Data)
		if a.Before(b) {
			return -1
		} else if a.After(b) {
			return 1
		}
		return 0
	default:
		panic("core: incomparable value kind")
	}
}

func boolCompare(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func float64Compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports value equality under the same coercion rules as Compare.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	return v.Compare(other) == 0
}
