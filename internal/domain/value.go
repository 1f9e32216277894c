package domain

import (
	"strconv"
	"time"
)

// ValueKind tags the scalar held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindTime
	KindPerson
	KindUnknownPerson
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	case KindPerson:
		return "person"
	case KindUnknownPerson:
		return "unknown_person"
	default:
		return "invalid"
	}
}

// Value is a typed scalar stored in a snapshot attribute. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  int64
	at   time.Time
}

// Null returns the empty value.
func Null() Value { return Value{} }

// String wraps a textual value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int wraps an integer value.
func Int(n int64) Value { return Value{kind: KindInt, num: n} }

// Time wraps a timestamp. Times are normalised to UTC.
func Time(t time.Time) Value {
	if t.IsZero() {
		return Null()
	}
	return Value{kind: KindTime, at: t.UTC()}
}

// Person wraps a resolved people id.
func Person(id PersonID) Value { return Value{kind: KindPerson, num: int64(id)} }

// UnknownPerson is the placeholder for identities that could not be resolved.
func UnknownPerson() Value { return Value{kind: KindUnknownPerson} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// Int64 returns the integer payload for int and person values.
func (v Value) Int64() int64 { return v.num }

// Timestamp returns the time payload; zero for non-time values.
func (v Value) Timestamp() time.Time { return v.at }

// PersonID returns the people id and whether the value holds a resolved person.
func (v Value) PersonID() (PersonID, bool) {
	if v.kind != KindPerson {
		return 0, false
	}
	return PersonID(v.num), true
}

// String renders the value the way it is shown in reports.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt, KindPerson:
		return strconv.FormatInt(v.num, 10)
	case KindTime:
		return v.at.Format(time.RFC3339)
	case KindUnknownPerson:
		return "unknown"
	default:
		return ""
	}
}

// Equal compares kind and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindInt, KindPerson:
		return v.num == other.num
	case KindTime:
		return v.at.Equal(other.at)
	default:
		return true
	}
}

// SQL returns the driver value for the column. Null and unknown people are stored as NULL.
func (v Value) SQL() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt, KindPerson:
		return v.num
	case KindTime:
		return v.at
	default:
		return nil
	}
}

// MarshalText lets values appear as plain strings in JSON output.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
