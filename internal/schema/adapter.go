package schema

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/issuelog/internal/domain"
)

// Kind names a tracker backend.
type Kind string

const (
	KindBugzilla      Kind = "bugzilla"
	KindJira          Kind = "jira"
	KindTrac          Kind = "trac"
	KindTracWordPress Kind = "trac_wordpress"
)

// AttributeType determines how raw change-log text is coerced.
type AttributeType int

const (
	TypeString AttributeType = iota
	TypeText
	TypeInt
	TypeTime
	TypePerson
)

func (t AttributeType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeTime:
		return "time"
	case TypePerson:
		return "person"
	default:
		return "invalid"
	}
}

// Attribute is one snapshot column. Labels are the tracker-native change-log texts that update it;
// attributes without labels are only ever known from the current state.
type Attribute struct {
	Name   string
	Type   AttributeType
	Labels []string
}

// Tracked reports whether any change-log label maps to the attribute.
func (a Attribute) Tracked() bool { return len(a.Labels) > 0 }

// PersonResolver maps an email or tracker user id to a people id.
type PersonResolver interface {
	ResolvePerson(ctx context.Context, identifier string) (domain.PersonID, error)
}

// Adapter describes one tracker kind: its snapshot attributes, its change-log labels and how
// values are coerced.
type Adapter interface {
	Kind() Kind
	// LogTable is the append-only table receiving snapshots.
	LogTable() string
	// ExtTable holds the kind-specific current-state columns; empty when there are none.
	ExtTable() string
	Attributes() []Attribute
	Attribute(name string) (Attribute, bool)
	Lookup(label string) (Attribute, bool)
	Coerce(ctx context.Context, attr Attribute, raw string, resolver PersonResolver) (domain.Value, error)
	FromStored(attr Attribute, stored any) (domain.Value, error)
}

// baseAttributes are the columns of the issues table every kind shares.
func baseAttributes(labels map[string][]string) []Attribute {
	attrs := []Attribute{
		{Name: "type", Type: TypeString},
		{Name: "summary", Type: TypeString},
		{Name: "description", Type: TypeText},
		{Name: "status", Type: TypeString},
		{Name: "resolution", Type: TypeString},
		{Name: "priority", Type: TypeString},
		{Name: "assigned_to", Type: TypePerson},
	}
	for i := range attrs {
		attrs[i].Labels = labels[attrs[i].Name]
	}
	return attrs
}

// BaseColumns lists the attribute names stored in the shared issues table.
func BaseColumns() []string {
	attrs := baseAttributes(nil)
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names
}

type table struct {
	kind     Kind
	logTable string
	extTable string
	attrs    []Attribute
	byName   map[string]Attribute
	byLabel  map[string]Attribute
}

func newTable(kind Kind, logTable, extTable string, attrs []Attribute) *table {
	t := &table{
		kind:     kind,
		logTable: logTable,
		extTable: extTable,
		attrs:    attrs,
		byName:   make(map[string]Attribute, len(attrs)),
		byLabel:  make(map[string]Attribute),
	}
	for _, a := range attrs {
		t.byName[a.Name] = a
		for _, label := range a.Labels {
			t.byLabel[label] = a
		}
	}
	return t
}

func (t *table) Kind() Kind       { return t.kind }
func (t *table) LogTable() string { return t.logTable }
func (t *table) ExtTable() string { return t.extTable }

func (t *table) Attributes() []Attribute {
	out := make([]Attribute, len(t.attrs))
	copy(out, t.attrs)
	return out
}

func (t *table) Attribute(name string) (Attribute, bool) {
	a, ok := t.byName[name]
	return a, ok
}

func (t *table) Lookup(label string) (Attribute, bool) {
	a, ok := t.byLabel[label]
	return a, ok
}

func (t *table) Coerce(ctx context.Context, attr Attribute, raw string, resolver PersonResolver) (domain.Value, error) {
	return coerce(ctx, attr, raw, resolver)
}

func (t *table) FromStored(attr Attribute, stored any) (domain.Value, error) {
	return fromStored(attr, stored)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// coerce keeps string and text values verbatim, so a change to blanks matches the stored column.
// Only an empty raw value, or a blank one for the other types, is null.
func coerce(ctx context.Context, attr Attribute, raw string, resolver PersonResolver) (domain.Value, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case raw == "":
		return domain.Null(), nil
	case attr.Type == TypeString || attr.Type == TypeText:
		return domain.String(raw), nil
	case trimmed == "":
		return domain.Null(), nil
	}

	switch attr.Type {
	case TypeInt:
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return domain.Null(), fmt.Errorf("%w: %s=%q: %v", domain.ErrValueCoercion, attr.Name, raw, err)
		}
		return domain.Int(n), nil
	case TypeTime:
		at, err := parseTime(trimmed)
		if err != nil {
			return domain.Null(), fmt.Errorf("%w: %s=%q: %v", domain.ErrValueCoercion, attr.Name, raw, err)
		}
		return domain.Time(at), nil
	case TypePerson:
		if resolver == nil {
			return domain.UnknownPerson(), fmt.Errorf("%w: %q", domain.ErrPersonNotFound, raw)
		}
		id, err := resolver.ResolvePerson(ctx, trimmed)
		if err != nil {
			if errors.Is(err, domain.ErrPersonNotFound) {
				return domain.UnknownPerson(), err
			}
			return domain.Null(), err
		}
		return domain.Person(id), nil
	default:
		return domain.Null(), fmt.Errorf("%w: %s has unsupported type %d", domain.ErrValueCoercion, attr.Name, attr.Type)
	}
}

func parseTime(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		at, err := time.Parse(layout, raw)
		if err == nil {
			return at.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func fromStored(attr Attribute, stored any) (domain.Value, error) {
	switch v := stored.(type) {
	case nil:
		return domain.Null(), nil
	case []byte:
		return fromStored(attr, string(v))
	case time.Time:
		if attr.Type != TypeTime {
			return domain.String(v.UTC().Format(time.RFC3339)), nil
		}
		return domain.Time(v), nil
	case int16:
		return fromInteger(attr, int64(v))
	case int32:
		return fromInteger(attr, int64(v))
	case int64:
		return fromInteger(attr, v)
	case int:
		return fromInteger(attr, int64(v))
	case string:
		switch attr.Type {
		case TypeString, TypeText:
			return domain.String(v), nil
		case TypePerson:
			id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return domain.Null(), fmt.Errorf("%w: %s=%q", domain.ErrValueCoercion, attr.Name, v)
			}
			return domain.Person(domain.PersonID(id)), nil
		default:
			return coerce(context.Background(), attr, v, nil)
		}
	default:
		return domain.Null(), fmt.Errorf("%w: %s has stored type %T", domain.ErrValueCoercion, attr.Name, stored)
	}
}

func fromInteger(attr Attribute, n int64) (domain.Value, error) {
	switch attr.Type {
	case TypePerson:
		return domain.Person(domain.PersonID(n)), nil
	case TypeString, TypeText:
		return domain.String(strconv.FormatInt(n, 10)), nil
	case TypeInt:
		return domain.Int(n), nil
	default:
		return domain.Null(), fmt.Errorf("%w: %s cannot hold integer %d", domain.ErrValueCoercion, attr.Name, n)
	}
}
