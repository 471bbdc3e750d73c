// Package schema describes the entities and fields TQL statements may
// reference, and the providers that discover them.
//
// A Snapshot is immutable once handed to the resolver. Lookups are
// case-insensitive; the declared spelling is preserved for SQL emission.
package schema

import (
	"context"
	"sort"
	"strings"
)

// FieldType is the logical type of a field.
type FieldType string

const (
	TypeUnknown  FieldType = ""
	TypeNumber   FieldType = "number"
	TypeText     FieldType = "text"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
	TypeBoolean  FieldType = "boolean"
)

// IsNumeric reports whether the field holds numbers.
func (t FieldType) IsNumeric() bool { return t == TypeNumber }

// IsTemporal reports whether the field holds dates or timestamps.
func (t FieldType) IsTemporal() bool { return t == TypeDate || t == TypeDateTime }

// IsText reports whether the field holds text.
func (t FieldType) IsText() bool { return t == TypeText }

// Known reports whether the type was declared.
func (t FieldType) Known() bool { return t != TypeUnknown }

// ParseFieldType maps a logical or SQL type name to a FieldType.
// Unrecognized names map to TypeUnknown, which disables type checks.
func ParseFieldType(name string) FieldType {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	switch {
	case n == "":
		return TypeUnknown
	case n == "number", n == "text", n == "date", n == "datetime", n == "boolean":
		return FieldType(n)
	case strings.Contains(n, "interval"):
		return TypeUnknown
	case strings.HasPrefix(n, "timestamp"), strings.Contains(n, "datetime"):
		return TypeDateTime
	case strings.Contains(n, "date"):
		return TypeDate
	case strings.HasPrefix(n, "bool"):
		return TypeBoolean
	case strings.Contains(n, "int"), strings.Contains(n, "numeric"), strings.Contains(n, "decimal"),
		strings.Contains(n, "real"), strings.Contains(n, "double"), strings.Contains(n, "float"),
		strings.Contains(n, "money"), n == "serial", n == "bigserial":
		return TypeNumber
	case strings.Contains(n, "char"), strings.Contains(n, "text"), strings.Contains(n, "string"),
		n == "uuid", strings.HasPrefix(n, "json"), n == "clob":
		return TypeText
	default:
		return TypeUnknown
	}
}

// Field is one column of an entity.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable"`
}

// Entity is a queryable table.
type Entity struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field looks up a field by name, case-insensitively.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the field names in declaration order.
func (e *Entity) FieldNames() []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Snapshot is the set of entities visible to one compilation.
type Snapshot struct {
	entities map[string]*Entity
}

// NewSnapshot builds a snapshot from entities. Later duplicates replace
// earlier ones.
func NewSnapshot(entities ...*Entity) *Snapshot {
	s := &Snapshot{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		s.add(e)
	}
	return s
}

func (s *Snapshot) add(e *Entity) {
	s.entities[strings.ToLower(e.Name)] = e
}

// Entity looks up an entity by name, case-insensitively.
func (s *Snapshot) Entity(name string) (*Entity, bool) {
	if s == nil {
		return nil, false
	}
	e, ok := s.entities[strings.ToLower(name)]
	return e, ok
}

// EntityNames returns the declared entity names, sorted.
func (s *Snapshot) EntityNames() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

// Entities returns every entity sorted by name.
func (s *Snapshot) Entities() []*Entity {
	names := s.EntityNames()
	out := make([]*Entity, 0, len(names))
	for _, n := range names {
		e, _ := s.Entity(n)
		out = append(out, e)
	}
	return out
}

// Len returns the number of entities.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entities)
}

// Provider supplies the schema for a compilation. It is called once per
// script run; caching is the provider's concern.
type Provider interface {
	GetSchema(ctx context.Context) (*Snapshot, error)
}

// Static is a Provider over a fixed snapshot.
type Static struct {
	snapshot *Snapshot
}

// NewStatic creates a provider that always returns snapshot.
func NewStatic(snapshot *Snapshot) *Static {
	return &Static{snapshot: snapshot}
}

// GetSchema implements Provider.
func (s *Static) GetSchema(context.Context) (*Snapshot, error) {
	return s.snapshot, nil
}
