package schema

import (
	"context"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CUEProvider loads a schema from a CUE (or JSON) file.
//
// Two layouts are accepted under the top-level "entities" struct:
//
//	entities: vendas: {
//		valor:    "number"
//		data:     "date"
//		regiao?:  "text"   // optional fields are nullable
//		produto:  string   // CUE kinds map to logical types
//	}
//
//	entities: vendas: fields: [{name: "valor", type: "number", nullable: false}]
//
// The second form is the schema-introspection wire shape, so a JSON dump of
// an introspected database loads unchanged.
type CUEProvider struct {
	Path string
}

// NewCUEProvider creates a provider reading path on every GetSchema call.
func NewCUEProvider(path string) *CUEProvider {
	return &CUEProvider{Path: path}
}

// GetSchema implements Provider.
func (p *CUEProvider) GetSchema(context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", p.Path, err)
	}
	return ParseCUE(data, p.Path)
}

// ParseCUE compiles CUE source into a snapshot.
func ParseCUE(src []byte, filename string) (*Snapshot, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entitiesVal := v.LookupPath(cue.ParsePath("entities"))
	if !entitiesVal.Exists() {
		return nil, &LoadError{Field: "entities", Message: "entities is required", Pos: v.Pos()}
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	snap := NewSnapshot()
	for iter.Next() {
		entity, err := parseEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		snap.add(entity)
	}
	return snap, nil
}

func parseEntity(name string, v cue.Value) (*Entity, error) {
	entity := &Entity{Name: name, Fields: []Field{}}

	if list := v.LookupPath(cue.ParsePath("fields")); list.Exists() && list.IncompleteKind() == cue.ListKind {
		items, err := list.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for items.Next() {
			f, err := parseFieldObject(name, items.Value())
			if err != nil {
				return nil, err
			}
			entity.Fields = append(entity.Fields, f)
		}
		return entity, nil
	}

	iter, err := v.Fields(cue.Optional(true))
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		ft, err := extractFieldType(iter.Value())
		if err != nil {
			return nil, err
		}
		entity.Fields = append(entity.Fields, Field{
			Name:     iter.Label(),
			Type:     ft,
			Nullable: iter.IsOptional(),
		})
	}
	return entity, nil
}

func parseFieldObject(entity string, v cue.Value) (Field, error) {
	var f Field
	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return f, &LoadError{
			Field:   fmt.Sprintf("entities.%s.fields", entity),
			Message: "field name is required",
			Pos:     v.Pos(),
		}
	}
	f.Name = name

	if t := v.LookupPath(cue.ParsePath("type")); t.Exists() {
		s, err := t.String()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.Type = ParseFieldType(s)
	}
	if n := v.LookupPath(cue.ParsePath("nullable")); n.Exists() {
		b, err := n.Bool()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.Nullable = b
	}
	return f, nil
}

// extractFieldType accepts a concrete type name ("number") or a CUE kind
// (number, string, bool).
func extractFieldType(v cue.Value) (FieldType, error) {
	if s, err := v.String(); err == nil {
		return ParseFieldType(s), nil
	}
	switch v.IncompleteKind() {
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		return TypeNumber, nil
	case cue.StringKind:
		return TypeText, nil
	case cue.BoolKind:
		return TypeBoolean, nil
	case cue.TopKind:
		return TypeUnknown, nil
	default:
		return TypeUnknown, &LoadError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported field kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// LoadError is a schema file error with source position.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &LoadError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
