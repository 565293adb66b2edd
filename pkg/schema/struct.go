package schema

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/freyjadoc/pkg/compression"
	"github.com/ssargent/freyjadoc/pkg/fieldindex"
)

// ErrFieldNotDeclared is returned when a field name or handle is not part of
// a struct type.
var ErrFieldNotDeclared = errors.New("field not declared")

// Field is a named, typed slot of a struct type.
type Field struct {
	ID   fieldindex.FieldID
	Name string
	Type DataType
}

// StructType is immutable after construction apart from its compression
// config, and may be shared by any number of values.
type StructType struct {
	name        string
	fields      []Field
	byName      map[string]Field
	byID        map[fieldindex.FieldID]Field
	compression compression.Config
}

func NewStructType(name string, fields ...Field) (*StructType, error) {
	st := &StructType{
		name:        name,
		byName:      make(map[string]Field, len(fields)),
		byID:        make(map[fieldindex.FieldID]Field, len(fields)),
		compression: compression.DefaultConfig(),
	}
	for _, f := range fields {
		if f.Name == "" || f.Type == nil {
			return nil, errors.Newf("struct %s: field %d needs a name and a type", name, f.ID)
		}
		if _, dup := st.byName[f.Name]; dup {
			return nil, errors.Newf("struct %s: duplicate field name %q", name, f.Name)
		}
		if _, dup := st.byID[f.ID]; dup {
			return nil, errors.Newf("struct %s: duplicate field id %d", name, f.ID)
		}
		st.byName[f.Name] = f
		st.byID[f.ID] = f
		st.fields = append(st.fields, f)
	}
	sort.Slice(st.fields, func(i, j int) bool { return st.fields[i].ID < st.fields[j].ID })
	return st, nil
}

// MustStructType is NewStructType for static declarations.
func MustStructType(name string, fields ...Field) *StructType {
	st, err := NewStructType(name, fields...)
	if err != nil {
		panic(err)
	}
	return st
}

func (st *StructType) Name() string { return st.name }

// Fields returns the declared fields ordered by id.
func (st *StructType) Fields() []Field {
	return append([]Field(nil), st.fields...)
}

func (st *StructType) HasField(name string) bool {
	_, ok := st.byName[name]
	return ok
}

func (st *StructType) Field(name string) (Field, error) {
	f, ok := st.byName[name]
	if !ok {
		return Field{}, errors.Wrapf(ErrFieldNotDeclared, "struct %s has no field %q", st.name, name)
	}
	return f, nil
}

func (st *StructType) FieldByID(id fieldindex.FieldID) (Field, bool) {
	f, ok := st.byID[id]
	return f, ok
}

// Owns reports whether f is the field this type declares under f.ID.
func (st *StructType) Owns(f Field) bool {
	own, ok := st.byID[f.ID]
	return ok && own.Name == f.Name && own.Type.Name() == f.Type.Name()
}

// Compression is the config used for the payload section of serialized
// values of this type.
func (st *StructType) Compression() compression.Config { return st.compression }

func (st *StructType) SetCompression(cfg compression.Config) { st.compression = cfg }
