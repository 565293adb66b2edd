package schema

import "github.com/ssargent/freyjadoc/pkg/fieldindex"

// FieldSet selects a subset of field ids, for example the fields a reader
// asked for.
type FieldSet interface {
	Contains(id fieldindex.FieldID) bool
}

type allFields struct{}

func (allFields) Contains(fieldindex.FieldID) bool { return true }

type noFields struct{}

func (noFields) Contains(fieldindex.FieldID) bool { return false }

var (
	AllFields FieldSet = allFields{}
	NoFields  FieldSet = noFields{}
)

// FieldList is an explicit set of ids.
type FieldList map[fieldindex.FieldID]struct{}

func NewFieldList(ids ...fieldindex.FieldID) FieldList {
	l := make(FieldList, len(ids))
	for _, id := range ids {
		l[id] = struct{}{}
	}
	return l
}

func (l FieldList) Contains(id fieldindex.FieldID) bool {
	_, ok := l[id]
	return ok
}

// FieldNames resolves names against st into a FieldList.
func FieldNames(st *StructType, names ...string) (FieldList, error) {
	l := make(FieldList, len(names))
	for _, name := range names {
		f, err := st.Field(name)
		if err != nil {
			return nil, err
		}
		l[f.ID] = struct{}{}
	}
	return l, nil
}
