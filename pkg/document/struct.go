package document

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"github.com/ssargent/freyjadoc/pkg/compression"
	"github.com/ssargent/freyjadoc/pkg/fieldindex"
	"github.com/ssargent/freyjadoc/pkg/schema"
)

// SerializationVersion is written into the header of every record produced
// by Marshal.
const SerializationVersion uint16 = 1

// ErrCorruption marks failures to deserialize stored bytes: bad ranges,
// damaged compressed data, or payloads that do not decode as their declared
// type.
var ErrCorruption = errors.New("struct deserialization corruption")

// ErrWrongType marks a record that was written as a different struct type
// than the one it is read as. Errors carrying it also carry ErrCorruption.
var ErrWrongType = errors.New("record written as a different struct type")

// StructValue is a lazily decoded struct record.
type StructValue struct {
	typ        *schema.StructType
	version    uint16
	chunks     fieldindex.Chunks
	overlay    *fieldindex.Chunk
	tombstones map[fieldindex.FieldID]struct{}
	changed    bool
}

// NewStructValue returns an empty, unchanged value of type st.
func NewStructValue(st *schema.StructType) *StructValue {
	return &StructValue{typ: st, version: SerializationVersion}
}

func corrupt(err error, format string, args ...any) error {
	if errors.Is(err, compression.ErrUnsupported) {
		return err
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCorruption)
}

// LazyDeserialize replaces the contents of v with buf, indexed by entries.
// buf may be compressed with t; entries refer to the uncompressed bytes.
// No field is decoded and the changed flag is cleared. v takes ownership of
// buf.
func (v *StructValue) LazyDeserialize(st *schema.StructType, version uint16, entries fieldindex.EntryMap,
	buf []byte, t compression.Type, uncompressedLen int) error {
	c, err := fieldindex.NewChunk(buf, entries, t, uncompressedLen)
	if err != nil {
		return corrupt(err, "load %s chunk", st.Name())
	}
	v.drop()
	v.typ = st
	v.version = version
	v.chunks.Push(c)
	v.changed = false
	return nil
}

func (v *StructValue) Type() *schema.StructType { return v.typ }
func (v *StructValue) Version() uint16          { return v.version }
func (v *StructValue) HasChanged() bool         { return v.changed }

// Chunks exposes the chunk set for inspection.
func (v *StructValue) Chunks() *fieldindex.Chunks { return &v.chunks }

func (v *StructValue) HasField(name string) bool {
	return v.typ != nil && v.typ.HasField(name)
}

// Field resolves name against the value's struct type.
func (v *StructValue) Field(name string) (schema.Field, error) {
	if v.typ == nil {
		return schema.Field{}, errors.Wrapf(schema.ErrFieldNotDeclared, "untyped struct has no field %q", name)
	}
	return v.typ.Field(name)
}

func (v *StructValue) check(f schema.Field) error {
	if v.typ == nil || !v.typ.Owns(f) {
		return errors.Wrapf(schema.ErrFieldNotDeclared, "field %q (%d) does not belong to this struct", f.Name, f.ID)
	}
	return nil
}

// RawField returns the stored bytes for id, which need not be declared by
// the current struct type.
func (v *StructValue) RawField(id fieldindex.FieldID) ([]byte, bool, error) {
	if _, gone := v.tombstones[id]; gone {
		return nil, false, nil
	}
	c, ok := v.chunks.Lookup(id)
	if !ok {
		return nil, false, nil
	}
	raw, ok, err := c.Raw(id)
	if err != nil {
		return nil, false, corrupt(err, "read field %d", id)
	}
	return raw, ok, nil
}

// Value decodes the value of f. It reports false if the record has no value
// for f.
func (v *StructValue) Value(f schema.Field) (any, bool, error) {
	if err := v.check(f); err != nil {
		return nil, false, err
	}
	raw, ok, err := v.RawField(f.ID)
	if err != nil || !ok {
		return nil, false, err
	}
	val, err := f.Type.Decode(raw)
	if err != nil {
		return nil, false, corrupt(err, "field %q", f.Name)
	}
	return val, true, nil
}

// ValueOf is Value by field name.
func (v *StructValue) ValueOf(name string) (any, bool, error) {
	f, err := v.Field(name)
	if err != nil {
		return nil, false, err
	}
	return v.Value(f)
}

func (v *StructValue) HasValue(f schema.Field) bool {
	if v.check(f) != nil {
		return false
	}
	if _, gone := v.tombstones[f.ID]; gone {
		return false
	}
	_, ok := v.chunks.Lookup(f.ID)
	return ok
}

// SetValue encodes val into the overlay chunk. Chunk 0 is left as is.
func (v *StructValue) SetValue(f schema.Field, val any) error {
	if err := v.check(f); err != nil {
		return err
	}
	raw, err := f.Type.Encode(val)
	if err != nil {
		return errors.Wrapf(err, "set %q", f.Name)
	}
	if v.overlay == nil {
		v.overlay = fieldindex.NewOverlay()
		v.chunks.Push(v.overlay)
	}
	v.overlay.Put(f.ID, raw)
	delete(v.tombstones, f.ID)
	v.changed = true
	return nil
}

func (v *StructValue) SetValueOf(name string, val any) error {
	f, err := v.Field(name)
	if err != nil {
		return err
	}
	return v.SetValue(f, val)
}

// RemoveValue hides f from every lookup. Stale bytes in chunk 0 stay in
// place behind a tombstone.
func (v *StructValue) RemoveValue(f schema.Field) error {
	if err := v.check(f); err != nil {
		return err
	}
	if v.overlay != nil {
		v.overlay.Delete(f.ID)
	}
	if v.tombstones == nil {
		v.tombstones = map[fieldindex.FieldID]struct{}{}
	}
	v.tombstones[f.ID] = struct{}{}
	v.changed = true
	return nil
}

func (v *StructValue) visible() map[fieldindex.FieldID]struct{} {
	ids := map[fieldindex.FieldID]struct{}{}
	for i := 0; i < v.chunks.Len(); i++ {
		for _, id := range v.chunks.At(i).IDs() {
			if _, gone := v.tombstones[id]; !gone {
				ids[id] = struct{}{}
			}
		}
	}
	return ids
}

// RawFieldIDs returns every visible field id in ascending order, including
// ids the current struct type does not declare.
func (v *StructValue) RawFieldIDs() []fieldindex.FieldID {
	return v.RawFieldIDsIn(schema.AllFields)
}

// RawFieldIDsIn is RawFieldIDs restricted to fs.
func (v *StructValue) RawFieldIDsIn(fs schema.FieldSet) []fieldindex.FieldID {
	var out []fieldindex.FieldID
	for id := range v.visible() {
		if fs.Contains(id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Iterate calls fn for each declared field that has a value, in id order.
// Ids unknown to the struct type are skipped.
func (v *StructValue) Iterate(fn func(f schema.Field, val any) error) error {
	if v.typ == nil {
		return nil
	}
	for _, id := range v.RawFieldIDs() {
		f, ok := v.typ.FieldByID(id)
		if !ok {
			continue
		}
		val, _, err := v.Value(f)
		if err != nil {
			return err
		}
		if err := fn(f, val); err != nil {
			return err
		}
	}
	return nil
}

// Checksum combines a hash of every visible (id, bytes) pair. The result
// does not depend on which chunk a field came from or on write order.
func (v *StructValue) Checksum() (uint64, error) {
	var sum uint64
	var idBuf [4]byte
	h := xxhash.New()
	for id := range v.visible() {
		raw, _, err := v.RawField(id)
		if err != nil {
			return 0, err
		}
		h.Reset()
		binary.LittleEndian.PutUint32(idBuf[:], uint32(id))
		_, _ = h.Write(idBuf[:])
		_, _ = h.Write(raw)
		sum += h.Sum64()
	}
	return sum, nil
}

// Empty reports whether no field is visible.
func (v *StructValue) Empty() bool {
	return len(v.visible()) == 0
}

func (v *StructValue) drop() {
	v.chunks.Clear()
	v.overlay = nil
	v.tombstones = nil
}

// Clear removes all content and marks v changed.
func (v *StructValue) Clear() {
	v.drop()
	v.changed = true
}

// Reset removes all content and clears the changed flag. It is used when
// the stored record legitimately has no content.
func (v *StructValue) Reset() {
	v.drop()
	v.changed = false
}
