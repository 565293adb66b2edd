package document

import (
	"github.com/cockroachdb/errors"

	"github.com/ssargent/freyjadoc/pkg/compression"
	"github.com/ssargent/freyjadoc/pkg/fieldindex"
	"github.com/ssargent/freyjadoc/pkg/schema"
)

// Marshal writes the visible fields of v, in id order, as one record. Raw
// bytes are copied without decoding, so ids unknown to the struct type
// survive. The payload section is compressed with cfg.
func (v *StructValue) Marshal(cfg compression.Config) ([]byte, error) {
	ids := v.RawFieldIDs()
	sizes := make([]schema.FieldSize, 0, len(ids))
	var payload []byte
	for _, id := range ids {
		raw, _, err := v.RawField(id)
		if err != nil {
			return nil, err
		}
		payload = append(payload, raw...)
		sizes = append(sizes, schema.FieldSize{ID: id, Size: uint32(len(raw))})
	}

	t, data, err := compression.Compress(cfg, payload)
	if err != nil {
		return nil, errors.Wrap(err, "compress struct payload")
	}
	h := schema.Header{
		Version:         SerializationVersion,
		Type:            v.typeName(),
		Compression:     t,
		UncompressedLen: uint32(len(payload)),
		DataLen:         uint32(len(data)),
		Fields:          sizes,
	}
	out := schema.AppendHeader(make([]byte, 0, 16+4*len(sizes)+len(data)), h)
	return append(out, data...), nil
}

func (v *StructValue) typeName() string {
	if v.typ == nil {
		return ""
	}
	return v.typ.Name()
}

// Deserialize loads a record produced by Marshal without decoding or
// decompressing it. The record must have been written as st. A record without fields resets v. v takes ownership of
// data.
func (v *StructValue) Deserialize(st *schema.StructType, data []byte) error {
	h, n, err := schema.ReadHeader(data)
	if err != nil {
		return corrupt(err, "read %s header", st.Name())
	}
	if h.Type != st.Name() {
		err := errors.Newf("record of type %q read as %q", h.Type, st.Name())
		return errors.Mark(errors.Mark(err, ErrWrongType), ErrCorruption)
	}
	rest := data[n:]
	if len(rest) != int(h.DataLen) {
		return errors.Mark(errors.Newf("%s record: %d payload bytes, header says %d",
			st.Name(), len(rest), h.DataLen), ErrCorruption)
	}
	entries, err := fieldindex.Index(int(h.UncompressedLen), h.Scan())
	if err != nil {
		return corrupt(err, "index %s record", st.Name())
	}
	if entries.Size() != int(h.UncompressedLen) {
		return errors.Mark(errors.Newf("%s record: fields cover %d of %d payload bytes",
			st.Name(), entries.Size(), h.UncompressedLen), ErrCorruption)
	}
	if len(entries) == 0 {
		v.Reset()
		v.typ = st
		v.version = h.Version
		return nil
	}
	return v.LazyDeserialize(st, h.Version, entries, rest, h.Compression, int(h.UncompressedLen))
}

// Unmarshal returns a new value loaded from data. See Deserialize.
func Unmarshal(st *schema.StructType, data []byte) (*StructValue, error) {
	v := NewStructValue(st)
	if err := v.Deserialize(st, data); err != nil {
		return nil, err
	}
	return v, nil
}
