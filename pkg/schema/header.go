package schema

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/freyjadoc/pkg/compression"
	"github.com/ssargent/freyjadoc/pkg/fieldindex"
)

// FieldSize records the payload length of one field. Payloads follow each
// other in header order.
type FieldSize struct {
	ID   fieldindex.FieldID
	Size uint32
}

// Header precedes the payload section of a serialized struct:
//
//	[Version uvarint][TypeLen uvarint][Type][Compression(1)]
//	[UncompressedLen uvarint][DataLen uvarint]
//	[Count uvarint] Count x ([ID uvarint][Size uvarint])
//
// Type names the struct type the record was written as. DataLen is the
// length of the payload section as stored, which differs from
// UncompressedLen when Compression is not None.
type Header struct {
	Version         uint16
	Type            string
	Compression     compression.Type
	UncompressedLen uint32
	DataLen         uint32
	Fields          []FieldSize
}

func AppendHeader(dst []byte, h Header) []byte {
	dst = binary.AppendUvarint(dst, uint64(h.Version))
	dst = binary.AppendUvarint(dst, uint64(len(h.Type)))
	dst = append(dst, h.Type...)
	dst = append(dst, byte(h.Compression))
	dst = binary.AppendUvarint(dst, uint64(h.UncompressedLen))
	dst = binary.AppendUvarint(dst, uint64(h.DataLen))
	dst = binary.AppendUvarint(dst, uint64(len(h.Fields)))
	for _, f := range h.Fields {
		dst = binary.AppendUvarint(dst, uint64(f.ID))
		dst = binary.AppendUvarint(dst, uint64(f.Size))
	}
	return dst
}

func headerErrf(format string, args ...any) error {
	return errors.Wrapf(fieldindex.ErrCorruption, "struct header: "+format, args...)
}

// ReadHeader parses a header from the start of data and returns it with the
// number of bytes consumed.
func ReadHeader(data []byte) (Header, int, error) {
	var h Header
	off := 0
	next := func(what string, max uint64) (uint64, error) {
		v, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return 0, headerErrf("bad %s at offset %d", what, off)
		}
		if v > max {
			return 0, headerErrf("%s %d out of range", what, v)
		}
		off += n
		return v, nil
	}

	v, err := next("version", math.MaxUint16)
	if err != nil {
		return h, 0, err
	}
	h.Version = uint16(v)

	if v, err = next("type name length", uint64(len(data)-off)); err != nil {
		return h, 0, err
	}
	if off+int(v) > len(data) {
		return h, 0, headerErrf("type name of %d bytes truncated", v)
	}
	h.Type = string(data[off : off+int(v)])
	off += int(v)

	if off >= len(data) {
		return h, 0, headerErrf("missing compression tag")
	}
	h.Compression = compression.Type(data[off])
	off++

	if v, err = next("uncompressed length", math.MaxUint32); err != nil {
		return h, 0, err
	}
	h.UncompressedLen = uint32(v)
	if v, err = next("data length", math.MaxUint32); err != nil {
		return h, 0, err
	}
	h.DataLen = uint32(v)

	count, err := next("field count", uint64(len(data)))
	if err != nil {
		return h, 0, err
	}
	h.Fields = make([]FieldSize, 0, count)
	for i := uint64(0); i < count; i++ {
		id, err := next("field id", math.MaxUint32)
		if err != nil {
			return h, 0, err
		}
		size, err := next("field size", math.MaxUint32)
		if err != nil {
			return h, 0, err
		}
		h.Fields = append(h.Fields, FieldSize{ID: fieldindex.FieldID(id), Size: uint32(size)})
	}
	return h, off, nil
}

// Scan emits the field ranges described by the header, relative to the
// uncompressed payload section.
func (h Header) Scan() fieldindex.ScanFunc {
	return func(emit func(fieldindex.FieldID, fieldindex.Range)) error {
		var off uint64
		for _, f := range h.Fields {
			if off > math.MaxUint32 {
				return headerErrf("field %d starts beyond 4 GiB", f.ID)
			}
			emit(f.ID, fieldindex.Range{Offset: uint32(off), Length: f.Size})
			off += uint64(f.Size)
		}
		return nil
	}
}
