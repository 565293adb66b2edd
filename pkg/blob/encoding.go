package blob

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/freyjadoc/pkg/compression"
)

// headerSize is CRC32C(4) + SyncToken(8) + Compression(1) +
// UncompressedSize(4) + CompressedSize(4).
const headerSize = 21

// ErrBadFrame is returned by UnmarshalBinary for frames that are truncated
// or fail the frame CRC.
var ErrBadFrame = errors.New("blob: bad frame")

// MarshalBinary encodes v for persistence:
//
//	[FrameCRC(4)][SyncToken(8)][Compression(1)][UncompressedSize(4)][CompressedSize(4)][Payload][UncompressedCRC(4)]
//
// FrameCRC is a CRC-32C of everything after it. UncompressedCRC is the
// checksum Decompressed verifies.
func (v Value) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize+len(v.buf)+4)
	binary.LittleEndian.PutUint64(buf[4:], v.syncToken)
	buf[12] = byte(v.compression)
	binary.LittleEndian.PutUint32(buf[13:], uint32(v.uncompressedSize))
	binary.LittleEndian.PutUint32(buf[17:], uint32(v.compressedSize))
	copy(buf[headerSize:], v.buf)
	binary.LittleEndian.PutUint32(buf[headerSize+len(v.buf):], v.uncompressedCRC)
	binary.LittleEndian.PutUint32(buf[0:], compression.Checksum(buf[4:]))
	return buf, nil
}

// UnmarshalBinary decodes a frame produced by MarshalBinary. The payload is
// copied; data may be reused by the caller.
func (v *Value) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize+4 {
		return errors.Wrapf(ErrBadFrame, "%d bytes is shorter than the header", len(data))
	}
	if compression.Checksum(data[4:]) != binary.LittleEndian.Uint32(data[0:]) {
		return errors.Wrap(ErrBadFrame, "frame CRC mismatch")
	}
	compressedSize := int(binary.LittleEndian.Uint32(data[17:]))
	if len(data) != headerSize+compressedSize+4 {
		return errors.Wrapf(ErrBadFrame, "frame has %d bytes, expected %d", len(data), headerSize+compressedSize+4)
	}
	payload := data[headerSize : headerSize+compressedSize]
	*v = Value{
		syncToken:        binary.LittleEndian.Uint64(data[4:]),
		compression:      compression.Type(data[12]),
		uncompressedSize: int(binary.LittleEndian.Uint32(data[13:])),
		compressedSize:   compressedSize,
		uncompressedCRC:  binary.LittleEndian.Uint32(data[headerSize+compressedSize:]),
		buf:              append(make([]byte, 0, compressedSize), payload...),
	}
	return nil
}
