// Package blob holds serialized payloads in compressed form for caching.
//
// A Value records the sync token of the write that produced it, the
// compression that was actually applied, both sizes, and a CRC-32C of the
// uncompressed bytes. Decompressed verifies the CRC every time, so a damaged
// cache entry is reported instead of returned.
//
// A Value owns its buffer. Assigning a Value moves it: both copies share the
// buffer. Clone makes an independent copy. Values are not synchronized and
// must be treated as read-only once they are shared.
package blob

import (
	"github.com/cockroachdb/errors"

	"github.com/ssargent/freyjadoc/pkg/compression"
)

type Value struct {
	syncToken        uint64
	compression      compression.Type
	compressedSize   int
	uncompressedSize int
	uncompressedCRC  uint32
	buf              []byte
}

// New returns an empty value stamped with syncToken.
func New(syncToken uint64) Value {
	return Value{syncToken: syncToken}
}

func checkLen(buf []byte, n int) error {
	if n < 0 || n > len(buf) {
		return errors.Newf("blob: length %d outside buffer of %d bytes", n, len(buf))
	}
	return nil
}

// Set compresses the first n bytes of buf with cfg. The stored compression
// tag may be None or Uncompressable when compression does not pay off.
func (v *Value) Set(buf []byte, n int, cfg compression.Config) error {
	if err := checkLen(buf, n); err != nil {
		return err
	}
	src := buf[:n]
	t, out, err := compression.Compress(cfg, src)
	if err != nil {
		return errors.Wrap(err, "blob")
	}
	v.store(t, out, src)
	return nil
}

// SetUncompressed stores the first n bytes of buf verbatim.
func (v *Value) SetUncompressed(buf []byte, n int) error {
	if err := checkLen(buf, n); err != nil {
		return err
	}
	v.store(compression.None, buf[:n], buf[:n])
	return nil
}

func (v *Value) store(t compression.Type, payload, uncompressed []byte) {
	v.compression = t
	v.buf = append(make([]byte, 0, len(payload)), payload...)
	v.compressedSize = len(payload)
	v.uncompressedSize = len(uncompressed)
	v.uncompressedCRC = compression.Checksum(uncompressed)
}

// Decompressed returns the uncompressed payload. ok is false when the
// payload cannot be decompressed or its CRC does not match, which means the
// blob is damaged. err is only set when the blob uses a codec this process
// does not have.
func (v Value) Decompressed() (data []byte, ok bool, err error) {
	out, err := compression.Decompress(v.compression, v.buf, v.uncompressedSize)
	if err != nil {
		if errors.Is(err, compression.ErrUnsupported) {
			return nil, false, err
		}
		return nil, false, nil
	}
	if !compression.Verify(out, v.uncompressedCRC) {
		return out, false, nil
	}
	if v.compression.Stored() {
		out = append([]byte(nil), out...)
	}
	return out, true, nil
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	c := v
	if v.buf != nil {
		c.buf = append(make([]byte, 0, len(v.buf)), v.buf...)
	}
	return c
}

// Size is the stored (compressed) size in bytes.
func (v Value) Size() int                     { return v.compressedSize }
func (v Value) Empty() bool                   { return v.Size() == 0 }
func (v Value) SyncToken() uint64             { return v.syncToken }
func (v Value) Compression() compression.Type { return v.compression }
func (v Value) UncompressedSize() int         { return v.uncompressedSize }
func (v Value) Checksum() uint32              { return v.uncompressedCRC }

// Bytes returns the stored payload. Callers must not modify it.
func (v Value) Bytes() []byte { return v.buf }
