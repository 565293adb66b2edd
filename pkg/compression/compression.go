// Package compression defines the pluggable codecs used for struct chunks
// and cache blobs.
//
// Algorithms are identified by a Type tag that is persisted next to the
// compressed bytes. A tag is resolved to a Codec only when it is used, so a
// process can carry blobs written with codecs it does not have.
package compression

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Type identifies a compression algorithm. The numeric values are written
// to disk and must never change.
type Type uint8

const (
	None           Type = 0
	Uncompressable Type = 5
	LZ4            Type = 6
	Zstd           Type = 7
	Snappy         Type = 8
	Deflate        Type = 9
)

// ErrUnsupported is returned when no codec is registered for a Type.
var ErrUnsupported = errors.New("unsupported compression type")

var typeNames = map[Type]string{
	None:           "none",
	Uncompressable: "uncompressable",
	LZ4:            "lz4",
	Zstd:           "zstd",
	Snappy:         "snappy",
	Deflate:        "deflate",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Stored reports whether data tagged with t is kept verbatim.
func (t Type) Stored() bool {
	return t == None || t == Uncompressable
}

// ParseType maps a configuration name to a Type. The empty string is None.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, nil
	}
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return None, errors.Wrapf(ErrUnsupported, "unknown compression %q", s)
}

// Codec compresses and decompresses whole buffers. Implementations must be
// safe for concurrent use.
type Codec interface {
	// Compress appends the compressed form of src to dst. Level is passed
	// through from Config and interpreted by the codec.
	Compress(dst, src []byte, level int) ([]byte, error)
	// Decompress appends the decompressed form of src to dst. The result
	// must be exactly expectedLen bytes long.
	Decompress(dst, src []byte, expectedLen int) ([]byte, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[Type]Codec{}
)

// Register installs a codec for t, replacing any previous one.
func Register(t Type, c Codec) {
	if t.Stored() {
		panic("compression: cannot register a codec for " + t.String())
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = c
}

// Lookup returns the codec registered for t.
func Lookup(t Type) (Codec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "no codec for %s (%d)", t, uint8(t))
	}
	return c, nil
}

func init() {
	Register(LZ4, newLZ4Codec())
	Register(Snappy, snappyCodec{})
	Register(Zstd, newZstdCodec())
	Register(Deflate, deflateCodec{})
}
