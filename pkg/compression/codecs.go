package compression

import (
	"bytes"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func lengthError(t Type, want, got int) error {
	return errors.Newf("%s: decompressed length %d, expected %d", t, got, want)
}

type snappyCodec struct{}

func (snappyCodec) Compress(dst, src []byte, _ int) ([]byte, error) {
	return append(dst, snappy.Encode(nil, src)...), nil
}

func (snappyCodec) Decompress(dst, src []byte, expectedLen int) ([]byte, error) {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return nil, errors.Wrap(err, "snappy")
	}
	if n != expectedLen {
		return nil, lengthError(Snappy, expectedLen, n)
	}
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, errors.Wrap(err, "snappy")
	}
	return append(dst, out...), nil
}

// zstdCodec keeps one encoder per level; EncodeAll and DecodeAll are safe
// for concurrent use.
type zstdCodec struct {
	mu       sync.Mutex
	encoders map[zstd.EncoderLevel]*zstd.Encoder
	decoder  *zstd.Decoder
	initErr  error
}

func newZstdCodec() *zstdCodec {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	return &zstdCodec{
		encoders: map[zstd.EncoderLevel]*zstd.Encoder{},
		decoder:  dec,
		initErr:  err,
	}
}

func (z *zstdCodec) encoder(level int) (*zstd.Encoder, error) {
	lvl := zstd.SpeedDefault
	if level > 0 {
		lvl = zstd.EncoderLevelFromZstd(level)
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	if enc, ok := z.encoders[lvl]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, "zstd")
	}
	z.encoders[lvl] = enc
	return enc, nil
}

func (z *zstdCodec) Compress(dst, src []byte, level int) ([]byte, error) {
	enc, err := z.encoder(level)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(src, dst), nil
}

func (z *zstdCodec) Decompress(dst, src []byte, expectedLen int) ([]byte, error) {
	if z.initErr != nil {
		return nil, errors.Wrap(z.initErr, "zstd")
	}
	out, err := z.decoder.DecodeAll(src, dst)
	if err != nil {
		return nil, errors.Wrap(err, "zstd")
	}
	return out, nil
}

// lz4Codec writes LZ4 blocks. Level 0 uses the fast compressor, levels 1
// to 9 the high compression one with increasing search depth.
type lz4Codec struct {
	fast sync.Pool
	hc   sync.Pool
}

func newLZ4Codec() *lz4Codec {
	return &lz4Codec{
		fast: sync.Pool{New: func() any { return new(lz4.Compressor) }},
		hc:   sync.Pool{New: func() any { return new(lz4.CompressorHC) }},
	}
}

func (c *lz4Codec) Compress(dst, src []byte, level int) ([]byte, error) {
	if len(src) == 0 {
		return dst, nil
	}
	out := make([]byte, lz4.CompressBlockBound(len(src)))
	var n int
	var err error
	if level <= 0 {
		comp := c.fast.Get().(*lz4.Compressor)
		n, err = comp.CompressBlock(src, out)
		c.fast.Put(comp)
	} else {
		if level > 9 {
			level = 9
		}
		comp := c.hc.Get().(*lz4.CompressorHC)
		comp.Level = lz4.CompressionLevel(1 << (8 + level))
		n, err = comp.CompressBlock(src, out)
		c.hc.Put(comp)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lz4")
	}
	return append(dst, out[:n]...), nil
}

func (c *lz4Codec) Decompress(dst, src []byte, expectedLen int) ([]byte, error) {
	if expectedLen == 0 && len(src) == 0 {
		return dst, nil
	}
	out := make([]byte, expectedLen)
	n, err := lz4.UncompressBlock(src, out)
	if err != nil {
		return nil, errors.Wrap(err, "lz4")
	}
	if n != expectedLen {
		return nil, lengthError(LZ4, expectedLen, n)
	}
	return append(dst, out...), nil
}

type deflateCodec struct{}

func (deflateCodec) Compress(dst, src []byte, level int) ([]byte, error) {
	if level == 0 {
		level = flate.DefaultCompression
	} else if level > flate.BestCompression {
		level = flate.BestCompression
	}
	buf := bytes.NewBuffer(dst)
	w, err := flate.NewWriter(buf, level)
	if err != nil {
		return nil, errors.Wrap(err, "deflate")
	}
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "deflate")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "deflate")
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decompress(dst, src []byte, expectedLen int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	buf := bytes.NewBuffer(dst)
	// Read one byte past the expected length so oversized streams are caught.
	if _, err := io.Copy(buf, io.LimitReader(r, int64(expectedLen)+1)); err != nil {
		return nil, errors.Wrap(err, "deflate")
	}
	return buf.Bytes(), nil
}
