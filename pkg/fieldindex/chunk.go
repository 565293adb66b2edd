package fieldindex

import (
	"github.com/cockroachdb/errors"

	"github.com/ssargent/freyjadoc/pkg/compression"
)

// Chunk is one serialized segment of a record together with its index.
// A Chunk is not safe for concurrent use: the first Raw call on a compressed
// chunk replaces the buffer with its decompressed form.
type Chunk struct {
	buf             []byte
	compression     compression.Type
	uncompressedLen int
	entries         EntryMap
	slots           map[FieldID]int
}

// NewChunk wraps buf, which may be compressed with t. The entries refer to
// offsets in the uncompressed bytes and are validated against
// uncompressedLen.
func NewChunk(buf []byte, entries EntryMap, t compression.Type, uncompressedLen int) (*Chunk, error) {
	if t.Stored() && len(buf) != uncompressedLen {
		return nil, errors.Wrapf(ErrCorruption, "uncompressed chunk has %d bytes, header says %d",
			len(buf), uncompressedLen)
	}
	if err := entries.Validate(uncompressedLen); err != nil {
		return nil, err
	}
	c := &Chunk{
		buf:             buf,
		compression:     t,
		uncompressedLen: uncompressedLen,
		entries:         entries,
		slots:           make(map[FieldID]int, len(entries)),
	}
	for i, e := range entries {
		c.slots[e.ID] = i
	}
	if t.Stored() {
		c.compression = compression.None
	}
	return c, nil
}

// NewOverlay returns an empty uncompressed chunk that accepts Put.
func NewOverlay() *Chunk {
	return &Chunk{slots: map[FieldID]int{}}
}

func (c *Chunk) Has(id FieldID) bool {
	_, ok := c.slots[id]
	return ok
}

func (c *Chunk) Len() int { return len(c.entries) }

// Compressed reports whether the buffer has not been decompressed yet.
func (c *Chunk) Compressed() bool { return !c.compression.Stored() }

func (c *Chunk) Compression() compression.Type { return c.compression }

// Buffer returns the chunk bytes as currently held, compressed or not.
func (c *Chunk) Buffer() []byte { return c.buf }

func (c *Chunk) Entries() EntryMap { return c.entries }

// IDs returns the indexed ids in entry order.
func (c *Chunk) IDs() []FieldID {
	ids := make([]FieldID, len(c.entries))
	for i, e := range c.entries {
		ids[i] = e.ID
	}
	return ids
}

// Raw returns the bytes stored for id. A compressed chunk is decompressed on
// the first call and kept decompressed afterwards.
func (c *Chunk) Raw(id FieldID) ([]byte, bool, error) {
	slot, ok := c.slots[id]
	if !ok {
		return nil, false, nil
	}
	if err := c.decompress(); err != nil {
		return nil, false, err
	}
	e := c.entries[slot]
	return c.buf[e.Offset:e.End():e.End()], true, nil
}

func (c *Chunk) decompress() error {
	if !c.Compressed() {
		return nil
	}
	out, err := compression.Decompress(c.compression, c.buf, c.uncompressedLen)
	if err != nil {
		if errors.Is(err, compression.ErrUnsupported) {
			return err
		}
		return errors.Mark(errors.Wrap(err, "decompress chunk"), ErrCorruption)
	}
	c.buf = out
	c.compression = compression.None
	return nil
}

// Put appends raw to the chunk and points id at it, replacing an earlier
// range for the same id. The replaced bytes stay in the buffer unreferenced.
func (c *Chunk) Put(id FieldID, raw []byte) {
	if c.Compressed() {
		panic("fieldindex: Put on a compressed chunk")
	}
	r := Range{Offset: uint32(len(c.buf)), Length: uint32(len(raw))}
	c.buf = append(c.buf, raw...)
	c.uncompressedLen = len(c.buf)
	if slot, ok := c.slots[id]; ok {
		c.entries[slot].Range = r
		return
	}
	c.slots[id] = len(c.entries)
	c.entries = append(c.entries, Entry{ID: id, Range: r})
}

// Delete removes id from the index. The bytes are left in place.
func (c *Chunk) Delete(id FieldID) bool {
	slot, ok := c.slots[id]
	if !ok {
		return false
	}
	c.entries = append(c.entries[:slot], c.entries[slot+1:]...)
	delete(c.slots, id)
	for i := slot; i < len(c.entries); i++ {
		c.slots[c.entries[i].ID] = i
	}
	return true
}
