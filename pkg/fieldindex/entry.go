package fieldindex

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// FieldID is the numeric identifier a struct type assigns to a field.
type FieldID uint32

// ErrCorruption is returned when index data does not fit the buffer it
// describes.
var ErrCorruption = errors.New("field index corruption")

// Range is a byte range [Offset, Offset+Length) inside a chunk buffer.
type Range struct {
	Offset uint32
	Length uint32
}

func (r Range) End() uint64 {
	return uint64(r.Offset) + uint64(r.Length)
}

type Entry struct {
	ID FieldID
	Range
}

// EntryMap is the index of one chunk, in the order the fields were written.
type EntryMap []Entry

// ScanFunc is a decoding routine supplied by the schema layer. It reports
// every field range it finds in a chunk through emit.
type ScanFunc func(emit func(id FieldID, r Range)) error

// Index runs scan and returns the validated entries for a chunk of size
// bytes.
func Index(size int, scan ScanFunc) (EntryMap, error) {
	var entries EntryMap
	err := scan(func(id FieldID, r Range) {
		entries = append(entries, Entry{ID: id, Range: r})
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "scan fields"), ErrCorruption)
	}
	if err := entries.Validate(size); err != nil {
		return nil, err
	}
	return entries, nil
}

// Validate checks that every range lies within size bytes and that no id
// appears twice.
func (m EntryMap) Validate(size int) error {
	if size < 0 {
		return errors.Wrapf(ErrCorruption, "negative chunk size %d", size)
	}
	seen := make(map[FieldID]struct{}, len(m))
	for _, e := range m {
		if e.End() > uint64(size) {
			return errors.Wrapf(ErrCorruption, "field %d range [%d, %d) exceeds chunk size %d",
				e.ID, e.Offset, e.End(), size)
		}
		if _, dup := seen[e.ID]; dup {
			return errors.Wrapf(ErrCorruption, "field %d indexed twice", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Size returns the number of payload bytes the entries cover.
func (m EntryMap) Size() int {
	n := 0
	for _, e := range m {
		n += int(e.Length)
	}
	return n
}

// SortedIDs returns the ids in ascending order.
func (m EntryMap) SortedIDs() []FieldID {
	ids := make([]FieldID, len(m))
	for i, e := range m {
		ids[i] = e.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
