// Package document holds struct records in their serialized form and decodes
// fields only when they are read.
//
// A StructValue keeps the bytes it was loaded from as chunk 0 and never
// rewrites them. Writes go to an overlay chunk, and removals are recorded as
// tombstones. Reading a field looks in the overlay first, then in chunk 0,
// and decodes just that field's byte range. If chunk 0 is compressed, it is
// decompressed once, on the first read that needs it.
//
// Serialized layout, as produced by Marshal:
//
//	[schema.Header][payload section, possibly compressed]
//
// The header lists (field id, size) pairs, so Unmarshal can index a record
// without decompressing or decoding anything.
//
// StructValue is not safe for concurrent use, including concurrent reads,
// since the first read of a compressed record replaces its buffer.
package document
