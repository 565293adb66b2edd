// Package fieldindex maps field identifiers to byte ranges inside the
// serialized chunks of a struct record.
//
// A record is held as at most two chunks. Chunk 0 is the bytes read from
// storage, indexed but never decoded up front, and possibly still
// compressed. Chunk 1 is an append-only overlay holding fields written after
// chunk 0 was loaded. Lookups go through the chunks from back to front, so an
// id in the overlay shadows the same id in the base chunk.
//
// Indexing only records offsets. Field payloads are opaque here; decoding
// them is the job of the schema layer.
package fieldindex
