// Package schema describes struct types: which field ids exist, their names,
// and how each field's payload is encoded.
//
// It also owns the struct record header, the part of a serialized record
// that lists field ids and payload sizes. The header is written in the same
// pass as the payloads, which lets a reader index a record without decoding
// any field.
package schema
