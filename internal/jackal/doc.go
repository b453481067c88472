// Package jackal models the closed set of storage-network operations a local
// account can issue against the Jackal chain.
//
// Each operation is a plain value type implementing Command. Construction
// never fails and performs no validation; the encoder decides later whether a
// command can be expressed on the wire. The catch-all variants Delete and
// Unsupported are representable so they are rejected rather than dropped.
//
// The JSON form is an externally tagged union keyed by the snake_case
// operation name:
//
//	{"post_file": {"hash_parent": "...", "hash_child": "...", ...}}
//
// Decoding requires every declared field of the variant to be present.
package jackal
