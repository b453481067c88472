// Package store provides SQLite-backed durable storage for the relay.
//
// The store keeps an append-only log of:
//   - Dispatches: one record per outer relay call
//   - Replies: one completion record per dispatch
//
// and the small collaborator state the adapter owns:
//   - config: global key/value settings
//   - status: per-account status strings
//   - count: the admin counter
//
// # Ordering
//
// All log queries ORDER BY seq ASC, id ASC COLLATE BINARY. seq comes from
// the engine's logical clock, never from wall time, so listings are
// identical across replays.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Record IDs are computed in internal/ir using RFC 8785 canonical JSON and
// SHA-256 with domain separation.
package store
