// Package ir provides the shared record types, error codes and content-addressed
// identity functions for the usb relay.
//
// All other internal packages may import ir; ir imports nothing internal.
//
// Key constraints:
//   - Dispatch and reply IDs are SHA-256 over RFC 8785 canonical JSON with a
//     domain prefix, so the same batch always hashes to the same ID.
//   - Ordering uses the logical seq clock, never wall-clock time.
//   - All JSON tags use snake_case.
package ir
