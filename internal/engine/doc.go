// Package engine implements the relay's single-writer event loop.
//
// The engine receives two kinds of events: dispatches (outer relay calls
// built by the executor) and replies (completion notifications delivered by
// the transport). Both are stamped with a logical sequence number, persisted
// to the store and processed strictly in FIFO order by one goroutine.
//
// Event processing:
//  1. Submit or Deliver enqueue an event (safe from any goroutine).
//  2. Run dequeues events one at a time.
//  3. A dispatch is written to the store and handed to the Relay. A Relay
//     failure is turned into a failed reply and enqueued, so the caller
//     learns about it through the correlator rather than synchronously.
//  4. A reply is written to the store. Only a newly inserted reply carrying
//     a reply token is routed to the correlator.
//
// All events are stamped with a monotonic seq from Clock.Next(). Wall-clock
// time is never used for ordering.
package engine
