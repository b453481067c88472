package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/metrics"
	"github.com/bitsong/usb/internal/reply"
	"github.com/bitsong/usb/internal/store"
)

// Relay hands an outer relay call to the transport. Send must not block on
// the completion of the call: the outcome arrives later through
// Engine.Deliver. A Send error means the call never left and is reported to
// the caller as a failed reply.
type Relay interface {
	Send(ctx context.Context, d ir.Dispatch) error
}

// RelayFunc adapts a function to the Relay interface.
type RelayFunc func(ctx context.Context, d ir.Dispatch) error

// Send calls f(ctx, d).
func (f RelayFunc) Send(ctx context.Context, d ir.Dispatch) error {
	return f(ctx, d)
}

// Engine is the single-writer relay event loop.
//
// Thread-safety model:
//   - Stamp, Submit, Deliver, NewBatch: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// All store writes and correlator completions happen in the Run goroutine.
type Engine struct {
	store    *store.Store
	relay    Relay
	corr     *reply.Correlator
	clock    *Clock
	queue    *eventQueue
	batchGen BatchIDGenerator
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the logical clock. Used by tests and recovery.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithBatchIDGenerator replaces the UUIDv7 batch ID generator.
func WithBatchIDGenerator(g BatchIDGenerator) Option {
	return func(e *Engine) {
		e.batchGen = g
	}
}

// WithMetrics records dispatch and reply counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine writing to s, sending through relay and routing
// replies to corr.
func New(s *store.Store, relay Relay, corr *reply.Correlator, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		relay:    relay,
		corr:     corr,
		clock:    NewClock(),
		queue:    newEventQueue(),
		batchGen: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewBatch returns a fresh batch ID.
func (e *Engine) NewBatch() string {
	return e.batchGen.Generate()
}

// Stamp assigns the next seq and the content-addressed ID to d.
// The executor stamps a dispatch before acquiring its reply token so the
// token is held under the final dispatch ID.
func (e *Engine) Stamp(d ir.Dispatch) (ir.Dispatch, error) {
	d.Seq = e.clock.Next()
	if d.RecordVersion == "" {
		d.RecordVersion = ir.RecordVersion
	}
	id, err := ir.DispatchID(d.BatchID, d.Sender, d.HostChain, d.TypeURLs, d.Call, d.Seq)
	if err != nil {
		return ir.Dispatch{}, fmt.Errorf("stamp dispatch: %w", err)
	}
	d.ID = id
	return d, nil
}

// Submit enqueues a stamped dispatch for persistence and sending.
func (e *Engine) Submit(d ir.Dispatch) error {
	if d.ID == "" || d.Seq == 0 {
		return newInvalidEventError(d.ID, "dispatch is not stamped")
	}
	if !e.queue.Enqueue(Event{Type: EventTypeDispatch, Dispatch: &d}) {
		return newStoppedError(d.ID)
	}
	return nil
}

// Deliver stamps r with the next seq and its content-addressed ID and
// enqueues it. Relay transports call Deliver when a completion notification
// arrives.
func (e *Engine) Deliver(r ir.Reply) (ir.Reply, error) {
	if r.DispatchID == "" {
		return ir.Reply{}, newInvalidEventError("", "reply has no dispatch ID")
	}
	if r.Outcome != ir.OutcomeSuccess && r.Outcome != ir.OutcomeFailure {
		return ir.Reply{}, newInvalidEventError(r.DispatchID, fmt.Sprintf("unknown outcome %q", r.Outcome))
	}

	r.Seq = e.clock.Next()
	id, err := ir.ReplyID(r.DispatchID, r.Token, r.Outcome, r.Seq)
	if err != nil {
		return ir.Reply{}, fmt.Errorf("stamp reply: %w", err)
	}
	r.ID = id

	if !e.queue.Enqueue(Event{Type: EventTypeReply, Reply: &r}) {
		return ir.Reply{}, newStoppedError(r.DispatchID)
	}
	return r, nil
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop is called.
//
// On event processing failure the error is logged with the event context
// and processing continues. A retried send could duplicate the outer call
// on the destination chain.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "seq", e.clock.Current())

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue, so this fires
			// immediately once Stop has been called.
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue. Run drains what is already queued and
// returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// processEvent routes an event to its handler.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeDispatch:
		if event.Dispatch == nil {
			return fmt.Errorf("dispatch event missing dispatch data")
		}
		return e.processDispatch(ctx, event.Dispatch)

	case EventTypeReply:
		if event.Reply == nil {
			return fmt.Errorf("reply event missing reply data")
		}
		return e.processReply(ctx, event.Reply)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// processDispatch persists d and hands it to the relay.
func (e *Engine) processDispatch(ctx context.Context, d *ir.Dispatch) error {
	if err := e.store.WriteDispatch(ctx, *d); err != nil {
		return fmt.Errorf("write dispatch %s: %w", d.ID, err)
	}

	slog.Info("dispatch written",
		"id", d.ID,
		"batch_id", d.BatchID,
		"host_chain", d.HostChain,
		"messages", len(d.TypeURLs),
		"seq", d.Seq,
	)

	sendErr := e.relay.Send(ctx, *d)
	if sendErr == nil {
		e.metrics.Dispatch(d.HostChain, metrics.DispatchSent)
		return nil
	}

	e.metrics.Dispatch(d.HostChain, metrics.DispatchFailed)
	slog.Warn("relay send failed",
		"id", d.ID,
		"host_chain", d.HostChain,
		"error", sendErr,
	)

	_, err := e.Deliver(ir.Reply{
		DispatchID: d.ID,
		Token:      d.ReplyToken,
		Outcome:    ir.OutcomeFailure,
		Error:      sendErr.Error(),
	})
	if err != nil {
		// Stopping: nothing will deliver this reply, so free the waiter.
		if d.ReplyToken != 0 && e.corr != nil {
			e.corr.Release(reply.Token(d.ReplyToken), d.ID)
		}
		return fmt.Errorf("report send failure for %s: %w", d.ID, err)
	}
	return nil
}

// processReply persists r and routes it to the correlator.
// A reply that was already recorded is not routed a second time.
func (e *Engine) processReply(ctx context.Context, r *ir.Reply) error {
	inserted, err := e.store.WriteReply(ctx, *r)
	if err != nil {
		return fmt.Errorf("write reply %s: %w", r.ID, err)
	}
	if !inserted {
		slog.Debug("duplicate reply ignored",
			"id", r.ID,
			"dispatch_id", r.DispatchID,
		)
		return nil
	}

	slog.Info("reply written",
		"id", r.ID,
		"dispatch_id", r.DispatchID,
		"token", r.Token,
		"outcome", r.Outcome,
		"seq", r.Seq,
	)

	if r.Token == 0 || e.corr == nil {
		return nil
	}

	token := reply.Token(r.Token)
	resp, err := e.corr.Complete(ctx, *r)
	e.metrics.Reply(token.Action(), resp.Outcome)
	if err != nil {
		return fmt.Errorf("complete %s: %w", token, err)
	}
	return nil
}

// Recover prepares the engine to resume after a restart. The clock moves
// past the highest persisted seq, and every dispatch still waiting for its
// reply re-acquires its token so a late reply is routed. The returned
// pendings belong to those dispatches.
//
// Recover must be called before Run.
func (e *Engine) Recover(ctx context.Context) ([]*reply.Pending, error) {
	maxSeq, err := e.store.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	e.clock.AdvanceTo(maxSeq)

	if e.corr == nil {
		return nil, nil
	}

	dispatches, err := e.store.PendingDispatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}

	pendings := make([]*reply.Pending, 0, len(dispatches))
	for _, d := range dispatches {
		p, err := e.corr.Acquire(reply.Token(d.ReplyToken), d.ID)
		if err != nil {
			slog.Warn("pending dispatch not re-armed",
				"id", d.ID,
				"token", d.ReplyToken,
				"error", err,
			)
			continue
		}
		pendings = append(pendings, p)
	}

	slog.Info("engine recovered",
		"seq", e.clock.Current(),
		"pending", len(pendings),
	)
	return pendings, nil
}

// Abandon completes a dispatch whose reply will never arrive with a failure
// reply, so its reply token can be taken again. The reply is queued like any
// other, so Run must be running for it to be recorded.
func (e *Engine) Abandon(ctx context.Context, dispatchID, reason string) (ir.Reply, error) {
	d, err := e.store.ReadDispatch(ctx, dispatchID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Reply{}, newNotPendingError(dispatchID, "unknown dispatch")
	}
	if err != nil {
		return ir.Reply{}, fmt.Errorf("abandon: %w", err)
	}
	if _, found, err := e.store.ReadReply(ctx, d.ID); err != nil {
		return ir.Reply{}, fmt.Errorf("abandon: %w", err)
	} else if found {
		return ir.Reply{}, newNotPendingError(d.ID, "dispatch already has a reply")
	}

	msg := "abandoned"
	if reason != "" {
		msg += ": " + reason
	}
	slog.Warn("abandoning dispatch",
		"id", d.ID,
		"host_chain", d.HostChain,
		"token", d.ReplyToken,
		"reason", reason,
	)
	return e.Deliver(ir.Reply{
		DispatchID: d.ID,
		Token:      d.ReplyToken,
		Outcome:    ir.OutcomeFailure,
		Error:      msg,
	})
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Store returns the backing store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// QueueLen returns the number of events waiting to be processed.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// logEventError logs a failed event with enough context for manual
// investigation.
func logEventError(event Event, err error) {
	switch event.Type {
	case EventTypeDispatch:
		if event.Dispatch != nil {
			slog.Error("dispatch processing failed",
				"error", err,
				"dispatch_id", event.Dispatch.ID,
				"batch_id", event.Dispatch.BatchID,
				"host_chain", event.Dispatch.HostChain,
				"seq", event.Dispatch.Seq,
			)
		} else {
			slog.Error("dispatch processing failed",
				"error", err,
				"event_type", event.Type.String(),
				"note", "dispatch data was nil",
			)
		}

	case EventTypeReply:
		if event.Reply != nil {
			slog.Error("reply processing failed",
				"error", err,
				"reply_id", event.Reply.ID,
				"dispatch_id", event.Reply.DispatchID,
				"token", event.Reply.Token,
				"seq", event.Reply.Seq,
			)
		} else {
			slog.Error("reply processing failed",
				"error", err,
				"event_type", event.Type.String(),
				"note", "reply data was nil",
			)
		}

	default:
		slog.Error("event processing failed",
			"error", err,
			"event_type", event.Type,
		)
	}
}
