package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/bitsong/usb/internal/engine"
	"github.com/bitsong/usb/internal/envelope"
	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/jackal"
	"github.com/bitsong/usb/internal/metrics"
	"github.com/bitsong/usb/internal/reply"
	"github.com/bitsong/usb/internal/wire"
)

// BatchAccepted is the batch metric result for a batch handed to the engine.
const BatchAccepted = "accepted"

// Request is one command batch submitted by a caller.
type Request struct {
	Sender    string
	Commands  []jackal.Command
	Funds     []ir.Coin
	WithReply bool
	HostChain string // empty uses the builder default
}

// Handle identifies a submitted batch.
type Handle struct {
	BatchID    string
	DispatchID string
	Call       envelope.Call
	Messages   []wire.EncodedMessage

	pending *reply.Pending
}

// AwaitsReply reports whether the batch requested a completion notification.
func (h *Handle) AwaitsReply() bool {
	return h.pending != nil
}

// Wait blocks until the batch's reply arrives or ctx ends.
func (h *Handle) Wait(ctx context.Context) (reply.Response, error) {
	if h.pending == nil {
		return reply.Response{}, fmt.Errorf("batch %s did not request a reply", h.BatchID)
	}
	return h.pending.Wait(ctx)
}

// Executor runs command batches.
type Executor struct {
	enc     *wire.Encoder
	builder *envelope.Builder
	engine  *engine.Engine
	corr    *reply.Correlator
	metrics *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records batch and encoding counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(x *Executor) {
		x.metrics = m
	}
}

// NewExecutor wires an executor to its encoder, envelope builder, engine and
// correlator.
func NewExecutor(enc *wire.Encoder, builder *envelope.Builder, eng *engine.Engine, corr *reply.Correlator, opts ...Option) *Executor {
	x := &Executor{
		enc:     enc,
		builder: builder,
		engine:  eng,
		corr:    corr,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute encodes req.Commands, builds one outer call and submits it.
//
// Encoding errors carry the index of the failing command. When a reply is
// requested and the dispatch reply token is still held by another batch,
// Execute fails with TOKEN_IN_FLIGHT. A relay failure is never returned
// here: it arrives as a failed Response through Handle.Wait.
func (x *Executor) Execute(ctx context.Context, req Request) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := x.execute(req)
	if err != nil {
		x.metrics.Batch(batchResult(err))
		return nil, err
	}
	x.metrics.Batch(BatchAccepted)
	lo.ForEach(h.Messages, func(m wire.EncodedMessage, _ int) {
		x.metrics.Encoded(m.TypeURL)
	})
	return h, nil
}

// ExecuteOne submits a single command.
func (x *Executor) ExecuteOne(ctx context.Context, sender string, cmd jackal.Command, withReply bool) (*Handle, error) {
	return x.Execute(ctx, Request{
		Sender:    sender,
		Commands:  []jackal.Command{cmd},
		WithReply: withReply,
	})
}

func (x *Executor) execute(req Request) (*Handle, error) {
	msgs, err := x.enc.EncodeAll(req.Sender, req.Commands)
	if err != nil {
		return nil, err
	}

	var token reply.Token
	if req.WithReply {
		token = reply.DispatchReply
	}

	call, err := x.builder.Build(msgs, envelope.Options{
		HostChain:  req.HostChain,
		Funds:      req.Funds,
		ReplyToken: uint64(token),
	})
	if err != nil {
		return nil, err
	}
	rendered, err := call.Render()
	if err != nil {
		return nil, fmt.Errorf("render call: %w", err)
	}

	d, err := x.engine.Stamp(ir.Dispatch{
		BatchID:        x.engine.NewBatch(),
		Sender:         req.Sender,
		HostChain:      call.HostChain,
		ReplyToken:     uint64(token),
		TypeURLs:       call.TypeURLs(),
		Funds:          lo.Ternary(call.Funds() == nil, []ir.Coin{}, call.Funds()),
		Call:           rendered,
		CatalogVersion: x.enc.Registry().Version(),
	})
	if err != nil {
		return nil, err
	}

	h := &Handle{
		BatchID:    d.BatchID,
		DispatchID: d.ID,
		Call:       call,
		Messages:   msgs,
	}

	// The token is held before the dispatch is queued so a fast reply always
	// finds its pending batch.
	if req.WithReply {
		h.pending, err = x.corr.Acquire(token, d.ID)
		if err != nil {
			return nil, err
		}
	}

	if err := x.engine.Submit(d); err != nil {
		if req.WithReply {
			x.corr.Release(token, d.ID)
		}
		return nil, fmt.Errorf("submit batch %s: %w", d.BatchID, err)
	}

	slog.Debug("batch submitted",
		"batch_id", d.BatchID,
		"dispatch_id", d.ID,
		"messages", len(msgs),
		"reply_token", d.ReplyToken,
	)
	return h, nil
}

func batchResult(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "error"
}
