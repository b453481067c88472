package reply

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bitsong/usb/internal/ir"
)

// Response is what a caller observes when its batch completes.
type Response struct {
	Action     string
	Token      Token
	DispatchID string
	Outcome    string
	Err        error // DOWNSTREAM_FAILURE when the outer call did not complete
}

// Succeeded reports whether the batch completed.
func (r Response) Succeeded() bool {
	return r.Outcome == ir.OutcomeSuccess && r.Err == nil
}

// Handler turns a reply into a Response. Handlers do not interpret the
// destination chain's result payload.
type Handler func(ctx context.Context, r ir.Reply) (Response, error)

// DefaultHandler surfaces the reply outcome under the token's action name.
func DefaultHandler(token Token) Handler {
	return func(_ context.Context, r ir.Reply) (Response, error) {
		resp := Response{
			Action:     token.Action(),
			Token:      token,
			DispatchID: r.DispatchID,
			Outcome:    r.Outcome,
		}
		if !r.Succeeded() {
			resp.Err = ir.NewDownstreamError(r.Error)
		}
		return resp, nil
	}
}

// Pending is an in-flight batch waiting for its reply.
type Pending struct {
	Token      Token
	DispatchID string
	done       chan Response
}

// Done is closed after the response is delivered. It yields exactly one
// Response.
func (p *Pending) Done() <-chan Response {
	return p.done
}

// Wait blocks until the batch completes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Response, error) {
	select {
	case resp, ok := <-p.done:
		if !ok {
			return Response{}, fmt.Errorf("no reply for %s: released or already consumed", p.DispatchID)
		}
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Correlator tracks the in-flight batch per token and routes replies to the
// token's handler. It is safe for concurrent use.
type Correlator struct {
	mu       sync.Mutex
	handlers map[Token]Handler
	pending  map[Token]*Pending
}

// NewCorrelator returns a correlator with DefaultHandler registered for every
// known token.
func NewCorrelator() *Correlator {
	c := &Correlator{
		handlers: make(map[Token]Handler, len(Tokens)),
		pending:  make(map[Token]*Pending, len(Tokens)),
	}
	for _, t := range Tokens {
		c.handlers[t] = DefaultHandler(t)
	}
	return c
}

// Handle replaces the handler for a known token.
func (c *Correlator) Handle(token Token, h Handler) error {
	if !token.Valid() {
		return fmt.Errorf("unknown reply token %d", uint64(token))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[token] = h
	return nil
}

// Acquire reserves token for dispatchID. It fails with TOKEN_IN_FLIGHT while
// another batch holds the token.
func (c *Correlator) Acquire(token Token, dispatchID string) (*Pending, error) {
	if !token.Valid() {
		return nil, fmt.Errorf("unknown reply token %d", uint64(token))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if held, ok := c.pending[token]; ok {
		return nil, ir.NewTokenInFlightError(uint64(token), held.DispatchID)
	}
	p := &Pending{Token: token, DispatchID: dispatchID, done: make(chan Response, 1)}
	c.pending[token] = p
	return p, nil
}

// Release frees token if dispatchID still holds it. Used when a batch is
// abandoned before it is handed to the relay.
func (c *Correlator) Release(token Token, dispatchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[token]
	if !ok || p.DispatchID != dispatchID {
		return false
	}
	delete(c.pending, token)
	close(p.done)
	return true
}

// InFlight returns the dispatch holding token, if any.
func (c *Correlator) InFlight(token Token) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	if !ok {
		return "", false
	}
	return p.DispatchID, true
}

// Complete routes r to the handler of its token, resolves the pending batch
// and frees the token. A reply for a token with no pending batch, or for a
// different dispatch than the one holding the token, changes nothing.
func (c *Correlator) Complete(ctx context.Context, r ir.Reply) (Response, error) {
	token := Token(r.Token)

	c.mu.Lock()
	p, ok := c.pending[token]
	if !ok {
		c.mu.Unlock()
		return Response{}, fmt.Errorf("no batch in flight for %s", token)
	}
	if p.DispatchID != r.DispatchID {
		c.mu.Unlock()
		return Response{}, fmt.Errorf("reply for %s does not match in-flight dispatch %s", r.DispatchID, p.DispatchID)
	}
	delete(c.pending, token)
	h := c.handlers[token]
	c.mu.Unlock()

	resp, err := h(ctx, r)
	if err != nil {
		resp = Response{
			Action:     token.Action(),
			Token:      token,
			DispatchID: r.DispatchID,
			Outcome:    ir.OutcomeFailure,
			Err:        err,
		}
	}

	slog.Debug("reply completed",
		"token", uint64(token),
		"dispatch_id", r.DispatchID,
		"outcome", resp.Outcome,
	)

	p.done <- resp
	close(p.done)
	return resp, err
}
