package harness

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bitsong/usb/internal/adapter"
	"github.com/bitsong/usb/internal/catalog"
	"github.com/bitsong/usb/internal/engine"
	"github.com/bitsong/usb/internal/envelope"
	"github.com/bitsong/usb/internal/ir"
	"github.com/bitsong/usb/internal/jackal"
	"github.com/bitsong/usb/internal/relay"
	"github.com/bitsong/usb/internal/reply"
	"github.com/bitsong/usb/internal/store"
	"github.com/bitsong/usb/internal/testutil"
	"github.com/bitsong/usb/internal/wire"
)

// Contract addresses used for every scenario. They only shape the rendered
// outer call, which scenarios never inspect.
const (
	AccountProxy = "bitsong1scenarioproxy"
	IBCClient    = "bitsong1scenarioibcclient"
)

// ErrRelayUnavailable is the send error of the "fail" relay.
var ErrRelayUnavailable = errors.New("relay unavailable")

const (
	replyTimeout = 5 * time.Second
	pollInterval = 2 * time.Millisecond
)

// Harness runs one scenario against a fresh engine.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	exec     *relay.Executor
	adapter  *adapter.Adapter
	app      *adapter.App
	logger   *slog.Logger
}

// observed is what a step produced besides its error.
type observed struct {
	outcome string
	count   *int32
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with batch IDs
// batch-0001, batch-0002, ... so traces are reproducible. Every step waits
// for the reply of its dispatch before the next step starts.
//
// The returned error reports a scenario that could not run at all (bad
// command document, failing setup). Failed expectations land in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	reg, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	loop := &relay.Loopback{}
	if scenario.Relay == RelayFail {
		loop.Fail = ErrRelayUnavailable
	}
	corr := reply.NewCorrelator()
	eng := engine.New(st, loop, corr,
		engine.WithBatchIDGenerator(testutil.NewSequentialBatchIDs("batch")),
	)
	loop.Engine = eng

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(runCtx)
	}()
	defer func() {
		eng.Stop()
		<-done
	}()

	builder := envelope.NewBuilder(envelope.Config{
		AccountProxy: AccountProxy,
		IBCClient:    IBCClient,
		HostChain:    scenario.HostChain,
	})

	resolver := adapter.StaticResolver{
		Accounts: scenario.Accounts,
		Owners:   map[string]string{},
	}
	if scenario.NamespaceOwner != "" {
		resolver.Owners[adapter.Namespace] = scenario.NamespaceOwner
	}

	h := &Harness{
		scenario: scenario,
		store:    st,
		exec:     relay.NewExecutor(wire.NewEncoder(reg), builder, eng, corr),
		adapter:  adapter.NewAdapter(st, resolver),
		app:      adapter.NewApp(st, eng, corr, scenario.Admin),
		logger:   slog.Default().With("scenario", scenario.Name),
	}

	result := NewResult()

	for i, step := range scenario.Setup {
		if _, err := h.runStep(ctx, step); err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
	}

	for i, step := range scenario.Flow {
		obs, err := h.runStep(ctx, step)
		var se *scenarioError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Action, err)
		}
		for _, msg := range checkExpect(i, step, obs, err) {
			result.AddError(msg)
		}
		h.logger.Debug("flow step completed",
			"step", i,
			"action", step.Action,
			"outcome", obs.outcome,
			"error", err,
		)
	}

	trace, err := h.collectTrace(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	result.Trace = trace

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// scenarioError reports a step the scenario document got wrong, as opposed
// to a call that failed.
type scenarioError struct {
	err error
}

func (e *scenarioError) Error() string { return e.err.Error() }
func (e *scenarioError) Unwrap() error { return e.err }

// runStep performs one scenario call.
func (h *Harness) runStep(ctx context.Context, step Step) (observed, error) {
	caller := step.Sender
	if caller == "" {
		caller = h.scenario.Sender
	}

	switch step.Action {
	case ActionSend:
		return h.send(ctx, caller, step)

	case ActionInstantiate:
		resp, err := h.app.Instantiate(ctx, step.Count, step.Config)
		if err != nil {
			return observed{}, err
		}
		return observed{outcome: resp.Outcome}, nil

	case ActionSetStatus:
		_, err := h.adapter.SetStatus(ctx, caller, step.Status)
		return observed{}, err

	case ActionUpdateConfig:
		return observed{}, h.adapter.UpdateConfig(ctx, caller, step.Config)

	case ActionIncrement:
		n, err := h.app.Increment(ctx, caller)
		if err != nil {
			return observed{}, err
		}
		return observed{count: &n}, nil

	case ActionReset:
		return observed{}, h.app.Reset(ctx, caller, step.Count)

	default:
		return observed{}, &scenarioError{err: fmt.Errorf("unknown action %q", step.Action)}
	}
}

// send runs a batch and waits until its reply is recorded.
func (h *Harness) send(ctx context.Context, caller string, step Step) (observed, error) {
	cmds, err := decodeCommands(step.Commands)
	if err != nil {
		return observed{}, &scenarioError{err: err}
	}

	handle, err := h.exec.Execute(ctx, relay.Request{
		Sender:    caller,
		Commands:  cmds,
		Funds:     step.Funds,
		WithReply: step.WithReply,
		HostChain: h.scenario.HostChain,
	})
	if err != nil {
		return observed{}, err
	}

	if handle.AwaitsReply() {
		// Waiting on the handle also guarantees the token is free again.
		waitCtx, cancel := context.WithTimeout(ctx, replyTimeout)
		defer cancel()
		resp, err := handle.Wait(waitCtx)
		if err != nil {
			return observed{}, fmt.Errorf("wait for batch %s: %w", handle.BatchID, err)
		}
		return observed{outcome: resp.Outcome}, nil
	}

	r, err := h.awaitReply(ctx, handle.DispatchID)
	if err != nil {
		return observed{}, err
	}
	return observed{outcome: r.Outcome}, nil
}

// awaitReply polls the store until the reply for dispatchID is recorded.
func (h *Harness) awaitReply(ctx context.Context, dispatchID string) (ir.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		r, found, err := h.store.ReadReply(ctx, dispatchID)
		if err != nil {
			return ir.Reply{}, err
		}
		if found {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return ir.Reply{}, fmt.Errorf("no reply for dispatch %s: %w", dispatchID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// decodeCommands converts YAML command documents to domain commands.
func decodeCommands(docs []map[string]any) ([]jackal.Command, error) {
	cmds := make([]jackal.Command, 0, len(docs))
	for i, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmd, err := jackal.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// checkExpect compares a step's result with its expect clause.
func checkExpect(index int, step Step, obs observed, err error) []string {
	prefix := fmt.Sprintf("flow[%d] %s", index, step.Action)

	if step.Expect != nil && step.Expect.ErrorCode != "" {
		if err == nil {
			return []string{fmt.Sprintf("%s: expected error %s, step succeeded", prefix, step.Expect.ErrorCode)}
		}
		if code := errorCode(err); code != step.Expect.ErrorCode {
			return []string{fmt.Sprintf("%s: expected error %s, got %s (%v)", prefix, step.Expect.ErrorCode, code, err)}
		}
		return nil
	}

	if err != nil {
		return []string{fmt.Sprintf("%s: unexpected error: %v", prefix, err)}
	}
	if step.Expect == nil {
		return nil
	}

	var errs []string
	if step.Expect.Outcome != "" && obs.outcome != step.Expect.Outcome {
		errs = append(errs, fmt.Sprintf("%s: expected outcome %s, got %s", prefix, step.Expect.Outcome, obs.outcome))
	}
	if step.Expect.Count != nil {
		switch {
		case obs.count == nil:
			errs = append(errs, fmt.Sprintf("%s: expected count %d, got none", prefix, *step.Expect.Count))
		case *obs.count != *step.Expect.Count:
			errs = append(errs, fmt.Sprintf("%s: expected count %d, got %d", prefix, *step.Expect.Count, *obs.count))
		}
	}
	return errs
}

// errorCode names the error class of a failed step.
func errorCode(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	if errors.Is(err, adapter.ErrNotInstantiated) {
		return ErrCodeNotInstantiated
	}
	return "ERROR"
}

// ErrCodeNotInstantiated is the error_code scenarios use for counter calls
// made before instantiate.
const ErrCodeNotInstantiated = "NOT_INSTANTIATED"

// collectTrace reads the relay log back as trace events ordered by seq.
func (h *Harness) collectTrace(ctx context.Context) ([]TraceEvent, error) {
	dispatches, err := h.store.ListDispatches(ctx, 0)
	if err != nil {
		return nil, err
	}
	replies, err := h.store.ListReplies(ctx)
	if err != nil {
		return nil, err
	}

	batchOf := make(map[string]string, len(dispatches))
	trace := make([]TraceEvent, 0, len(dispatches)+len(replies))
	for _, d := range dispatches {
		batchOf[d.ID] = d.BatchID
		trace = append(trace, TraceEvent{
			Type:       EventDispatch,
			Seq:        d.Seq,
			BatchID:    d.BatchID,
			Sender:     d.Sender,
			HostChain:  d.HostChain,
			TypeURLs:   d.TypeURLs,
			ReplyToken: d.ReplyToken,
		})
	}
	for _, r := range replies {
		batch, ok := batchOf[r.DispatchID]
		if !ok {
			// Setup replies have no dispatch row.
			batch = r.DispatchID
		}
		ev := TraceEvent{
			Type:    EventReply,
			Seq:     r.Seq,
			BatchID: batch,
			Outcome: r.Outcome,
			Error:   r.Error,
		}
		if r.Token != 0 {
			ev.Action = reply.Token(r.Token).Action()
		}
		trace = append(trace, ev)
	}

	slices.SortStableFunc(trace, func(a, b TraceEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return trace, nil
}
