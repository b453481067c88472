package reply

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsong/usb/internal/ir"
)

func success(token Token, dispatchID string) ir.Reply {
	return ir.Reply{DispatchID: dispatchID, Token: uint64(token), Outcome: ir.OutcomeSuccess}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, Token(1), InstantiateReply)
	assert.Equal(t, Token(2), DispatchReply)
	assert.NotEqual(t, InstantiateReply.Action(), DispatchReply.Action())
	assert.False(t, Token(3).Valid())
	assert.Equal(t, "dispatch_reply(2)", DispatchReply.String())
}

func TestCorrelator_AcquireComplete(t *testing.T) {
	c := NewCorrelator()

	p, err := c.Acquire(DispatchReply, "d1")
	require.NoError(t, err)

	id, ok := c.InFlight(DispatchReply)
	assert.True(t, ok)
	assert.Equal(t, "d1", id)

	resp, err := c.Complete(context.Background(), success(DispatchReply, "d1"))
	require.NoError(t, err)
	assert.Equal(t, Response{
		Action:     "dispatch_reply",
		Token:      DispatchReply,
		DispatchID: "d1",
		Outcome:    ir.OutcomeSuccess,
	}, resp)
	assert.True(t, resp.Succeeded())

	got, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp, got)

	_, ok = c.InFlight(DispatchReply)
	assert.False(t, ok, "token is freed on completion")
}

func TestCorrelator_RejectsSecondBatchWhileInFlight(t *testing.T) {
	c := NewCorrelator()

	_, err := c.Acquire(DispatchReply, "d1")
	require.NoError(t, err)

	_, err = c.Acquire(DispatchReply, "d2")
	require.Error(t, err)
	assert.True(t, ir.IsTokenInFlight(err))
	assert.Contains(t, err.Error(), "d1")

	// The other token is independent.
	_, err = c.Acquire(InstantiateReply, "setup")
	assert.NoError(t, err)

	_, err = c.Complete(context.Background(), success(DispatchReply, "d1"))
	require.NoError(t, err)

	_, err = c.Acquire(DispatchReply, "d2")
	assert.NoError(t, err, "token is reusable after completion")
}

func TestCorrelator_FailureSurfacesDownstreamError(t *testing.T) {
	c := NewCorrelator()
	p, err := c.Acquire(DispatchReply, "d1")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), ir.Reply{
		DispatchID: "d1",
		Token:      uint64(DispatchReply),
		Outcome:    ir.OutcomeFailure,
		Error:      "channel timeout",
	})
	require.NoError(t, err)

	resp, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.Succeeded())
	assert.True(t, ir.IsDownstream(resp.Err))
	assert.Contains(t, resp.Err.Error(), "channel timeout")
}

func TestCorrelator_UnmatchedRepliesChangeNothing(t *testing.T) {
	c := NewCorrelator()

	_, err := c.Complete(context.Background(), success(DispatchReply, "d1"))
	assert.Error(t, err, "nothing in flight")

	p, err := c.Acquire(DispatchReply, "d1")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), success(DispatchReply, "other"))
	assert.Error(t, err, "mismatched dispatch")

	_, err = c.Complete(context.Background(), success(InstantiateReply, "d1"))
	assert.Error(t, err, "wrong token")

	id, ok := c.InFlight(DispatchReply)
	assert.True(t, ok)
	assert.Equal(t, "d1", id)
	select {
	case <-p.Done():
		t.Fatal("pending resolved by an unmatched reply")
	default:
	}
}

func TestCorrelator_CustomHandler(t *testing.T) {
	c := NewCorrelator()
	require.NoError(t, c.Handle(InstantiateReply, func(_ context.Context, r ir.Reply) (Response, error) {
		return Response{Action: "setup_done", Token: InstantiateReply, DispatchID: r.DispatchID, Outcome: r.Outcome}, nil
	}))
	assert.Error(t, c.Handle(Token(9), DefaultHandler(Token(9))))

	_, err := c.Acquire(InstantiateReply, "i1")
	require.NoError(t, err)
	resp, err := c.Complete(context.Background(), success(InstantiateReply, "i1"))
	require.NoError(t, err)
	assert.Equal(t, "setup_done", resp.Action)
}

func TestCorrelator_HandlerErrorStillFreesToken(t *testing.T) {
	c := NewCorrelator()
	boom := errors.New("boom")
	require.NoError(t, c.Handle(DispatchReply, func(context.Context, ir.Reply) (Response, error) {
		return Response{}, boom
	}))

	p, err := c.Acquire(DispatchReply, "d1")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), success(DispatchReply, "d1"))
	assert.ErrorIs(t, err, boom)

	resp, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Err, boom)
	assert.Equal(t, ir.OutcomeFailure, resp.Outcome)

	_, ok := c.InFlight(DispatchReply)
	assert.False(t, ok)
}

func TestCorrelator_Release(t *testing.T) {
	c := NewCorrelator()
	p, err := c.Acquire(DispatchReply, "d1")
	require.NoError(t, err)

	assert.False(t, c.Release(DispatchReply, "other"))
	assert.True(t, c.Release(DispatchReply, "d1"))
	assert.False(t, c.Release(DispatchReply, "d1"))

	_, err = p.Wait(context.Background())
	assert.Error(t, err)

	_, err = c.Acquire(DispatchReply, "d2")
	assert.NoError(t, err)
}

func TestPending_WaitHonorsContext(t *testing.T) {
	c := NewCorrelator()
	p, err := c.Acquire(DispatchReply, "d1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCorrelator_ConcurrentAcquire(t *testing.T) {
	c := NewCorrelator()

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Acquire(DispatchReply, "d"); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won, "exactly one batch holds the token")
}
