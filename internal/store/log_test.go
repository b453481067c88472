package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsong/usb/internal/ir"
)

func TestWriteDispatch_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	d := createTestDispatch("d1", 2, 1)
	d.TypeURLs = []string{"/canine_chain.storage.MsgSignContract", "/canine_chain.storage.MsgPostKey"}
	d.Funds = []ir.Coin{{Denom: "ujkl", Amount: "10"}, {Denom: "ubtsg", Amount: "5"}}
	require.NoError(t, s.WriteDispatch(ctx, d))

	got, err := s.ReadDispatch(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestWriteDispatch_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	d := createTestDispatch("d1", 0, 1)
	require.NoError(t, s.WriteDispatch(ctx, d))
	require.NoError(t, s.WriteDispatch(ctx, d))

	all, err := s.ListDispatches(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReadDispatch_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadDispatch(t.Context(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListDispatches_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.WriteDispatch(ctx, createTestDispatch("c", 0, 3)))
	require.NoError(t, s.WriteDispatch(ctx, createTestDispatch("a", 0, 1)))
	require.NoError(t, s.WriteDispatch(ctx, createTestDispatch("b", 0, 2)))

	all, err := s.ListDispatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	limited, err := s.ListDispatches(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListDispatches_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)
	all, err := s.ListDispatches(t.Context(), 0)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestWriteReply_OnePerDispatch(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.WriteDispatch(ctx, createTestDispatch("d1", 2, 1)))

	inserted, err := s.WriteReply(ctx, createTestReply("r1", "d1", 2, 2))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.WriteReply(ctx, createTestReply("r1", "d1", 2, 2))
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate reply ID")

	inserted, err = s.WriteReply(ctx, createTestReply("r2", "d1", 2, 3))
	require.NoError(t, err)
	assert.False(t, inserted, "second reply for the same dispatch")

	r, found, err := s.ReadReply(ctx, "d1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, uint64(2), r.Token)
}

func TestWriteReply_FailureKeepsError(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	r := ir.Reply{ID: "r1", DispatchID: "d1", Token: 2, Outcome: ir.OutcomeFailure, Error: "timeout", Data: []byte("x"), Seq: 4}
	_, err := s.WriteReply(ctx, r)
	require.NoError(t, err)

	got, found, err := s.ReadReply(ctx, "d1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, r, got)
}

func TestWriteReply_RejectsUnknownOutcome(t *testing.T) {
	s := createTestStore(t)
	r := createTestReply("r1", "d1", 2, 1)
	r.Outcome = "maybe"
	_, err := s.WriteReply(t.Context(), r)
	assert.Error(t, err)
}

func TestReadReply_NotSet(t *testing.T) {
	s := createTestStore(t)
	_, found, err := s.ReadReply(t.Context(), "d1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPendingDispatches(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.WriteDispatch(ctx, createTestDispatch("no-reply", 0, 1)))
	require.NoError(t, s.WriteDispatch(ctx, createTestDispatch("done", 2, 2)))
	require.NoError(t, s.WriteDispatch(ctx, createTestDispatch("waiting", 2, 3)))
	_, err := s.WriteReply(ctx, createTestReply("r1", "done", 2, 4))
	require.NoError(t, err)

	pending, err := s.PendingDispatches(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "waiting", pending[0].ID)
}

func TestMaxSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, s.WriteDispatch(ctx, createTestDispatch("d1", 2, 3)))
	_, err = s.WriteReply(ctx, createTestReply("r1", "d1", 2, 7))
	require.NoError(t, err)

	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestListReplies(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.WriteReply(ctx, createTestReply("r2", "d2", 2, 5))
	require.NoError(t, err)
	_, err = s.WriteReply(ctx, createTestReply("r1", "d1", 1, 2))
	require.NoError(t, err)

	replies, err := s.ListReplies(ctx)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(t, "r1", replies[0].ID)
	assert.Equal(t, "r2", replies[1].ID)
}
