package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsong/usb/internal/store"
)

const (
	urlPostKey  = "/canine_chain.storage.MsgPostKey"
	urlMakeRoot = "/canine_chain.filetree.MsgMakeRootV2"
	urlBuy      = "/canine_chain.storage.MsgBuyStorage"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventDispatch, Seq: 1, BatchID: "batch-0001", TypeURLs: []string{urlPostKey, urlMakeRoot}, ReplyToken: 2},
		{Type: EventReply, Seq: 2, BatchID: "batch-0001", Action: "dispatch_reply", Outcome: "success"},
		{Type: EventDispatch, Seq: 3, BatchID: "batch-0002", TypeURLs: []string{urlBuy, urlPostKey}},
		{Type: EventReply, Seq: 4, BatchID: "batch-0002", Outcome: "failure", Error: "relay unavailable"},
	}
}

func TestAssertTraceContains_Found(t *testing.T) {
	tests := []Assertion{
		{Type: AssertTraceContains, TypeURL: urlMakeRoot},
		{Type: AssertTraceContains, Event: EventReply, Outcome: "failure"},
		{Type: AssertTraceContains, ReplyAction: "dispatch_reply", Outcome: "success"},
	}
	for _, a := range tests {
		assert.NoError(t, assertTraceContains(sampleTrace(), a), describeFilter(a))
	}
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	assertion := Assertion{
		Type:        AssertTraceContains,
		ReplyAction: "dispatch_reply",
		Outcome:     "failure", // the failed reply carries no token
	}

	err := assertTraceContains(sampleTrace(), assertion)
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertTraceContains, assertErr.Type)
	assert.Contains(t, assertErr.Expected, "reply_action=dispatch_reply")
	assert.Equal(t, "not found in trace", assertErr.Actual)
}

func TestAssertTraceContains_TypeURLOnlyMatchesDispatches(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:    AssertTraceContains,
		Event:   EventReply,
		TypeURL: urlPostKey,
	})
	assert.Error(t, err)
}

func TestAssertTraceOrder_Correct(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:     AssertTraceOrder,
		TypeURLs: []string{urlPostKey, urlMakeRoot, urlBuy},
	})
	assert.NoError(t, err)
}

func TestAssertTraceOrder_WithinBatchCounts(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:     AssertTraceOrder,
		TypeURLs: []string{urlMakeRoot, urlPostKey},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")
}

func TestAssertTraceOrder_Missing(t *testing.T) {
	err := assertTraceOrder(sampleTrace(), Assertion{
		Type:     AssertTraceOrder,
		TypeURLs: []string{urlPostKey, "/canine_chain.storage.MsgSignContract"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing message: /canine_chain.storage.MsgSignContract")
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{"messages across batches", Assertion{TypeURL: urlPostKey, Count: 2}, false},
		{"single message", Assertion{TypeURL: urlBuy, Count: 1}, false},
		{"absent message", Assertion{TypeURL: "/x", Count: 0}, false},
		{"dispatch events", Assertion{Event: EventDispatch, Count: 2}, false},
		{"failed replies", Assertion{Event: EventReply, Outcome: "failure", Count: 1}, false},
		{"wrong count", Assertion{Event: EventReply, Count: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertTraceCount
			err := assertTraceCount(sampleTrace(), tt.assertion)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "2 matches")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 matches",
		Actual:   "0 matches",
		Trace:    sampleTrace(),
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "[1] dispatch batch-0001")
	assert.Contains(t, msg, "[4] reply batch-0002 failure (relay unavailable)")
}

// stateStore returns a store holding one status row and a count.
func stateStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/state.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.SetStatus(ctx, "acct-7", "active"))
	require.NoError(t, st.SetStatus(ctx, "acct-8", "idle"))
	require.NoError(t, st.SetCount(ctx, 42))
	return st
}

func TestAssertFinalState_Match(t *testing.T) {
	st := stateStore(t)
	ctx := context.Background()

	err := assertFinalState(ctx, st, Assertion{
		Type:   AssertFinalState,
		Table:  "status",
		Where:  map[string]any{"account_id": "acct-7"},
		Expect: map[string]any{"status": "active"},
	})
	assert.NoError(t, err)

	err = assertFinalState(ctx, st, Assertion{
		Type:   AssertFinalState,
		Table:  "count",
		Where:  map[string]any{"id": 1},
		Expect: map[string]any{"value": 42},
	})
	assert.NoError(t, err)
}

func TestAssertFinalState_Failures(t *testing.T) {
	st := stateStore(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "value mismatch",
			assertion: Assertion{Table: "status", Where: map[string]any{"account_id": "acct-7"}, Expect: map[string]any{"status": "idle"}},
			wantErr:   `field "status" = idle`,
		},
		{
			name:      "row not found",
			assertion: Assertion{Table: "status", Where: map[string]any{"account_id": "acct-9"}, Expect: map[string]any{"status": "active"}},
			wantErr:   "row not found",
		},
		{
			name:      "ambiguous",
			assertion: Assertion{Table: "status", Expect: map[string]any{"status": "active"}},
			wantErr:   "multiple rows matched",
		},
		{
			name:      "unknown column",
			assertion: Assertion{Table: "count", Expect: map[string]any{"total": 42}},
			wantErr:   `field "total" not present`,
		},
		{
			name:      "unknown table",
			assertion: Assertion{Table: "ledger", Expect: map[string]any{"x": 1}},
			wantErr:   "query error",
		},
		{
			name:      "injected table",
			assertion: Assertion{Table: "status; DROP TABLE status", Expect: map[string]any{"x": 1}},
			wantErr:   "invalid table name",
		},
		{
			name:      "injected column",
			assertion: Assertion{Table: "status", Where: map[string]any{"1=1 OR account_id": "x"}, Expect: map[string]any{"x": 1}},
			wantErr:   "invalid column name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertFinalState
			err := assertFinalState(ctx, st, tt.assertion)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildWhereClause_SortedAndParameterized(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"seq": 2, "outcome": "failure"})
	require.NoError(t, err)
	assert.Equal(t, "outcome = ? AND seq = ?", sql)
	assert.Equal(t, []any{"failure", 2}, args)
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("a", "a"))
	assert.True(t, stateValuesEqual("a", []byte("a")))
	assert.True(t, stateValuesEqual(2, int64(2)))
	assert.True(t, stateValuesEqual(int64(2), int64(2)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(nil, nil))

	assert.False(t, stateValuesEqual("2", int64(2)))
	assert.False(t, stateValuesEqual(2, "2"))
	assert.False(t, stateValuesEqual(false, int64(1)))
	assert.False(t, stateValuesEqual(nil, "x"))
}

func TestEvaluateAssertions_FinalStateNeedsStore(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "count", Expect: map[string]any{"value": 1}},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "final_state requires database context")
}
