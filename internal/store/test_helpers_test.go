package store

import (
	"path/filepath"
	"testing"

	"github.com/bitsong/usb/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDispatch creates a dispatch with minimal required fields.
func createTestDispatch(id string, token uint64, seq int64) ir.Dispatch {
	return ir.Dispatch{
		ID:             id,
		BatchID:        "batch-" + id,
		Sender:         "bitsong1sender",
		HostChain:      "jackal",
		ReplyToken:     token,
		TypeURLs:       []string{"/canine_chain.storage.MsgPostKey"},
		Funds:          []ir.Coin{},
		Call:           []byte(`{"id":2}`),
		Seq:            seq,
		CatalogVersion: "canine-chain/v3",
		RecordVersion:  ir.RecordVersion,
	}
}

// createTestReply creates a successful reply for a dispatch.
func createTestReply(id, dispatchID string, token uint64, seq int64) ir.Reply {
	return ir.Reply{
		ID:         id,
		DispatchID: dispatchID,
		Token:      token,
		Outcome:    ir.OutcomeSuccess,
		Seq:        seq,
	}
}
