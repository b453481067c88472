package store

import (
	"context"
	"fmt"

	"github.com/bitsong/usb/internal/ir"
)

// WriteDispatch inserts a dispatch record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteDispatch(ctx context.Context, d ir.Dispatch) error {
	urlsJSON, err := marshalTypeURLs(d.TypeURLs)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	fundsJSON, err := marshalFunds(d.Funds)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatches
		(id, batch_id, sender, host_chain, reply_token, type_urls, funds, call, seq, catalog_version, record_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		d.ID,
		d.BatchID,
		d.Sender,
		d.HostChain,
		int64(d.ReplyToken),
		urlsJSON,
		fundsJSON,
		d.Call,
		d.Seq,
		d.CatalogVersion,
		d.RecordVersion,
	)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	return nil
}

// WriteReply inserts a reply record and reports whether it was new.
//
// Each dispatch has at most one reply (UNIQUE on dispatch_id). A second reply
// for the same dispatch, or a duplicate reply ID, is ignored and reported as
// inserted=false so the caller does not route it twice.
func (s *Store) WriteReply(ctx context.Context, r ir.Reply) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO replies
		(id, dispatch_id, token, outcome, error, data, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		r.ID,
		r.DispatchID,
		int64(r.Token),
		r.Outcome,
		r.Error,
		r.Data,
		r.Seq,
	)
	if err != nil {
		return false, fmt.Errorf("write reply: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write reply: rows affected: %w", err)
	}
	return n > 0, nil
}
