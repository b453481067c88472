package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bitsong/usb/internal/ir"
)

const dispatchColumns = `id, batch_id, sender, host_chain, reply_token, type_urls, funds, call, seq, catalog_version, record_version`

const replyColumns = `id, dispatch_id, token, outcome, error, data, seq`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ReadDispatch retrieves a single dispatch by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadDispatch(ctx context.Context, id string) (ir.Dispatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = ?`, id)
	return scanDispatch(row)
}

// ReadReply returns the reply recorded for a dispatch, if any.
func (s *Store) ReadReply(ctx context.Context, dispatchID string) (ir.Reply, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+replyColumns+` FROM replies WHERE dispatch_id = ?`, dispatchID)
	r, err := scanReply(row)
	if err == sql.ErrNoRows {
		return ir.Reply{}, false, nil
	}
	if err != nil {
		return ir.Reply{}, false, err
	}
	return r, true, nil
}

// ListDispatches returns dispatches ordered by seq, oldest first.
// A limit of zero or less returns every record.
//
// Returns an empty slice (not nil) when the log is empty.
func (s *Store) ListDispatches(ctx context.Context, limit int) ([]ir.Dispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM dispatches ORDER BY seq ASC, id COLLATE BINARY ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryDispatches(ctx, query, args...)
}

// PendingDispatches returns dispatches that requested a reply and have not
// received one, ordered by seq.
func (s *Store) PendingDispatches(ctx context.Context) ([]ir.Dispatch, error) {
	return s.queryDispatches(ctx, `
		SELECT `+dispatchColumns+`
		FROM dispatches d
		WHERE d.reply_token != 0
		  AND NOT EXISTS (SELECT 1 FROM replies r WHERE r.dispatch_id = d.id)
		ORDER BY d.seq ASC, d.id COLLATE BINARY ASC
	`)
}

// ListReplies returns replies ordered by seq, oldest first.
func (s *Store) ListReplies(ctx context.Context) ([]ir.Reply, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+replyColumns+`
		FROM replies
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query replies: %w", err)
	}
	defer rows.Close()

	replies := []ir.Reply{}
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return replies, nil
}

// MaxSeq returns the highest seq recorded in the log, or 0 when it is empty.
// Used to resume the logical clock after a restart.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM dispatches
			UNION ALL
			SELECT seq FROM replies
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

func (s *Store) queryDispatches(ctx context.Context, query string, args ...any) ([]ir.Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := []ir.Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return dispatches, nil
}

func scanDispatch(sc scanner) (ir.Dispatch, error) {
	var d ir.Dispatch
	var token int64
	var urlsJSON, fundsJSON string
	err := sc.Scan(
		&d.ID,
		&d.BatchID,
		&d.Sender,
		&d.HostChain,
		&token,
		&urlsJSON,
		&fundsJSON,
		&d.Call,
		&d.Seq,
		&d.CatalogVersion,
		&d.RecordVersion,
	)
	if err == sql.ErrNoRows {
		return ir.Dispatch{}, err
	}
	if err != nil {
		return ir.Dispatch{}, fmt.Errorf("scan dispatch: %w", err)
	}
	d.ReplyToken = uint64(token)

	if d.TypeURLs, err = unmarshalTypeURLs(urlsJSON); err != nil {
		return ir.Dispatch{}, err
	}
	if d.Funds, err = unmarshalFunds(fundsJSON); err != nil {
		return ir.Dispatch{}, err
	}
	return d, nil
}

func scanReply(sc scanner) (ir.Reply, error) {
	var r ir.Reply
	var token int64
	err := sc.Scan(&r.ID, &r.DispatchID, &token, &r.Outcome, &r.Error, &r.Data, &r.Seq)
	if err == sql.ErrNoRows {
		return ir.Reply{}, err
	}
	if err != nil {
		return ir.Reply{}, fmt.Errorf("scan reply: %w", err)
	}
	r.Token = uint64(token)
	return r, nil
}
