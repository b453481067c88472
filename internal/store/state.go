package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Status returns the status of an account. found is false when the account
// never set one, which is distinct from a status set to "".
func (s *Store) Status(ctx context.Context, accountID string) (status string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT status FROM status WHERE account_id = ?`, accountID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read status: %w", err)
	}
	return status, true, nil
}

// SetStatus stores the status of an account, replacing any previous value.
func (s *Store) SetStatus(ctx context.Context, accountID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status (account_id, status) VALUES (?, ?)
		ON CONFLICT(account_id) DO UPDATE SET status = excluded.status
	`, accountID, status)
	if err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// Config returns every configuration entry. found is false when no config
// was ever saved.
func (s *Store) Config(ctx context.Context) (cfg map[string]string, found bool, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config ORDER BY key COLLATE BINARY ASC`)
	if err != nil {
		return nil, false, fmt.Errorf("read config: %w", err)
	}
	defer rows.Close()

	cfg = make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, false, fmt.Errorf("scan config: %w", err)
		}
		cfg[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate config: %w", err)
	}
	return cfg, len(cfg) > 0, nil
}

// SaveConfig upserts entries in one transaction.
func (s *Store) SaveConfig(ctx context.Context, entries map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save config: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for k, v := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO config (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v); err != nil {
			return fmt.Errorf("save config %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save config: commit: %w", err)
	}
	return nil
}

// Count returns the admin counter. found is false before it is initialized.
func (s *Store) Count(ctx context.Context) (count int32, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM count WHERE id = 1`).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read count: %w", err)
	}
	return count, true, nil
}

// SetCount stores the admin counter.
func (s *Store) SetCount(ctx context.Context, count int32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO count (id, value) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value
	`, count)
	if err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	return nil
}

// IncrementCount adds one to an initialized counter and returns the new value.
// Returns sql.ErrNoRows if the counter was never set.
func (s *Store) IncrementCount(ctx context.Context) (int32, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("increment count: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var count int32
	if err := tx.QueryRowContext(ctx, `SELECT value FROM count WHERE id = 1`).Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("increment count: %w", err)
	}
	count++
	if _, err := tx.ExecContext(ctx, `UPDATE count SET value = ? WHERE id = 1`, count); err != nil {
		return 0, fmt.Errorf("increment count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("increment count: commit: %w", err)
	}
	return count, nil
}
