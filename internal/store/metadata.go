package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SetMetadata upserts key→value in the metadata table, stamping updated_at.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata reads the value for key, returning ok=false if absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	switch {
	case err == nil:
		return value, true, nil
	case err == sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("get metadata %s: %w", key, err)
	}
}

// DeleteOHLCRange deletes ohlc_1m rows whose Timestamp falls in
// [start, end), used by range regeneration.
func (s *Store) DeleteOHLCRange(ctx context.Context, tx *sql.Tx, start, end time.Time) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM ohlc_1m WHERE "Timestamp" >= ? AND "Timestamp" < ?`, start, end)
	if err != nil {
		return fmt.Errorf("delete ohlc range [%s,%s): %w", start, end, err)
	}
	return nil
}

// DeleteAllOHLC truncates ohlc_1m for full regeneration.
func (s *Store) DeleteAllOHLC(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM ohlc_1m`); err != nil {
		return fmt.Errorf("delete all ohlc: %w", err)
	}
	return nil
}
