package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (db *DB) Get(ctx context.Context, origin, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE origin = ? AND key = ?`, origin, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get value: %w", err)
	}
	return value, true, nil
}

func (db *DB) Set(ctx context.Context, origin, key, value string) error {
	query := `INSERT INTO kv_store (origin, key, value, updated_at) VALUES (?, ?, ?, ?)
              ON CONFLICT(origin, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, query, origin, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, origin, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv_store WHERE origin = ? AND key = ?`, origin, key); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}
