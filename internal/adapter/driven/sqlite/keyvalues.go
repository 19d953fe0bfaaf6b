package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// keyValues is the generic key/value table every plan is stored in.
// Writes are upserts; a key holds exactly one value.
type keyValues struct {
	db *DB
}

func (kv keyValues) put(ctx context.Context, key, value string) error {
	const query = `INSERT INTO key_values (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := kv.db.Writer.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// get returns ("", false, nil) when key is absent.
func (kv keyValues) get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM key_values WHERE key = ?`

	var value string
	err := kv.db.Reader.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// keys returns every key starting with prefix in ascending order.
func (kv keyValues) keys(ctx context.Context, prefix string) ([]string, error) {
	const query = `SELECT key FROM key_values WHERE substr(key, 1, ?) = ? ORDER BY key`

	rows, err := kv.db.Reader.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}

	return keys, nil
}

func (kv keyValues) deletePrefix(ctx context.Context, prefix string) (int64, error) {
	const query = `DELETE FROM key_values WHERE substr(key, 1, ?) = ?`

	res, err := kv.db.Writer.ExecContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("delete keys %q: %w", prefix, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
