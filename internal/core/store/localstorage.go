package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codexplain/codexplain/internal/core/ratelimit"
)

// Item is one persisted local-storage entry.
type Item struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// LocalStorage exposes the local_storage table as a key/value store.
// It satisfies ratelimit.Storage.
type LocalStorage struct {
	store *Store
	now   func() time.Time
}

var _ ratelimit.Storage = (*LocalStorage)(nil)

// LocalStorage returns the key/value view of the store.
func (s *Store) LocalStorage() *LocalStorage {
	return &LocalStorage{store: s, now: time.Now}
}

// GetItem returns the value for key or ratelimit.ErrNotFound.
func (l *LocalStorage) GetItem(ctx context.Context, key string) (string, error) {
	db, err := l.db()
	if err != nil {
		return "", err
	}
	key, err = normalizeKey(key)
	if err != nil {
		return "", err
	}

	var value string
	row := db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ratelimit.ErrNotFound
		}
		return "", fmt.Errorf("fetch local storage item: %w", err)
	}
	return value, nil
}

// SetItem stores value under key, replacing any previous value.
func (l *LocalStorage) SetItem(ctx context.Context, key, value string) error {
	db, err := l.db()
	if err != nil {
		return err
	}
	key, err = normalizeKey(key)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO local_storage (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, l.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store local storage item: %w", err)
	}
	return nil
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (l *LocalStorage) RemoveItem(ctx context.Context, key string) error {
	db, err := l.db()
	if err != nil {
		return err
	}
	key, err = normalizeKey(key)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete local storage item: %w", err)
	}
	return nil
}

// ListItems returns entries whose key starts with prefix, ordered by key.
// An empty prefix lists everything.
func (l *LocalStorage) ListItems(ctx context.Context, prefix string) ([]Item, error) {
	db, err := l.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT key, value, updated_at
		FROM local_storage
		WHERE key LIKE ? ESCAPE '\'
		ORDER BY key
	`, escapeLike(strings.TrimSpace(prefix))+"%")
	if err != nil {
		return nil, fmt.Errorf("list local storage: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var items []Item
	for rows.Next() {
		var (
			item      Item
			updatedAt int64
		)
		if err := rows.Scan(&item.Key, &item.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan local storage: %w", err)
		}
		item.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list local storage: %w", err)
	}
	return items, nil
}

func (l *LocalStorage) db() (*sql.DB, error) {
	if l == nil || l.store == nil || l.store.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	return l.store.DB, nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("key is required")
	}
	return key, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
