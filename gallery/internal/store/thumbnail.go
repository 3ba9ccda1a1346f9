package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/screengallery/dbopen"
)

// KeyPrefix namespaces thumbnail keys.
const KeyPrefix = "figma-thumb-"

// Key returns the cache key of a screen id.
func Key(id string) string { return KeyPrefix + id }

// Thumbnails adapts the store to the persistent thumbnail tier.
type Thumbnails struct {
	s   *Store
	now func() time.Time
}

// Thumbnails returns the thumbnail view of the store.
func (s *Store) Thumbnails() *Thumbnails {
	return &Thumbnails{s: s, now: time.Now}
}

// Get returns the stored URL of id, or "" when none is stored.
func (t *Thumbnails) Get(ctx context.Context, id string) (string, error) {
	var url string
	err := t.s.DB.QueryRowContext(ctx,
		`SELECT url FROM thumbnail_cache WHERE cache_key = ?`, Key(id)).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return url, nil
}

// Set stores or replaces the URL of id.
func (t *Thumbnails) Set(ctx context.Context, id, url string) error {
	_, err := dbopen.Exec(ctx, t.s.DB, `
		INSERT INTO thumbnail_cache (cache_key, url, stored_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET url = excluded.url, stored_at = excluded.stored_at`,
		Key(id), url, t.now().UnixMilli())
	return err
}

// Delete removes the URL of id.
func (t *Thumbnails) Delete(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, t.s.DB,
		`DELETE FROM thumbnail_cache WHERE cache_key = ?`, Key(id))
	return err
}

// Clear removes every stored thumbnail.
func (t *Thumbnails) Clear(ctx context.Context) error {
	_, err := dbopen.Exec(ctx, t.s.DB,
		`DELETE FROM thumbnail_cache WHERE cache_key LIKE ?`, KeyPrefix+"%")
	return err
}

// Count returns the number of stored thumbnails.
func (t *Thumbnails) Count(ctx context.Context) (int, error) {
	var n int
	err := t.s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM thumbnail_cache WHERE cache_key LIKE ?`, KeyPrefix+"%").Scan(&n)
	return n, err
}
