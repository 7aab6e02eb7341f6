package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetCacheEntry returns the cache entry for the given URL, or ErrNotFound.
func (s *Store) GetCacheEntry(ctx context.Context, url string) (CacheEntry, error) {
	var e CacheEntry
	var fetchedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT url, content, fetched_at, hits FROM cache_entries WHERE url = ?`, url,
	).Scan(&e.URL, &e.Content, &fetchedAt, &e.Hits)
	if err == sql.ErrNoRows {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, fmt.Errorf("querying cache entry: %w", err)
	}
	if e.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
		return CacheEntry{}, fmt.Errorf("parsing fetched_at: %w", err)
	}
	return e, nil
}

// PutCacheEntry inserts or refreshes the entry for a URL. The write replaces
// content and timestamp atomically and preserves the hit counter, so a
// refresh never loses accounting and a reader never observes a partial
// entry.
func (s *Store) PutCacheEntry(ctx context.Context, e CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (url, content, fetched_at, hits)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			content = excluded.content,
			fetched_at = excluded.fetched_at`,
		e.URL, e.Content, e.FetchedAt.UTC().Format(time.RFC3339), e.Hits,
	)
	if err != nil {
		return fmt.Errorf("upserting cache entry %s: %w", e.URL, err)
	}
	return nil
}

// TouchCacheEntry increments the hit counter for a URL. Missing entries are
// ignored: the counter is advisory accounting, not a correctness concern.
func (s *Store) TouchCacheEntry(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET hits = hits + 1 WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("touching cache entry %s: %w", url, err)
	}
	return nil
}

// SweepCacheEntries deletes entries fetched before the cutoff and returns
// how many were removed.
func (s *Store) SweepCacheEntries(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE fetched_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("sweeping cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
