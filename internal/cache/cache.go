// Package cache provides the freshness-controlled store for fetched external
// content. Concurrent fetches of the same URL are collapsed into one
// outstanding request (single-flight); a failed refresh never destroys a
// previously valid entry.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/saarthi-dev/saarthi/internal/monitoring"
	"github.com/saarthi-dev/saarthi/internal/storage"
)

// DefaultFreshnessWindow is how long a fetched entry is served without
// re-fetching.
const DefaultFreshnessWindow = 24 * time.Hour

// Store is the persistence interface the cache needs. Implemented by
// storage.Store.
type Store interface {
	GetCacheEntry(ctx context.Context, url string) (storage.CacheEntry, error)
	PutCacheEntry(ctx context.Context, e storage.CacheEntry) error
	TouchCacheEntry(ctx context.Context, url string) error
}

// FetchFunc retrieves the content of a URL from its origin.
type FetchFunc func(ctx context.Context) (string, error)

// Cache coordinates reads and refreshes of external content.
type Cache struct {
	store  Store
	window time.Duration
	sink   monitoring.Sink
	group  singleflight.Group
	now    func() time.Time
}

// New creates a Cache over the given store. window <= 0 selects the default
// 24-hour freshness window; a nil sink discards events.
func New(store Store, window time.Duration, sink monitoring.Sink) *Cache {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if sink == nil {
		sink = monitoring.Nop{}
	}
	return &Cache{
		store:  store,
		window: window,
		sink:   sink,
		now:    time.Now,
	}
}

// Fresh reports whether the entry is inside the freshness window at the
// given instant.
func (c *Cache) Fresh(e storage.CacheEntry, now time.Time) bool {
	return now.Sub(e.FetchedAt) < c.window
}

// Get returns the cached content for a URL without fetching, along with
// whether an entry exists at all.
func (c *Cache) Get(ctx context.Context, url string) (string, bool, error) {
	entry, err := c.store.GetCacheEntry(ctx, url)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Content, true, nil
}

// GetOrFetch returns the content for a URL, fetching from the origin when
// the entry is missing or stale. The stale return flag is true when the
// origin fetch failed and a previously cached (now stale) entry was served
// instead.
//
// For a given URL at most one origin fetch is in flight at a time;
// concurrent callers subscribe to the outstanding fetch instead of issuing
// their own.
func (c *Cache) GetOrFetch(ctx context.Context, url string, fetch FetchFunc) (content string, stale bool, err error) {
	now := c.now()

	entry, getErr := c.store.GetCacheEntry(ctx, url)
	haveEntry := getErr == nil
	if getErr != nil && !errors.Is(getErr, storage.ErrNotFound) {
		return "", false, fmt.Errorf("reading cache entry: %w", getErr)
	}

	if haveEntry && c.Fresh(entry, now) {
		c.sink.CacheEvent(monitoring.CacheHit)
		if err := c.store.TouchCacheEntry(ctx, url); err != nil {
			slog.Warn("cache: touch failed", "url", url, "error", err)
		}
		return entry.Content, false, nil
	}

	if haveEntry {
		c.sink.CacheEvent(monitoring.CacheStaleHit)
	} else {
		c.sink.CacheEvent(monitoring.CacheMiss)
	}

	fetched, err, _ := c.group.Do(url, func() (interface{}, error) {
		c.sink.CacheEvent(monitoring.CacheFetch)
		body, fetchErr := fetch(ctx)
		if fetchErr != nil {
			return nil, fetchErr
		}
		put := storage.CacheEntry{URL: url, Content: body, FetchedAt: c.now()}
		if putErr := c.store.PutCacheEntry(ctx, put); putErr != nil {
			// Content is still usable this request even if persisting failed.
			slog.Warn("cache: persisting entry failed", "url", url, "error", putErr)
		}
		return body, nil
	})
	if err == nil {
		return fetched.(string), false, nil
	}

	// Fetch failed: the stale entry, if any, remains servable. Its
	// timestamp was not advanced, so the next request retries the origin.
	if haveEntry {
		slog.Warn("cache: fetch failed, serving stale entry", "url", url, "error", err)
		return entry.Content, true, nil
	}
	return "", false, err
}
