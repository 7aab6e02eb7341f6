// Package monitoring defines the fire-and-forget event sink the pipeline
// reports into. Implementations must never block the caller.
package monitoring

import "time"

// CacheEventKind classifies a cache access.
type CacheEventKind string

const (
	CacheHit      CacheEventKind = "hit"
	CacheMiss     CacheEventKind = "miss"
	CacheStaleHit CacheEventKind = "stale_hit"
	CacheFetch    CacheEventKind = "fetch"
)

// Sink receives pipeline events for external monitoring. All methods are
// fire-and-forget: implementations must return immediately and must not
// error.
type Sink interface {
	// CacheEvent reports a cache access of the given kind.
	CacheEvent(kind CacheEventKind)

	// FetchEvent reports the outcome of an external fetch against a host.
	FetchEvent(host string, ok bool, duration time.Duration)

	// ModelEvent reports the outcome and latency of a model call.
	ModelEvent(provider string, ok bool, duration time.Duration)
}

// Nop is a Sink that discards all events. Used in tests and as a default.
type Nop struct{}

func (Nop) CacheEvent(CacheEventKind)                  {}
func (Nop) FetchEvent(string, bool, time.Duration)     {}
func (Nop) ModelEvent(string, bool, time.Duration)     {}
