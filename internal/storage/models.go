package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CacheEntry is a cached external page keyed by its normalized source URL.
type CacheEntry struct {
	URL       string
	Content   string
	FetchedAt time.Time
	Hits      int64
}

// SessionRecord is a stored conversation session. Turn history lives in the
// turns table and is loaded separately.
type SessionRecord struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Turn is one query/response exchange inside a session. Seq is assigned by
// the store and is strictly increasing per session.
type Turn struct {
	Seq       int
	Query     string
	Response  string
	CitedIDs  []string
	CreatedAt time.Time
}
