// Package session manages conversation sessions: TTL-bounded lifetimes,
// append-only turn history, and serialization of concurrent appends within
// one session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saarthi-dev/saarthi/internal/storage"
)

// ErrExpired marks a session that exists but is past its TTL. Callers
// normally never see it; GetOrCreate replaces expired sessions with fresh
// ones.
var ErrExpired = errors.New("session expired")

// DefaultTTL is the session time-to-live from creation.
const DefaultTTL = 30 * time.Minute

// Store is the persistence interface the manager needs. Implemented by
// storage.Store.
type Store interface {
	CreateSession(ctx context.Context, rec storage.SessionRecord) error
	GetSession(ctx context.Context, id string) (storage.SessionRecord, error)
	AppendTurn(ctx context.Context, sessionID string, t storage.Turn) (int, error)
	ListTurns(ctx context.Context, sessionID string) ([]storage.Turn, error)
	SweepSessions(ctx context.Context, now time.Time) ([]string, error)
}

// Manager owns session lifecycle and turn bookkeeping.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager. Non-positive ttl selects the default.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// GetOrCreate resolves a session for the user. An empty, unknown, expired,
// or foreign session ID yields a fresh session instead of an error.
func (m *Manager) GetOrCreate(ctx context.Context, userID, sessionID string) (storage.SessionRecord, error) {
	if sessionID != "" {
		rec, err := m.store.GetSession(ctx, sessionID)
		switch {
		case err == nil && rec.UserID == userID && m.now().Before(rec.ExpiresAt):
			return rec, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return storage.SessionRecord{}, err
		}
	}
	return m.create(ctx, userID)
}

func (m *Manager) create(ctx context.Context, userID string) (storage.SessionRecord, error) {
	now := m.now()
	rec := storage.SessionRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.CreateSession(ctx, rec); err != nil {
		return storage.SessionRecord{}, fmt.Errorf("creating session: %w", err)
	}
	return rec, nil
}

// Append records a turn in the session's history. Appends within one
// session are serialized by a per-session lock so concurrent queries can
// never lose or reorder turns.
func (m *Manager) Append(ctx context.Context, sessionID string, t storage.Turn) (int, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.AppendTurn(ctx, sessionID, t)
}

// History returns the session's turns in append order.
func (m *Manager) History(ctx context.Context, sessionID string) ([]storage.Turn, error) {
	return m.store.ListTurns(ctx, sessionID)
}

// Sweep removes expired sessions and their history, and prunes their
// per-session locks so the lock map stays bounded by live sessions.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	ids, err := m.store.SweepSessions(ctx, m.now())
	if err != nil {
		return 0, err
	}
	m.dropLocks(ids)
	return len(ids), nil
}

// dropLocks discards locks for sessions that no longer exist. An append
// racing the sweep keeps its old lock; sequence assignment stays
// transactional in the store either way.
func (m *Manager) dropLocks(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.locks, id)
	}
}

// RunSweeper sweeps on the given interval until the context is cancelled.
// Intended to run on its own goroutine; it holds no locks while requests
// are in flight.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				slog.Warn("session: sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("session: sweep removed sessions", "count", n)
			}
		}
	}
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}
