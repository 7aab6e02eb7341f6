package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateSession inserts a new session record.
func (s *Store) CreateSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, rec.UserID,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating session %s: %w", rec.ID, err)
	}
	return nil
}

// GetSession returns the session record with the given ID, or ErrNotFound.
// Expiry is the caller's concern; the store returns expired records as-is.
func (s *Store) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	var createdAt, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.UserID, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("querying session %s: %w", id, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return SessionRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return SessionRecord{}, fmt.Errorf("parsing expires_at: %w", err)
	}
	return rec, nil
}

// AppendTurn appends a turn to the session's history. The sequence number is
// assigned inside a transaction so concurrent appends can never produce
// duplicate or out-of-order sequence numbers.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, t Turn) (int, error) {
	citedJSON, err := json.Marshal(t.CitedIDs)
	if err != nil {
		return 0, fmt.Errorf("marshalling cited IDs: %w", err)
	}
	if t.CitedIDs == nil {
		citedJSON = []byte("[]")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM turns WHERE session_id = ?`, sessionID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("computing next sequence: %w", err)
	}

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, seq, query, response, cited_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, seq, t.Query, t.Response, string(citedJSON),
		createdAt.UTC().Format(time.RFC3339),
	); err != nil {
		return 0, fmt.Errorf("inserting turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing turn: %w", err)
	}
	return seq, nil
}

// ListTurns returns the session's turns ordered by sequence number ascending.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, query, response, cited_ids, created_at
		FROM turns WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var citedJSON, createdAt string
		if err := rows.Scan(&t.Seq, &t.Query, &t.Response, &citedJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if err := json.Unmarshal([]byte(citedJSON), &t.CitedIDs); err != nil {
			return nil, fmt.Errorf("parsing cited IDs: %w", err)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing turn created_at: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// SweepSessions deletes sessions (and their turns, via cascade) that expired
// before now, returning the IDs of the removed sessions.
func (s *Store) SweepSessions(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := now.UTC().Format(time.RFC3339)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE expires_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing expired sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning expired session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, cutoff); err != nil {
		return nil, fmt.Errorf("sweeping sessions: %w", err)
	}
	return ids, nil
}
