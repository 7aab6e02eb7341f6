package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/saarthi-dev/saarthi/internal/scheme"
)

// GetProfile returns the profile with the given user ID, or ErrNotFound.
// The pipeline treats profiles as read-only; writes happen only through
// onboarding (PutProfile).
func (s *Store) GetProfile(ctx context.Context, userID string) (scheme.Profile, error) {
	var p scheme.Profile
	var education int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, language, age, education FROM profiles WHERE id = ?`, userID,
	).Scan(&p.ID, &p.Language, &p.Age, &education)
	if err == sql.ErrNoRows {
		return scheme.Profile{}, ErrNotFound
	}
	if err != nil {
		return scheme.Profile{}, fmt.Errorf("querying profile %s: %w", userID, err)
	}
	p.Education = scheme.EducationLevel(education)
	return p, nil
}

// PutProfile inserts or replaces a profile record.
func (s *Store) PutProfile(ctx context.Context, p scheme.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, language, age, education, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			language = excluded.language,
			age = excluded.age,
			education = excluded.education`,
		p.ID, p.Language, p.Age, int(p.Education), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting profile %s: %w", p.ID, err)
	}
	return nil
}
