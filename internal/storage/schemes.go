package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/saarthi-dev/saarthi/internal/scheme"
)

// UpsertScheme inserts or replaces a scheme record. The scheme must pass
// Validate; the embedding must be non-empty.
func (s *Store) UpsertScheme(sc scheme.Scheme) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if len(sc.Embedding) == 0 {
		return fmt.Errorf("scheme %s: embedding must not be empty", sc.ID)
	}

	now := time.Now().UTC()
	createdAt := sc.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.Exec(`
		INSERT INTO schemes (id, name, description, benefits, eligibility, category, source_url,
			age_min, age_max, min_education, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			benefits = excluded.benefits,
			eligibility = excluded.eligibility,
			category = excluded.category,
			source_url = excluded.source_url,
			age_min = excluded.age_min,
			age_max = excluded.age_max,
			min_education = excluded.min_education,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		sc.ID, sc.Name, sc.Description, sc.Benefits, sc.EligibilityText, sc.Category, sc.SourceURL,
		nullableInt(sc.AgeMin), nullableInt(sc.AgeMax), nullableEducation(sc.MinEducation),
		EncodeVector(sc.Embedding),
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting scheme %s: %w", sc.ID, err)
	}
	return nil
}

const schemeColumns = `id, name, description, benefits, eligibility, category, source_url,
	age_min, age_max, min_education, embedding, created_at, updated_at`

// GetScheme returns the scheme with the given ID.
func (s *Store) GetScheme(ctx context.Context, id string) (scheme.Scheme, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+schemeColumns+` FROM schemes WHERE id = ?`, id)
	sc, err := scanScheme(row)
	if err == sql.ErrNoRows {
		return scheme.Scheme{}, ErrNotFound
	}
	return sc, err
}

// GetSchemesByIDs returns the schemes matching the given IDs, in no
// particular order.
func (s *Store) GetSchemesByIDs(ctx context.Context, ids []string) ([]scheme.Scheme, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + schemeColumns + ` FROM schemes WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schemes by IDs: %w", err)
	}
	defer rows.Close()

	var schemes []scheme.Scheme
	for rows.Next() {
		sc, err := scanScheme(rows)
		if err != nil {
			return nil, err
		}
		schemes = append(schemes, sc)
	}
	return schemes, rows.Err()
}

// AllSchemeNames returns the names of all stored schemes. Used by the
// grounding validator to detect references outside the grounding set.
func (s *Store) AllSchemeNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM schemes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying scheme names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CountSchemes returns the number of stored schemes.
func (s *Store) CountSchemes() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM schemes").Scan(&count)
	return count, err
}

// SchemeVector pairs a scheme ID with its embedding. Used by the vector
// search scan phase.
type SchemeVector struct {
	ID        string
	Embedding []byte
}

// ScanSchemeVectors streams (id, embedding) pairs to fn. Embedding bytes are
// only valid for the duration of the callback.
func (s *Store) ScanSchemeVectors(ctx context.Context, fn func(SchemeVector) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM schemes`)
	if err != nil {
		return fmt.Errorf("querying scheme vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v SchemeVector
		if err := rows.Scan(&v.ID, &v.Embedding); err != nil {
			return fmt.Errorf("scanning scheme vector: %w", err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScheme(row rowScanner) (scheme.Scheme, error) {
	var sc scheme.Scheme
	var ageMin, ageMax, minEdu sql.NullInt64
	var blob []byte
	var createdAt, updatedAt string

	err := row.Scan(&sc.ID, &sc.Name, &sc.Description, &sc.Benefits, &sc.EligibilityText,
		&sc.Category, &sc.SourceURL, &ageMin, &ageMax, &minEdu, &blob, &createdAt, &updatedAt)
	if err != nil {
		return scheme.Scheme{}, err
	}

	if ageMin.Valid {
		v := int(ageMin.Int64)
		sc.AgeMin = &v
	}
	if ageMax.Valid {
		v := int(ageMax.Int64)
		sc.AgeMax = &v
	}
	if minEdu.Valid {
		v := scheme.EducationLevel(minEdu.Int64)
		sc.MinEducation = &v
	}

	sc.Embedding, err = DecodeVector(blob)
	if err != nil {
		return scheme.Scheme{}, fmt.Errorf("decoding embedding for %s: %w", sc.ID, err)
	}
	if sc.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return scheme.Scheme{}, fmt.Errorf("parsing created_at for %s: %w", sc.ID, err)
	}
	if sc.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return scheme.Scheme{}, fmt.Errorf("parsing updated_at for %s: %w", sc.ID, err)
	}
	return sc, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableEducation(v *scheme.EducationLevel) interface{} {
	if v == nil {
		return nil
	}
	return int(*v)
}

// EncodeVector serializes a float32 slice to little-endian bytes.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4
// (indicates data corruption).
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// DecodeVectorInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func DecodeVectorInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}
