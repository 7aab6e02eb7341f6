// Package ingest loads scheme records into the store: JSON scheme files,
// optionally enriched with the text of PDF brochures, validated and embedded
// in batches.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/saarthi-dev/saarthi/internal/scheme"
)

// SchemeStore receives the ingested schemes. Implemented by storage.Store.
type SchemeStore interface {
	UpsertScheme(sc scheme.Scheme) error
}

// Embedder turns scheme texts into vectors. Implemented by
// retrieval.Embedder.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Ingester loads scheme files into the store.
type Ingester struct {
	store    SchemeStore
	embedder Embedder
	logger   *slog.Logger
}

// New creates an Ingester.
func New(store SchemeStore, embedder Embedder) *Ingester {
	return &Ingester{store: store, embedder: embedder, logger: slog.Default()}
}

// schemeRecord is the JSON shape of one scheme in an ingest file.
type schemeRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Benefits     string `json:"benefits"`
	Eligibility  string `json:"eligibility"`
	Category     string `json:"category"`
	SourceURL    string `json:"source_url"`
	AgeMin       *int   `json:"age_min"`
	AgeMax       *int   `json:"age_max"`
	MinEducation string `json:"min_education"`
	// Brochure names a PDF file, relative to the JSON file, whose text is
	// appended to the description.
	Brochure string `json:"brochure"`
}

// IngestDir loads every .json scheme file under dir and returns how many
// schemes were stored.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (int, error) {
	var total int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		n, err := in.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		total += n
		return nil
	})
	return total, err
}

// IngestFile loads one JSON scheme file: parse, validate, embed, upsert.
func (in *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}

	var records []schemeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parsing JSON: %w", err)
	}

	schemes := make([]scheme.Scheme, 0, len(records))
	for i, rec := range records {
		sc, err := in.toScheme(rec, filepath.Dir(path))
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		schemes = append(schemes, sc)
	}

	texts := make([]string, len(schemes))
	for i, sc := range schemes {
		texts[i] = sc.EmbeddingText()
	}
	vectors, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding schemes: %w", err)
	}

	for i := range schemes {
		schemes[i].Embedding = vectors[i]
		if err := in.store.UpsertScheme(schemes[i]); err != nil {
			return 0, err
		}
		in.logger.Debug("ingested scheme", "id", schemes[i].ID, "name", schemes[i].Name)
	}
	return len(schemes), nil
}

func (in *Ingester) toScheme(rec schemeRecord, baseDir string) (scheme.Scheme, error) {
	sc := scheme.Scheme{
		ID:              rec.ID,
		Name:            rec.Name,
		Description:     rec.Description,
		Benefits:        rec.Benefits,
		EligibilityText: rec.Eligibility,
		Category:        rec.Category,
		SourceURL:       rec.SourceURL,
		AgeMin:          rec.AgeMin,
		AgeMax:          rec.AgeMax,
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if rec.MinEducation != "" {
		level, err := scheme.ParseEducation(rec.MinEducation)
		if err != nil {
			return scheme.Scheme{}, err
		}
		sc.MinEducation = &level
	}
	if rec.Brochure != "" {
		text, err := brochureText(filepath.Join(baseDir, rec.Brochure))
		if err != nil {
			return scheme.Scheme{}, fmt.Errorf("brochure %s: %w", rec.Brochure, err)
		}
		sc.Description = strings.TrimSpace(sc.Description + "\n\n" + text)
	}
	if err := sc.Validate(); err != nil {
		return scheme.Scheme{}, err
	}
	return sc, nil
}

// brochureText extracts the plain text of a PDF brochure.
func brochureText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting PDF text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("reading PDF text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
