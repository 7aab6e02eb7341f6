package retrieval

import (
	"context"

	"github.com/saarthi-dev/saarthi/internal/scheme"
)

// VectorStore is the interface for scheme similarity search backends. The
// default implementation is a brute-force scan over the SQLite schemes
// table; an ANN-capable backend can be substituted without touching the
// Retriever.
type VectorStore interface {
	// Search returns the top-K schemes most similar to the query vector,
	// sorted by score descending with scheme ID as the tie-break.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredScheme, error)
}

// ScoredScheme is a scheme with its similarity score attached.
type ScoredScheme struct {
	scheme.Scheme
	Score float32
}
