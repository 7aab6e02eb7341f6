// Package retrieval implements semantic search over stored schemes:
// embedding, vector similarity, eligibility filtering, and deterministic
// ranking.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/saarthi-dev/saarthi/internal/provider"
)

// ErrEmbeddingUnavailable is returned when the underlying model cannot be
// reached or produces no output for a non-empty input. Callers must treat
// this as fatal for the request: an empty-vector fallback would corrupt
// ranking.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 10 * time.Minute
	batchConcurrency = 4
)

// Embedder wraps a Provider to generate L2-normalized text embeddings.
// Query vectors are cached with a short TTL so repeated queries skip the
// model round-trip; the cache also keeps retrieval deterministic across a
// burst of identical queries.
type Embedder struct {
	provider provider.Provider
	cache    *expirable.LRU[string, []float32]
}

// NewEmbedder creates an Embedder using the given Provider. cacheSize <= 0
// and cacheTTL <= 0 select the defaults (1024 entries, 10 minutes).
func NewEmbedder(p provider.Provider, cacheSize int, cacheTTL time.Duration) *Embedder {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Embedder{
		provider: p,
		cache:    expirable.NewLRU[string, []float32](cacheSize, nil, cacheTTL),
	}
}

// Embed returns the normalized embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty input", ErrEmbeddingUnavailable)
	}

	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}

	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: model returned no output", ErrEmbeddingUnavailable)
	}

	normalized := normalize(vec)
	e.cache.Add(text, normalized)
	return normalized, nil
}

// EmbedBatch returns normalized embedding vectors for multiple texts
// concurrently. Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency) // Bound concurrency to avoid overwhelming the provider.

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// normalize returns the L2-normalized copy of v, so that cosine similarity
// between normalized vectors reduces to a dot product. A zero vector is
// returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / n)
	}
	return out
}
