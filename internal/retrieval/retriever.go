package retrieval

import (
	"context"
	"sort"

	"github.com/saarthi-dev/saarthi/internal/scheme"
)

const (
	// DefaultTopK is the number of schemes returned when the caller passes
	// k <= 0.
	DefaultTopK = 5

	// overscan widens the vector search so eligibility filtering still
	// leaves enough candidates to fill k slots.
	overscan = 4

	// minCandidates floors the widened search for small k.
	minCandidates = 20
)

// Result is one retrieval candidate: the scheme, its similarity score, and
// whether the profile passed its eligibility predicate. Results are
// transient and never persisted.
type Result struct {
	Scheme   scheme.Scheme
	Score    float32
	Eligible bool
}

// Retriever combines embedding and vector search to find schemes relevant
// to a query and eligible for a profile.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
	minScore float32
}

// NewRetriever creates a Retriever backed by the given Embedder and
// VectorStore. minScore is the similarity floor below which candidates are
// discarded.
func NewRetriever(embedder *Embedder, store VectorStore, minScore float32) *Retriever {
	return &Retriever{embedder: embedder, store: store, minScore: minScore}
}

// Retrieve embeds the query and returns up to k schemes that clear the
// similarity floor and pass the profile's eligibility gate, ordered by score
// descending with scheme ID as the tie-break. An empty result is a normal
// outcome, not an error. Identical (query, profile, scheme set) inputs
// always produce the identical ordered list.
func (r *Retriever) Retrieve(ctx context.Context, query string, profile scheme.Profile, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Recall is bounded by this window: an eligible scheme ranked below
	// `candidates` ineligible higher scorers is not recovered.
	candidates := k * overscan
	if candidates < minCandidates {
		candidates = minCandidates
	}

	scored, err := r.store.Search(ctx, vec, candidates)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, k)
	for _, s := range scored {
		if s.Score < r.minScore {
			continue
		}
		if !s.Scheme.Eligible(profile) {
			continue
		}
		results = append(results, Result{Scheme: s.Scheme, Score: s.Score, Eligible: true})
	}

	// Ordering contract: score descending, scheme ID ascending on ties.
	// Enforced here so it holds for any VectorStore backend.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Scheme.ID < results[j].Scheme.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
