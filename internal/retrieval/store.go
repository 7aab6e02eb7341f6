package retrieval

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"github.com/saarthi-dev/saarthi/internal/storage"
)

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore performs brute-force similarity search over the schemes table.
// Stored embeddings are L2-normalized at ingestion, so similarity is a plain
// dot product. Scheme catalogs are small (thousands, not millions); a full
// scan is well under a millisecond at that scale.
type SQLiteStore struct {
	store *storage.Store
}

// NewSQLiteStore wraps the shared storage.Store for vector search.
func NewSQLiteStore(store *storage.Store) *SQLiteStore {
	return &SQLiteStore{store: store}
}

// Search scans all scheme embeddings, keeps the top-K by dot product, then
// loads the full records for the winners.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredScheme, error) {
	if topK <= 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	err := s.store.ScanSchemeVectors(ctx, func(v storage.SchemeVector) error {
		var decErr error
		buf, decErr = storage.DecodeVectorInto(buf, v.Embedding)
		if decErr != nil {
			return fmt.Errorf("decoding embedding for %s: %w", v.ID, decErr)
		}

		score := dotProduct(vector, buf)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: v.ID, Score: score})
		} else if idScoreLess((*h)[0], idScore{ID: v.ID, Score: score}) {
			(*h)[0] = idScore{ID: v.ID, Score: score}
			heap.Fix(h, 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if h.Len() == 0 {
		return nil, nil
	}

	topIDs := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		scores[item.ID] = item.Score
	}

	schemes, err := s.store.GetSchemesByIDs(ctx, topIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K schemes: %w", err)
	}

	results := make([]ScoredScheme, len(schemes))
	for i, sc := range schemes {
		results[i] = ScoredScheme{Scheme: sc, Score: scores[sc.ID]}
	}

	// The IN query doesn't preserve order; restore score order with ID as
	// the deterministic tie-break.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// dotProduct computes the dot product of two vectors. With both vectors
// L2-normalized this is their cosine similarity. Mismatched lengths score 0.
func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot)
}

// idScore holds only the ID and score during the scan phase of Search.
type idScore struct {
	ID    string
	Score float32
}

// idScoreLess orders a below b: lower score first, and for equal scores the
// lexicographically larger ID first, so the heap evicts it before the
// smaller ID and ties resolve deterministically.
func idScoreLess(a, b idScore) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID > b.ID
}

// idScoreHeap is a min-heap of idScore used to track top-K candidates.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return idScoreLess(h[i], h[j]) }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
