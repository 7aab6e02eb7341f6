package retrieval

import (
	"context"
	"testing"

	"github.com/saarthi-dev/saarthi/internal/scheme"
	"github.com/saarthi-dev/saarthi/internal/storage"
)

func openStoreWithSchemes(t *testing.T, schemes []scheme.Scheme) *SQLiteStore {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, sc := range schemes {
		if err := st.UpsertScheme(sc); err != nil {
			t.Fatalf("UpsertScheme(%s): %v", sc.ID, err)
		}
	}
	return NewSQLiteStore(st)
}

func storedScheme(id string, embedding []float32) scheme.Scheme {
	return scheme.Scheme{
		ID:          id,
		Name:        "Scheme " + id,
		Description: "desc",
		Benefits:    "benefits",
		SourceURL:   "https://example.gov.in/" + id,
		Embedding:   embedding,
	}
}

func TestSQLiteStoreSearchOrders(t *testing.T) {
	// Unit vectors at different angles from the query [1, 0].
	vs := openStoreWithSchemes(t, []scheme.Scheme{
		storedScheme("far", []float32{0, 1}),
		storedScheme("near", []float32{1, 0}),
		storedScheme("mid", []float32{0.7071, 0.7071}),
	})

	results, err := vs.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantOrder := []string{"near", "mid", "far"}
	for i, want := range wantOrder {
		if results[i].ID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].ID, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
}

func TestSQLiteStoreSearchTopK(t *testing.T) {
	vs := openStoreWithSchemes(t, []scheme.Scheme{
		storedScheme("a", []float32{1, 0}),
		storedScheme("b", []float32{0.9, 0.4359}),
		storedScheme("c", []float32{0, 1}),
	})

	results, err := vs.Search(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("top-2 = %s, %s", results[0].ID, results[1].ID)
	}
}

func TestSQLiteStoreSearchTieBreak(t *testing.T) {
	// Identical embeddings: ranking must fall back to ID order.
	vs := openStoreWithSchemes(t, []scheme.Scheme{
		storedScheme("z", []float32{1, 0}),
		storedScheme("a", []float32{1, 0}),
	})

	for run := 0; run < 3; run++ {
		results, err := vs.Search(context.Background(), []float32{1, 0}, 2)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if results[0].ID != "a" || results[1].ID != "z" {
			t.Fatalf("run %d: order = %s, %s; want a, z", run, results[0].ID, results[1].ID)
		}
	}
}

func TestSQLiteStoreSearchEmpty(t *testing.T) {
	vs := openStoreWithSchemes(t, nil)
	results, err := vs.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("got %v, want nil", results)
	}
}
