package retrieval

import (
	"context"
	"reflect"
	"testing"

	"github.com/saarthi-dev/saarthi/internal/scheme"
)

// fakeStore returns a fixed candidate list regardless of the query vector.
type fakeStore struct {
	results []ScoredScheme
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredScheme, error) {
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func intPtr(v int) *int                                     { return &v }
func eduPtr(l scheme.EducationLevel) *scheme.EducationLevel { return &l }

func candidate(id, name string, score float32) ScoredScheme {
	return ScoredScheme{
		Scheme: scheme.Scheme{
			ID:          id,
			Name:        name,
			Description: "desc",
			Benefits:    "benefits",
			SourceURL:   "https://example.gov.in/" + id,
		},
		Score: score,
	}
}

func newTestRetriever(store VectorStore, minScore float32) *Retriever {
	return NewRetriever(NewEmbedder(&mockProvider{}, 0, 0), store, minScore)
}

func TestRetrieveFiltersIneligible(t *testing.T) {
	young := candidate("a", "Youth Scheme", 0.9)
	young.AgeMin = intPtr(18)
	young.AgeMax = intPtr(35)
	young.MinEducation = eduPtr(scheme.EducationBelow10th)

	pg := candidate("b", "Research Fellowship", 0.8)
	pg.MinEducation = eduPtr(scheme.EducationPostgraduate)

	r := newTestRetriever(&fakeStore{results: []ScoredScheme{young, pg}}, 0)
	profile := scheme.Profile{ID: "u1", Age: 25, Education: scheme.Education12thPass}

	results, err := r.Retrieve(context.Background(), "skill training", profile, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Scheme.ID != "a" {
		t.Errorf("result = %s, want a", results[0].Scheme.ID)
	}
	if results[0].Scheme.SourceURL == "" {
		t.Error("returned scheme has empty source URL")
	}
}

func TestRetrieveScoreOrdering(t *testing.T) {
	store := &fakeStore{results: []ScoredScheme{
		candidate("c", "Gamma", 0.7),
		candidate("a", "Alpha", 0.9),
		candidate("b", "Beta", 0.8),
	}}
	r := newTestRetriever(store, 0)
	profile := scheme.Profile{ID: "u1", Age: 30}

	results, err := r.Retrieve(context.Background(), "query", profile, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not non-increasing at %d: %g > %g", i, results[i].Score, results[i-1].Score)
		}
	}
	if results[0].Scheme.ID != "a" {
		t.Errorf("top result = %s, want a", results[0].Scheme.ID)
	}
}

func TestRetrieveTieBreakByID(t *testing.T) {
	store := &fakeStore{results: []ScoredScheme{
		candidate("z", "Zed", 0.5),
		candidate("a", "Ay", 0.5),
		candidate("m", "Em", 0.5),
	}}
	r := newTestRetriever(store, 0)
	profile := scheme.Profile{ID: "u1", Age: 30}

	results, err := r.Retrieve(context.Background(), "query", profile, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	var ids []string
	for _, res := range results {
		ids = append(ids, res.Scheme.ID)
	}
	want := []string{"a", "m", "z"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("tie-break order = %v, want %v", ids, want)
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	store := &fakeStore{results: []ScoredScheme{
		candidate("b", "Beta", 0.6),
		candidate("a", "Alpha", 0.6),
		candidate("c", "Gamma", 0.9),
	}}
	r := newTestRetriever(store, 0)
	profile := scheme.Profile{ID: "u1", Age: 30}

	var prev []string
	for i := 0; i < 5; i++ {
		results, err := r.Retrieve(context.Background(), "query", profile, 5)
		if err != nil {
			t.Fatalf("Retrieve run %d: %v", i, err)
		}
		var ids []string
		for _, res := range results {
			ids = append(ids, res.Scheme.ID)
		}
		if prev != nil && !reflect.DeepEqual(ids, prev) {
			t.Fatalf("run %d order %v differs from %v", i, ids, prev)
		}
		prev = ids
	}
}

func TestRetrieveSimilarityFloor(t *testing.T) {
	store := &fakeStore{results: []ScoredScheme{
		candidate("a", "Alpha", 0.9),
		candidate("b", "Beta", 0.1),
	}}
	r := newTestRetriever(store, 0.3)
	profile := scheme.Profile{ID: "u1", Age: 30}

	results, err := r.Retrieve(context.Background(), "query", profile, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Scheme.ID != "a" {
		t.Errorf("floor not applied: %+v", results)
	}
}

func TestRetrieveEmptyIsNotError(t *testing.T) {
	r := newTestRetriever(&fakeStore{}, 0)
	profile := scheme.Profile{ID: "u1", Age: 30}

	results, err := r.Retrieve(context.Background(), "query", profile, 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	var all []ScoredScheme
	for i := 0; i < 10; i++ {
		all = append(all, candidate(string(rune('a'+i)), "Scheme", float32(10-i)/10))
	}
	r := newTestRetriever(&fakeStore{results: all}, 0)
	profile := scheme.Profile{ID: "u1", Age: 30}

	results, err := r.Retrieve(context.Background(), "query", profile, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}
