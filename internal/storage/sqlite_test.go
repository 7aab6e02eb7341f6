package storage

import (
	"context"
	"testing"
	"time"

	"github.com/saarthi-dev/saarthi/internal/scheme"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testScheme(id, name string) scheme.Scheme {
	return scheme.Scheme{
		ID:              id,
		Name:            name,
		Description:     "A training program",
		Benefits:        "Stipend and certification",
		EligibilityText: "Open to residents aged 18-35",
		Category:        "skill",
		SourceURL:       "https://example.gov.in/" + id,
		Embedding:       []float32{0.6, 0.8},
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	if versions[0] != 1 {
		t.Errorf("first migration version = %d, want 1", versions[0])
	}
}

func TestUpsertAndGetScheme(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ageMin, ageMax := 18, 35
	edu := scheme.EducationBelow10th
	sc := testScheme("s1", "Skill Training")
	sc.AgeMin = &ageMin
	sc.AgeMax = &ageMax
	sc.MinEducation = &edu

	if err := s.UpsertScheme(sc); err != nil {
		t.Fatalf("UpsertScheme: %v", err)
	}

	got, err := s.GetScheme(ctx, "s1")
	if err != nil {
		t.Fatalf("GetScheme: %v", err)
	}
	if got.Name != "Skill Training" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.AgeMin == nil || *got.AgeMin != 18 {
		t.Errorf("AgeMin = %v, want 18", got.AgeMin)
	}
	if got.MinEducation == nil || *got.MinEducation != scheme.EducationBelow10th {
		t.Errorf("MinEducation = %v", got.MinEducation)
	}
	if len(got.Embedding) != 2 {
		t.Errorf("embedding dims = %d, want 2", len(got.Embedding))
	}

	// Upsert replaces fields for the same ID.
	sc.Benefits = "Updated benefits"
	if err := s.UpsertScheme(sc); err != nil {
		t.Fatalf("second UpsertScheme: %v", err)
	}
	got, err = s.GetScheme(ctx, "s1")
	if err != nil {
		t.Fatalf("GetScheme after update: %v", err)
	}
	if got.Benefits != "Updated benefits" {
		t.Errorf("Benefits = %q after upsert", got.Benefits)
	}
	count, err := s.CountSchemes()
	if err != nil {
		t.Fatalf("CountSchemes: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d after double upsert, want 1", count)
	}
}

func TestUpsertSchemeRejectsInvalid(t *testing.T) {
	s := openTestStore(t)

	sc := testScheme("s1", "Valid")
	sc.SourceURL = ""
	if err := s.UpsertScheme(sc); err == nil {
		t.Error("scheme without source URL accepted")
	}

	sc = testScheme("s2", "No embedding")
	sc.Embedding = nil
	if err := s.UpsertScheme(sc); err == nil {
		t.Error("scheme without embedding accepted")
	}
}

func TestGetSchemeNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetScheme(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAllSchemeNames(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"a", "b"} {
		if err := s.UpsertScheme(testScheme(id, "Scheme "+id)); err != nil {
			t.Fatalf("UpsertScheme(%s): %v", id, err)
		}
	}
	names, err := s.AllSchemeNames(context.Background())
	if err != nil {
		t.Fatalf("AllSchemeNames: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2", len(names))
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := scheme.Profile{ID: "u1", Language: "hi", Age: 25, Education: scheme.Education12thPass}
	if err := s.PutProfile(ctx, p); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
	got, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got != p {
		t.Errorf("GetProfile = %+v, want %+v", got, p)
	}

	if _, err := s.GetProfile(ctx, "unknown"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCacheEntryUpsertPreservesHits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	url := "https://example.gov.in/scheme"

	first := CacheEntry{URL: url, Content: "v1", FetchedAt: time.Now().Add(-time.Hour)}
	if err := s.PutCacheEntry(ctx, first); err != nil {
		t.Fatalf("PutCacheEntry: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.TouchCacheEntry(ctx, url); err != nil {
			t.Fatalf("TouchCacheEntry: %v", err)
		}
	}

	// Refresh replaces content and timestamp but keeps the hit counter.
	second := CacheEntry{URL: url, Content: "v2", FetchedAt: time.Now()}
	if err := s.PutCacheEntry(ctx, second); err != nil {
		t.Fatalf("refresh PutCacheEntry: %v", err)
	}

	got, err := s.GetCacheEntry(ctx, url)
	if err != nil {
		t.Fatalf("GetCacheEntry: %v", err)
	}
	if got.Content != "v2" {
		t.Errorf("Content = %q, want v2", got.Content)
	}
	if got.Hits != 3 {
		t.Errorf("Hits = %d, want 3", got.Hits)
	}
}

func TestAppendTurnSequencing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := SessionRecord{
		ID: "sess1", UserID: "u1",
		CreatedAt: time.Now(), ExpiresAt: time.Now().Add(30 * time.Minute),
	}
	if err := s.CreateSession(ctx, rec); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for i := 0; i < 3; i++ {
		seq, err := s.AppendTurn(ctx, "sess1", Turn{Query: "q", Response: "r", CitedIDs: []string{"s1"}})
		if err != nil {
			t.Fatalf("AppendTurn %d: %v", i, err)
		}
		if seq != i {
			t.Errorf("seq = %d, want %d", seq, i)
		}
	}

	turns, err := s.ListTurns(ctx, "sess1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != i {
			t.Errorf("turns[%d].Seq = %d", i, turn.Seq)
		}
	}
	if len(turns[0].CitedIDs) != 1 || turns[0].CitedIDs[0] != "s1" {
		t.Errorf("CitedIDs = %v", turns[0].CitedIDs)
	}
}

func TestSweepSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	expired := SessionRecord{ID: "old", UserID: "u1", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	live := SessionRecord{ID: "new", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	for _, rec := range []SessionRecord{expired, live} {
		if err := s.CreateSession(ctx, rec); err != nil {
			t.Fatalf("CreateSession(%s): %v", rec.ID, err)
		}
	}
	if _, err := s.AppendTurn(ctx, "old", Turn{Query: "q", Response: "r"}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	ids, err := s.SweepSessions(ctx, now)
	if err != nil {
		t.Fatalf("SweepSessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != "old" {
		t.Errorf("swept sessions = %v, want [old]", ids)
	}
	if _, err := s.GetSession(ctx, "old"); err != ErrNotFound {
		t.Errorf("expired session still present: %v", err)
	}
	if _, err := s.GetSession(ctx, "new"); err != nil {
		t.Errorf("live session removed: %v", err)
	}
	// Cascade removed the expired session's turns.
	turns, err := s.ListTurns(ctx, "old")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expired session retained %d turns", len(turns))
	}
}
