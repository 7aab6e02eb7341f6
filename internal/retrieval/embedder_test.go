package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

// --- mock provider ---

type mockProvider struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   atomic.Int32
}

func (m *mockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (m *mockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{3, 4}, nil
}

func (m *mockProvider) Name() string { return "mock" }

// --- tests ---

func TestEmbedNormalizes(t *testing.T) {
	e := NewEmbedder(&mockProvider{}, 0, 0)

	vec, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("norm^2 = %g, want 1.0", sum)
	}
	if vec[0] != 0.6 || vec[1] != 0.8 {
		t.Errorf("vec = %v, want [0.6 0.8]", vec)
	}
}

func TestEmbedCachesRepeatQueries(t *testing.T) {
	p := &mockProvider{}
	e := NewEmbedder(p, 16, time.Minute)
	ctx := context.Background()

	first, err := e.Embed(ctx, "skill training")
	if err != nil {
		t.Fatalf("first Embed: %v", err)
	}
	second, err := e.Embed(ctx, "skill training")
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}

	if p.calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1", p.calls.Load())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewEmbedder(&mockProvider{}, 0, 0)
	_, err := e.Embed(context.Background(), "")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedProviderFailure(t *testing.T) {
	p := &mockProvider{embedFn: func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("model not loaded")
	}}
	e := NewEmbedder(p, 0, 0)
	_, err := e.Embed(context.Background(), "query")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedNoOutput(t *testing.T) {
	p := &mockProvider{embedFn: func(ctx context.Context, text string) ([]float32, error) {
		return []float32{}, nil
	}}
	e := NewEmbedder(p, 0, 0)
	_, err := e.Embed(context.Background(), "query")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedBatch(t *testing.T) {
	p := &mockProvider{embedFn: func(ctx context.Context, text string) ([]float32, error) {
		// Distinguishable vector per text.
		return []float32{float32(len(text)), 1}, nil
	}}
	e := NewEmbedder(p, 0, 0)

	texts := []string{"a", "bb", "ccc"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 2 {
			t.Errorf("vecs[%d] has %d dims", i, len(v))
		}
	}

	empty, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || empty != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", empty, err)
	}
}

func TestEmbedBatchPropagatesFailure(t *testing.T) {
	p := &mockProvider{embedFn: func(ctx context.Context, text string) ([]float32, error) {
		if text == "bad" {
			return nil, fmt.Errorf("boom")
		}
		return []float32{1, 0}, nil
	}}
	e := NewEmbedder(p, 0, 0)

	if _, err := e.EmbedBatch(context.Background(), []string{"ok", "bad"}); err == nil {
		t.Fatal("expected batch error")
	}
}
