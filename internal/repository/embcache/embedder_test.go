package embcache

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/aero-edu/aero/internal/db"
	"github.com/aero-edu/aero/internal/domain"
)

// mockKV implements the consumer interface for tests.
type mockKV struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	setKeys []string
}

func newMockKV() *mockKV {
	return &mockKV{data: map[string][]byte{}}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.setKeys = append(m.setKeys, key)
	return nil
}

// mockEmbedder implements domain.Embedder (and optionally BatchEmbedder).
type mockEmbedder struct {
	version    string
	embedFn    func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	embedCalls int
}

func (m *mockEmbedder) ModelVersion() string { return m.version }

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3}, TotalTokens: 7}, nil
}

func TestEmbed_MissThenHit(t *testing.T) {
	kv := newMockKV()
	inner := &mockEmbedder{version: "m/3"}
	c := New(inner, kv, "aero:", nil, zap.NewNop())
	ctx := context.Background()

	res, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.embedCalls != 1 || res.TotalTokens != 7 {
		t.Fatalf("expected provider call on miss, calls=%d tokens=%d", inner.embedCalls, res.TotalTokens)
	}

	res, err = c.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.embedCalls != 1 {
		t.Errorf("cache hit still called the provider")
	}
	if res.TotalTokens != 0 {
		t.Errorf("cache hit should report zero tokens, got %d", res.TotalTokens)
	}
	if len(res.Embedding) != 3 || res.Embedding[2] != 3 {
		t.Errorf("cached vector corrupted: %v", res.Embedding)
	}
}

func TestEmbed_ModelVersionSeparatesKeys(t *testing.T) {
	kv := newMockKV()
	ctx := context.Background()

	a := New(&mockEmbedder{version: "m/3"}, kv, "aero:", nil, zap.NewNop())
	if _, err := a.Embed(ctx, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	innerB := &mockEmbedder{version: "m/4"}
	b := New(innerB, kv, "aero:", nil, zap.NewNop())
	if _, err := b.Embed(ctx, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if innerB.embedCalls != 1 {
		t.Error("different model version must not share cache entries")
	}
}

func TestEmbed_StoreFailuresAreNotFatal(t *testing.T) {
	kv := newMockKV()
	kv.getErr = errors.New("store down")
	kv.setErr = errors.New("store down")
	inner := &mockEmbedder{version: "m/3"}
	c := New(inner, kv, "aero:", nil, zap.NewNop())

	res, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("cache trouble must not fail embedding: %v", err)
	}
	if len(res.Embedding) != 3 {
		t.Errorf("unexpected embedding: %v", res.Embedding)
	}
}

func TestEmbed_ProviderErrorPropagates(t *testing.T) {
	inner := &mockEmbedder{
		version: "m/3",
		embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{}, domain.ErrEmbedding
		},
	}
	c := New(inner, newMockKV(), "aero:", nil, zap.NewNop())

	_, err := c.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
}

func TestBatchEmbed_MixedHitsPreserveOrder(t *testing.T) {
	kv := newMockKV()
	inner := &mockEmbedder{
		version: "m/3",
		embedFn: func(_ context.Context, text string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}}, nil
		},
	}
	c := New(inner, kv, "aero:", nil, zap.NewNop())
	ctx := context.Background()

	// Prime "bb" so the batch sees hit/miss interleaved.
	if _, err := c.Embed(ctx, "bb"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner.embedCalls = 0

	res, err := c.BatchEmbed(ctx, []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.Embeddings[0][0] != 1 || res.Embeddings[1][0] != 2 || res.Embeddings[2][0] != 3 {
		t.Errorf("order not preserved: %v", res.Embeddings)
	}
	if inner.embedCalls != 2 {
		t.Errorf("expected 2 provider calls for the misses, got %d", inner.embedCalls)
	}
}

func TestBatchEmbed_AllCached(t *testing.T) {
	kv := newMockKV()
	inner := &mockEmbedder{version: "m/3"}
	c := New(inner, kv, "aero:", nil, zap.NewNop())
	ctx := context.Background()

	for _, text := range []string{"a", "b"} {
		if _, err := c.Embed(ctx, text); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	inner.embedCalls = 0

	res, err := c.BatchEmbed(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.embedCalls != 0 {
		t.Errorf("fully cached batch still called the provider")
	}
	if res.TotalTokens != 0 {
		t.Errorf("fully cached batch should report zero tokens")
	}
}

func TestModelVersion_Delegates(t *testing.T) {
	c := New(&mockEmbedder{version: "m/3"}, newMockKV(), "aero:", nil, zap.NewNop())
	if c.ModelVersion() != "m/3" {
		t.Errorf("unexpected model version: %q", c.ModelVersion())
	}
}
