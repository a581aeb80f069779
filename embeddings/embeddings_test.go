package embeddings_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabfab/nexo/config"
	"github.com/fabfab/nexo/embeddings"
)

func TestNewEmbedderDefaults(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 3,
		},
		OllamaHost: "http://localhost:11434",
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		t.Fatalf("expected embedder, got error: %v", err)
	}

	if embedder == nil {
		t.Fatal("expected non-nil embedder")
	}
}

func TestNewEmbedderOpenAIMissingKey(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
	}

	if _, err := embeddings.NewEmbedder(cfg); err == nil {
		t.Fatal("expected error for missing OPENAI_API_KEY")
	}
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3],[0.4,0.5,0.6]]}`))
	}))
	defer srv.Close()

	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{OllamaHost: srv.URL, Model: "test", Dimension: 3})
	vectors, err := embedder.Embed(context.Background(), []string{"presión", "dieta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 || len(vectors[1]) != 3 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer srv.Close()

	embedder := embeddings.NewOllamaEmbedder(embeddings.Options{OllamaHost: srv.URL, Model: "test", Dimension: 3})
	if _, err := embedder.Embed(context.Background(), []string{"presión"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

type countingEmbedder struct {
	calls []int
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

var _ embeddings.Embedder = (*countingEmbedder)(nil)

func TestBatchedSplitsLongInputs(t *testing.T) {
	inner := &countingEmbedder{}
	embedder := embeddings.Batched(inner, 2)

	vectors, err := embedder.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 5 {
		t.Fatalf("expected 5 vectors, got %d", len(vectors))
	}
	if vectors[4][0] != 5 {
		t.Fatalf("vectors out of order: %v", vectors)
	}
	if len(inner.calls) != 3 || inner.calls[0] != 2 || inner.calls[2] != 1 {
		t.Fatalf("unexpected batches: %v", inner.calls)
	}
}

func TestBatchedZeroSizeIsPassThrough(t *testing.T) {
	inner := &countingEmbedder{}
	if got := embeddings.Batched(inner, 0); got != embeddings.Embedder(inner) {
		t.Fatal("expected the inner embedder back")
	}
}
