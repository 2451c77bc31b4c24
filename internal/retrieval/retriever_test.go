package retrieval

import (
	"context"
	"testing"

	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/vectorstore"
	"github.com/counselai/counsel/internal/vectorstore/memory"
)

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFunc(ctx, text)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, 3, vectorstore.MetricCosine); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	err := s.Upsert(ctx, []vectorstore.Record{
		{DocumentID: "lease", ChunkIndex: 0, Text: "termination clause", Embedding: []float32{1, 0, 0}},
		{DocumentID: "lease", ChunkIndex: 1, Text: "fee schedule", Embedding: []float32{0, 1, 0}},
		{DocumentID: "lease", ChunkIndex: 2, Text: "liability cap", Embedding: []float32{0, 0, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return s
}

func TestRetrieveReturnsBestMatchesFirst(t *testing.T) {
	emb := &mockEmbedder{
		embedFunc: func(context.Context, string) ([]float32, error) {
			return []float32{0.9, 0.1, 0}, nil
		},
	}
	r := New(emb, seededStore(t), 3, 2, nil)

	got, err := r.Retrieve(context.Background(), "when can the lease be terminated")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].Text != "termination clause" {
		t.Errorf("top chunk = %q, want termination clause", got[0].Text)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("results not ordered by score: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestRetrieveDimensionMismatch(t *testing.T) {
	emb := &mockEmbedder{
		embedFunc: func(context.Context, string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}
	r := New(emb, seededStore(t), 3, 2, nil)

	_, err := r.Retrieve(context.Background(), "query")
	if !fault.Is(err, fault.KindConfiguration) {
		t.Errorf("kind = %v, want configuration", fault.KindOf(err))
	}
}

func TestRetrieveEmbedderFailurePropagates(t *testing.T) {
	emb := &mockEmbedder{
		embedFunc: func(context.Context, string) ([]float32, error) {
			return nil, fault.New(fault.KindEmbedding, "llm.embed", "rate limit")
		},
	}
	r := New(emb, seededStore(t), 3, 2, nil)

	_, err := r.Retrieve(context.Background(), "query")
	if !fault.Is(err, fault.KindEmbedding) {
		t.Errorf("kind = %v, want embedding", fault.KindOf(err))
	}
}

func TestRetrieveEmptyStoreIsEmptyResult(t *testing.T) {
	s := memory.New()
	if err := s.EnsureCollection(context.Background(), 3, vectorstore.MetricCosine); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	emb := &mockEmbedder{
		embedFunc: func(context.Context, string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		},
	}
	r := New(emb, s, 3, 5, nil)

	got, err := r.Retrieve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d chunks, want 0", len(got))
	}
}
