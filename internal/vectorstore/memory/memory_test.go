package memory

import (
	"context"
	"testing"

	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/vectorstore"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.EnsureCollection(context.Background(), 3, vectorstore.MetricCosine); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	return s
}

func TestEnsureCollectionIdempotent(t *testing.T) {
	s := newStore(t)
	if err := s.EnsureCollection(context.Background(), 3, vectorstore.MetricCosine); err != nil {
		t.Fatalf("second EnsureCollection: %v", err)
	}
}

func TestEnsureCollectionDimensionMismatch(t *testing.T) {
	s := newStore(t)
	err := s.EnsureCollection(context.Background(), 4, vectorstore.MetricCosine)
	if err == nil {
		t.Fatal("expected error for dimension mismatch")
	}
	if !fault.Is(err, fault.KindConfiguration) {
		t.Errorf("kind = %v, want configuration", fault.KindOf(err))
	}
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := newStore(t)
	err := s.Upsert(context.Background(), []vectorstore.Record{
		{DocumentID: "doc", ChunkIndex: 0, Embedding: []float32{1, 0}},
	})
	if !fault.Is(err, fault.KindConfiguration) {
		t.Errorf("kind = %v, want configuration", fault.KindOf(err))
	}
	n, _ := s.Count(context.Background())
	if n != 0 {
		t.Errorf("count = %d, want 0 after rejected upsert", n)
	}
}

func TestUpsertOverwritesByIdentity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := vectorstore.Record{DocumentID: "doc", ChunkIndex: 0, Text: "v1", Embedding: []float32{1, 0, 0}}
	if err := s.Upsert(ctx, []vectorstore.Record{rec}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec.Text = "v2"
	if err := s.Upsert(ctx, []vectorstore.Record{rec}); err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1 after overwrite", n)
	}

	got, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got[0].Text != "v2" {
		t.Errorf("text = %q, want v2", got[0].Text)
	}
}

func TestSearchOrdersByScore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []vectorstore.Record{
		{DocumentID: "doc", ChunkIndex: 0, Text: "far", Embedding: []float32{0, 1, 0}},
		{DocumentID: "doc", ChunkIndex: 1, Text: "near", Embedding: []float32{1, 0, 0}},
		{DocumentID: "doc", ChunkIndex: 2, Text: "mid", Embedding: []float32{1, 1, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 (topK cap)", len(got))
	}
	if got[0].Text != "near" || got[1].Text != "mid" {
		t.Errorf("order = [%q %q], want [near mid]", got[0].Text, got[1].Text)
	}
}

func TestSearchTieBreaksByChunkIndex(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Identical embeddings produce identical scores.
	err := s.Upsert(ctx, []vectorstore.Record{
		{DocumentID: "doc", ChunkIndex: 5, Text: "later", Embedding: []float32{1, 0, 0}},
		{DocumentID: "doc", ChunkIndex: 2, Text: "earlier", Embedding: []float32{1, 0, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got[0].ChunkIndex != 2 {
		t.Errorf("first result chunk index = %d, want 2", got[0].ChunkIndex)
	}
}

func TestSearchWrongQueryDimension(t *testing.T) {
	s := newStore(t)
	_, err := s.Search(context.Background(), []float32{1, 0}, 5)
	if !fault.Is(err, fault.KindConfiguration) {
		t.Errorf("kind = %v, want configuration", fault.KindOf(err))
	}
}

func TestEuclidMetricRanksNearestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, 2, vectorstore.MetricEuclid); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	err := s.Upsert(ctx, []vectorstore.Record{
		{DocumentID: "doc", ChunkIndex: 0, Text: "far", Embedding: []float32{10, 10}},
		{DocumentID: "doc", ChunkIndex: 1, Text: "near", Embedding: []float32{1, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Search(ctx, []float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got[0].Text != "near" {
		t.Errorf("first result = %q, want near", got[0].Text)
	}
}
