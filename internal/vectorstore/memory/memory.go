// Package memory is an in-process vectorstore.Store used for offline
// development and tests. Search is brute force over all records, which is
// fine at the single-document scale this backend is meant for.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/vectorstore"
)

var _ vectorstore.Store = (*Store)(nil)

// Store holds records for one collection in memory. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	created bool
	dim     int
	metric  vectorstore.Metric
	records map[string]vectorstore.Record // keyed by point ID
}

// New creates an empty Store. EnsureCollection must be called before use.
func New() *Store {
	return &Store{records: make(map[string]vectorstore.Record)}
}

// EnsureCollection fixes the collection's dimensionality and metric on first
// call; later calls validate against the stored configuration.
func (s *Store) EnsureCollection(_ context.Context, dim int, metric vectorstore.Metric) error {
	if dim <= 0 {
		return fault.New(fault.KindConfiguration, "memory.ensure", "invalid dimension %d", dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		s.created = true
		s.dim = dim
		s.metric = metric
		return nil
	}
	if s.dim != dim {
		return fault.New(fault.KindConfiguration, "memory.ensure",
			"collection has dimension %d, expected %d", s.dim, dim)
	}
	if s.metric != metric {
		return fault.New(fault.KindConfiguration, "memory.ensure",
			"collection uses metric %s, expected %s", s.metric, metric)
	}
	return nil
}

// Upsert inserts or replaces records by identity. Records whose embedding
// length does not match the collection dimensionality are rejected before
// any of the batch is written.
func (s *Store) Upsert(_ context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		return fault.New(fault.KindConfiguration, "memory.upsert", "collection not created")
	}
	for _, r := range records {
		if len(r.Embedding) != s.dim {
			return fault.New(fault.KindConfiguration, "memory.upsert",
				"record %s:%d has embedding length %d, collection dimension is %d",
				r.DocumentID, r.ChunkIndex, len(r.Embedding), s.dim)
		}
	}
	for _, r := range records {
		s.records[r.PointID().String()] = r
	}
	return nil
}

// Search returns up to topK records by decreasing similarity, ties broken by
// lower chunk index.
func (s *Store) Search(_ context.Context, vector []float32, topK int) ([]vectorstore.ScoredRecord, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.created {
		return nil, fault.New(fault.KindConfiguration, "memory.search", "collection not created")
	}
	if len(vector) != s.dim {
		return nil, fault.New(fault.KindConfiguration, "memory.search",
			"query vector length %d, collection dimension is %d", len(vector), s.dim)
	}

	scored := make([]vectorstore.ScoredRecord, 0, len(s.records))
	for _, r := range s.records {
		scored = append(scored, vectorstore.ScoredRecord{
			Record: r,
			Score:  s.similarity(vector, r.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkIndex < scored[j].ChunkIndex
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Count returns the number of stored records.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) similarity(a, b []float32) float32 {
	switch s.metric {
	case vectorstore.MetricDot:
		return dot(a, b)
	case vectorstore.MetricEuclid:
		// Negated distance so that "higher is more similar" holds for
		// every metric.
		return -euclid(a, b)
	default:
		return cosine(a, b)
	}
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func euclid(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

func cosine(a, b []float32) float32 {
	var dotP, aSq, bSq float64
	for i := range a {
		dotP += float64(a[i]) * float64(b[i])
		aSq += float64(a[i]) * float64(a[i])
		bSq += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(aSq) * math.Sqrt(bSq)
	if denom == 0 {
		return 0
	}
	return float32(dotP / denom)
}
