// Package vectorstore defines the gateway contract for the vector database
// holding embedded document chunks. The default backend is Qdrant over its
// REST API; an in-process memory backend implements the same contract for
// offline use and tests.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Metric is the distance metric of a collection's embedding space.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
	MetricEuclid Metric = "euclid"
)

// ParseMetric validates a metric name from configuration.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricDot, MetricEuclid:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Record is one embedded chunk. Identity is (DocumentID, ChunkIndex);
// re-upserting the same identity replaces the prior record.
type Record struct {
	DocumentID string
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// pointNamespace seeds deterministic point IDs so that re-ingesting a
// document overwrites its chunks instead of duplicating them.
var pointNamespace = uuid.MustParse("9c4ff9a2-5c1b-4f0e-a57d-2b4f6cdd01ab")

// PointID returns the record's deterministic UUIDv5 identity.
func (r Record) PointID() uuid.UUID {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%d", r.DocumentID, r.ChunkIndex)))
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

// UpsertError reports a partially applied upsert: records[:Inserted] were
// written before the failure, so the caller can retry only the remainder.
type UpsertError struct {
	Inserted int
	Err      error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert failed after %d records: %v", e.Inserted, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// Store is the gateway to a single named collection.
type Store interface {
	// EnsureCollection creates the collection if absent. When the
	// collection already exists it validates that dimensionality and
	// metric match and returns a configuration fault otherwise. Idempotent.
	EnsureCollection(ctx context.Context, dim int, metric Metric) error

	// Upsert inserts or replaces records by identity. On failure it stops
	// writing and returns an *UpsertError wrapped in a connectivity fault
	// so the caller knows which records survived.
	Upsert(ctx context.Context, records []Record) error

	// Search returns up to topK records ordered by decreasing similarity,
	// ties broken by lower chunk index. A transport failure is a
	// connectivity fault, never a silent empty result.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)
}
