// Package qdrant is a REST client for a Qdrant collection implementing the
// vectorstore.Store contract.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/vectorstore"
)

// Compile-time check that Store implements the gateway contract.
var _ vectorstore.Store = (*Store)(nil)

const (
	defaultTimeout   = 20 * time.Second
	defaultBatchSize = 64
)

// Config holds connection settings for a Qdrant instance.
type Config struct {
	URL        string // e.g. https://xyz.cloud.qdrant.io:6333
	APIKey     string
	Collection string
	Timeout    time.Duration
	BatchSize  int // records per upsert request
}

// Store manages a single named Qdrant collection.
type Store struct {
	baseURL    string
	apiKey     string
	collection string
	batchSize  int
	dim        int // fixed by EnsureCollection
	client     *http.Client
}

// New creates a Store. The collection is not touched until EnsureCollection.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fault.New(fault.KindConfiguration, "qdrant.new", "Qdrant URL is required")
	}
	if cfg.Collection == "" {
		return nil, fault.New(fault.KindConfiguration, "qdrant.new", "collection name is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Store{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		batchSize:  batch,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// qdrantDistance maps our metric names to Qdrant's.
func qdrantDistance(m vectorstore.Metric) string {
	switch m {
	case vectorstore.MetricDot:
		return "Dot"
	case vectorstore.MetricEuclid:
		return "Euclid"
	default:
		return "Cosine"
	}
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
		PointsCount int `json:"points_count"`
	} `json:"result"`
	Status string `json:"status"`
}

// EnsureCollection creates the collection if absent; when it already exists
// the declared dimensionality and metric are validated against the server.
func (s *Store) EnsureCollection(ctx context.Context, dim int, metric vectorstore.Metric) error {
	if dim <= 0 {
		return fault.New(fault.KindConfiguration, "qdrant.ensure", "invalid dimension %d", dim)
	}

	var info collectionInfo
	status, err := s.getJSON(ctx, fmt.Sprintf("/collections/%s", s.collection), &info)
	if err != nil {
		return err
	}

	if status == http.StatusOK {
		size := info.Result.Config.Params.Vectors.Size
		dist := info.Result.Config.Params.Vectors.Distance
		if size != dim {
			return fault.New(fault.KindConfiguration, "qdrant.ensure",
				"collection %q has dimension %d, expected %d", s.collection, size, dim)
		}
		if !strings.EqualFold(dist, qdrantDistance(metric)) {
			return fault.New(fault.KindConfiguration, "qdrant.ensure",
				"collection %q uses distance %s, expected %s", s.collection, dist, qdrantDistance(metric))
		}
		s.dim = dim
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": qdrantDistance(metric),
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("/collections/%s", s.collection), body); err != nil {
		return err
	}
	s.dim = dim
	return nil
}

// Upsert writes records in batches, aborting on the first failed batch and
// reporting how many records were written before it. Records whose embedding
// length does not match the collection dimensionality are rejected before
// any request is sent.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if s.dim > 0 {
		for _, r := range records {
			if len(r.Embedding) != s.dim {
				return fault.New(fault.KindConfiguration, "qdrant.upsert",
					"record %s:%d has embedding length %d, collection dimension is %d",
					r.DocumentID, r.ChunkIndex, len(r.Embedding), s.dim)
			}
		}
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}

		points := make([]map[string]any, 0, end-start)
		for _, r := range records[start:end] {
			points = append(points, map[string]any{
				"id":     r.PointID().String(),
				"vector": r.Embedding,
				"payload": map[string]any{
					"document_id": r.DocumentID,
					"chunk_index": r.ChunkIndex,
					"text":        r.Text,
				},
			})
		}

		err := s.putJSON(ctx, fmt.Sprintf("/collections/%s/points?wait=true", s.collection),
			map[string]any{"points": points})
		if err != nil {
			return fault.Wrap(fault.KindConnectivity, "qdrant.upsert",
				&vectorstore.UpsertError{Inserted: start, Err: err})
		}
	}
	return nil
}

type searchResponse struct {
	Result []struct {
		Score   float32        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search returns the topK most similar records, ordered by decreasing score
// with ties broken by lower chunk index.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.ScoredRecord, error) {
	if topK <= 0 {
		topK = 5
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp searchResponse
	if err := s.postJSON(ctx, fmt.Sprintf("/collections/%s/points/search", s.collection), req, &resp); err != nil {
		return nil, err
	}

	results := make([]vectorstore.ScoredRecord, 0, len(resp.Result))
	for _, r := range resp.Result {
		rec := vectorstore.Record{}
		if v, ok := r.Payload["document_id"].(string); ok {
			rec.DocumentID = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			rec.ChunkIndex = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			rec.Text = v
		}
		results = append(results, vectorstore.ScoredRecord{Record: rec, Score: r.Score})
	}

	// Qdrant orders by score but leaves tie order unspecified.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	return results, nil
}

// Count returns the number of points in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("/collections/%s/points/count", s.collection),
		map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Store) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fault.Wrap(fault.KindConnectivity, "qdrant.get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fault.New(fault.KindConnectivity, "qdrant.get",
			"GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fault.Wrap(fault.KindConnectivity, "qdrant.get", err)
		}
	}
	return resp.StatusCode, nil
}

func (s *Store) putJSON(ctx context.Context, path string, body any) error {
	return s.send(ctx, http.MethodPut, path, body, nil)
}

func (s *Store) postJSON(ctx context.Context, path string, body, out any) error {
	return s.send(ctx, http.MethodPost, path, body, out)
}

func (s *Store) send(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindConnectivity, "qdrant."+strings.ToLower(method), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fault.New(fault.KindConnectivity, "qdrant."+strings.ToLower(method),
			"%s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fault.Wrap(fault.KindConnectivity, "qdrant."+strings.ToLower(method), err)
		}
	}
	return nil
}

func (s *Store) setHeaders(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}
