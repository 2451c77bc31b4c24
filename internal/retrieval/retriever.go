// Package retrieval answers natural-language queries with the most relevant
// document chunks from the vector store.
package retrieval

import (
	"context"
	"log/slog"

	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/vectorstore"
)

const defaultTopK = 5

// Embedder produces the query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContextChunk is one retrieved chunk ready to be spliced into a prompt.
type ContextChunk struct {
	DocumentID string
	ChunkIndex int
	Text       string
	Score      float32
}

// Retriever embeds queries and searches the vector store.
type Retriever struct {
	embedder   Embedder
	store      vectorstore.Store
	dimensions int
	topK       int
	logger     *slog.Logger
}

// New creates a Retriever. dimensions is the collection's embedding size and
// guards against querying with a vector from a differently sized model.
func New(embedder Embedder, store vectorstore.Store, dimensions, topK int, logger *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder:   embedder,
		store:      store,
		dimensions: dimensions,
		topK:       topK,
		logger:     logger,
	}
}

// Retrieve returns up to topK chunks for the query, best match first. An
// empty result is a valid answer; transport failures are never flattened
// into one.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]ContextChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) != r.dimensions {
		return nil, fault.New(fault.KindConfiguration, "retrieval.retrieve",
			"query embedding has %d dimensions, collection expects %d", len(vec), r.dimensions)
	}

	scored, err := r.store.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, err
	}

	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			DocumentID: s.DocumentID,
			ChunkIndex: s.ChunkIndex,
			Text:       s.Text,
			Score:      s.Score,
		}
	}
	r.logger.Debug("retrieved context", "query_len", len(query), "chunks", len(chunks))
	return chunks, nil
}
