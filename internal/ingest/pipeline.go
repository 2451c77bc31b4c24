// Package ingest turns uploaded PDF documents into embedded chunks in the
// vector store: extract text, split into overlapping chunks, embed, upsert.
package ingest

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/vectorstore"
)

const (
	embedBatchSize   = 16
	embedConcurrency = 4
)

// Embedder generates embedding vectors for batches of text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline runs the full ingestion path for one document at a time.
type Pipeline struct {
	chunker  *Chunker
	embedder Embedder
	store    vectorstore.Store
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(chunker *Chunker, embedder Embedder, store vectorstore.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{chunker: chunker, embedder: embedder, store: store, logger: logger}
}

// Ingest extracts the PDF in r, chunks and embeds its text, and upserts the
// chunks under documentID. Returns the number of chunks written. Chunk
// identity is deterministic, so re-ingesting the same document replaces its
// prior chunks instead of duplicating them. An embedding failure aborts the
// run; chunks written before a store failure stay in place and are reported
// through the wrapped upsert error.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, documentID string) (int, error) {
	text, err := ExtractPDF(r)
	if err != nil {
		return 0, err
	}
	return p.IngestText(ctx, text, documentID)
}

// IngestText runs the chunk, embed and upsert stages on already extracted
// text. Useful for plain-text sources that skip PDF parsing.
func (p *Pipeline) IngestText(ctx context.Context, text, documentID string) (int, error) {
	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, fault.New(fault.KindDocument, "ingest.run",
			"document %s has no extractable text", documentID)
	}
	p.logger.Debug("document chunked", "document_id", documentID, "chunks", len(chunks))

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		g.Go(func() error {
			vecs, err := p.embedder.EmbedBatch(gctx, chunks[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fault.Wrap(fault.KindEmbedding, "ingest.run", err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, text := range chunks {
		records[i] = vectorstore.Record{
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       text,
			Embedding:  vectors[i],
		}
	}

	if err := p.store.Upsert(ctx, records); err != nil {
		return 0, err
	}

	p.logger.Info("document ingested", "document_id", documentID, "chunks", len(records))
	return len(records), nil
}
