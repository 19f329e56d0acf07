package ingest

import (
	"context"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// Extractor reads the text of a PDF.
type Extractor interface {
	Extract(ctx context.Context, path, sourceID string) (domain.Document, error)
}

// Chunker splits a document into ordered chunks.
type Chunker interface {
	Chunk(doc domain.Document) ([]domain.Chunk, error)
}

// Embedder vectorizes a batch of texts, preserving order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]domain.Vector, error)
}

// Index is the write side of the vector index.
type Index interface {
	Upsert(ctx context.Context, entries []domain.IndexedEntry) error
	DeleteSource(ctx context.Context, sourceID string) (int, error)
}

// SourceReplacer is optionally implemented by an Index that swaps a source's
// entries atomically.
type SourceReplacer interface {
	ReplaceSource(ctx context.Context, sourceID string, entries []domain.IndexedEntry) (int, error)
}
