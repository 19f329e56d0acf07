package query

import (
	"context"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// QueryEmbedder vectorizes a single question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) (domain.Vector, error)
}

// Retriever is the read side of the vector index.
type Retriever interface {
	Query(ctx context.Context, vector domain.Vector, topK int) ([]domain.ScoredChunk, error)
}

// Generator answers a composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (domain.GenerationResult, error)
}
