package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// EntryError reports which input of a batch failed.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Service embeds batches of texts, one remote request per text.
type Service struct {
	embedder    domain.Embedder
	dim         int
	concurrency int
	logger      *zap.Logger
}

// NewService creates a batch embedding service. dim <= 0 disables dimension checks;
// concurrency < 1 means sequential.
func NewService(embedder domain.Embedder, dim, concurrency int, logger *zap.Logger) *Service {
	return &Service{
		embedder:    embedder,
		dim:         dim,
		concurrency: max(concurrency, 1),
		logger:      logger,
	}
}

// Dimension returns the configured vector dimension.
func (s *Service) Dimension() int { return s.dim }

// Embed returns one vector per text in input order. On failure the returned slice
// still holds every vector computed so far, nil for the rest, and the error is an
// *EntryError for the first failing input.
func (s *Service) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	out := make([]domain.Vector, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, text := range texts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := s.embedOne(gctx, text)
			if err != nil {
				return &EntryError{Index: i, Err: err}
			}
			out[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn("Batch embedding failed",
			zap.Int("batch_size", len(texts)),
			zap.Error(err),
		)
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("embed batch: %w: %w", err, domain.ErrEmbeddingService)
	}
	return out, nil
}

// EmbedQuery embeds a single text, typically a question.
func (s *Service) EmbedQuery(ctx context.Context, text string) (domain.Vector, error) {
	return s.embedOne(ctx, text)
}

func (s *Service) embedOne(ctx context.Context, text string) (domain.Vector, error) {
	res, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingService) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingService, err)
		}
		return nil, err
	}
	v := domain.Vector(res.Embedding)
	if err := domain.CheckDimension(v, s.dim); err != nil {
		return nil, err //nolint:wrapcheck // typed domain error
	}
	return v, nil
}
