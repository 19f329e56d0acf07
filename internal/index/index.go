// Package index defines the vector index contract shared by every storage backend.
package index

import (
	"context"
	"fmt"
	"math"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// Index stores chunk vectors and answers nearest-neighbour queries.
//
// Upsert appends and never deduplicates; callers that re-ingest a source remove
// its entries first with DeleteSource. Query returns hits ordered by descending
// cosine similarity, at most topK of them.
type Index interface {
	Upsert(ctx context.Context, entries []domain.IndexedEntry) error
	Query(ctx context.Context, vector domain.Vector, topK int) ([]domain.ScoredChunk, error)
	DeleteSource(ctx context.Context, sourceID string) (int, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// SourceReplacer is implemented by backends that can swap a source's entries
// atomically. On error the previous entries are left in place.
type SourceReplacer interface {
	ReplaceSource(ctx context.Context, sourceID string, entries []domain.IndexedEntry) (int, error)
}

// ValidateEntries checks every entry against the index dimension.
func ValidateEntries(entries []domain.IndexedEntry, dim int) error {
	for i := range entries {
		if err := domain.CheckDimension(entries[i].Vector, dim); err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, entries[i].Chunk.SourceID, err)
		}
		if entries[i].Chunk.SourceID == "" {
			return fmt.Errorf("entry %d: empty source id: %w", i, domain.ErrInvalidArgument)
		}
	}
	return nil
}

// ValidateQuery checks the query vector and topK.
func ValidateQuery(vector domain.Vector, topK, dim int) error {
	if topK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d: %w", topK, domain.ErrInvalidArgument)
	}
	return domain.CheckDimension(vector, dim) //nolint:wrapcheck // typed domain error
}

// Cosine returns the cosine similarity of a and b. Zero vectors score 0.
func Cosine(a, b domain.Vector) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
