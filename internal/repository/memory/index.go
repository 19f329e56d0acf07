// Package memory is a brute-force in-process vector index.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/index"
)

var (
	_ index.Index          = (*Index)(nil)
	_ index.SourceReplacer = (*Index)(nil)
)

// Index keeps every entry in a slice and scans it on Query.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []domain.IndexedEntry
}

// New creates an empty index for vectors of dimension dim.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Upsert appends entries. Missing ids are generated. All-or-nothing on validation.
func (ix *Index) Upsert(_ context.Context, entries []domain.IndexedEntry) error {
	if err := index.ValidateEntries(entries, ix.dim); err != nil {
		return err //nolint:wrapcheck // already annotated
	}

	batch := prepare(entries)

	ix.mu.Lock()
	ix.entries = append(ix.entries, batch...)
	ix.mu.Unlock()
	return nil
}

// ReplaceSource drops the entries of sourceID and appends entries under one lock.
func (ix *Index) ReplaceSource(_ context.Context, sourceID string, entries []domain.IndexedEntry) (int, error) {
	if err := index.ValidateEntries(entries, ix.dim); err != nil {
		return 0, err //nolint:wrapcheck // already annotated
	}
	batch := prepare(entries)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	before := len(ix.entries)
	ix.entries = slices.DeleteFunc(ix.entries, func(e domain.IndexedEntry) bool {
		return e.Chunk.SourceID == sourceID
	})
	removed := before - len(ix.entries)
	ix.entries = append(ix.entries, batch...)
	return removed, nil
}

func prepare(entries []domain.IndexedEntry) []domain.IndexedEntry {
	batch := make([]domain.IndexedEntry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.Vector = slices.Clone(e.Vector)
		batch[i] = e
	}
	return batch
}

// Query scores every entry and returns the topK best.
func (ix *Index) Query(_ context.Context, vector domain.Vector, topK int) ([]domain.ScoredChunk, error) {
	if err := index.ValidateQuery(vector, topK, ix.dim); err != nil {
		return nil, err //nolint:wrapcheck // already annotated
	}

	ix.mu.RLock()
	hits := make([]domain.ScoredChunk, len(ix.entries))
	for i := range ix.entries {
		hits[i] = domain.ScoredChunk{
			Chunk: ix.entries[i].Chunk,
			Score: index.Cosine(vector, ix.entries[i].Vector),
		}
	}
	ix.mu.RUnlock()

	// Stable so equal scores keep insertion order.
	slices.SortStableFunc(hits, func(a, b domain.ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteSource removes all entries of a source and reports how many were removed.
func (ix *Index) DeleteSource(_ context.Context, sourceID string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	before := len(ix.entries)
	ix.entries = slices.DeleteFunc(ix.entries, func(e domain.IndexedEntry) bool {
		return e.Chunk.SourceID == sourceID
	})
	return before - len(ix.entries), nil
}

// Count returns the number of stored entries.
func (ix *Index) Count(_ context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries), nil
}

// Ping always succeeds.
func (ix *Index) Ping(_ context.Context) error { return nil }
