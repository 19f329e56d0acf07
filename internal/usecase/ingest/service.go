package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/logger"
	"github.com/kailas-cloud/pdfrag/internal/metrics"
)

// FunctionID names the ingestion workflow in the coordinator.
const FunctionID = "rag-ingest-pdf"

const workflowName = "ingest"

// State is a step of the ingestion workflow.
type State string

// Ingestion states in execution order.
const (
	StateReceived  State = "received"
	StateExtracted State = "extracted"
	StateChunked   State = "chunked"
	StateEmbedded  State = "embedded"
	StateIndexed   State = "indexed"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Result is the output of a successful ingestion.
type Result struct {
	SourceID        string `json:"source_id"`
	ChunksIndexed   int    `json:"chunks_indexed"`
	Pages           int    `json:"pages"`
	Replaced        int    `json:"replaced"`
	EmbeddingTokens int    `json:"embedding_tokens"`
}

// Output converts the result into run output.
func (r Result) Output() map[string]any {
	return map[string]any{
		"source_id":        r.SourceID,
		"chunks_indexed":   r.ChunksIndexed,
		"pages":            r.Pages,
		"replaced":         r.Replaced,
		"embedding_tokens": r.EmbeddingTokens,
	}
}

// Service runs extract -> chunk -> embed -> index for one document.
type Service struct {
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	index     Index
	replace   bool
	onState   func(State)
}

// New creates an ingestion service. Re-ingesting a source replaces its entries.
func New(extractor Extractor, chunker Chunker, embedder Embedder, idx Index) *Service {
	return &Service{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     idx,
		replace:   true,
	}
}

// WithReplace toggles deleting a source's previous entries before writing.
// Without it, every retry or re-ingest appends duplicates.
func (s *Service) WithReplace(replace bool) *Service {
	s.replace = replace
	return s
}

// WithStateHook registers a callback invoked on every state transition.
func (s *Service) WithStateHook(fn func(State)) *Service {
	s.onState = fn
	return s
}

// Ingest runs the workflow. Nothing is written to the index unless every chunk embedded.
func (s *Service) Ingest(ctx context.Context, p domain.IngestPayload) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err //nolint:wrapcheck // domain validation error
	}

	ctx, log := logger.With(ctx, zap.String("source_id", p.SourceID))
	ctx, usage := domain.NewContextWithUsage(ctx)

	fail := func(step State, err error) (Result, error) {
		s.transition(log, StateFailed)
		log.Error("Ingestion failed",
			zap.String("step", string(step)),
			zap.String("kind", domain.ErrorKind(err)),
			zap.Error(err),
		)
		return Result{}, err
	}

	s.transition(log, StateReceived)

	start := time.Now()
	doc, err := s.extractor.Extract(ctx, p.PDFPath, p.SourceID)
	observe(StateExtracted, start)
	if err != nil {
		return fail(StateExtracted, fmt.Errorf("extract %s: %w", p.PDFPath, err))
	}
	s.transition(log, StateExtracted)

	start = time.Now()
	chunks, err := s.chunker.Chunk(doc)
	observe(StateChunked, start)
	if err != nil {
		return fail(StateChunked, fmt.Errorf("chunk: %w", err))
	}
	if len(chunks) == 0 {
		return fail(StateChunked, fmt.Errorf("document %s produced no chunks: %w", p.SourceID, domain.ErrNoContent))
	}
	s.transition(log, StateChunked)

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	start = time.Now()
	vectors, err := s.embedder.Embed(ctx, texts)
	observe(StateEmbedded, start)
	if err != nil {
		return fail(StateEmbedded, fmt.Errorf("embed %d chunks: %w", len(texts), err))
	}
	if len(vectors) != len(chunks) {
		return fail(StateEmbedded, fmt.Errorf("embedder returned %d vectors for %d chunks: %w",
			len(vectors), len(chunks), domain.ErrEmbeddingService))
	}
	s.transition(log, StateEmbedded)

	entries := make([]domain.IndexedEntry, len(chunks))
	for i := range chunks {
		entries[i] = domain.IndexedEntry{Chunk: chunks[i], Vector: vectors[i]}
	}

	start = time.Now()
	replaced, err := s.store(ctx, p.SourceID, entries)
	observe(StateIndexed, start)
	if err != nil {
		return fail(StateIndexed, err)
	}
	metrics.ChunksIndexedTotal.Add(float64(len(entries)))
	s.transition(log, StateIndexed)

	res := Result{
		SourceID:        p.SourceID,
		ChunksIndexed:   len(entries),
		Pages:           doc.Pages,
		Replaced:        replaced,
		EmbeddingTokens: usage.TotalTokens(),
	}
	s.transition(log, StateDone)
	log.Info("Ingestion completed",
		zap.Int("chunks_indexed", res.ChunksIndexed),
		zap.Int("pages", res.Pages),
		zap.Int("replaced", res.Replaced),
		zap.Int("embedding_tokens", res.EmbeddingTokens),
	)
	return res, nil
}

// store writes entries, first removing the source's previous entries in replace mode.
// Backends without SourceReplacer delete then append, so a failed append leaves
// the source empty until the run is retried.
func (s *Service) store(ctx context.Context, sourceID string, entries []domain.IndexedEntry) (int, error) {
	if !s.replace {
		if err := s.index.Upsert(ctx, entries); err != nil {
			return 0, fmt.Errorf("index %d chunks: %w", len(entries), err)
		}
		return 0, nil
	}
	if r, ok := s.index.(SourceReplacer); ok {
		n, err := r.ReplaceSource(ctx, sourceID, entries)
		if err != nil {
			return 0, fmt.Errorf("replace source %s with %d chunks: %w", sourceID, len(entries), err)
		}
		return n, nil
	}
	n, err := s.index.DeleteSource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("replace source %s: %w", sourceID, err)
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return n, fmt.Errorf("index %d chunks: %w", len(entries), err)
	}
	return n, nil
}

func (s *Service) transition(log *zap.Logger, st State) {
	log.Debug("Ingestion state", zap.String("state", string(st)))
	if s.onState != nil {
		s.onState(st)
	}
}

func observe(step State, start time.Time) {
	metrics.StepDuration.WithLabelValues(workflowName, string(step)).Observe(time.Since(start).Seconds())
}
