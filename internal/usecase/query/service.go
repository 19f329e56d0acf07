package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/logger"
	"github.com/kailas-cloud/pdfrag/internal/metrics"
)

// FunctionID names the query workflow in the coordinator.
const FunctionID = "rag-query-pdf-ai"

const workflowName = "query"

// State is a step of the query workflow.
type State string

// Query states in execution order.
const (
	StateReceived      State = "received"
	StateQueryEmbedded State = "query_embedded"
	StateRetrieved     State = "retrieved"
	StateGenerated     State = "generated"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Answer is the output of a successful query.
type Answer struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}

// Output converts the answer into run output.
func (a Answer) Output() map[string]any {
	sources := a.Sources
	if sources == nil {
		sources = []string{}
	}
	return map[string]any{
		"answer":       a.Answer,
		"sources":      sources,
		"num_contexts": a.NumContexts,
	}
}

// Service runs embed -> retrieve -> generate for one question.
type Service struct {
	embedder  QueryEmbedder
	retriever Retriever
	generator Generator
	prompts   *PromptRenderer
	maxTopK   int
	onState   func(State)
}

// New creates a query service.
func New(embedder QueryEmbedder, retriever Retriever, generator Generator) *Service {
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		prompts:   NewPromptRenderer(),
		maxTopK:   domain.MaxTopK,
	}
}

// WithMaxTopK lowers the top_k cap below domain.MaxTopK.
func (s *Service) WithMaxTopK(n int) *Service {
	if n >= domain.MinTopK && n <= domain.MaxTopK {
		s.maxTopK = n
	}
	return s
}

// WithStateHook registers a callback invoked on every state transition.
func (s *Service) WithStateHook(fn func(State)) *Service {
	s.onState = fn
	return s
}

// Ask answers the question from the top-K retrieved chunks. Zero retrieved chunks still generate.
func (s *Service) Ask(ctx context.Context, p domain.QueryPayload) (Answer, error) {
	if err := p.Validate(); err != nil {
		return Answer{}, err //nolint:wrapcheck // domain validation error
	}
	topK := p.TopK
	if topK == 0 {
		topK = domain.DefaultTopK
	}
	topK = min(domain.ClampTopK(topK), s.maxTopK)

	ctx, log := logger.With(ctx, zap.Int("top_k", topK))

	fail := func(step State, err error) (Answer, error) {
		s.transition(log, StateFailed)
		log.Error("Query failed",
			zap.String("step", string(step)),
			zap.String("kind", domain.ErrorKind(err)),
			zap.Error(err),
		)
		return Answer{}, err
	}

	s.transition(log, StateReceived)

	start := time.Now()
	vec, err := s.embedder.EmbedQuery(ctx, p.Question)
	observe(StateQueryEmbedded, start)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingService) && !errors.Is(err, domain.ErrDimensionMismatch) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingService, err)
		}
		return fail(StateQueryEmbedded, fmt.Errorf("embed question: %w", err))
	}
	s.transition(log, StateQueryEmbedded)

	start = time.Now()
	hits, err := s.retriever.Query(ctx, vec, topK)
	observe(StateRetrieved, start)
	if err != nil {
		return fail(StateRetrieved, fmt.Errorf("retrieve top %d: %w", topK, err))
	}
	s.transition(log, StateRetrieved)

	contexts := make([]string, len(hits))
	sources := make([]string, len(hits))
	for i, h := range hits {
		contexts[i] = h.Chunk.Text
		sources[i] = h.Chunk.SourceID
	}

	prompt, err := s.prompts.Render(p.Question, contexts)
	if err != nil {
		return fail(StateGenerated, err)
	}

	start = time.Now()
	gen, err := s.generator.Generate(ctx, prompt)
	observe(StateGenerated, start)
	if err != nil {
		if !errors.Is(err, domain.ErrGenerationService) {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationService, err)
		}
		return fail(StateGenerated, fmt.Errorf("generate answer: %w", err))
	}
	s.transition(log, StateGenerated)

	ans := Answer{Answer: gen.Text, Sources: sources, NumContexts: len(hits)}
	s.transition(log, StateDone)
	log.Info("Query answered",
		zap.Int("num_contexts", ans.NumContexts),
		zap.Int("prompt_tokens", gen.PromptTokens),
		zap.Int("completion_tokens", gen.CompletionTokens),
	)
	return ans, nil
}

func (s *Service) transition(log *zap.Logger, st State) {
	log.Debug("Query state", zap.String("state", string(st)))
	if s.onState != nil {
		s.onState(st)
	}
}

func observe(step State, start time.Time) {
	metrics.StepDuration.WithLabelValues(workflowName, string(step)).Observe(time.Since(start).Seconds())
}
