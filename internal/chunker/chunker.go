// Package chunker splits extracted document text into overlapping windows.
package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// Strategy names accepted by New.
const (
	StrategySentence  = "sentence"
	StrategyRecursive = "recursive"
)

// Config selects the splitting strategy and window parameters.
type Config struct {
	Strategy string
	Size     int
	Overlap  int
}

// Chunker turns documents into ordered chunks using any textsplitter.TextSplitter.
type Chunker struct {
	splitter textsplitter.TextSplitter
	strategy string
}

// New builds a Chunker. Zero size and overlap fall back to the defaults.
func New(cfg Config) (*Chunker, error) {
	size := cfg.Size
	if size == 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.Overlap
	if cfg.Size == 0 && overlap == 0 {
		overlap = DefaultOverlap
	}

	// Both strategies share the same parameter contract.
	sentence, err := NewSentence(size, overlap)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}

	switch cfg.Strategy {
	case "", StrategySentence:
		return &Chunker{splitter: sentence, strategy: StrategySentence}, nil
	case StrategyRecursive:
		rc := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		)
		return &Chunker{splitter: rc, strategy: StrategyRecursive}, nil
	default:
		return nil, fmt.Errorf("chunker: unknown strategy %q", cfg.Strategy)
	}
}

// Strategy returns the active strategy name.
func (c *Chunker) Strategy() string { return c.strategy }

// Split returns the raw windows of text.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	return parts, nil
}

// Chunk maps the windows of doc onto chunks with increasing sequence indexes.
// Whitespace-only windows are dropped.
func (c *Chunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	parts, err := c.Split(doc.RawText)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Text:          p,
			SourceID:      doc.SourceID,
			SequenceIndex: len(chunks),
		})
	}
	return chunks, nil
}
