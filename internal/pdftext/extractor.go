// Package pdftext reads plain text out of PDF files.
package pdftext

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// pageSeparator keeps page breaks visible to the sentence chunker as paragraph breaks.
const pageSeparator = "\n\n"

// Extractor validates a PDF with pdfcpu and extracts its text page by page.
type Extractor struct {
	conf     *model.Configuration
	validate bool
	logger   *zap.Logger
}

// Option configures the Extractor.
type Option func(*Extractor)

// WithoutValidation skips the pdfcpu structural check.
func WithoutValidation() Option {
	return func(e *Extractor) { e.validate = false }
}

// New creates an Extractor with relaxed pdfcpu validation.
func New(logger *zap.Logger, opts ...Option) *Extractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	e := &Extractor{conf: conf, validate: true, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract reads the document at path. Every failure wraps domain.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, path, sourceID string) (domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("stat %s: %v: %w", path, err, domain.ErrExtraction)
	}
	if info.IsDir() {
		return domain.Document{}, fmt.Errorf("%s is a directory: %w", path, domain.ErrExtraction)
	}

	if e.validate {
		if err := api.ValidateFile(path, e.conf); err != nil {
			return domain.Document{}, fmt.Errorf("validate %s: %v: %w", path, err, domain.ErrExtraction)
		}
	}

	text, pages, err := readText(ctx, path)
	if err != nil {
		return domain.Document{}, err
	}

	e.logger.Debug("PDF extracted",
		zap.String("source_id", sourceID),
		zap.Int("pages", pages),
		zap.Int("chars", len(text)),
	)

	return domain.Document{SourceID: sourceID, RawText: text, Pages: pages}, nil
}

// PageCount returns the number of pages reported by pdfcpu.
func (e *Extractor) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("page count %s: %v: %w", path, err, domain.ErrExtraction)
	}
	return n, nil
}

// readText guards against panics in the parser on malformed input.
func readText(ctx context.Context, path string) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse %s: %v: %w", path, r, domain.ErrExtraction)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %v: %w", path, err, domain.ErrExtraction)
	}
	defer func() { _ = f.Close() }()

	pages = r.NumPage()
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, fmt.Errorf("extract page %d: %w", i, err)
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %v: %w", i, err, domain.ErrExtraction)
		}
		if content = strings.TrimSpace(content); content != "" {
			parts = append(parts, content)
		}
	}

	return strings.Join(parts, pageSeparator), pages, nil
}
