package pdftext

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/testutil"
)

func TestExtract_TwoPages(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WritePDF(t, dir, "two.pdf", []string{
		"The lighthouse keeper counted seven ships.",
		"The harbor closed at midnight.",
	})

	e := New(zap.NewNop())
	doc, err := e.Extract(context.Background(), path, "two.pdf")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if doc.SourceID != "two.pdf" {
		t.Errorf("SourceID = %q", doc.SourceID)
	}
	if doc.Pages != 2 {
		t.Errorf("Pages = %d, want 2", doc.Pages)
	}
	if !strings.Contains(doc.RawText, "lighthouse") || !strings.Contains(doc.RawText, "harbor") {
		t.Errorf("missing page text in %q", doc.RawText)
	}
	if strings.Index(doc.RawText, "lighthouse") > strings.Index(doc.RawText, "harbor") {
		t.Error("pages out of order")
	}

	n, err := e.PageCount(path)
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("PageCount = %d, want 2", n)
	}
}

func TestExtract_MissingFile(t *testing.T) {
	e := New(zap.NewNop())
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), "nope")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtract_Directory(t *testing.T) {
	e := New(zap.NewNop())
	_, err := e.Extract(context.Background(), t.TempDir(), "dir")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtract_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte("just some text, not a pdf"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, e := range []*Extractor{New(zap.NewNop()), New(zap.NewNop(), WithoutValidation())} {
		_, err := e.Extract(context.Background(), path, "notes")
		if !errors.Is(err, domain.ErrExtraction) {
			t.Errorf("validate=%v: expected ErrExtraction, got %v", e.validate, err)
		}
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	path := testutil.WritePDF(t, t.TempDir(), "c.pdf", []string{"page"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(zap.NewNop()).Extract(ctx, path, "c")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
