// Package testutil holds fixtures shared by tests across packages.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// WritePDF renders one page per entry of pages into dir/name and returns the absolute path.
func WritePDF(t *testing.T, dir, name string, pages []string) string {
	t.Helper()

	doc := gofpdf.New("P", "mm", "A4", "")
	for _, text := range pages {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 12)
		doc.MultiCell(0, 6, text, "", "L", false)
	}

	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("abs path: %v", err)
	}
	if err := doc.OutputFileAndClose(path); err != nil {
		t.Fatalf("write pdf fixture: %v", err)
	}
	return path
}
