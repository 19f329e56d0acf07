// Package uploads stores user-supplied PDFs in a directory shared with the workers.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// Store copies files into Dir.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. The directory is created on first Save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save copies src into the uploads directory as name (the base name of src when empty)
// and returns the absolute path of the copy. An existing file with the same name is replaced.
func (s *Store) Save(src, name string) (string, error) {
	if name == "" {
		name = filepath.Base(src)
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("invalid upload name %q: %w", name, domain.ErrInvalidArgument)
	}

	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("resolve uploads dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", src, domain.ErrInvalidArgument)
	}

	dst := filepath.Join(dir, name)
	if same, _ := sameFile(info, dst); same {
		return dst, nil
	}

	// Write to a temp file first so workers never read a partial copy.
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("move upload into place: %w", err)
	}
	return dst, nil
}

func sameFile(info os.FileInfo, path string) (bool, error) {
	other, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err //nolint:wrapcheck // caller ignores the error
	}
	return os.SameFile(info, other), nil
}
