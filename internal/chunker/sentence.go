package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Defaults match a 1000-character window with 200 characters carried into the next one.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Sentence packs whole sentences into windows of at most Size characters.
// Windows are slices of the input: consecutive windows share exactly Overlap characters,
// so the first window followed by every later window minus its first Overlap characters
// reproduces the input. A sentence that does not fit is cut at Size.
type Sentence struct {
	size    int
	overlap int
}

// NewSentence validates the window parameters.
func NewSentence(size, overlap int) (*Sentence, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 {
		return nil, errors.New("chunk overlap must not be negative")
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Sentence{size: size, overlap: overlap}, nil
}

// SplitText implements textsplitter.TextSplitter.
func (s *Sentence) SplitText(text string) ([]string, error) {
	return s.Split(text), nil
}

// Split returns the windows of text. Whitespace-only input yields nil.
func (s *Sentence) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	bounds := sentenceBounds(runes)

	var out []string
	start, bi := 0, 0
	for {
		limit := start + s.size
		if n <= limit {
			out = append(out, string(runes[start:]))
			return out
		}

		// Farthest boundary inside (start, limit].
		for bi < len(bounds) && bounds[bi] <= start {
			bi++
		}
		end := limit
		best := -1
		for j := bi; j < len(bounds) && bounds[j] <= limit; j++ {
			best = bounds[j]
		}
		// A window ending at or before the overlap would not advance.
		if best > start+s.overlap {
			end = best
		}

		out = append(out, string(runes[start:end]))
		start = end - s.overlap
	}
}

// sentenceBounds returns rune offsets where a new sentence starts: after terminal punctuation
// (plus closing quotes or brackets) followed by whitespace, and after blank lines.
func sentenceBounds(runes []rune) []int {
	var bounds []int
	n := len(runes)
	for i := 0; i < n; i++ {
		r := runes[i]
		switch {
		case isTerminal(r):
			j := i + 1
			for j < n && isCloser(runes[j]) {
				j++
			}
			if j < n && !unicode.IsSpace(runes[j]) && !isWideTerminal(r) {
				continue
			}
			for j < n && unicode.IsSpace(runes[j]) {
				j++
			}
			if j < n {
				bounds = append(bounds, j)
			}
			i = j - 1
		case r == '\n' && i+1 < n && runes[i+1] == '\n':
			j := i + 1
			for j < n && unicode.IsSpace(runes[j]) {
				j++
			}
			if j < n {
				bounds = append(bounds, j)
			}
			i = j - 1
		}
	}
	return bounds
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || isWideTerminal(r)
}

func isWideTerminal(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '»' || r == '”' || r == '’'
}
