package domain

// Vector is a dense embedding. Its length is fixed per deployment.
type Vector []float32

// Dim returns the number of components.
func (v Vector) Dim() int { return len(v) }

// Document is the text extracted from one PDF.
type Document struct {
	SourceID string
	RawText  string
	Pages    int
}

// Chunk is a contiguous text window of a document.
type Chunk struct {
	Text          string
	SourceID      string
	SequenceIndex int
}

// IndexedEntry is a chunk with its vector, as stored by the index.
type IndexedEntry struct {
	ID     string
	Chunk  Chunk
	Vector Vector
}

// ScoredChunk is a retrieval hit. Score is cosine similarity, higher is closer.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
