package domain

// EmbedDim is the default embedding dimension (nomic-embed-text).
const EmbedDim = 768

// Retrieval bounds for the query workflow.
const (
	DefaultTopK = 5
	MinTopK     = 1
	MaxTopK     = 20
)

// ClampTopK bounds k to [MinTopK, MaxTopK].
func ClampTopK(k int) int {
	return min(max(k, MinTopK), MaxTopK)
}
