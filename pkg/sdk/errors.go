package pdfrag

import "github.com/kailas-cloud/pdfrag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidArgument   = domain.ErrInvalidArgument
	ErrConnection        = domain.ErrConnection
	ErrTimeout           = domain.ErrTimeout
	ErrRunFailure        = domain.ErrRunFailure
	ErrExtraction        = domain.ErrExtraction
	ErrNoContent         = domain.ErrNoContent
	ErrEmbeddingService  = domain.ErrEmbeddingService
	ErrGenerationService = domain.ErrGenerationService
)

// Typed errors returned by Ingest and Ask. Use errors.As() to inspect them.
type (
	TimeoutError    = domain.TimeoutError
	RunFailureError = domain.RunFailureError
)
