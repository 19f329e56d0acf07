package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound signals a missing resource (event, run).
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument signals a caller-side contract violation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrExtraction signals that the PDF path is unreadable or not a PDF.
	ErrExtraction = errors.New("extraction error")
	// ErrNoContent signals that the document produced zero chunks.
	ErrNoContent = errors.New("no content")
	// ErrEmbeddingService signals an unavailable or failing embedding service.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrDimensionMismatch signals a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrGenerationService signals an unavailable or failing generation service.
	ErrGenerationService = errors.New("generation service error")
	// ErrConnection signals that the coordinator could not be reached.
	ErrConnection = errors.New("connection error")
	// ErrTimeout signals that a run did not reach a terminal state in time.
	ErrTimeout = errors.New("timeout")
	// ErrRunFailure signals a run that ended Failed or Cancelled.
	ErrRunFailure = errors.New("run failure")
)

// DimensionMismatchError wraps ErrDimensionMismatch with both dimensions.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// CheckDimension returns a DimensionMismatchError when v does not have want components.
func CheckDimension(v Vector, want int) error {
	if want > 0 && len(v) != want {
		return &DimensionMismatchError{Want: want, Got: len(v)}
	}
	return nil
}

// TimeoutError wraps ErrTimeout with the event and the last observed status.
type TimeoutError struct {
	EventID    string
	LastStatus RunStatus
	Waited     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: event %s still %s after %s", ErrTimeout.Error(), e.EventID, e.LastStatus, e.Waited)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// RunFailureError wraps ErrRunFailure with the terminal status and recorded error.
type RunFailureError struct {
	EventID string
	Status  RunStatus
	Kind    string
	Message string
}

func (e *RunFailureError) Error() string {
	msg := fmt.Sprintf("%s: event %s ended %s", ErrRunFailure.Error(), e.EventID, e.Status)
	if e.Kind != "" {
		msg += " (" + e.Kind + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *RunFailureError) Unwrap() error { return ErrRunFailure }

// Error kind names recorded on failed runs.
const (
	KindExtraction        = "ExtractionError"
	KindNoContent         = "NoContentError"
	KindEmbeddingService  = "EmbeddingServiceError"
	KindDimensionMismatch = "DimensionMismatchError"
	KindGenerationService = "GenerationServiceError"
	KindConnection        = "ConnectionError"
	KindTimeout           = "TimeoutError"
	KindRunFailure        = "RunFailureError"
	KindInvalidArgument   = "InvalidArgument"
	KindInternal          = "InternalError"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrExtraction, KindExtraction},
	{ErrNoContent, KindNoContent},
	{ErrDimensionMismatch, KindDimensionMismatch},
	{ErrEmbeddingService, KindEmbeddingService},
	{ErrGenerationService, KindGenerationService},
	{ErrConnection, KindConnection},
	{ErrTimeout, KindTimeout},
	{ErrRunFailure, KindRunFailure},
	{ErrInvalidArgument, KindInvalidArgument},
}

// ErrorKind maps err to its taxonomy name. Unknown errors are KindInternal, nil is "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsPermanent reports whether retrying the same input cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrExtraction) ||
		errors.Is(err, ErrNoContent) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInvalidArgument)
}
