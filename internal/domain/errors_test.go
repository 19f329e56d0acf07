package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"extraction", fmt.Errorf("open: %w", ErrExtraction), KindExtraction},
		{"no content", ErrNoContent, KindNoContent},
		{"embedding", fmt.Errorf("embed [3]: %w", ErrEmbeddingService), KindEmbeddingService},
		{"dimension typed", &DimensionMismatchError{Want: 768, Got: 3}, KindDimensionMismatch},
		{"generation", ErrGenerationService, KindGenerationService},
		{"connection", ErrConnection, KindConnection},
		{"timeout typed", &TimeoutError{EventID: "e1", LastStatus: RunRunning}, KindTimeout},
		{"run failure typed", &RunFailureError{EventID: "e1", Status: RunFailed}, KindRunFailure},
		{"invalid argument", ErrInvalidArgument, KindInvalidArgument},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCheckDimension(t *testing.T) {
	if err := CheckDimension(Vector{1, 2, 3}, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckDimension(Vector{1, 2, 3}, 0); err != nil {
		t.Fatalf("zero dimension disables the check, got %v", err)
	}

	err := CheckDimension(Vector{1, 2}, 768)
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected DimensionMismatchError, got %T", err)
	}
	if dm.Want != 768 || dm.Got != 2 {
		t.Errorf("unexpected dims: %+v", dm)
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Error("expected errors.Is ErrDimensionMismatch")
	}
}

func TestRunFailureError_Message(t *testing.T) {
	err := &RunFailureError{EventID: "01H", Status: RunFailed, Kind: KindExtraction, Message: "not a pdf"}
	msg := err.Error()
	for _, want := range []string{"01H", "Failed", KindExtraction, "not a pdf"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(fmt.Errorf("x: %w", ErrNoContent)) {
		t.Error("no content must be permanent")
	}
	if IsPermanent(fmt.Errorf("x: %w", ErrEmbeddingService)) {
		t.Error("embedding service errors are retryable")
	}
	if IsPermanent(errors.New("random")) {
		t.Error("unknown errors are retryable")
	}
}

func TestClampTopK(t *testing.T) {
	tests := map[int]int{-3: 1, 0: 1, 1: 1, 5: 5, 20: 20, 21: 20, 1000: 20}
	for in, want := range tests {
		if got := ClampTopK(in); got != want {
			t.Errorf("ClampTopK(%d) = %d, want %d", in, got, want)
		}
	}
}
