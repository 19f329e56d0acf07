package pdfrag

import (
	"time"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// Run and status types shared with the coordinator.
type (
	Run       = domain.Run
	RunStatus = domain.RunStatus
	RunError  = domain.RunError
)

// Normalized run statuses.
const (
	StatusPending   = domain.RunPending
	StatusRunning   = domain.RunRunning
	StatusCompleted = domain.RunCompleted
	StatusFailed    = domain.RunFailed
	StatusCancelled = domain.RunCancelled
)

// Outcome tags a Wait result.
type Outcome string

// Wait outcomes.
const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	TimedOut  Outcome = "timed_out"
)

// Result is the outcome of polling one event.
type Result struct {
	Outcome Outcome
	EventID string
	// Status is the last observed status; Pending when no run was seen.
	Status RunStatus
	// Run is the first run of the event, nil if none appeared before the timeout.
	Run    *Run
	Waited time.Duration
}

// Output returns the run output on success.
func (r Result) Output() map[string]any {
	if r.Run == nil {
		return nil
	}
	return r.Run.Output
}

// Err converts a non-successful result into *TimeoutError or *RunFailureError.
func (r Result) Err() error {
	switch r.Outcome {
	case Succeeded:
		return nil
	case TimedOut:
		return &TimeoutError{EventID: r.EventID, LastStatus: r.Status, Waited: r.Waited}
	default:
		fe := &RunFailureError{EventID: r.EventID, Status: r.Status}
		if r.Run != nil && r.Run.Error != nil {
			fe.Kind = r.Run.Error.Kind
			fe.Message = r.Run.Error.Message
		}
		return fe
	}
}

// IngestResult summarizes a completed ingestion.
type IngestResult struct {
	SourceID      string
	ChunksIndexed int
	Pages         int
	// Replaced counts prior entries of the source removed before indexing.
	Replaced      int
}

// Answer is a completed query.
type Answer struct {
	Answer      string
	Sources     []string
	NumContexts int
}

func ingestResultFrom(out map[string]any) IngestResult {
	return IngestResult{
		SourceID:      stringField(out, "source_id"),
		ChunksIndexed: intField(out, "chunks_indexed"),
		Pages:         intField(out, "pages"),
		Replaced:      intField(out, "replaced"),
	}
}

func answerFrom(out map[string]any) Answer {
	a := Answer{
		Answer:      stringField(out, "answer"),
		Sources:     []string{},
		NumContexts: intField(out, "num_contexts"),
	}
	if raw, ok := out["sources"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				a.Sources = append(a.Sources, str)
			}
		}
	}
	return a
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// intField reads a JSON number, which decodes as float64.
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
