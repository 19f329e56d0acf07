// Package coordinator is the local event/run engine: it accepts typed events,
// runs the functions they trigger on a bounded worker pool and records run state.
package coordinator

import (
	"context"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// Handler executes one attempt of a run and returns its output.
type Handler func(ctx context.Context, ev domain.Event) (map[string]any, error)

// Function binds a handler to the event name that triggers it.
type Function struct {
	ID      string
	Trigger domain.EventName
	Handler Handler
	// Validate rejects malformed event data at Send time. Optional.
	Validate func(data map[string]any) error
	// Retryable decides whether a failed attempt is retried.
	// Defaults to every error that is not permanent.
	Retryable func(err error) bool
}

func (f Function) retryable(err error) bool {
	if f.Retryable != nil {
		return f.Retryable(err)
	}
	return !domain.IsPermanent(err)
}

// RunStore persists events and the runs they triggered.
type RunStore interface {
	// CreateEvent stores an accepted event together with its initial runs.
	CreateEvent(ctx context.Context, ev domain.Event, runs []domain.Run) error
	// Event returns a stored event or domain.ErrNotFound.
	Event(ctx context.Context, eventID string) (domain.Event, error)
	// SaveRun replaces the stored state of a run.
	SaveRun(ctx context.Context, run domain.Run) error
	// Runs returns the runs of an event in creation order or domain.ErrNotFound.
	Runs(ctx context.Context, eventID string) ([]domain.Run, error)
}
