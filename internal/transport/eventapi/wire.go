package eventapi

import (
	"time"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

type eventRequest struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
	TS   int64          `json:"ts,omitempty"`
}

type sendResponse struct {
	IDs    []string `json:"ids"`
	Status int      `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventResponse struct {
	Data domain.Event `json:"data"`
}

type runsResponse struct {
	Data []wireRun `json:"data"`
}

// wireRun accepts raw status strings from any coordinator.
type wireRun struct {
	RunID      string           `json:"run_id"`
	EventID    string           `json:"event_id"`
	FunctionID string           `json:"function_id"`
	Status     string           `json:"status"`
	Output     map[string]any   `json:"output"`
	Error      *domain.RunError `json:"error"`
	Attempts   int              `json:"attempts"`
	StartedAt  time.Time        `json:"started_at"`
	EndedAt    *time.Time       `json:"ended_at"`
}

func (w wireRun) toDomain(eventID string) domain.Run {
	r := domain.Run{
		ID:         w.RunID,
		EventID:    w.EventID,
		FunctionID: w.FunctionID,
		Status:     domain.NormalizeStatus(w.Status),
		Output:     w.Output,
		Error:      w.Error,
		Attempts:   w.Attempts,
		StartedAt:  w.StartedAt,
		EndedAt:    w.EndedAt,
	}
	if r.EventID == "" {
		r.EventID = eventID
	}
	return r
}
