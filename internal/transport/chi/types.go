package chi

import (
	"time"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// ErrorCode is a machine-readable error category.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeNotFound         ErrorCode = "not_found"
	CodeMethodNotAllowed ErrorCode = "method_not_allowed"
	CodeUnavailable      ErrorCode = "unavailable"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// EventRequest is one submitted event.
type EventRequest struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
	// TS is the producer timestamp in Unix milliseconds. Optional.
	TS int64 `json:"ts,omitempty"`
}

func (e EventRequest) toDomain() domain.Event {
	ev := domain.Event{Name: domain.EventName(e.Name), Data: e.Data}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	if e.TS > 0 {
		ev.Timestamp = time.UnixMilli(e.TS).UTC()
	}
	return ev
}

// SendResponse acknowledges accepted events.
type SendResponse struct {
	IDs    []string `json:"ids"`
	Status int      `json:"status"`
}

// RunsResponse lists the runs of an event.
type RunsResponse struct {
	Data []domain.Run `json:"data"`
}

// EventResponse wraps a stored event.
type EventResponse struct {
	Data domain.Event `json:"data"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
