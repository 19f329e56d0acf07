package domain

import (
	"strings"
	"time"
)

// RunStatus is the normalized lifecycle state of a run.
type RunStatus string

// Run statuses. Transitions only move toward a terminal state.
const (
	RunPending   RunStatus = "Pending"
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
	RunCancelled RunStatus = "Cancelled"
)

// NormalizeStatus maps a raw coordinator status string onto RunStatus.
// Unknown values are treated as still pending.
func NormalizeStatus(raw string) RunStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "succeeded", "success", "finished":
		return RunCompleted
	case "failed", "failure", "error":
		return RunFailed
	case "cancelled", "canceled":
		return RunCancelled
	case "running", "started", "in_progress":
		return RunRunning
	default:
		return RunPending
	}
}

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// IsFailure reports whether the run ended without output.
func (s RunStatus) IsFailure() bool {
	return s == RunFailed || s == RunCancelled
}

func (s RunStatus) rank() int {
	switch s {
	case RunPending:
		return 0
	case RunRunning:
		return 1
	case RunCompleted, RunFailed, RunCancelled:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether a run in status s may move to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if s.IsTerminal() {
		return false
	}
	// Running -> Running is a retry attempt.
	return next.rank() >= s.rank() && next.rank() >= 0
}

// RunError is the failure recorded on a Failed or Cancelled run.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Run is one execution of a function triggered by an event.
type Run struct {
	ID         string         `json:"run_id"`
	EventID    string         `json:"event_id"`
	FunctionID string         `json:"function_id"`
	Status     RunStatus      `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      *RunError      `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
	StartedAt  time.Time      `json:"started_at,omitzero"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
}
