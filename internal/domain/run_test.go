package domain

import "testing"

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want RunStatus
	}{
		{"Completed", RunCompleted},
		{"Succeeded", RunCompleted},
		{"Success", RunCompleted},
		{"Finished", RunCompleted},
		{"completed", RunCompleted},
		{" FINISHED ", RunCompleted},
		{"Failed", RunFailed},
		{"Cancelled", RunCancelled},
		{"Canceled", RunCancelled},
		{"Running", RunRunning},
		{"Queued", RunPending},
		{"", RunPending},
	}
	for _, tc := range tests {
		if got := NormalizeStatus(tc.raw); got != tc.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	for _, s := range []RunStatus{RunCompleted, RunFailed, RunCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunPending, RunRunning} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	if RunCompleted.IsFailure() || !RunCancelled.IsFailure() || !RunFailed.IsFailure() {
		t.Error("unexpected IsFailure result")
	}
}

func TestRunStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{RunPending, RunRunning, true},
		{RunPending, RunCancelled, true},
		{RunRunning, RunRunning, true},
		{RunRunning, RunCompleted, true},
		{RunRunning, RunFailed, true},
		{RunRunning, RunPending, false},
		{RunCompleted, RunRunning, false},
		{RunFailed, RunCompleted, false},
		{RunCancelled, RunRunning, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
