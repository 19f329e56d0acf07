package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

func TestMemoryStore_EventAndRuns(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ev := domain.Event{ID: "ev1", Name: domain.EventQueryPDF, Data: map[string]any{"question": "q"}}
	runs := []domain.Run{
		{ID: "r1", EventID: "ev1", FunctionID: "a", Status: domain.RunPending},
		{ID: "r2", EventID: "ev1", FunctionID: "b", Status: domain.RunPending},
	}
	require.NoError(t, s.CreateEvent(ctx, ev, runs))

	got, err := s.Event(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	listed, err := s.Runs(ctx, "ev1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "r1", listed[0].ID)
	assert.Equal(t, "r2", listed[1].ID)

	now := time.Now()
	runs[1].Status = domain.RunCompleted
	runs[1].Output = map[string]any{"answer": "x"}
	runs[1].EndedAt = &now
	require.NoError(t, s.SaveRun(ctx, runs[1]))

	listed, err = s.Runs(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, listed[1].Status)
	assert.Equal(t, "x", listed[1].Output["answer"])
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Event(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Runs(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.SaveRun(ctx, domain.Run{ID: "nope"}), domain.ErrNotFound)
}

func TestMemoryStore_DuplicateEvent(t *testing.T) {
	s := NewMemoryStore()
	ev := domain.Event{ID: "ev1", Name: domain.EventIngestPDF}
	require.NoError(t, s.CreateEvent(context.Background(), ev, nil))
	assert.ErrorIs(t, s.CreateEvent(context.Background(), ev, nil), domain.ErrInvalidArgument)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	run := domain.Run{ID: "r1", EventID: "ev1", Output: map[string]any{"k": "v"}}
	require.NoError(t, s.CreateEvent(ctx, domain.Event{ID: "ev1", Data: map[string]any{"a": 1}}, []domain.Run{run}))

	runs, err := s.Runs(ctx, "ev1")
	require.NoError(t, err)
	runs[0].Output["k"] = "mutated"

	ev, err := s.Event(ctx, "ev1")
	require.NoError(t, err)
	ev.Data["a"] = 2

	runs, _ = s.Runs(ctx, "ev1")
	assert.Equal(t, "v", runs[0].Output["k"])
	ev, _ = s.Event(ctx, "ev1")
	assert.Equal(t, 1, ev.Data["a"])
}
