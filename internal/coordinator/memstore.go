package coordinator

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

type eventRecord struct {
	event  domain.Event
	runIDs []string
}

// MemoryStore is an in-process RunStore. State is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]eventRecord
	runs   map[string]domain.Run
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]eventRecord),
		runs:   make(map[string]domain.Run),
	}
}

// CreateEvent implements RunStore.
func (s *MemoryStore) CreateEvent(_ context.Context, ev domain.Event, runs []domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[ev.ID]; ok {
		return fmt.Errorf("event %s already exists: %w", ev.ID, domain.ErrInvalidArgument)
	}
	rec := eventRecord{event: cloneEvent(ev), runIDs: make([]string, len(runs))}
	for i, r := range runs {
		rec.runIDs[i] = r.ID
		s.runs[r.ID] = cloneRun(r)
	}
	s.events[ev.ID] = rec
	return nil
}

// Event implements RunStore.
func (s *MemoryStore) Event(_ context.Context, eventID string) (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.events[eventID]
	if !ok {
		return domain.Event{}, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
	}
	return cloneEvent(rec.event), nil
}

// SaveRun implements RunStore.
func (s *MemoryStore) SaveRun(_ context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Runs implements RunStore.
func (s *MemoryStore) Runs(_ context.Context, eventID string) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
	}
	out := make([]domain.Run, 0, len(rec.runIDs))
	for _, id := range rec.runIDs {
		out = append(out, cloneRun(s.runs[id]))
	}
	return out, nil
}

func cloneEvent(ev domain.Event) domain.Event {
	ev.Data = maps.Clone(ev.Data)
	return ev
}

func cloneRun(r domain.Run) domain.Run {
	r.Output = maps.Clone(r.Output)
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		r.EndedAt = &t
	}
	return r
}
