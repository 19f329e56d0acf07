// Package run persists coordinator events and runs as JSON values in the key-value store.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/pdfrag/internal/coordinator"
	"github.com/kailas-cloud/pdfrag/internal/db"
	"github.com/kailas-cloud/pdfrag/internal/domain"
)

var _ coordinator.RunStore = (*Repo)(nil)

// DefaultPrefix namespaces event and run keys.
const DefaultPrefix = "pdfrag:"

// store is the consumer interface for run persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type eventDoc struct {
	Event  domain.Event `json:"event"`
	RunIDs []string     `json:"run_ids"`
}

// Repo implements coordinator.RunStore. Every key expires after ttl.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a run repository. ttl <= 0 keeps records forever.
func New(s store, ttl time.Duration) *Repo {
	return &Repo{store: s, prefix: DefaultPrefix, ttl: ttl}
}

// WithPrefix overrides the key prefix.
func (r *Repo) WithPrefix(prefix string) *Repo {
	r.prefix = prefix
	return r
}

// CreateEvent writes the runs first so a visible event never points at missing runs.
func (r *Repo) CreateEvent(ctx context.Context, ev domain.Event, runs []domain.Run) error {
	doc := eventDoc{Event: ev, RunIDs: make([]string, len(runs))}
	for i := range runs {
		if err := r.SaveRun(ctx, runs[i]); err != nil {
			return err
		}
		doc.RunIDs[i] = runs[i].ID
	}
	return r.put(ctx, r.eventKey(ev.ID), doc)
}

// Event implements coordinator.RunStore.
func (r *Repo) Event(ctx context.Context, eventID string) (domain.Event, error) {
	doc, err := r.eventDoc(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	return doc.Event, nil
}

// SaveRun implements coordinator.RunStore.
func (r *Repo) SaveRun(ctx context.Context, run domain.Run) error {
	return r.put(ctx, r.runKey(run.EventID, run.ID), run)
}

// Runs implements coordinator.RunStore. Expired run keys are skipped.
func (r *Repo) Runs(ctx context.Context, eventID string) ([]domain.Run, error) {
	doc, err := r.eventDoc(ctx, eventID)
	if err != nil {
		return nil, err
	}

	runs := make([]domain.Run, 0, len(doc.RunIDs))
	for _, id := range doc.RunIDs {
		var run domain.Run
		if err := r.get(ctx, r.runKey(eventID, id), &run); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (r *Repo) eventDoc(ctx context.Context, eventID string) (eventDoc, error) {
	var doc eventDoc
	if err := r.get(ctx, r.eventKey(eventID), &doc); err != nil {
		return eventDoc{}, err
	}
	return doc, nil
}

func (r *Repo) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := r.store.SetWithTTL(ctx, key, data, r.ttl); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (r *Repo) get(ctx context.Context, key string, dst any) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", key, domain.ErrNotFound)
		}
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (r *Repo) eventKey(eventID string) string {
	return r.prefix + "event:" + eventID
}

func (r *Repo) runKey(eventID, runID string) string {
	return r.prefix + "run:" + eventID + ":" + runID
}
