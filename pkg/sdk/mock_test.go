package pdfrag

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

type mockEvents struct {
	sendFn func(ctx context.Context, events ...domain.Event) ([]string, error)
	runsFn func(ctx context.Context, eventID string) ([]domain.Run, error)
	polls  atomic.Int32
}

func (m *mockEvents) Send(ctx context.Context, events ...domain.Event) ([]string, error) {
	return m.sendFn(ctx, events...)
}

func (m *mockEvents) Runs(ctx context.Context, eventID string) ([]domain.Run, error) {
	m.polls.Add(1)
	return m.runsFn(ctx, eventID)
}

// runsSequence returns each status in turn, repeating the last one.
func runsSequence(output map[string]any, statuses ...domain.RunStatus) func(context.Context, string) ([]domain.Run, error) {
	var i atomic.Int32
	return func(_ context.Context, eventID string) ([]domain.Run, error) {
		n := int(i.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		run := domain.Run{ID: "run-1", EventID: eventID, Status: statuses[n]}
		if statuses[n] == domain.RunCompleted {
			run.Output = output
		}
		return []domain.Run{run}, nil
	}
}

func newTestClient(events eventClient, opts ...Option) *Client {
	cfg := clientConfig{pollInterval: time.Millisecond, timeout: time.Second}
	for _, o := range opts {
		o.apply(&cfg)
	}
	if cfg.backoff && cfg.maxInterval <= 0 {
		cfg.maxInterval = DefaultMaxInterval
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		panic(err)
	}
	return &Client{events: events, cfg: cfg, obs: obs}
}
