package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Millisecond
	}
	e := New(NewMemoryStore(), cfg, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func queryEvent(q string) domain.Event {
	return domain.Event{Name: domain.EventQueryPDF, Data: domain.QueryPayload{Question: q, TopK: 3}.Data()}
}

func ingestEvent(path, source string) domain.Event {
	return domain.Event{Name: domain.EventIngestPDF, Data: domain.IngestPayload{PDFPath: path, SourceID: source}.Data()}
}

func waitTerminal(t *testing.T, e *Engine, eventID string) domain.Run {
	t.Helper()
	var last domain.Run
	require.Eventually(t, func() bool {
		runs, err := e.Runs(context.Background(), eventID)
		if err != nil || len(runs) == 0 {
			return false
		}
		last = runs[0]
		return last.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return last
}

func TestEngine_CompletesRun(t *testing.T) {
	e := newTestEngine(t, Config{})
	require.NoError(t, e.Register(QueryFunction("query", func(_ context.Context, p domain.QueryPayload) (map[string]any, error) {
		return map[string]any{"answer": "echo: " + p.Question, "top_k": p.TopK}, nil
	})))

	ids, err := e.Send(context.Background(), queryEvent("hello"))
	require.NoError(t, err)
	require.Len(t, ids, 1)

	run := waitTerminal(t, e, ids[0])
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, "echo: hello", run.Output["answer"])
	assert.Equal(t, 3, run.Output["top_k"])
	assert.Equal(t, 1, run.Attempts)
	assert.Nil(t, run.Error)
	assert.NotNil(t, run.EndedAt)
	assert.Equal(t, "query", run.FunctionID)

	ev, err := e.Event(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.EventQueryPDF, ev.Name)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestEngine_IDsInInputOrder(t *testing.T) {
	e := newTestEngine(t, Config{})
	require.NoError(t, e.Register(QueryFunction("query", func(_ context.Context, p domain.QueryPayload) (map[string]any, error) {
		return map[string]any{"q": p.Question}, nil
	})))

	ids, err := e.Send(context.Background(), queryEvent("a"), queryEvent("b"), queryEvent("c"))
	require.NoError(t, err)
	require.Len(t, ids, 3)

	for i, want := range []string{"a", "b", "c"} {
		run := waitTerminal(t, e, ids[i])
		assert.Equal(t, want, run.Output["q"])
	}
}

type flakyStore struct {
	*MemoryStore
	failAt int
	calls  int
}

func (s *flakyStore) CreateEvent(ctx context.Context, ev domain.Event, runs []domain.Run) error {
	s.calls++
	if s.calls == s.failAt {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.CreateEvent(ctx, ev, runs)
}

func TestEngine_StoreFailureKeepsEarlierEvents(t *testing.T) {
	e := New(&flakyStore{MemoryStore: NewMemoryStore(), failAt: 2}, Config{RetryBase: time.Millisecond}, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	require.NoError(t, e.Register(QueryFunction("query", func(_ context.Context, p domain.QueryPayload) (map[string]any, error) {
		return map[string]any{"q": p.Question}, nil
	})))

	ids, err := e.Send(context.Background(), queryEvent("a"), queryEvent("b"), queryEvent("c"))
	require.Error(t, err)
	require.Len(t, ids, 1)

	run := waitTerminal(t, e, ids[0])
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, "a", run.Output["q"])
}

func TestEngine_RejectsUnknownAndInvalidEvents(t *testing.T) {
	e := newTestEngine(t, Config{})
	var calls atomic.Int32
	require.NoError(t, e.Register(IngestFunction("ingest", func(context.Context, domain.IngestPayload) (map[string]any, error) {
		calls.Add(1)
		return nil, nil
	})))

	_, err := e.Send(context.Background(), domain.Event{Name: "rag/unknown"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = e.Send(context.Background(), ingestEvent("relative.pdf", "x"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	// one bad event rejects the whole batch
	_, err = e.Send(context.Background(), ingestEvent("/ok.pdf", "ok"), ingestEvent("", ""))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = e.Send(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	e := newTestEngine(t, Config{MaxAttempts: 3})
	var calls atomic.Int32
	require.NoError(t, e.Register(QueryFunction("query", func(context.Context, domain.QueryPayload) (map[string]any, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("flaky: %w", domain.ErrGenerationService)
		}
		return map[string]any{"answer": "ok"}, nil
	})))

	ids, err := e.Send(context.Background(), queryEvent("q"))
	require.NoError(t, err)

	run := waitTerminal(t, e, ids[0])
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 3, run.Attempts)
}

func TestEngine_FailsAfterMaxAttempts(t *testing.T) {
	e := newTestEngine(t, Config{MaxAttempts: 2})
	var calls atomic.Int32
	require.NoError(t, e.Register(QueryFunction("query", func(context.Context, domain.QueryPayload) (map[string]any, error) {
		calls.Add(1)
		return nil, fmt.Errorf("down: %w", domain.ErrEmbeddingService)
	})))

	ids, err := e.Send(context.Background(), queryEvent("q"))
	require.NoError(t, err)

	run := waitTerminal(t, e, ids[0])
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, 2, run.Attempts)
	assert.Equal(t, int32(2), calls.Load())
	require.NotNil(t, run.Error)
	assert.Equal(t, domain.KindEmbeddingService, run.Error.Kind)
	assert.Contains(t, run.Error.Message, "down")
	assert.Nil(t, run.Output)
}

func TestEngine_PermanentFailureIsNotRetried(t *testing.T) {
	e := newTestEngine(t, Config{MaxAttempts: 5})
	var calls atomic.Int32
	require.NoError(t, e.Register(IngestFunction("ingest", func(context.Context, domain.IngestPayload) (map[string]any, error) {
		calls.Add(1)
		return nil, fmt.Errorf("open: %w", domain.ErrExtraction)
	})))

	ids, err := e.Send(context.Background(), ingestEvent("/missing.pdf", "missing"))
	require.NoError(t, err)

	run := waitTerminal(t, e, ids[0])
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, domain.KindExtraction, run.Error.Kind)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEngine_CustomRetryable(t *testing.T) {
	e := newTestEngine(t, Config{MaxAttempts: 4})
	var calls atomic.Int32
	fn := QueryFunction("query", func(context.Context, domain.QueryPayload) (map[string]any, error) {
		calls.Add(1)
		return nil, errors.New("boom")
	})
	fn.Retryable = func(error) bool { return false }
	require.NoError(t, e.Register(fn))

	ids, err := e.Send(context.Background(), queryEvent("q"))
	require.NoError(t, err)

	run := waitTerminal(t, e, ids[0])
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Equal(t, domain.KindInternal, run.Error.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEngine_FanOutToSeveralFunctions(t *testing.T) {
	e := newTestEngine(t, Config{})
	ok := func(context.Context, domain.QueryPayload) (map[string]any, error) { return map[string]any{}, nil }
	require.NoError(t, e.Register(QueryFunction("first", ok)))
	require.NoError(t, e.Register(QueryFunction("second", ok)))

	ids, err := e.Send(context.Background(), queryEvent("q"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		runs, err := e.Runs(context.Background(), ids[0])
		return err == nil && len(runs) == 2 && runs[0].Status.IsTerminal() && runs[1].Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)

	runs, _ := e.Runs(context.Background(), ids[0])
	assert.Equal(t, "first", runs[0].FunctionID)
	assert.Equal(t, "second", runs[1].FunctionID)
}

func TestEngine_Register(t *testing.T) {
	e := newTestEngine(t, Config{})
	noop := func(context.Context, domain.QueryPayload) (map[string]any, error) { return nil, nil }

	require.NoError(t, e.Register(QueryFunction("query", noop)))
	assert.ErrorIs(t, e.Register(QueryFunction("query", noop)), domain.ErrInvalidArgument)
	assert.ErrorIs(t, e.Register(Function{ID: "x", Trigger: domain.EventQueryPDF}), domain.ErrInvalidArgument)
}

func TestEngine_BoundedConcurrency(t *testing.T) {
	e := newTestEngine(t, Config{Workers: 2})

	var current, peak atomic.Int32
	require.NoError(t, e.Register(QueryFunction("query", func(context.Context, domain.QueryPayload) (map[string]any, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return map[string]any{}, nil
	})))

	events := make([]domain.Event, 8)
	for i := range events {
		events[i] = queryEvent(fmt.Sprintf("q%d", i))
	}
	ids, err := e.Send(context.Background(), events...)
	require.NoError(t, err)
	for _, id := range ids {
		waitTerminal(t, e, id)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestEngine_UnknownEvent(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.Runs(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.Event(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_ShutdownCancelsQueuedRuns(t *testing.T) {
	e := New(NewMemoryStore(), Config{Workers: 1, RetryBase: time.Millisecond}, zap.NewNop())

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	require.NoError(t, e.Register(QueryFunction("query", func(context.Context, domain.QueryPayload) (map[string]any, error) {
		once.Do(func() { close(started) })
		<-release
		return map[string]any{"answer": "done"}, nil
	})))

	first, err := e.Send(context.Background(), queryEvent("first"))
	require.NoError(t, err)
	<-started
	second, err := e.Send(context.Background(), queryEvent("second"))
	require.NoError(t, err)
	ids := append(first, second...)

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- e.Shutdown(context.Background()) }()

	// the queued run is cancelled while the first one is still running
	require.Eventually(t, func() bool {
		runs, _ := e.Runs(context.Background(), ids[1])
		return len(runs) == 1 && runs[0].Status == domain.RunCancelled
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-shutdownErr)

	runs, err := e.Runs(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, runs[0].Status)

	_, err = e.Send(context.Background(), queryEvent("late"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngine_ShutdownDeadlineCancelsInFlight(t *testing.T) {
	e := New(NewMemoryStore(), Config{Workers: 1}, zap.NewNop())
	started := make(chan struct{})
	require.NoError(t, e.Register(QueryFunction("query", func(ctx context.Context, _ domain.QueryPayload) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	ids, err := e.Send(context.Background(), queryEvent("slow"))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)

	runs, err := e.Runs(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, runs[0].Status)
	assert.Nil(t, runs[0].Error)
}
