package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/logger"
	"github.com/kailas-cloud/pdfrag/internal/metrics"
)

// ErrClosed is returned by Send after Shutdown.
var ErrClosed = errors.New("coordinator is shut down")

// Defaults applied by New to zero Config fields.
const (
	DefaultWorkers     = 4
	DefaultMaxAttempts = 3
	DefaultRetryBase   = 500 * time.Millisecond
	DefaultRetryMax    = 30 * time.Second
)

const storeWriteTimeout = 5 * time.Second

// Config tunes the worker pool and the retry policy.
type Config struct {
	Workers     int
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
}

// Engine executes registered functions for incoming events, at least once per run.
type Engine struct {
	cfg    Config
	store  RunStore
	logger *zap.Logger

	fnMu      sync.RWMutex
	functions map[domain.EventName][]Function

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// queueCtx is cancelled by Shutdown so queued runs stop waiting for a worker.
	queueCtx    context.Context
	queueCancel context.CancelFunc
	// runCtx is cancelled only when Shutdown gives up waiting for in-flight runs.
	runCtx    context.Context
	runCancel context.CancelFunc

	closeMu sync.RWMutex
	closed  bool
}

// New creates an Engine backed by store.
func New(store RunStore, cfg Config, log *zap.Logger) *Engine {
	cfg.applyDefaults()
	queueCtx, queueCancel := context.WithCancel(context.Background())
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		store:       store,
		logger:      log,
		functions:   make(map[domain.EventName][]Function),
		sem:         semaphore.NewWeighted(int64(cfg.Workers)),
		queueCtx:    queueCtx,
		queueCancel: queueCancel,
		runCtx:      runCtx,
		runCancel:   runCancel,
	}
}

// Register adds a function. Several functions may share a trigger.
func (e *Engine) Register(fn Function) error {
	if fn.ID == "" || fn.Trigger == "" || fn.Handler == nil {
		return fmt.Errorf("function requires id, trigger and handler: %w", domain.ErrInvalidArgument)
	}

	e.fnMu.Lock()
	defer e.fnMu.Unlock()

	for _, fns := range e.functions {
		for _, f := range fns {
			if f.ID == fn.ID {
				return fmt.Errorf("function %q already registered: %w", fn.ID, domain.ErrInvalidArgument)
			}
		}
	}
	e.functions[fn.Trigger] = append(e.functions[fn.Trigger], fn)
	e.logger.Debug("Function registered", zap.String("function", fn.ID), zap.String("trigger", string(fn.Trigger)))
	return nil
}

// Send validates every event, stores them with a Pending run per triggered function
// and dispatches the runs. Event ids are returned in input order.
// Validation rejects the whole batch. A store failure on event i returns the ids
// of events 0..i-1, which stay accepted and dispatched, together with the error.
func (e *Engine) Send(ctx context.Context, events ...domain.Event) ([]string, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events: %w", domain.ErrInvalidArgument)
	}

	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	triggered := make([][]Function, len(events))
	for i, ev := range events {
		fns, err := e.match(ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		triggered[i] = fns
	}

	ids := make([]string, len(events))
	now := time.Now().UTC()
	for i, ev := range events {
		ev.ID = ksuid.New().String()
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}

		runs := make([]domain.Run, len(triggered[i]))
		for j, fn := range triggered[i] {
			runs[j] = domain.Run{
				ID:         ksuid.New().String(),
				EventID:    ev.ID,
				FunctionID: fn.ID,
				Status:     domain.RunPending,
			}
		}
		if err := e.store.CreateEvent(ctx, ev, runs); err != nil {
			return ids[:i], fmt.Errorf("store event %s: %w", ev.Name, err)
		}

		metrics.EventsReceivedTotal.WithLabelValues(string(ev.Name)).Inc()
		e.logger.Info("Event received",
			zap.String("event_id", ev.ID),
			zap.String("event", string(ev.Name)),
			zap.Int("runs", len(runs)),
		)

		for j, fn := range triggered[i] {
			e.dispatch(ev, runs[j], fn)
		}
		ids[i] = ev.ID
	}
	return ids, nil
}

// Event returns a stored event.
func (e *Engine) Event(ctx context.Context, eventID string) (domain.Event, error) {
	ev, err := e.store.Event(ctx, eventID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// Runs returns the runs triggered by an event.
func (e *Engine) Runs(ctx context.Context, eventID string) ([]domain.Run, error) {
	runs, err := e.store.Runs(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Shutdown stops accepting events and waits for in-flight runs. Runs still queued
// are marked Cancelled. When ctx expires first, in-flight handlers are cancelled.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closeMu.Lock()
	e.closed = true
	e.closeMu.Unlock()

	e.queueCancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.runCancel()
		return nil
	case <-ctx.Done():
		e.runCancel()
		<-done
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (e *Engine) match(ev domain.Event) ([]Function, error) {
	e.fnMu.RLock()
	fns := e.functions[ev.Name]
	e.fnMu.RUnlock()

	if len(fns) == 0 {
		return nil, fmt.Errorf("unknown event name %q: %w", ev.Name, domain.ErrInvalidArgument)
	}
	for _, fn := range fns {
		if fn.Validate == nil {
			continue
		}
		if err := fn.Validate(ev.Data); err != nil {
			return nil, fmt.Errorf("%s: %w", ev.Name, err)
		}
	}
	return fns, nil
}

func (e *Engine) dispatch(ev domain.Event, run domain.Run, fn Function) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		if err := e.sem.Acquire(e.queueCtx, 1); err != nil {
			e.finish(e.runCtx, &run, fn, domain.RunCancelled, nil, nil)
			return
		}
		defer e.sem.Release(1)

		e.execute(ev, run, fn)
	}()
}

func (e *Engine) execute(ev domain.Event, run domain.Run, fn Function) {
	ctx, log := logger.With(logger.ContextWithLogger(e.runCtx, e.logger),
		zap.String("event_id", ev.ID),
		zap.String("run_id", run.ID),
		zap.String("function", fn.ID),
	)

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	run.Status = domain.RunRunning
	run.StartedAt = time.Now().UTC()
	e.save(ctx, run)
	log.Debug("Run started")

	backoff := retry.WithMaxRetries(
		uint64(e.cfg.MaxAttempts-1), //nolint:gosec // MaxAttempts >= 1 after defaults
		retry.WithCappedDuration(e.cfg.RetryMax, retry.NewExponential(e.cfg.RetryBase)),
	)

	var output map[string]any
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		run.Attempts++
		e.save(ctx, run)
		metrics.RunAttemptsTotal.WithLabelValues(fn.ID).Inc()

		out, err := fn.Handler(ctx, ev)
		if err != nil {
			if ctx.Err() == nil && fn.retryable(err) && run.Attempts < e.cfg.MaxAttempts {
				log.Warn("Run attempt failed, retrying",
					zap.Int("attempt", run.Attempts),
					zap.String("kind", domain.ErrorKind(err)),
					zap.Error(err),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		output = out
		return nil
	})

	switch {
	case err == nil:
		e.finish(ctx, &run, fn, domain.RunCompleted, output, nil)
	case e.runCtx.Err() != nil:
		e.finish(ctx, &run, fn, domain.RunCancelled, nil, nil)
	default:
		e.finish(ctx, &run, fn, domain.RunFailed, nil, &domain.RunError{
			Kind:    domain.ErrorKind(err),
			Message: err.Error(),
		})
	}
}

func (e *Engine) finish(
	ctx context.Context,
	run *domain.Run,
	fn Function,
	status domain.RunStatus,
	output map[string]any,
	runErr *domain.RunError,
) {
	if !run.Status.CanTransition(status) {
		return
	}
	now := time.Now().UTC()
	run.Status = status
	run.Output = output
	run.Error = runErr
	run.EndedAt = &now
	e.save(ctx, *run)

	metrics.RunsTotal.WithLabelValues(fn.ID, string(status)).Inc()
	if !run.StartedAt.IsZero() {
		metrics.RunDuration.WithLabelValues(fn.ID).Observe(now.Sub(run.StartedAt).Seconds())
	}

	log := e.logger.With(
		zap.String("event_id", run.EventID),
		zap.String("run_id", run.ID),
		zap.String("function", fn.ID),
	)
	switch status {
	case domain.RunCompleted:
		log.Info("Run completed", zap.Int("attempts", run.Attempts))
	case domain.RunFailed:
		log.Error("Run failed",
			zap.Int("attempts", run.Attempts),
			zap.String("kind", runErr.Kind),
			zap.String("error", runErr.Message),
		)
	default:
		log.Warn("Run cancelled", zap.Int("attempts", run.Attempts))
	}
}

// save writes run state even while the run context is being cancelled.
func (e *Engine) save(ctx context.Context, run domain.Run) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()
	if err := e.store.SaveRun(wctx, run); err != nil {
		e.logger.Error("Failed to save run",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Error(err),
		)
	}
}
