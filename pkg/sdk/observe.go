package pdfrag

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type sdkMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	waits      *prometheus.CounterVec
	polls      prometheus.Histogram
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "SDK calls by operation and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK call duration in seconds, including time spent polling.",
			Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 30, 60, 120},
		}, []string{"operation"}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "sdk",
			Name:      "waits_total",
			Help:      "Finished waits by outcome.",
		}, []string{"outcome"}),
		polls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "sdk",
			Name:      "wait_polls",
			Help:      "Run status requests issued per wait.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.waits); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.polls); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers c, or swaps in the collector already registered
// under the same name so several clients can share one registry.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("pdfrag: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("pdfrag: metric already registered as %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// observer logs and counts SDK calls. A nil observer, logger or registry disables that part.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	switch {
	case o.logger == nil:
	case err != nil:
		o.logger.Warn("operation failed", "op", op, "duration", dur, "error", err)
	default:
		o.logger.Debug("operation completed", "op", op, "duration", dur)
	}
}

// observeWait records how a finished wait ended. Waits that returned an error
// are covered by observe alone.
func (o *observer) observeWait(res *Result, polls int) {
	if o == nil || res.Outcome == "" {
		return
	}
	if o.metrics != nil {
		o.metrics.waits.WithLabelValues(string(res.Outcome)).Inc()
		o.metrics.polls.Observe(float64(polls))
	}
	if o.logger != nil {
		o.logger.Debug("wait finished",
			"event_id", res.EventID,
			"outcome", res.Outcome,
			"status", res.Status,
			"polls", polls,
			"waited", res.Waited,
		)
	}
}

func (o *observer) debug(msg string, args ...any) {
	if o != nil && o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}
