package pdfrag

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Defaults for polling.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTimeout      = 120 * time.Second
	DefaultMaxInterval  = 5 * time.Second
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	eventURL string
	eventKey string
	apiURL   string
	apiKey   string

	pollInterval time.Duration
	timeout      time.Duration
	backoff      bool
	maxInterval  time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithEventAPI sets the coordinator base URL and the event key used in POST /e/{key}.
func WithEventAPI(url, key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.eventURL = url
		c.eventKey = key
	})
}

// WithAPI sets the run API base URL. Defaults to the event URL + "/v1".
func WithAPI(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiURL = url
	})
}

// WithAPIKey sets the Bearer token sent to the run API.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = key
	})
}

// WithPollInterval sets the delay between run status polls. Default: 500ms.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.pollInterval = d
	})
}

// WithTimeout bounds how long Wait polls. Default: 120s.
// A timeout never cancels the run on the coordinator.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithBackoff doubles the poll interval after each poll, capped at maxInterval
// (DefaultMaxInterval when <= 0).
func WithBackoff(maxInterval time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.backoff = true
		c.maxInterval = maxInterval
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
