package pdfrag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/transport/eventapi"
)

// errStillPending marks a poll that saw no terminal run yet.
var errStillPending = errors.New("run not finished")

// Внутренний интерфейс для подмены в тестах.
type eventClient interface {
	Send(ctx context.Context, events ...domain.Event) ([]string, error)
	Runs(ctx context.Context, eventID string) ([]domain.Run, error)
}

// Client is the pdfrag SDK entry point.
type Client struct {
	events eventClient
	cfg    clientConfig
	obs    *observer
}

// New creates a Client. No request is made until the first call.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{}
	for _, o := range opts {
		o.apply(&cfg)
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = DefaultPollInterval
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultTimeout
	}
	if cfg.backoff && cfg.maxInterval <= 0 {
		cfg.maxInterval = DefaultMaxInterval
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	events := eventapi.New(eventapi.Config{
		EventURL: cfg.eventURL,
		EventKey: cfg.eventKey,
		APIURL:   cfg.apiURL,
		APIKey:   cfg.apiKey,
	})
	return &Client{events: events, cfg: cfg, obs: obs}, nil
}

// SendIngest submits a rag/ingest_pdf event. path must be absolute and readable by the
// worker; sourceID defaults to the file name.
func (c *Client) SendIngest(ctx context.Context, path, sourceID string) (eventID string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("send_ingest", start, err) }()

	if strings.TrimSpace(sourceID) == "" {
		sourceID = filepath.Base(path)
	}
	p := domain.IngestPayload{PDFPath: path, SourceID: sourceID}
	if err = p.Validate(); err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}
	return c.send(ctx, domain.Event{Name: domain.EventIngestPDF, Data: p.Data()})
}

// SendQuery submits a rag/query_pdf_ai event. topK == 0 uses the default of 5;
// other values are clamped by the server.
func (c *Client) SendQuery(ctx context.Context, question string, topK int) (eventID string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("send_query", start, err) }()

	if topK == 0 {
		topK = domain.DefaultTopK
	}
	p := domain.QueryPayload{Question: question, TopK: topK}
	if err = p.Validate(); err != nil {
		return "", fmt.Errorf("query: %w", err)
	}
	return c.send(ctx, domain.Event{Name: domain.EventQueryPDF, Data: p.Data()})
}

func (c *Client) send(ctx context.Context, ev domain.Event) (string, error) {
	ids, err := c.events.Send(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("send %s: %w", ev.Name, err)
	}
	return ids[0], nil
}

// Runs returns the runs of an event as reported by the coordinator.
func (c *Client) Runs(ctx context.Context, eventID string) (runs []Run, err error) {
	start := time.Now()
	defer func() { c.obs.observe("runs", start, err) }()

	runs, err = c.events.Runs(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	return runs, nil
}

// Wait polls the first run of eventID until it is terminal or the poll timeout elapses.
// A run still in progress at the deadline yields a TimedOut result, not an error.
// The error is non-nil only when ctx ends or the coordinator rejects the request.
func (c *Client) Wait(ctx context.Context, eventID string) (res Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("wait", start, err) }()

	res = Result{EventID: eventID, Status: StatusPending}
	polls := 0
	defer func() { c.obs.observeWait(&res, polls) }()

	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	err = retry.Do(pollCtx, c.pollBackoff(), func(ctx context.Context) error {
		polls++
		runs, rerr := c.events.Runs(ctx, eventID)
		if rerr != nil {
			// An event may not be visible yet, or the coordinator may be restarting.
			if errors.Is(rerr, domain.ErrNotFound) || errors.Is(rerr, domain.ErrConnection) {
				c.obs.debug("poll failed", "event_id", eventID, "error", rerr)
				return retry.RetryableError(rerr)
			}
			return rerr
		}
		if len(runs) == 0 {
			return retry.RetryableError(errStillPending)
		}
		run := runs[0]
		res.Run = &run
		res.Status = run.Status
		if !run.Status.IsTerminal() {
			return retry.RetryableError(errStillPending)
		}
		return nil
	})
	res.Waited = time.Since(start)

	switch {
	case err == nil:
		res.Outcome = Succeeded
		if res.Status.IsFailure() {
			res.Outcome = Failed
		}
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("wait for event %s: %w", eventID, ctx.Err())
	case pollCtx.Err() != nil, errors.Is(err, errStillPending),
		errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConnection):
		res.Outcome = TimedOut
		return res, nil
	default:
		return res, fmt.Errorf("wait for event %s: %w", eventID, err)
	}
}

func (c *Client) pollBackoff() retry.Backoff {
	var b retry.Backoff
	if c.cfg.backoff {
		b = retry.WithCappedDuration(c.cfg.maxInterval, retry.NewExponential(c.cfg.pollInterval))
	} else {
		b = retry.NewConstant(c.cfg.pollInterval)
	}
	return retry.WithMaxDuration(c.cfg.timeout, b)
}

// Ingest submits a document and waits for it to be indexed.
func (c *Client) Ingest(ctx context.Context, path, sourceID string) (IngestResult, error) {
	eventID, err := c.SendIngest(ctx, path, sourceID)
	if err != nil {
		return IngestResult{}, err
	}
	res, err := c.Wait(ctx, eventID)
	if err != nil {
		return IngestResult{}, err
	}
	if err := res.Err(); err != nil {
		return IngestResult{}, err
	}
	return ingestResultFrom(res.Output()), nil
}

// Ask submits a question and waits for the answer.
func (c *Client) Ask(ctx context.Context, question string, topK int) (Answer, error) {
	eventID, err := c.SendQuery(ctx, question, topK)
	if err != nil {
		return Answer{}, err
	}
	res, err := c.Wait(ctx, eventID)
	if err != nil {
		return Answer{}, err
	}
	if err := res.Err(); err != nil {
		return Answer{}, err
	}
	return answerFrom(res.Output()), nil
}
