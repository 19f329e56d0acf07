// Package eventapi is the HTTP client for a coordinator's event and run API.
package eventapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kailas-cloud/pdfrag/internal/domain"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultEventURL   = "http://localhost:8080"
	DefaultTimeout    = 10 * time.Second
	DefaultRetryCount = 2
)

// Config addresses the event endpoint and the run API.
type Config struct {
	// EventURL is the base of POST /e/{key}.
	EventURL string
	EventKey string
	// APIURL is the base of GET /events/{id}/runs. Defaults to EventURL + "/v1".
	APIURL string
	// APIKey is sent as a Bearer token to the run API.
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// Client submits events and reads runs. Only reads are retried.
type Client struct {
	events   *resty.Client
	api      *resty.Client
	eventKey string
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.EventURL == "" {
		cfg.EventURL = DefaultEventURL
	}
	cfg.EventURL = strings.TrimRight(cfg.EventURL, "/")
	if cfg.APIURL == "" {
		cfg.APIURL = cfg.EventURL + "/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.EventKey == "" {
		cfg.EventKey = "local"
	}

	events := resty.New().
		SetBaseURL(cfg.EventURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	api := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryCondition)
	if cfg.APIKey != "" {
		api.SetAuthToken(cfg.APIKey)
	}

	return &Client{events: events, api: api, eventKey: cfg.EventKey}
}

// Send submits events and returns their ids in input order.
// Transport failures and malformed acknowledgements wrap domain.ErrConnection.
func (c *Client) Send(ctx context.Context, events ...domain.Event) ([]string, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events: %w", domain.ErrInvalidArgument)
	}

	body := make([]eventRequest, len(events))
	for i, ev := range events {
		body[i] = eventRequest{Name: string(ev.Name), Data: ev.Data}
		if !ev.Timestamp.IsZero() {
			body[i].TS = ev.Timestamp.UnixMilli()
		}
	}

	var (
		out     sendResponse
		errBody errorResponse
	)
	resp, err := c.events.R().
		SetContext(ctx).
		SetPathParam("key", c.eventKey).
		SetBody(body).
		SetResult(&out).
		SetError(&errBody).
		Post("/e/{key}")
	if err != nil {
		return nil, transportError(ctx, "send events", err)
	}
	if resp.IsError() {
		return nil, statusError("send events", resp.StatusCode(), errBody.Message)
	}

	if len(out.IDs) != len(events) {
		return nil, fmt.Errorf("send events: expected %d ids, got %d: %w", len(events), len(out.IDs), domain.ErrConnection)
	}
	for i, id := range out.IDs {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("send events: empty id at %d: %w", i, domain.ErrConnection)
		}
	}
	return out.IDs, nil
}

// Runs lists the runs of an event with normalized statuses. An empty list means nothing has started yet.
func (c *Client) Runs(ctx context.Context, eventID string) ([]domain.Run, error) {
	var (
		out     runsResponse
		errBody errorResponse
	)
	resp, err := c.api.R().
		SetContext(ctx).
		SetPathParam("id", eventID).
		SetResult(&out).
		SetError(&errBody).
		Get("/events/{id}/runs")
	if err != nil {
		return nil, transportError(ctx, "list runs", err)
	}
	if resp.IsError() {
		return nil, statusError("list runs", resp.StatusCode(), errBody.Message)
	}

	runs := make([]domain.Run, len(out.Data))
	for i, r := range out.Data {
		runs[i] = r.toDomain(eventID)
	}
	return runs, nil
}

// Event fetches a stored event.
func (c *Client) Event(ctx context.Context, eventID string) (domain.Event, error) {
	var (
		out     eventResponse
		errBody errorResponse
	)
	resp, err := c.api.R().
		SetContext(ctx).
		SetPathParam("id", eventID).
		SetResult(&out).
		SetError(&errBody).
		Get("/events/{id}")
	if err != nil {
		return domain.Event{}, transportError(ctx, "get event", err)
	}
	if resp.IsError() {
		return domain.Event{}, statusError("get event", resp.StatusCode(), errBody.Message)
	}
	return out.Data, nil
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrConnection)
}

func statusError(op string, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %s: %w", op, msg, domain.ErrNotFound)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %s: %w", op, msg, domain.ErrInvalidArgument)
	default:
		return fmt.Errorf("%s: status %d: %s: %w", op, status, msg, domain.ErrConnection)
	}
}
