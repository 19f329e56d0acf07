// Package chi exposes the event API over HTTP: event submission, run status and health.
package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/coordinator"
	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/metrics"
	healthuc "github.com/kailas-cloud/pdfrag/internal/usecase/health"
)

const maxBodyBytes = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// events is the consumer interface for the coordinator (ISP).
type events interface {
	Send(ctx context.Context, events ...domain.Event) ([]string, error)
	Event(ctx context.Context, eventID string) (domain.Event, error)
	Runs(ctx context.Context, eventID string) ([]domain.Run, error)
}

// healthChecker reports component health.
type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the event API.
type Server struct {
	events        events
	health        healthChecker
	eventKey      string
	apiKeys       []string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. An empty eventKey accepts any key on /e/{eventKey}.
func NewServer(ev events, health healthChecker, eventKey string, apiKeys []string, logger *zap.Logger) *Server {
	s := &Server{
		events:   ev,
		health:   health,
		eventKey: eventKey,
		apiKeys:  apiKeys,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(coordinator.ErrClosed, http.StatusServiceUnavailable, CodeUnavailable),
	}
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer(s.logger))
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.With(EventKeyAuth(s.eventKey)).Post("/e/{eventKey}", s.SendEvents)

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(s.apiKeys))
		r.Get("/events/{eventID}", s.GetEvent)
		r.Get("/events/{eventID}/runs", s.ListRuns)
	})
	return r
}

// SendEvents handles POST /e/{eventKey}. The body is one event or an array of events.
func (s *Server) SendEvents(w http.ResponseWriter, r *http.Request) {
	reqs, err := decodeEvents(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	evs := make([]domain.Event, len(reqs))
	for i, req := range reqs {
		evs[i] = req.toDomain()
	}

	ids, err := s.events.Send(r.Context(), evs...)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{IDs: ids, Status: http.StatusOK})
}

// GetEvent handles GET /v1/events/{eventID}.
func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.events.Event(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{Data: ev})
}

// ListRuns handles GET /v1/events/{eventID}/runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.events.Runs(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	writeJSON(w, http.StatusOK, RunsResponse{Data: runs})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func decodeEvents(body io.Reader) ([]EventRequest, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty body")
	}

	var reqs []EventRequest
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &reqs); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	} else {
		var one EventRequest
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		reqs = []EventRequest{one}
	}
	if len(reqs) == 0 {
		return nil, errors.New("no events")
	}
	for i, req := range reqs {
		if req.Name == "" {
			return nil, fmt.Errorf("event %d: name is required", i)
		}
	}
	return reqs, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message. Validation details are the caller's own input.
func safeDomainMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrNotFound.Error()
	case errors.Is(err, coordinator.ErrClosed):
		return coordinator.ErrClosed.Error()
	default:
		return "internal error"
	}
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
