package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func bearerRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/events/ev-1/runs", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		header string
		want   int
	}{
		{"no keys configured", nil, "", http.StatusOK},
		{"only blank keys", []string{"", ""}, "", http.StatusOK},
		{"missing header", []string{"secret"}, "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "Basic c2VjcmV0", http.StatusUnauthorized},
		{"empty token", []string{"secret"}, "Bearer ", http.StatusUnauthorized},
		{"wrong token", []string{"secret"}, "Bearer nope", http.StatusUnauthorized},
		{"valid token", []string{"secret"}, "Bearer secret", http.StatusOK},
		{"lowercase scheme", []string{"secret"}, "bearer secret", http.StatusOK},
		{"second key", []string{"old", "new"}, "Bearer new", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			BearerAuth(tc.keys)(okHandler()).ServeHTTP(rr, bearerRequest(tc.header))
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestBearerAuth_ErrorBody(t *testing.T) {
	rr := httptest.NewRecorder()
	BearerAuth([]string{"secret"})(okHandler()).ServeHTTP(rr, bearerRequest("Bearer nope"))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, CodeUnauthorized, resp.Code)
	assert.Equal(t, "invalid api key", resp.Message)
}

func TestEventKeyAuth(t *testing.T) {
	route := func(key string) http.Handler {
		r := chi.NewRouter()
		r.With(EventKeyAuth(key)).Post("/e/{eventKey}", okHandler().ServeHTTP)
		return r
	}

	tests := []struct {
		name       string
		configured string
		path       string
		want       int
	}{
		{"matching key", "local", "/e/local", http.StatusOK},
		{"wrong key", "local", "/e/other", http.StatusUnauthorized},
		{"any key when unset", "", "/e/whatever", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			route(tc.configured).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, tc.path, http.NoBody))
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}
