package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// TestAPIKey is the credential used by provider tests.
const TestAPIKey = "sk_test_4f8a9b2c7d"

// MockUpstream is a mock travel-provider API server.
type MockUpstream struct {
	*httptest.Server
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests int
}

// NewUpstream creates a mock upstream server.
// The server is automatically closed when the test completes.
func NewUpstream(t *testing.T) *MockUpstream {
	t.Helper()

	m := &MockUpstream{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockUpstream) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests++
	handler, ok := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if ok {
		handler(w, r)
		return
	}
	ReplyJSON(w, map[string]any{})
}

// On registers a handler for a path.
func (m *MockUpstream) On(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// RequestCount returns the number of requests received so far.
func (m *MockUpstream) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// BaseURL returns the server's base URL.
func (m *MockUpstream) BaseURL() string {
	return m.Server.URL
}

// ReplyJSON writes v as a 200 JSON response.
func ReplyJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ReplyError writes a provider error envelope with the given status.
func ReplyError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

// ReplyRateLimited writes a 429 with a Retry-After header.
func ReplyRateLimited(w http.ResponseWriter, seconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	ReplyError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
}

// ReplyServerError writes a 5xx provider error.
func ReplyServerError(w http.ResponseWriter, status int, message string) {
	ReplyError(w, status, "UPSTREAM_ERROR", message)
}
