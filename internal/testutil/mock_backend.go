// Package testutil provides testing utilities for the panel aggregator.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockBackendResponse defines the behavior for a mock backend response.
type MockBackendResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration

	// Hold blocks the response until closed or the request is cancelled.
	Hold <-chan struct{}
}

// MockBackend is a configurable mock of the paged REST backend.
// Responses can be set per path and per tipo value.
type MockBackend struct {
	server    *httptest.Server
	mu        sync.RWMutex
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	responses map[string]map[string]MockBackendResponse

	requestCount int
	typeCounts   map[string]int
	lastQuery    url.Values
}

// anyType is the response key that matches every tipo value.
const anyType = "*"

// NewMockBackend creates and starts a mock backend.
func NewMockBackend() *MockBackend {
	mock := &MockBackend{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		responses:  make(map[string]map[string]MockBackendResponse),
		typeCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		mock.mu.Lock()
		mock.requestCount++
		mock.typeCounts[typeKey(r.URL.Path, query.Get("tipo"))]++
		mock.lastQuery = query
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.respond(w, r)
	}))

	return mock
}

func typeKey(path, tipo string) string {
	return path + "?tipo=" + tipo
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.typeCounts = make(map[string]int)
	m.lastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBackend) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures the response for a path regardless of tipo.
func (m *MockBackend) SetResponse(path string, resp MockBackendResponse) {
	m.SetTypeResponse(path, anyType, resp)
}

// SetTypeResponse configures the response for a path and tipo value.
func (m *MockBackend) SetTypeResponse(path, tipo string, resp MockBackendResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.responses[path] == nil {
		m.responses[path] = make(map[string]MockBackendResponse)
	}
	m.responses[path][tipo] = resp
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBackend) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetTypeCount returns the number of requests for a path and tipo value.
func (m *MockBackend) GetTypeCount(path, tipo string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.typeCounts[typeKey(path, tipo)]
}

// LastQuery returns the query parameters of the latest request.
func (m *MockBackend) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

func (m *MockBackend) respond(w http.ResponseWriter, r *http.Request) {
	tipo := r.URL.Query().Get("tipo")

	m.mu.RLock()
	byType := m.responses[r.URL.Path]
	resp, ok := byType[tipo]
	if !ok {
		resp, ok = byType[anyType]
	}
	m.mu.RUnlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"mensagem": "recurso não encontrado"}`))
		return
	}

	if resp.Hold != nil {
		select {
		case <-resp.Hold:
		case <-r.Context().Done():
			return
		}
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// Item renders a minimal JSON item with an id and a tipo.
func Item(id int, tipo string) string {
	return fmt.Sprintf(`{"id": %d, "tipo": %q}`, id, tipo)
}

// Items renders n items with ids starting at first.
func Items(first, n int, tipo string) []string {
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, Item(first+i, tipo))
	}
	return items
}

// NewArrayResponse creates a 200 OK response with a bare array body.
func NewArrayResponse(items ...string) MockBackendResponse {
	return MockBackendResponse{
		StatusCode: http.StatusOK,
		Body:       "[" + strings.Join(items, ",") + "]",
		Headers:    jsonHeaders(),
	}
}

// NewEnvelopeResponse creates a 200 OK response with an envelope body.
func NewEnvelopeResponse(itemsField, countField string, total int, items ...string) MockBackendResponse {
	return MockBackendResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(`{%q: [%s], %q: %d}`,
			itemsField, strings.Join(items, ","), countField, total),
		Headers: jsonHeaders(),
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockBackendResponse {
	return MockBackendResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"mensagem": "erro interno"}`,
		Headers:    jsonHeaders(),
	}
}

// NewMalformedResponse creates a 200 OK response whose object carries no
// recognized items field.
func NewMalformedResponse() MockBackendResponse {
	return MockBackendResponse{
		StatusCode: http.StatusOK,
		Body:       `{"resultado": [], "total": 3}`,
		Headers:    jsonHeaders(),
	}
}

func jsonHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
}
