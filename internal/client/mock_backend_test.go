package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infergate/infergate/internal/typ"
)

// mockResponse defines a canned response for one endpoint
type mockResponse struct {
	StatusCode int
	Body       interface{}
	Delay      time.Duration
}

// mockBackend simulates an OpenAI-compatible inference server
type mockBackend struct {
	server      *httptest.Server
	responses   map[string]mockResponse
	callCount   map[string]int
	lastRequest map[string]map[string]interface{}
	mutex       sync.RWMutex
}

func newMockBackend() *mockBackend {
	m := &mockBackend{
		responses:   make(map[string]mockResponse),
		callCount:   make(map[string]int),
		lastRequest: make(map[string]map[string]interface{}),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *mockBackend) setResponse(path string, resp mockResponse) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.responses[path] = resp
}

func (m *mockBackend) getCallCount(path string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.callCount[path]
}

func (m *mockBackend) getLastRequest(path string) map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.lastRequest[path]
}

func (m *mockBackend) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	var reqBody map[string]interface{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&reqBody)
	}

	m.mutex.Lock()
	m.callCount[path]++
	if reqBody != nil {
		m.lastRequest[path] = reqBody
	}
	resp, exists := m.responses[path]
	m.mutex.Unlock()

	if !exists {
		http.NotFound(w, r)
		return
	}
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		_ = json.NewEncoder(w).Encode(resp.Body)
	}
}

func (m *mockBackend) port(t *testing.T) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(m.server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

// backend returns a registry entry whose container name does not resolve,
// so the resolver falls back to loopback on the mock server's port
func (m *mockBackend) backend(t *testing.T) *typ.Backend {
	t.Helper()
	return &typ.Backend{
		UUID:          "mock-backend-uuid",
		Name:          "mock",
		ContainerName: "mock-container",
		ServedModel:   "test-model",
		HostPort:      m.port(t),
		Enabled:       true,
	}
}

func (m *mockBackend) close() {
	m.server.Close()
}

// unresolvableResolver never resolves container names, forcing the
// loopback fallback paths
func unresolvableResolver() *Resolver {
	return &Resolver{
		lookupHost: func(ctx context.Context, host string) ([]string, error) {
			return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		},
	}
}

// resolvableResolver resolves every container name
func resolvableResolver() *Resolver {
	return &Resolver{
		lookupHost: func(ctx context.Context, host string) ([]string, error) {
			return []string{"172.18.0.5"}, nil
		},
	}
}

// refusedPort returns a loopback port with nothing listening on it
func refusedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func mockChatCompletionResponse(id, model, content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      id,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
}
