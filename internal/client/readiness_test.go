package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/infergate/infergate/internal/typ"
)

func testProber(opts ...ProberOption) *Prober {
	pool := NewPool(2 * time.Second)
	base := []ProberOption{WithProbeTimeouts(ProbeTimeouts{
		Health:     2 * time.Second,
		Models:     2 * time.Second,
		Generation: 2 * time.Second,
	})}
	return NewProber(pool, unresolvableResolver(), "test-internal-key", append(base, opts...)...)
}

func TestProbeHealthyBackendShortCircuits(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/health", mockResponse{StatusCode: 200})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusReady, result.Status)
	assert.Empty(t, result.Detail)
	assert.Equal(t, 0, mock.getCallCount("/v1/models"))
	assert.Equal(t, 0, mock.getCallCount("/v1/chat/completions"))
}

func TestProbeHealth503LoadingMessage(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/health", mockResponse{
		StatusCode: 503,
		Body:       map[string]interface{}{"detail": "Model is still loading, please wait"},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusLoading, result.Status)
	assert.Equal(t, "model_loading", result.Detail)
}

func TestProbeHealth503BareErrorString(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/health", mockResponse{
		StatusCode: 503,
		Body:       map[string]interface{}{"error": "initializing"},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusLoading, result.Status)
	assert.Equal(t, "model_loading", result.Detail)
}

func TestProbeHealth503OtherMessage(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/health", mockResponse{
		StatusCode: 503,
		Body:       map[string]interface{}{"detail": "upstream gone"},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusLoading, result.Status)
	assert.Equal(t, "health_503: upstream gone", result.Detail)
}

func TestProbeHealthTimeout(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/health", mockResponse{StatusCode: 200, Delay: 500 * time.Millisecond})

	prober := testProber(WithProbeTimeouts(ProbeTimeouts{
		Health:     50 * time.Millisecond,
		Models:     2 * time.Second,
		Generation: 2 * time.Second,
	}))
	result := prober.Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusLoading, result.Status)
	assert.Equal(t, "health_timeout", result.Detail)
}

func TestProbeConnectionRefused(t *testing.T) {
	backend := &typ.Backend{
		Name:          "down",
		ContainerName: "down-container",
		ServedModel:   "test-model",
		HostPort:      refusedPort(t),
	}

	result := testProber().Probe(context.Background(), backend)

	assert.Equal(t, typ.StatusLoading, result.Status)
	assert.Equal(t, "connection_refused", result.Detail)
}

func TestProbeEscalatesToModels(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	// no /health handler: 404 is inconclusive
	mock.setResponse("/v1/models", mockResponse{
		StatusCode: 200,
		Body: map[string]interface{}{
			"object": "list",
			"data":   []map[string]interface{}{{"id": "test-model", "object": "model"}},
		},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusReady, result.Status)
	assert.Equal(t, 1, mock.getCallCount("/health"))
	assert.Equal(t, 1, mock.getCallCount("/v1/models"))
	assert.Equal(t, 0, mock.getCallCount("/v1/chat/completions"))
}

func TestProbeModelsListOtherModelStillReady(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/models", mockResponse{
		StatusCode: 200,
		Body: map[string]interface{}{
			"object": "list",
			"data":   []map[string]interface{}{{"id": "some-other-model", "object": "model"}},
		},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusReady, result.Status)
}

func TestProbeModelsListEmpty(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/models", mockResponse{
		StatusCode: 200,
		Body:       map[string]interface{}{"object": "list", "data": []interface{}{}},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusLoading, result.Status)
	assert.Equal(t, "models_list_empty", result.Detail)
}

func TestProbeModels503(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/models", mockResponse{
		StatusCode: 503,
		Body:       map[string]interface{}{"error": map[string]interface{}{"message": "initializing engine"}},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusLoading, result.Status)
	assert.Equal(t, "loading_model", result.Detail)
}

func TestProbeEscalatesToGeneration(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	// neither status endpoint exists; the one-token completion decides
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 200,
		Body:       mockChatCompletionResponse("chatcmpl-1", "test-model", "Hi"),
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusReady, result.Status)
	assert.Equal(t, 1, mock.getCallCount("/v1/chat/completions"))

	req := mock.getLastRequest("/v1/chat/completions")
	assert.Equal(t, "test-model", req["model"])
	assert.Equal(t, float64(1), req["max_tokens"])
}

func TestProbeGenerationHTTPError(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 400,
		Body:       map[string]interface{}{"error": "bad request"},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusError, result.Status)
	assert.Equal(t, "HTTP 400", result.Detail)
}

func TestProbeGeneration503NotLoading(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 503,
		Body:       map[string]interface{}{"detail": "overloaded"},
	})

	result := testProber().Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusError, result.Status)
	assert.Equal(t, "503: overloaded", result.Detail)
}

func TestProbeGenerationTimeout(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 200,
		Body:       mockChatCompletionResponse("chatcmpl-1", "test-model", "Hi"),
		Delay:      500 * time.Millisecond,
	})

	prober := testProber(WithProbeTimeouts(ProbeTimeouts{
		Health:     2 * time.Second,
		Models:     2 * time.Second,
		Generation: 50 * time.Millisecond,
	}))
	result := prober.Probe(context.Background(), mock.backend(t))

	assert.Equal(t, typ.StatusLoading, result.Status)
	assert.Equal(t, "request_timeout", result.Detail)
}
