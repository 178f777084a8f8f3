package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHarness(opts ...HarnessOption) *Harness {
	pool := NewPool(2 * time.Second)
	base := []HarnessOption{
		WithChatTimeout(2 * time.Second),
		WithEmbeddingsTimeout(2 * time.Second),
	}
	return NewHarness(pool, unresolvableResolver(), "test-internal-key", append(base, opts...)...)
}

func TestChatSuccess(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 200,
		Body:       mockChatCompletionResponse("chatcmpl-1", "test-model", "Hello! How can I help?"),
	})

	exchange, err := testHarness().TestChat(context.Background(), mock.backend(t))
	require.NoError(t, err)

	assert.Equal(t, "test-model", exchange.Request["model"])
	assert.Equal(t, float64(50), exchange.Request["max_tokens"])
	assert.Equal(t, float64(0.7), exchange.Request["temperature"])

	choices := exchange.Response["choices"].([]interface{})
	message := choices[0].(map[string]interface{})["message"].(map[string]interface{})
	assert.Equal(t, "Hello! How can I help?", message["content"])

	sent := mock.getLastRequest("/v1/chat/completions")
	messages := sent["messages"].([]interface{})
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "Hello", first["content"])
}

func TestChatTemplateFallback(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 400,
		Body: map[string]interface{}{
			"error": map[string]interface{}{
				"message": "This model does not have a chat template defined",
			},
		},
	})
	mock.setResponse("/v1/completions", mockResponse{
		StatusCode: 200,
		Body: map[string]interface{}{
			"id":      "cmpl-1",
			"object":  "text_completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]interface{}{
				{"index": 0, "text": "Hi there", "finish_reason": "length"},
			},
			"usage": map[string]interface{}{
				"prompt_tokens":     3,
				"completion_tokens": 2,
				"total_tokens":      5,
			},
		},
	})

	exchange, err := testHarness().TestChat(context.Background(), mock.backend(t))
	require.NoError(t, err)

	// normalized back into chat shape
	assert.Equal(t, "chat.completion", exchange.Response["object"])
	choices := exchange.Response["choices"].([]interface{})
	message := choices[0].(map[string]interface{})["message"].(map[string]interface{})
	assert.Equal(t, "assistant", message["role"])
	assert.Equal(t, "Hi there", message["content"])

	usage := exchange.Response["usage"].(map[string]interface{})
	assert.Equal(t, float64(5), usage["total_tokens"])

	// the recorded request is the original chat request
	assert.Contains(t, exchange.Request, "messages")

	// the fallback request replaced messages with a flattened prompt
	sent := mock.getLastRequest("/v1/completions")
	assert.NotContains(t, sent, "messages")
	assert.Equal(t, "User: Hello\n\nAssistant:", sent["prompt"])
	assert.Equal(t, "test-model", sent["model"])
	assert.Equal(t, float64(50), sent["max_tokens"])
}

func TestChatTemplateFallbackBareMessageShape(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 400,
		Body:       map[string]interface{}{"message": "no chat template configured"},
	})
	mock.setResponse("/v1/completions", mockResponse{
		StatusCode: 200,
		Body: map[string]interface{}{
			"id":      "cmpl-2",
			"object":  "text_completion",
			"model":   "test-model",
			"choices": []map[string]interface{}{{"index": 0, "text": "ok"}},
			"usage":   map[string]interface{}{"total_tokens": 5},
		},
	})

	exchange, err := testHarness().TestChat(context.Background(), mock.backend(t))
	require.NoError(t, err)

	choices := exchange.Response["choices"].([]interface{})
	message := choices[0].(map[string]interface{})["message"].(map[string]interface{})
	assert.Equal(t, "assistant", message["role"])
	assert.Equal(t, "ok", message["content"])
	usage := exchange.Response["usage"].(map[string]interface{})
	assert.Equal(t, float64(5), usage["total_tokens"])
}

func TestChatTemplateFallbackFailureSurfacesOriginalError(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 400,
		Body:       map[string]interface{}{"detail": "model lacks a chat template"},
	})
	mock.setResponse("/v1/completions", mockResponse{
		StatusCode: 500,
		Body:       map[string]interface{}{"detail": "internal error"},
	})

	_, err := testHarness().TestChat(context.Background(), mock.backend(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Contains(t, err.Error(), "chat template")
	assert.Equal(t, 1, mock.getCallCount("/v1/completions"))
}

func TestChatNonTemplateErrorNoFallback(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 400,
		Body:       map[string]interface{}{"error": "invalid request"},
	})

	_, err := testHarness().TestChat(context.Background(), mock.backend(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Equal(t, 0, mock.getCallCount("/v1/completions"))
}

func TestChatMissingChoices(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 200,
		Body:       map[string]interface{}{"id": "chatcmpl-1", "object": "chat.completion"},
	})

	_, err := testHarness().TestChat(context.Background(), mock.backend(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'choices'")
}

func TestChatTimeout(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/chat/completions", mockResponse{
		StatusCode: 200,
		Body:       mockChatCompletionResponse("chatcmpl-1", "test-model", "Hello"),
		Delay:      500 * time.Millisecond,
	})

	_, err := testHarness(WithChatTimeout(50 * time.Millisecond)).TestChat(context.Background(), mock.backend(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat request failed")
}

func TestEmbeddingsSuccess(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/embeddings", mockResponse{
		StatusCode: 200,
		Body: map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, -0.2, 0.3}},
			},
			"model": "test-model",
		},
	})

	exchange, err := testHarness().TestEmbeddings(context.Background(), mock.backend(t))
	require.NoError(t, err)

	assert.Equal(t, "test", exchange.Request["input"])
	data := exchange.Response["data"].([]interface{})
	assert.Len(t, data, 1)
}

func TestEmbeddingsEmptyData(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/embeddings", mockResponse{
		StatusCode: 200,
		Body:       map[string]interface{}{"object": "list", "data": []interface{}{}},
	})

	_, err := testHarness().TestEmbeddings(context.Background(), mock.backend(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "'data' field")
}

func TestEmbeddingsMissingVector(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/embeddings", mockResponse{
		StatusCode: 200,
		Body: map[string]interface{}{
			"object": "list",
			"data":   []map[string]interface{}{{"object": "embedding", "index": 0}},
		},
	})

	_, err := testHarness().TestEmbeddings(context.Background(), mock.backend(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'embedding'")
}

func TestEmbeddingsHTTPError(t *testing.T) {
	mock := newMockBackend()
	defer mock.close()
	mock.setResponse("/v1/embeddings", mockResponse{
		StatusCode: 500,
		Body:       map[string]interface{}{"detail": "engine crashed"},
	})

	_, err := testHarness().TestEmbeddings(context.Background(), mock.backend(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Contains(t, err.Error(), "engine crashed")
}
