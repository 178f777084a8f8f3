package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/infergate/infergate/internal/constant"
	"github.com/infergate/infergate/internal/protocol"
	"github.com/infergate/infergate/internal/typ"
)

// Harness runs one-shot functional smoke tests against a backend: a small
// chat completion and a single-input embeddings request. Unlike the
// readiness prober it does not classify failures; anything that prevents a
// well-formed response comes back as an error for the caller to record.
type Harness struct {
	pool         *Pool
	resolver     *Resolver
	internalKey  string
	chatTimeout  time.Duration
	embedTimeout time.Duration
}

// HarnessOption defines a functional option for Harness configuration
type HarnessOption func(*Harness)

// WithChatTimeout overrides the chat test request budget
func WithChatTimeout(d time.Duration) HarnessOption {
	return func(h *Harness) {
		h.chatTimeout = d
	}
}

// WithEmbeddingsTimeout overrides the embeddings test request budget
func WithEmbeddingsTimeout(d time.Duration) HarnessOption {
	return func(h *Harness) {
		h.embedTimeout = d
	}
}

// NewHarness creates a functional test harness sharing the given
// connection pool
func NewHarness(pool *Pool, resolver *Resolver, internalKey string, opts ...HarnessOption) *Harness {
	h := &Harness{
		pool:         pool,
		resolver:     resolver,
		internalKey:  internalKey,
		chatTimeout:  constant.ChatTestReadTimeout * time.Second,
		embedTimeout: constant.EmbeddingsTestReadTimeout * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Exchange is the request/response pair of a successful test
type Exchange struct {
	Request  map[string]interface{}
	Response map[string]interface{}
}

// TestChat sends one realistic chat completion and validates the response
// shape. When the backend rejects the request because the model has no
// chat template, the same exchange is retried as a raw completion and the
// result is normalized back into chat shape, so the caller sees a chat
// response either way.
func (h *Harness) TestChat(ctx context.Context, backend *typ.Backend) (*Exchange, error) {
	addr := h.resolver.Resolve(ctx, backend.ContainerName, backend.HostPort)

	request := &protocol.ChatCompletionRequest{
		Model:       backend.ServedModel,
		Messages:    []protocol.Message{{Role: "user", Content: "Hello"}},
		MaxTokens:   50,
		Temperature: 0.7,
	}
	reqBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	key := h.keyFor(backend)
	resp, err := h.post(ctx, h.chatTimeout, addr.BaseURL()+"/v1/chat/completions", reqBytes, key)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode >= 400 {
		// transformers v4.44+ refuses chat requests for models without a
		// chat template; downgrade to a raw completion and reshape
		msg := protocol.ExtractErrorMessage(body)
		if protocol.IsChatTemplateMessage(msg) {
			logrus.Infof("Model %s has no chat template, retrying via /v1/completions", backend.ServedModel)
			if exchange, ok := h.retryAsCompletion(ctx, addr.BaseURL(), request, reqBytes, key); ok {
				return exchange, nil
			}
		}
		// Fallback did not apply or did not work; surface the original error
		return nil, fmt.Errorf("backend returned HTTP %d: %s",
			resp.StatusCode, protocol.Truncate(string(body), constant.MaxErrorBodyExcerpt))
	}

	choices := gjson.GetBytes(body, "choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return nil, fmt.Errorf("invalid response: missing 'choices' field")
	}

	return buildExchange(reqBytes, body)
}

// retryAsCompletion rewrites the chat request into a raw completion
// request, carrying over model, token limit and temperature, and converts
// a successful completion response back into chat shape. Returns false
// when the retry itself fails, leaving the original error to be surfaced.
func (h *Harness) retryAsCompletion(ctx context.Context, base string, request *protocol.ChatCompletionRequest, reqBytes []byte, key string) (*Exchange, bool) {
	compBytes, err := sjson.DeleteBytes(reqBytes, "messages")
	if err != nil {
		return nil, false
	}
	compBytes, err = sjson.SetBytes(compBytes, "prompt", promptFromMessages(request.Messages))
	if err != nil {
		return nil, false
	}

	resp, err := h.post(ctx, h.chatTimeout, base+"/v1/completions", compBytes, key)
	if err != nil {
		logrus.Warnf("Completions fallback failed: %v", err)
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode >= 400 {
		return nil, false
	}

	var comp protocol.CompletionResponse
	if err := json.Unmarshal(body, &comp); err != nil {
		return nil, false
	}
	normalized, err := json.Marshal(protocol.NormalizeCompletionResponse(&comp))
	if err != nil {
		return nil, false
	}

	exchange, err := buildExchange(reqBytes, normalized)
	if err != nil {
		return nil, false
	}
	return exchange, true
}

// TestEmbeddings sends one embeddings request for a fixed input and
// validates that the response carries at least one embedding vector
func (h *Harness) TestEmbeddings(ctx context.Context, backend *typ.Backend) (*Exchange, error) {
	addr := h.resolver.Resolve(ctx, backend.ContainerName, backend.HostPort)

	request := &protocol.EmbeddingsRequest{
		Model: backend.ServedModel,
		Input: "test",
	}
	reqBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embeddings request: %w", err)
	}

	resp, err := h.post(ctx, h.embedTimeout, addr.BaseURL()+"/v1/embeddings", reqBytes, h.keyFor(backend))
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("backend returned HTTP %d: %s",
			resp.StatusCode, protocol.Truncate(string(body), constant.MaxErrorBodyExcerpt))
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() || len(data.Array()) == 0 {
		return nil, fmt.Errorf("invalid response: missing or invalid 'data' field")
	}
	if !gjson.GetBytes(body, "data.0.embedding").Exists() {
		return nil, fmt.Errorf("invalid response: missing 'embedding' in data")
	}

	return buildExchange(reqBytes, body)
}

// keyFor returns the API key for a backend: its own key when configured,
// otherwise the shared internal key
func (h *Harness) keyFor(backend *typ.Backend) string {
	if backend.InternalKey != "" {
		return backend.InternalKey
	}
	return h.internalKey
}

// post issues an authenticated JSON POST with the given request budget
func (h *Harness) post(ctx context.Context, timeout time.Duration, url string, body []byte, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return h.pool.Client(timeout).Do(req)
}

// promptFromMessages flattens a message list into a plain-text prompt for
// the legacy completions endpoint, ending with a cue for the model to
// answer as the assistant
func promptFromMessages(messages []protocol.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		lines = append(lines, titleRole(role)+": "+m.Content)
	}
	return strings.Join(lines, "\n\n") + "\n\nAssistant:"
}

func titleRole(role string) string {
	return strings.ToUpper(role[:1]) + role[1:]
}

// buildExchange decodes raw request/response bodies into the structured
// payloads recorded on a test outcome
func buildExchange(reqBytes, respBytes []byte) (*Exchange, error) {
	var request, response map[string]interface{}
	if err := json.Unmarshal(reqBytes, &request); err != nil {
		return nil, fmt.Errorf("failed to decode request payload: %w", err)
	}
	if err := json.Unmarshal(respBytes, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response payload: %w", err)
	}
	return &Exchange{Request: request, Response: response}, nil
}
