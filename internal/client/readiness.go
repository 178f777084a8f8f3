package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/infergate/infergate/internal/constant"
	"github.com/infergate/infergate/internal/protocol"
	"github.com/infergate/infergate/internal/typ"
)

// ProbeTimeouts holds the per-phase request budgets. The status phases are
// cheap and answer in milliseconds on a live server; the generation phase
// must wait out a first token on a large model.
type ProbeTimeouts struct {
	Health     time.Duration
	Models     time.Duration
	Generation time.Duration
}

// DefaultProbeTimeouts returns the production budgets
func DefaultProbeTimeouts() ProbeTimeouts {
	return ProbeTimeouts{
		Health:     constant.ProbeReadTimeout * time.Second,
		Models:     constant.ProbeReadTimeout * time.Second,
		Generation: constant.GenerationProbeReadTimeout * time.Second,
	}
}

// Prober answers "can this backend serve requests right now" with a
// three-phase escalation: /health, then /v1/models, then a one-token chat
// completion as a last resort. Cheap phases short-circuit; a phase only
// runs when every earlier phase was inconclusive. Probe never returns an
// error to the caller: a backend that does not answer is classified as
// loading, everything else unexpected as error.
type Prober struct {
	pool        *Pool
	resolver    *Resolver
	internalKey string
	timeouts    ProbeTimeouts
}

// ProberOption defines a functional option for Prober configuration
type ProberOption func(*Prober)

// WithProbeTimeouts overrides the per-phase budgets
func WithProbeTimeouts(t ProbeTimeouts) ProberOption {
	return func(p *Prober) {
		p.timeouts = t
	}
}

// NewProber creates a readiness prober. The pool is the shared outbound
// connection capability owned by the host application.
func NewProber(pool *Pool, resolver *Resolver, internalKey string, opts ...ProberOption) *Prober {
	p := &Prober{
		pool:        pool,
		resolver:    resolver,
		internalKey: internalKey,
		timeouts:    DefaultProbeTimeouts(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// phaseOutcome is the explicit result of one probe phase: either a final
// classification, or a signal to escalate to the next phase
type phaseOutcome struct {
	conclusive bool
	result     typ.ReadinessResult
}

func conclusive(status typ.ReadinessStatus, detail string) phaseOutcome {
	return phaseOutcome{conclusive: true, result: typ.ReadinessResult{Status: status, Detail: detail}}
}

func inconclusive() phaseOutcome {
	return phaseOutcome{}
}

// Probe classifies the backend's current state
func (p *Prober) Probe(ctx context.Context, backend *typ.Backend) typ.ReadinessResult {
	addr := p.resolver.Resolve(ctx, backend.ContainerName, backend.HostPort)
	base := addr.BaseURL()
	key := p.keyFor(backend)

	if out := p.checkHealth(ctx, base); out.conclusive {
		return out.result
	}
	if out := p.checkModels(ctx, base, backend.ServedModel, key); out.conclusive {
		return out.result
	}
	return p.checkGeneration(ctx, base, backend.ServedModel, key)
}

// keyFor returns the API key for a backend: its own key when configured,
// otherwise the shared internal key
func (p *Prober) keyFor(backend *typ.Backend) string {
	if backend.InternalKey != "" {
		return backend.InternalKey
	}
	return p.internalKey
}

// checkHealth is phase 1: the unauthenticated status endpoint both vLLM
// and llama.cpp expose. A 503 means the server is up but the model is not
// ready; a timeout or refused connection during startup is expected and
// classified as loading, not failure.
func (p *Prober) checkHealth(ctx context.Context, base string) phaseOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return conclusive(typ.StatusError, protocol.Truncate(err.Error(), constant.MaxErrorBodyExcerpt))
	}

	resp, err := p.pool.Client(p.timeouts.Health).Do(req)
	if err != nil {
		switch {
		case isTimeout(err):
			return conclusive(typ.StatusLoading, "health_timeout")
		case isConnRefused(err):
			return conclusive(typ.StatusLoading, "connection_refused")
		default:
			// The endpoint may not exist on this server implementation;
			// let the next phase decide
			logrus.Debugf("Health check inconclusive: %v", err)
			return inconclusive()
		}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return conclusive(typ.StatusReady, "")
	case http.StatusServiceUnavailable:
		msg := readErrorMessage(resp.Body)
		if protocol.IsLoadingMessage(msg) {
			return conclusive(typ.StatusLoading, "model_loading")
		}
		return conclusive(typ.StatusLoading, "health_503: "+protocol.Truncate(msg, constant.MaxDetailExcerpt))
	default:
		return inconclusive()
	}
}

// checkModels is phase 2: the authenticated model listing. Seeing the
// served model in the list is proof of readiness; a reachable listing that
// serves a different model is still counted as ready, since the endpoint
// answering at all means the server finished loading something.
func (p *Prober) checkModels(ctx context.Context, base, servedModel, key string) phaseOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
	if err != nil {
		return conclusive(typ.StatusError, protocol.Truncate(err.Error(), constant.MaxErrorBodyExcerpt))
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.pool.Client(p.timeouts.Models).Do(req)
	if err != nil {
		switch {
		case isTimeout(err):
			return conclusive(typ.StatusLoading, "models_timeout")
		case isConnRefused(err):
			return conclusive(typ.StatusLoading, "connection_refused")
		default:
			logrus.Debugf("Models check inconclusive: %v", err)
			return inconclusive()
		}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return conclusive(typ.StatusReady, "")
		}
		var list protocol.ModelList
		if err := json.Unmarshal(body, &list); err != nil {
			// Endpoint is reachable and answering; good enough
			return conclusive(typ.StatusReady, "")
		}
		if len(list.Data) == 0 {
			return conclusive(typ.StatusLoading, "models_list_empty")
		}
		for _, m := range list.Data {
			if m.ID == servedModel {
				return conclusive(typ.StatusReady, "")
			}
		}
		return conclusive(typ.StatusReady, "")
	case http.StatusServiceUnavailable:
		msg := readErrorMessage(resp.Body)
		if protocol.IsLoadingMessage(msg) {
			return conclusive(typ.StatusLoading, "loading_model")
		}
		return conclusive(typ.StatusLoading, "503: "+protocol.Truncate(msg, constant.MaxDetailExcerpt))
	default:
		return inconclusive()
	}
}

// checkGeneration is phase 3, the last resort: a single-token chat
// completion with deterministic sampling. Expensive, but the only check
// that works on servers exposing neither /health nor /v1/models.
func (p *Prober) checkGeneration(ctx context.Context, base, servedModel, key string) typ.ReadinessResult {
	request := &protocol.ChatCompletionRequest{
		Model:       servedModel,
		Messages:    []protocol.Message{{Role: "user", Content: "Hi"}},
		MaxTokens:   1,
		Temperature: 0.0,
	}
	bodyBytes, err := json.Marshal(request)
	if err != nil {
		return typ.ReadinessResult{Status: typ.StatusError, Detail: protocol.Truncate(err.Error(), constant.MaxErrorBodyExcerpt)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return typ.ReadinessResult{Status: typ.StatusError, Detail: protocol.Truncate(err.Error(), constant.MaxErrorBodyExcerpt)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.pool.Client(p.timeouts.Generation).Do(req)
	if err != nil {
		// No response at all leans toward a server that is still starting;
		// only a non-network failure is treated as broken
		switch {
		case isTimeout(err):
			return typ.ReadinessResult{Status: typ.StatusLoading, Detail: "request_timeout"}
		case isConnRefused(err):
			return typ.ReadinessResult{Status: typ.StatusLoading, Detail: "connection_refused"}
		default:
			return typ.ReadinessResult{Status: typ.StatusError, Detail: protocol.Truncate(err.Error(), constant.MaxErrorBodyExcerpt)}
		}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return typ.ReadinessResult{Status: typ.StatusReady}
	case http.StatusServiceUnavailable:
		msg := readErrorMessage(resp.Body)
		if protocol.IsLoadingMessage(msg) {
			return typ.ReadinessResult{Status: typ.StatusLoading, Detail: "loading_model"}
		}
		return typ.ReadinessResult{Status: typ.StatusError, Detail: "503: " + protocol.Truncate(msg, constant.MaxDetailExcerpt)}
	default:
		return typ.ReadinessResult{Status: typ.StatusError, Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
}

// readErrorMessage extracts the backend's message from an error response
// body, falling back to a raw excerpt when the body is not a known shape
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	if msg := protocol.ExtractErrorMessage(raw); msg != "" {
		return msg
	}
	return protocol.Truncate(string(raw), constant.MaxErrorBodyExcerpt)
}
