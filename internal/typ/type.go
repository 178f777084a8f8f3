package typ

// BackendKind represents the test surface a backend serves
type BackendKind string

const (
	BackendKindChat      BackendKind = "chat"
	BackendKindEmbedding BackendKind = "embedding"
)

// Backend represents a registered inference backend. A backend is one
// container running an OpenAI-compatible server (vLLM, llama.cpp, TGI)
// serving a single model.
type Backend struct {
	UUID          string      `json:"uuid" yaml:"uuid"`
	Name          string      `json:"name" yaml:"name"`
	ContainerName string      `json:"container_name" yaml:"container_name"`
	ServedModel   string      `json:"served_model" yaml:"served_model"` // identifier the model is registered under
	HostPort      int         `json:"host_port,omitempty" yaml:"host_port,omitempty"`
	Kind          BackendKind `json:"kind" yaml:"kind"`
	InternalKey   string      `json:"internal_key,omitempty" yaml:"internal_key,omitempty"`
	Enabled       bool        `json:"enabled" yaml:"enabled"`
}

// GetKind returns the backend kind, defaulting to chat for records written
// before the field existed
func (b *Backend) GetKind() BackendKind {
	if b.Kind == "" {
		return BackendKindChat
	}
	return b.Kind
}

// ReadinessStatus is the classified state of a backend
type ReadinessStatus string

const (
	StatusReady   ReadinessStatus = "ready"
	StatusLoading ReadinessStatus = "loading"
	StatusStopped ReadinessStatus = "stopped"
	StatusError   ReadinessStatus = "error"
)

// ReadinessResult is the answer to "can this backend serve requests right
// now". Detail is a diagnostic token, not user-facing prose; it is set for
// every non-ready status and never for ready.
type ReadinessResult struct {
	Status ReadinessStatus `json:"status"`
	Detail string          `json:"detail,omitempty"`
}

// TestOutcome is the recorded result of one functional smoke test.
// Response is present iff Success; Error is present iff not.
type TestOutcome struct {
	Success   bool                   `json:"success"`
	TestType  string                 `json:"test_type"`
	Request   map[string]interface{} `json:"request"`
	Response  map[string]interface{} `json:"response,omitempty"`
	Error     string                 `json:"error,omitempty"`
	LatencyMs int64                  `json:"latency_ms"`
	Timestamp float64                `json:"timestamp"`
}
