package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/infergate/infergate/internal/constant"
	"github.com/infergate/infergate/internal/typ"
)

// fileConfig is the on-disk shape of the backend registry
type fileConfig struct {
	ServerPort  int            `yaml:"server_port,omitempty"`
	JWTSecret   string         `yaml:"jwt_secret,omitempty"`
	InternalKey string         `yaml:"internal_key,omitempty"`
	Backends    []*typ.Backend `yaml:"backends"`
}

// AppConfig holds the backend registry and management API settings
type AppConfig struct {
	configFile string
	configDir  string
	data       fileConfig
	version    string
	mu         sync.RWMutex
}

// AppConfigOption defines a functional option for AppConfig
type AppConfigOption func(*appConfigOptions)

type appConfigOptions struct {
	configDir string
}

// WithConfigDir sets a custom config directory for AppConfig
func WithConfigDir(dir string) AppConfigOption {
	return func(opts *appConfigOptions) {
		opts.configDir = dir
	}
}

// NewAppConfig creates the application configuration, loading the backend
// registry from disk when present
func NewAppConfig(opts ...AppConfigOption) (*AppConfig, error) {
	options := &appConfigOptions{
		configDir: constant.GetConfDir(),
	}
	for _, opt := range opts {
		opt(options)
	}

	configDir := options.configDir
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.MkdirAll(constant.GetLogDir(configDir), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	ac := &AppConfig{
		configFile: constant.GetBackendsFile(configDir),
		configDir:  configDir,
	}
	if err := ac.load(); err != nil {
		return nil, err
	}
	return ac, nil
}

// ConfigDir returns the configuration directory
func (ac *AppConfig) ConfigDir() string {
	return ac.configDir
}

// ConfigFile returns the backend registry file path
func (ac *AppConfig) ConfigFile() string {
	return ac.configFile
}

// SetVersion records the running binary version
func (ac *AppConfig) SetVersion(version string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.version = version
}

// Version returns the recorded binary version
func (ac *AppConfig) Version() string {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.version
}

// load reads the registry file; a missing file yields an empty registry
func (ac *AppConfig) load() error {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	raw, err := os.ReadFile(ac.configFile)
	if err != nil {
		if os.IsNotExist(err) {
			ac.data = fileConfig{}
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", ac.configFile, err)
	}

	var data fileConfig
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse %s: %w", ac.configFile, err)
	}
	ac.data = data
	return nil
}

// Reload re-reads the registry file from disk
func (ac *AppConfig) Reload() error {
	return ac.load()
}

// Save writes the registry atomically (write temp file, rename over)
func (ac *AppConfig) Save() error {
	ac.mu.RLock()
	raw, err := yaml.Marshal(&ac.data)
	ac.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile := ac.configFile + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpFile, ac.configFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// AddBackend registers a new backend, assigning a UUID when absent
func (ac *AppConfig) AddBackend(backend *typ.Backend) error {
	if backend.Name == "" || backend.ContainerName == "" || backend.ServedModel == "" {
		return fmt.Errorf("backend name, container_name and served_model are required")
	}

	ac.mu.Lock()
	for _, b := range ac.data.Backends {
		if b.Name == backend.Name {
			ac.mu.Unlock()
			return fmt.Errorf("backend %q already exists", backend.Name)
		}
	}
	if backend.UUID == "" {
		backend.UUID = uuid.New().String()
	}
	ac.data.Backends = append(ac.data.Backends, backend)
	ac.mu.Unlock()

	return ac.Save()
}

// GetBackend resolves a backend by UUID or name
func (ac *AppConfig) GetBackend(ref string) (*typ.Backend, error) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	for _, b := range ac.data.Backends {
		if b.UUID == ref || b.Name == ref {
			return b, nil
		}
	}
	return nil, fmt.Errorf("backend not found: %s", ref)
}

// ListBackends returns all registered backends
func (ac *AppConfig) ListBackends() []*typ.Backend {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	backends := make([]*typ.Backend, len(ac.data.Backends))
	copy(backends, ac.data.Backends)
	return backends
}

// DeleteBackend removes a backend by UUID or name
func (ac *AppConfig) DeleteBackend(ref string) error {
	ac.mu.Lock()
	found := false
	kept := ac.data.Backends[:0]
	for _, b := range ac.data.Backends {
		if b.UUID == ref || b.Name == ref {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	ac.data.Backends = kept
	ac.mu.Unlock()

	if !found {
		return fmt.Errorf("backend not found: %s", ref)
	}
	return ac.Save()
}

// GetServerPort returns the management API port
func (ac *AppConfig) GetServerPort() int {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	if ac.data.ServerPort == 0 {
		return constant.DefaultServerPort
	}
	return ac.data.ServerPort
}

// GetInternalKey returns the bearer token used for authenticated backend
// calls, falling back to the development default
func (ac *AppConfig) GetInternalKey() string {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	if ac.data.InternalKey == "" {
		return constant.DefaultInternalToken
	}
	return ac.data.InternalKey
}

// GetJWTSecret returns the management API signing secret, generating and
// persisting one on first use
func (ac *AppConfig) GetJWTSecret() string {
	ac.mu.RLock()
	secret := ac.data.JWTSecret
	ac.mu.RUnlock()
	if secret != "" {
		return secret
	}

	ac.mu.Lock()
	if ac.data.JWTSecret == "" {
		ac.data.JWTSecret = uuid.New().String()
	}
	secret = ac.data.JWTSecret
	ac.mu.Unlock()

	if err := ac.Save(); err != nil {
		// Secret still works for this process; it just won't survive restart
		fmt.Fprintf(os.Stderr, "warning: failed to persist jwt secret: %v\n", err)
	}
	return secret
}

// LogFile returns the management API log file path
func (ac *AppConfig) LogFile() string {
	return filepath.Join(constant.GetLogDir(ac.configDir), constant.ServerLogFileName)
}
