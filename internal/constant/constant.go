package constant

import (
	"os"
	"path/filepath"
)

const (
	// DefaultInternalToken is used for authenticated backend calls when no
	// internal key is configured. Matches the development default shipped
	// with the gateway.
	DefaultInternalToken = "dev-internal-token"
)

const (
	// ConfigDirName is the main configuration directory name
	ConfigDirName = ".infergate"

	// LogDirName is the subdirectory for log files
	LogDirName = "log"

	// BackendsFileName is the backend registry file
	BackendsFileName = "backends.yaml"

	// ServerLogFileName is the management API log file
	ServerLogFileName = "infergate.log"
)

const (
	// DefaultInferencePort is the port inference containers listen on inside
	// the bridge network
	DefaultInferencePort = 8000

	// DefaultServerPort is the management API listen port
	DefaultServerPort = 9190
)

// Timeout budgets in seconds. Phases 1 and 2 of the readiness probe are
// cheap endpoints that answer in milliseconds when the server is up, so
// they get tight budgets; the generation probe and the chat test must
// tolerate large models producing a first token.
const (
	ProbeConnectTimeout = 3
	ProbeReadTimeout    = 5

	GenerationProbeReadTimeout = 30

	ChatTestReadTimeout       = 120
	EmbeddingsTestReadTimeout = 10
)

const (
	// MaxErrorBodyExcerpt bounds raw response body excerpts carried in error strings
	MaxErrorBodyExcerpt = 200

	// MaxDetailExcerpt bounds backend messages carried in readiness details
	MaxDetailExcerpt = 100
)

// GetConfDir returns the config directory path (default: ~/.infergate)
func GetConfDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home directory is not accessible
		return ConfigDirName
	}
	return filepath.Join(homeDir, ConfigDirName)
}

// GetLogDir returns the log directory path
func GetLogDir(baseDir string) string {
	return filepath.Join(baseDir, LogDirName)
}

// GetBackendsFile returns the backend registry file path
func GetBackendsFile(baseDir string) string {
	return filepath.Join(baseDir, BackendsFileName)
}
