package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/infergate/infergate/internal/auth"
	"github.com/infergate/infergate/internal/client"
	"github.com/infergate/infergate/internal/config"
)

// Server is the management HTTP server. It owns the outbound connection
// pool and exposes readiness probing and functional testing of the
// registered backends over a small authenticated API.
type Server struct {
	config     *config.AppConfig
	jwtManager *auth.JWTManager
	engine     *gin.Engine
	httpServer *http.Server
	watcher    *config.Watcher

	pool     *client.Pool
	prober   *client.Prober
	harness  *client.Harness
	resolver *client.Resolver

	host    string
	version string
}

// ServerOption defines a functional option for Server configuration
type ServerOption func(*Server)

// WithVersion sets the version string reported by the health endpoint
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithHost sets the listen host. Empty means all interfaces.
func WithHost(host string) ServerOption {
	return func(s *Server) {
		s.host = host
	}
}

// WithProbeTimeouts overrides the prober's per-phase budgets
func WithProbeTimeouts(t client.ProbeTimeouts) ServerOption {
	return func(s *Server) {
		s.prober = client.NewProber(s.pool, s.resolver, s.config.GetInternalKey(), client.WithProbeTimeouts(t))
	}
}

// NewServer creates the management server instance
func NewServer(cfg *config.AppConfig, opts ...ServerOption) *Server {
	pool := client.NewPool(client.DefaultConnectTimeout)
	resolver := client.NewResolver()
	internalKey := cfg.GetInternalKey()

	s := &Server{
		config:     cfg,
		jwtManager: auth.NewJWTManager(cfg.GetJWTSecret()),
		engine:     gin.New(),
		pool:       pool,
		resolver:   resolver,
		prober:     client.NewProber(pool, resolver, internalKey),
		harness:    client.NewHarness(pool, resolver, internalKey),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupConfigWatcher()

	return s
}

func (s *Server) setupMiddleware() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(RequestLogger())
	s.engine.Use(CORS())
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api", s.authMiddleware())
	{
		api.GET("/backends", s.handleListBackends)
		api.POST("/readiness", s.handleReadiness)
		api.POST("/test/chat", s.handleTestChat)
		api.POST("/test/embeddings", s.handleTestEmbeddings)
	}
}

// setupConfigWatcher wires registry hot-reload. Key rotation in the
// registry file takes effect without a restart.
func (s *Server) setupConfigWatcher() {
	watcher, err := config.NewWatcher(s.config)
	if err != nil {
		logrus.Errorf("Failed to create registry watcher: %v", err)
		return
	}
	s.watcher = watcher

	watcher.AddCallback(func(cfg *config.AppConfig) {
		logrus.Debugln("Registry updated, reloading probing clients")
		s.jwtManager = auth.NewJWTManager(cfg.GetJWTSecret())
		s.prober = client.NewProber(s.pool, s.resolver, cfg.GetInternalKey())
		s.harness = client.NewHarness(s.pool, s.resolver, cfg.GetInternalKey())
	})
}

// Start runs the server until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			logrus.Warnf("Registry watcher failed to start: %v", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.config.GetServerPort())
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Management server listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.pool.Close()

	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
