package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/infergate/infergate/internal/client"
	"github.com/infergate/infergate/internal/typ"
)

// backendRequest selects a registered backend by name or UUID
type backendRequest struct {
	Backend string `json:"backend"`
}

// readinessEntry is one backend's probe verdict
type readinessEntry struct {
	Backend string              `json:"backend"`
	UUID    string              `json:"uuid"`
	Status  typ.ReadinessStatus `json:"status"`
	Detail  string              `json:"detail,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleListBackends(c *gin.Context) {
	backends := s.config.ListBackends()
	c.JSON(http.StatusOK, gin.H{
		"backends": backends,
		"count":    len(backends),
	})
}

// handleReadiness probes one backend when a reference is given, or every
// registered backend concurrently when the body is empty
func (s *Server) handleReadiness(c *gin.Context) {
	var req backendRequest
	_ = c.ShouldBindJSON(&req)

	if req.Backend != "" {
		backend, err := s.config.GetBackend(req.Backend)
		if err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{Message: err.Error(), Type: "not_found_error"},
			})
			return
		}
		c.JSON(http.StatusOK, s.probeOne(c, backend))
		return
	}

	backends := s.config.ListBackends()
	results := make([]readinessEntry, len(backends))
	var wg sync.WaitGroup
	for i, backend := range backends {
		wg.Add(1)
		go func(i int, backend *typ.Backend) {
			defer wg.Done()
			results[i] = s.probeOne(c, backend)
		}(i, backend)
	}
	wg.Wait()

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (s *Server) probeOne(c *gin.Context, backend *typ.Backend) readinessEntry {
	entry := readinessEntry{Backend: backend.Name, UUID: backend.UUID}

	if !backend.Enabled {
		entry.Status = typ.StatusStopped
		entry.Detail = "backend_disabled"
		return entry
	}

	result := s.prober.Probe(c.Request.Context(), backend)
	entry.Status = result.Status
	entry.Detail = result.Detail
	return entry
}

func (s *Server) handleTestChat(c *gin.Context) {
	s.runTest(c, "chat", s.harness.TestChat)
}

func (s *Server) handleTestEmbeddings(c *gin.Context) {
	s.runTest(c, "embeddings", s.harness.TestEmbeddings)
}

// runTest executes one functional test and records the outcome. A failed
// test is still a successful API call: the failure lives in the outcome.
func (s *Server) runTest(c *gin.Context, testType string, run func(ctx context.Context, backend *typ.Backend) (*client.Exchange, error)) {
	var req backendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Backend == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Message: "'backend' field is required", Type: "invalid_request_error"},
		})
		return
	}

	backend, err := s.config.GetBackend(req.Backend)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Message: err.Error(), Type: "not_found_error"},
		})
		return
	}

	start := time.Now()
	exchange, err := run(c.Request.Context(), backend)
	outcome := typ.TestOutcome{
		TestType:  testType,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	if err != nil {
		logrus.Warnf("Functional %s test failed for %s: %v", testType, backend.Name, err)
		outcome.Error = err.Error()
	} else {
		outcome.Success = true
		outcome.Request = exchange.Request
		outcome.Response = exchange.Response
	}

	c.JSON(http.StatusOK, outcome)
}
