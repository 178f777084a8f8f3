package client

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/infergate/infergate/internal/constant"
)

// DefaultConnectTimeout bounds TCP connection establishment to a backend
const DefaultConnectTimeout = constant.ProbeConnectTimeout * time.Second

// Pool hands out HTTP clients with per-call deadline budgets while sharing
// one transport, so all probes and tests against backend hosts reuse the
// same pooled connections. Probers and test harnesses receive a Pool
// explicitly; nothing in this package reaches for a package-level client.
type Pool struct {
	transport *http.Transport
	clients   map[time.Duration]*http.Client
	mutex     sync.RWMutex
}

// NewPool creates a connection pool with the given connect timeout
func NewPool(connectTimeout time.Duration) *Pool {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Pool{
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
		clients: make(map[time.Duration]*http.Client),
	}
}

// Client returns an HTTP client whose overall request budget is the given
// timeout. Clients are cached per budget; all share the pool's transport.
func (p *Pool) Client(timeout time.Duration) *http.Client {
	p.mutex.RLock()
	if c, exists := p.clients[timeout]; exists {
		p.mutex.RUnlock()
		return c
	}
	p.mutex.RUnlock()

	p.mutex.Lock()
	defer p.mutex.Unlock()

	// Double-check after acquiring write lock
	if c, exists := p.clients[timeout]; exists {
		return c
	}

	logrus.Debugf("Creating pooled HTTP client with budget %v", timeout)
	c := &http.Client{
		Timeout:   timeout,
		Transport: p.transport,
	}
	p.clients[timeout] = c
	return c
}

// Close releases idle connections held by the shared transport
func (p *Pool) Close() {
	p.transport.CloseIdleConnections()
}
