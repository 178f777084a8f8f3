package client

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/infergate/infergate/internal/constant"
)

// BackendAddress is the network location of a backend, fixed for the
// duration of one probe or test invocation
type BackendAddress struct {
	Host string
	Port int
}

// BaseURL returns the http base URL for the address
func (a BackendAddress) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", a.Host, a.Port)
}

// Resolver derives a backend's address from its container name. It covers
// two deployment topologies: on a bridge network the container name
// resolves and the backend listens on the default inference port; on a
// host network the name does not resolve and the backend is reachable only
// via loopback on its published host port.
type Resolver struct {
	lookupHost func(ctx context.Context, host string) ([]string, error)
}

// NewResolver creates a resolver backed by the system DNS
func NewResolver() *Resolver {
	return &Resolver{lookupHost: net.DefaultResolver.LookupHost}
}

// Resolve returns an address for the backend. Resolution never fails: an
// unresolvable name falls back to loopback with the host port when one is
// configured, or the default inference port as a last resort. Whether the
// address is actually reachable is the prober's verdict to make.
func (r *Resolver) Resolve(ctx context.Context, containerName string, hostPort int) BackendAddress {
	if containerName != "" {
		if _, err := r.lookupHost(ctx, containerName); err == nil {
			return BackendAddress{Host: containerName, Port: constant.DefaultInferencePort}
		}
	}

	if hostPort > 0 {
		logrus.Debugf("Container %s does not resolve, using loopback:%d", containerName, hostPort)
		return BackendAddress{Host: "127.0.0.1", Port: hostPort}
	}

	logrus.Debugf("Container %s does not resolve and no host port configured, using loopback:%d",
		containerName, constant.DefaultInferencePort)
	return BackendAddress{Host: "127.0.0.1", Port: constant.DefaultInferencePort}
}
