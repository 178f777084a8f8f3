package client

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// isTimeout reports whether a transport error is a connect/read timeout,
// including a context deadline hit mid-request
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isConnRefused reports whether a transport error is a refused connection
func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
