// Package gateway implements port.OrderGateway over the server's HTTP API and
// over gRPC.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rl1809/cafe-pos/internal/port"
)

var (
	// ErrConnectivity is returned for network errors, timeouts and 5xx
	// responses. Callers recover by queueing the order offline.
	ErrConnectivity = port.ErrConnectivity

	// ErrRejected marks a definitive answer from the server (4xx). Retrying
	// the same request will not help.
	ErrRejected = errors.New("request rejected")
)

func connectivity(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrConnectivity, err)
}

func rejected(op string, code int, detail string) error {
	return fmt.Errorf("%s: %w: %d %s", op, ErrRejected, code, detail)
}

// isTransportError reports whether err came from the network or a deadline
// rather than from the server.
func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
