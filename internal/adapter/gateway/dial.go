package gateway

import (
	"github.com/rl1809/cafe-pos/internal/port"
	"github.com/rl1809/cafe-pos/pkg/config"
)

// Dial picks the transport from cfg: gRPC when a target is configured, the
// HTTP API otherwise. The returned close function releases the connection.
func Dial(cfg config.ClientConfig) (port.OrderGateway, func() error, error) {
	if cfg.GRPCTarget != "" {
		c, err := NewGRPCClient(cfg.GRPCTarget)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
	return NewHTTPClient(cfg.ServerURL), func() error { return nil }, nil
}
