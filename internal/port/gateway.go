package port

import (
	"context"
	"errors"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

// ErrConnectivity marks gateway failures where the server could not be
// reached or could not answer: network errors, timeouts and 5xx responses.
var ErrConnectivity = errors.New("server unreachable")

// OrderGateway is the client's view of the order server, over HTTP or gRPC.
// Transport failures wrap ErrConnectivity.
type OrderGateway interface {
	// Submit creates an order; key makes repeated submissions collapse to one order
	Submit(ctx context.Context, req domain.OrderRequest, key string) (int64, error)

	// ListOrders fetches the full order snapshot
	ListOrders(ctx context.Context) ([]domain.Order, error)

	// SetStatus moves an order to the given status
	SetStatus(ctx context.Context, id int64, status domain.OrderStatus) (domain.OrderStatus, error)
}

// BatchGateway is implemented by transports that accept many outbox entries
// in one call. Each entry's LocalID is its idempotency key.
type BatchGateway interface {
	SubmitBatch(ctx context.Context, entries []domain.OutboxEntry) (domain.BatchResult, error)
}
