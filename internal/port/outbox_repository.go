package port

import (
	"context"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

type Outbox interface {
	// Enqueue durably appends an order request under localID, or under a
	// fresh id when localID is empty
	Enqueue(ctx context.Context, localID string, req domain.OrderRequest) (domain.OutboxEntry, error)

	// ListPending returns queued entries in the order they were enqueued
	ListPending(ctx context.Context) ([]domain.OutboxEntry, error)

	// Remove deletes the entry once the server acknowledged it
	Remove(ctx context.Context, localID string) error

	// Len reports how many entries are still queued
	Len(ctx context.Context) (int, error)
}
