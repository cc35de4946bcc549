package port

import (
	"context"
	"errors"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

var (
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrDuplicateKey   = errors.New("idempotency key already used")
)

type OrderRepository interface {
	// CreateOrder persists a new order and returns the assigned id;
	// returns ErrDuplicateKey when another order holds its IdempotencyKey
	CreateOrder(ctx context.Context, order domain.Order) (int64, error)

	// FindOrderByKey returns the order created under key or nil
	FindOrderByKey(ctx context.Context, key string) (*domain.Order, error)

	// GetOrder returns the order or nil when no row matches
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)

	// ListOrders returns every order, newest id first
	ListOrders(ctx context.Context) ([]domain.Order, error)

	// UpdateStatus sets the status only while the row still holds from;
	// returns ErrOptimisticLock when no row matched
	UpdateStatus(ctx context.Context, id int64, from, to domain.OrderStatus) error
}
