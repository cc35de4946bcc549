package domain

import (
	"strings"
	"time"
)

type OrderStatus string

// Wire values follow the kitchen's vocabulary; English names parse as aliases.
const (
	OrderStatusPending   OrderStatus = "pendiente"
	OrderStatusPreparing OrderStatus = "preparando"
	OrderStatusReady     OrderStatus = "listo"
	OrderStatusConfirmed OrderStatus = "confirmado"
)

// transitions lists the only forward edge out of each status. Confirmed is terminal.
var transitions = map[OrderStatus]OrderStatus{
	OrderStatusPending:   OrderStatusPreparing,
	OrderStatusPreparing: OrderStatusReady,
	OrderStatusReady:     OrderStatusConfirmed,
}

var statusAliases = map[string]OrderStatus{
	"pendiente":  OrderStatusPending,
	"pending":    OrderStatusPending,
	"preparando": OrderStatusPreparing,
	"preparing":  OrderStatusPreparing,
	"listo":      OrderStatusReady,
	"ready":      OrderStatusReady,
	"confirmado": OrderStatusConfirmed,
	"confirmed":  OrderStatusConfirmed,
}

// ParseOrderStatus normalizes raw (trim + lower case) and maps it onto the closed
// status set. The second result is false for anything outside the set.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether next is reachable from s in one step.
// Staying in the same status is always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	to, ok := transitions[s]
	return ok && to == next
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

type Order struct {
	ID        int64
	Products  []int64 // repetition encodes quantity
	Total     float64
	Status    OrderStatus
	Mode      *string
	CreatedAt time.Time

	// IdempotencyKey is the key the order was first submitted under, if any.
	// It never leaves the server.
	IdempotencyKey string
}

// Active reports whether the order still belongs on staff and customer boards.
func (o Order) Active() bool {
	return !o.Status.Terminal()
}

// OrderRequest is the client-side shape of a new order, shared by direct
// submission, the offline outbox and batch sync.
type OrderRequest struct {
	Products []int64 `json:"productos" cbor:"productos"`
	Total    float64 `json:"total" cbor:"total"`
	Mode     *string `json:"modo" cbor:"modo"`
}
