package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

// MemoryAdapter keeps orders and idempotency keys in process memory. It backs
// the server's --store=memory mode and tests that need a real store without
// MySQL or Redis. Nothing survives a restart.
type MemoryAdapter struct {
	mu     sync.Mutex
	orders map[int64]domain.Order
	nextID int64
	// byKey indexes orders by the idempotency key they were created under.
	byKey map[string]int64
	keys  map[string]int64
	// reserved holds when each still-unbound key was claimed.
	reserved map[string]time.Time
	now      func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		orders:   make(map[int64]domain.Order),
		byKey:    make(map[string]int64),
		keys:     make(map[string]int64),
		reserved: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[order.IdempotencyKey]; ok && order.IdempotencyKey != "" {
		return 0, ErrDuplicateKey
	}

	m.nextID++
	order.ID = m.nextID
	order.Products = append([]int64(nil), order.Products...)
	m.orders[order.ID] = order
	if order.IdempotencyKey != "" {
		m.byKey[order.IdempotencyKey] = order.ID
	}
	return order.ID, nil
}

func (m *MemoryAdapter) FindOrderByKey(ctx context.Context, key string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	o := m.orders[id]
	return &o, nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *MemoryAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryAdapter) UpdateStatus(ctx context.Context, id int64, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return ErrOptimisticLock
	}
	o.Status = to
	m.orders[id] = o
	return nil
}

func (m *MemoryAdapter) ReserveIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireReservation(key)
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = reservedMarker
	m.reserved[key] = m.now()
	return true, nil
}

func (m *MemoryAdapter) LookupIdempotency(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireReservation(key)
	id, ok := m.keys[key]
	return id, ok, nil
}

func (m *MemoryAdapter) BindIdempotency(ctx context.Context, key string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys[key] = orderID
	delete(m.reserved, key)
	return nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, key)
	delete(m.reserved, key)
	return nil
}

// expireReservation drops key when it was reserved but never bound within
// reservationTTL. Callers hold m.mu.
func (m *MemoryAdapter) expireReservation(key string) {
	at, ok := m.reserved[key]
	if ok && m.now().Sub(at) >= reservationTTL {
		delete(m.keys, key)
		delete(m.reserved, key)
	}
}
