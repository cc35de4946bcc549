package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

var errRejected = errors.New("rejected by server")

// Mock OrderGateway
type fakeGateway struct {
	mu        sync.Mutex
	offline   bool
	block     bool
	dropReply int
	reject    map[string]bool
	byKey     map[string]int64
	nextID    int64
	keys      []string
	requests  []domain.OrderRequest
	orders    []domain.Order
	listErr   error
	listCalls int
	batches   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{reject: map[string]bool{}, byKey: map[string]int64{}}
}

func (g *fakeGateway) Submit(ctx context.Context, req domain.OrderRequest, key string) (int64, error) {
	g.mu.Lock()
	g.keys = append(g.keys, key)
	g.requests = append(g.requests, req)
	if g.block {
		g.mu.Unlock()
		<-ctx.Done()
		return 0, fmt.Errorf("submit: %w: %w", port.ErrConnectivity, ctx.Err())
	}
	defer g.mu.Unlock()

	if g.offline {
		return 0, fmt.Errorf("submit: %w: connection refused", port.ErrConnectivity)
	}
	if g.reject[key] {
		return 0, errRejected
	}

	id, ok := g.byKey[key]
	if !ok {
		g.nextID++
		id = g.nextID
		g.byKey[key] = id
	}
	if g.dropReply > 0 {
		g.dropReply--
		return 0, fmt.Errorf("submit: %w: reply lost", port.ErrConnectivity)
	}
	return id, nil
}

func (g *fakeGateway) ListOrders(ctx context.Context) ([]domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]domain.Order(nil), g.orders...), nil
}

func (g *fakeGateway) SetStatus(ctx context.Context, id int64, s domain.OrderStatus) (domain.OrderStatus, error) {
	return s, nil
}

// SubmitBatch answers like /pedidos/sync: per-entry ids or rejections, or
// one error for the whole call when the server is offline.
func (g *fakeGateway) SubmitBatch(ctx context.Context, entries []domain.OutboxEntry) (domain.BatchResult, error) {
	g.mu.Lock()
	g.batches++
	offline := g.offline
	g.mu.Unlock()
	if offline {
		return domain.BatchResult{}, fmt.Errorf("sync: %w: connection refused", port.ErrConnectivity)
	}

	res := domain.BatchResult{IDs: map[string]int64{}, Rejected: map[string]string{}}
	for _, e := range entries {
		id, err := g.Submit(ctx, e.Payload, e.LocalID)
		if err != nil {
			res.Rejected[e.LocalID] = err.Error()
			continue
		}
		res.IDs[e.LocalID] = id
	}
	return res, nil
}

func (g *fakeGateway) set(f func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f(g)
}

func (g *fakeGateway) submitCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

func (g *fakeGateway) serverOrders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byKey)
}

func (g *fakeGateway) lists() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls
}

// Mock Outbox
type fakeOutbox struct {
	mu      sync.Mutex
	entries []domain.OutboxEntry
	seq     int
	listErr error
}

func (o *fakeOutbox) Enqueue(ctx context.Context, localID string, req domain.OrderRequest) (domain.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	if localID == "" {
		localID = fmt.Sprintf("local-%d", o.seq)
	}
	e := domain.OutboxEntry{LocalID: localID, Payload: req}
	o.entries = append(o.entries, e)
	return e, nil
}

func (o *fakeOutbox) ListPending(ctx context.Context) ([]domain.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.listErr != nil {
		return nil, o.listErr
	}
	return append([]domain.OutboxEntry(nil), o.entries...), nil
}

func (o *fakeOutbox) Remove(ctx context.Context, localID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, e := range o.entries {
		if e.LocalID == localID {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (o *fakeOutbox) Len(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries), nil
}

var (
	_ port.OrderGateway = (*fakeGateway)(nil)
	_ port.BatchGateway = (*fakeGateway)(nil)
	_ port.Outbox       = (*fakeOutbox)(nil)
)
