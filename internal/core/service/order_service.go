package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rl1809/cafe-pos/internal/clock"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

var (
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrNotFound          = errors.New("order not found")
	ErrValidation        = errors.New("invalid request")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrPersistence       = errors.New("persistence failure")
)

const (
	maxStatusAttempts = 3
	maxBindAttempts   = 3
	maxKeyLength      = 128
)

type OrderService struct {
	repo    port.OrderRepository
	idem    port.IdempotencyRepository
	catalog *domain.Catalog
	clock   clock.Clock
	logger  *slog.Logger
}

// NewOrderService wires the order store and catalog. idem may be nil, in which
// case idempotency keys are ignored.
func NewOrderService(repo port.OrderRepository, idem port.IdempotencyRepository, catalog *domain.Catalog, clk clock.Clock, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OrderService{
		repo:    repo,
		idem:    idem,
		catalog: catalog,
		clock:   clk,
		logger:  logger,
	}
}

type SubmitResult struct {
	OrderID  int64
	Replayed bool
}

// Submit prices and persists a new order. A non-empty key collapses repeated
// submissions of the same order onto the id created by the first one. The
// key is checked in the idempotency store first and in the order store
// second, so an order whose key never got bound still replays.
func (s *OrderService) Submit(ctx context.Context, req domain.OrderRequest, key string) (SubmitResult, error) {
	if err := validateRequest(req); err != nil {
		return SubmitResult{}, err
	}

	key = strings.TrimSpace(key)
	if len(key) > maxKeyLength {
		return SubmitResult{}, fmt.Errorf("%w: idempotency key longer than %d bytes", ErrValidation, maxKeyLength)
	}
	if key == "" || s.idem == nil {
		return s.create(ctx, req, key)
	}

	id, bound, err := s.idem.LookupIdempotency(ctx, key)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: idempotency lookup: %w", ErrPersistence, err)
	}
	if bound && id > 0 {
		s.logger.Info("order replayed", "order_id", id, "idempotency_key", key)
		return SubmitResult{OrderID: id, Replayed: true}, nil
	}
	if res, ok, err := s.replayStored(ctx, key); err != nil || ok {
		return res, err
	}

	ok, err := s.idem.ReserveIdempotency(ctx, key)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: idempotency reserve: %w", ErrPersistence, err)
	}
	if !ok {
		// Lost the race to another submission; it may have finished meanwhile.
		if id, bound, err := s.idem.LookupIdempotency(ctx, key); err == nil && bound && id > 0 {
			return SubmitResult{OrderID: id, Replayed: true}, nil
		}
		if res, ok, err := s.replayStored(ctx, key); err == nil && ok {
			return res, nil
		}
		return SubmitResult{}, ErrDuplicateRequest
	}

	res, err := s.create(ctx, req, key)
	if err != nil {
		if relErr := s.idem.ReleaseIdempotency(ctx, key); relErr != nil {
			s.logger.Error("idempotency release failed", "idempotency_key", key, "err", relErr)
		}
		return SubmitResult{}, err
	}

	s.bind(ctx, key, res.OrderID)
	return res, nil
}

// replayStored looks key up in the order store and, when an order exists,
// binds it in the idempotency store and returns it as a replay.
func (s *OrderService) replayStored(ctx context.Context, key string) (SubmitResult, bool, error) {
	order, err := s.repo.FindOrderByKey(ctx, key)
	if err != nil {
		return SubmitResult{}, false, fmt.Errorf("%w: find order by key: %w", ErrPersistence, err)
	}
	if order == nil {
		return SubmitResult{}, false, nil
	}

	if s.idem != nil {
		s.bind(ctx, key, order.ID)
	}
	s.logger.Info("order replayed from store", "order_id", order.ID, "idempotency_key", key)
	return SubmitResult{OrderID: order.ID, Replayed: true}, true, nil
}

// bind records the created order under key, retrying briefly. The order
// already carries key in the order store, so a bind that keeps failing is
// logged rather than returned.
func (s *OrderService) bind(ctx context.Context, key string, orderID int64) {
	var err error
	for attempt := 1; attempt <= maxBindAttempts; attempt++ {
		if err = s.idem.BindIdempotency(ctx, key, orderID); err == nil {
			return
		}
		s.logger.Warn("idempotency bind failed", "order_id", orderID, "idempotency_key", key, "attempt", attempt, "err", err)
	}
	s.logger.Error("idempotency key left unbound", "order_id", orderID, "idempotency_key", key, "err", err)
}

func (s *OrderService) create(ctx context.Context, req domain.OrderRequest, key string) (SubmitResult, error) {
	total := req.Total
	if computed := s.catalog.Price(req.Products); computed > 0 {
		total = computed
	}

	order := domain.Order{
		Products:       append([]int64(nil), req.Products...),
		Total:          total,
		Status:         domain.OrderStatusPending,
		Mode:           req.Mode,
		CreatedAt:      s.clock.Now(),
		IdempotencyKey: key,
	}

	id, err := s.repo.CreateOrder(ctx, order)
	if errors.Is(err, port.ErrDuplicateKey) {
		// Another submission under key committed first.
		if res, ok, ferr := s.replayStored(ctx, key); ferr == nil && ok {
			return res, nil
		}
		return SubmitResult{}, ErrDuplicateRequest
	}
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: create order: %w", ErrPersistence, err)
	}

	s.logger.Info("order created", "order_id", id, "total", total, "items", len(order.Products))
	return SubmitResult{OrderID: id}, nil
}

func validateRequest(req domain.OrderRequest) error {
	if len(req.Products) == 0 {
		return fmt.Errorf("%w: productos is empty", ErrValidation)
	}
	if req.Total < 0 {
		return fmt.Errorf("%w: total must be >= 0", ErrValidation)
	}
	return nil
}

type SyncItem struct {
	Request domain.OrderRequest
	TempID  string
}

type SyncResult struct {
	IDs      map[string]int64
	Rejected map[string]string
}

// Sync submits a batch of offline orders, using each TempID as the
// idempotency key. Rejected items do not stop the batch; a persistence
// failure does, and the items before it stay committed.
func (s *OrderService) Sync(ctx context.Context, items []SyncItem) (SyncResult, error) {
	res := SyncResult{
		IDs:      make(map[string]int64, len(items)),
		Rejected: make(map[string]string),
	}

	for i, it := range items {
		r, err := s.Submit(ctx, it.Request, it.TempID)
		if err != nil {
			if errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicateRequest) {
				label := it.TempID
				if label == "" {
					label = fmt.Sprintf("#%d", i)
				}
				res.Rejected[label] = err.Error()
				continue
			}
			return res, err
		}
		if it.TempID != "" {
			res.IDs[it.TempID] = r.OrderID
		}
	}

	s.logger.Info("offline orders synced", "received", len(items), "mapped", len(res.IDs), "rejected", len(res.Rejected))
	return res, nil
}

func (s *OrderService) Get(ctx context.Context, id int64) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: get order: %w", ErrPersistence, err)
	}
	if order == nil {
		return domain.Order{}, ErrNotFound
	}
	return *order, nil
}

func (s *OrderService) List(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", ErrPersistence, err)
	}
	return orders, nil
}

// SetStatus moves an order along the lifecycle. Setting the current status
// again succeeds without a write. A missing order is reported before the
// requested status is checked.
func (s *OrderService) SetStatus(ctx context.Context, id int64, raw string) (domain.Order, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.Order{}, fmt.Errorf("%w: estado is empty", ErrValidation)
	}

	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		order, err := s.Get(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		next, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, raw)
		}
		if order.Status == next {
			return order, nil
		}
		if !order.Status.CanTransitionTo(next) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, next)
		}

		err = s.repo.UpdateStatus(ctx, id, order.Status, next)
		if err == nil {
			s.logger.Info("order status updated", "order_id", id, "from", order.Status, "to", next)
			order.Status = next
			return order, nil
		}
		if !errors.Is(err, port.ErrOptimisticLock) {
			return domain.Order{}, fmt.Errorf("%w: update status: %w", ErrPersistence, err)
		}
		s.logger.Debug("status update raced, re-reading", "order_id", id, "attempt", attempt+1)
	}

	return domain.Order{}, fmt.Errorf("%w: order %d changed concurrently", ErrIllegalTransition, id)
}
