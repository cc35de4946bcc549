package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

var ErrEmptyCart = errors.New("cart is empty")

const DefaultSubmitTimeout = 2 * time.Second

// Receipt describes what happened to a placed order. Queued receipts carry
// the outbox LocalID; the server id arrives later through the Reconciler.
type Receipt struct {
	OrderID int64
	LocalID string
	Queued  bool
	Total   float64
	Mode    string
}

type Checkout struct {
	gateway port.OrderGateway
	outbox  port.Outbox
	catalog *domain.Catalog
	timeout time.Duration
	logger  *slog.Logger
}

func NewCheckout(gw port.OrderGateway, outbox port.Outbox, catalog *domain.Catalog, timeout time.Duration, logger *slog.Logger) *Checkout {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Checkout{gateway: gw, outbox: outbox, catalog: catalog, timeout: timeout, logger: logger}
}

// Place submits the session's cart. When the server cannot be reached the
// order is queued in the outbox instead and the receipt says so. Rejections
// from the server are returned and leave the cart untouched.
func (c *Checkout) Place(ctx context.Context, s *Session, paymentMethod string) (Receipt, error) {
	items := s.Items()
	if len(items) == 0 {
		return Receipt{}, ErrEmptyCart
	}

	mode := s.Mode() + " - " + paymentMethod
	req := domain.OrderRequest{
		Products: items,
		Total:    c.catalog.Price(items),
		Mode:     &mode,
	}
	// Reused as the outbox id so a submit that reached the server before
	// timing out is replayed, not duplicated.
	key := uuid.NewString()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	id, err := c.gateway.Submit(callCtx, req, key)
	cancel()

	if err == nil {
		s.Clear()
		c.logger.Info("order placed", "order_id", id, "total", req.Total)
		return Receipt{OrderID: id, Total: req.Total, Mode: mode}, nil
	}
	if !errors.Is(err, port.ErrConnectivity) {
		return Receipt{}, fmt.Errorf("place order: %w", err)
	}

	offline := mode + domain.OfflineSuffix
	req.Mode = &offline
	entry, qerr := c.outbox.Enqueue(ctx, key, req)
	if qerr != nil {
		return Receipt{}, fmt.Errorf("queue offline order after %w: %w", err, qerr)
	}

	s.Clear()
	c.logger.Warn("server unreachable, order saved for later", "local_id", entry.LocalID, "err", err)
	return Receipt{LocalID: entry.LocalID, Queued: true, Total: req.Total, Mode: offline}, nil
}
