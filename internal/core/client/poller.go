package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/cafe-pos/internal/clock"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/pkg/metrics"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 5 * time.Second
)

type OrderLister interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
}

// Board is one snapshot of the order list with the views the displays use.
type Board struct {
	Orders    []domain.Order
	FetchedAt time.Time
	byID      map[int64]int
}

func NewBoard(orders []domain.Order, fetchedAt time.Time) Board {
	b := Board{
		Orders:    orders,
		FetchedAt: fetchedAt,
		byID:      make(map[int64]int, len(orders)),
	}
	for i, o := range orders {
		b.byID[o.ID] = i
	}
	return b
}

// Active lists orders staff still have to act on.
func (b Board) Active() []domain.Order {
	return b.filter(domain.Order.Active)
}

func (b Board) Preparing() []domain.Order {
	return b.withStatus(domain.OrderStatusPreparing)
}

func (b Board) Ready() []domain.Order {
	return b.withStatus(domain.OrderStatusReady)
}

func (b Board) ByID(id int64) (domain.Order, bool) {
	i, ok := b.byID[id]
	if !ok {
		return domain.Order{}, false
	}
	return b.Orders[i], true
}

func (b Board) withStatus(s domain.OrderStatus) []domain.Order {
	return b.filter(func(o domain.Order) bool { return o.Status == s })
}

func (b Board) filter(keep func(domain.Order) bool) []domain.Order {
	var out []domain.Order
	for _, o := range b.Orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

type PollerOptions struct {
	// Name labels logs and metrics, e.g. "staff" or "board".
	Name    string
	Policy  Policy
	Timeout time.Duration

	// Render receives every fresh snapshot. It is not called when a fetch
	// fails; the previous snapshot stays current.
	Render func(Board)

	Metrics *metrics.ClientMetrics
	Logger  *slog.Logger
}

// Poller keeps one viewer's snapshot fresh by fetching the full order list
// on a fixed cadence.
type Poller struct {
	source OrderLister
	clock  clock.Clock
	opts   PollerOptions
	logger *slog.Logger

	mu    sync.RWMutex
	board Board
	have  bool
}

func NewPoller(source OrderLister, clk clock.Clock, opts PollerOptions) *Poller {
	if opts.Policy.Base <= 0 {
		opts.Policy = Flat(DefaultPollInterval)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPollTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Poller{source: source, clock: clk, opts: opts, logger: logger.With("viewer", opts.Name)}
}

// Snapshot returns the latest board; false until the first fetch succeeds.
func (p *Poller) Snapshot() (Board, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.board, p.have
}

// Poll fetches once and, on success, swaps in the new board and renders it.
func (p *Poller) Poll(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	orders, err := p.source.ListOrders(callCtx)
	cancel()

	p.opts.Metrics.ObservePoll(p.opts.Name, err == nil)
	if err != nil {
		p.logger.Warn("snapshot fetch failed, keeping previous", "err", err)
		return err
	}

	board := NewBoard(orders, p.clock.Now())
	p.mu.Lock()
	p.board, p.have = board, true
	p.mu.Unlock()

	if p.opts.Render != nil {
		p.opts.Render(board)
	}
	return nil
}

// Run polls until ctx is cancelled, starting immediately.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := p.Poll(ctx); err != nil {
			failures++
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.clock.After(p.opts.Policy.Delay(failures)):
		}
	}
}
