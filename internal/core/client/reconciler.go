package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/cafe-pos/internal/clock"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
	"github.com/rl1809/cafe-pos/pkg/metrics"
)

// ErrEntryRejected marks an entry a batch call answered without an order id.
var ErrEntryRejected = errors.New("entry rejected by server")

const (
	DefaultSyncInterval = 5 * time.Second
	DefaultSyncTimeout  = 5 * time.Second
)

// SyncOutcome reports one outbox entry handled during a cycle. Err is nil
// when the server accepted the entry and ServerID is set.
type SyncOutcome struct {
	LocalID  string
	ServerID int64
	Err      error
}

type ReconcilerOptions struct {
	Policy  Policy
	Timeout time.Duration

	// OnSynced is called once per entry the server accepted.
	OnSynced func(localID string, serverID int64)

	// Batch, when set, sends each cycle's pending entries in a single call
	// instead of one Submit per entry.
	Batch port.BatchGateway

	Metrics *metrics.ClientMetrics
	Logger  *slog.Logger
}

// Reconciler drains the outbox through the gateway. Each entry's LocalID is
// sent as the idempotency key, so an entry resubmitted after a lost reply
// maps to the same server order.
type Reconciler struct {
	outbox  port.Outbox
	gateway port.OrderGateway
	clock   clock.Clock
	opts    ReconcilerOptions
	logger  *slog.Logger

	// cycle serializes RunOnce so an entry is never in flight twice.
	cycle sync.Mutex
}

func NewReconciler(outbox port.Outbox, gw port.OrderGateway, clk clock.Clock, opts ReconcilerOptions) *Reconciler {
	if opts.Policy.Base <= 0 {
		opts.Policy = Flat(DefaultSyncInterval)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSyncTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{outbox: outbox, gateway: gw, clock: clk, opts: opts, logger: logger}
}

// RunOnce submits every pending entry in creation order. A connectivity
// failure ends the cycle early since the remaining entries would fail the
// same way; any other failure skips just that entry.
func (r *Reconciler) RunOnce(ctx context.Context) ([]SyncOutcome, error) {
	r.cycle.Lock()
	defer r.cycle.Unlock()

	pending, err := r.outbox.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	defer r.reportPending(ctx)

	if r.opts.Batch != nil {
		return r.runBatch(ctx, pending), nil
	}

	var outcomes []SyncOutcome
	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		id, err := r.gateway.Submit(callCtx, entry.Payload, entry.LocalID)
		cancel()

		if err != nil {
			r.opts.Metrics.ObserveSync(false)
			r.logger.Warn("offline order not synced", "local_id", entry.LocalID, "err", err)
			outcomes = append(outcomes, SyncOutcome{LocalID: entry.LocalID, Err: err})
			if errors.Is(err, port.ErrConnectivity) {
				break
			}
			continue
		}

		outcomes = append(outcomes, r.acknowledge(ctx, entry.LocalID, id))
	}
	return outcomes, nil
}

// runBatch submits pending in one call. A failed call fails every entry;
// otherwise each entry is settled by the server's per-entry answer.
func (r *Reconciler) runBatch(ctx context.Context, pending []domain.OutboxEntry) []SyncOutcome {
	if len(pending) == 0 {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	res, err := r.opts.Batch.SubmitBatch(callCtx, pending)
	cancel()

	outcomes := make([]SyncOutcome, 0, len(pending))
	if err != nil {
		r.logger.Warn("offline batch not synced", "entries", len(pending), "err", err)
		for _, entry := range pending {
			r.opts.Metrics.ObserveSync(false)
			outcomes = append(outcomes, SyncOutcome{LocalID: entry.LocalID, Err: err})
		}
		return outcomes
	}

	for _, entry := range pending {
		if id, ok := res.IDs[entry.LocalID]; ok && id > 0 {
			outcomes = append(outcomes, r.acknowledge(ctx, entry.LocalID, id))
			continue
		}

		err := fmt.Errorf("%w: not acknowledged", ErrEntryRejected)
		if reason, ok := res.Rejected[entry.LocalID]; ok {
			err = fmt.Errorf("%w: %s", ErrEntryRejected, reason)
		}
		r.opts.Metrics.ObserveSync(false)
		r.logger.Warn("offline order not synced", "local_id", entry.LocalID, "err", err)
		outcomes = append(outcomes, SyncOutcome{LocalID: entry.LocalID, Err: err})
	}
	return outcomes
}

// acknowledge removes an entry the server accepted and reports it.
func (r *Reconciler) acknowledge(ctx context.Context, localID string, id int64) SyncOutcome {
	if err := r.outbox.Remove(ctx, localID); err != nil {
		// The entry is resubmitted next cycle and replays to the same id.
		r.logger.Error("synced order left in outbox", "local_id", localID, "order_id", id, "err", err)
	}
	r.opts.Metrics.ObserveSync(true)
	r.logger.Info("offline order synced", "local_id", localID, "order_id", id)
	if r.opts.OnSynced != nil {
		r.opts.OnSynced(localID, id)
	}
	return SyncOutcome{LocalID: localID, ServerID: id}
}

// Run repeats RunOnce until ctx is cancelled, starting immediately. The wait
// between cycles follows the policy, growing while cycles keep failing.
func (r *Reconciler) Run(ctx context.Context) error {
	failures := 0
	for {
		outcomes, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("outbox read failed", "err", err)
		}
		if err != nil || anyFailed(outcomes) {
			failures++
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(r.opts.Policy.Delay(failures)):
		}
	}
}

func (r *Reconciler) reportPending(ctx context.Context) {
	if r.opts.Metrics == nil {
		return
	}
	if n, err := r.outbox.Len(ctx); err == nil {
		r.opts.Metrics.SetPending(n)
	}
}

func anyFailed(outcomes []SyncOutcome) bool {
	for _, o := range outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}
