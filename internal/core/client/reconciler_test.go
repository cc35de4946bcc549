package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/cafe-pos/internal/clock"
	"github.com/rl1809/cafe-pos/internal/core/domain"
)

func seedOutbox(ids ...string) *fakeOutbox {
	o := &fakeOutbox{}
	for _, id := range ids {
		o.Enqueue(context.Background(), id, domain.OrderRequest{Products: []int64{13}, Total: 25})
	}
	return o
}

func TestReconciler_DrainsInOrder(t *testing.T) {
	gw := newFakeGateway()
	outbox := seedOutbox("a", "b", "c")

	synced := map[string]int64{}
	r := NewReconciler(outbox, gw, clock.Real(), ReconcilerOptions{
		OnSynced: func(localID string, serverID int64) { synced[localID] = serverID },
	})

	outcomes, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for i, want := range []string{"a", "b", "c"} {
		if outcomes[i].LocalID != want || outcomes[i].Err != nil {
			t.Errorf("outcome %d: %+v", i, outcomes[i])
		}
		if gw.keys[i] != want {
			t.Errorf("expected local id %s as idempotency key, got %s", want, gw.keys[i])
		}
	}

	// Mapping is one-to-one
	seen := map[int64]bool{}
	for _, id := range synced {
		if seen[id] {
			t.Errorf("server id %d mapped twice", id)
		}
		seen[id] = true
	}
	if len(synced) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(synced))
	}
	if n, _ := outbox.Len(context.Background()); n != 0 {
		t.Errorf("expected outbox drained, got %d", n)
	}
}

func TestReconciler_OfflineLeavesEntries(t *testing.T) {
	gw := newFakeGateway()
	gw.offline = true
	outbox := seedOutbox("a", "b")
	r := NewReconciler(outbox, gw, clock.Real(), ReconcilerOptions{})

	outcomes, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Err == nil {
		t.Errorf("expected the cycle to stop at the first connectivity failure, got %+v", outcomes)
	}
	if n, _ := outbox.Len(context.Background()); n != 2 {
		t.Errorf("expected both entries kept, got %d", n)
	}
}

func TestReconciler_LostReplyDoesNotDuplicate(t *testing.T) {
	gw := newFakeGateway()
	gw.dropReply = 1
	outbox := seedOutbox("abc")

	var mu sync.Mutex
	synced := map[string]int64{}
	r := NewReconciler(outbox, gw, clock.Real(), ReconcilerOptions{
		OnSynced: func(localID string, serverID int64) {
			mu.Lock()
			synced[localID] = serverID
			mu.Unlock()
		},
	})

	// Server stored the order but the reply never arrived
	first, _ := r.RunOnce(context.Background())
	if first[0].Err == nil {
		t.Fatal("expected first cycle to fail")
	}

	second, _ := r.RunOnce(context.Background())
	if second[0].Err != nil {
		t.Fatalf("expected retry to succeed, got %v", second[0].Err)
	}

	if gw.serverOrders() != 1 {
		t.Errorf("expected exactly one server order, got %d", gw.serverOrders())
	}
	if synced["abc"] != gw.byKey["abc"] {
		t.Errorf("expected abc mapped to %d, got %d", gw.byKey["abc"], synced["abc"])
	}
}

func TestReconciler_RejectedEntrySkipped(t *testing.T) {
	gw := newFakeGateway()
	gw.reject["bad"] = true
	outbox := seedOutbox("bad", "good")
	r := NewReconciler(outbox, gw, clock.Real(), ReconcilerOptions{})

	outcomes, _ := r.RunOnce(context.Background())
	if len(outcomes) != 2 {
		t.Fatalf("expected both entries attempted, got %+v", outcomes)
	}
	if !errors.Is(outcomes[0].Err, errRejected) || outcomes[1].Err != nil {
		t.Errorf("unexpected outcomes %+v", outcomes)
	}

	pending, _ := outbox.ListPending(context.Background())
	if len(pending) != 1 || pending[0].LocalID != "bad" {
		t.Errorf("expected only the rejected entry left, got %+v", pending)
	}
}

func TestReconciler_OutboxError(t *testing.T) {
	outbox := &fakeOutbox{listErr: errors.New("disk gone")}
	r := NewReconciler(outbox, newFakeGateway(), clock.Real(), ReconcilerOptions{})

	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Error("expected outbox error to surface")
	}
}

func TestReconciler_RunBacksOffAndStops(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	gw := newFakeGateway()
	gw.offline = true
	outbox := seedOutbox("a")

	r := NewReconciler(outbox, gw, clk, ReconcilerOptions{
		Policy: Policy{Base: 5 * time.Second, Max: 20 * time.Second, Multiplier: 2},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// First cycle runs immediately and fails; next wait is 10s
	clk.WaitForTimers(1)
	if gw.submitCalls() != 1 {
		t.Fatalf("expected 1 submit, got %d", gw.submitCalls())
	}

	clk.Advance(5 * time.Second)
	if gw.submitCalls() != 1 {
		t.Fatalf("expected backoff to delay the second cycle, got %d submits", gw.submitCalls())
	}

	// Server comes back
	gw.set(func(g *fakeGateway) { g.offline = false })
	clk.Advance(5 * time.Second)
	clk.WaitForTimers(1)
	if gw.submitCalls() != 2 {
		t.Fatalf("expected second cycle after 10s, got %d submits", gw.submitCalls())
	}
	if n, _ := outbox.Len(ctx); n != 0 {
		t.Errorf("expected outbox drained, got %d", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestReconciler_BatchMode(t *testing.T) {
	gw := newFakeGateway()
	gw.reject["bad"] = true
	outbox := seedOutbox("a", "bad", "c")

	synced := map[string]int64{}
	r := NewReconciler(outbox, gw, clock.Real(), ReconcilerOptions{
		Batch:    gw,
		OnSynced: func(localID string, serverID int64) { synced[localID] = serverID },
	})

	outcomes, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if gw.batches != 1 {
		t.Errorf("expected one batch call, got %d", gw.batches)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %+v", outcomes)
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Errorf("expected a and c accepted, got %+v", outcomes)
	}
	if !errors.Is(outcomes[1].Err, ErrEntryRejected) {
		t.Errorf("expected bad to be rejected, got %v", outcomes[1].Err)
	}
	if synced["a"] == 0 || synced["c"] == 0 || synced["a"] == synced["c"] {
		t.Errorf("expected distinct ids for a and c, got %v", synced)
	}

	pending, _ := outbox.ListPending(context.Background())
	if len(pending) != 1 || pending[0].LocalID != "bad" {
		t.Errorf("expected only the rejected entry left, got %+v", pending)
	}
}

func TestReconciler_BatchModeOffline(t *testing.T) {
	gw := newFakeGateway()
	gw.offline = true
	outbox := seedOutbox("a", "b")
	r := NewReconciler(outbox, gw, clock.Real(), ReconcilerOptions{Batch: gw})

	outcomes, _ := r.RunOnce(context.Background())
	if len(outcomes) != 2 || outcomes[0].Err == nil || outcomes[1].Err == nil {
		t.Errorf("expected both entries to fail, got %+v", outcomes)
	}
	if n, _ := outbox.Len(context.Background()); n != 2 {
		t.Errorf("expected both entries kept, got %d", n)
	}

	// Nothing pending means no call at all.
	empty := NewReconciler(&fakeOutbox{}, gw, clock.Real(), ReconcilerOptions{Batch: gw})
	if outcomes, _ := empty.RunOnce(context.Background()); len(outcomes) != 0 {
		t.Errorf("expected no outcomes, got %+v", outcomes)
	}
	if gw.batches != 1 {
		t.Errorf("expected no batch call for an empty outbox, got %d", gw.batches)
	}
}
