package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/cafepos"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := NewMySQLAdapter(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

func newTestOrder() domain.Order {
	mode := "mesa 4"
	return domain.Order{
		Products:  []int64{1, 4, 4},
		Total:     167,
		Status:    domain.OrderStatusPending,
		Mode:      &mode,
		CreatedAt: time.Now().Truncate(time.Microsecond),
	}
}

func TestCreateOrder_Success(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	order := newTestOrder()
	id, err := adapter.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM pedidos WHERE id = ?`, id)

	got, err := adapter.GetOrder(ctx, id)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got == nil {
		t.Fatal("order not found in database")
	}
	if len(got.Products) != 3 || got.Products[1] != 4 {
		t.Errorf("unexpected productos %v", got.Products)
	}
	if got.Total != 167 || got.Status != domain.OrderStatusPending {
		t.Errorf("unexpected order %+v", got)
	}
	if got.Mode == nil || *got.Mode != "mesa 4" {
		t.Errorf("expected modo to round-trip, got %v", got.Mode)
	}
	if !got.CreatedAt.Equal(order.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", order.CreatedAt, got.CreatedAt)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	got, err := NewMySQLAdapter(db).GetOrder(context.Background(), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil order, got %+v", got)
	}
}

func TestListOrders_NewestFirst(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	first, _ := adapter.CreateOrder(ctx, newTestOrder())
	second, _ := adapter.CreateOrder(ctx, newTestOrder())
	defer db.ExecContext(ctx, `DELETE FROM pedidos WHERE id IN (?, ?)`, first, second)

	orders, err := adapter.ListOrders(ctx)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}

	pos := map[int64]int{}
	for i, o := range orders {
		pos[o.ID] = i
	}
	if pos[second] > pos[first] {
		t.Errorf("expected order %d before %d", second, first)
	}
}

func TestUpdateStatus_OptimisticLock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	id, err := adapter.CreateOrder(ctx, newTestOrder())
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM pedidos WHERE id = ?`, id)

	if err := adapter.UpdateStatus(ctx, id, domain.OrderStatusPending, domain.OrderStatusPreparing); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// Stale expected status must not overwrite
	err = adapter.UpdateStatus(ctx, id, domain.OrderStatusPending, domain.OrderStatusPreparing)
	if !errors.Is(err, ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}

	got, _ := adapter.GetOrder(ctx, id)
	if got.Status != domain.OrderStatusPreparing {
		t.Errorf("expected status preparando, got %s", got.Status)
	}
}

func TestUpdateStatus_Concurrent(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	id, err := adapter.CreateOrder(ctx, newTestOrder())
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM pedidos WHERE id = ?`, id)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if adapter.UpdateStatus(ctx, id, domain.OrderStatusPending, domain.OrderStatusPreparing) == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 winning update, got %d", successCount.Load())
	}
}

func TestCreateOrder_DuplicateKey(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	key := fmt.Sprintf("test-key-%d", time.Now().UnixNano())

	order := newTestOrder()
	order.IdempotencyKey = key
	id, err := adapter.CreateOrder(ctx, order)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM pedidos WHERE id = ?`, id)

	if _, err := adapter.CreateOrder(ctx, order); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := adapter.FindOrderByKey(ctx, key)
	if err != nil {
		t.Fatalf("FindOrderByKey failed: %v", err)
	}
	if got == nil || got.ID != id {
		t.Errorf("expected order %d for key, got %+v", id, got)
	}

	if missing, err := adapter.FindOrderByKey(ctx, key+"-other"); err != nil || missing != nil {
		t.Errorf("expected nil for unknown key, got %+v err=%v", missing, err)
	}

	// Orders without a key never collide with each other.
	a, errA := adapter.CreateOrder(ctx, newTestOrder())
	b, errB := adapter.CreateOrder(ctx, newTestOrder())
	defer db.ExecContext(ctx, `DELETE FROM pedidos WHERE id IN (?, ?)`, a, b)
	if errA != nil || errB != nil {
		t.Errorf("expected keyless inserts to succeed, got %v / %v", errA, errB)
	}
}

func TestGetOrder_MalformedCreatedAt(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)

	id, err := adapter.CreateOrder(ctx, newTestOrder())
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM pedidos WHERE id = ?`, id)

	db.ExecContext(ctx, `UPDATE pedidos SET created_at = 'ayer' WHERE id = ?`, id)

	if _, err := adapter.GetOrder(ctx, id); err == nil {
		t.Error("expected an error for a malformed created_at")
	}
}
