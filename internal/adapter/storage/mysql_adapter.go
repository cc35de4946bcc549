package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

var (
	ErrOptimisticLock = port.ErrOptimisticLock
	ErrDuplicateKey   = port.ErrDuplicateKey
)

const (
	createdAtLayout = time.RFC3339Nano
	errDupEntry     = 1062
	orderColumns    = "id, productos, total, estado, modo, created_at"
)

const pedidosSchema = `
	CREATE TABLE IF NOT EXISTS pedidos (
		id         BIGINT AUTO_INCREMENT PRIMARY KEY,
		productos  TEXT NOT NULL,
		total      DOUBLE NOT NULL,
		estado     VARCHAR(32) NOT NULL,
		modo       VARCHAR(255) NULL,
		created_at VARCHAR(40) NOT NULL,
		idempotency_key VARCHAR(128) NULL,
		UNIQUE KEY uq_pedidos_idempotency_key (idempotency_key)
	)`

const addIdempotencyKeyColumn = `
	ALTER TABLE pedidos
		ADD COLUMN idempotency_key VARCHAR(128) NULL,
		ADD UNIQUE KEY uq_pedidos_idempotency_key (idempotency_key)`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the pedidos table when it does not exist yet and adds
// the idempotency_key column to tables created before it existed.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, pedidosSchema); err != nil {
		return fmt.Errorf("create pedidos table: %w", err)
	}

	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'pedidos' AND COLUMN_NAME = 'idempotency_key'`,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect pedidos table: %w", err)
	}
	if n == 0 {
		if _, err := m.db.ExecContext(ctx, addIdempotencyKeyColumn); err != nil {
			return fmt.Errorf("add idempotency_key column: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) (int64, error) {
	products := order.Products
	if products == nil {
		products = []int64{}
	}
	encoded, err := json.Marshal(products)
	if err != nil {
		return 0, fmt.Errorf("encode productos: %w", err)
	}

	var key sql.NullString
	if order.IdempotencyKey != "" {
		key = sql.NullString{String: order.IdempotencyKey, Valid: true}
	}

	result, err := m.db.ExecContext(ctx, `
		INSERT INTO pedidos (productos, total, estado, modo, created_at, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(encoded), order.Total, string(order.Status), order.Mode,
		order.CreatedAt.UTC().Format(createdAtLayout), key,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errDupEntry {
			return 0, ErrDuplicateKey
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM pedidos WHERE id = ?`, id)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &order, nil
}

func (m *MySQLAdapter) FindOrderByKey(ctx context.Context, key string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM pedidos WHERE idempotency_key = ?`, key)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order by key: %w", err)
	}
	order.IdempotencyKey = key
	return &order, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM pedidos ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (m *MySQLAdapter) UpdateStatus(ctx context.Context, id int64, from, to domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE pedidos
		SET estado = ?
		WHERE id = ? AND estado = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		products  string
		status    string
		mode      sql.NullString
		createdAt string
	)
	if err := row.Scan(&order.ID, &products, &order.Total, &status, &mode, &createdAt); err != nil {
		return domain.Order{}, err
	}

	if err := json.Unmarshal([]byte(products), &order.Products); err != nil {
		return domain.Order{}, fmt.Errorf("decode productos of order %d: %w", order.ID, err)
	}
	order.Status = domain.OrderStatus(status)
	if mode.Valid {
		order.Mode = &mode.String
	}
	t, err := time.Parse(createdAtLayout, createdAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode created_at of order %d: %w", order.ID, err)
	}
	order.CreatedAt = t
	return order, nil
}
