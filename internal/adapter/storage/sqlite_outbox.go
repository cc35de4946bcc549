package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/rl1809/cafe-pos/internal/clock"
	"github.com/rl1809/cafe-pos/internal/core/domain"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	local_id   TEXT NOT NULL UNIQUE,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);`

var outboxPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// Payloads are stored with Core Deterministic Encoding so identical requests
// produce identical bytes.
var payloadEncMode cbor.EncMode

func init() {
	var err error
	payloadEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
}

// SQLiteOutbox is the client's durable queue of orders the server has not
// acknowledged. It survives process restarts.
type SQLiteOutbox struct {
	pool   *sqlitex.Pool
	clock  clock.Clock
	logger *slog.Logger
	path   string
}

func OpenSQLiteOutbox(path string, clk clock.Clock, logger *slog.Logger) (*SQLiteOutbox, error) {
	if path == "" {
		return nil, fmt.Errorf("outbox: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    4,
		PrepareConn: prepareOutboxConn,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: opening %s: %w", path, err)
	}

	logger.Info("outbox opened", "path", path)
	return &SQLiteOutbox{pool: pool, clock: clk, logger: logger, path: path}, nil
}

func prepareOutboxConn(conn *sqlite.Conn) error {
	for _, pragma := range outboxPragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("outbox: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, outboxSchema, nil); err != nil {
		return fmt.Errorf("outbox: schema: %w", err)
	}
	return nil
}

func (o *SQLiteOutbox) Close() error {
	if err := o.pool.Close(); err != nil {
		return fmt.Errorf("outbox: closing %s: %w", o.path, err)
	}
	return nil
}

func (o *SQLiteOutbox) Enqueue(ctx context.Context, localID string, req domain.OrderRequest) (domain.OutboxEntry, error) {
	if localID == "" {
		localID = uuid.NewString()
	}

	payload, err := payloadEncMode.Marshal(req)
	if err != nil {
		return domain.OutboxEntry{}, fmt.Errorf("outbox: encode payload: %w", err)
	}

	conn, err := o.pool.Take(ctx)
	if err != nil {
		return domain.OutboxEntry{}, fmt.Errorf("outbox: take: %w", err)
	}
	defer o.pool.Put(conn)

	entry := domain.OutboxEntry{
		LocalID:   localID,
		Payload:   req,
		CreatedAt: o.clock.Now(),
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO outbox (local_id, payload, created_at) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{entry.LocalID, payload, entry.CreatedAt.UnixNano()},
		})
	if err != nil {
		return domain.OutboxEntry{}, fmt.Errorf("outbox: insert: %w", err)
	}

	o.logger.Info("order queued offline", "local_id", entry.LocalID, "items", len(req.Products))
	return entry, nil
}

func (o *SQLiteOutbox) ListPending(ctx context.Context) ([]domain.OutboxEntry, error) {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox: take: %w", err)
	}
	defer o.pool.Put(conn)

	var entries []domain.OutboxEntry
	err = sqlitex.Execute(conn,
		`SELECT local_id, payload, created_at FROM outbox ORDER BY seq`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				localID := stmt.ColumnText(0)
				buf := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, buf)

				var req domain.OrderRequest
				if err := cbor.Unmarshal(buf, &req); err != nil {
					// Left in place for inspection; it can never be submitted.
					o.logger.Error("outbox payload unreadable", "local_id", localID, "err", err)
					return nil
				}
				entries = append(entries, domain.OutboxEntry{
					LocalID:   localID,
					Payload:   req,
					CreatedAt: time.Unix(0, stmt.ColumnInt64(2)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("outbox: list: %w", err)
	}
	return entries, nil
}

func (o *SQLiteOutbox) Remove(ctx context.Context, localID string) error {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("outbox: take: %w", err)
	}
	defer o.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM outbox WHERE local_id = ?`, &sqlitex.ExecOptions{
		Args: []any{localID},
	})
	if err != nil {
		return fmt.Errorf("outbox: remove %s: %w", localID, err)
	}
	return nil
}

func (o *SQLiteOutbox) Len(ctx context.Context) (int, error) {
	conn, err := o.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: take: %w", err)
	}
	defer o.pool.Put(conn)

	var n int
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM outbox`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("outbox: count: %w", err)
	}
	return n, nil
}
