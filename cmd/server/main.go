package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/cafe-pos/internal/adapter/catalog"
	"github.com/rl1809/cafe-pos/internal/adapter/handler"
	"github.com/rl1809/cafe-pos/internal/adapter/storage"
	"github.com/rl1809/cafe-pos/internal/clock"
	"github.com/rl1809/cafe-pos/internal/core/service"
	"github.com/rl1809/cafe-pos/internal/port"
	"github.com/rl1809/cafe-pos/pkg/config"
	"github.com/rl1809/cafe-pos/pkg/logger"
	"github.com/rl1809/cafe-pos/pkg/metrics"
	"github.com/rl1809/cafe-pos/pkg/shutdown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		store      string
	)
	pflag.StringVar(&configPath, "config", "", "path to YAML config (or POS_CONFIG)")
	pflag.StringVar(&store, "store", "mysql", "order store: mysql (with redis idempotency) or memory")
	pflag.Parse()

	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{Service: "pos-server", Env: cfg.AppEnv, Level: cfg.LogLevel})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	log.Info("catalog loaded", "items", len(cat.Items()))

	var (
		orders port.OrderRepository
		idem   port.IdempotencyRepository
	)
	switch store {
	case "memory":
		mem := storage.NewMemoryAdapter()
		orders, idem = mem, mem
		log.Warn("using in-memory store, orders are lost on restart")
	case "mysql":
		db, rdb, err := connect(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()
		defer rdb.Close()

		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			return err
		}
		orders, idem = mysqlAdapter, storage.NewRedisAdapter(rdb)
	default:
		return fmt.Errorf("unknown store %q", store)
	}

	orderService := service.NewOrderService(orders, idem, cat, clock.Real(), log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "server")

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler.NewHTTPHandler(orderService, cat, log).Router(serverMetrics, metrics.Handler(reg)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	handler.NewGRPCHandler(orderService, cat, log).Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown", "err", err)
		}
		log.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("connections closed")
	return nil
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*sql.DB, *redis.Client, error) {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}
	log.Info("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("connected to redis")

	return db, rdb, nil
}
