package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/cafe-pos/internal/adapter/catalog"
	"github.com/rl1809/cafe-pos/internal/adapter/contracts"
	"github.com/rl1809/cafe-pos/internal/adapter/gateway"
	"github.com/rl1809/cafe-pos/internal/adapter/storage"
	"github.com/rl1809/cafe-pos/internal/clock"
	"github.com/rl1809/cafe-pos/internal/core/client"
	"github.com/rl1809/cafe-pos/internal/core/domain"
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
		items      []int64
		takeaway   bool
		payment    string
		syncOnly   bool
		batch      bool
	)
	pflag.StringVar(&configPath, "config", "", "path to YAML config (or POS_CONFIG)")
	pflag.Int64SliceVar(&items, "items", nil, "product ids to order, repeated for quantity (e.g. 1,1,13)")
	pflag.BoolVar(&takeaway, "takeaway", false, "order to take away instead of dining in")
	pflag.StringVar(&payment, "payment", "Efectivo", "payment method")
	pflag.BoolVar(&syncOnly, "sync-only", false, "skip placing an order and only drain the outbox")
	pflag.BoolVar(&batch, "batch", false, "drain the outbox through one /pedidos/sync call per cycle (HTTP only)")
	pflag.Parse()

	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Service: "pos-kiosk", Env: cfg.AppEnv, Level: cfg.LogLevel})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	gw, closeGateway, err := gateway.Dial(cfg.Client)
	if err != nil {
		return err
	}
	defer closeGateway()

	clk := clock.Real()
	outbox, err := storage.OpenSQLiteOutbox(cfg.Client.OutboxPath, clk, log)
	if err != nil {
		return err
	}
	defer outbox.Close()

	reg := prometheus.NewRegistry()
	clientMetrics := metrics.NewClientMetrics(reg, "kiosk")

	cat, err := loadCatalog(ctx, gw, cfg, log)
	if err != nil {
		return err
	}

	if !syncOnly && len(items) > 0 {
		session := client.NewSession()
		if takeaway {
			session.SetMode(client.ModeTakeaway)
		}
		for _, id := range items {
			if _, ok := cat.Lookup(id); !ok {
				log.Warn("unknown product id, the server will not price it", "product_id", id)
			}
			session.Add(id)
		}

		log.Info("cart ready", "items", len(session.Items()), "total", session.Total(cat), "mode", session.Mode())

		checkout := client.NewCheckout(gw, outbox, cat, cfg.Client.SubmitTimeout, log)
		receipt, err := checkout.Place(ctx, session, payment)
		if err != nil {
			return err
		}
		if receipt.Queued {
			log.Info("saved for later", "local_id", receipt.LocalID, "total", receipt.Total, "mode", receipt.Mode)
		} else {
			log.Info("order sent", "order_id", receipt.OrderID, "total", receipt.Total, "mode", receipt.Mode)
		}
	}

	var batchGateway port.BatchGateway
	if batch {
		bg, ok := gw.(port.BatchGateway)
		if !ok {
			return errors.New("--batch needs the HTTP transport; unset the gRPC target")
		}
		batchGateway = bg
	}

	reconciler := client.NewReconciler(outbox, gw, clk, client.ReconcilerOptions{
		Policy: client.Policy{
			Base:       cfg.Client.SyncInterval,
			Max:        cfg.Client.BackoffMax,
			Multiplier: cfg.Client.BackoffMultiplier,
		},
		Timeout: cfg.Client.SyncTimeout,
		OnSynced: func(localID string, serverID int64) {
			log.Info("offline order confirmed", "local_id", localID, "order_id", serverID)
		},
		Batch:   batchGateway,
		Metrics: clientMetrics,
		Logger:  log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reconciler.Run(gctx) })

	if cfg.Client.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Client.MetricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", "addr", cfg.Client.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// loadCatalog prefers the server's menu so client-side totals match it and
// falls back to the local copy when the server is unreachable.
func loadCatalog(ctx context.Context, gw port.OrderGateway, cfg config.Config, log *slog.Logger) (*domain.Catalog, error) {
	if hc, ok := gw.(*gateway.HTTPClient); ok {
		callCtx, cancel := context.WithTimeout(ctx, cfg.Client.SubmitTimeout)
		menu, err := hc.Menu(callCtx)
		cancel()
		if err == nil && len(menu) > 0 {
			return contracts.NewCatalog(menu), nil
		}
		log.Warn("menu unavailable, using local catalog", "err", err)
	}
	return catalog.Load(cfg.CatalogPath)
}
