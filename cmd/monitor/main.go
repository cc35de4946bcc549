package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/cafe-pos/internal/adapter/catalog"
	"github.com/rl1809/cafe-pos/internal/adapter/gateway"
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
		views      []string
		updates    map[string]string
	)
	pflag.StringVar(&configPath, "config", "", "path to YAML config (or POS_CONFIG)")
	pflag.StringSliceVar(&views, "view", []string{"staff", "board"}, "viewers to run: staff, board")
	pflag.StringToStringVar(&updates, "set", nil, "status changes to apply first, e.g. 12=preparando")
	pflag.Parse()

	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Service: "pos-monitor", Env: cfg.AppEnv, Level: cfg.LogLevel})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	gw, closeGateway, err := gateway.Dial(cfg.Client)
	if err != nil {
		return err
	}
	defer closeGateway()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	if err := applyUpdates(ctx, gw, updates, cfg.Client.PollTimeout, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	clientMetrics := metrics.NewClientMetrics(reg, "monitor")
	policy := client.Policy{
		Base:       cfg.Client.PollInterval,
		Max:        cfg.Client.BackoffMax,
		Multiplier: cfg.Client.BackoffMultiplier,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, view := range views {
		render, err := renderer(view, cat, log)
		if err != nil {
			return err
		}
		p := client.NewPoller(gw, clock.Real(), client.PollerOptions{
			Name:    view,
			Policy:  policy,
			Timeout: cfg.Client.PollTimeout,
			Render:  render,
			Metrics: clientMetrics,
			Logger:  log,
		})
		g.Go(func() error { return p.Run(gctx) })
	}

	if cfg.Client.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Client.MetricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
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

func applyUpdates(ctx context.Context, gw port.OrderGateway, updates map[string]string, timeout time.Duration, log *slog.Logger) error {
	for rawID, rawStatus := range updates {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid order id %q", rawID)
		}
		status, ok := domain.ParseOrderStatus(rawStatus)
		if !ok {
			return fmt.Errorf("unknown status %q", rawStatus)
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		got, err := gw.SetStatus(callCtx, id, status)
		cancel()
		if err != nil {
			log.Error("status change failed", "order_id", id, "status", status, "err", err)
			continue
		}
		log.Info("status changed", "order_id", id, "status", got)
	}
	return nil
}

func renderer(view string, cat *domain.Catalog, log *slog.Logger) (func(client.Board), error) {
	switch view {
	case "staff":
		return func(b client.Board) {
			for _, o := range b.Active() {
				log.Info("active order",
					"order_id", o.ID,
					"estado", o.Status,
					"total", o.Total,
					"productos", strings.Join(cat.Names(o.Products), ", "),
				)
			}
		}, nil
	case "board":
		return func(b client.Board) {
			log.Info("order board",
				"preparando", orderIDs(b.Preparing()),
				"listo", orderIDs(b.Ready()),
			)
		}, nil
	default:
		return nil, fmt.Errorf("unknown view %q", view)
	}
}

func orderIDs(orders []domain.Order) []int64 {
	out := make([]int64, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
