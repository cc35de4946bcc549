package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/cafe-pos/internal/adapter/gateway"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/pkg/config"
	"github.com/rl1809/cafe-pos/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		keys        int
		repeats     int
		concurrency int
	)
	pflag.StringVar(&configPath, "config", "", "path to YAML config (or POS_CONFIG)")
	pflag.IntVar(&keys, "keys", 20, "distinct idempotency keys")
	pflag.IntVar(&repeats, "repeats", 5, "submissions per key")
	pflag.IntVar(&concurrency, "concurrency", 32, "in-flight requests")
	pflag.Parse()

	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Service: "pos-stress", Env: cfg.AppEnv, Level: cfg.LogLevel})

	ctx := context.Background()
	gw := gateway.NewHTTPClient(cfg.Client.ServerURL)

	before, err := gw.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("initial list: %w", err)
	}

	var (
		mu         sync.Mutex
		idsByKey   = make(map[string]map[int64]struct{}, keys)
		replays    atomic.Int32
		duplicates atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	start := time.Now()

	for k := 0; k < keys; k++ {
		key := uuid.NewString()
		req := domain.OrderRequest{Products: []int64{int64(k%15 + 1)}}
		for r := 0; r < repeats; r++ {
			g.Go(func() error {
				callCtx, cancel := context.WithTimeout(gctx, cfg.Client.SubmitTimeout)
				defer cancel()

				id, err := gw.Submit(callCtx, req, key)
				switch {
				case errors.Is(err, gateway.ErrRejected):
					// The key was still reserved by an in-flight submission.
					duplicates.Add(1)
					return nil
				case err != nil:
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				if idsByKey[key] == nil {
					idsByKey[key] = make(map[int64]struct{})
				} else {
					replays.Add(1)
				}
				idsByKey[key][id] = struct{}{}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	elapsed := time.Since(start)

	after, err := gw.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("final list: %w", err)
	}

	failed := 0
	for key, ids := range idsByKey {
		if len(ids) != 1 {
			failed++
			log.Error("key produced more than one order", "idempotency_key", key, "orders", len(ids))
		}
	}
	created := len(after) - len(before)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Keys:             %d\n", keys)
	fmt.Printf("Requests:         %d\n", keys*repeats)
	fmt.Printf("Replayed:         %d\n", replays.Load())
	fmt.Printf("Refused in-flight: %d\n", duplicates.Load())
	fmt.Printf("Orders created:   %d\n", created)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if failed > 0 || created != len(idsByKey) {
		return fmt.Errorf("FAIL: expected %d orders, got %d (%d keys split)", len(idsByKey), created, failed)
	}
	fmt.Printf("PASS: %d keys produced exactly %d orders\n", len(idsByKey), created)
	return nil
}
