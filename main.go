package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cache-traffic-lab/api"
	"cache-traffic-lab/backend"
	"cache-traffic-lab/benchmark"
	"cache-traffic-lab/cacheaside"
	"cache-traffic-lab/config"
	"cache-traffic-lab/logger"
	"cache-traffic-lab/selector"
	"cache-traffic-lab/tracing"
	"cache-traffic-lab/workload"
)

const shutdownTimeout = 10 * time.Second

func main() {
	mode := flag.String("mode", "serve", "serve (HTTP API + traffic generator) or bench (scenario comparison)")
	prefill := flag.Bool("prefill", true, "bench: write every key before each run")
	missLatency := flag.Bool("miss-latency", false, "bench: keep the simulated source latency on misses")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		// Not fatal: the process environment is enough.
		fmt.Fprintln(os.Stderr, "no .env file found, using environment")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Init("cache-traffic-lab")
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.Warn("tracing shutdown", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "serve":
		err = serve(ctx, cfg)
	case "bench":
		err = bench(ctx, cfg, *prefill, *missLatency)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Error("exiting", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("main")

	sel := selector.New(selector.OptionsFromConfig(cfg))
	if err := sel.Negotiate(ctx); err != nil {
		return fmt.Errorf("negotiate backend: %w", err)
	}
	defer sel.Close()

	svc := cacheaside.New(sel, cacheaside.OptionsFromConfig(cfg))
	traffic, err := workload.NewGenerator(svc, workload.TrafficConfigFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("traffic generator: %w", err)
	}
	defer traffic.Stop()

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	hub := api.NewHub()
	go hub.Run(hubCtx)
	traffic.Subscribe(hub.Publish)

	if cfg.TrafficAutostart {
		traffic.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.New(svc, sel, traffic, hub, cfg.APIRateLimit, cfg.APIRateLimitBurst).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "backend", sel.Name(), "traffic", traffic.Running())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	traffic.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func bench(ctx context.Context, cfg *config.Config, prefill, missLatency bool) error {
	opts := selector.OptionsFromConfig(cfg)
	open := func(nearCache bool) func(context.Context) (backend.Backend, error) {
		return func(ctx context.Context) (backend.Backend, error) {
			o := opts
			o.NearCache = nearCache
			sel := selector.New(o)
			if err := sel.Negotiate(ctx); err != nil {
				return nil, err
			}
			return sel, nil
		}
	}

	cacheOpts := cacheaside.OptionsFromConfig(cfg)
	if !missLatency {
		cacheOpts.MissLatencyMin, cacheOpts.MissLatencyMax = 0, 0
	}

	suite := &benchmark.Suite{
		Scenarios: benchmark.DefaultScenarios(),
		Strategies: []benchmark.Strategy{
			{Name: "negotiated backend", Open: open(false)},
			{Name: "backend + near cache", Open: open(true)},
		},
		Cache:   cacheOpts,
		Prefill: prefill,
	}

	results, err := suite.Run(ctx)
	benchmark.PrintComparison(os.Stdout, suite.Scenarios, results)
	return err
}
