// Command forecaster fits a set of models to every series of a panel and
// produces point forecasts, prediction intervals or cross-validation results.
//
// Each run:
//  1. Collects the panel from a source (CSV, Prometheus, VictoriaMetrics, HTTP)
//  2. Splits it into series and spreads them over a pool of workers
//  3. Forecasts every model (or cross-validates it) per series
//  4. Writes the result table as CSV or Arrow and stores it as the latest run
//
// Without -serve the forecaster runs once and exits. With -serve it repeats
// every interval and exposes results over HTTP on port 8081 (configurable):
//   - GET /runs/latest?name=<run>&format=json|csv|arrow - Latest stored run
//   - GET /healthz - Liveness
//   - GET /readyz - Ready once the first run has been stored
//   - GET /metrics - Prometheus metrics
//
// A gRPC health service is also started when -grpc-listen is set.
//
// Usage:
//
//	forecaster \
//	  -source=csv -freq=D -horizon=14 \
//	  -models=naive,seasonal_naive:7,window_average:7 \
//	  -levels=80,95 -output=forecast.csv
//
// Environment variables:
//
//	SOURCE        - Panel source: csv, prometheus, victoriametrics, http (default: csv)
//	ADAPTER_*     - Source settings, e.g. ADAPTER_PATH, ADAPTER_URL, ADAPTER_QUERY
//	MODE          - forecast or cv (default: forecast)
//	HORIZON       - Forecast horizon in steps (default: 7)
//	FREQ          - Panel frequency (default: D)
//	MODELS        - Comma-separated model list (default: naive,seasonal_naive)
//	LEVELS        - Prediction interval levels, e.g. 80,95
//	JOBS          - Worker count, 0 or less for every core (default: 1)
//	CLUSTER       - none, local, redis or http (default: none)
//	CLUSTER_NODE  - Name this node registers under with cluster redis (default: hostname)
//	STORAGE       - memory or redis (default: memory)
//	SERVE         - Run continuously (default: false)
//	INTERVAL      - Run interval in serve mode (default: 5m)
//	LOG_LEVEL     - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT    - Logging format: text, json (default: text)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/panelcast/cmd/forecaster/config"
	"github.com/HatiCode/panelcast/cmd/forecaster/logger"
	"github.com/HatiCode/panelcast/cmd/forecaster/metrics"
	"github.com/HatiCode/panelcast/cmd/forecaster/models"
	"github.com/HatiCode/panelcast/cmd/forecaster/router"
	"github.com/HatiCode/panelcast/cmd/forecaster/store"
	"github.com/HatiCode/panelcast/pkg/adapters"
	"github.com/HatiCode/panelcast/pkg/cluster"
	"github.com/HatiCode/panelcast/pkg/forecast"
	"github.com/HatiCode/panelcast/pkg/httpx"
	"github.com/HatiCode/panelcast/pkg/panel"
	"github.com/HatiCode/panelcast/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	levels, _ := config.ParseLevels(cfg.Levels)
	freq, _ := panel.ParseFreq(cfg.Freq)

	logger.Info("starting panelcast forecaster",
		"version", version,
		"run", cfg.RunName,
		"source", cfg.Source,
		"mode", cfg.Mode,
		"horizon", cfg.Horizon,
		"freq", freq,
		"levels", config.FormatLevels(levels),
		"models", cfg.Models,
	)

	adapter, err := adapters.New(cfg.Source, cfg.AdapterConfig, int(cfg.Step.Seconds()))
	if err != nil {
		logger.Error("failed to create adapter", "error", err)
		os.Exit(1)
	}

	registry := models.DefaultRegistry(cfg.BYOMURL, httpx.NewClient(30*time.Second), len(levels) > 0)
	ms, err := registry.Parse(cfg.Models, logger)
	if err != nil {
		logger.Error("failed to parse models", "error", err, "available", registry.Kinds())
		os.Exit(1)
	}

	engineOpts, mgr, err := engineOptions(cfg)
	if err != nil {
		logger.Error("failed to create cluster manager", "error", err)
		os.Exit(1)
	}

	runStore, err := store.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if closer, ok := runStore.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
	}

	job := Job{
		Mode:         forecast.Mode(cfg.Mode),
		Horizon:      cfg.Horizon,
		TestSize:     cfg.TestSize,
		InputSize:    cfg.InputSize,
		Freq:         freq,
		Levels:       levels,
		XReg:         cfg.XReg,
		Output:       cfg.Output,
		OutputFormat: cfg.OutputFormat,
		Window:       cfg.Window,
	}

	m := metrics.New(prometheus.DefaultRegisterer, cfg.RunName)
	f := New(cfg.RunName, adapter, ms, runStore, job, logger, m, engineOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	leave, err := joinCluster(ctx, mgr, cfg, logger)
	if err != nil {
		logger.Error("failed to join cluster", "error", err, "address", cfg.ClusterAddress)
		os.Exit(1)
	}
	defer leave()

	if !cfg.Serve {
		if _, err := f.Tick(ctx); err != nil {
			logger.Error("forecast failed", "error", err)
			leave()
			cancel()
			os.Exit(1)
		}
		return
	}

	serve(ctx, cfg, f, runStore, logger)
}

// engineOptions selects worker sizing: a fixed job count, or a cluster manager.
// The manager is nil for a fixed job count.
func engineOptions(cfg *config.Config) ([]forecast.Option, cluster.Manager, error) {
	if cfg.Cluster == "none" {
		return []forecast.Option{forecast.WithJobs(cfg.Jobs)}, nil, nil
	}

	mgr, err := cluster.New(cfg.Cluster, cluster.Options{
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		CPUPath:       cfg.ClusterCPUPath,
		Timeout:       10 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	return []forecast.Option{forecast.WithCluster(cfg.ClusterAddress, mgr)}, mgr, nil
}

// serve runs the forecast loop with the HTTP API, and the gRPC health service
// when configured, until ctx is canceled or a server fails.
func serve(ctx context.Context, cfg *config.Config, f *Forecaster, runStore storage.Store, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		healthServer := health.NewServer()
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		f.OnStored(func(storage.Run) {
			healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		})

		grpcServer = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer)

		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			logger.Error("failed to listen", "error", err, "address", cfg.GRPCListen)
			os.Exit(1)
		}
		go func() {
			logger.Info("grpc health server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc server failed", "error", err)
				cancel()
			}
		}()
	}

	staleAfter := 2 * cfg.Interval // a run is stale if older than two intervals
	mux := router.SetupRoutes(runStore, staleAfter, f.Ready, prometheus.DefaultGatherer, logger)
	handler := httpx.Chain(mux, httpx.RecoveryMiddleware(logger), httpx.LoggingMiddleware(logger))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	go func() {
		if err := f.Run(ctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("forecast loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
