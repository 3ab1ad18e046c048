// Command forecaster runs the runrate forecasting service.
//
// For every request the forecaster normalizes the submitted series, backtests
// each method in the model catalog against a holdout of recent observations,
// optionally grid-searching its hyperparameters, and forecasts with the
// winner refit on the full series. Finished outcomes are cached by a
// fingerprint of the request.
//
// The forecaster serves an HTTP API on port 8000 (configurable):
//   - POST /forecast, /forecast-with-grid-search - JSON series
//   - POST /upload-csv                           - CSV series
//   - POST /generate-report                      - CSV report of a forecast
//   - GET  /healthz, /metrics
//
// and a gRPC health service with reflection on port 50051 for orchestrators.
//
// Usage:
//
//	forecaster \
//	  -listen=:8000 \
//	  -storage=redis -redis-addr=redis:6379 \
//	  -workers=4 -request-timeout=30s
//
// See package config for the full list of flags and environment variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/runrate/cmd/forecaster/config"
	"github.com/HatiCode/runrate/cmd/forecaster/logger"
	"github.com/HatiCode/runrate/cmd/forecaster/metrics"
	"github.com/HatiCode/runrate/cmd/forecaster/router"
	"github.com/HatiCode/runrate/pkg/engine"
	"github.com/HatiCode/runrate/pkg/httpx"
	"github.com/HatiCode/runrate/pkg/models"
	"github.com/HatiCode/runrate/pkg/storage"
	tlsconfig "github.com/HatiCode/runrate/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

// writeMargin is added to the request timeout so handlers can still report
// a timeout before the server drops the connection.
const writeMargin = 5 * time.Second

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting runrate forecaster",
		"version", version,
		"storage", cfg.Storage,
		"workers", cfg.Workers,
		"request_timeout", cfg.RequestTimeout,
	)

	catalog := models.DefaultCatalog()
	m := metrics.New(prometheus.DefaultRegisterer)

	store, healthCheck, closeStore, err := newStore(cfg, log)
	if err != nil {
		log.Error("failed to create outcome store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	eng := engine.New(catalog,
		engine.WithWorkers(cfg.Workers),
		engine.WithLogger(log),
		engine.WithObserver(m),
	)
	svc := NewService(eng, store, cfg.RequestTimeout, log, m)

	mux := router.SetupRoutes(router.Config{
		Forecaster:     svc,
		Metrics:        m,
		MaxUploadBytes: cfg.MaxUploadBytes,
		HealthCheck:    healthCheck,
		Logger:         log,
	})
	handler := httpx.Chain(mux,
		httpx.RequestIDMiddleware(),
		httpx.RecoveryMiddleware(log),
		httpx.LoggingMiddleware(log),
	)

	httpServer := httpx.NewServer(cfg.Listen, handler, cfg.RequestTimeout+writeMargin, log)

	var grpcOpts []grpc.ServerOption
	if cfg.TLS.Enabled {
		tlsCfg, err := tlsconfig.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			log.Error("failed to load TLS configuration", "error", err)
			os.Exit(1)
		}
		httpServer.SetTLSConfig(tlsCfg)
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
		log.Info("TLS enabled", "mutual", cfg.TLS.MutualTLS())
	}

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}

		grpcServer = grpc.NewServer(grpcOpts...)
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		go func() {
			log.Info("grpc health server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil {
				serverErr <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	log.Info("shutting down")

	if grpcServer != nil {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}

	if err := httpServer.Stop(cfg.ShutdownTimeout); err != nil {
		log.Error("server shutdown failed", "error", err)
		exitCode = 1
	}

	closeStore()
	log.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// newStore builds the outcome cache named by cfg.Storage. It returns the
// store, a readiness check for /healthz and a release function that is safe
// to call more than once.
func newStore(cfg *config.Config, log *slog.Logger) (storage.Store, func(context.Context) error, func(), error) {
	switch cfg.Storage {
	case config.StorageRedis:
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis store: %w", err)
		}
		log.Info("using redis outcome cache", "address", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.CacheTTL)

		release := func() {
			if err := rs.Close(); err != nil {
				log.Error("failed to close redis store", "error", err)
			}
		}
		return rs, rs.Ping, release, nil

	case config.StorageNone:
		log.Info("outcome cache disabled")
		return storage.NopStore{}, nil, func() {}, nil

	default:
		ms := storage.NewMemoryStoreWithTTL(cfg.CacheTTL, 0)
		log.Info("using in-memory outcome cache", "ttl", cfg.CacheTTL)
		return ms, nil, ms.Stop, nil
	}
}
