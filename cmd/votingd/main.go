package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"votesync/cmd/internal/bootstrap"
	"votesync/config"
	"votesync/observability"
	"votesync/observability/logging"
	telemetry "votesync/observability/otel"
	"votesync/services/sessiond/middleware"
	"votesync/services/sessiond/server"
	"votesync/wallet"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "votesync.toml", "path to the votesync configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("votingd: load config: %v", err)
	}

	logger := logging.Setup(logging.Options{
		Service:     "votingd",
		Environment: cfg.Logging.Environment,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		Level:       logging.ParseLevel(cfg.Logging.Level),
	})
	logger.Info("configuration loaded",
		slog.String("config", cfgPath),
		logging.MaskURL("rpc", cfg.RPCURL),
		slog.Uint64("network", cfg.ExpectedNetworkID),
		slog.String("contract", cfg.ContractAddress),
		slog.String("ledger", cfg.Ledger.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "votingd",
		Environment: cfg.Logging.Environment,
		NetworkID:   cfg.ExpectedNetworkID,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		log.Fatalf("votingd: init telemetry: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	app, err := bootstrap.Open(cfg, logger, observability.Session())
	if err != nil {
		log.Fatalf("votingd: wire session: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close session", slog.Any("error", err))
		}
	}()

	if err := app.Start(ctx); err != nil {
		if errors.Is(err, wallet.ErrNoWallet) {
			logger.Warn("no wallet available; serving read-only until a wallet appears")
		} else {
			logger.Warn("session booted degraded", slog.Any("error", err))
		}
	}

	srv, err := server.New(server.Config{
		Store:       app.Store,
		Logger:      logger,
		Auth:        middleware.NewAuthenticator(cfg.HTTP.JWTSecret, logger),
		RateLimiter: middleware.NewRateLimiter(float64(cfg.HTTP.RateLimitPerMinute), cfg.HTTP.Burst),
	})
	if err != nil {
		log.Fatalf("votingd: build server: %v", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sessiond listening", slog.String("address", cfg.HTTP.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", slog.Any("error", err))
	}
}
