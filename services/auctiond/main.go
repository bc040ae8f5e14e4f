package auctiond

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nhbmarket/crypto"
	"nhbmarket/observability"
	"nhbmarket/observability/logging"
	telemetry "nhbmarket/observability/otel"
)

const shutdownTimeout = 10 * time.Second

// Main loads configuration, opens storage and serves the market API until
// SIGINT or SIGTERM.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/auctiond/config.yaml", "path to auctiond configuration (.yaml or .toml)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NHB_ENV"))
	logger := logging.Setup("auctiond", env)

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(cfg.Telemetry, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	params, err := cfg.Auction.Params()
	if err != nil {
		return err
	}
	treasury, err := crypto.ParseAddress(cfg.Fees.Treasury)
	if err != nil {
		return fmt.Errorf("fees treasury: %w", err)
	}
	if cfg.Storage.Engine != "memory" {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	backend, err := OpenBackend(cfg.Storage)
	if err != nil {
		return err
	}
	defer backend.Close()

	eventLog, err := OpenEventLog(cfg.EventLog.Path)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer eventLog.Close()

	metrics := observability.NewAuctionMetrics("nhbmarket")
	market, err := NewMarket(MarketOptions{
		Backend:     backend,
		EventLog:    eventLog,
		Stream:      NewStreamHub(cfg.EventLog.StreamHistory),
		Metrics:     metrics,
		Logger:      logger,
		Params:      params,
		PlatformBps: cfg.Fees.PlatformBps,
		Treasury:    treasury,
	})
	if err != nil {
		return fmt.Errorf("build market: %w", err)
	}
	if err := market.ApplyGenesis(context.Background(), cfg.Admins, cfg.Genesis); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	auth := NewAuthenticator(cfg.Auth, logger)
	limiter := NewRateLimiter(cfg.RateLimit, metrics)
	server := NewServer(market, auth, limiter, metrics, eventLog, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server.Routes(), "auctiond"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("auctiond listening",
			slog.String("component", "auctiond"),
			slog.String("listen", cfg.ListenAddress),
			slog.String("storage", cfg.Storage.Engine))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		logger.Info("shutting down auctiond", slog.String("component", "auctiond"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func telemetryConfig(cfg TelemetryConfig, env string) telemetry.Config {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	insecure := cfg.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	return telemetry.Config{
		ServiceName: "auctiond",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Metrics,
		Traces:      cfg.Traces,
	}
}
