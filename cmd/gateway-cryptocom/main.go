// Command gateway-cryptocom runs the Crypto.com Exchange-style market
// data and order-execution gateway: it bridges an external exchange's
// WebSocket feeds to the backbone's ingress/egress fan-in/fan-out.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"github.com/rs/zerolog"

	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/gateway/cryptocom"
	"github.com/odin-trading/sequencer/internal/logging"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/transport"
)

func main() {
	cfg, err := config.LoadCryptocom()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewEdge(logging.EdgeConfig{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "gateway-cryptocom"})

	// transport.Connect logs its own connection events through zap, per
	// the deterministic-core/edge split; a quiet core logger is enough
	// here since the gateway's own operational logging is on zerolog.
	bootLog, err := logging.NewCore(logging.CoreConfig{Level: cfg.LogLevel, Development: false})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize bootstrap logger: %v\n", err)
		os.Exit(1)
	}
	defer bootLog.Sync() // nolint:errcheck

	reg := metrics.NewRegistry("gateway_cryptocom")

	conn, err := transport.Connect(transport.Options{
		URL:             cfg.NATSURL,
		Name:            cfg.ConnectionID,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
	}, bootLog)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect transport")
	}
	defer conn.Close()

	gw := cryptocom.New(cfg, conn, reg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start gateway")
	}

	go serveMetrics(ctx, cfg.MetricsListenAddr, reg, logger)

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	if err := gw.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop gateway cleanly")
	}
	logger.Info().Msg("gateway stopped")
}

func serveMetrics(ctx context.Context, addr string, reg *metrics.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics http server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics http server error")
	}
}
