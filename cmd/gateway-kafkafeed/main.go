// Command gateway-kafkafeed runs the Kafka/Redpanda-sourced market-data
// gateway: it consumes normalized order-book records from a topic set
// and republishes them onto the backbone's ingress fan-in.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/gateway/kafkafeed"
	"github.com/odin-trading/sequencer/internal/logging"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/transport"
)

func main() {
	cfg, err := config.LoadKafkaFeed()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewEdge(logging.EdgeConfig{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "gateway-kafkafeed"})

	bootLog, err := logging.NewCore(logging.CoreConfig{Level: cfg.LogLevel, Development: false})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize bootstrap logger: %v\n", err)
		os.Exit(1)
	}
	defer bootLog.Sync() // nolint:errcheck

	reg := metrics.NewRegistry("gateway_kafkafeed")

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

	consumer, err := kafkafeed.New(cfg, conn, reg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build kafka feed consumer")
	}
	consumer.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(ctx, cfg.MetricsListenAddr, reg, logger)

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	consumer.Stop()
	logger.Info().Msg("kafka feed consumer stopped")
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
