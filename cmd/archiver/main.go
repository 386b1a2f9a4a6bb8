// Command archiver subscribes to the backbone's egress fan-out and
// appends every envelope published on it to a daily gzip-rotated
// archival log, ported from message_logger.py's receive-and-log role.
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

	"github.com/odin-trading/sequencer/internal/archive"
	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/logging"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/transport"
)

func main() {
	cfg, err := config.LoadArchiver()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewEdge(logging.EdgeConfig{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "archiver"})

	bootLog, err := logging.NewCore(logging.CoreConfig{Level: cfg.LogLevel, Development: false})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize bootstrap logger: %v\n", err)
		os.Exit(1)
	}
	defer bootLog.Sync() // nolint:errcheck

	reg := metrics.NewRegistry("archiver")

	conn, err := transport.Connect(transport.Options{
		URL:             cfg.NATSURL,
		Name:            "archiver",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
	}, bootLog)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect transport")
	}
	defer conn.Close()

	writer, err := archive.NewWriter(cfg.Directory, cfg.Prefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create archive writer")
	}

	sub := archive.NewSubscriber(writer, reg, logger)
	if err := sub.Start(conn, cfg.Subject); err != nil {
		logger.Fatal().Err(err).Msg("failed to start archive subscriber")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(ctx, cfg.MetricsListenAddr, reg, logger)

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	if err := sub.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop archive subscriber cleanly")
	}
	logger.Info().Msg("archiver stopped")
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
