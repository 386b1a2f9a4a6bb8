// Command sequencer runs the backbone's central sequencing process: it
// pulls every ingress message, stamps each tick with a single virtual
// timestamp, fans the tick out to every connected strategy, and
// publishes the resulting replies in deterministic connection order.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/logging"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/ratelimit"
	"github.com/odin-trading/sequencer/internal/sequencer"
	"github.com/odin-trading/sequencer/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a sequencer config file (optional; env vars also apply)")
	flag.Parse()

	cfg, err := config.LoadSequencer(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewCore(logging.CoreConfig{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	reg := metrics.NewRegistry(cfg.Metrics.Namespace)

	conn, err := transport.Connect(transport.Options{
		URL:             cfg.Transport.URL,
		Name:            "sequencer",
		MaxReconnects:   cfg.Transport.MaxReconnects,
		ReconnectWait:   cfg.Transport.ReconnectWait,
		ReconnectJitter: 500 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect transport", zap.Error(err))
	}
	defer conn.Close()

	guard := ratelimit.NewQueueGuard(cfg.Queue.SoftThreshold, logging.ZapQueueLogger{L: logger})

	seq := sequencer.New(conn, cfg.Queue, reg, guard, logger)
	if err := seq.Start(); err != nil {
		logger.Fatal("failed to start sequencer", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go guard.StartCPUSampling(ctx, 5*time.Second)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- seq.Run(ctx)
	}()

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.ListenAddr, reg, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-runErrCh:
		if err != nil {
			logger.Error("sequencer run loop exited", zap.Error(err))
		}
		stop()
	}

	if err := seq.Stop(); err != nil {
		logger.Error("failed to stop sequencer cleanly", zap.Error(err))
	}
	logger.Info("sequencer stopped")
}

func serveMetrics(ctx context.Context, addr string, reg *metrics.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics http server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics http server error", zap.Error(err))
	}
}
