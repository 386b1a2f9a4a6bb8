// Command strategy-optitrade runs the OptiTrade top-of-book quoting
// strategy as a Strategy endpoint process: it binds a synchronous
// request/reply connection to the sequencer and answers each tick with
// zero or more order actions.
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
	"github.com/odin-trading/sequencer/internal/strategies/optitrade"
	"github.com/odin-trading/sequencer/internal/strategy"
	"github.com/odin-trading/sequencer/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a strategy config file (optional; env vars also apply)")
	flag.Parse()

	cfg, err := config.LoadStrategy(*configPath)
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
		Name:            cfg.ConnectionID,
		MaxReconnects:   cfg.Transport.MaxReconnects,
		ReconnectWait:   cfg.Transport.ReconnectWait,
		ReconnectJitter: 500 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect transport", zap.Error(err))
	}
	defer conn.Close()

	handler := optitrade.New(cfg.OptiTrade, logger)
	endpoint := strategy.New(conn, cfg.ConnectionID, handler, reg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := endpoint.Start(ctx); err != nil {
		logger.Fatal("failed to start strategy endpoint", zap.Error(err))
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.ListenAddr, reg, logger)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := endpoint.Stop(); err != nil {
		logger.Error("failed to stop strategy endpoint cleanly", zap.Error(err))
	}
	logger.Info("strategy endpoint stopped")
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
