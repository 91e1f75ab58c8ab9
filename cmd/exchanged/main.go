// Command exchanged wires the exchange composition root to an HTTP/WS
// surface and a Prometheus metrics endpoint, reading configuration from
// .env/environment per the teacher's cmd/node/main.go pattern.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/api"
	"github.com/mn-exchange/engine/internal/catalog"
	"github.com/mn-exchange/engine/internal/config"
	"github.com/mn-exchange/engine/internal/exchange"
	"github.com/mn-exchange/engine/internal/telemetry"
)

func main() {
	cfg := config.LoadFromEnv("")

	logger, err := telemetry.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("exchanged_starting", zap.String("data_dir", cfg.DataDir))

	reg := catalog.NewRegistry()
	if err := config.LoadSymbols(cfg.SymbolsFile, reg); err != nil {
		logger.Fatal("load_symbols_failed", zap.Error(err))
	}
	logger.Info("symbols_loaded", zap.Int("count", len(reg.List())))

	ex, err := exchange.New(reg, exchange.Options{
		DataDir:       cfg.DataDir,
		ReadModelPath: cfg.ReadModelPath,
		RingCapacity:  cfg.RingCapacity,
		Log:           logger,
	})
	if err != nil {
		logger.Fatal("exchange_init_failed", zap.Error(err))
	}
	defer ex.Close()

	if lastSeq, count, err := ex.Replay(); err != nil {
		logger.Fatal("replay_failed", zap.Error(err))
	} else {
		logger.Info("replay_complete", zap.Uint64("last_seq", lastSeq), zap.Int("records", count))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := ex.Run(ctx); err != nil {
			logger.Error("exchange_run_stopped", zap.Error(err))
		}
	}()

	apiServer := api.NewServer(ex, logger)
	go func() {
		if err := apiServer.Start(cfg.ListenAddr); err != nil && ctx.Err() == nil {
			logger.Fatal("api_server_failed", zap.Error(err))
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(ex.Metrics.Registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, metricsMux); err != nil && ctx.Err() == nil {
			logger.Error("metrics_server_failed", zap.Error(err))
		}
	}()

	logger.Info("exchanged_ready", zap.String("api_addr", cfg.ListenAddr), zap.String("metrics_addr", cfg.MetricsAddr))

	<-ctx.Done()
	logger.Info("exchanged_shutting_down")
}
