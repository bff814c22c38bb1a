package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-slowlog/internal/api"
	"github.com/miradorstack/mirador-slowlog/internal/config"
	"github.com/miradorstack/mirador-slowlog/internal/metrics"
	"github.com/miradorstack/mirador-slowlog/internal/services"
	"github.com/miradorstack/mirador-slowlog/internal/store"
	"github.com/miradorstack/mirador-slowlog/internal/suggest"
	"github.com/miradorstack/mirador-slowlog/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging)
	logger.Info("starting mirador-slowlog", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	st := store.New()
	service := services.NewAnalysisService(logger, st, cfg.Ingest.BatchSize, suggest.Options{
		MinOccurrences:   cfg.Analysis.MinOccurrences,
		MinAvgDurationMS: cfg.Analysis.MinAvgDurationMS,
		TopLimit:         10,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Log files named on the command line or in config are ingested before
	// the API starts serving.
	sources := flag.Args()
	if len(sources) == 0 {
		sources = cfg.Ingest.Sources
	}
	if len(sources) > 0 {
		summary, err := service.Ingest(ctx, sources)
		if err != nil {
			logger.Error("initial ingest failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("initial ingest complete",
			slog.Int("files", summary.Files),
			slog.Int64("lines", summary.Lines),
			slog.Int64("rows", summary.Totals.Rows()),
		)
	}

	server := api.NewServer(logger, cfg.Server, cfg.Analysis, service)

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", slog.Any("error", err))
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("mirador-slowlog stopped")
}
