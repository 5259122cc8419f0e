package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/heatspot-etl-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/heatspot-etl-service/internal/adapter/kafka"
	"github.com/couchcryptid/heatspot-etl-service/internal/config"
	"github.com/couchcryptid/heatspot-etl-service/internal/observability"
	"github.com/couchcryptid/heatspot-etl-service/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A .env file is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detections, references, err := newSources(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize sources", "error", err)
		os.Exit(1)
	}
	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize output store", "error", err)
		os.Exit(1)
	}

	var loaders []pipeline.BatchLoader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	svc := newService(cfg, detections, references, store, loaders, logger, metrics)

	code := 0
	if cfg.Schedule == "" {
		if err := svc.run(ctx); err != nil {
			code = 1
		}
	} else if err := serve(ctx, cfg, svc, logger); err != nil {
		logger.Error("scheduled mode failed", "error", err)
		code = 1
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	logger.Info("shutdown complete")
	stop()
	os.Exit(code)
}

// serve runs the pipeline immediately and then on cfg.Schedule, serving health
// and results over HTTP until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, svc *service, logger *slog.Logger) error {
	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	// run logs its own failures.
	if _, err := c.AddFunc(cfg.Schedule, func() { _ = svc.run(ctx) }); err != nil {
		return fmt.Errorf("parse PIPELINE_SCHEDULE: %w", err)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("pipeline scheduled", "schedule", cfg.Schedule)
	go func() { _ = svc.run(ctx) }()
	c.Start()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("pipeline run still in progress at shutdown")
	}
	return nil
}
