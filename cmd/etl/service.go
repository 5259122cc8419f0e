package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/drive"
	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/source"
	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/storage"
	"github.com/couchcryptid/heatspot-etl-service/internal/config"
	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	"github.com/couchcryptid/heatspot-etl-service/internal/observability"
	"github.com/couchcryptid/heatspot-etl-service/internal/pipeline"
	"github.com/couchcryptid/heatspot-etl-service/internal/synthetic"
)

func newSources(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (detections, references source.Source, err error) {
	switch cfg.SourceBackend {
	case config.BackendDrive:
		detections, err = drive.NewSource(ctx, cfg.GoogleAPIKey, cfg.DriveFolderID, cfg.SourceTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.ShapefileFolderID != "" {
			references, err = drive.NewSource(ctx, cfg.GoogleAPIKey, cfg.ShapefileFolderID, cfg.SourceTimeout, logger)
			if err != nil {
				return nil, nil, err
			}
		} else {
			logger.Warn("SHAPEFILE_FOLDER_ID not set, using fallback classification")
		}
		logger.Info("drive source enabled", "folder", cfg.DriveFolderID, "reference_folder", cfg.ShapefileFolderID)
	default:
		detections = source.NewDir(cfg.DetectionsDir)
		references = source.NewDir(cfg.ReferencesDir)
		logger.Info("local source enabled", "detections_dir", cfg.DetectionsDir, "references_dir", cfg.ReferencesDir)
	}

	if cfg.SourceCacheSize > 0 {
		detections = source.NewCachedSource(detections, cfg.SourceCacheSize, metrics)
		if references != nil {
			references = source.NewCachedSource(references, cfg.SourceCacheSize, metrics)
		}
	}
	return detections, references, nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	var store storage.Store
	switch cfg.OutputBackend {
	case config.BackendS3:
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:  cfg.S3Bucket,
			Prefix:  cfg.OutputDir,
			Region:  cfg.AWSRegion,
			Timeout: cfg.S3Timeout,
			Retries: cfg.S3Retries,
		}, logger)
		if err != nil {
			return nil, err
		}
		store = s3Store
		logger.Info("s3 output enabled", "bucket", cfg.S3Bucket, "prefix", cfg.OutputDir)
	default:
		store = storage.NewDir(cfg.OutputDir)
		logger.Info("local output enabled", "dir", cfg.OutputDir)
	}
	if cfg.OutputGzip {
		store = storage.NewGzip(store)
	}
	return store, nil
}

// service runs the pipeline and, when no real detections exist and the
// synthetic fallback is enabled, a second run over generated detections. It
// serves whichever run completed last.
type service struct {
	cfg        *config.Config
	runner     *pipeline.Runner
	references source.Source
	store      storage.Store
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu     sync.Mutex
	latest *pipeline.Runner
}

func newService(cfg *config.Config, detections, references source.Source, store storage.Store, loaders []pipeline.BatchLoader, logger *slog.Logger, metrics *observability.Metrics) *service {
	runner := pipeline.NewRunner(detections, references, store, loaders, pipeline.RunnerConfig{
		BatchSize:  cfg.BatchSize,
		Workers:    cfg.Workers,
		Version:    version,
		DataOrigin: pipeline.OriginINPE,
	}, logger, metrics)
	return &service{
		cfg:        cfg,
		runner:     runner,
		references: references,
		store:      store,
		logger:     logger,
		metrics:    metrics,
	}
}

func (s *service) run(ctx context.Context) error {
	stats, err := s.runner.Run(ctx)
	if err == nil {
		s.setLatest(s.runner)
		return nil
	}
	if !errors.Is(err, pipeline.ErrNoRecords) || !s.cfg.SyntheticFallback {
		s.logger.Error("pipeline run failed", "run_id", stats.RunID, "error", err)
		return err
	}

	s.logger.Warn("no detection records found, running over synthetic data",
		"run_id", stats.RunID, "count", s.cfg.SyntheticCount)
	now := time.Now().UTC()
	src := synthetic.NewSource(uint64(now.Unix()/86400), now, s.cfg.SyntheticCount)
	// Synthetic records are never published downstream.
	fallback := pipeline.NewRunner(src, s.references, s.store, nil, pipeline.RunnerConfig{
		BatchSize:  s.cfg.BatchSize,
		Workers:    s.cfg.Workers,
		Version:    version,
		DataOrigin: pipeline.OriginSynthetic,
	}, s.logger, s.metrics)
	if _, err := fallback.Run(ctx); err != nil {
		s.logger.Error("synthetic pipeline run failed", "error", err)
		return fmt.Errorf("synthetic run: %w", err)
	}
	s.setLatest(fallback)
	return nil
}

func (s *service) setLatest(r *pipeline.Runner) {
	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()
}

func (s *service) current() *pipeline.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return s.runner
	}
	return s.latest
}

func (s *service) CheckReadiness(ctx context.Context) error {
	return s.current().CheckReadiness(ctx)
}

func (s *service) Records() ([]domain.EnrichedRecord, bool) {
	return s.current().Records()
}

func (s *service) Statistics() (domain.RunStatistics, bool) {
	return s.current().Statistics()
}
