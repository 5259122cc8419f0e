package pipeline

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/reference"
	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/source"
	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/storage"
	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	"github.com/couchcryptid/heatspot-etl-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// StatusSourceError is recorded when the detection source cannot be listed.
const StatusSourceError = "source_error"

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	BatchSize  int
	Workers    int
	Version    string
	DataOrigin string
}

// Runner executes complete pipeline runs: load reference geometry, ingest every
// detection CSV, enrich in chunks, and write the output artifacts.
type Runner struct {
	detections source.Source
	references source.Source
	store      storage.Store
	loaders    []BatchLoader
	ingestor   *domain.Ingestor
	cfg        RunnerConfig
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock

	runMu  sync.Mutex
	ready  atomic.Bool
	mu     sync.RWMutex
	latest *results
	active *BatchProcessor
}

type results struct {
	records []domain.EnrichedRecord
	stats   domain.RunStatistics
}

// NewRunner creates a Runner. references may be nil, in which case every
// category is classified by fallback. loaders receive each enriched chunk in
// addition to the artifact writer.
func NewRunner(detections, references source.Source, store storage.Store, loaders []BatchLoader, cfg RunnerConfig, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.DataOrigin == "" {
		cfg.DataOrigin = OriginINPE
	}
	return &Runner{
		detections: detections,
		references: references,
		store:      store,
		loaders:    loaders,
		ingestor:   domain.NewIngestor(logger),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used for run timestamps.
func (r *Runner) SetClock(c clockwork.Clock) {
	r.clock = c
}

// CheckReadiness returns nil once a run has completed successfully.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no pipeline run has completed yet")
	}
	return nil
}

// Records returns the enriched detections of the latest successful run.
func (r *Runner) Records() ([]domain.EnrichedRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil, false
	}
	return r.latest.records, true
}

// Statistics returns the statistics of the latest successful run, or the
// running totals of the run in progress when none has completed.
func (r *Runner) Statistics() (domain.RunStatistics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest != nil {
		return r.latest.stats, true
	}
	if r.active != nil {
		stats := r.active.Progress()
		stats.Partial = true
		return stats, true
	}
	return domain.RunStatistics{}, false
}

// Run executes one pipeline run. Runs are serialized. The statistics artifact
// is written whatever the outcome. The returned error wraps ErrNoRecords,
// *SourceError, *OutputError or the context's error.
func (r *Runner) Run(ctx context.Context) (domain.RunStatistics, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := r.clock.Now().UTC()
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)

	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)
	logger.Info("pipeline run started", "batch_size", r.cfg.BatchSize, "workers", r.cfg.Workers, "origin", r.cfg.DataOrigin)

	index := r.buildIndex(ctx, logger)

	var (
		stats   domain.RunStatistics
		records []domain.EnrichedRecord
		report  domain.IngestReport
		runErr  error
		status  = StatusSuccess
	)

	objs, err := r.detections.List(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		runErr = ctx.Err()
		status = StatusPartial
		stats = domain.NewStatsAccumulator().Statistics()
		stats.Partial = true
	case err != nil:
		runErr = &SourceError{Source: "detections", Err: err}
		status = StatusSourceError
		stats = domain.NewStatsAccumulator().Statistics()
	default:
		files := source.WithSuffix(objs, ".csv")
		logger.Info("detection files found", "files", len(files))

		sink := &collector{}
		proc := NewBatchProcessor(domain.NewEnricher(index, nil), append([]BatchLoader{sink}, r.loaders...),
			logger, r.metrics, r.cfg.BatchSize, r.cfg.Workers)
		r.setActive(proc)
		stats, runErr = proc.Run(ctx, r.ingest(ctx, files, &report, logger))
		records = sink.records

		switch {
		case runErr != nil:
			status = StatusPartial
		case stats.Total == 0:
			status = StatusNoRecords
			runErr = ErrNoRecords
		}
	}

	stats.RunID = runID
	stats.StartedAt = start
	stats.FinishedAt = r.clock.Now().UTC()
	stats.ElapsedMS = stats.FinishedAt.Sub(start).Milliseconds()
	stats.Ingest = report
	stats.GeometryFaults = len(index.Faults())
	r.observeIngest(report)

	status, outErr := r.writeArtifacts(context.WithoutCancel(ctx), logger, status, stats, records, index)

	if status == StatusSuccess {
		r.setLatest(&results{records: records, stats: stats})
		r.ready.Store(true)
	}
	r.setActive(nil)
	r.metrics.Runs.WithLabelValues(status).Inc()
	r.metrics.RunDuration.Observe(float64(stats.ElapsedMS) / 1000)

	logger.Info("pipeline run finished",
		"status", status,
		"records", stats.Total,
		"batches", stats.Batches,
		"enrich_failures", stats.EnrichFailures,
		"elapsed_ms", stats.ElapsedMS,
	)
	return stats, errors.Join(runErr, outErr)
}

func (r *Runner) buildIndex(ctx context.Context, logger *slog.Logger) *domain.RegionIndex {
	var geoms map[domain.Category][]domain.RegionGeometry
	if r.references != nil {
		loaded, err := reference.Load(ctx, r.references, logger)
		if err != nil {
			logger.Error("reference data unavailable, using fallback classification", "error", err)
		} else {
			geoms = loaded
		}
	}

	index := domain.BuildRegionIndex(geoms)
	for _, f := range index.Faults() {
		logger.Warn("invalid reference geometry",
			"category", f.Category, "region", f.Region, "position", f.Position, "reason", f.Reason)
	}
	r.metrics.GeometryFaults.Add(float64(len(index.Faults())))
	logger.Info("region index built", "categories", index.Loaded())
	return index
}

// ingest chains the records of every file lazily. Files that cannot be opened
// or have no coordinate columns are logged and skipped.
func (r *Runner) ingest(ctx context.Context, files []source.Object, report *domain.IngestReport, logger *slog.Logger) iter.Seq[domain.DetectionRecord] {
	return func(yield func(domain.DetectionRecord) bool) {
		for _, obj := range files {
			if ctx.Err() != nil {
				return
			}
			rc, err := r.detections.Open(ctx, obj)
			if err != nil {
				logger.Error("open detection file failed", "file", obj.Name, "error", err)
				continue
			}

			stream := r.ingestor.Parse(obj.Name, rc)
			stopped := false
			for rec := range stream.Records() {
				if !yield(rec) {
					stopped = true
					break
				}
			}
			rc.Close() //nolint:errcheck // read-only

			fileReport := stream.Report()
			report.Add(fileReport)
			if err := stream.Err(); err != nil {
				logger.Warn("detection file skipped", "file", obj.Name, "error", err)
			} else {
				logger.Info("detection file ingested",
					"file", obj.Name,
					"accepted", fileReport.Accepted,
					"malformed", fileReport.Malformed,
					"out_of_bounds", fileReport.OutOfBounds,
				)
			}
			if stopped {
				return
			}
		}
	}
}

// writeArtifacts writes the dataset artifacts for successful runs and the
// statistics and summary artifacts always. It returns the final status.
func (r *Runner) writeArtifacts(ctx context.Context, logger *slog.Logger, status string, stats domain.RunStatistics, records []domain.EnrichedRecord, index *domain.RegionIndex) (string, error) {
	var outErr error
	var written []string

	put := func(name string, v any) {
		data, err := encode(v)
		if err == nil {
			err = r.store.Put(ctx, name, data)
		}
		if err != nil {
			logger.Error("artifact write failed", "artifact", name, "error", err)
			r.metrics.ArtifactWrites.WithLabelValues(name, "error").Inc()
			if outErr == nil {
				outErr = &OutputError{Artifact: name, Err: err}
			}
			return
		}
		r.metrics.ArtifactWrites.WithLabelValues(name, "success").Inc()
		written = append(written, name)
	}

	if status == StatusSuccess {
		if records == nil {
			records = []domain.EnrichedRecord{}
		}
		put(ArtifactFull, records)
		put(ArtifactDashboard, dashboardView(records))
	}
	put(ArtifactStatistics, stats)
	if outErr != nil && status == StatusSuccess {
		status = StatusOutputError
	}

	loaded := index.Loaded()
	if loaded == nil {
		loaded = []domain.Category{}
	}
	put(ArtifactSummary, ProcessingSummary{
		RunID:               stats.RunID,
		GeneratedAt:         stats.FinishedAt,
		Version:             r.cfg.Version,
		Status:              status,
		DataOrigin:          r.cfg.DataOrigin,
		Bounds:              r.ingestor.Bounds(),
		ReferenceCategories: loaded,
		Artifacts:           append([]string(nil), written...),
		Statistics:          stats,
	})
	if outErr != nil && status == StatusSuccess {
		status = StatusOutputError
	}
	return status, outErr
}

func (r *Runner) observeIngest(report domain.IngestReport) {
	r.metrics.RecordsIngested.Add(float64(report.Accepted))
	r.metrics.RecordsRejected.WithLabelValues("malformed").Add(float64(report.Malformed))
	r.metrics.RecordsRejected.WithLabelValues("out_of_bounds").Add(float64(report.OutOfBounds))
	r.metrics.RecordsRejected.WithLabelValues("header").Add(float64(report.HeaderErrors))
}

func (r *Runner) setLatest(res *results) {
	r.mu.Lock()
	r.latest = res
	r.mu.Unlock()
}

func (r *Runner) setActive(p *BatchProcessor) {
	r.mu.Lock()
	r.active = p
	r.mu.Unlock()
}
