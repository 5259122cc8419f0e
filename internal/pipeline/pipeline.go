package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	"github.com/couchcryptid/heatspot-etl-service/internal/observability"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize bounds how many detections are held per chunk.
const DefaultBatchSize = 50_000

// Enricher assigns region labels to one detection.
type Enricher interface {
	Enrich(rec domain.DetectionRecord) (domain.EnrichedRecord, []domain.ClassificationWarning)
}

// BatchLoader receives each enriched chunk, in input order.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.EnrichedRecord) error
}

// BatchProcessor enriches a detection stream in fixed-size chunks. Up to
// workers chunks are enriched concurrently; their partial statistics are merged
// and the chunks handed to the loaders in input order.
type BatchProcessor struct {
	enricher  Enricher
	loaders   []BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
	workers   int

	mu       sync.Mutex
	progress domain.RunStatistics
}

// NewBatchProcessor creates a BatchProcessor. Non-positive batchSize and
// workers fall back to DefaultBatchSize and 1.
func NewBatchProcessor(e Enricher, loaders []BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize, workers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = 1
	}
	return &BatchProcessor{
		enricher:  e,
		loaders:   loaders,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Progress returns the statistics merged so far. It is safe to call while Run
// is in progress.
func (p *BatchProcessor) Progress() domain.RunStatistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

type chunkResult struct {
	records  []domain.EnrichedRecord
	stats    *domain.StatsAccumulator
	duration time.Duration
}

// Run consumes records until the sequence ends or ctx is cancelled. Cancellation
// is checked between waves of chunks; on cancellation the statistics of every
// completed chunk are returned with Partial set, along with ctx's error.
func (p *BatchProcessor) Run(ctx context.Context, records iter.Seq[domain.DetectionRecord]) (domain.RunStatistics, error) {
	next, stop := iter.Pull(records)
	defer stop()

	total := domain.NewStatsAccumulator()
	p.publish(total)
	batch := 0

	for {
		if err := ctx.Err(); err != nil {
			stats := total.Statistics()
			stats.Partial = true
			p.logger.Warn("batch processing cancelled", "batches", stats.Batches, "records", stats.Total)
			return stats, err
		}

		chunks, exhausted := p.readWave(next)
		if len(chunks) == 0 {
			break
		}

		results := make([]chunkResult, len(chunks))
		var g errgroup.Group
		g.SetLimit(p.workers)
		for i, chunk := range chunks {
			g.Go(func() error {
				results[i] = p.processChunk(chunk)
				return nil
			})
		}
		_ = g.Wait() // workers never fail; per-record problems are counted

		for _, res := range results {
			batch++
			total.Merge(res.stats)
			p.publish(total)
			p.observeChunk(res)
			p.load(ctx, batch, res.records)
			p.logger.Info("batch processed",
				"batch", batch,
				"records", len(res.records),
				"total", total.Total(),
				"duration_ms", res.duration.Milliseconds(),
			)
		}

		if exhausted {
			break
		}
	}

	return total.Statistics(), nil
}

// readWave pulls up to workers chunks from next. exhausted reports whether the
// source ended while reading.
func (p *BatchProcessor) readWave(next func() (domain.DetectionRecord, bool)) ([][]domain.DetectionRecord, bool) {
	var chunks [][]domain.DetectionRecord
	for range p.workers {
		chunk := make([]domain.DetectionRecord, 0, min(p.batchSize, 4096))
		for len(chunk) < p.batchSize {
			rec, ok := next()
			if !ok {
				if len(chunk) > 0 {
					chunks = append(chunks, chunk)
				}
				return chunks, true
			}
			chunk = append(chunk, rec)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, false
}

func (p *BatchProcessor) processChunk(chunk []domain.DetectionRecord) chunkResult {
	start := time.Now()
	acc := domain.NewStatsAccumulator()
	out := make([]domain.EnrichedRecord, 0, len(chunk))

	for _, rec := range chunk {
		enriched, warnings, err := enrichRecord(p.enricher, rec)
		if err != nil {
			p.logger.Warn("enrichment failed, keeping default labels", "record_id", rec.ID, "error", err)
			acc.AddFailure()
		}
		for _, w := range warnings {
			p.logger.Warn("classification warning",
				"record_id", w.RecordID, "category", w.Category, "region", w.Region, "reason", w.Reason)
		}
		acc.AddWarnings(len(warnings))
		acc.Add(enriched)
		out = append(out, enriched)
	}
	acc.AddBatch()

	return chunkResult{records: out, stats: acc, duration: time.Since(start)}
}

func (p *BatchProcessor) load(ctx context.Context, batch int, records []domain.EnrichedRecord) {
	for _, l := range p.loaders {
		if err := l.LoadBatch(ctx, records); err != nil {
			p.logger.Error("load batch failed", "batch", batch, "records", len(records), "error", err)
			continue
		}
		p.metrics.RecordsLoaded.Add(float64(len(records)))
	}
}

func (p *BatchProcessor) publish(acc *domain.StatsAccumulator) {
	stats := acc.Statistics()
	p.mu.Lock()
	p.progress = stats
	p.mu.Unlock()
}

func (p *BatchProcessor) observeChunk(res chunkResult) {
	stats := res.stats.Statistics()
	p.metrics.BatchSize.Observe(float64(len(res.records)))
	p.metrics.BatchProcessingDuration.Observe(res.duration.Seconds())
	p.metrics.RecordsEnriched.Add(float64(stats.Total))
	p.metrics.EnrichFailures.Add(float64(stats.EnrichFailures))
	for cat, c := range stats.Categories {
		p.metrics.Classifications.WithLabelValues(string(cat), string(domain.SourcePolygon)).Add(float64(c.Classified - c.FromFallback))
		p.metrics.Classifications.WithLabelValues(string(cat), string(domain.SourceFallback)).Add(float64(c.FromFallback))
		p.metrics.Classifications.WithLabelValues(string(cat), string(domain.SourceNone)).Add(float64(c.Unclassified))
	}
}
