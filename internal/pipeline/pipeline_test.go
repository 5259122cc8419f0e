package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"testing"

	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	"github.com/couchcryptid/heatspot-etl-service/internal/observability"
	"github.com/couchcryptid/heatspot-etl-service/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

var satellites = []string{"AQUA_M-T", "NOAA-20", "TERRA_M-T"}

// detections yields n synthetic records whose satellite cycles through satellites.
func detections(n int) iter.Seq[domain.DetectionRecord] {
	return func(yield func(domain.DetectionRecord) bool) {
		for i := range n {
			rec := domain.DetectionRecord{
				ID:        fmt.Sprintf("r%06d", i),
				Latitude:  -10,
				Longitude: -50,
				Date:      "2024-08-01",
				Satellite: satellites[i%len(satellites)],
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// mockEnricher labels the biome after the satellite and panics on panicOn.
type mockEnricher struct {
	panicOn string
}

func (m mockEnricher) Enrich(rec domain.DetectionRecord) (domain.EnrichedRecord, []domain.ClassificationWarning) {
	if rec.ID == m.panicOn {
		panic("corrupt geometry")
	}
	out := domain.Unenriched(rec)
	out.Biome = "biome-" + rec.Satellite
	out.Sources.Biome = domain.SourcePolygon
	return out, nil
}

type mockLoader struct {
	batches [][]domain.EnrichedRecord
	onLoad  func()
	err     error
}

func (m *mockLoader) LoadBatch(_ context.Context, records []domain.EnrichedRecord) error {
	m.batches = append(m.batches, records)
	if m.onLoad != nil {
		m.onLoad()
	}
	return m.err
}

func (m *mockLoader) ids() []string {
	var out []string
	for _, b := range m.batches {
		for _, r := range b {
			out = append(out, r.ID)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

// --- tests ---

func TestBatchProcessor_ChunksLargeInput(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.NewBatchProcessor(mockEnricher{}, []pipeline.BatchLoader{ldr}, discardLogger(), newTestMetrics(), 50_000, 2)

	stats, err := p.Run(context.Background(), detections(120_000))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 120_000, stats.Total)
	assert.False(t, stats.Partial)
	require.Len(t, ldr.batches, 3)
	assert.Len(t, ldr.batches[0], 50_000)
	assert.Len(t, ldr.batches[1], 50_000)
	assert.Len(t, ldr.batches[2], 20_000)
}

func TestBatchProcessor_LoadsChunksInInputOrder(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.NewBatchProcessor(mockEnricher{}, []pipeline.BatchLoader{ldr}, discardLogger(), newTestMetrics(), 3, 4)

	stats, err := p.Run(context.Background(), detections(10))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Batches)
	var want []string
	for rec := range detections(10) {
		want = append(want, rec.ID)
	}
	assert.Equal(t, want, ldr.ids())
}

func TestBatchProcessor_WorkerCountDoesNotChangeStatistics(t *testing.T) {
	run := func(workers int) domain.RunStatistics {
		p := pipeline.NewBatchProcessor(mockEnricher{}, nil, discardLogger(), newTestMetrics(), 7, workers)
		stats, err := p.Run(context.Background(), detections(100))
		require.NoError(t, err)
		return stats
	}

	sequential := run(1)
	parallel := run(8)
	if diff := cmp.Diff(sequential, parallel); diff != "" {
		t.Errorf("statistics differ by worker count (-sequential +parallel):\n%s", diff)
	}
	assert.Equal(t, "AQUA_M-T", sequential.Leaders.Satellite)
	assert.Equal(t, []domain.GroupCount{
		{Key: "AQUA_M-T", Count: 34},
		{Key: "NOAA-20", Count: 33},
		{Key: "TERRA_M-T", Count: 33},
	}, sequential.BySatellite)
}

func TestBatchProcessor_EnrichPanicKeepsRecord(t *testing.T) {
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.NewBatchProcessor(mockEnricher{panicOn: "r000001"}, []pipeline.BatchLoader{ldr}, discardLogger(), metrics, 10, 1)

	stats, err := p.Run(context.Background(), detections(3))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.EnrichFailures)
	require.Len(t, ldr.batches, 1)
	failed := ldr.batches[0][1]
	assert.Equal(t, "r000001", failed.ID)
	assert.Equal(t, domain.Unidentified, failed.Biome)
	assert.Equal(t, domain.SourceNone, failed.Sources.Biome)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.EnrichFailures), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.RecordsEnriched), 0)
}

func TestBatchProcessor_CancellationReturnsPartialStatistics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ldr := &mockLoader{onLoad: cancel}
	p := pipeline.NewBatchProcessor(mockEnricher{}, []pipeline.BatchLoader{ldr}, discardLogger(), newTestMetrics(), 10, 1)

	stats, err := p.Run(ctx, detections(30))
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, stats.Partial)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 1, stats.Batches)
	assert.Len(t, ldr.batches, 1)
}

func TestBatchProcessor_LoaderErrorDoesNotStopRun(t *testing.T) {
	failing := &mockLoader{err: fmt.Errorf("broker unavailable")}
	ok := &mockLoader{}
	p := pipeline.NewBatchProcessor(mockEnricher{}, []pipeline.BatchLoader{failing, ok}, discardLogger(), newTestMetrics(), 5, 1)

	stats, err := p.Run(context.Background(), detections(12))
	require.NoError(t, err)

	assert.Equal(t, 12, stats.Total)
	assert.Len(t, failing.batches, 3)
	assert.Len(t, ok.ids(), 12)
}

func TestBatchProcessor_EmptyInput(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.NewBatchProcessor(mockEnricher{}, []pipeline.BatchLoader{ldr}, discardLogger(), newTestMetrics(), 10, 2)

	stats, err := p.Run(context.Background(), detections(0))
	require.NoError(t, err)

	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Batches)
	assert.Empty(t, ldr.batches)
	assert.Equal(t, domain.NoState, stats.Leaders.Biome)
}

func TestBatchProcessor_ProgressTracksMergedChunks(t *testing.T) {
	var p *pipeline.BatchProcessor
	var seen []int
	ldr := &mockLoader{}
	ldr.onLoad = func() { seen = append(seen, p.Progress().Total) }
	p = pipeline.NewBatchProcessor(mockEnricher{}, []pipeline.BatchLoader{ldr}, discardLogger(), newTestMetrics(), 4, 1)

	_, err := p.Run(context.Background(), detections(10))
	require.NoError(t, err)

	assert.Equal(t, []int{4, 8, 10}, seen)
	assert.Equal(t, 10, p.Progress().Total)
}
