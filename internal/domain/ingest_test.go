package domain

import (
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIngestor(opts ...IngestorOption) *Ingestor {
	return NewIngestor(discardLogger(), opts...)
}

func TestIngestor_ParsesSynonymHeaders(t *testing.T) {
	csv := strings.Join([]string{
		"ID,LAT,Longitude,data_hora_gmt,satelite,frp,confianca,temperatura",
		"1,-2.53,-44.28,2024-08-01 17:30:00,AQUA_M-T,12.5,80,315.2",
	}, "\n")

	stream := newTestIngestor().ParseString("focos_2024-08-01.csv", csv)
	records := slices.Collect(stream.Records())
	require.NoError(t, stream.Err())
	require.Len(t, records, 1)

	rec := records[0]
	assert.InDelta(t, -2.53, rec.Latitude, 1e-9)
	assert.InDelta(t, -44.28, rec.Longitude, 1e-9)
	assert.Equal(t, time.Date(2024, time.August, 1, 17, 30, 0, 0, time.UTC), rec.Timestamp)
	assert.Equal(t, "2024-08-01", rec.Date)
	assert.Equal(t, "AQUA_M-T", rec.Satellite)
	assert.Equal(t, 80, rec.Confidence)
	assert.InDelta(t, 315.2, rec.Temperature, 1e-9)
	assert.InDelta(t, 12.5, rec.RadiativePower, 1e-9)
	assert.Equal(t, "focos_2024-08-01.csv", rec.SourceFile)
	assert.NotEmpty(t, rec.ID)
}

func TestIngestor_AppliesDefaults(t *testing.T) {
	csv := "lat,lon,data\n-10.0,-50.0,2024-08-01\n"

	records := slices.Collect(newTestIngestor().ParseString("a.csv", csv).Records())
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, Unidentified, rec.Satellite)
	assert.Equal(t, DefaultConfidence, rec.Confidence)
	assert.InDelta(t, DefaultTemperature, rec.Temperature, 1e-9)
	assert.InDelta(t, DefaultRadiativePower, rec.RadiativePower, 1e-9)
}

func TestIngestor_DropsOutOfBounds(t *testing.T) {
	csv := strings.Join([]string{
		"lat,lon,satelite",
		"91.0,-44.0,AQUA_M-T",
		"-2.53,-44.28,AQUA_M-T",
		"-10.0,-80.0,NOAA-20",
	}, "\n")

	stream := newTestIngestor().ParseString("a.csv", csv)
	records := slices.Collect(stream.Records())

	require.Len(t, records, 1)
	assert.InDelta(t, -2.53, records[0].Latitude, 1e-9)
	report := stream.Report()
	assert.Equal(t, 3, report.Lines)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 2, report.OutOfBounds)
	assert.Zero(t, report.Malformed)
}

func TestIngestor_SkipsMalformedRows(t *testing.T) {
	csv := strings.Join([]string{
		"lat,lon,satelite",
		"abc,-44.0,AQUA_M-T",
		"-3.0",
		"NaN,-44.0,AQUA_M-T",
		"",
		",,",
		"-3.0,-44.0,TERRA_M-T",
	}, "\n")

	stream := newTestIngestor().ParseString("a.csv", csv)
	records := slices.Collect(stream.Records())

	require.NoError(t, stream.Err())
	require.Len(t, records, 1)
	assert.Equal(t, "TERRA_M-T", records[0].Satellite)
	assert.Equal(t, 3, stream.Report().Malformed)
	assert.Equal(t, 1, stream.Report().Accepted)
}

func TestIngestor_BoundaryInvariant(t *testing.T) {
	b := BrazilBounds
	csv := strings.Join([]string{
		"lat,lon",
		"5.264877,-73.982817",   // north-west corner
		"-33.742156,-28.847894", // south-east corner
		"5.3,-50.0",
		"-33.8,-50.0",
		"-10.0,-28.8",
		"-10.0,-74.0",
	}, "\n")

	records := slices.Collect(newTestIngestor().ParseString("a.csv", csv).Records())
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.Latitude >= b.South && r.Latitude <= b.North, "latitude %v", r.Latitude)
		assert.True(t, r.Longitude >= b.West && r.Longitude <= b.East, "longitude %v", r.Longitude)
	}
}

func TestIngestor_TimestampFormats(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Time
	}{
		{"2024-08-01T17:30:00Z", time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)},
		{"2024-08-01T14:30:00-03:00", time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)},
		{"2024/08/01 17:30:00", time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)},
		{"01/08/2024 17:30:00", time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)},
		{"2024-08-01 17:30", time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)},
		{"01/08/2024", time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-08-01T17:30:00", time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)},
		{"2024-08-01T17:30", time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)},
		{"01/08/2024 17:30", time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)},
		{"2024-08-01 17:30:00.000 GMT", time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
		{"01/08/2024 17h30", time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := normalizeTimestamp(tc.raw)
			require.True(t, ok)
			assert.True(t, tc.want.Equal(got), "got %s", got)
		})
	}
}

func TestIngestor_TimestampFormatsRejected(t *testing.T) {
	for _, raw := range []string{"yesterday", "2024-13-01", "32/08/2024 10:00", "2024-8-1"} {
		_, ok := normalizeTimestamp(raw)
		assert.False(t, ok, raw)
	}
}

func TestIngestor_ZonelessTimestampsKeepTheirDate(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	csv := "lat,lon,data\n-7.5,-46.0,2024-08-01T17:30:00\n-7.5,-46.0,2024-08-01T17:30\n-7.5,-46.0,01/08/2024 17:30\n"
	stream := newTestIngestor().ParseString("a.csv", csv)
	records := slices.Collect(stream.Records())

	require.Len(t, records, 3)
	assert.Zero(t, stream.Report().TimestampFallbacks)
	want := time.Date(2024, 8, 1, 17, 30, 0, 0, time.UTC)
	for _, r := range records {
		assert.True(t, want.Equal(r.Timestamp), "got %s", r.Timestamp)
	}
}

func TestNewIngestor_NilLogger(t *testing.T) {
	in := NewIngestor(nil)
	require.NotNil(t, in)

	var records []DetectionRecord
	assert.NotPanics(t, func() {
		records = slices.Collect(in.ParseString("a.csv", "lat,lon,data\n-10.0,-50.0,bad\n").Records())
	})
	assert.Len(t, records, 1)
}

func TestIngestor_TimestampFallbackUsesClock(t *testing.T) {
	now := time.Date(2024, time.September, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { SetClock(nil) })

	csv := "lat,lon,data\n-10.0,-50.0,yesterday\n-10.0,-50.0,\n"
	stream := newTestIngestor().ParseString("a.csv", csv)
	records := slices.Collect(stream.Records())

	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, now, r.Timestamp)
		assert.Equal(t, "2024-09-01", r.Date)
	}
	assert.Equal(t, 2, stream.Report().TimestampFallbacks)
}

func TestIngestor_ConfidenceClampedAndRounded(t *testing.T) {
	csv := "lat,lon,confidence\n-10,-50,150\n-10,-50,-5\n-10,-50,79.6\n-10,-50,high\n"
	records := slices.Collect(newTestIngestor().ParseString("a.csv", csv).Records())
	require.Len(t, records, 4)

	got := []int{records[0].Confidence, records[1].Confidence, records[2].Confidence, records[3].Confidence}
	assert.Equal(t, []int{100, 0, 80, DefaultConfidence}, got)
}

func TestIngestor_SemicolonDelimiterWithDecimalCommas(t *testing.T) {
	csv := "latitude;longitude;satellite\n-2,53;-44,28;NOAA-20\n"
	records := slices.Collect(newTestIngestor(WithDelimiter(';')).ParseString("a.csv", csv).Records())
	require.Len(t, records, 1)
	assert.InDelta(t, -2.53, records[0].Latitude, 1e-9)
	assert.InDelta(t, -44.28, records[0].Longitude, 1e-9)
}

func TestIngestor_MissingCoordinateColumns(t *testing.T) {
	stream := newTestIngestor().ParseString("a.csv", "foo,bar\n1,2\n")
	records := slices.Collect(stream.Records())

	assert.Empty(t, records)
	require.ErrorIs(t, stream.Err(), ErrMissingCoordinateColumns)
	assert.Equal(t, 1, stream.Report().HeaderErrors)
}

func TestIngestor_EmptyInput(t *testing.T) {
	stream := newTestIngestor().ParseString("a.csv", "")
	assert.Empty(t, slices.Collect(stream.Records()))
	assert.NoError(t, stream.Err())
}

func TestIngestor_StreamIsSingleUse(t *testing.T) {
	stream := newTestIngestor().ParseString("a.csv", "lat,lon\n-10,-50\n-11,-51\n")

	first := slices.Collect(stream.Records())
	second := slices.Collect(stream.Records())

	assert.Len(t, first, 2)
	assert.Empty(t, second)
}

func TestIngestor_StopsEarlyWhenConsumerBreaks(t *testing.T) {
	stream := newTestIngestor().ParseString("a.csv", "lat,lon\n-10,-50\n-11,-51\n-12,-52\n")

	n := 0
	for range stream.Records() {
		n++
		break
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, stream.Report().Accepted)
}

func TestIngestor_DeterministicIDs(t *testing.T) {
	csv := "lat,lon,data,satelite\n-10,-50,2024-08-01 10:00:00,AQUA_M-T\n-10,-50,2024-08-01 10:00:00,TERRA_M-T\n"

	a := slices.Collect(newTestIngestor().ParseString("a.csv", csv).Records())
	b := slices.Collect(newTestIngestor().ParseString("b.csv", csv).Records())

	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.Equal(t, a[0].ID, b[0].ID)
	assert.Equal(t, a[1].ID, b[1].ID)
	assert.NotEqual(t, a[0].ID, a[1].ID)
}

func TestIngestReport_Add(t *testing.T) {
	var total IngestReport
	total.Add(IngestReport{Files: 1, Lines: 10, Accepted: 8, Malformed: 1, OutOfBounds: 1})
	total.Add(IngestReport{Files: 1, HeaderErrors: 1})

	assert.Equal(t, IngestReport{Files: 2, HeaderErrors: 1, Lines: 10, Accepted: 8, Malformed: 1, OutOfBounds: 1}, total)
}
