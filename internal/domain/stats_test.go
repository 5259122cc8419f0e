package domain

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelled(municipality, biome, satellite string) EnrichedRecord {
	rec := Unenriched(detection(-10, -50))
	rec.Satellite = satellite
	if municipality != Unidentified {
		rec.Municipality = municipality
		rec.Sources.Municipality = SourcePolygon
	}
	if biome != Unidentified {
		rec.Biome = biome
		rec.Sources.Biome = SourceFallback
	}
	return rec
}

func TestSummarize_OrdersByCountThenFirstSeen(t *testing.T) {
	records := []EnrichedRecord{
		labelled("Balsas", "Cerrado", "NOAA-20"),
		labelled("Altamira", "Amazônia", "AQUA_M-T"),
		labelled("Altamira", "Amazônia", "AQUA_M-T"),
		labelled("Carolina", "Cerrado", "TERRA_M-T"),
		labelled(Unidentified, Unidentified, "NOAA-20"),
	}

	stats := Summarize(slices.Values(records))

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, []GroupCount{
		{Key: "Altamira", Count: 2},
		{Key: "Balsas", Count: 1},
		{Key: "Carolina", Count: 1},
		{Key: Unidentified, Count: 1},
	}, stats.ByMunicipality)
	assert.Equal(t, []GroupCount{
		{Key: "Cerrado", Count: 2},
		{Key: "Amazônia", Count: 2},
		{Key: Unidentified, Count: 1},
	}, stats.ByBiome)
	assert.Equal(t, Leaders{Municipality: "Altamira", Biome: "Cerrado", Satellite: "NOAA-20"}, stats.Leaders)

	assert.Equal(t, CategoryCounts{Classified: 4, Unclassified: 1}, stats.Categories[CategoryMunicipality])
	assert.Equal(t, CategoryCounts{Classified: 4, FromFallback: 4, Unclassified: 1}, stats.Categories[CategoryBiome])
	assert.Equal(t, CategoryCounts{Unclassified: 5}, stats.Categories[CategoryIndigenousLand])
}

func TestSummarize_GroupCountsSumToTotal(t *testing.T) {
	var records []EnrichedRecord
	biomes := []string{"Cerrado", "Amazônia", Unidentified, "Pampa"}
	for i := range 97 {
		records = append(records, labelled("M", biomes[i%len(biomes)], "S"))
	}

	stats := Summarize(slices.Values(records))

	for name, groups := range map[string][]GroupCount{
		"biome":      stats.ByBiome,
		"state":      stats.ByState,
		"date":       stats.ByDate,
		"day_period": stats.ByDayPeriod,
		"satellite":  stats.BySatellite,
	} {
		sum := 0
		for _, g := range groups {
			sum += g.Count
		}
		assert.Equal(t, stats.Total, sum, name)
	}
}

func TestSummarize_Empty(t *testing.T) {
	stats := Summarize(slices.Values([]EnrichedRecord(nil)))

	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.ByBiome)
	assert.Equal(t, Leaders{Municipality: NoState, Biome: NoState, Satellite: NoState}, stats.Leaders)
}

func TestStatsAccumulator_MergeMatchesSequential(t *testing.T) {
	records := []EnrichedRecord{
		labelled("B", "Cerrado", "S1"),
		labelled("A", "Amazônia", "S2"),
		labelled("A", "Cerrado", "S1"),
		labelled("C", "Pampa", "S3"),
		labelled("B", "Pampa", "S2"),
	}

	sequential := NewStatsAccumulator()
	for _, r := range records {
		sequential.Add(r)
	}
	sequential.AddBatch()

	first, second := NewStatsAccumulator(), NewStatsAccumulator()
	for _, r := range records[:2] {
		first.Add(r)
	}
	for _, r := range records[2:] {
		second.Add(r)
	}
	first.AddWarnings(2)
	second.AddFailure()

	merged := NewStatsAccumulator()
	merged.Merge(first)
	merged.Merge(second)
	merged.AddBatch()

	want := sequential.Statistics()
	got := merged.Statistics()
	require.Equal(t, 5, merged.Total())
	assert.Equal(t, want.ByMunicipality, got.ByMunicipality)
	assert.Equal(t, want.ByBiome, got.ByBiome)
	assert.Equal(t, want.BySatellite, got.BySatellite)
	assert.Equal(t, want.Categories, got.Categories)
	assert.Equal(t, 1, got.Batches)
	assert.Equal(t, 2, got.Warnings)
	assert.Equal(t, 1, got.EnrichFailures)
}
