package domain

import (
	"iter"
	"sort"
	"time"
)

// GroupCount is one group-by bucket.
type GroupCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CategoryCounts splits records by whether a category label was found.
type CategoryCounts struct {
	Classified   int `json:"classified"`
	FromFallback int `json:"from_fallback"`
	Unclassified int `json:"unclassified"`
}

// Leaders names the top group of the headline groupings, or "N/A" when empty.
type Leaders struct {
	Municipality string `json:"municipality"`
	Biome        string `json:"biome"`
	Satellite    string `json:"satellite"`
}

// RunStatistics summarizes one enrichment run. Group-by slices are ordered by
// descending count; equal counts keep first-encountered order.
type RunStatistics struct {
	RunID          string                      `json:"run_id,omitempty"`
	StartedAt      time.Time                   `json:"started_at"`
	FinishedAt     time.Time                   `json:"finished_at"`
	ElapsedMS      int64                       `json:"elapsed_ms"`
	Partial        bool                        `json:"partial"`
	Total          int                         `json:"total"`
	Batches        int                         `json:"batches"`
	EnrichFailures int                         `json:"enrich_failures"`
	Warnings       int                         `json:"classification_warnings"`
	GeometryFaults int                         `json:"invalid_geometries"`
	Ingest         IngestReport                `json:"ingest"`
	Categories     map[Category]CategoryCounts `json:"categories"`
	ByMunicipality []GroupCount                `json:"by_municipality"`
	ByState        []GroupCount                `json:"by_state"`
	ByBiome        []GroupCount                `json:"by_biome"`
	BySatellite    []GroupCount                `json:"by_satellite"`
	ByDate         []GroupCount                `json:"by_date"`
	ByDayPeriod    []GroupCount                `json:"by_day_period"`
	Leaders        Leaders                     `json:"leaders"`
}

// tally counts keys while remembering the order they were first seen.
type tally struct {
	index  map[string]int
	groups []GroupCount
}

func (t *tally) add(key string, n int) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[key]; ok {
		t.groups[i].Count += n
		return
	}
	t.index[key] = len(t.groups)
	t.groups = append(t.groups, GroupCount{Key: key, Count: n})
}

func (t *tally) merge(o *tally) {
	for _, g := range o.groups {
		t.add(g.Key, g.Count)
	}
}

func (t *tally) sorted() []GroupCount {
	out := make([]GroupCount, len(t.groups))
	copy(out, t.groups)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func (t *tally) leader() string {
	s := t.sorted()
	if len(s) == 0 {
		return NoState
	}
	return s[0].Key
}

// StatsAccumulator builds RunStatistics incrementally. It is not safe for
// concurrent use; parallel workers each fill their own and the results are
// combined with Merge in input order, which preserves first-seen tie order.
type StatsAccumulator struct {
	total          int
	batches        int
	enrichFailures int
	warnings       int

	categories   map[Category]*CategoryCounts
	municipality tally
	state        tally
	biome        tally
	satellite    tally
	date         tally
	dayPeriod    tally
}

// NewStatsAccumulator returns an empty accumulator.
func NewStatsAccumulator() *StatsAccumulator {
	a := &StatsAccumulator{categories: make(map[Category]*CategoryCounts, len(Categories))}
	for _, c := range Categories {
		a.categories[c] = &CategoryCounts{}
	}
	return a
}

// Add counts one enriched record.
func (a *StatsAccumulator) Add(rec EnrichedRecord) {
	a.total++
	a.count(CategoryMunicipality, rec.Sources.Municipality)
	a.count(CategoryState, rec.Sources.State)
	a.count(CategoryBiome, rec.Sources.Biome)
	a.count(CategoryConservationUnit, rec.Sources.ConservationUnit)
	a.count(CategoryIndigenousLand, rec.Sources.IndigenousLand)

	a.municipality.add(rec.Municipality, 1)
	a.state.add(rec.State, 1)
	a.biome.add(rec.Biome, 1)
	a.satellite.add(rec.Satellite, 1)
	a.date.add(labelOr(rec.Date, Unidentified), 1)
	a.dayPeriod.add(rec.DayPeriod, 1)
}

func (a *StatsAccumulator) count(cat Category, src Source) {
	c := a.categories[cat]
	switch src {
	case SourcePolygon:
		c.Classified++
	case SourceFallback:
		c.Classified++
		c.FromFallback++
	default:
		c.Unclassified++
	}
}

// AddBatch counts one processed chunk.
func (a *StatsAccumulator) AddBatch() { a.batches++ }

// AddFailure counts a record whose enrichment failed and was kept with defaults.
func (a *StatsAccumulator) AddFailure() { a.enrichFailures++ }

// AddWarnings counts classification warnings.
func (a *StatsAccumulator) AddWarnings(n int) { a.warnings += n }

// Total returns the number of records counted so far.
func (a *StatsAccumulator) Total() int { return a.total }

// Merge adds o's counts into a. Groups new to a are appended in o's order.
func (a *StatsAccumulator) Merge(o *StatsAccumulator) {
	a.total += o.total
	a.batches += o.batches
	a.enrichFailures += o.enrichFailures
	a.warnings += o.warnings
	for cat, c := range o.categories {
		dst, ok := a.categories[cat]
		if !ok {
			dst = &CategoryCounts{}
			a.categories[cat] = dst
		}
		dst.Classified += c.Classified
		dst.FromFallback += c.FromFallback
		dst.Unclassified += c.Unclassified
	}
	a.municipality.merge(&o.municipality)
	a.state.merge(&o.state)
	a.biome.merge(&o.biome)
	a.satellite.merge(&o.satellite)
	a.date.merge(&o.date)
	a.dayPeriod.merge(&o.dayPeriod)
}

// Statistics returns a snapshot of the counts. Run metadata (ID, timing,
// ingest report) is left for the caller to fill.
func (a *StatsAccumulator) Statistics() RunStatistics {
	cats := make(map[Category]CategoryCounts, len(a.categories))
	for cat, c := range a.categories {
		cats[cat] = *c
	}
	return RunStatistics{
		Total:          a.total,
		Batches:        a.batches,
		EnrichFailures: a.enrichFailures,
		Warnings:       a.warnings,
		Categories:     cats,
		ByMunicipality: a.municipality.sorted(),
		ByState:        a.state.sorted(),
		ByBiome:        a.biome.sorted(),
		BySatellite:    a.satellite.sorted(),
		ByDate:         a.date.sorted(),
		ByDayPeriod:    a.dayPeriod.sorted(),
		Leaders: Leaders{
			Municipality: a.municipality.leader(),
			Biome:        a.biome.leader(),
			Satellite:    a.satellite.leader(),
		},
	}
}

// Summarize computes group-by statistics over an enriched record sequence.
func Summarize(records iter.Seq[EnrichedRecord]) RunStatistics {
	a := NewStatsAccumulator()
	for rec := range records {
		a.Add(rec)
	}
	return a.Statistics()
}
